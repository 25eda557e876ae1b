package peersync

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	gocid "github.com/ipfs/go-cid"

	"github.com/systemshift/chanhist/internal/dag"
)

// HTTPTransport talks to peer history servers over HTTP, optionally through
// a proxy such as a local Tor SOCKS5 port.
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport creates a transport. proxy may be empty or a
// socks5://, socks5h://, http:// or https:// URL. timeout bounds each request.
func NewHTTPTransport(proxy string, timeout time.Duration) (*HTTPTransport, error) {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	if proxy != "" {
		u, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("parse proxy: %w", err)
		}
		switch u.Scheme {
		case "socks5", "socks5h", "http", "https":
		default:
			return nil, fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
		}
		tr.Proxy = http.ProxyURL(u)
	}
	return &HTTPTransport{
		client: &http.Client{Transport: tr, Timeout: timeout},
	}, nil
}

// baseURL turns a peer address into a URL prefix. Bare host:port
// addresses use plain HTTP.
func baseURL(addr string) string {
	addr = strings.TrimRight(addr, "/")
	if strings.Contains(addr, "://") {
		return addr
	}
	return "http://" + addr
}

func channelURL(addr, channel, rest string) string {
	return baseURL(addr) + "/channels/" + url.PathEscape(channel) + rest
}

// QueryRemoteHead implements Transport. A peer that does not know the
// channel reports no history.
func (t *HTTPTransport) QueryRemoteHead(ctx context.Context, addr, channel string) (gocid.Cid, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, channelURL(addr, channel, "/head"), nil)
	if err != nil {
		return gocid.Undef, err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return gocid.Undef, fmt.Errorf("head: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return gocid.Undef, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return gocid.Undef, fmt.Errorf("head: status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var hr headResponse
	if err := json.NewDecoder(resp.Body).Decode(&hr); err != nil {
		return gocid.Undef, fmt.Errorf("head: parse response: %w", err)
	}
	if hr.Head == "" {
		return gocid.Undef, nil
	}
	c, err := dag.ParseCID(hr.Head)
	if err != nil {
		return gocid.Undef, fmt.Errorf("head: %w", err)
	}
	return c, nil
}

// FetchRemoteObjects implements Transport.
func (t *HTTPTransport) FetchRemoteObjects(ctx context.Context, addr, channel string, wants, haves []gocid.Cid) ([]byte, error) {
	body, err := json.Marshal(objectsRequest{Wants: encodeCIDs(wants), Haves: encodeCIDs(haves)})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, channelURL(addr, channel, "/objects"), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("objects: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("objects: status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPackSize+1))
	if err != nil {
		return nil, fmt.Errorf("objects: %w", err)
	}
	if len(data) > maxPackSize {
		return nil, fmt.Errorf("objects: pack exceeds %d bytes", maxPackSize)
	}
	return data, nil
}

// ListRemoteChannels returns the channel names a peer serves.
func (t *HTTPTransport) ListRemoteChannels(ctx context.Context, addr string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL(addr)+"/channels", nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("channels: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("channels: status %d", resp.StatusCode)
	}
	var cr channelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, fmt.Errorf("channels: parse response: %w", err)
	}
	return cr.Channels, nil
}
