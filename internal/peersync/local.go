package peersync

import (
	"context"
	"errors"
	"fmt"
	"sync"

	gocid "github.com/ipfs/go-cid"

	"github.com/systemshift/chanhist/internal/channel"
)

// LocalTransport connects registries living in the same process, keyed by
// a made-up address.
type LocalTransport struct {
	mu    sync.RWMutex
	peers map[string]*channel.Registry
}

func NewLocalTransport() *LocalTransport {
	return &LocalTransport{peers: make(map[string]*channel.Registry)}
}

// Register makes reg reachable at addr.
func (t *LocalTransport) Register(addr string, reg *channel.Registry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.peers[addr] = reg
}

func (t *LocalTransport) peer(ctx context.Context, addr string) (*channel.Registry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	reg, ok := t.peers[addr]
	if !ok {
		return nil, fmt.Errorf("no peer at %s", addr)
	}
	return reg, nil
}

// QueryRemoteHead implements Transport.
func (t *LocalTransport) QueryRemoteHead(ctx context.Context, addr, name string) (gocid.Cid, error) {
	reg, err := t.peer(ctx, addr)
	if err != nil {
		return gocid.Undef, err
	}
	repo, err := reg.Channel(name)
	if errors.Is(err, channel.ErrChannelNotFound) {
		return gocid.Undef, nil
	}
	if err != nil {
		return gocid.Undef, err
	}
	head, _ := repo.TopOfTree()
	return head, nil
}

// FetchRemoteObjects implements Transport.
func (t *LocalTransport) FetchRemoteObjects(ctx context.Context, addr, name string, wants, haves []gocid.Cid) ([]byte, error) {
	reg, err := t.peer(ctx, addr)
	if err != nil {
		return nil, err
	}
	repo, err := reg.Channel(name)
	if err != nil {
		return nil, err
	}
	objs, err := BuildPack(repo, wants, haves)
	if err != nil {
		return nil, err
	}
	return EncodePack(objs), nil
}
