package peersync

import (
	"context"
	"path/filepath"
	"testing"

	gocid "github.com/ipfs/go-cid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/systemshift/chanhist/internal/channel"
	"github.com/systemshift/chanhist/internal/dag"
	"github.com/systemshift/chanhist/internal/message"
)

// peer is one replica: a registry plus its address on a LocalTransport.
type peer struct {
	addr string
	reg  *channel.Registry
}

func newPeer(t *testing.T, tr *LocalTransport, addr string) *peer {
	t.Helper()
	reg, err := channel.OpenRegistry(filepath.Join(t.TempDir(), addr), channel.Options{Logger: zerolog.Nop()})
	require.NoError(t, err)
	tr.Register(addr, reg)
	return &peer{addr: addr, reg: reg}
}

func (p *peer) channel(t *testing.T, name string) *channel.Repository {
	t.Helper()
	if repo, err := p.reg.Channel(name); err == nil {
		return repo
	}
	repo, err := p.reg.CreateChannel(name)
	require.NoError(t, err)
	return repo
}

func (p *peer) post(t *testing.T, name, id string, ts int64) gocid.Cid {
	t.Helper()
	c, err := p.channel(t, name).AppendMessage(context.Background(),
		message.ChannelMessage{ID: id, Timestamp: ts, Content: []byte("body of " + id)})
	require.NoError(t, err)
	return c
}

func (p *peer) head(t *testing.T, name string) gocid.Cid {
	t.Helper()
	c, _ := p.channel(t, name).TopOfTree()
	return c
}

func (p *peer) ids(t *testing.T, name string, oldestFirst bool) []string {
	t.Helper()
	msgs, err := p.channel(t, name).Messages(oldestFirst)
	require.NoError(t, err)
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

func newSync(tr Transport) *Synchronizer {
	return NewSynchronizer(tr, 0, zerolog.Nop(), nil)
}

func mustCID(t *testing.T, data string) gocid.Cid {
	t.Helper()
	c, err := dag.ComputeCID([]byte(data))
	require.NoError(t, err)
	return c
}
