package peersync

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncer_RunOnce(t *testing.T) {
	tr := NewLocalTransport()
	a := newPeer(t, tr, "a")
	b := newPeer(t, tr, "b")
	a.post(t, "general", "m1", 10)
	a.post(t, "random", "r1", 10)
	b.post(t, "general", "m2", 20)

	syncer := NewSyncer(a.reg, newSync(tr), []string{"b", "offline"}, time.Hour, zerolog.Nop())
	sum := syncer.RunOnce(context.Background())
	assert.Equal(t, Summary{Synced: 2, Failed: 2}, sum)
	assert.ElementsMatch(t, []string{"m1", "m2"}, a.ids(t, "general", true))
}

func TestSyncer_StartStop(t *testing.T) {
	tr := NewLocalTransport()
	a := newPeer(t, tr, "a")
	b := newPeer(t, tr, "b")
	repo := a.channel(t, "general")
	want := b.post(t, "general", "m1", 10)

	syncer := NewSyncer(a.reg, newSync(tr), []string{"b"}, 10*time.Millisecond, zerolog.Nop())
	syncer.Start()
	require.Eventually(t, func() bool {
		head, _ := repo.TopOfTree()
		return head.Equals(want)
	}, 5*time.Second, 10*time.Millisecond)
	syncer.Stop()
}

func TestSyncer_StopWithoutStart(t *testing.T) {
	syncer := NewSyncer(nil, nil, nil, time.Second, zerolog.Nop())
	syncer.Stop()
}
