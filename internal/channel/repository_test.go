package channel

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	gocid "github.com/ipfs/go-cid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemshift/chanhist/internal/dag"
	"github.com/systemshift/chanhist/internal/message"
)

func testOptions() Options {
	return Options{Logger: zerolog.Nop()}
}

func newRepo(t *testing.T, name string) *Repository {
	t.Helper()
	repo, err := Create(filepath.Join(t.TempDir(), name), testOptions())
	require.NoError(t, err)
	return repo
}

func msg(id string, ts int64, content string) message.ChannelMessage {
	return message.ChannelMessage{ID: id, Timestamp: ts, Content: []byte(content)}
}

func appendAll(t *testing.T, repo *Repository, msgs ...message.ChannelMessage) {
	t.Helper()
	for _, m := range msgs {
		_, err := repo.AppendMessage(context.Background(), m)
		require.NoError(t, err)
	}
}

func ids(t *testing.T, repo *Repository, oldestFirst bool) []string {
	t.Helper()
	msgs, err := repo.Messages(oldestFirst)
	require.NoError(t, err)
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

func TestCreate_Layout(t *testing.T) {
	repo := newRepo(t, "general")

	assert.Equal(t, "general", repo.Name())
	_, ok := repo.TopOfTree()
	assert.False(t, ok)

	for _, p := range []string{"HEAD", "objects", "refs/remotes", "logs"} {
		_, err := os.Stat(filepath.Join(repo.Path(), p))
		assert.NoError(t, err, p)
	}
}

func TestCreate_AlreadyExists(t *testing.T) {
	repo := newRepo(t, "general")
	_, err := Create(repo.Path(), testOptions())
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestOpen_NotFound(t *testing.T) {
	dir := t.TempDir()

	_, err := Open(filepath.Join(dir, "missing"), testOptions())
	assert.ErrorIs(t, err, ErrNotFound)

	plain := filepath.Join(dir, "plain")
	require.NoError(t, os.MkdirAll(filepath.Join(plain, "objects"), 0755))
	_, err = Open(plain, testOptions())
	assert.ErrorIs(t, err, ErrNotFound, "no HEAD")

	require.NoError(t, os.WriteFile(filepath.Join(plain, "HEAD"), []byte("garbage\n"), 0644))
	_, err = Open(plain, testOptions())
	assert.ErrorIs(t, err, ErrNotFound, "unparsable HEAD")
}

func TestOpen_Reopen(t *testing.T) {
	repo := newRepo(t, "general")
	appendAll(t, repo, msg("a", 1, "hello"), msg("b", 2, "world"))
	head, _ := repo.TopOfTree()

	reopened, err := Open(repo.Path(), testOptions())
	require.NoError(t, err)
	got, ok := reopened.TopOfTree()
	require.True(t, ok)
	assert.Equal(t, head, got)
	assert.True(t, reopened.HasMessage("a"))

	_, err = reopened.AppendMessage(context.Background(), msg("a", 3, "again"))
	assert.ErrorIs(t, err, ErrDuplicateMessage)
}

func TestAppendAndEnumerate(t *testing.T) {
	repo := newRepo(t, "general")
	m1 := msg("a", 1, "hello")
	m2 := msg("b", 2, "world")
	appendAll(t, repo, m1, m2)

	oldest, err := repo.Messages(true)
	require.NoError(t, err)
	require.Len(t, oldest, 2)
	assert.True(t, m1.Equal(oldest[0]))
	assert.True(t, m2.Equal(oldest[1]))

	assert.Equal(t, []string{"b", "a"}, ids(t, repo, false))
}

func TestAppend_AdvancesHead(t *testing.T) {
	repo := newRepo(t, "general")

	var prev gocid.Cid
	for i := range 5 {
		id := fmt.Sprintf("m%d", i)
		c, err := repo.AppendMessage(context.Background(), msg(id, int64(i), "x"))
		require.NoError(t, err)
		head, ok := repo.TopOfTree()
		require.True(t, ok)
		assert.Equal(t, c, head)
		assert.NotEqual(t, prev, head)
		prev = head

		count := 0
		for _, got := range ids(t, repo, true) {
			if got == id {
				count++
			}
		}
		assert.Equal(t, 1, count)
	}
}

func TestAppend_Duplicate(t *testing.T) {
	repo := newRepo(t, "general")
	appendAll(t, repo, msg("a", 1, "hello"))
	before, _ := repo.TopOfTree()

	_, err := repo.AppendMessage(context.Background(), msg("a", 2, "other"))
	assert.ErrorIs(t, err, ErrDuplicateMessage)

	after, _ := repo.TopOfTree()
	assert.Equal(t, before, after)
	assert.Equal(t, []string{"a"}, ids(t, repo, true))
}

func TestAppend_Invalid(t *testing.T) {
	repo := newRepo(t, "general")
	_, err := repo.AppendMessage(context.Background(), msg("", 1, "no id"))
	assert.ErrorIs(t, err, ErrInvalidMessage)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = repo.AppendMessage(ctx, msg("a", 1, "x"))
	assert.ErrorIs(t, err, context.Canceled)

	_, ok := repo.TopOfTree()
	assert.False(t, ok)
}

func TestEnumerate_Empty(t *testing.T) {
	repo := newRepo(t, "general")
	n := 0
	for _, err := range repo.EnumerateMessages(false) {
		require.NoError(t, err)
		n++
	}
	assert.Zero(t, n)
}

func TestEnumerate_SnapshotAndRestart(t *testing.T) {
	repo := newRepo(t, "general")
	appendAll(t, repo, msg("a", 1, "x"), msg("b", 2, "y"))

	seq := repo.EnumerateMessages(true)
	appendAll(t, repo, msg("c", 3, "z"))

	for range 2 {
		var got []string
		for m, err := range seq {
			require.NoError(t, err)
			got = append(got, m.ID)
		}
		assert.Equal(t, []string{"a", "b"}, got)
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids(t, repo, true))
}

func TestEnumerate_EarlyBreak(t *testing.T) {
	repo := newRepo(t, "general")
	appendAll(t, repo, msg("a", 1, "x"), msg("b", 2, "y"), msg("c", 3, "z"))

	var got []string
	for m, err := range repo.EnumerateMessages(false) {
		require.NoError(t, err)
		got = append(got, m.ID)
		if len(got) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"c", "b"}, got)
}

// Two lines of history with the same message, joined by a merge.
func TestEnumerate_MergeSkippedAndDeduped(t *testing.T) {
	repo := newRepo(t, "general")
	appendAll(t, repo, msg("root", 1, "r"))
	root, _ := repo.TopOfTree()

	shared := message.Encode(msg("same", 5, "s"))
	err := repo.Mutate(context.Background(), func(w *Writer) error {
		left, err := w.WriteCommit(dag.NewMessageCommit(root, 5, shared))
		require.NoError(t, err)
		otherRoot, err := w.WriteCommit(dag.NewMessageCommit(gocid.Undef, 5, shared))
		require.NoError(t, err)
		merge, err := w.WriteCommit(dag.NewMergeCommit(left, otherRoot, 5, 5))
		require.NoError(t, err)
		return w.Advance(merge, "merge")
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"root", "same"}, ids(t, repo, true))
	assert.Len(t, ids(t, repo, false), 2)

	assert.True(t, repo.HasMessage("same"))
	_, err = repo.AppendMessage(context.Background(), msg("same", 9, "again"))
	assert.ErrorIs(t, err, ErrDuplicateMessage)
}

func TestMutate_AdvanceRequiresStoredCommit(t *testing.T) {
	repo := newRepo(t, "general")
	missing, err := dag.ComputeCID([]byte("not stored"))
	require.NoError(t, err)

	err = repo.Mutate(context.Background(), func(w *Writer) error {
		return w.Advance(missing, "bogus")
	})
	assert.ErrorIs(t, err, os.ErrNotExist)
	_, ok := repo.TopOfTree()
	assert.False(t, ok)
}

func TestRemoteRef(t *testing.T) {
	repo := newRepo(t, "general")
	appendAll(t, repo, msg("a", 1, "x"))
	head, _ := repo.TopOfTree()

	require.NoError(t, repo.Mutate(context.Background(), func(w *Writer) error {
		return w.SetRemoteRef("peer.onion:5002", head)
	}))
	got, ok, err := repo.RemoteRef("peer.onion:5002")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, head, got)

	peers, err := repo.RemotePeers()
	require.NoError(t, err)
	assert.Equal(t, []string{"peer.onion:5002"}, peers)
}

func TestReflog(t *testing.T) {
	repo := newRepo(t, "general")
	appendAll(t, repo, msg("a", 1, "x"), msg("b", 2, "y"))

	entries, err := repo.Reflog()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "append b", entries[1].Reason)
}

func TestRemove(t *testing.T) {
	repo := newRepo(t, "general")
	appendAll(t, repo, msg("a", 1, "x"))
	require.NoError(t, repo.Remove())

	_, err := os.Stat(repo.Path())
	assert.True(t, os.IsNotExist(err))

	_, err = repo.AppendMessage(context.Background(), msg("b", 2, "y"))
	assert.ErrorIs(t, err, ErrChannelNotFound)
	_, err = repo.Messages(true)
	assert.ErrorIs(t, err, ErrChannelNotFound)
	assert.ErrorIs(t, repo.Remove(), ErrChannelNotFound)

	_, err = Open(repo.Path(), testOptions())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConcurrentAppendAndRead(t *testing.T) {
	repo := newRepo(t, "general")
	const writers, perWriter = 4, 10

	var wg sync.WaitGroup
	for w := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perWriter {
				_, err := repo.AppendMessage(context.Background(), msg(fmt.Sprintf("w%d-%d", w, i), int64(i), "x"))
				assert.NoError(t, err)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range 20 {
			for _, err := range repo.EnumerateMessages(false) {
				assert.NoError(t, err)
			}
		}
	}()
	wg.Wait()

	assert.Len(t, ids(t, repo, true), writers*perWriter)
}

func TestSharedCacheServesReads(t *testing.T) {
	opts := testOptions()
	opts.Cache = dag.NewCommitCache(1, nil)
	repo, err := Create(filepath.Join(t.TempDir(), "cached"), opts)
	require.NoError(t, err)
	appendAll(t, repo, msg("a", 1, "x"), msg("b", 2, "y"))

	assert.Equal(t, []string{"b", "a"}, ids(t, repo, false))
}
