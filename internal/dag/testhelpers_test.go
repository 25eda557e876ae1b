package dag

import (
	"path/filepath"
	"testing"

	gocid "github.com/ipfs/go-cid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestLog(t *testing.T, cache *CommitCache) *CommitLog {
	t.Helper()
	dir := t.TempDir()
	store, err := NewObjectStore(filepath.Join(dir, "objects"))
	require.NoError(t, err)
	return NewCommitLog(filepath.Join(dir, "HEAD"), filepath.Join(dir, "reflog"), store, cache, zerolog.Nop())
}

func putCommit(t *testing.T, cl *CommitLog, c *CommitObject) gocid.Cid {
	t.Helper()
	id, err := cl.Put(c)
	require.NoError(t, err)
	return id
}

func putMessage(t *testing.T, cl *CommitLog, parent gocid.Cid, ts int64, body string) gocid.Cid {
	t.Helper()
	return putCommit(t, cl, NewMessageCommit(parent, ts, []byte(body)))
}

func entryIDs(entries []Entry) []gocid.Cid {
	out := make([]gocid.Cid, len(entries))
	for i, e := range entries {
		out[i] = e.CID
	}
	return out
}
