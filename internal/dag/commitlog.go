package dag

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	gocid "github.com/ipfs/go-cid"
	"github.com/rs/zerolog"
)

// ReflogEntry records one move of HEAD.
type ReflogEntry struct {
	Time   time.Time `json:"ts"`
	Old    string    `json:"old,omitempty"`
	New    string    `json:"new"`
	Reason string    `json:"reason"`
}

// CommitLog manages a channel's commit DAG and its HEAD pointer. HEAD is a
// single-line file holding the base32 CID of the head commit; an empty HEAD
// means the channel has no history yet.
type CommitLog struct {
	headPath   string
	reflogPath string
	store      *ObjectStore
	cache      *CommitCache
	log        zerolog.Logger
}

// NewCommitLog creates a CommitLog that reads/writes HEAD from headPath and
// records head moves in reflogPath.
func NewCommitLog(headPath, reflogPath string, store *ObjectStore, cache *CommitCache, log zerolog.Logger) *CommitLog {
	return &CommitLog{
		headPath:   headPath,
		reflogPath: reflogPath,
		store:      store,
		cache:      cache,
		log:        log,
	}
}

// Head returns the CID of the current HEAD commit, or gocid.Undef if none.
// A missing HEAD file is reported as an error wrapping os.ErrNotExist.
func (cl *CommitLog) Head() (gocid.Cid, error) {
	data, err := os.ReadFile(cl.headPath)
	if err != nil {
		return gocid.Undef, fmt.Errorf("read HEAD: %w", err)
	}
	s := strings.TrimSpace(string(data))
	if s == "" {
		return gocid.Undef, nil
	}
	c, err := ParseCID(s)
	if err != nil {
		return gocid.Undef, fmt.Errorf("decode HEAD: %w", err)
	}
	return c, nil
}

// InitHead writes an empty HEAD.
func (cl *CommitLog) InitHead() error {
	if err := SafeWrite(cl.headPath, nil, 0644); err != nil {
		return fmt.Errorf("write HEAD: %w", err)
	}
	return nil
}

// SetHead atomically points HEAD at next. The commit must already be stored.
func (cl *CommitLog) SetHead(prev, next gocid.Cid, reason string) error {
	encoded := CIDToFilename(next)
	if err := SafeWrite(cl.headPath, []byte(encoded+"\n"), 0644); err != nil {
		return fmt.Errorf("write HEAD: %w", err)
	}

	entry := ReflogEntry{Time: time.Now().UTC(), New: encoded, Reason: reason}
	if prev.Defined() {
		entry.Old = CIDToFilename(prev)
	}
	data, err := json.Marshal(entry)
	if err == nil {
		err = SafeAppend(cl.reflogPath, append(data, '\n'))
	}
	if err != nil {
		// HEAD already moved; the reflog is diagnostic only.
		cl.log.Warn().Err(err).Str("head", encoded).Msg("reflog append failed")
	}
	return nil
}

// Reflog returns the recorded head moves, oldest first.
func (cl *CommitLog) Reflog() ([]ReflogEntry, error) {
	data, err := os.ReadFile(cl.reflogPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read reflog: %w", err)
	}
	var entries []ReflogEntry
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		var e ReflogEntry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue // torn last line after a crash
		}
		entries = append(entries, e)
	}
	return entries, scanner.Err()
}

// Put serializes and stores a commit, returning its CID.
func (cl *CommitLog) Put(commit *CommitObject) (gocid.Cid, error) {
	if err := commit.Validate(); err != nil {
		return gocid.Undef, err
	}
	data, err := EncodeCommit(commit)
	if err != nil {
		return gocid.Undef, err
	}
	c, err := cl.store.Put(data)
	if err != nil {
		return gocid.Undef, fmt.Errorf("store commit: %w", err)
	}
	cl.cache.Set(c, data)
	return c, nil
}

// PutRaw stores canonical commit bytes received from a peer under c,
// verifying the id. It reports whether the object was new.
func (cl *CommitLog) PutRaw(c gocid.Cid, data []byte) (bool, error) {
	added, err := cl.store.PutWithCID(c, data)
	if err != nil {
		return false, err
	}
	cl.cache.Set(c, data)
	return added, nil
}

// Raw returns the canonical bytes of a commit.
func (cl *CommitLog) Raw(c gocid.Cid) ([]byte, error) {
	if data, ok := cl.cache.Get(c); ok {
		return data, nil
	}
	data, err := cl.store.Get(c)
	if err != nil {
		return nil, err
	}
	cl.cache.Set(c, data)
	return data, nil
}

// Commit reads and decodes a commit by CID.
func (cl *CommitLog) Commit(c gocid.Cid) (*CommitObject, error) {
	data, err := cl.Raw(c)
	if err != nil {
		return nil, err
	}
	commit, err := DecodeCommit(data)
	if err != nil {
		return nil, fmt.Errorf("commit %s: %w", CIDToFilename(c), err)
	}
	return commit, nil
}

// Has reports whether the commit is stored locally.
func (cl *CommitLog) Has(c gocid.Cid) bool {
	return cl.store.Has(c)
}
