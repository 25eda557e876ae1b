// Package channel stores the history of individual channels and keeps the
// set of channels known to a process.
package channel

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	gocid "github.com/ipfs/go-cid"
	"github.com/rs/zerolog"

	"github.com/systemshift/chanhist/internal/dag"
	"github.com/systemshift/chanhist/internal/message"
	"github.com/systemshift/chanhist/internal/metrics"
)

const (
	headFile   = "HEAD"
	objectsDir = "objects"
	remotesDir = "refs/remotes"
	reflogFile = "logs/HEAD"
)

// Options carries the collaborators shared by every repository of a process.
type Options struct {
	Logger  zerolog.Logger
	Cache   *dag.CommitCache
	Metrics metrics.Recorder
}

func (o Options) recorder() metrics.Recorder {
	if o.Metrics == nil {
		return metrics.Noop()
	}
	return o.Metrics
}

// Repository is the on-disk history of one channel: an immutable commit DAG
// plus a HEAD pointer naming its newest commit.
//
// Mutations are serialized by mu. The head is published through an atomic
// pointer, so readers never block and never observe a half-written head.
type Repository struct {
	name    string
	path    string
	commits *dag.CommitLog
	remotes *dag.RefStore
	log     zerolog.Logger
	metrics metrics.Recorder

	mu      sync.Mutex
	head    atomic.Pointer[gocid.Cid]
	removed atomic.Bool

	// Index of the history reachable from head: message ids for duplicate
	// detection and commit ids for incremental updates.
	idxMu     sync.RWMutex
	ids       map[string]struct{}
	reachable map[gocid.Cid]struct{}
}

// Open opens the channel repository stored at path. It fails with
// ErrNotFound unless path holds an object store and a readable HEAD.
func Open(path string, opts Options) (*Repository, error) {
	for _, want := range []struct {
		path string
		dir  bool
	}{
		{path, true},
		{filepath.Join(path, objectsDir), true},
		{filepath.Join(path, headFile), false},
	} {
		info, err := os.Stat(want.path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
		}
		if info.IsDir() != want.dir {
			return nil, fmt.Errorf("%w: unexpected file type at %s", ErrNotFound, want.path)
		}
	}

	r, err := newRepository(path, opts)
	if err != nil {
		return nil, err
	}
	head, err := r.commits.Head()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	if head.Defined() && !r.commits.Has(head) {
		return nil, fmt.Errorf("%w: HEAD %s is not stored", ErrNotFound, dag.CIDToFilename(head))
	}
	p, err := r.collect(head)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	r.apply(p)
	r.head.Store(&head)
	r.log.Debug().Int("messages", len(r.ids)).Msg("repository opened")
	return r, nil
}

// Create initializes an empty channel repository at path. It fails with
// ErrAlreadyExists when path already holds a HEAD.
func Create(path string, opts Options) (*Repository, error) {
	if _, err := os.Stat(filepath.Join(path, headFile)); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, path)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("stat HEAD: %w", err)
	}

	for _, dir := range []string{
		path,
		filepath.Join(path, objectsDir),
		filepath.Join(path, remotesDir),
		filepath.Dir(filepath.Join(path, reflogFile)),
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create dir %s: %w", dir, err)
		}
	}

	r, err := newRepository(path, opts)
	if err != nil {
		return nil, err
	}
	if err := r.commits.InitHead(); err != nil {
		return nil, err
	}
	undef := gocid.Undef
	r.head.Store(&undef)
	r.log.Info().Msg("repository created")
	return r, nil
}

func newRepository(path string, opts Options) (*Repository, error) {
	name := filepath.Base(path)
	store, err := dag.NewObjectStore(filepath.Join(path, objectsDir))
	if err != nil {
		return nil, err
	}
	remotes, err := dag.NewRefStore(filepath.Join(path, remotesDir))
	if err != nil {
		return nil, err
	}
	log := opts.Logger.With().Str("channel", name).Logger()
	return &Repository{
		name: name,
		path: path,
		commits: dag.NewCommitLog(
			filepath.Join(path, headFile),
			filepath.Join(path, reflogFile),
			store, opts.Cache, log,
		),
		remotes:   remotes,
		log:       log,
		metrics:   opts.recorder(),
		ids:       make(map[string]struct{}),
		reachable: make(map[gocid.Cid]struct{}),
	}, nil
}

// pendingIndex is history newly reachable from a prospective head.
type pendingIndex struct {
	commits map[gocid.Cid]*dag.CommitObject
	ids     []string
}

// collect decodes everything reachable from head that is not indexed yet.
func (r *Repository) collect(head gocid.Cid) (pendingIndex, error) {
	commits, err := dag.Reachable(r.commits, []gocid.Cid{head}, r.isIndexed)
	if err != nil {
		return pendingIndex{}, err
	}
	p := pendingIndex{commits: commits, ids: make([]string, 0, len(commits))}
	for c, commit := range commits {
		if commit.IsMerge() {
			continue
		}
		m, err := message.Decode(commit.Message)
		if err != nil {
			return pendingIndex{}, fmt.Errorf("commit %s: %w", dag.CIDToFilename(c), err)
		}
		p.ids = append(p.ids, m.ID)
	}
	return p, nil
}

func (r *Repository) apply(p pendingIndex) {
	r.idxMu.Lock()
	defer r.idxMu.Unlock()
	for c := range p.commits {
		r.reachable[c] = struct{}{}
	}
	for _, id := range p.ids {
		r.ids[id] = struct{}{}
	}
}

func (r *Repository) isIndexed(c gocid.Cid) bool {
	r.idxMu.RLock()
	defer r.idxMu.RUnlock()
	_, ok := r.reachable[c]
	return ok
}

// Name returns the channel name, the base name of the repository directory.
func (r *Repository) Name() string { return r.name }

// Path returns the repository directory.
func (r *Repository) Path() string { return r.path }

// TopOfTree returns the current head commit. ok is false for an empty
// channel.
func (r *Repository) TopOfTree() (c gocid.Cid, ok bool) {
	p := r.head.Load()
	if p == nil || !p.Defined() {
		return gocid.Undef, false
	}
	return *p, true
}

// HasMessage reports whether a message id is part of the history.
func (r *Repository) HasMessage(id string) bool {
	r.idxMu.RLock()
	defer r.idxMu.RUnlock()
	_, ok := r.ids[id]
	return ok
}

func (r *Repository) checkOpen() error {
	if r.removed.Load() {
		return fmt.Errorf("%w: %s", ErrChannelNotFound, r.name)
	}
	return nil
}

// AppendMessage commits m on top of the current head and advances the head
// to the new commit.
func (r *Repository) AppendMessage(ctx context.Context, m message.ChannelMessage) (gocid.Cid, error) {
	if err := ctx.Err(); err != nil {
		return gocid.Undef, err
	}
	if err := m.Validate(); err != nil {
		return gocid.Undef, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkOpen(); err != nil {
		return gocid.Undef, err
	}
	if r.HasMessage(m.ID) {
		return gocid.Undef, fmt.Errorf("%w: %s", ErrDuplicateMessage, m.ID)
	}

	prev, _ := r.TopOfTree()
	c, err := r.commits.Put(dag.NewMessageCommit(prev, m.Timestamp, message.Encode(m)))
	if err != nil {
		return gocid.Undef, fmt.Errorf("append %s: %w", m.ID, err)
	}
	if err := r.advance(prev, c, "append "+m.ID); err != nil {
		return gocid.Undef, err
	}
	r.idxMu.Lock()
	r.ids[m.ID] = struct{}{}
	r.reachable[c] = struct{}{}
	r.idxMu.Unlock()
	r.metrics.IncAppends(r.name)
	r.log.Debug().Str("id", m.ID).Str("commit", dag.CIDToFilename(c)).Msg("message appended")
	return c, nil
}

// advance persists and publishes a new head. Callers hold mu.
func (r *Repository) advance(prev, next gocid.Cid, reason string) error {
	if err := r.commits.SetHead(prev, next, reason); err != nil {
		return err
	}
	r.head.Store(&next)
	return nil
}

// EnumerateMessages returns the channel's messages in deterministic order.
// The head is captured when EnumerateMessages is called; ranging over the
// result again replays the same history.
//
// Newest-first yields a commit once every one of its children has been
// yielded, preferring the greatest (timestamp, commit id); oldest-first is
// the mirror image. Merge commits carry no message and are skipped, and a
// message id already yielded in the sequence is not yielded again.
func (r *Repository) EnumerateMessages(oldestFirst bool) iter.Seq2[message.ChannelMessage, error] {
	head, ok := r.TopOfTree()
	return func(yield func(message.ChannelMessage, error) bool) {
		if err := r.checkOpen(); err != nil {
			yield(message.ChannelMessage{}, err)
			return
		}
		if !ok {
			return
		}
		entries, err := dag.Order(r.commits, head, oldestFirst)
		if err != nil {
			yield(message.ChannelMessage{}, fmt.Errorf("walk history: %w", err))
			return
		}
		seen := make(map[string]struct{}, len(entries))
		for _, e := range entries {
			if e.Commit.IsMerge() {
				continue
			}
			m, err := message.Decode(e.Commit.Message)
			if err != nil {
				yield(message.ChannelMessage{}, fmt.Errorf("commit %s: %w", e.Key, err))
				return
			}
			if _, dup := seen[m.ID]; dup {
				continue
			}
			seen[m.ID] = struct{}{}
			if !yield(m, nil) {
				return
			}
		}
	}
}

// Messages collects EnumerateMessages into a slice.
func (r *Repository) Messages(oldestFirst bool) ([]message.ChannelMessage, error) {
	var out []message.ChannelMessage
	for m, err := range r.EnumerateMessages(oldestFirst) {
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// Commit reads a stored commit.
func (r *Repository) Commit(c gocid.Cid) (*dag.CommitObject, error) {
	return r.commits.Commit(c)
}

// HasCommit reports whether c is stored locally.
func (r *Repository) HasCommit(c gocid.Cid) bool {
	return r.commits.Has(c)
}

// ReadObject returns the canonical bytes stored under c.
func (r *Repository) ReadObject(c gocid.Cid) ([]byte, error) {
	return r.commits.Raw(c)
}

// RemoteRef returns the last head fetched from peer.
func (r *Repository) RemoteRef(peer string) (gocid.Cid, bool, error) {
	return r.remotes.Get(peer)
}

// RemotePeers lists the peers this channel has fetched from, sorted.
func (r *Repository) RemotePeers() ([]string, error) {
	if err := r.checkOpen(); err != nil {
		return nil, err
	}
	return r.remotes.List()
}

// Reflog returns the recorded head moves, oldest first.
func (r *Repository) Reflog() ([]dag.ReflogEntry, error) {
	return r.commits.Reflog()
}

// Mutate runs fn with the repository write lock held. Objects stored and
// heads advanced through the Writer are visible to readers as soon as the
// corresponding Writer call returns.
func (r *Repository) Mutate(ctx context.Context, fn func(w *Writer) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkOpen(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(&Writer{r: r})
}

// Writer is the mutation surface handed to Mutate callbacks. It is only
// valid for the duration of the callback.
type Writer struct {
	r *Repository
}

// Head returns the current head, or gocid.Undef for an empty channel.
func (w *Writer) Head() gocid.Cid {
	c, _ := w.r.TopOfTree()
	return c
}

// Commit reads a stored commit.
func (w *Writer) Commit(c gocid.Cid) (*dag.CommitObject, error) {
	return w.r.commits.Commit(c)
}

// StoreObject writes canonical commit bytes under c after verifying the
// id. Existing objects are left alone.
func (w *Writer) StoreObject(c gocid.Cid, data []byte) (bool, error) {
	return w.r.commits.PutRaw(c, data)
}

// WriteCommit stores a locally built commit.
func (w *Writer) WriteCommit(commit *dag.CommitObject) (gocid.Cid, error) {
	return w.r.commits.Put(commit)
}

// Advance moves the head to next. next and all of its ancestors must be
// stored.
func (w *Writer) Advance(next gocid.Cid, reason string) error {
	if !w.r.commits.Has(next) {
		return fmt.Errorf("advance to %s: %w", dag.CIDToFilename(next), os.ErrNotExist)
	}
	p, err := w.r.collect(next)
	if err != nil {
		return fmt.Errorf("advance to %s: %w", dag.CIDToFilename(next), err)
	}
	if err := w.r.advance(w.Head(), next, reason); err != nil {
		return err
	}
	w.r.apply(p)
	return nil
}

// SetRemoteRef records the last head fetched from peer.
func (w *Writer) SetRemoteRef(peer string, c gocid.Cid) error {
	return w.r.remotes.Set(peer, c)
}

// Remove deletes the repository from disk. Later operations fail with
// ErrChannelNotFound.
func (r *Repository) Remove() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.removed.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: %s", ErrChannelNotFound, r.name)
	}
	if err := os.RemoveAll(r.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		r.removed.Store(false)
		return fmt.Errorf("remove %s: %w", r.path, err)
	}
	r.log.Info().Msg("repository removed")
	return nil
}
