// Package peersync reconciles channel histories between replicas: a
// three-way merge over the commit DAG, the pack format used to ship
// commits, and the HTTP transport and server that carry them.
package peersync

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	gocid "github.com/ipfs/go-cid"
	"github.com/rs/zerolog"

	"github.com/systemshift/chanhist/internal/channel"
	"github.com/systemshift/chanhist/internal/dag"
	"github.com/systemshift/chanhist/internal/message"
	"github.com/systemshift/chanhist/internal/metrics"
)

var (
	// ErrSyncUnavailable wraps transport failures and cancellation. Local
	// state is unchanged and the call may be retried.
	ErrSyncUnavailable = errors.New("sync unavailable")

	// ErrCorruptRemoteHistory marks a fetched fragment that failed
	// validation. Nothing from it was stored.
	ErrCorruptRemoteHistory = errors.New("corrupt remote history")
)

// Transport reaches the history server of a peer.
type Transport interface {
	// QueryRemoteHead returns the peer's head for channel, or gocid.Undef
	// when the peer has no history for it.
	QueryRemoteHead(ctx context.Context, addr, channel string) (gocid.Cid, error)

	// FetchRemoteObjects returns a pack holding every commit reachable from
	// wants and not from haves.
	FetchRemoteObjects(ctx context.Context, addr, channel string, wants, haves []gocid.Cid) ([]byte, error)
}

// Result describes one completed synchronization.
type Result struct {
	Head      gocid.Cid // local head afterwards
	Remote    gocid.Cid // remote head that was reconciled
	Outcome   string    // one of the metrics.Outcome* values
	Fetched   int       // objects newly stored
	MergeBase gocid.Cid // set for merges; Undef when the histories share no root
}

// Synchronizer reconciles local repositories with remote peers.
type Synchronizer struct {
	transport Transport
	timeout   time.Duration
	log       zerolog.Logger
	metrics   metrics.Recorder
}

// NewSynchronizer returns a Synchronizer using t. A positive timeout bounds
// each call.
func NewSynchronizer(t Transport, timeout time.Duration, log zerolog.Logger, rec metrics.Recorder) *Synchronizer {
	if rec == nil {
		rec = metrics.Noop()
	}
	return &Synchronizer{
		transport: t,
		timeout:   timeout,
		log:       log.With().Str("component", "sync").Logger(),
		metrics:   rec,
	}
}

// Synchronize reconciles repo with the peer at addr and returns the new
// local head.
func (s *Synchronizer) Synchronize(ctx context.Context, repo *channel.Repository, addr string) (gocid.Cid, error) {
	res, err := s.Sync(ctx, repo, addr)
	return res.Head, err
}

// Sync is Synchronize with a detailed result.
func (s *Synchronizer) Sync(ctx context.Context, repo *channel.Repository, addr string) (Result, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	log := s.log.With().Str("channel", repo.Name()).Str("peer", addr).Logger()

	start := time.Now()
	res, err := s.sync(ctx, repo, addr)
	outcome := res.Outcome
	if err != nil {
		outcome = metrics.OutcomeError
		log.Warn().Err(err).Msg("sync failed")
	} else {
		log.Debug().
			Str("outcome", outcome).
			Int("fetched", res.Fetched).
			Str("head", cidString(res.Head)).
			Msg("sync complete")
	}
	s.metrics.ObserveSync(outcome, time.Since(start))
	s.metrics.AddObjectsFetched(res.Fetched)
	return res, err
}

func (s *Synchronizer) sync(ctx context.Context, repo *channel.Repository, addr string) (Result, error) {
	remote, err := s.transport.QueryRemoteHead(ctx, addr, repo.Name())
	if err != nil {
		return Result{}, unavailable("query remote head", err)
	}
	if !remote.Defined() {
		head, _ := repo.TopOfTree()
		return Result{Head: head, Outcome: metrics.OutcomeNoop}, nil
	}

	var fragment []Object
	if !repo.HasCommit(remote) {
		data, err := s.transport.FetchRemoteObjects(ctx, addr, repo.Name(), []gocid.Cid{remote}, haves(repo, addr))
		if err != nil {
			return Result{}, unavailable("fetch objects", err)
		}
		objs, err := DecodePack(data)
		if err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrCorruptRemoteHistory, err)
		}
		fragment, err = validateFragment(repo, remote, objs)
		if err != nil {
			return Result{}, err
		}
	}

	res := Result{Remote: remote}
	err = repo.Mutate(ctx, func(w *channel.Writer) error {
		for _, o := range fragment {
			added, err := w.StoreObject(o.CID, o.Data)
			if err != nil {
				return err
			}
			if added {
				res.Fetched++
			}
		}
		if err := reconcile(w, remote, addr, &res); err != nil {
			return err
		}
		res.Head = w.Head()
		if err := w.SetRemoteRef(addr, remote); err != nil {
			s.log.Warn().Err(err).Str("peer", addr).Msg("remote ref not recorded")
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, unavailable("apply", err)
		}
		return Result{}, err
	}
	return res, nil
}

// reconcile moves the head of w to include remote. The head is read here,
// under the repository lock, so a concurrent sync that advanced it first
// is merged against rather than overwritten.
func reconcile(w *channel.Writer, remote gocid.Cid, addr string, res *Result) error {
	local := w.Head()
	if !local.Defined() {
		res.Outcome = metrics.OutcomeFastForward
		return w.Advance(remote, "fast-forward from "+addr)
	}
	if local.Equals(remote) {
		res.Outcome = metrics.OutcomeNoop
		return nil
	}

	behind, err := dag.IsAncestor(w, remote, local)
	if err != nil {
		return err
	}
	if behind {
		res.Outcome = metrics.OutcomeNoop
		return nil
	}
	ahead, err := dag.IsAncestor(w, local, remote)
	if err != nil {
		return err
	}
	if ahead {
		res.Outcome = metrics.OutcomeFastForward
		return w.Advance(remote, "fast-forward from "+addr)
	}

	// Unrelated roots still merge.
	base, err := dag.MergeBase(w, local, remote)
	if err != nil {
		return err
	}
	lc, err := w.Commit(local)
	if err != nil {
		return err
	}
	rc, err := w.Commit(remote)
	if err != nil {
		return err
	}
	merge, err := w.WriteCommit(dag.NewMergeCommit(local, remote, lc.Timestamp, rc.Timestamp))
	if err != nil {
		return err
	}
	res.Outcome = metrics.OutcomeMerge
	res.MergeBase = base
	return w.Advance(merge, "merge with "+addr)
}

// haves lists the local commits the peer is likely to share with us.
func haves(repo *channel.Repository, addr string) []gocid.Cid {
	var out []gocid.Cid
	if head, ok := repo.TopOfTree(); ok {
		out = append(out, head)
	}
	if ref, ok, err := repo.RemoteRef(addr); err == nil && ok && repo.HasCommit(ref) {
		if len(out) == 0 || !out[0].Equals(ref) {
			out = append(out, ref)
		}
	}
	return out
}

// localStore resolves commits that are already stored.
type localStore interface {
	HasCommit(c gocid.Cid) bool
	Commit(c gocid.Cid) (*dag.CommitObject, error)
}

// validateFragment checks a fetched pack before anything is stored and
// returns the objects reachable from head, parents before children.
func validateFragment(local localStore, head gocid.Cid, objs []Object) ([]Object, error) {
	type node struct {
		obj     Object
		commit  *dag.CommitObject
		parents []gocid.Cid
	}
	nodes := make(map[gocid.Cid]*node, len(objs))
	for _, o := range objs {
		key := cidString(o.CID)
		got, err := dag.ComputeCID(o.Data)
		if err != nil || !got.Equals(o.CID) {
			return nil, corrupt("object %s does not match its id", key)
		}
		if _, dup := nodes[o.CID]; dup {
			continue
		}
		commit, err := dag.DecodeCommit(o.Data)
		if err != nil {
			return nil, corrupt("object %s: %v", key, err)
		}
		if !commit.IsMerge() {
			m, err := message.Decode(commit.Message)
			if err != nil {
				return nil, corrupt("object %s: %v", key, err)
			}
			if err := m.Validate(); err != nil {
				return nil, corrupt("object %s: %v", key, err)
			}
			if commit.Timestamp != m.Timestamp {
				return nil, corrupt("object %s: timestamp %d differs from message timestamp %d", key, commit.Timestamp, m.Timestamp)
			}
		}
		parents, err := commit.ParentCIDs()
		if err != nil {
			return nil, corrupt("object %s: %v", key, err)
		}
		for _, p := range parents {
			if p.Equals(o.CID) {
				return nil, corrupt("object %s lists itself as parent", key)
			}
		}
		nodes[o.CID] = &node{obj: o, commit: commit, parents: parents}
	}
	for c, n := range nodes {
		latest := int64(math.MinInt64)
		for _, p := range n.parents {
			if pn, ok := nodes[p]; ok {
				latest = max(latest, pn.commit.Timestamp)
				continue
			}
			if !local.HasCommit(p) {
				return nil, corrupt("object %s: parent %s missing", cidString(c), cidString(p))
			}
			pc, err := local.Commit(p)
			if err != nil {
				return nil, corrupt("object %s: parent %s: %v", cidString(c), cidString(p), err)
			}
			latest = max(latest, pc.Timestamp)
		}
		if n.commit.IsMerge() && n.commit.Timestamp != latest {
			return nil, corrupt("object %s: merge timestamp %d is not the latest parent timestamp %d", cidString(c), n.commit.Timestamp, latest)
		}
	}
	if _, ok := nodes[head]; !ok {
		return nil, corrupt("remote head %s not in pack", cidString(head))
	}

	// Iterative post-order DFS from head; grey nodes are on the stack.
	const (
		white = iota
		grey
		black
	)
	color := make(map[gocid.Cid]int, len(nodes))
	ordered := make([]Object, 0, len(nodes))
	type frame struct {
		c    gocid.Cid
		next int
	}
	stack := []frame{{c: head}}
	color[head] = grey
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		n := nodes[top.c]
		if top.next < len(n.parents) {
			p := n.parents[top.next]
			top.next++
			if _, inPack := nodes[p]; !inPack {
				continue
			}
			switch color[p] {
			case grey:
				return nil, corrupt("cycle through %s", cidString(p))
			case white:
				color[p] = grey
				stack = append(stack, frame{c: p})
			}
			continue
		}
		color[top.c] = black
		ordered = append(ordered, n.obj)
		stack = stack[:len(stack)-1]
	}
	return ordered, nil
}

func unavailable(what string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrSyncUnavailable, what, err)
}

func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorruptRemoteHistory, fmt.Sprintf(format, args...))
}

func cidString(c gocid.Cid) string {
	if !c.Defined() {
		return ""
	}
	return dag.CIDToFilename(c)
}
