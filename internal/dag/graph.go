package dag

import (
	"container/heap"
	"fmt"

	gocid "github.com/ipfs/go-cid"
)

// CommitGetter resolves a commit id to its decoded commit.
type CommitGetter interface {
	Commit(c gocid.Cid) (*CommitObject, error)
}

// Entry is a commit together with its id, as produced by Order.
type Entry struct {
	CID    gocid.Cid
	Key    string // base32 form of CID, the ordering tie-breaker
	Commit *CommitObject
}

// Reachable returns every commit reachable from heads, following parent
// links. Traversal does not enter commits for which stop returns true.
func Reachable(g CommitGetter, heads []gocid.Cid, stop func(gocid.Cid) bool) (map[gocid.Cid]*CommitObject, error) {
	seen := make(map[gocid.Cid]*CommitObject)
	stack := make([]gocid.Cid, 0, len(heads))
	for _, h := range heads {
		if h.Defined() {
			stack = append(stack, h)
		}
	}
	for len(stack) > 0 {
		c := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := seen[c]; ok {
			continue
		}
		if stop != nil && stop(c) {
			continue
		}
		commit, err := g.Commit(c)
		if err != nil {
			return nil, err
		}
		seen[c] = commit
		parents, err := commit.ParentCIDs()
		if err != nil {
			return nil, err
		}
		for _, p := range parents {
			if _, ok := seen[p]; !ok {
				stack = append(stack, p)
			}
		}
	}
	return seen, nil
}

// IsAncestor reports whether anc is reachable from desc (or equal to it).
func IsAncestor(g CommitGetter, anc, desc gocid.Cid) (bool, error) {
	if !anc.Defined() || !desc.Defined() {
		return false, nil
	}
	found := false
	_, err := Reachable(g, []gocid.Cid{desc}, func(c gocid.Cid) bool {
		if c.Equals(anc) {
			found = true
		}
		return found
	})
	if err != nil {
		return false, err
	}
	return found, nil
}

// MergeBase returns the nearest common ancestor of a and b: a commit
// reachable from both that is not an ancestor of another such commit.
// Criss-cross histories can have several; the one with the greatest
// (timestamp, id) is returned. It returns CidUndef when the histories
// share no commit.
func MergeBase(g CommitGetter, a, b gocid.Cid) (gocid.Cid, error) {
	if !a.Defined() || !b.Defined() {
		return gocid.Undef, nil
	}
	ofA, err := Reachable(g, []gocid.Cid{a}, nil)
	if err != nil {
		return gocid.Undef, err
	}
	ofB, err := Reachable(g, []gocid.Cid{b}, nil)
	if err != nil {
		return gocid.Undef, err
	}
	common := make(map[gocid.Cid]*CommitObject)
	for c, commit := range ofB {
		if _, ok := ofA[c]; ok {
			common[c] = commit
		}
	}

	// Ancestors of common commits are common too; mark every proper one.
	dominated := make(map[gocid.Cid]bool, len(common))
	var stack []gocid.Cid
	for _, commit := range common {
		parents, err := commit.ParentCIDs()
		if err != nil {
			return gocid.Undef, err
		}
		stack = append(stack, parents...)
	}
	for len(stack) > 0 {
		c := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if dominated[c] {
			continue
		}
		dominated[c] = true
		parents, err := common[c].ParentCIDs()
		if err != nil {
			return gocid.Undef, err
		}
		stack = append(stack, parents...)
	}

	best := gocid.Undef
	var bestTS int64
	var bestKey string
	for c, commit := range common {
		if dominated[c] {
			continue
		}
		key := CIDToFilename(c)
		if !best.Defined() || commit.Timestamp > bestTS || (commit.Timestamp == bestTS && key > bestKey) {
			best, bestTS, bestKey = c, commit.Timestamp, key
		}
	}
	return best, nil
}

// Order returns every commit reachable from head in the deterministic
// history order shared by all peers holding the same DAG.
//
// Newest-first: a commit is eligible once all of its children have been
// emitted; of the eligible commits the greatest (timestamp, id) goes next.
// Oldest-first: a commit is eligible once all of its parents have been
// emitted; the smallest (timestamp, id) goes next.
func Order(g CommitGetter, head gocid.Cid, oldestFirst bool) ([]Entry, error) {
	if !head.Defined() {
		return nil, nil
	}
	nodes, err := Reachable(g, []gocid.Cid{head}, nil)
	if err != nil {
		return nil, err
	}

	parents := make(map[gocid.Cid][]gocid.Cid, len(nodes))
	children := make(map[gocid.Cid][]gocid.Cid, len(nodes))
	childCount := make(map[gocid.Cid]int, len(nodes))
	for c, commit := range nodes {
		ps, err := commit.ParentCIDs()
		if err != nil {
			return nil, err
		}
		parents[c] = ps
		for _, p := range ps {
			children[p] = append(children[p], c)
			childCount[p]++
		}
	}

	frontier := &entryHeap{newestFirst: !oldestFirst}
	pending := make(map[gocid.Cid]int, len(nodes))
	for c, commit := range nodes {
		if oldestFirst {
			pending[c] = len(parents[c])
		} else {
			pending[c] = childCount[c]
		}
		if pending[c] == 0 {
			heap.Push(frontier, Entry{CID: c, Key: CIDToFilename(c), Commit: commit})
		}
	}

	out := make([]Entry, 0, len(nodes))
	for frontier.Len() > 0 {
		e := heap.Pop(frontier).(Entry)
		out = append(out, e)

		next := parents[e.CID]
		if oldestFirst {
			next = children[e.CID]
		}
		for _, n := range next {
			pending[n]--
			if pending[n] == 0 {
				heap.Push(frontier, Entry{CID: n, Key: CIDToFilename(n), Commit: nodes[n]})
			}
		}
	}
	if len(out) != len(nodes) {
		return nil, fmt.Errorf("history graph has a cycle: ordered %d of %d commits", len(out), len(nodes))
	}
	return out, nil
}

// entryHeap orders entries by (timestamp, key); greatest first when
// newestFirst is set, smallest first otherwise.
type entryHeap struct {
	items       []Entry
	newestFirst bool
}

func (h *entryHeap) Len() int { return len(h.items) }

func (h *entryHeap) Less(i, j int) bool {
	a, b := h.items[i], h.items[j]
	var less bool
	if a.Commit.Timestamp != b.Commit.Timestamp {
		less = a.Commit.Timestamp < b.Commit.Timestamp
	} else {
		less = a.Key < b.Key
	}
	if h.newestFirst {
		// Keys are unique, so "not less" means greater here.
		return !less
	}
	return less
}

func (h *entryHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *entryHeap) Push(x any) { h.items = append(h.items, x.(Entry)) }

func (h *entryHeap) Pop() any {
	old := h.items
	n := len(old)
	e := old[n-1]
	h.items = old[:n-1]
	return e
}
