package dag

import (
	"testing"

	gocid "github.com/ipfs/go-cid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrder_Linear(t *testing.T) {
	cl := newTestLog(t, nil)
	a := putMessage(t, cl, CidUndef, 1, "a")
	b := putMessage(t, cl, a, 2, "b")
	c := putMessage(t, cl, b, 3, "c")

	newest, err := Order(cl, c, false)
	require.NoError(t, err)
	assert.Equal(t, []gocid.Cid{c, b, a}, entryIDs(newest))

	oldest, err := Order(cl, c, true)
	require.NoError(t, err)
	assert.Equal(t, []gocid.Cid{a, b, c}, entryIDs(oldest))
}

func TestOrder_EmptyHead(t *testing.T) {
	cl := newTestLog(t, nil)
	entries, err := Order(cl, CidUndef, false)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// diamond builds r <- l, r <- q, merge(l, q).
func diamond(t *testing.T, cl *CommitLog) (r, l, q, m gocid.Cid) {
	r = putMessage(t, cl, CidUndef, 1, "r")
	l = putMessage(t, cl, r, 5, "l")
	q = putMessage(t, cl, r, 3, "q")
	m = putCommit(t, cl, NewMergeCommit(l, q, 5, 3))
	return
}

func TestOrder_Diamond(t *testing.T) {
	cl := newTestLog(t, nil)
	r, l, q, m := diamond(t, cl)

	newest, err := Order(cl, m, false)
	require.NoError(t, err)
	assert.Equal(t, []gocid.Cid{m, l, q, r}, entryIDs(newest))

	oldest, err := Order(cl, m, true)
	require.NoError(t, err)
	assert.Equal(t, []gocid.Cid{r, q, l, m}, entryIDs(oldest))
}

func TestOrder_ChildrenBeforeParentsDespiteClockSkew(t *testing.T) {
	cl := newTestLog(t, nil)
	parent := putMessage(t, cl, CidUndef, 100, "late clock")
	child := putMessage(t, cl, parent, 1, "early clock")

	newest, err := Order(cl, child, false)
	require.NoError(t, err)
	assert.Equal(t, []gocid.Cid{child, parent}, entryIDs(newest))

	oldest, err := Order(cl, child, true)
	require.NoError(t, err)
	assert.Equal(t, []gocid.Cid{parent, child}, entryIDs(oldest))
}

func TestOrder_TimestampTieBrokenByID(t *testing.T) {
	cl := newTestLog(t, nil)
	r := putMessage(t, cl, CidUndef, 1, "r")
	x := putMessage(t, cl, r, 7, "x")
	y := putMessage(t, cl, r, 7, "y")
	m := putCommit(t, cl, NewMergeCommit(x, y, 7, 7))

	first, second := x, y
	if CIDToFilename(y) > CIDToFilename(x) {
		first, second = y, x
	}
	newest, err := Order(cl, m, false)
	require.NoError(t, err)
	assert.Equal(t, []gocid.Cid{m, first, second, r}, entryIDs(newest))
}

func TestIsAncestor(t *testing.T) {
	cl := newTestLog(t, nil)
	r, l, q, m := diamond(t, cl)

	for _, tc := range []struct {
		anc, desc gocid.Cid
		want      bool
	}{
		{r, m, true},
		{l, m, true},
		{q, m, true},
		{m, r, false},
		{l, q, false},
		{m, m, true},
		{CidUndef, m, false},
	} {
		got, err := IsAncestor(cl, tc.anc, tc.desc)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}
}

func TestMergeBase(t *testing.T) {
	cl := newTestLog(t, nil)
	r, l, q, _ := diamond(t, cl)

	base, err := MergeBase(cl, l, q)
	require.NoError(t, err)
	assert.Equal(t, r, base)

	base, err = MergeBase(cl, q, l)
	require.NoError(t, err)
	assert.Equal(t, r, base)
}

func TestMergeBase_NearestAfterEarlierMerge(t *testing.T) {
	cl := newTestLog(t, nil)
	_, l, _, m := diamond(t, cl)
	left := putMessage(t, cl, m, 10, "after merge, left")
	right := putMessage(t, cl, m, 11, "after merge, right")

	base, err := MergeBase(cl, left, right)
	require.NoError(t, err)
	assert.Equal(t, m, base)

	base, err = MergeBase(cl, l, right)
	require.NoError(t, err)
	assert.Equal(t, l, base)
}

func TestMergeBase_IgnoresClockSkew(t *testing.T) {
	cl := newTestLog(t, nil)
	r := putMessage(t, cl, CidUndef, 1000, "r")
	x := putMessage(t, cl, r, 1, "x")
	p := putMessage(t, cl, x, 2, "p")
	q := putMessage(t, cl, r, 50, "q")
	b := putCommit(t, cl, NewMergeCommit(p, q, 2, 50))
	a := putMessage(t, cl, x, 3, "a")

	base, err := MergeBase(cl, a, b)
	require.NoError(t, err)
	assert.Equal(t, x, base)

	base, err = MergeBase(cl, b, a)
	require.NoError(t, err)
	assert.Equal(t, x, base)
}

func TestMergeBase_Ancestor(t *testing.T) {
	cl := newTestLog(t, nil)
	r := putMessage(t, cl, CidUndef, 1, "r")
	c := putMessage(t, cl, r, 2, "c")

	base, err := MergeBase(cl, r, c)
	require.NoError(t, err)
	assert.Equal(t, r, base)
}

func TestMergeBase_DisjointRoots(t *testing.T) {
	cl := newTestLog(t, nil)
	a := putMessage(t, cl, CidUndef, 1, "a")
	b := putMessage(t, cl, CidUndef, 2, "b")

	base, err := MergeBase(cl, a, b)
	require.NoError(t, err)
	assert.False(t, base.Defined())
}

func TestReachable_Stop(t *testing.T) {
	cl := newTestLog(t, nil)
	r, l, q, m := diamond(t, cl)

	got, err := Reachable(cl, []gocid.Cid{m}, func(c gocid.Cid) bool { return c.Equals(r) })
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Contains(t, got, l)
	assert.Contains(t, got, q)
	assert.NotContains(t, got, r)
}
