package dag

import (
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommitID_DependsOnLineage(t *testing.T) {
	cl := newTestLog(t, nil)
	root := putMessage(t, cl, CidUndef, 1, "root")
	other := putMessage(t, cl, CidUndef, 1, "other")

	onRoot := putMessage(t, cl, root, 2, "same body")
	onOther := putMessage(t, cl, other, 2, "same body")
	assert.NotEqual(t, onRoot, onOther)

	again := putMessage(t, cl, root, 2, "same body")
	assert.Equal(t, onRoot, again, "identical content and parent must give the identical id")
}

func TestNewMergeCommit_Symmetric(t *testing.T) {
	cl := newTestLog(t, nil)
	a := putMessage(t, cl, CidUndef, 10, "a")
	b := putMessage(t, cl, CidUndef, 20, "b")

	ab, err := EncodeCommit(NewMergeCommit(a, b, 10, 20))
	require.NoError(t, err)
	ba, err := EncodeCommit(NewMergeCommit(b, a, 20, 10))
	require.NoError(t, err)
	assert.Equal(t, string(ab), string(ba))

	m := NewMergeCommit(a, b, 10, 20)
	assert.True(t, m.IsMerge())
	assert.Equal(t, int64(20), m.Timestamp)
}

func TestCommitObject_Validate(t *testing.T) {
	cl := newTestLog(t, nil)
	a := CIDToFilename(putMessage(t, cl, CidUndef, 1, "a"))
	b := CIDToFilename(putMessage(t, cl, CidUndef, 2, "b"))

	cases := map[string]*CommitObject{
		"bad version":        {V: 2, Message: []byte("x")},
		"no message":         {V: 1},
		"merge with message": {V: 1, Parents: []string{a, b}, Message: []byte("x")},
		"self merge":         {V: 1, Parents: []string{a, a}},
		"three parents":      {V: 1, Parents: []string{a, b, a}},
		"bad parent":         {V: 1, Parents: []string{"not-a-cid"}, Message: []byte("x")},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, c.Validate(), ErrInvalidCommit)
		})
	}

	assert.NoError(t, (&CommitObject{V: 1, Parents: []string{a, b}}).Validate())
	assert.NoError(t, (&CommitObject{V: 1, Message: []byte("x")}).Validate())
}

func TestDecodeCommit_RoundTrip(t *testing.T) {
	in := NewMessageCommit(CidUndef, 1700000000000, []byte{0x0a, 0x01, 0x61})
	data, err := EncodeCommit(in)
	require.NoError(t, err)

	out, err := DecodeCommit(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDecodeCommit_Garbage(t *testing.T) {
	_, err := DecodeCommit([]byte("{not json"))
	assert.ErrorIs(t, err, ErrInvalidCommit)
}

func TestDecodeCommit_RejectsNonCanonical(t *testing.T) {
	in := NewMessageCommit(CidUndef, 5, []byte{0x0a, 0x01, 0x61})
	canonical, err := EncodeCommit(in)
	require.NoError(t, err)

	withExtraKey, err := CanonicalJSON(map[string]interface{}{
		"v":         1,
		"junk":      "zzz",
		"timestamp": 5,
		"message":   []byte{0x0a, 0x01, 0x61},
	})
	require.NoError(t, err)
	structOrder, err := json.Marshal(in)
	require.NoError(t, err)

	cases := map[string][]byte{
		"unknown key":         withExtraKey,
		"unsorted keys":       structOrder,
		"trailing whitespace": append(append([]byte{}, canonical...), '\n'),
		"empty parents":       []byte(`{"message":"CgFh","parents":[],"timestamp":5,"v":1}`),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeCommit(data)
			assert.ErrorIs(t, err, ErrInvalidCommit)
		})
	}
}
