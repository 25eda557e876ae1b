package peersync

import (
	"os"
	"testing"

	gocid "github.com/ipfs/go-cid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPack_RoundTrip(t *testing.T) {
	tr := NewLocalTransport()
	a := newPeer(t, tr, "a")
	a.post(t, "general", "m1", 1)
	a.post(t, "general", "m2", 2)
	repo := a.channel(t, "general")

	objs, err := BuildPack(repo, []gocid.Cid{a.head(t, "general")}, nil)
	require.NoError(t, err)
	require.Len(t, objs, 2)

	decoded, err := DecodePack(EncodePack(objs))
	require.NoError(t, err)
	require.Len(t, decoded, 2)
	for i := range objs {
		assert.True(t, objs[i].CID.Equals(decoded[i].CID))
		assert.Equal(t, objs[i].Data, decoded[i].Data)
	}
}

func TestPack_Empty(t *testing.T) {
	decoded, err := DecodePack(EncodePack(nil))
	require.NoError(t, err)
	assert.Empty(t, decoded)
}

func TestBuildPack_SkipsHaves(t *testing.T) {
	tr := NewLocalTransport()
	a := newPeer(t, tr, "a")
	first := a.post(t, "general", "m1", 1)
	a.post(t, "general", "m2", 2)
	a.post(t, "general", "m3", 3)
	repo := a.channel(t, "general")

	objs, err := BuildPack(repo, []gocid.Cid{a.head(t, "general")}, []gocid.Cid{first})
	require.NoError(t, err)
	assert.Len(t, objs, 2)

	unknown := mustCID(t, "never stored")
	objs, err = BuildPack(repo, []gocid.Cid{a.head(t, "general")}, []gocid.Cid{unknown})
	require.NoError(t, err)
	assert.Len(t, objs, 3)

	_, err = BuildPack(repo, []gocid.Cid{unknown}, nil)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDecodePack_Malformed(t *testing.T) {
	valid := EncodePack([]Object{{CID: mustCID(t, "x"), Data: []byte("x")}})
	raw, err := packDecoder.DecodeAll(valid, nil)
	require.NoError(t, err)

	cases := map[string][]byte{
		"not zstd":      []byte("plain bytes"),
		"bad magic":     packEncoder.EncodeAll([]byte("XXXX\x01\x00"), nil),
		"bad version":   packEncoder.EncodeAll([]byte("CHPK\x02\x00"), nil),
		"huge count":    packEncoder.EncodeAll([]byte("CHPK\x01\xff\x01"), nil),
		"truncated":     packEncoder.EncodeAll(raw[:len(raw)-1], nil),
		"trailing":      packEncoder.EncodeAll(append(append([]byte{}, raw...), 0), nil),
		"bad cid bytes": packEncoder.EncodeAll([]byte("CHPK\x01\x01\x02zz\x01x"), nil),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodePack(data)
			assert.ErrorIs(t, err, errBadPack)
		})
	}
}
