package dag

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefStore_SetGetList(t *testing.T) {
	refs, err := NewRefStore(filepath.Join(t.TempDir(), "refs", "remotes"))
	require.NoError(t, err)

	_, ok, err := refs.Get("abc.onion:5002")
	require.NoError(t, err)
	assert.False(t, ok)

	c, err := ComputeCID([]byte("head"))
	require.NoError(t, err)
	require.NoError(t, refs.Set("abc.onion:5002", c))
	require.NoError(t, refs.Set("http://peer/x", c))

	got, ok, err := refs.Get("abc.onion:5002")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, c.Equals(got))

	names, err := refs.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"abc.onion:5002", "http://peer/x"}, names)
}
