package di

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemshift/chanhist/internal/app"
)

func TestInitApp(t *testing.T) {
	root := t.TempDir()
	t.Setenv("CHANHIST_STORAGE_ROOT", root)
	t.Setenv("CHANHIST_SERVER_PORT", "6123")

	a, cleanup, err := InitApp(&app.Flags{})
	require.NoError(t, err)
	defer cleanup()

	assert.Equal(t, "127.0.0.1:6123", a.WebServer.Addr)
	assert.Equal(t, root, a.Registry.Root())
	assert.Empty(t, a.Registry.Channels())
}

func TestInitApp_BadConfig(t *testing.T) {
	t.Setenv("CHANHIST_LOGGER_LEVEL", "loud")
	_, _, err := InitApp(&app.Flags{})
	assert.Error(t, err)
}
