package fuse

import (
	"github.com/hanwen/go-fuse/v2/fs"
	gofuse "github.com/hanwen/go-fuse/v2/fuse"

	"github.com/systemshift/chanhist/internal/channel"
)

// MountFS mounts the read-only channel view at mountpoint.
// Returns the server (call server.Wait() to block, server.Unmount() to stop).
func MountFS(mountpoint string, reg *channel.Registry, debug bool) (*gofuse.Server, error) {
	root := &RootNode{registry: reg}

	opts := &fs.Options{
		MountOptions: gofuse.MountOptions{
			FsName:        "chanhist",
			Name:          "chanhist",
			DisableXAttrs: true,
			Debug:         debug,
			Options:       []string{"ro"},
		},
	}

	server, err := fs.Mount(mountpoint, root, opts)
	if err != nil {
		return nil, err
	}
	return server, nil
}
