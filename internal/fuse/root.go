// Package fuse mounts a read-only view of every channel's history.
//
//	channels/<name>/HEAD           base32 id of the head commit
//	channels/<name>/messages/N-id  message content, oldest first
//	channels/<name>/log/N          commit N (0 = newest) as JSON
package fuse

import (
	"context"
	"hash/fnv"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/systemshift/chanhist/internal/channel"
)

// stableIno returns a stable inode number for a given path string.
func stableIno(path string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(path))
	return h.Sum64()
}

// readAt serves a read of data at off.
func readAt(data, dest []byte, off int64) fuse.ReadResult {
	if off >= int64(len(data)) {
		return fuse.ReadResultData(nil)
	}
	end := min(off+int64(len(dest)), int64(len(data)))
	return fuse.ReadResultData(data[off:end])
}

// RootNode is the mountpoint directory. Contains "channels/".
type RootNode struct {
	fs.Inode
	registry *channel.Registry
}

var _ = (fs.NodeOnAdder)((*RootNode)(nil))
var _ = (fs.NodeGetattrer)((*RootNode)(nil))

func (r *RootNode) OnAdd(ctx context.Context) {
	channelsDir := &ChannelsDir{registry: r.registry}
	channelsInode := r.NewPersistentInode(ctx, channelsDir, fs.StableAttr{
		Mode: syscall.S_IFDIR,
		Ino:  stableIno("channels"),
	})
	r.AddChild("channels", channelsInode, true)
}

func (r *RootNode) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = 0555
	out.Ino = stableIno("/")
	return fs.OK
}

// ChannelsDir lists the registered channels.
type ChannelsDir struct {
	fs.Inode
	registry *channel.Registry
}

var _ = (fs.NodeLookuper)((*ChannelsDir)(nil))
var _ = (fs.NodeReaddirer)((*ChannelsDir)(nil))
var _ = (fs.NodeGetattrer)((*ChannelsDir)(nil))

func (d *ChannelsDir) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = 0555
	out.Ino = stableIno("channels")
	return fs.OK
}

func (d *ChannelsDir) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	names := d.registry.Channels()
	entries := make([]fuse.DirEntry, len(names))
	for i, name := range names {
		entries[i] = fuse.DirEntry{
			Name: name,
			Mode: syscall.S_IFDIR,
			Ino:  stableIno("channels/" + name),
		}
	}
	return fs.NewListDirStream(entries), fs.OK
}

func (d *ChannelsDir) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	repo, err := d.registry.Channel(name)
	if err != nil {
		return nil, syscall.ENOENT
	}
	child := d.NewInode(ctx, &ChannelDir{repo: repo}, fs.StableAttr{
		Mode: syscall.S_IFDIR,
		Ino:  stableIno("channels/" + name),
	})
	return child, fs.OK
}
