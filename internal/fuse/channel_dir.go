package fuse

import (
	"context"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/systemshift/chanhist/internal/channel"
	"github.com/systemshift/chanhist/internal/dag"
)

// ChannelDir is one channel: HEAD, messages/ and log/.
type ChannelDir struct {
	fs.Inode
	repo *channel.Repository
}

var _ = (fs.NodeLookuper)((*ChannelDir)(nil))
var _ = (fs.NodeReaddirer)((*ChannelDir)(nil))
var _ = (fs.NodeGetattrer)((*ChannelDir)(nil))

func (d *ChannelDir) path(name string) string {
	return "channels/" + d.repo.Name() + "/" + name
}

func (d *ChannelDir) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = 0555
	out.Ino = stableIno("channels/" + d.repo.Name())
	return fs.OK
}

func (d *ChannelDir) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	entries := []fuse.DirEntry{
		{Name: "HEAD", Mode: syscall.S_IFREG, Ino: stableIno(d.path("HEAD"))},
		{Name: "messages", Mode: syscall.S_IFDIR, Ino: stableIno(d.path("messages"))},
		{Name: "log", Mode: syscall.S_IFDIR, Ino: stableIno(d.path("log"))},
	}
	return fs.NewListDirStream(entries), fs.OK
}

func (d *ChannelDir) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	var (
		node fs.InodeEmbedder
		mode uint32
	)
	switch name {
	case "HEAD":
		node, mode = &HeadFile{repo: d.repo, ino: stableIno(d.path(name))}, syscall.S_IFREG
	case "messages":
		node, mode = &MessagesDir{repo: d.repo}, syscall.S_IFDIR
	case "log":
		node, mode = &LogDir{repo: d.repo}, syscall.S_IFDIR
	default:
		return nil, syscall.ENOENT
	}
	child := d.NewInode(ctx, node, fs.StableAttr{Mode: mode, Ino: stableIno(d.path(name))})
	return child, fs.OK
}

// HeadFile returns the head commit id.
type HeadFile struct {
	fs.Inode
	repo *channel.Repository
	ino  uint64
}

var _ = (fs.NodeGetattrer)((*HeadFile)(nil))
var _ = (fs.NodeReader)((*HeadFile)(nil))
var _ = (fs.NodeOpener)((*HeadFile)(nil))

func (f *HeadFile) headBytes() []byte {
	head, ok := f.repo.TopOfTree()
	if !ok {
		return []byte("(none)\n")
	}
	return []byte(dag.CIDToFilename(head) + "\n")
}

func (f *HeadFile) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = 0444
	out.Size = uint64(len(f.headBytes()))
	out.Ino = f.ino
	return fs.OK
}

func (f *HeadFile) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	return nil, fuse.FOPEN_DIRECT_IO, fs.OK
}

func (f *HeadFile) Read(ctx context.Context, fh fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	return readAt(f.headBytes(), dest, off), fs.OK
}
