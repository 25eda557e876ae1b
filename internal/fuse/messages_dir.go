package fuse

import (
	"context"
	"fmt"
	"strings"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/systemshift/chanhist/internal/channel"
	"github.com/systemshift/chanhist/internal/message"
)

// MessagesDir lists a channel's messages oldest first. Each file holds the
// content of one message and carries the message timestamp as mtime.
type MessagesDir struct {
	fs.Inode
	repo *channel.Repository
}

var _ = (fs.NodeLookuper)((*MessagesDir)(nil))
var _ = (fs.NodeReaddirer)((*MessagesDir)(nil))
var _ = (fs.NodeGetattrer)((*MessagesDir)(nil))

var idReplacer = strings.NewReplacer("/", "_", "\x00", "_")

// messageFileName is the directory entry of the i-th message (0-based).
func messageFileName(i int, id string) string {
	return fmt.Sprintf("%06d-%s", i+1, idReplacer.Replace(id))
}

func (d *MessagesDir) path(name string) string {
	return "channels/" + d.repo.Name() + "/messages/" + name
}

func (d *MessagesDir) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = 0555
	out.Ino = stableIno(d.path(""))
	return fs.OK
}

func (d *MessagesDir) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	msgs, err := d.repo.Messages(true)
	if err != nil {
		return nil, syscall.EIO
	}
	entries := make([]fuse.DirEntry, len(msgs))
	for i, m := range msgs {
		name := messageFileName(i, m.ID)
		entries[i] = fuse.DirEntry{Name: name, Mode: syscall.S_IFREG, Ino: stableIno(d.path(name))}
	}
	return fs.NewListDirStream(entries), fs.OK
}

func (d *MessagesDir) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	var idx int
	if _, err := fmt.Sscanf(name, "%d-", &idx); err != nil || idx < 1 {
		return nil, syscall.ENOENT
	}
	i := 0
	for m, err := range d.repo.EnumerateMessages(true) {
		if err != nil {
			return nil, syscall.EIO
		}
		if i++; i < idx {
			continue
		}
		if messageFileName(idx-1, m.ID) != name {
			return nil, syscall.ENOENT
		}
		f := &MessageFile{msg: m, ino: stableIno(d.path(name))}
		return d.NewInode(ctx, f, fs.StableAttr{Mode: syscall.S_IFREG, Ino: f.ino}), fs.OK
	}
	return nil, syscall.ENOENT
}

// MessageFile is the content of one message.
type MessageFile struct {
	fs.Inode
	msg message.ChannelMessage
	ino uint64
}

var _ = (fs.NodeGetattrer)((*MessageFile)(nil))
var _ = (fs.NodeReader)((*MessageFile)(nil))
var _ = (fs.NodeOpener)((*MessageFile)(nil))

func (f *MessageFile) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = 0444
	out.Size = uint64(len(f.msg.Content))
	out.Ino = f.ino
	if f.msg.Timestamp > 0 {
		sec := uint64(f.msg.Timestamp / 1000)
		out.Mtime, out.Ctime = sec, sec
	}
	return fs.OK
}

func (f *MessageFile) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	return nil, fuse.FOPEN_KEEP_CACHE, fs.OK
}

func (f *MessageFile) Read(ctx context.Context, fh fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	return readAt(f.msg.Content, dest, off), fs.OK
}
