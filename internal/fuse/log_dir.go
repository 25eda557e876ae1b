package fuse

import (
	"context"
	"strconv"
	"syscall"

	json "github.com/goccy/go-json"
	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/systemshift/chanhist/internal/channel"
	"github.com/systemshift/chanhist/internal/dag"
	"github.com/systemshift/chanhist/internal/message"
)

const maxLogEntries = 64

// LogDir exposes the most recent commits of a channel, merges included.
// Layout: log/0 (newest commit JSON), log/1, ...
type LogDir struct {
	fs.Inode
	repo *channel.Repository
}

var _ = (fs.NodeLookuper)((*LogDir)(nil))
var _ = (fs.NodeReaddirer)((*LogDir)(nil))
var _ = (fs.NodeGetattrer)((*LogDir)(nil))

func (d *LogDir) path(name string) string {
	return "channels/" + d.repo.Name() + "/log/" + name
}

// recent returns up to maxLogEntries commits, newest first.
func (d *LogDir) recent() ([]dag.Entry, error) {
	head, ok := d.repo.TopOfTree()
	if !ok {
		return nil, nil
	}
	entries, err := dag.Order(d.repo, head, false)
	if err != nil {
		return nil, err
	}
	if len(entries) > maxLogEntries {
		entries = entries[:maxLogEntries]
	}
	return entries, nil
}

func (d *LogDir) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = 0555
	out.Ino = stableIno(d.path(""))
	return fs.OK
}

func (d *LogDir) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	commits, err := d.recent()
	if err != nil {
		return nil, syscall.EIO
	}
	entries := make([]fuse.DirEntry, 0, len(commits))
	for i := range commits {
		name := strconv.Itoa(i)
		entries = append(entries, fuse.DirEntry{
			Name: name,
			Mode: syscall.S_IFREG,
			Ino:  stableIno(d.path(name)),
		})
	}
	return fs.NewListDirStream(entries), fs.OK
}

func (d *LogDir) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	idx, err := strconv.Atoi(name)
	if err != nil || idx < 0 || strconv.Itoa(idx) != name {
		return nil, syscall.ENOENT
	}
	commits, err := d.recent()
	if err != nil {
		return nil, syscall.EIO
	}
	if idx >= len(commits) {
		return nil, syscall.ENOENT
	}

	f := &LogEntryFile{data: renderCommit(commits[idx]), ino: stableIno(d.path(name))}
	child := d.NewInode(ctx, f, fs.StableAttr{
		Mode: syscall.S_IFREG,
		Ino:  f.ino,
	})
	return child, fs.OK
}

type logMessage struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"`
	Content   string `json:"content"`
	Signature string `json:"signature,omitempty"`
}

type logEntry struct {
	Commit    string      `json:"commit"`
	Parents   []string    `json:"parents"`
	Timestamp int64       `json:"timestamp"`
	Merge     bool        `json:"merge,omitempty"`
	Message   *logMessage `json:"message,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// renderCommit returns indented JSON for a single commit with its message
// decoded.
func renderCommit(e dag.Entry) []byte {
	le := logEntry{
		Commit:    e.Key,
		Parents:   e.Commit.Parents,
		Timestamp: e.Commit.Timestamp,
		Merge:     e.Commit.IsMerge(),
	}
	if !le.Merge {
		m, err := message.Decode(e.Commit.Message)
		if err != nil {
			le.Error = err.Error()
		} else {
			le.Message = &logMessage{ID: m.ID, Timestamp: m.Timestamp, Content: string(m.Content), Signature: m.Signature}
		}
	}
	data, _ := json.MarshalIndent(le, "", "  ")
	return append(data, '\n')
}

// LogEntryFile is a rendered commit.
type LogEntryFile struct {
	fs.Inode
	data []byte
	ino  uint64
}

var _ = (fs.NodeGetattrer)((*LogEntryFile)(nil))
var _ = (fs.NodeReader)((*LogEntryFile)(nil))
var _ = (fs.NodeOpener)((*LogEntryFile)(nil))

func (f *LogEntryFile) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = 0444
	out.Size = uint64(len(f.data))
	out.Ino = f.ino
	return fs.OK
}

func (f *LogEntryFile) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	return nil, fuse.FOPEN_KEEP_CACHE, fs.OK
}

func (f *LogEntryFile) Read(ctx context.Context, fh fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	return readAt(f.data, dest, off), fs.OK
}
