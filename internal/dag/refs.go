package dag

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	gocid "github.com/ipfs/go-cid"
)

// RefStore manages named CID pointers as files. Each ref is a file whose
// content is the base32 CID. It holds the remote-tracking refs of a
// channel: the last head fetched from each peer.
type RefStore struct {
	dir string
}

// NewRefStore creates a RefStore at the given directory.
func NewRefStore(dir string) (*RefStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create refs dir: %w", err)
	}
	return &RefStore{dir: dir}, nil
}

// Peer addresses contain ':' and may contain '/'.
var refNameReplacer = strings.NewReplacer(":", "__", "/", "%2F")
var refNameRestorer = strings.NewReplacer("__", ":", "%2F", "/")

func refFilename(name string) string {
	return refNameReplacer.Replace(name)
}

// Set writes a ref mapping name -> c.
func (r *RefStore) Set(name string, c gocid.Cid) error {
	path := filepath.Join(r.dir, refFilename(name))
	if err := SafeWrite(path, []byte(CIDToFilename(c)+"\n"), 0644); err != nil {
		return fmt.Errorf("write ref %s: %w", name, err)
	}
	return nil
}

// Get resolves a ref. ok is false when the ref does not exist.
func (r *RefStore) Get(name string) (c gocid.Cid, ok bool, err error) {
	data, err := os.ReadFile(filepath.Join(r.dir, refFilename(name)))
	if os.IsNotExist(err) {
		return gocid.Undef, false, nil
	}
	if err != nil {
		return gocid.Undef, false, fmt.Errorf("read ref %s: %w", name, err)
	}
	c, err = ParseCID(strings.TrimSpace(string(data)))
	if err != nil {
		return gocid.Undef, false, fmt.Errorf("ref %s: %w", name, err)
	}
	return c, true, nil
}

// List returns all ref names, sorted.
func (r *RefStore) List() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("list refs: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), tempPrefix) {
			continue
		}
		names = append(names, refNameRestorer.Replace(e.Name()))
	}
	sort.Strings(names)
	return names, nil
}
