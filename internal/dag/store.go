package dag

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	gocid "github.com/ipfs/go-cid"
	"github.com/klauspost/compress/zlib"
	"github.com/multiformats/go-multibase"
	"github.com/multiformats/go-multihash"
)

// CidUndef is the undefined/zero CID value, exported for use by other packages.
var CidUndef = gocid.Undef

// ErrCIDMismatch is returned when an object's content does not hash to the
// id it was offered under.
var ErrCIDMismatch = errors.New("object content does not match its id")

// ObjectStore manages CID-addressed immutable objects on disk. Objects are
// stored zlib-compressed, one file per object; the id is always computed
// over the uncompressed bytes.
type ObjectStore struct {
	dir string // path to objects/ directory
}

// NewObjectStore creates an ObjectStore at the given directory.
func NewObjectStore(dir string) (*ObjectStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create objects dir: %w", err)
	}
	return &ObjectStore{dir: dir}, nil
}

// ComputeCID computes a CIDv1 (dag-json codec, SHA2-256) for the given data.
func ComputeCID(data []byte) (gocid.Cid, error) {
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return gocid.Undef, fmt.Errorf("multihash: %w", err)
	}
	return gocid.NewCidV1(gocid.DagJSON, mh), nil
}

// CIDToFilename returns the base32lower encoding of a CID for use as a
// filename. The same string is the textual commit id used on the wire.
func CIDToFilename(c gocid.Cid) string {
	encoded, _ := multibase.Encode(multibase.Base32, c.Bytes())
	return encoded
}

// ParseCID decodes a multibase-encoded CID string.
func ParseCID(s string) (gocid.Cid, error) {
	_, cidBytes, err := multibase.Decode(s)
	if err != nil {
		return gocid.Undef, fmt.Errorf("decode CID %q: %w", s, err)
	}
	return gocid.Cast(cidBytes)
}

func (s *ObjectStore) path(c gocid.Cid) string {
	return filepath.Join(s.dir, CIDToFilename(c))
}

// Put writes data to the object store, returning the CID.
// If the object already exists, this is a no-op.
func (s *ObjectStore) Put(data []byte) (gocid.Cid, error) {
	c, err := ComputeCID(data)
	if err != nil {
		return gocid.Undef, err
	}
	if _, err := s.write(c, data); err != nil {
		return gocid.Undef, err
	}
	return c, nil
}

// PutWithCID stores data that a peer claims hashes to c. It reports whether
// the object was newly written.
func (s *ObjectStore) PutWithCID(c gocid.Cid, data []byte) (bool, error) {
	got, err := ComputeCID(data)
	if err != nil {
		return false, err
	}
	if !got.Equals(c) {
		return false, fmt.Errorf("%w: %s", ErrCIDMismatch, c)
	}
	return s.write(c, data)
}

func (s *ObjectStore) write(c gocid.Cid, data []byte) (bool, error) {
	path := s.path(c)
	if _, err := os.Stat(path); err == nil {
		return false, nil // already exists
	}

	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return false, fmt.Errorf("compress object: %w", err)
	}
	if err := zw.Close(); err != nil {
		return false, fmt.Errorf("compress object: %w", err)
	}
	if err := SafeWrite(path, buf.Bytes(), 0444); err != nil {
		return false, fmt.Errorf("write object: %w", err)
	}
	return true, nil
}

// Get reads an object by CID. A missing object yields an error wrapping
// os.ErrNotExist.
func (s *ObjectStore) Get(c gocid.Cid) ([]byte, error) {
	f, err := os.Open(s.path(c))
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", c, err)
	}
	defer f.Close()

	zr, err := zlib.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("inflate object %s: %w", c, err)
	}
	defer zr.Close()

	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("inflate object %s: %w", c, err)
	}
	return data, nil
}

// Has checks if an object exists.
func (s *ObjectStore) Has(c gocid.Cid) bool {
	_, err := os.Stat(s.path(c))
	return err == nil
}
