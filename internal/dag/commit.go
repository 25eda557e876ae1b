package dag

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	json "github.com/goccy/go-json"
	gocid "github.com/ipfs/go-cid"
)

// CommitVersion is the only commit layout this package writes or accepts.
const CommitVersion = 1

// ErrInvalidCommit marks a commit object that violates the commit schema.
var ErrInvalidCommit = errors.New("invalid commit")

// CommitObject is one node in a channel's history DAG. Serialized via
// CanonicalJSON; its CID covers every field, including the parent list, so
// changing either content or lineage changes the id.
//
// A message commit carries an encoded channel message and at most one
// parent. A merge commit carries no message and exactly two parents.
type CommitObject struct {
	V         int      `json:"v"`
	Parents   []string `json:"parents,omitempty"` // CIDs (base32)
	Timestamp int64    `json:"timestamp"`         // ms since epoch
	Message   []byte   `json:"message,omitempty"` // encoded message envelope
}

// NewMessageCommit builds a commit carrying an encoded message on top of
// parent, which may be CidUndef for the first message of a channel.
func NewMessageCommit(parent gocid.Cid, timestamp int64, envelope []byte) *CommitObject {
	c := &CommitObject{V: CommitVersion, Timestamp: timestamp, Message: envelope}
	if parent.Defined() {
		c.Parents = []string{CIDToFilename(parent)}
	}
	return c
}

// NewMergeCommit builds the merge of two heads. Parents are sorted and the
// timestamp is the later of the two parents', so merging the same pair of
// heads yields the same commit id on every peer.
func NewMergeCommit(a, b gocid.Cid, aTimestamp, bTimestamp int64) *CommitObject {
	parents := []string{CIDToFilename(a), CIDToFilename(b)}
	sort.Strings(parents)
	return &CommitObject{
		V:         CommitVersion,
		Parents:   parents,
		Timestamp: max(aTimestamp, bTimestamp),
	}
}

// IsMerge reports whether the commit reconciles two parents.
func (c *CommitObject) IsMerge() bool {
	return len(c.Parents) == 2 && len(c.Message) == 0
}

// ParentCIDs decodes the parent list.
func (c *CommitObject) ParentCIDs() ([]gocid.Cid, error) {
	out := make([]gocid.Cid, 0, len(c.Parents))
	for _, p := range c.Parents {
		pc, err := ParseCID(p)
		if err != nil {
			return nil, fmt.Errorf("%w: parent: %v", ErrInvalidCommit, err)
		}
		out = append(out, pc)
	}
	return out, nil
}

// Validate checks the structural rules of a commit.
func (c *CommitObject) Validate() error {
	if c.V != CommitVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrInvalidCommit, c.V)
	}
	switch len(c.Parents) {
	case 0, 1:
		if len(c.Message) == 0 {
			return fmt.Errorf("%w: message commit without message", ErrInvalidCommit)
		}
	case 2:
		if len(c.Message) != 0 {
			return fmt.Errorf("%w: merge commit carries a message", ErrInvalidCommit)
		}
		if c.Parents[0] == c.Parents[1] {
			return fmt.Errorf("%w: merge of a commit with itself", ErrInvalidCommit)
		}
	default:
		return fmt.Errorf("%w: %d parents", ErrInvalidCommit, len(c.Parents))
	}
	_, err := c.ParentCIDs()
	return err
}

// EncodeCommit returns the canonical bytes of c.
func EncodeCommit(c *CommitObject) ([]byte, error) {
	data, err := CanonicalJSON(c)
	if err != nil {
		return nil, fmt.Errorf("serialize commit: %w", err)
	}
	return data, nil
}

// DecodeCommit parses and validates commit bytes. The bytes must be exactly
// the canonical encoding of the decoded commit: unknown keys, reordered keys
// or extra whitespace are rejected, so one commit has exactly one id.
func DecodeCommit(data []byte) (*CommitObject, error) {
	var c CommitObject
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCommit, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	canonical, err := EncodeCommit(&c)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCommit, err)
	}
	if !bytes.Equal(canonical, data) {
		return nil, fmt.Errorf("%w: not in canonical form", ErrInvalidCommit)
	}
	return &c, nil
}
