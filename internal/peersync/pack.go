package peersync

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sort"

	gocid "github.com/ipfs/go-cid"
	"github.com/klauspost/compress/zstd"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/systemshift/chanhist/internal/dag"
)

// A pack is a zstd frame holding:
//
//	"CHPK" | version byte | uvarint count | count × (bytes cid, bytes data)
//
// where bytes is a uvarint length followed by that many bytes.
const (
	packMagic   = "CHPK"
	packVersion = 1

	// maxPackSize bounds the decompressed size of a pack.
	maxPackSize = 256 << 20
)

var errBadPack = errors.New("bad pack")

var (
	packEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	packDecoder, _ = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxPackSize))
)

// Object is one stored commit in transit.
type Object struct {
	CID  gocid.Cid
	Data []byte
}

// ObjectSource is the read side of a repository needed to serve a pack.
type ObjectSource interface {
	dag.CommitGetter
	HasCommit(c gocid.Cid) bool
	ReadObject(c gocid.Cid) ([]byte, error)
}

// BuildPack collects every commit reachable from wants that is not
// reachable from haves. Haves unknown to src are ignored; a want unknown to
// src is an error wrapping os.ErrNotExist.
func BuildPack(src ObjectSource, wants, haves []gocid.Cid) ([]Object, error) {
	for _, w := range wants {
		if !src.HasCommit(w) {
			return nil, fmt.Errorf("want %s: %w", dag.CIDToFilename(w), os.ErrNotExist)
		}
	}
	known := make([]gocid.Cid, 0, len(haves))
	for _, h := range haves {
		if h.Defined() && src.HasCommit(h) {
			known = append(known, h)
		}
	}
	common, err := dag.Reachable(src, known, nil)
	if err != nil {
		return nil, err
	}
	missing, err := dag.Reachable(src, wants, func(c gocid.Cid) bool {
		_, ok := common[c]
		return ok
	})
	if err != nil {
		return nil, err
	}

	objs := make([]Object, 0, len(missing))
	for c := range missing {
		data, err := src.ReadObject(c)
		if err != nil {
			return nil, err
		}
		objs = append(objs, Object{CID: c, Data: data})
	}
	sort.Slice(objs, func(i, j int) bool {
		return bytes.Compare(objs[i].CID.Bytes(), objs[j].CID.Bytes()) < 0
	})
	return objs, nil
}

// EncodePack serializes and compresses objs.
func EncodePack(objs []Object) []byte {
	size := len(packMagic) + 1 + protowire.SizeVarint(uint64(len(objs)))
	for _, o := range objs {
		size += protowire.SizeBytes(o.CID.ByteLen()) + protowire.SizeBytes(len(o.Data))
	}
	raw := make([]byte, 0, size)
	raw = append(raw, packMagic...)
	raw = append(raw, packVersion)
	raw = protowire.AppendVarint(raw, uint64(len(objs)))
	for _, o := range objs {
		raw = protowire.AppendBytes(raw, o.CID.Bytes())
		raw = protowire.AppendBytes(raw, o.Data)
	}
	return packEncoder.EncodeAll(raw, nil)
}

// DecodePack is the inverse of EncodePack. It checks framing only; object
// ids are verified by the caller.
func DecodePack(data []byte) ([]Object, error) {
	raw, err := packDecoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadPack, err)
	}
	if len(raw) < len(packMagic)+1 || string(raw[:len(packMagic)]) != packMagic {
		return nil, fmt.Errorf("%w: missing header", errBadPack)
	}
	if v := raw[len(packMagic)]; v != packVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", errBadPack, v)
	}
	raw = raw[len(packMagic)+1:]

	count, n := protowire.ConsumeVarint(raw)
	if n < 0 {
		return nil, fmt.Errorf("%w: count: %v", errBadPack, protowire.ParseError(n))
	}
	raw = raw[n:]
	// Every object takes at least two bytes.
	if count > uint64(len(raw)/2) {
		return nil, fmt.Errorf("%w: count %d exceeds payload", errBadPack, count)
	}

	objs := make([]Object, 0, count)
	for i := uint64(0); i < count; i++ {
		cidBytes, n := protowire.ConsumeBytes(raw)
		if n < 0 {
			return nil, fmt.Errorf("%w: object %d id: %v", errBadPack, i, protowire.ParseError(n))
		}
		raw = raw[n:]
		c, err := gocid.Cast(cidBytes)
		if err != nil {
			return nil, fmt.Errorf("%w: object %d id: %v", errBadPack, i, err)
		}
		body, n := protowire.ConsumeBytes(raw)
		if n < 0 {
			return nil, fmt.Errorf("%w: object %d data: %v", errBadPack, i, protowire.ParseError(n))
		}
		raw = raw[n:]
		objs = append(objs, Object{CID: c, Data: bytes.Clone(body)})
	}
	if len(raw) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", errBadPack, len(raw))
	}
	return objs, nil
}
