// Package identity manages the ed25519 author key used to sign channel
// messages. Public keys are published as did:key identifiers.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/multiformats/go-multibase"

	"github.com/systemshift/chanhist/internal/message"
)

// ed25519Multicodec is the multicodec prefix for Ed25519 public keys (0xED01).
var ed25519Multicodec = []byte{0xed, 0x01}

const didKeyPrefix = "did:key:"

var (
	// ErrBadSignature is returned by Verify when a signature does not match.
	ErrBadSignature = errors.New("signature does not verify")

	// ErrUnsigned is returned by Verify for a message without a signature.
	ErrUnsigned = errors.New("message is not signed")
)

// Identity holds an Ed25519 keypair and the derived DID.
type Identity struct {
	DID        string `json:"did"`
	PublicKey  string `json:"public_key"`  // base64-encoded 32 bytes
	PrivateKey string `json:"private_key"` // base64-encoded 32-byte seed
}

// Load reads the identity file at path, generating and storing a new one
// when it does not exist. created reports whether a key was generated.
func Load(path string) (id *Identity, created bool, err error) {
	data, err := os.ReadFile(path)
	if err == nil {
		var id Identity
		if err := json.Unmarshal(data, &id); err != nil {
			return nil, false, fmt.Errorf("parse identity: %w", err)
		}
		return &id, false, nil
	}
	if !os.IsNotExist(err) {
		return nil, false, fmt.Errorf("read identity: %w", err)
	}

	id, err = Generate()
	if err != nil {
		return nil, false, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, false, fmt.Errorf("create identity dir: %w", err)
	}
	data, err = json.MarshalIndent(id, "", "  ")
	if err != nil {
		return nil, false, fmt.Errorf("marshal identity: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return nil, false, fmt.Errorf("write identity: %w", err)
	}
	return id, true, nil
}

// Generate creates a fresh keypair.
func Generate() (*Identity, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return FromSeed(priv.Seed())
}

// FromSeed derives an identity from a 32-byte ed25519 seed.
func FromSeed(seed []byte) (*Identity, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed length %d, want %d", len(seed), ed25519.SeedSize)
	}
	pub := ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)
	did, err := EncodeDIDKey(pub)
	if err != nil {
		return nil, err
	}
	return &Identity{
		DID:        did,
		PublicKey:  base64.StdEncoding.EncodeToString(pub),
		PrivateKey: base64.StdEncoding.EncodeToString(seed),
	}, nil
}

// SigningKey returns the full ed25519 private key.
func (id *Identity) SigningKey() (ed25519.PrivateKey, error) {
	seed, err := base64.StdEncoding.DecodeString(id.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("private key length %d, want %d", len(seed), ed25519.SeedSize)
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

// VerifyKey returns the ed25519 public key.
func (id *Identity) VerifyKey() (ed25519.PublicKey, error) {
	pub, err := base64.StdEncoding.DecodeString(id.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("public key length %d, want %d", len(pub), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(pub), nil
}

// Sign sets m.Signature to "<did>#<multibase signature>" over the message
// id and content.
func (id *Identity) Sign(m message.ChannelMessage) (message.ChannelMessage, error) {
	priv, err := id.SigningKey()
	if err != nil {
		return m, err
	}
	sig := ed25519.Sign(priv, signingPayload(m))
	encoded, err := multibase.Encode(multibase.Base64url, sig)
	if err != nil {
		return m, fmt.Errorf("encode signature: %w", err)
	}
	m.Signature = id.DID + "#" + encoded
	return m, nil
}

// Verify checks m.Signature and returns the signer's DID.
func Verify(m message.ChannelMessage) (string, error) {
	if m.Signature == "" {
		return "", ErrUnsigned
	}
	did, encoded, ok := strings.Cut(m.Signature, "#")
	if !ok {
		return "", fmt.Errorf("%w: missing key reference", ErrBadSignature)
	}
	pub, err := DecodeDIDKey(did)
	if err != nil {
		return "", err
	}
	_, sig, err := multibase.Decode(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if !ed25519.Verify(pub, signingPayload(m), sig) {
		return did, ErrBadSignature
	}
	return did, nil
}

func signingPayload(m message.ChannelMessage) []byte {
	b := make([]byte, 0, len(m.ID)+1+len(m.Content))
	b = append(b, m.ID...)
	b = append(b, 0)
	return append(b, m.Content...)
}

// EncodeDIDKey encodes a raw Ed25519 public key as did:key:z... using
// the multicodec 0xED01 prefix and base58btc.
func EncodeDIDKey(publicKey []byte) (string, error) {
	prefixed := append(append([]byte{}, ed25519Multicodec...), publicKey...)
	s, err := multibase.Encode(multibase.Base58BTC, prefixed)
	if err != nil {
		return "", fmt.Errorf("encode did:key: %w", err)
	}
	return didKeyPrefix + s, nil
}

// DecodeDIDKey extracts the Ed25519 public key from a did:key string.
func DecodeDIDKey(did string) (ed25519.PublicKey, error) {
	rest, ok := strings.CutPrefix(did, didKeyPrefix)
	if !ok || !strings.HasPrefix(rest, "z") {
		return nil, fmt.Errorf("not a base58btc did:key: %q", did)
	}
	enc, data, err := multibase.Decode(rest)
	if err != nil {
		return nil, fmt.Errorf("decode did:key: %w", err)
	}
	if enc != multibase.Base58BTC {
		return nil, fmt.Errorf("did:key uses encoding %c, want base58btc", enc)
	}
	if len(data) != len(ed25519Multicodec)+ed25519.PublicKeySize ||
		data[0] != ed25519Multicodec[0] || data[1] != ed25519Multicodec[1] {
		return nil, fmt.Errorf("did:key is not an ed25519 key")
	}
	return ed25519.PublicKey(data[len(ed25519Multicodec):]), nil
}
