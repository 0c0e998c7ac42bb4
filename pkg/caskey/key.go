// Package caskey implements the 20-byte content-address used throughout
// the CAS engine: the SHA-1 digest of an object's bytes, together with the
// textual encodings that coexist on the wire and in tooling.
package caskey

import (
	"crypto/sha1" //nolint:gosec // content-addressing digest, not used for authentication
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
)

// Size is the length in bytes of a Key.
const Size = 20

// Key is the SHA-1 digest of an object's contents.
type Key [Size]byte

// BadKeySize reports that a byte slice or string could not be decoded into
// a Key of the expected length.
type BadKeySize struct {
	Got int
}

func (e BadKeySize) Error() string {
	return fmt.Sprintf("caskey: expected %d bytes, got %d", Size, e.Got)
}

// New builds a Key from exactly Size raw bytes.
func New(b []byte) (Key, error) {
	var k Key
	if len(b) != Size {
		return k, BadKeySize{Got: len(b)}
	}
	copy(k[:], b)
	return k, nil
}

// MustNew is New, panicking on error. Intended for tests and constants.
func MustNew(b []byte) Key {
	k, err := New(b)
	if err != nil {
		panic(err)
	}
	return k
}

// Sum computes the Key of the bytes read from r.
func Sum(r io.Reader) (Key, error) {
	h := sha1.New() //nolint:gosec
	if _, err := io.Copy(h, r); err != nil {
		return Key{}, err
	}
	return New(h.Sum(nil))
}

// SumBytes computes the Key of b directly.
func SumBytes(b []byte) Key {
	h := sha1.Sum(b) //nolint:gosec
	return Key(h)
}

// String renders the Key as 40-character lowercase hex.
func (k Key) String() string {
	return hex.EncodeToString(k[:])
}

// GString renders the Key as 'G' + 28-char URL-safe base64 of the raw bytes,
// one of the four textual representations named in the data model.
func (k Key) GString() string {
	return "G" + base64.URLEncoding.EncodeToString(k[:])
}

// IsZero reports whether k is the all-zero key.
func (k Key) IsZero() bool {
	return k == Key{}
}

// ParseHex decodes a 40-character lowercase hex string into a Key.
func ParseHex(s string) (Key, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Key{}, fmt.Errorf("caskey: invalid hex key %q: %w", s, err)
	}
	return New(b)
}

// ParseGString decodes a 'G'-prefixed base64 key.
func ParseGString(s string) (Key, error) {
	if len(s) == 0 || s[0] != 'G' {
		return Key{}, fmt.Errorf("caskey: not a G-key: %q", s)
	}
	b, err := base64.URLEncoding.DecodeString(s[1:])
	if err != nil {
		return Key{}, fmt.Errorf("caskey: invalid base64 in G-key %q: %w", s, err)
	}
	return New(b)
}

// Inline is the object-as-its-own-key encoding: objects smaller than the
// client's configured threshold are never stored — the key itself carries
// the payload, prefixed with 'P'.
type Inline struct {
	Data []byte
}

// String renders an Inline key as 'P' + unpadded URL-safe base64 of Data.
func (i Inline) String() string {
	return "P" + base64.RawURLEncoding.EncodeToString(i.Data)
}

// IsInline reports whether s is a 'P'-prefixed in-key object reference.
func IsInline(s string) bool {
	return len(s) > 0 && s[0] == 'P'
}

// ParseInline decodes a 'P'-prefixed key back into its payload.
func ParseInline(s string) ([]byte, error) {
	if !IsInline(s) {
		return nil, fmt.Errorf("caskey: not a P-key: %q", s)
	}
	b, err := base64.RawURLEncoding.DecodeString(s[1:])
	if err != nil {
		return nil, fmt.Errorf("caskey: invalid base64 in P-key %q: %w", s, err)
	}
	return b, nil
}

// Parse decodes the two textual key forms that name a 20-byte Key (hex and
// G-prefixed) for use by the CLI and config loaders. A P-prefixed inline key
// is rejected as unrecognized — callers that need inline payloads should
// check IsInline first.
func Parse(s string) (Key, error) {
	switch {
	case len(s) == 2*Size:
		return ParseHex(s)
	case len(s) > 0 && s[0] == 'G':
		return ParseGString(s)
	default:
		return Key{}, fmt.Errorf("caskey: unrecognized key form %q", s)
	}
}
