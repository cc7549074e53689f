package gns

import (
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"strings"

	"github.com/mr-tron/base58"
)

// ZoneKey is the public key identifying a zone. All label resolution
// happens relative to some zone key.
type ZoneKey [32]byte

// PeerID identifies a peer for VPN redirection.
type PeerID [32]byte

// QueryHash keys encrypted blocks in the namecache and the DHT. It is
// derived from the authority zone key and the label being resolved.
type QueryHash [64]byte

// ZonePrivate is the signing key of a zone, used when publishing blocks.
type ZonePrivate struct {
	key ed25519.PrivateKey
}

var ErrBadZoneKey = errors.New("bad zone key")

// GenerateZone creates a fresh zone key pair.
func GenerateZone() (priv ZonePrivate, err error) {
	_, key, err := ed25519.GenerateKey(nil)
	if err == nil {
		priv.key = key
	}
	return
}

// Public returns the zone's public key.
func (priv ZonePrivate) Public() (zone ZoneKey) {
	copy(zone[:], priv.key.Public().(ed25519.PublicKey))
	return
}

func (priv ZonePrivate) sign(data []byte) []byte {
	return ed25519.Sign(priv.key, data)
}

// String returns the textual zone key form used in zkey labels and in
// `.+` suffix expansion.
func (zone ZoneKey) String() string {
	return base58.Encode(zone[:])
}

func (zone ZoneKey) verify(data, sig []byte) bool {
	return ed25519.Verify(ed25519.PublicKey(zone[:]), data, sig)
}

// ZoneKeyFromString parses the textual form of a zone key. It is also used
// to recognize zkey labels during resolution, so it must reject ordinary
// labels cheaply.
func ZoneKeyFromString(s string) (zone ZoneKey, err error) {
	// base58 of 32 bytes is 43 or 44 characters
	if len(s) < 40 || len(s) > 48 {
		err = ErrBadZoneKey
		return
	}
	raw, e := base58.Decode(s)
	if e != nil || len(raw) != len(zone) {
		err = ErrBadZoneKey
		return
	}
	copy(zone[:], raw)
	return
}

// QueryHashFor derives the cache/DHT key for looking up the given label in
// the given zone. Labels are case-insensitive.
func QueryHashFor(zone ZoneKey, label string) (query QueryHash) {
	h := sha512.New()
	h.Write(zone[:])
	h.Write([]byte(strings.ToLower(label)))
	h.Sum(query[:0])
	return
}

// deriveBlockKey derives the symmetric key and nonce protecting the block
// for (zone, label). Both sides of the codec derive the same values, so no
// key material travels with the block.
func deriveBlockKey(zone ZoneKey, label string) (key [32]byte, nonce [24]byte) {
	kdf := newHKDF(zone[:], []byte(strings.ToLower(label)))
	if _, err := kdf.Read(key[:]); err != nil {
		panic(err) // hkdf cannot fail within one block
	}
	if _, err := kdf.Read(nonce[:]); err != nil {
		panic(err)
	}
	return
}

// sha256Sum is a small helper so block.go stays readable.
func sha256Sum(parts ...[]byte) []byte {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}
