package gns

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"io"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

var (
	ErrBadBlock     = errors.New("malformed or undecryptable block")
	ErrBlockExpired = errors.New("block expired")
)

// Block is the encrypted, signed container holding all records published
// for one (zone, label) pair. Readers that do not know the zone key and
// label can neither decrypt it nor learn what name it belongs to.
type Block struct {
	Query   QueryHash // cache/DHT key this block is stored under
	EncData []byte    // AEAD-sealed serialized record set
	Expires time.Time
	Sig     []byte // zone signature over the sealed payload
}

func newHKDF(secret, salt []byte) io.Reader {
	return hkdf.New(sha256.New, secret, salt, []byte("gns-block-key"))
}

func blockSignedData(b *Block) []byte {
	var expiry [8]byte
	binary.BigEndian.PutUint64(expiry[:], uint64(b.Expires.UnixMicro())) // #nosec G115
	return sha256Sum(b.Query[:], expiry[:], b.EncData)
}

// SignBlock encrypts and signs a record set for the given label, producing
// the block to publish into the namecache and DHT.
func SignBlock(priv ZonePrivate, label string, expires time.Time, recs []Record) (b *Block, err error) {
	var plain []byte
	if plain, err = recordsSerialize(recs); err != nil {
		return
	}
	zone := priv.Public()
	key, nonce := deriveBlockKey(zone, label)
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return
	}
	b = &Block{
		Query:   QueryHashFor(zone, label),
		EncData: aead.Seal(nil, nonce[:], plain, zone[:]),
		Expires: expires,
	}
	b.Sig = priv.sign(blockSignedData(b))
	return
}

// Decrypt verifies the block's signature against the zone key, decrypts it
// with the key derived from (zone, label) and returns the record set.
// Any verification or decryption failure is reported as ErrBadBlock; the
// caller treats it as a protocol error from the network, never a crash.
func (b *Block) Decrypt(zone ZoneKey, label string) (recs []Record, err error) {
	if !zone.verify(blockSignedData(b), b.Sig) {
		return nil, ErrBadBlock
	}
	key, nonce := deriveBlockKey(zone, label)
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, ErrBadBlock
	}
	plain, err := aead.Open(nil, nonce[:], b.EncData, zone[:])
	if err != nil {
		return nil, ErrBadBlock
	}
	if recs, err = recordsDeserialize(plain); err != nil {
		return nil, ErrBadBlock
	}
	return
}

// Expired reports whether the block as a whole is past its expiration.
func (b *Block) Expired(now time.Time) bool {
	return !b.Expires.IsZero() && now.After(b.Expires)
}
