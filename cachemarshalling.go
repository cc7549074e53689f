package gns

import (
	"errors"
	"io"
	"time"
)

var ErrWrongMagic = errors.New("wrong magic number")

const cacheMagic = int64(0xB10C0001)

const maxBlockSize = 1 << 20

// WriteTo persists the cache contents so a restarted service can warm-start
// from disk.
func (cache *Cache) WriteTo(w io.Writer) (n int64, err error) {
	if cache != nil {
		if err = writeInt64(w, &n, cacheMagic); err == nil {
			cache.mu.RLock()
			blocks := make([]*Block, 0, len(cache.cache))
			for _, block := range cache.cache {
				blocks = append(blocks, block)
			}
			cache.mu.RUnlock()
			if err = writeInt64(w, &n, int64(len(blocks))); err == nil {
				for _, block := range blocks {
					if err = block.writeTo(w, &n); err != nil {
						break
					}
				}
			}
		}
	}
	return
}

// ReadFrom loads previously persisted cache contents, merging them with
// whatever is already cached. Expired blocks are skipped.
func (cache *Cache) ReadFrom(r io.Reader) (n int64, err error) {
	if cache != nil {
		var gotmagic int64
		if gotmagic, err = readInt64(r, &n); err == nil {
			if gotmagic != cacheMagic {
				return n, ErrWrongMagic
			}
			var count int64
			if count, err = readInt64(r, &n); err == nil {
				now := time.Now()
				for i := int64(0); i < count && err == nil; i++ {
					var block Block
					if err = block.readFrom(r, &n); err == nil {
						if !block.Expired(now) {
							cache.Set(&block)
						}
					}
				}
			}
		}
	}
	return
}

func (b *Block) writeTo(w io.Writer, n *int64) (err error) {
	if err = writeInt64(w, n, b.Expires.UnixMilli()); err == nil {
		if err = writeBytes(w, n, b.Query[:]); err == nil {
			if err = writeBytes(w, n, b.EncData); err == nil {
				err = writeBytes(w, n, b.Sig)
			}
		}
	}
	return
}

func (b *Block) readFrom(r io.Reader, n *int64) (err error) {
	var expiry int64
	if expiry, err = readInt64(r, n); err == nil {
		b.Expires = time.UnixMilli(expiry)
		var query []byte
		if query, err = readBytes(r, n, int64(len(b.Query))); err == nil {
			if len(query) != len(b.Query) {
				return ErrBadRecord
			}
			copy(b.Query[:], query)
			if b.EncData, err = readBytes(r, n, maxBlockSize); err == nil {
				b.Sig, err = readBytes(r, n, maxBlockSize)
			}
		}
	}
	return
}
