package cache

import (
	"bytes"
	"encoding/gob"
	"time"

	"go.etcd.io/bbolt"

	"github.com/ncw/webdavfs/internal/log"
	"github.com/ncw/webdavfs/vfs"
)

var listingBucket = []byte("listings")

// BoltPersister mirrors a Cache's committed listings into a bbolt database
// so a freshly started process can serve stat/fetch requests before its
// first network round trip, instead of cold-starting with an empty cache.
//
// This is a pure warm-start optimisation: every snapshot it preloads is
// stamped with a zero fetch time, so the freshness rule in directory.outdated
// still forces a real refresh on first use. No correctness property of
// Cache depends on BoltPersister; it can be nil throughout.
type BoltPersister struct {
	db *bbolt.DB
}

// OpenBoltPersister opens (creating if needed) a bbolt database at path and
// returns a BoltPersister backed by it.
func OpenBoltPersister(path string) (*BoltPersister, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(listingBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltPersister{db: db}, nil
}

// Close releases the underlying bbolt database.
func (b *BoltPersister) Close() error { return b.db.Close() }

// Preload seeds cache with every snapshot previously persisted, each
// stamped with a zero fetch time so it reads as outdated immediately.
func (b *BoltPersister) Preload(c *Cache) {
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(listingBucket)
		return bucket.ForEach(func(k, v []byte) error {
			var items []vfs.DirEntry
			if err := gob.NewDecoder(bytes.NewReader(v)).Decode(&items); err != nil {
				return nil // skip a corrupt entry rather than fail the whole preload
			}
			c.mu.Lock()
			c.dirs[string(k)] = &directory{items: items} // zero fetchTime: outdated
			c.mu.Unlock()
			return nil
		})
	})
	if err != nil {
		log.Errorf(nil, "webdav: cache preload from bolt failed: %v", err)
	}
}

// Mirror persists dirPath's current snapshot asynchronously. Call this
// after every Cache.CommitListing whose result should survive a restart.
func (b *BoltPersister) Mirror(dirPath string, items []vfs.DirEntry) {
	go func() {
		var buf bytes.Buffer
		if err := gob.NewEncoder(&buf).Encode(items); err != nil {
			log.Errorf(nil, "webdav: cache mirror encode failed: %v", err)
			return
		}
		err := b.db.Update(func(tx *bbolt.Tx) error {
			return tx.Bucket(listingBucket).Put([]byte(dirPath), buf.Bytes())
		})
		if err != nil {
			log.Errorf(nil, "webdav: cache mirror write failed: %v", err)
		}
	}()
}

// PersistedCache composes a Cache with a BoltPersister, mirroring every
// commit and preloading at construction time.
type PersistedCache struct {
	*Cache
	persist *BoltPersister
}

// NewPersisted wraps cache with persister, preloading cache from whatever
// persister already has on disk.
func NewPersisted(c *Cache, persister *BoltPersister) *PersistedCache {
	persister.Preload(c)
	return &PersistedCache{Cache: c, persist: persister}
}

// CommitListing commits to the in-memory cache and mirrors the result to
// disk.
func (p *PersistedCache) CommitListing(dirPath string, items []vfs.DirEntry) {
	p.Cache.CommitListing(dirPath, items)
	p.persist.Mirror(dirPath, items)
}
