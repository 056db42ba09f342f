// Package hashcache persists per-file content hashes between watch events
// and sessions, so that editor saves which leave a file unchanged do not
// trigger rebuilds.
//
// Lookups go through two tiers: an in-memory map keyed by path, backed by a
// bbolt bucket on disk. Hashes are CRC32 Castagnoli over the file content.
package hashcache

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.etcd.io/bbolt"
)

// FileName is the database file created inside the cache directory.
const FileName = "hashes.db"

var bucket = []byte("hashes")

// Cache is a persistent content-hash cache. It is safe for concurrent use.
type Cache struct {
	db    *bbolt.DB
	table *crc32.Table

	mu     sync.RWMutex
	memory map[string]uint32
	hits   int64
	misses int64
}

// Stats reports cache effectiveness.
type Stats struct {
	Entries int
	Hits    int64
	Misses  int64
}

// Open opens or creates the cache database in dir.
func Open(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := bbolt.Open(filepath.Join(dir, FileName), 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("could not open hash cache: %w", err)
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Cache{
		db:     db,
		table:  crc32.MakeTable(crc32.Castagnoli),
		memory: make(map[string]uint32),
	}, nil
}

// Hash returns the content hash used by the cache.
func (c *Cache) Hash(content []byte) uint32 {
	return crc32.Checksum(content, c.table)
}

// Changed reports whether content differs from what was last recorded for
// path, and records it. A path seen for the first time counts as changed.
func (c *Cache) Changed(path string, content []byte) (bool, error) {
	sum := c.Hash(content)

	previous, found, err := c.lookup(path)
	if err != nil {
		return true, err
	}
	if found && previous == sum {
		c.mu.Lock()
		c.hits++
		c.mu.Unlock()
		return false, nil
	}

	c.mu.Lock()
	c.misses++
	c.memory[path] = sum
	c.mu.Unlock()

	return true, c.db.Update(func(tx *bbolt.Tx) error {
		var buf [4]byte
		binary.BigEndian.PutUint32(buf[:], sum)
		return tx.Bucket(bucket).Put([]byte(path), buf[:])
	})
}

// Forget drops path, e.g. after it was deleted.
func (c *Cache) Forget(path string) error {
	c.mu.Lock()
	delete(c.memory, path)
	c.mu.Unlock()

	return c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucket).Delete([]byte(path))
	})
}

func (c *Cache) lookup(path string) (uint32, bool, error) {
	c.mu.RLock()
	sum, ok := c.memory[path]
	c.mu.RUnlock()
	if ok {
		return sum, true, nil
	}

	err := c.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucket).Get([]byte(path))
		if len(data) != 4 {
			return nil
		}
		sum = binary.BigEndian.Uint32(data)
		ok = true
		return nil
	})
	if err != nil {
		return 0, false, fmt.Errorf("could not read hash cache: %w", err)
	}

	if ok {
		c.mu.Lock()
		c.memory[path] = sum
		c.mu.Unlock()
	}
	return sum, ok, nil
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entries := 0
	_ = c.db.View(func(tx *bbolt.Tx) error {
		entries = tx.Bucket(bucket).Stats().KeyN
		return nil
	})
	return Stats{Entries: entries, Hits: c.hits, Misses: c.misses}
}

// Close closes the database.
func (c *Cache) Close() error {
	return c.db.Close()
}
