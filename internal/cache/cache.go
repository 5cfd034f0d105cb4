// Package cache provides the storage side of fuser's build cache.
//
// The combined files themselves live next to their sources and are
// disposable. What this package keeps is everything around them:
//
//  1. Atomic replacement of artifacts (temporary file + rename)
//  2. The MD5 digest used for content hashes
//  3. A build history per bundle, stored in BoltDB
//
// The history is diagnostic only. It is never consulted to decide whether a
// combined file is stale; that decision belongs to the file watcher.
package cache

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

const (
	// DefaultCacheDir is the default cache directory name
	DefaultCacheDir = ".fuser-cache"

	// DefaultMaxEntries is how many builds are kept per bundle
	DefaultMaxEntries = 200

	// bucketName is the BoltDB bucket holding one nested bucket per bundle
	bucketName = "builds"
)

// Cache stores build history using BoltDB
type Cache struct {
	db         *bbolt.DB
	root       string // Root directory for cache (.fuser-cache/)
	maxEntries int
}

// New creates a new cache instance
// If cacheDir is empty, uses DefaultCacheDir in current working directory
func New(cacheDir string) (*Cache, error) {
	if cacheDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}

		cacheDir = filepath.Join(cwd, DefaultCacheDir)
	}

	// Ensure cache directory exists
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	// Open BoltDB
	dbPath := filepath.Join(cacheDir, "history.db")
	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	// Create bucket if it doesn't exist
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cache bucket: %w", err)
	}

	return &Cache{
		db:         db,
		root:       cacheDir,
		maxEntries: DefaultMaxEntries,
	}, nil
}

// SetMaxEntries changes how many builds are retained per bundle
func (c *Cache) SetMaxEntries(n int) {
	if n > 0 {
		c.maxEntries = n
	}
}

// Root returns the cache directory
func (c *Cache) Root() string {
	return c.root
}

// Close closes the cache database
func (c *Cache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}

	return nil
}

// Record stores a build entry, assigning an ID if it has none, and prunes
// the oldest entries of the bundle beyond the retention limit
func (c *Cache) Record(entry Entry) error {
	if entry.Bundle == "" {
		return fmt.Errorf("cache entry has no bundle name")
	}

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	id, err := uuid.Parse(entry.ID)
	if err != nil {
		return fmt.Errorf("invalid cache entry id %q: %w", entry.ID, err)
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	err = c.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.Bucket([]byte(bucketName)).CreateBucketIfNotExists([]byte(entry.Bundle))
		if err != nil {
			return err
		}

		if err := b.Put(entryKey(entry.Started, id), data); err != nil {
			return err
		}

		return prune(b, c.maxEntries)
	})
	if err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}

	return nil
}

// List returns the recorded builds of a bundle, oldest first
// Returns an empty slice if the bundle was never built
func (c *Cache) List(bundle string) ([]Entry, error) {
	entries := []Entry{}

	err := c.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName)).Bucket([]byte(bundle))
		if b == nil {
			return nil
		}

		return b.ForEach(func(_, v []byte) error {
			var entry Entry
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}

			entries = append(entries, entry)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read cache entries: %w", err)
	}

	return entries, nil
}

// Last returns the most recent build of a bundle
// Returns nil if the bundle was never built
func (c *Cache) Last(bundle string) (*Entry, error) {
	var entry *Entry

	err := c.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName)).Bucket([]byte(bundle))
		if b == nil {
			return nil
		}

		_, v := b.Cursor().Last()
		if v == nil {
			return nil
		}

		entry = &Entry{}
		return json.Unmarshal(v, entry)
	})
	if err != nil {
		return nil, err
	}

	return entry, nil
}

// Clear removes the history of one bundle, or of every bundle if bundle is empty
func (c *Cache) Clear(bundle string) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		if bundle != "" {
			err := tx.Bucket([]byte(bucketName)).DeleteBucket([]byte(bundle))
			if errors.Is(err, bbolt.ErrBucketNotFound) {
				return nil
			}

			return err
		}

		if err := tx.DeleteBucket([]byte(bucketName)); err != nil {
			return err
		}

		_, err := tx.CreateBucket([]byte(bucketName))
		return err
	})
}

// Stats returns the number of bundles and total recorded builds
func (c *Cache) Stats() (int, int, error) {
	var bundles, builds int

	err := c.db.View(func(tx *bbolt.Tx) error {
		root := tx.Bucket([]byte(bucketName))

		return root.ForEachBucket(func(k []byte) error {
			bundles++
			builds += countKeys(root.Bucket(k))
			return nil
		})
	})
	if err != nil {
		return 0, 0, err
	}

	return bundles, builds, nil
}

// entryKey orders entries chronologically; the uuid disambiguates equal timestamps
func entryKey(started time.Time, id uuid.UUID) []byte {
	key := make([]byte, 8, 8+len(id))
	binary.BigEndian.PutUint64(key, uint64(started.UnixNano()))

	return append(key, id[:]...)
}

// prune deletes the oldest keys until at most limit remain
func prune(b *bbolt.Bucket, limit int) error {
	excess := countKeys(b) - limit
	if excess <= 0 {
		return nil
	}

	var stale [][]byte
	cur := b.Cursor()
	for k, _ := cur.First(); k != nil && len(stale) < excess; k, _ = cur.Next() {
		stale = append(stale, append([]byte(nil), k...))
	}

	for _, k := range stale {
		if err := b.Delete(k); err != nil {
			return err
		}
	}

	return nil
}

func countKeys(b *bbolt.Bucket) int {
	n := 0
	cur := b.Cursor()
	for k, _ := cur.First(); k != nil; k, _ = cur.Next() {
		n++
	}

	return n
}
