// Package badgerstore persists sync revisions and removal tombstones in a Badger
// database so sync tokens survive restarts.
package badgerstore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/cyp0633/caldelete/server/storage"
	"github.com/dgraph-io/badger/v2"
)

const (
	revisionPrefix  = "rev/"
	tombstonePrefix = "tomb/"

	// maxConflictRetries bounds retries of a Bump that lost a transaction race.
	maxConflictRetries = 16
)

// Revisions implements storage.RevisionStore on Badger.
type Revisions struct {
	db *badger.DB
}

var _ storage.RevisionStore = (*Revisions)(nil)

// Open opens (or creates) a revision database in dir.
func Open(dir string) (*Revisions, error) {
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("failed to open revision db: %w", err)
	}
	return &Revisions{db: db}, nil
}

// OpenInMemory opens a revision database that lives only in memory.
func OpenInMemory() (*Revisions, error) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("failed to open revision db: %w", err)
	}
	return &Revisions{db: db}, nil
}

func (r *Revisions) Close() error {
	return r.db.Close()
}

func revisionKey(collection string) []byte {
	return []byte(revisionPrefix + collection)
}

// tombstoneKey uses a NUL separator, which can't appear in a URI.
func tombstoneKey(collection, name string) []byte {
	return []byte(tombstonePrefix + collection + "\x00" + name)
}

func readInt(txn *badger.Txn, key []byte) (int64, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	value, err := item.ValueCopy(nil)
	if err != nil {
		return 0, fmt.Errorf("failed to read value: %w", err)
	}
	if len(value) != 8 {
		return 0, fmt.Errorf("%w: corrupt revision for %q", storage.ErrStorageUnavailable, key)
	}
	return int64(binary.BigEndian.Uint64(value)), nil
}

func encodeInt(v int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(v))
	return buf
}

func (r *Revisions) Current(_ context.Context, collection string) (int64, error) {
	var rev int64
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		rev, err = readInt(txn, revisionKey(collection))
		return err
	})
	return rev, err
}

// Bump increments the revision in a transaction; concurrent bumps of the same
// collection conflict in Badger and are retried, so every caller sees a
// distinct revision.
func (r *Revisions) Bump(ctx context.Context, collection string) (int64, error) {
	var rev int64
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		err := r.db.Update(func(txn *badger.Txn) error {
			current, err := readInt(txn, revisionKey(collection))
			if err != nil {
				return err
			}
			rev = current + 1
			return txn.Set(revisionKey(collection), encodeInt(rev))
		})
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("failed to bump revision of %s: %w", collection, err)
		}
		return rev, nil
	}
	return 0, fmt.Errorf("%w: revision of %s is contended", storage.ErrConflict, collection)
}

func (r *Revisions) Tombstone(_ context.Context, collection, name string, revision int64) error {
	return r.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(tombstoneKey(collection, name), encodeInt(revision)); err != nil {
			return fmt.Errorf("failed to record removal of %s: %w", name, err)
		}
		return nil
	})
}

func (r *Revisions) Tombstones(_ context.Context, collection string) (map[string]int64, error) {
	result := make(map[string]int64)
	prefix := []byte(tombstonePrefix + collection + "\x00")

	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("failed to read tombstone: %w", err)
			}
			name := strings.TrimPrefix(string(item.KeyCopy(nil)), string(prefix))
			result[name] = int64(binary.BigEndian.Uint64(value))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
