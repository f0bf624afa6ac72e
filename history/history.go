// Package history keeps a local log of dictated text.
package history

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"go.aimuz.me/tambourine/internal/types"
	"go.aimuz.me/tambourine/langdetect"
)

// DefaultMaxEntries caps how many entries are kept.
const DefaultMaxEntries = 500

// ErrNotFound is returned when an entry does not exist.
var ErrNotFound = errors.New("history entry not found")

var (
	entryPrefix = []byte("entry/")
	indexPrefix = []byte("id/")
)

// Store is a badger-backed history log ordered by creation time.
type Store struct {
	db *badger.DB

	mu         sync.Mutex // serialises Add so pruning sees a stable count
	now        func() time.Time
	detect     func(string) (code, name string)
	maxEntries int
}

// Open opens or creates the history database in dir.
func Open(dir string) (*Store, error) {
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	return newStore(db), nil
}

// OpenInMemory returns a store that is discarded on Close.
func OpenInMemory() (*Store, error) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open in-memory history db: %w", err)
	}
	return newStore(db), nil
}

func newStore(db *badger.DB) *Store {
	return &Store{
		db:         db,
		now:        time.Now,
		detect:     langdetect.Detect,
		maxEntries: DefaultMaxEntries,
	}
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// entryKey sorts by creation time; the id breaks ties.
func entryKey(created time.Time, id string) []byte {
	key := make([]byte, 0, len(entryPrefix)+8+len(id))
	key = append(key, entryPrefix...)
	key = binary.BigEndian.AppendUint64(key, uint64(created.UnixNano()))
	return append(key, id...)
}

func indexKey(id string) []byte {
	return append(append([]byte{}, indexPrefix...), id...)
}

// Add records text with a new id and its detected language.
func (s *Store) Add(text string) (types.HistoryEntry, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return types.HistoryEntry{}, errors.New("empty history text")
	}

	entry := types.HistoryEntry{
		ID:        uuid.NewString(),
		Text:      text,
		CreatedAt: s.now().UTC(),
	}
	if code, name := s.detect(text); code != langdetect.Unknown {
		entry.Language, entry.LanguageName = code, name
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return types.HistoryEntry{}, fmt.Errorf("marshal entry: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := entryKey(entry.CreatedAt, entry.ID)
	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, data); err != nil {
			return err
		}
		return txn.Set(indexKey(entry.ID), key)
	})
	if err != nil {
		return types.HistoryEntry{}, fmt.Errorf("save entry: %w", err)
	}

	if err := s.prune(); err != nil {
		return entry, fmt.Errorf("prune history: %w", err)
	}
	return entry, nil
}

// prune removes the oldest entries beyond maxEntries.
func (s *Store) prune() error {
	if s.maxEntries <= 0 {
		return nil
	}

	var stale [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		n := 0
		for it.Seek(seekLast(entryPrefix)); it.ValidForPrefix(entryPrefix); it.Next() {
			n++
			if n > s.maxEntries {
				stale = append(stale, it.Item().KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil || len(stale) == 0 {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		for _, key := range stale {
			id := string(key[len(entryPrefix)+8:])
			if err := txn.Delete(key); err != nil {
				return err
			}
			if err := txn.Delete(indexKey(id)); err != nil {
				return err
			}
		}
		return nil
	})
}

// seekLast returns a key sorting after every key with prefix.
func seekLast(prefix []byte) []byte {
	return append(append([]byte{}, prefix...), 0xFF)
}

// List returns up to limit entries, newest first. A limit of zero or less
// returns every entry.
func (s *Store) List(limit int) ([]types.HistoryEntry, error) {
	entries := []types.HistoryEntry{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(seekLast(entryPrefix)); it.ValidForPrefix(entryPrefix); it.Next() {
			if limit > 0 && len(entries) >= limit {
				break
			}
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var e types.HistoryEntry
			if err := json.Unmarshal(val, &e); err != nil {
				return fmt.Errorf("decode entry %q: %w", it.Item().Key(), err)
			}
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return entries, nil
}

// Delete removes one entry.
func (s *Store) Delete(id string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(indexKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		key, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if err := txn.Delete(key); err != nil {
			return err
		}
		return txn.Delete(indexKey(id))
	})
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("delete history entry: %w", err)
	}
	return err
}

// Clear removes every entry.
func (s *Store) Clear() error {
	if err := s.db.DropPrefix(entryPrefix, indexPrefix); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}
