// Package badger implements inbox storage on an embedded BadgerDB.
//
// Key layout:
//
//	alert:<marker>         JSON-encoded alert item
//	seen:<marker>          first-seen time, big-endian unix millis
//	kv:<namespace>:<key>   raw value
package badger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"

	"github.com/steveyegge/stepview/internal/types"
)

const (
	alertPrefix = "alert:"
	seenPrefix  = "seen:"
	kvPrefix    = "kv:"
)

// BadgerStorage implements the Storage interface using BadgerDB
type BadgerStorage struct {
	db *dgbadger.DB
}

// New opens (or creates) a Badger store in dir. The special dir ":memory:"
// opens an in-memory store.
func New(dir string) (*BadgerStorage, error) {
	var opts dgbadger.Options
	if dir == ":memory:" {
		opts = dgbadger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		opts = dgbadger.DefaultOptions(dir)
	}
	opts = opts.WithLogger(nil)

	db, err := dgbadger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger at %s: %w", dir, err)
	}
	return &BadgerStorage{db: db}, nil
}

// Close closes the database
func (b *BadgerStorage) Close() error {
	return b.db.Close()
}

// ListAlerts returns alert items newest first. limit <= 0 returns all.
func (b *BadgerStorage) ListAlerts(ctx context.Context, limit int) ([]types.AlertItem, error) {
	items, err := b.loadAlerts()
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (b *BadgerStorage) loadAlerts() ([]types.AlertItem, error) {
	var items []types.AlertItem
	err := b.db.View(func(txn *dgbadger.Txn) error {
		it := txn.NewIterator(dgbadger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(alertPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			raw, err := it.Item().ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("copy value: %w", err)
			}
			var item types.AlertItem
			if err := json.Unmarshal(raw, &item); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			items = append(items, item)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	sortNewestFirst(items)
	return items, nil
}

func sortNewestFirst(items []types.AlertItem) {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})
}

// CountAlerts returns the number of persisted alert items
func (b *BadgerStorage) CountAlerts(ctx context.Context) (int, error) {
	n := 0
	err := b.db.View(func(txn *dgbadger.Txn) error {
		opts := dgbadger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(alertPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count alerts: %w", err)
	}
	return n, nil
}

// CountUnread returns the number of unread alert items
func (b *BadgerStorage) CountUnread(ctx context.Context) (int, error) {
	items, err := b.loadAlerts()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, item := range items {
		if !item.IsRead {
			n++
		}
	}
	return n, nil
}

// UpsertAlerts writes items, replacing any existing item with the same id
func (b *BadgerStorage) UpsertAlerts(ctx context.Context, items []types.AlertItem) error {
	if len(items) == 0 {
		return nil
	}
	err := b.db.Update(func(txn *dgbadger.Txn) error {
		for _, item := range items {
			if err := putAlert(txn, item); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to upsert alerts: %w", err)
	}
	return nil
}

func putAlert(txn *dgbadger.Txn, item types.AlertItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode %s: %w", item.ID, err)
	}
	return txn.Set([]byte(alertPrefix+item.ID), data)
}

func getAlert(txn *dgbadger.Txn, id string) (types.AlertItem, bool, error) {
	var item types.AlertItem
	entry, err := txn.Get([]byte(alertPrefix + id))
	if errors.Is(err, dgbadger.ErrKeyNotFound) {
		return item, false, nil
	}
	if err != nil {
		return item, false, err
	}
	raw, err := entry.ValueCopy(nil)
	if err != nil {
		return item, false, err
	}
	if err := json.Unmarshal(raw, &item); err != nil {
		return item, false, fmt.Errorf("decode %s: %w", id, err)
	}
	return item, true, nil
}

// SetRead flips the read flag of one item. It reports whether the item exists.
func (b *BadgerStorage) SetRead(ctx context.Context, id string, read bool) (bool, error) {
	found := false
	err := b.db.Update(func(txn *dgbadger.Txn) error {
		item, ok, err := getAlert(txn, id)
		if err != nil || !ok {
			return err
		}
		found = true
		item.IsRead = read
		return putAlert(txn, item)
	})
	if err != nil {
		return false, fmt.Errorf("failed to update alert %s: %w", id, err)
	}
	return found, nil
}

// SetAllRead marks every item read and returns how many changed
func (b *BadgerStorage) SetAllRead(ctx context.Context) (int, error) {
	return b.rewriteAlerts(func(item *types.AlertItem) (keep, changed bool) {
		if item.IsRead {
			return true, false
		}
		item.IsRead = true
		return true, true
	})
}

// DeleteAlert removes one item. It reports whether the item existed.
func (b *BadgerStorage) DeleteAlert(ctx context.Context, id string) (bool, error) {
	found := false
	err := b.db.Update(func(txn *dgbadger.Txn) error {
		_, ok, err := getAlert(txn, id)
		if err != nil || !ok {
			return err
		}
		found = true
		return txn.Delete([]byte(alertPrefix + id))
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete alert %s: %w", id, err)
	}
	return found, nil
}

// DeleteReadAlerts removes every read item and returns how many were removed
func (b *BadgerStorage) DeleteReadAlerts(ctx context.Context) (int, error) {
	return b.rewriteAlerts(func(item *types.AlertItem) (keep, changed bool) {
		return !item.IsRead, item.IsRead
	})
}

// rewriteAlerts applies fn to every item inside one transaction, deleting
// the items fn does not keep and rewriting the ones it changed
func (b *BadgerStorage) rewriteAlerts(fn func(item *types.AlertItem) (keep, changed bool)) (int, error) {
	count := 0
	err := b.db.Update(func(txn *dgbadger.Txn) error {
		items, err := alertsInTxn(txn)
		if err != nil {
			return err
		}
		for i := range items {
			keep, changed := fn(&items[i])
			if !changed {
				continue
			}
			count++
			if !keep {
				if err := txn.Delete([]byte(alertPrefix + items[i].ID)); err != nil {
					return err
				}
				continue
			}
			if err := putAlert(txn, items[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to rewrite alerts: %w", err)
	}
	return count, nil
}

func alertsInTxn(txn *dgbadger.Txn) ([]types.AlertItem, error) {
	it := txn.NewIterator(dgbadger.DefaultIteratorOptions)
	defer it.Close()

	var items []types.AlertItem
	prefix := []byte(alertPrefix)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		raw, err := it.Item().ValueCopy(nil)
		if err != nil {
			return nil, err
		}
		var item types.AlertItem
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, fmt.Errorf("decode %s: %w", it.Item().Key(), err)
		}
		items = append(items, item)
	}
	return items, nil
}

// TrimAlerts keeps the newest keep items and deletes the rest
func (b *BadgerStorage) TrimAlerts(ctx context.Context, keep int) (int, error) {
	removed := 0
	err := b.db.Update(func(txn *dgbadger.Txn) error {
		items, err := alertsInTxn(txn)
		if err != nil {
			return err
		}
		sortNewestFirst(items)
		for i := max(keep, 0); i < len(items); i++ {
			if err := txn.Delete([]byte(alertPrefix + items[i].ID)); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to trim alerts: %w", err)
	}
	return removed, nil
}

// SeenMarkers returns every stored marker with its first-seen time
func (b *BadgerStorage) SeenMarkers(ctx context.Context) (map[string]time.Time, error) {
	seen := make(map[string]time.Time)
	err := b.db.View(func(txn *dgbadger.Txn) error {
		it := txn.NewIterator(dgbadger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(seenPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			raw, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			if len(raw) != 8 {
				continue
			}
			marker := string(it.Item().Key()[len(seenPrefix):])
			seen[marker] = time.UnixMilli(int64(binary.BigEndian.Uint64(raw))).UTC()
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load seen markers: %w", err)
	}
	return seen, nil
}

// MarkSeen records markers. An already stored marker keeps its original time.
func (b *BadgerStorage) MarkSeen(ctx context.Context, markers map[string]time.Time) error {
	if len(markers) == 0 {
		return nil
	}
	err := b.db.Update(func(txn *dgbadger.Txn) error {
		for marker, at := range markers {
			key := []byte(seenPrefix + marker)
			if _, err := txn.Get(key); err == nil {
				continue
			} else if !errors.Is(err, dgbadger.ErrKeyNotFound) {
				return err
			}
			var buf [8]byte
			binary.BigEndian.PutUint64(buf[:], uint64(at.UnixMilli()))
			if err := txn.Set(key, buf[:]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to mark seen: %w", err)
	}
	return nil
}

// TrimSeen keeps the keep most recently seen markers
func (b *BadgerStorage) TrimSeen(ctx context.Context, keep int) (int, error) {
	seen, err := b.SeenMarkers(ctx)
	if err != nil {
		return 0, err
	}
	if len(seen) <= keep {
		return 0, nil
	}

	type entry struct {
		marker string
		at     time.Time
	}
	entries := make([]entry, 0, len(seen))
	for m, at := range seen {
		entries = append(entries, entry{m, at})
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].at.Equal(entries[j].at) {
			return entries[i].at.After(entries[j].at)
		}
		return entries[i].marker > entries[j].marker
	})

	removed := 0
	err = b.db.Update(func(txn *dgbadger.Txn) error {
		for _, e := range entries[max(keep, 0):] {
			if err := txn.Delete([]byte(seenPrefix + e.marker)); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to trim seen markers: %w", err)
	}
	return removed, nil
}

// Get reads a namespaced value. A missing key returns nil.
func (b *BadgerStorage) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	var value []byte
	err := b.db.View(func(txn *dgbadger.Txn) error {
		item, err := txn.Get(kvKey(namespace, key))
		if errors.Is(err, dgbadger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get %s/%s: %w", namespace, key, err)
	}
	return value, nil
}

// Set writes a namespaced value
func (b *BadgerStorage) Set(ctx context.Context, namespace, key string, value []byte) error {
	err := b.db.Update(func(txn *dgbadger.Txn) error {
		return txn.Set(kvKey(namespace, key), value)
	})
	if err != nil {
		return fmt.Errorf("failed to set %s/%s: %w", namespace, key, err)
	}
	return nil
}

func kvKey(namespace, key string) []byte {
	return []byte(kvPrefix + namespace + ":" + key)
}
