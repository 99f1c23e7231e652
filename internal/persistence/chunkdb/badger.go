package chunkdb

import (
	"errors"
	"fmt"
	"strings"

	badger "github.com/dgraph-io/badger/v3"

	"github.com/clawcraft-master/clawcraft/internal/sim/coords"
)

const badgerChunkPrefix = "chunk/"

// BadgerBackend is the LSM alternative for worlds with heavy churn. Same
// contract as sqlite: compressed value per chunk key.
type BadgerBackend struct {
	db *badger.DB
}

func OpenBadger(path string) (*BadgerBackend, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	opts := badger.DefaultOptions(path)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", path, err)
	}
	return &BadgerBackend{db: db}, nil
}

func (b *BadgerBackend) SaveBatch(recs []Record) error {
	if len(recs) == 0 {
		return nil
	}
	return b.db.Update(func(txn *badger.Txn) error {
		for _, r := range recs {
			if err := txn.Set([]byte(badgerChunkPrefix+r.Key), compress(r.Data)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BadgerBackend) Load(key string) ([]byte, error) {
	var raw []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(badgerChunkPrefix + key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			raw, err = decompress(val, coords.ChunkVolume)
			return err
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func (b *BadgerBackend) ForEach(fn func(rec Record) error) error {
	return b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(badgerChunkPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := strings.TrimPrefix(string(item.Key()), badgerChunkPrefix)
			pos, err := coords.ParseKey(key)
			if err != nil {
				return fmt.Errorf("corrupt chunk key %q: %w", key, err)
			}
			var raw []byte
			if err := item.Value(func(val []byte) error {
				raw, err = decompress(val, coords.ChunkVolume)
				return err
			}); err != nil {
				return fmt.Errorf("chunk %s: %w", key, err)
			}
			if err := fn(Record{Key: key, Pos: pos, Data: raw}); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BadgerBackend) Close() error {
	return b.db.Close()
}
