// internal/storage/storage.go
package storage

import (
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	kerr "kiln/internal/errors"
)

// Thin JSON helpers over badger transactions. The timeline and undo
// packages compose these inside a single Update so every graph mutation
// commits atomically.

var ErrKeyNotFound = badger.ErrKeyNotFound

func Key(parts ...string) []byte {
	key := parts[0]
	for _, p := range parts[1:] {
		key += ":" + p
	}
	return []byte(key)
}

func PutJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", key, err)
	}
	return txn.Set(key, data)
}

func GetJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		if err := json.Unmarshal(val, v); err != nil {
			return kerr.CorruptIndex(fmt.Sprintf("decoding %s", key), err)
		}
		return nil
	})
}

// ScanJSON decodes every value under prefix into a fresh T and hands it
// to fn. Iteration order is badger's key order.
func ScanJSON[T any](txn *badger.Txn, prefix []byte, fn func(key string, v T) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix

	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		key := string(item.Key())
		err := item.Value(func(val []byte) error {
			var v T
			if err := json.Unmarshal(val, &v); err != nil {
				return kerr.CorruptIndex(fmt.Sprintf("decoding %s", key), err)
			}
			return fn(key, v)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// DeletePrefix removes every key under prefix within the transaction.
func DeletePrefix(txn *badger.Txn, prefix []byte) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false

	it := txn.NewIterator(opts)
	defer it.Close()

	var keys [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	for _, key := range keys {
		if err := txn.Delete(key); err != nil {
			return err
		}
	}
	return nil
}
