package store

import (
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/Qualiasolutions/ai-document-processor-sub001/internal/ai"
)

// Cache is the badger-backed result cache the pipeline consults before
// dialing any provider. Entries expire via badger TTL.
type Cache struct {
	badger *badger.DB
}

var _ ai.ResultCache = (*Cache)(nil)

// Cache returns the result cache view of the store.
func (s *Store) Cache() *Cache {
	return &Cache{badger: s.badger}
}

// Get returns the cached value for key, false on miss or expiry.
func (c *Cache) Get(key string) ([]byte, bool) {
	var val []byte
	err := c.badger.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("result:" + key))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			val = append([]byte{}, v...)
			return nil
		})
	})
	if err != nil {
		return nil, false
	}
	return val, true
}

// Set stores value under key for the given TTL.
func (c *Cache) Set(key string, value []byte, ttl time.Duration) error {
	return c.badger.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte("result:"+key), value).WithTTL(ttl)
		return txn.SetEntry(e)
	})
}
