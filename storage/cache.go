package storage

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedDB wraps a DB with an LRU read-through cache sized for hot block and
// account-balance reads, grounded on the recents/signatures ARC caches the
// example proof-of-authority engines keep in front of header/signature
// lookups. Writes are write-through so the cache never serves stale data.
type CachedDB struct {
	db    DB
	cache *lru.Cache[string, []byte]
}

// NewCachedDB wraps db with an LRU cache holding up to size entries.
func NewCachedDB(db DB, size int) (*CachedDB, error) {
	cache, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, err
	}
	return &CachedDB{db: db, cache: cache}, nil
}

func (c *CachedDB) Get(key []byte) ([]byte, error) {
	if v, ok := c.cache.Get(string(key)); ok {
		return v, nil
	}
	v, err := c.db.Get(key)
	if err != nil {
		return nil, err
	}
	c.cache.Add(string(key), v)
	return v, nil
}

func (c *CachedDB) Set(key, value []byte) error {
	if err := c.db.Set(key, value); err != nil {
		return err
	}
	c.cache.Add(string(key), value)
	return nil
}

func (c *CachedDB) Delete(key []byte) error {
	if err := c.db.Delete(key); err != nil {
		return err
	}
	c.cache.Remove(string(key))
	return nil
}

func (c *CachedDB) NewIterator(prefix []byte) Iterator {
	return c.db.NewIterator(prefix)
}

// NewBatch returns a batch that updates the cache with each written value
// (and evicts each deleted key) once the underlying write lands, so a reader never observes a write via Get before
// the batch is durable and never observes a stale cached value after.
func (c *CachedDB) NewBatch() Batch {
	return &cachedBatch{parent: c, batch: c.db.NewBatch()}
}

func (c *CachedDB) Close() error {
	return c.db.Close()
}

type cachedBatchOp struct {
	key     string
	value   []byte
	deleted bool
}

type cachedBatch struct {
	parent *CachedDB
	batch  Batch
	ops    []cachedBatchOp
}

func (b *cachedBatch) Set(key, value []byte) {
	b.batch.Set(key, value)
	b.ops = append(b.ops, cachedBatchOp{key: string(key), value: value})
}

func (b *cachedBatch) Delete(key []byte) {
	b.batch.Delete(key)
	b.ops = append(b.ops, cachedBatchOp{key: string(key), deleted: true})
}

func (b *cachedBatch) Reset() {
	b.batch.Reset()
	b.ops = nil
}

func (b *cachedBatch) Write() error {
	if err := b.batch.Write(); err != nil {
		return err
	}
	for _, op := range b.ops {
		if op.deleted {
			b.parent.cache.Remove(op.key)
		} else {
			b.parent.cache.Add(op.key, op.value)
		}
	}
	return nil
}
