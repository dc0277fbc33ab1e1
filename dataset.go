package mlworkflow

// Dataset is a finite keyed collection of items: a stable list of keys
// plus random access by key. Implementations return the same keys in
// the same order on every call for the lifetime of the value; items
// may be computed on demand and are expected to be deterministic.
type Dataset[K comparable, V any] interface {
	// ListKeys returns the dataset's keys in a fixed order. Callers
	// must not modify the returned slice.
	ListKeys() []K

	// QueryItem returns the item stored under key. The error is
	// ErrKeyNotFound (possibly wrapped) when the dataset has no such
	// key.
	QueryItem(key K) (V, error)
}

// MapDataset is an in-memory dataset backed by a map.
type MapDataset[K comparable, V any] struct {
	keys  []K
	items map[K]V
}

// NewMapDataset builds a dataset over items. Key order is whatever a
// map range produces; use MapDatasetWithKeys when order matters.
func NewMapDataset[K comparable, V any](items map[K]V) *MapDataset[K, V] {
	keys := make([]K, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	return &MapDataset[K, V]{keys, items}
}

// MapDatasetWithKeys builds a dataset over items exposing the given key
// order. Keys missing from items resolve to ErrKeyNotFound.
func MapDatasetWithKeys[K comparable, V any](keys []K, items map[K]V) *MapDataset[K, V] {
	return &MapDataset[K, V]{keys, items}
}

func (d *MapDataset[K, V]) ListKeys() []K { return d.keys }

func (d *MapDataset[K, V]) QueryItem(key K) (V, error) {
	v, ok := d.items[key]
	if !ok {
		return v, keyErrf(key)
	}
	return v, nil
}

// FuncDataset adapts a pair of functions into a Dataset.
type FuncDataset[K comparable, V any] struct {
	Keys  func() []K
	Query func(key K) (V, error)
}

func (d FuncDataset[K, V]) ListKeys() []K              { return d.Keys() }
func (d FuncDataset[K, V]) QueryItem(key K) (V, error) { return d.Query(key) }

// Transform rewrites an item as it is read. The key is passed along for
// transforms that depend on it.
type Transform[K comparable, V any] func(key K, item V) (V, error)

// TransformedDataset applies a chain of transforms to another dataset's
// items on every read.
type TransformedDataset[K comparable, V any] struct {
	ds         Dataset[K, V]
	transforms []Transform[K, V]
}

func NewTransformedDataset[K comparable, V any](ds Dataset[K, V], transforms ...Transform[K, V]) *TransformedDataset[K, V] {
	return &TransformedDataset[K, V]{ds, transforms}
}

func (d *TransformedDataset[K, V]) ListKeys() []K { return d.ds.ListKeys() }

func (d *TransformedDataset[K, V]) QueryItem(key K) (V, error) {
	item, err := d.ds.QueryItem(key)
	if err != nil {
		return item, err
	}
	for _, t := range d.transforms {
		item, err = t(key, item)
		if err != nil {
			return item, err
		}
	}
	return item, nil
}

// CachedDataset memoizes items read from a slower parent dataset.
// Not safe for concurrent use.
type CachedDataset[K comparable, V any] struct {
	ds    Dataset[K, V]
	keys  []K
	cache map[K]V
}

func NewCachedDataset[K comparable, V any](ds Dataset[K, V]) *CachedDataset[K, V] {
	keys := ds.ListKeys()
	return &CachedDataset[K, V]{ds, keys, make(map[K]V, len(keys))}
}

func (d *CachedDataset[K, V]) ListKeys() []K { return d.keys }

func (d *CachedDataset[K, V]) QueryItem(key K) (V, error) {
	if v, ok := d.cache[key]; ok {
		return v, nil
	}
	if d.ds == nil {
		var zero V
		return zero, keyErrf(key)
	}
	v, err := d.ds.QueryItem(key)
	if err != nil {
		return v, err
	}
	d.cache[key] = v
	return v, nil
}

// Fill reads every item once so later queries hit the cache.
func (d *CachedDataset[K, V]) Fill() error {
	for _, k := range d.keys {
		if _, err := d.QueryItem(k); err != nil {
			return err
		}
	}
	return nil
}

// FillForget fills the cache and releases the parent dataset, after
// which the cache is the only source of items.
func (d *CachedDataset[K, V]) FillForget() error {
	if err := d.Fill(); err != nil {
		return err
	}
	d.ds = nil
	return nil
}

// CacheLastDataset keeps the single most recently read item, making
// repeated reads of the same key free. Not safe for concurrent use.
type CacheLastDataset[K comparable, V any] struct {
	ds      Dataset[K, V]
	lastKey K
	last    V
	ok      bool
}

func NewCacheLastDataset[K comparable, V any](ds Dataset[K, V]) *CacheLastDataset[K, V] {
	return &CacheLastDataset[K, V]{ds: ds}
}

func (d *CacheLastDataset[K, V]) ListKeys() []K { return d.ds.ListKeys() }

func (d *CacheLastDataset[K, V]) QueryItem(key K) (V, error) {
	if d.ok && key == d.lastKey {
		return d.last, nil
	}
	v, err := d.ds.QueryItem(key)
	if err != nil {
		return v, err
	}
	d.lastKey, d.last, d.ok = key, v, true
	return v, nil
}

// QueryAll reads the items for keys, in order.
func QueryAll[K comparable, V any](ds Dataset[K, V], keys []K) ([]V, error) {
	items := make([]V, 0, len(keys))
	for _, k := range keys {
		v, err := ds.QueryItem(k)
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	return items, nil
}

// Chunks splits list into consecutive pieces of at most n items. The
// pieces alias list. An empty list yields a single empty chunk, so
// consumers always see at least one.
func Chunks[T any](list []T, n int) [][]T {
	if n <= 0 {
		panic("chunk size must be positive")
	}
	chunks := make([][]T, 0, len(list)/n+1)
	for len(list) > n {
		chunks = append(chunks, list[:n])
		list = list[n:]
	}
	return append(chunks, list)
}

// BatchCursor iterates a dataset in fixed-size batches:
//
//	c := Batches(ds, nil, 32)
//	for c.Next() {
//		keys, items := c.Batch()
//		...
//	}
//	if err := c.Err(); err != nil {
//		...
//	}
type BatchCursor[K comparable, V any] struct {
	ds     Dataset[K, V]
	chunks [][]K
	i      int
	keys   []K
	items  []V
	err    error
}

// Batches prepares batched iteration over the given keys, or over all
// of the dataset's keys when keys is nil. An empty key list produces a
// single empty batch.
func Batches[K comparable, V any](ds Dataset[K, V], keys []K, size int) *BatchCursor[K, V] {
	if keys == nil {
		keys = ds.ListKeys()
	}
	return &BatchCursor[K, V]{ds: ds, chunks: Chunks(keys, size), i: -1}
}

func (c *BatchCursor[K, V]) Next() bool {
	if c.err != nil {
		return false
	}
	c.i++
	if c.i >= len(c.chunks) {
		return false
	}
	c.keys = c.chunks[c.i]
	c.items, c.err = QueryAll(c.ds, c.keys)
	return c.err == nil
}

// Batch returns the keys and items of the current batch.
func (c *BatchCursor[K, V]) Batch() ([]K, []V) { return c.keys, c.items }

func (c *BatchCursor[K, V]) Err() error { return c.err }
