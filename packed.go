package mlworkflow

import (
	"cmp"
	"fmt"
	"io"
	"math"
	"os"
	"slices"

	"github.com/vmihailenco/msgpack/v5"
)

// A packed dataset file starts with a nine-byte msgpack uint64 header
// holding the index offset XORed with packSentinel. The sentinel keeps
// the value in uint64 territory, so the placeholder written before the
// records and the final header backpatched over it occupy the same
// nine bytes (0xcf plus eight big-endian bytes). A file whose header
// was never backpatched decodes to offset zero and fails the bounds
// check.
const packSentinel uint64 = 1 << 63

const packHeaderLen = 9

// packIndex is the trailing structure of a packed file. Keys and
// Offsets run parallel, preserving the order records were packed in,
// which a plain map would not.
type packIndex[K comparable] struct {
	Keys    []K     `msgpack:"k"`
	Offsets []int64 `msgpack:"o"`
}

// PackOptions adjust Pack.
type PackOptions[K comparable] struct {
	// Keys selects and orders the records to pack. Nil means all of
	// the dataset's keys in their natural order.
	Keys []K
}

// Pack builds a packed dataset file at path from the items of ds: one
// msgpack record per key, followed by the key index, preceded by the
// header pointing at it. The file can be reopened with OpenPacked and
// read by key without loading everything. If packing fails, the
// partial file is deleted.
//
// When the same key is packed twice, the index keeps the first
// position in key order but points at the last record written.
func Pack[K comparable, V any](ds Dataset[K, V], path string, opt PackOptions[K]) error {
	keys := opt.Keys
	if keys == nil {
		keys = ds.ListKeys()
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	var ok bool
	defer closeAndDeleteUnlessOK(f, &ok)

	cw := &countingWriter{w: f}
	enc := msgpack.NewEncoder(cw)
	enc.SetSortMapKeys(true)

	if err := enc.Encode(packSentinel); err != nil {
		return fmt.Errorf("packing %s: %w", path, err)
	}
	if cw.n != packHeaderLen {
		panic(fmt.Errorf("internal error: pack header came out as %d bytes instead of %d", cw.n, packHeaderLen))
	}

	var (
		order   []K
		offsets = make(map[K]int64, len(keys))
	)
	for _, key := range keys {
		item, err := ds.QueryItem(key)
		if err != nil {
			return fmt.Errorf("packing %s: %w", path, err)
		}
		off := cw.n
		if err := enc.Encode(item); err != nil {
			return fmt.Errorf("packing %s: encoding item %v: %w", path, key, err)
		}
		if _, seen := offsets[key]; !seen {
			order = append(order, key)
		}
		offsets[key] = off
	}

	idx := packIndex[K]{Keys: order, Offsets: make([]int64, len(order))}
	for i, key := range order {
		idx.Offsets[i] = offsets[key]
	}
	indexOff := cw.n
	if err := enc.Encode(&idx); err != nil {
		return fmt.Errorf("packing %s: encoding index: %w", path, err)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if err := msgpack.NewEncoder(f).Encode(packSentinel | uint64(indexOff)); err != nil {
		return fmt.Errorf("packing %s: finalizing header: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	ok = true
	return nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

// packFile is the open file shared by a PackedDataset and its offset
// views.
type packFile struct {
	path    string
	f       *os.File
	dataEnd int64 // start of the index, end of the record region
}

// Path returns the file this dataset was opened from.
func (p *packFile) Path() string { return p.path }

// Close releases the underlying file. Reads after Close fail.
func (p *packFile) Close() error { return p.f.Close() }

func (p *packFile) readAt(off int64, objPtr any) error {
	if _, err := p.f.Seek(off, io.SeekStart); err != nil {
		return err
	}
	dec := msgpack.GetDecoder()
	defer msgpack.PutDecoder(dec)
	dec.ResetDict(p.f, nil)
	if err := dec.Decode(objPtr); err != nil {
		return fmt.Errorf("%s: record at offset %d: %w", p.path, off, err)
	}
	return nil
}

// PackedDataset reads a file written by Pack. It implements Dataset
// with random access by key. Reads seek the shared file handle, so a
// single PackedDataset must not be used from concurrent goroutines
// without external locking.
type PackedDataset[K comparable, V any] struct {
	*packFile
	keys    []K
	offsets map[K]int64
}

// OpenPacked opens a packed dataset file and loads its index into
// memory. The returned dataset holds the file open until Close.
func OpenPacked[K comparable, V any](path string) (*PackedDataset[K, V], error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	var ok bool
	defer func() {
		if !ok {
			f.Close()
		}
	}()

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := st.Size()

	dec := msgpack.GetDecoder()
	defer msgpack.PutDecoder(dec)

	dec.ResetDict(f, nil)
	var header uint64
	if err := dec.Decode(&header); err != nil {
		return nil, fmt.Errorf("%s: reading header: %v: %w", path, err, ErrCorruptStore)
	}
	indexOff := int64(header ^ packSentinel)
	if header&packSentinel == 0 || indexOff < packHeaderLen || indexOff >= size {
		return nil, fmt.Errorf("%s: index offset %d out of range for size %d: %w", path, indexOff, size, ErrCorruptStore)
	}

	if _, err := f.Seek(indexOff, io.SeekStart); err != nil {
		return nil, err
	}
	dec.ResetDict(f, nil)
	var idx packIndex[K]
	if err := dec.Decode(&idx); err != nil {
		return nil, fmt.Errorf("%s: reading index: %v: %w", path, err, ErrCorruptStore)
	}
	if len(idx.Keys) != len(idx.Offsets) {
		return nil, fmt.Errorf("%s: index has %d keys but %d offsets: %w", path, len(idx.Keys), len(idx.Offsets), ErrCorruptStore)
	}

	offsets := make(map[K]int64, len(idx.Keys))
	for i, key := range idx.Keys {
		off := idx.Offsets[i]
		if off < packHeaderLen || off >= indexOff {
			return nil, fmt.Errorf("%s: record offset %d for key %v out of range: %w", path, off, key, ErrCorruptStore)
		}
		offsets[key] = off
	}

	pd := &PackedDataset[K, V]{
		packFile: &packFile{path: path, f: f, dataEnd: indexOff},
		keys:     idx.Keys,
		offsets:  offsets,
	}
	ok = true
	return pd, nil
}

func (pd *PackedDataset[K, V]) Len() int { return len(pd.keys) }

// ListKeys returns the keys in the order they were packed. Callers
// must not modify the returned slice.
func (pd *PackedDataset[K, V]) ListKeys() []K { return pd.keys }

func (pd *PackedDataset[K, V]) QueryItem(key K) (V, error) {
	var item V
	off, ok := pd.offsets[key]
	if !ok {
		return item, keyErrf(key)
	}
	if err := pd.readAt(off, &item); err != nil {
		return item, err
	}
	return item, nil
}

// Offset returns the file offset of the record for key.
func (pd *PackedDataset[K, V]) Offset(key K) (int64, bool) {
	off, ok := pd.offsets[key]
	return off, ok
}

// SortKeysByOffset reorders keys in place by ascending file offset,
// turning random reads into a forward sweep over the file. The sort is
// stable; keys absent from the index sort last.
func (pd *PackedDataset[K, V]) SortKeysByOffset(keys []K) {
	slices.SortStableFunc(keys, func(a, b K) int {
		return cmp.Compare(pd.keyOffset(a), pd.keyOffset(b))
	})
}

func (pd *PackedDataset[K, V]) keyOffset(key K) int64 {
	if off, ok := pd.offsets[key]; ok {
		return off
	}
	return math.MaxInt64
}

// ByOffset returns a view of the same file keyed by record offset
// instead of by key, sparing the key lookup when offsets were obtained
// up front. The view shares the file handle with pd: closing either
// closes both, and the no-concurrent-reads rule spans the pair.
func (pd *PackedDataset[K, V]) ByOffset() *OffsetView[V] {
	offs := make([]int64, len(pd.keys))
	for i, key := range pd.keys {
		offs[i] = pd.offsets[key]
	}
	return &OffsetView[V]{packFile: pd.packFile, offsets: offs}
}

// OffsetView reads records of a packed dataset file by their file
// offset. It implements Dataset keyed by int64 offsets.
type OffsetView[V any] struct {
	*packFile
	offsets []int64
}

// ListKeys returns the record offsets in packing order. Callers must
// not modify the returned slice.
func (v *OffsetView[V]) ListKeys() []int64 { return v.offsets }

// QueryItem reads the record starting at the given offset. Offsets
// must come from ListKeys or PackedDataset.Offset; other values inside
// the record region read garbage or fail to decode.
func (v *OffsetView[V]) QueryItem(off int64) (V, error) {
	var item V
	if off < packHeaderLen || off >= v.dataEnd {
		return item, keyErrf(off)
	}
	if err := v.readAt(off, &item); err != nil {
		return item, err
	}
	return item, nil
}
