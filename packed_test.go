package mlworkflow

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func samplePack(t *testing.T) (*MapDataset[string, int], string) {
	t.Helper()
	ds := MapDatasetWithKeys([]string{"c", "a", "b"}, map[string]int{"a": 1, "b": 2, "c": 3})
	path := filepath.Join(t.TempDir(), "sample.pack")
	ensure(Pack(ds, path, PackOptions[string]{}))
	return ds, path
}

func TestPackRoundTrip(t *testing.T) {
	ds, path := samplePack(t)
	pd := must(OpenPacked[string, int](path))
	t.Cleanup(func() { pd.Close() })

	for _, key := range ds.ListKeys() {
		deepEqual(t, must(pd.QueryItem(key)), must(ds.QueryItem(key)))
	}
	deepEqual(t, pd.Len(), 3)
}

func TestPackKeyOrder(t *testing.T) {
	_, path := samplePack(t)
	pd := must(OpenPacked[string, int](path))
	t.Cleanup(func() { pd.Close() })

	deepEqual(t, pd.ListKeys(), []string{"c", "a", "b"})
}

func TestPackDuplicateKeysKeepLastRecord(t *testing.T) {
	n := 0
	ds := FuncDataset[string, int]{
		Keys:  func() []string { return []string{"a"} },
		Query: func(string) (int, error) { n++; return n, nil },
	}
	path := filepath.Join(t.TempDir(), "dup.pack")
	ensure(Pack[string, int](ds, path, PackOptions[string]{Keys: []string{"a", "b", "a"}}))

	pd := must(OpenPacked[string, int](path))
	t.Cleanup(func() { pd.Close() })
	deepEqual(t, pd.ListKeys(), []string{"a", "b"})
	deepEqual(t, must(pd.QueryItem("a")), 3) // third query wins
}

func TestOpenPackedRejectsTruncatedFile(t *testing.T) {
	_, path := samplePack(t)
	data := must(os.ReadFile(path))

	for _, n := range []int{packHeaderLen, packHeaderLen + 2, len(data) - 1} {
		short := filepath.Join(t.TempDir(), "short.pack")
		ensure(os.WriteFile(short, data[:n], 0o666))
		_, err := OpenPacked[string, int](short)
		if !errors.Is(err, ErrCorruptStore) {
			t.Errorf("OpenPacked(truncated to %d) = %v, wanted ErrCorruptStore", n, err)
		}
	}
}

func TestOpenPackedRejectsUnfinalizedFile(t *testing.T) {
	// A build that never backpatched the header left the bare
	// sentinel in place, which decodes to offset zero.
	path := filepath.Join(t.TempDir(), "unfinished.pack")
	header := must(marshalValue(packSentinel))
	deepEqual(t, len(header), packHeaderLen)
	ensure(os.WriteFile(path, append(header, []byte("some records")...), 0o666))

	_, err := OpenPacked[string, int](path)
	if !errors.Is(err, ErrCorruptStore) {
		t.Errorf("OpenPacked(unfinalized) = %v, wanted ErrCorruptStore", err)
	}
}

func TestPackCleanupOnFailure(t *testing.T) {
	boom := errors.New("boom")
	n := 0
	ds := FuncDataset[string, int]{
		Keys: func() []string { return []string{"a", "b"} },
		Query: func(string) (int, error) {
			n++
			if n > 1 {
				return 0, boom
			}
			return n, nil
		},
	}
	path := filepath.Join(t.TempDir(), "fail.pack")
	err := Pack[string, int](ds, path, PackOptions[string]{})
	if !errors.Is(err, boom) {
		t.Fatalf("Pack = %v, wanted boom", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("partial file %s survived a failed Pack", path)
	}
}

func TestQueryItemMissingKey(t *testing.T) {
	_, path := samplePack(t)
	pd := must(OpenPacked[string, int](path))
	t.Cleanup(func() { pd.Close() })

	_, err := pd.QueryItem("nope")
	if !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("QueryItem(missing) = %v, wanted ErrKeyNotFound", err)
	}
}

func TestSortKeysByOffset(t *testing.T) {
	_, path := samplePack(t)
	pd := must(OpenPacked[string, int](path))
	t.Cleanup(func() { pd.Close() })

	keys := []string{"b", "c", "a", "b"}
	pd.SortKeysByOffset(keys)
	deepEqual(t, keys, []string{"c", "a", "b", "b"}) // pack order, duplicates kept

	again := append([]string(nil), keys...)
	pd.SortKeysByOffset(again)
	deepEqual(t, again, keys)
}

func TestByOffset(t *testing.T) {
	ds, path := samplePack(t)
	pd := must(OpenPacked[string, int](path))
	t.Cleanup(func() { pd.Close() })

	v := pd.ByOffset()
	offs := v.ListKeys()
	deepEqual(t, len(offs), 3)
	for i, key := range pd.ListKeys() {
		deepEqual(t, must(v.QueryItem(offs[i])), must(ds.QueryItem(key)))
	}

	_, err := v.QueryItem(0)
	if !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("QueryItem(bad offset) = %v, wanted ErrKeyNotFound", err)
	}
}

func deepEqual[T any](t testing.TB, a, e T) {
	if !reflect.DeepEqual(a, e) {
		t.Helper()
		t.Errorf("** got %v, wanted %v", a, e)
	}
}
