package mlworkflow

import (
	"errors"
	"strings"
	"testing"
)

func TestMapDataset(t *testing.T) {
	ds := MapDatasetWithKeys([]string{"b", "a"}, map[string]int{"a": 1, "b": 2})
	deepEqual(t, ds.ListKeys(), []string{"b", "a"})
	deepEqual(t, must(ds.QueryItem("a")), 1)

	_, err := ds.QueryItem("zzz")
	if !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("QueryItem(missing) = %v, wanted ErrKeyNotFound", err)
	}
}

func TestTransformedDataset(t *testing.T) {
	ds := MapDatasetWithKeys([]string{"a", "b"}, map[string]string{"a": "x", "b": "y"})
	td := NewTransformedDataset[string, string](ds,
		func(key, item string) (string, error) { return strings.ToUpper(item), nil },
		func(key, item string) (string, error) { return key + ":" + item, nil },
	)
	deepEqual(t, td.ListKeys(), ds.ListKeys())
	deepEqual(t, must(td.QueryItem("a")), "a:X") // transforms apply left to right

	boom := errors.New("boom")
	bad := NewTransformedDataset[string, string](ds,
		func(key, item string) (string, error) { return "", boom },
	)
	if _, err := bad.QueryItem("a"); !errors.Is(err, boom) {
		t.Errorf("QueryItem = %v, wanted boom", err)
	}
}

func TestCachedDataset(t *testing.T) {
	queries := 0
	ds := FuncDataset[string, int]{
		Keys:  func() []string { return []string{"a", "b"} },
		Query: func(key string) (int, error) { queries++; return len(key), nil },
	}
	cd := NewCachedDataset[string, int](ds)

	deepEqual(t, must(cd.QueryItem("a")), 1)
	deepEqual(t, must(cd.QueryItem("a")), 1)
	deepEqual(t, queries, 1)

	ensure(cd.Fill())
	deepEqual(t, queries, 2) // only "b" was left to read
}

func TestCachedDatasetFillForget(t *testing.T) {
	ds := MapDatasetWithKeys([]string{"a"}, map[string]int{"a": 1})
	cd := NewCachedDataset[string, int](ds)
	ensure(cd.FillForget())

	deepEqual(t, must(cd.QueryItem("a")), 1)
	if _, err := cd.QueryItem("zzz"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("QueryItem(missing after FillForget) = %v, wanted ErrKeyNotFound", err)
	}
}

func TestCacheLastDataset(t *testing.T) {
	queries := 0
	ds := FuncDataset[string, int]{
		Keys:  func() []string { return []string{"a", "b"} },
		Query: func(key string) (int, error) { queries++; return len(key), nil },
	}
	cd := NewCacheLastDataset[string, int](ds)

	deepEqual(t, must(cd.QueryItem("a")), 1)
	deepEqual(t, must(cd.QueryItem("a")), 1)
	deepEqual(t, queries, 1)
	deepEqual(t, must(cd.QueryItem("b")), 1)
	deepEqual(t, must(cd.QueryItem("a")), 1)
	deepEqual(t, queries, 3) // "a" was evicted by "b"
}

func TestQueryAll(t *testing.T) {
	ds := MapDatasetWithKeys([]string{"a", "b"}, map[string]int{"a": 1, "b": 2})
	deepEqual(t, must(QueryAll[string, int](ds, []string{"b", "a", "b"})), []int{2, 1, 2})

	if _, err := QueryAll[string, int](ds, []string{"a", "zzz"}); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("QueryAll = %v, wanted ErrKeyNotFound", err)
	}
}

func TestChunks(t *testing.T) {
	deepEqual(t, Chunks([]int{1, 2, 3, 4, 5}, 2), [][]int{{1, 2}, {3, 4}, {5}})
	deepEqual(t, Chunks([]int{1, 2}, 2), [][]int{{1, 2}})
	deepEqual(t, Chunks([]int{}, 3), [][]int{{}}) // always at least one chunk

	defer func() {
		if recover() == nil {
			t.Errorf("Chunks with size 0 did not panic")
		}
	}()
	Chunks([]int{1}, 0)
}

func TestBatches(t *testing.T) {
	ds := MapDatasetWithKeys([]string{"a", "b", "c"}, map[string]int{"a": 1, "b": 2, "c": 3})

	var batches [][]int
	c := Batches[string, int](ds, nil, 2)
	for c.Next() {
		_, items := c.Batch()
		batches = append(batches, items)
	}
	ensure(c.Err())
	deepEqual(t, batches, [][]int{{1, 2}, {3}})
}

func TestBatchesStopOnError(t *testing.T) {
	boom := errors.New("boom")
	ds := FuncDataset[string, int]{
		Keys: func() []string { return []string{"a", "b"} },
		Query: func(key string) (int, error) {
			if key == "b" {
				return 0, boom
			}
			return 1, nil
		},
	}
	c := Batches[string, int](ds, nil, 1)
	if !c.Next() {
		t.Fatal("first batch failed")
	}
	if c.Next() {
		t.Fatal("second batch succeeded despite the query error")
	}
	if !errors.Is(c.Err(), boom) {
		t.Fatalf("Err = %v, wanted boom", c.Err())
	}
}
