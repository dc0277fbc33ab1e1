package mlworkflow

import (
	"errors"
	"strings"
	"testing"
)

func cropsOf(key, item string) []Derived[int, string] {
	parts := strings.Split(item, " ")
	out := make([]Derived[int, string], len(parts))
	for i, p := range parts {
		out[i] = Derived[int, string]{Sub: i, Item: p}
	}
	return out
}

func TestAugmentedDataset(t *testing.T) {
	ds := MapDatasetWithKeys([]string{"x", "y"}, map[string]string{"x": "a b", "y": "c"})
	ad := NewAugmentedDataset[string, int, string, string](ds, cropsOf)

	deepEqual(t, must(ad.Keys()), []AugKey[string, int]{{"x", 0}, {"x", 1}, {"y", 0}})
	deepEqual(t, ad.ListKeys(), must(ad.Keys()))

	deepEqual(t, must(ad.QueryItem(AugKey[string, int]{"x", 1})), "b")
	deepEqual(t, must(ad.QueryItem(AugKey[string, int]{"y", 0})), "c")

	_, err := ad.QueryItem(AugKey[string, int]{"x", 9})
	if !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("QueryItem(bad sub) = %v, wanted ErrKeyNotFound", err)
	}
}

func TestAugmentedDatasetExpandsRootOnce(t *testing.T) {
	queries := 0
	ds := FuncDataset[string, string]{
		Keys:  func() []string { return []string{"x"} },
		Query: func(key string) (string, error) { queries++; return "a b c", nil },
	}
	ad := NewAugmentedDataset[string, int, string, string](ds, cropsOf)

	for sub := 0; sub < 3; sub++ {
		deepEqual(t, must(ad.QueryItem(AugKey[string, int]{"x", sub})), string(rune('a'+sub)))
	}
	deepEqual(t, queries, 1) // grouped reads reuse the cached expansion
}

func TestAugmentedDatasetPropagatesRootError(t *testing.T) {
	boom := errors.New("boom")
	ds := FuncDataset[string, string]{
		Keys:  func() []string { return []string{"x"} },
		Query: func(key string) (string, error) { return "", boom },
	}
	ad := NewAugmentedDataset[string, int, string, string](ds, cropsOf)

	if _, err := ad.QueryItem(AugKey[string, int]{"x", 0}); !errors.Is(err, boom) {
		t.Errorf("QueryItem = %v, wanted boom", err)
	}
	if _, err := ad.Keys(); !errors.Is(err, boom) {
		t.Errorf("Keys = %v, wanted boom", err)
	}
}
