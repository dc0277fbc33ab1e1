package mlworkflow

// AugKey identifies one derived item: the parent key it was expanded
// from plus a sub-key distinguishing it among that parent's
// derivatives.
type AugKey[K, S comparable] struct {
	Root K
	Sub  S
}

// Derived is one item produced by an AugmentFunc, in emission order.
type Derived[S comparable, W any] struct {
	Sub  S
	Item W
}

// AugmentFunc expands one parent item into derived items.
type AugmentFunc[K, S comparable, V, W any] func(key K, item V) []Derived[S, W]

// AugmentedDataset presents the derived items of every parent item as
// a dataset of their own. The expansion of the most recently touched
// parent is kept, so reads grouped by parent expand each parent once.
// Not safe for concurrent use.
type AugmentedDataset[K, S comparable, V, W any] struct {
	ds      Dataset[K, V]
	augment AugmentFunc[K, S, V, W]
	keys    []AugKey[K, S]

	curRoot  K
	curOK    bool
	curOrder []S
	curItems map[S]W
}

func NewAugmentedDataset[K, S comparable, V, W any](ds Dataset[K, V], augment AugmentFunc[K, S, V, W]) *AugmentedDataset[K, S, V, W] {
	return &AugmentedDataset[K, S, V, W]{ds: ds, augment: augment}
}

// Keys lists every derived key, expanding each parent item once on the
// first call. The result is cached.
func (d *AugmentedDataset[K, S, V, W]) Keys() ([]AugKey[K, S], error) {
	if d.keys != nil {
		return d.keys, nil
	}
	var keys []AugKey[K, S]
	for _, root := range d.ds.ListKeys() {
		if err := d.expand(root); err != nil {
			return nil, err
		}
		for _, sub := range d.curOrder {
			keys = append(keys, AugKey[K, S]{root, sub})
		}
	}
	d.keys = keys
	return keys, nil
}

// ListKeys implements Dataset. It panics if a parent item cannot be
// read; use Keys to observe the error.
func (d *AugmentedDataset[K, S, V, W]) ListKeys() []AugKey[K, S] {
	return must(d.Keys())
}

func (d *AugmentedDataset[K, S, V, W]) QueryItem(key AugKey[K, S]) (W, error) {
	var zero W
	if err := d.expand(key.Root); err != nil {
		return zero, err
	}
	w, ok := d.curItems[key.Sub]
	if !ok {
		return zero, keyErrf(key)
	}
	return w, nil
}

func (d *AugmentedDataset[K, S, V, W]) expand(root K) error {
	if d.curOK && root == d.curRoot {
		return nil
	}
	item, err := d.ds.QueryItem(root)
	if err != nil {
		return err
	}
	derived := d.augment(root, item)
	order := make([]S, 0, len(derived))
	items := make(map[S]W, len(derived))
	for _, dv := range derived {
		if _, dup := items[dv.Sub]; !dup {
			order = append(order, dv.Sub)
		}
		items[dv.Sub] = dv.Item
	}
	d.curRoot, d.curOK, d.curOrder, d.curItems = root, true, order, items
	return nil
}
