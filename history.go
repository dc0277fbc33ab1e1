package mlworkflow

// Checkpoint is the materialized state of a collection after one
// durable record: every field set by that record or any earlier one,
// each at its latest value, in JSON-decoded form.
type Checkpoint map[string]any

// Get returns the field's value at this checkpoint, or
// ErrFieldNotFound when no record up to this point set it.
func (cp Checkpoint) Get(field string) (any, error) {
	v, ok := cp[field]
	if !ok {
		return nil, fieldErrf(field)
	}
	return v, nil
}

// GetOr returns the field's value at this checkpoint, or def when the
// field was never set.
func (cp Checkpoint) GetOr(field string, def any) any {
	if v, ok := cp[field]; ok {
		return v
	}
	return def
}

// GetAll returns the values of fields, in order, failing on the first
// missing field.
func (cp Checkpoint) GetAll(fields []string) ([]any, error) {
	values := make([]any, len(fields))
	for i, f := range fields {
		v, err := cp.Get(f)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

// GetFrozen thaws the descriptor stored under field through the named
// freezer. Replayed descriptors carry everything needed, so frozen
// values of old runs are readable from LoadHistory output given a
// FreezeContext pointing at the run's files.
func (cp Checkpoint) GetFrozen(fc FreezeContext, freezer, field string) (any, error) {
	raw, err := cp.Get(field)
	if err != nil {
		return nil, err
	}
	return unfreezeValue(fc, freezer, field, raw)
}

// History is the ordered sequence of a collection's checkpoints,
// oldest first. It is a plain slice: len, range and slicing work as
// usual; At adds negative indexing from the end.
type History []Checkpoint

// At returns the i-th checkpoint. Negative indices count back from the
// end, so At(-1) is the latest. Panics when i is out of range, like
// slice indexing.
func (h History) At(i int) Checkpoint {
	if i < 0 {
		i += len(h)
	}
	return h[i]
}

// Field collects the field's value at every checkpoint, oldest first.
// Fails with ErrFieldNotFound on the first checkpoint lacking the
// field; use FieldOr to tolerate gaps.
func (h History) Field(field string) ([]any, error) {
	values := make([]any, len(h))
	for i, cp := range h {
		v, err := cp.Get(field)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

// FieldOr collects the field's value at every checkpoint, substituting
// def at checkpoints where the field was not yet (or never) set.
func (h History) FieldOr(field string, def any) []any {
	values := make([]any, len(h))
	for i, cp := range h {
		values[i] = cp.GetOr(field, def)
	}
	return values
}
