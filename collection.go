package mlworkflow

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// metadataSuffix marks the sidecar file holding a collection's
// freeform annotations, beside the checkpoint log itself.
const metadataSuffix = "_"

// CollectionOptions adjust OpenCollection.
type CollectionOptions struct {
	// Append allows continuing an existing log file. Without it,
	// opening a path that already exists fails with
	// ErrCollectionExists, so a mistyped path cannot silently mix two
	// runs into one file.
	Append bool

	// Blobs stores the side values written by saver freezers. Nil
	// means a DirBlobStore in the log file's directory, which writes
	// one plain file per value and is closed together with the
	// collection.
	Blobs BlobStore
}

// DataCollection records experimental results as an append-only log of
// checkpoints. Fields are staged in memory with Set and become durable
// as one sparse record per Checkpoint call; the log file is a sequence
// of newline-delimited compact JSON objects and is never rewritten.
// Reads see the staged fields layered over everything checkpointed so
// far. Single writer, no internal locking.
type DataCollection struct {
	path     string
	dir      string
	f        *os.File
	blobs    BlobStore
	ownBlobs bool

	sparse    map[string]any
	cumulated Checkpoint
	history   History
}

// OpenCollection creates or continues the checkpoint log at path. The
// path goes through ExpandPath, so "{}.json" style templates produce
// timestamped file names. An existing file requires opt.Append and is
// replayed in full to rebuild the cumulative state; a fresh file starts
// empty.
func OpenCollection(path string, opt CollectionOptions) (*DataCollection, error) {
	path = ExpandPath(path)

	var (
		f       *os.File
		history History
		err     error
	)
	if _, statErr := os.Stat(path); statErr == nil {
		if !opt.Append {
			return nil, fmt.Errorf("%s: %w", path, ErrCollectionExists)
		}
		history, err = LoadHistory(path)
		if err != nil {
			return nil, err
		}
		f, err = os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o666)
		if err != nil {
			return nil, err
		}
	} else if errors.Is(statErr, os.ErrNotExist) {
		f, err = os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o666)
		if err != nil {
			return nil, err
		}
	} else {
		return nil, statErr
	}

	c := &DataCollection{
		path:      path,
		dir:       filepath.Dir(path),
		f:         f,
		sparse:    make(map[string]any),
		cumulated: make(Checkpoint),
		history:   history,
	}
	if len(history) > 0 {
		for k, v := range history[len(history)-1] {
			c.cumulated[k] = v
		}
	}
	if opt.Blobs != nil {
		c.blobs = opt.Blobs
	} else {
		c.blobs = NewDirBlobStore(c.dir)
		c.ownBlobs = true
	}
	return c, nil
}

// LoadHistory replays the checkpoint log at path without opening it for
// writing, returning the materialized snapshot of every checkpoint. Use
// it to inspect finished runs.
func LoadHistory(path string) (History, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	history, _, err := replayRecords(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return history, nil
}

// replayRecords folds a log file's sparse records left to right,
// producing one cumulative snapshot per record. A record that does not
// parse aborts the replay; a line torn by a crash mid-append surfaces
// here as a parse failure rather than as silently dropped data.
func replayRecords(data []byte) (History, Checkpoint, error) {
	cum := make(Checkpoint)
	var history History
	for lineno := 1; len(data) > 0; lineno++ {
		line := data
		if i := bytes.IndexByte(data, '\n'); i >= 0 {
			line, data = data[:i], data[i+1:]
		} else {
			data = nil
		}
		if len(line) == 0 {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, nil, dataErrf(line, 0, err, "bad checkpoint record on line %d", lineno)
		}
		for k, v := range rec {
			cum[k] = v
		}
		snapshot := make(Checkpoint, len(cum))
		for k, v := range cum {
			snapshot[k] = v
		}
		history = append(history, snapshot)
	}
	return history, cum, nil
}

// Path returns the expanded log file path.
func (c *DataCollection) Path() string { return c.path }

// Dir returns the directory holding the log file and its side values.
func (c *DataCollection) Dir() string { return c.dir }

// Iteration returns the number of durable checkpoints, which is also
// the index the next checkpoint will get.
func (c *DataCollection) Iteration() int { return len(c.history) }

// Set stages a field value in memory. It becomes durable on the next
// Checkpoint; until then Get returns it and the log file does not
// mention it.
func (c *DataCollection) Set(field string, value any) {
	c.sparse[field] = value
}

// SetAll stages fields pairwise with values. It panics when the slices
// differ in length.
func (c *DataCollection) SetAll(fields []string, values []any) {
	if len(fields) != len(values) {
		panic(fmt.Sprintf("SetAll: %d fields but %d values", len(fields), len(values)))
	}
	for i, f := range fields {
		c.sparse[f] = values[i]
	}
}

// Get returns the current value of a field: staged if set since the
// last checkpoint, otherwise the value from the latest checkpoint that
// mentions it. Checkpointed values come back in their JSON-decoded
// form. Returns ErrFieldNotFound when no checkpoint ever set the field.
func (c *DataCollection) Get(field string) (any, error) {
	if v, ok := c.sparse[field]; ok {
		return v, nil
	}
	if v, ok := c.cumulated[field]; ok {
		return v, nil
	}
	return nil, fieldErrf(field)
}

// GetAll returns the values of fields, in order, failing on the first
// missing field.
func (c *DataCollection) GetAll(fields []string) ([]any, error) {
	values := make([]any, len(fields))
	for i, f := range fields {
		v, err := c.Get(f)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

// Checkpoint durably appends the staged fields as one sparse record and
// folds them into the cumulative state. The in-memory fold happens only
// after the record has been written and synced, and re-decodes the
// exact bytes written, so the live state always equals what a replay of
// the file would rebuild. On failure the staged fields stay staged and
// the cumulative state is untouched.
func (c *DataCollection) Checkpoint() error {
	line, err := json.Marshal(c.sparse)
	if err != nil {
		return fmt.Errorf("checkpoint %d of %s: %w", len(c.history), c.path, err)
	}
	line = append(line, '\n')
	if _, err := c.f.Write(line); err != nil {
		return fmt.Errorf("checkpoint %d of %s: %w", len(c.history), c.path, err)
	}
	if err := c.f.Sync(); err != nil {
		return fmt.Errorf("checkpoint %d of %s: %w", len(c.history), c.path, err)
	}

	var rec map[string]any
	ensure(json.Unmarshal(line, &rec))
	for k, v := range rec {
		c.cumulated[k] = v
	}
	snapshot := make(Checkpoint, len(c.cumulated))
	for k, v := range c.cumulated {
		snapshot[k] = v
	}
	c.history = append(c.history, snapshot)
	clear(c.sparse)
	return nil
}

// History returns the materialized snapshots of all durable
// checkpoints. The returned slice and its snapshots must not be
// modified; it remains valid across later checkpoints, which only
// append.
func (c *DataCollection) History() History { return c.history }

// LiveHistory returns History plus one virtual snapshot at the end
// overlaying the staged fields, so code that renders "progress so far"
// can treat the uncommitted state as a checkpoint in the making.
func (c *DataCollection) LiveHistory() History {
	live := make(Checkpoint, len(c.cumulated)+len(c.sparse))
	for k, v := range c.cumulated {
		live[k] = v
	}
	for k, v := range c.sparse {
		live[k] = v
	}
	h := make(History, len(c.history)+1)
	copy(h, c.history)
	h[len(c.history)] = live
	return h
}

// AddMetadata appends one annotation record to the metadata sidecar.
// Metadata lives outside the checkpoint timeline: records accumulate by
// key, later values winning, and are never part of History.
func (c *DataCollection) AddMetadata(meta map[string]any) error {
	return AddMetadata(c.path, meta)
}

// GetMetadata returns the merged annotations of the metadata sidecar.
func (c *DataCollection) GetMetadata() (map[string]any, error) {
	return GetMetadata(c.path)
}

// AddMetadata appends one annotation record to the metadata sidecar of
// the collection log at path, creating the sidecar if needed. Works
// without the collection being open.
func AddMetadata(path string, meta map[string]any) error {
	line, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("metadata for %s: %w", path, err)
	}
	f, err := os.OpenFile(path+metadataSuffix, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o666)
	if err != nil {
		return err
	}
	var ok bool
	defer func() {
		if !ok {
			f.Close()
		}
	}()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("metadata for %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("metadata for %s: %w", path, err)
	}
	ok = true
	return f.Close()
}

// GetMetadata replays the metadata sidecar of the collection log at
// path, merging every record top-down: later records override earlier
// ones per key. A collection without a sidecar has empty metadata.
func GetMetadata(path string) (map[string]any, error) {
	data, err := os.ReadFile(path + metadataSuffix)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, err
	}
	_, merged, err := replayRecords(data)
	if err != nil {
		return nil, fmt.Errorf("%s%s: %w", path, metadataSuffix, err)
	}
	return merged, nil
}

// FreezeContext returns the context handed to freezers working on this
// collection.
func (c *DataCollection) FreezeContext() FreezeContext {
	return FreezeContext{
		Path:      c.path,
		Dir:       c.dir,
		Iteration: len(c.history),
		Blobs:     c.blobs,
	}
}

// SetFrozen routes value through the named freezer and stages the
// resulting descriptor under field. The descriptor is tagged with the
// freezer's name so reads through a different freezer are rejected.
func (c *DataCollection) SetFrozen(freezer, field string, value any) error {
	fz, err := LookupFreezer(freezer)
	if err != nil {
		return err
	}
	desc, err := fz.Freeze(c.FreezeContext(), field, value)
	if err != nil {
		return fmt.Errorf("freezing %s with %s: %w", field, freezer, err)
	}
	desc[frozenByKey] = fz.Name()
	c.Set(field, desc)
	return nil
}

// GetFrozen reads the descriptor stored under field and thaws it
// through the named freezer. The freezer must match the one that froze
// the field, else ErrFrozenElsewhere.
func (c *DataCollection) GetFrozen(freezer, field string) (any, error) {
	raw, err := c.Get(field)
	if err != nil {
		return nil, err
	}
	return unfreezeValue(c.FreezeContext(), freezer, field, raw)
}

// Close releases the log file and, when the collection created its own
// blob store, that store too. Staged fields that were never
// checkpointed are lost.
func (c *DataCollection) Close() error {
	err := c.f.Close()
	if c.ownBlobs {
		if berr := c.blobs.Close(); err == nil {
			err = berr
		}
	}
	return err
}
