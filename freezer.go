package mlworkflow

import (
	"encoding/base64"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/golang/snappy"
)

// frozenByKey tags a descriptor with the freezer that produced it.
const frozenByKey = "_frozen_by"

// FreezeContext carries the collection-side facts a freezer may need:
// where the log lives and which checkpoint is being written, for naming
// side values, and the blob store to write them to.
type FreezeContext struct {
	Path      string // collection log file path
	Dir       string // directory of Path
	Iteration int    // index of the checkpoint being staged
	Blobs     BlobStore
}

// Freezer converts values to and from small JSON-able descriptors, so
// that heterogeneous value kinds share a collection's sparse record
// machinery while large payloads live out of line. Freezers are
// stateless per call; everything run-specific arrives in the
// FreezeContext. Unfreeze must work from the descriptor and context
// alone, since descriptors are replayed from old log files.
type Freezer interface {
	Name() string
	Freeze(fc FreezeContext, field string, value any) (map[string]any, error)
	Unfreeze(fc FreezeContext, desc map[string]any) (any, error)
}

var (
	freezersMu sync.Mutex
	freezers   = make(map[string]Freezer)
)

// RegisterFreezer makes a freezer available by name. It panics when the
// freezer is nil or the name is already taken, matching database/sql
// driver registration. Call from init or before opening collections.
func RegisterFreezer(f Freezer) {
	if f == nil {
		panic("RegisterFreezer: nil freezer")
	}
	freezersMu.Lock()
	defer freezersMu.Unlock()
	name := f.Name()
	if _, dup := freezers[name]; dup {
		panic("RegisterFreezer: duplicate freezer name " + name)
	}
	freezers[name] = f
}

// LookupFreezer returns the registered freezer with the given name.
func LookupFreezer(name string) (Freezer, error) {
	freezersMu.Lock()
	defer freezersMu.Unlock()
	f, ok := freezers[name]
	if !ok {
		return nil, fmt.Errorf("unknown freezer %q (registered: %v)", name, freezerNamesLocked())
	}
	return f, nil
}

func freezerNamesLocked() []string {
	names := make([]string, 0, len(freezers))
	for name := range freezers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	RegisterFreezer(b64Freezer{})
	RegisterFreezer(b64SnappyFreezer{})
	RegisterFreezer(blobFreezer{})
	RegisterFreezer(pngFreezer{})
	RegisterFreezer(modulesFreezer{})
}

// unfreezeValue checks a stored value is a descriptor produced by the
// named freezer and thaws it. Descriptors replayed from a log file
// arrive as map[string]any; freshly staged ones are the same maps the
// freezer returned.
func unfreezeValue(fc FreezeContext, freezer, field string, raw any) (any, error) {
	desc, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("field %s holds %T, not a frozen descriptor: %w", field, raw, ErrFrozenElsewhere)
	}
	fz, err := LookupFreezer(freezer)
	if err != nil {
		return nil, err
	}
	if by, _ := desc[frozenByKey].(string); by != fz.Name() {
		return nil, fmt.Errorf("field %s was frozen by %q, not %q: %w", field, by, fz.Name(), ErrFrozenElsewhere)
	}
	v, err := fz.Unfreeze(fc, desc)
	if err != nil {
		return nil, fmt.Errorf("unfreezing %s with %s: %w", field, freezer, err)
	}
	return v, nil
}

// descString reads a required string entry of a descriptor.
func descString(desc map[string]any, key string) (string, error) {
	v, ok := desc[key]
	if !ok {
		return "", fmt.Errorf("descriptor lacks %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("descriptor %q holds %T, not a string", key, v)
	}
	return s, nil
}

// b64Freezer stores a value inline as base64 of its msgpack encoding.
// Good for values too structured for raw JSON but small enough to live
// in the log file itself.
type b64Freezer struct{}

func (b64Freezer) Name() string { return "b64" }

func (b64Freezer) Freeze(fc FreezeContext, field string, value any) (map[string]any, error) {
	buf, err := marshalValue(value)
	if err != nil {
		return nil, err
	}
	return map[string]any{"value": base64.StdEncoding.EncodeToString(buf)}, nil
}

func (b64Freezer) Unfreeze(fc FreezeContext, desc map[string]any) (any, error) {
	s, err := descString(desc, "value")
	if err != nil {
		return nil, err
	}
	buf, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	var v any
	if err := unmarshalValue(buf, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// b64SnappyFreezer is b64Freezer with snappy compression in between,
// for inline values large enough for compression to pay off.
type b64SnappyFreezer struct{}

func (b64SnappyFreezer) Name() string { return "b64snappy" }

func (b64SnappyFreezer) Freeze(fc FreezeContext, field string, value any) (map[string]any, error) {
	buf, err := marshalValue(value)
	if err != nil {
		return nil, err
	}
	packed := snappy.Encode(nil, buf)
	return map[string]any{"value": base64.StdEncoding.EncodeToString(packed)}, nil
}

func (b64SnappyFreezer) Unfreeze(fc FreezeContext, desc map[string]any) (any, error) {
	s, err := descString(desc, "value")
	if err != nil {
		return nil, err
	}
	packed, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	buf, err := snappy.Decode(nil, packed)
	if err != nil {
		return nil, err
	}
	var v any
	if err := unmarshalValue(buf, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// modulesFreezer records module (or resource directory) redirections
// relative to the collection, anchoring them at the collection's
// directory on thaw. Accepts a map from name to relative target, or a
// plain list of names which redirect to themselves.
type modulesFreezer struct{}

func (modulesFreezer) Name() string { return "modules" }

func (modulesFreezer) Freeze(fc FreezeContext, field string, value any) (map[string]any, error) {
	redirs, err := moduleRedirections(value)
	if err != nil {
		return nil, err
	}
	return map[string]any{"modules": redirs}, nil
}

func (modulesFreezer) Unfreeze(fc FreezeContext, desc map[string]any) (any, error) {
	raw, ok := desc["modules"]
	if !ok {
		return nil, fmt.Errorf("descriptor lacks %q", "modules")
	}
	redirs, err := moduleRedirections(raw)
	if err != nil {
		return nil, err
	}
	anchored := make(map[string]string, len(redirs))
	for name, target := range redirs {
		anchored[name] = filepath.Join(fc.Dir, filepath.FromSlash(target))
	}
	return anchored, nil
}

// moduleRedirections normalizes the accepted redirection shapes,
// including the map[string]any and []any forms a JSON replay produces.
func moduleRedirections(value any) (map[string]string, error) {
	switch v := value.(type) {
	case map[string]string:
		return v, nil
	case map[string]any:
		redirs := make(map[string]string, len(v))
		for name, target := range v {
			s, ok := target.(string)
			if !ok {
				return nil, fmt.Errorf("module %s redirects to %T, not a string", name, target)
			}
			redirs[name] = s
		}
		return redirs, nil
	case []string:
		redirs := make(map[string]string, len(v))
		for _, name := range v {
			redirs[name] = name
		}
		return redirs, nil
	case []any:
		redirs := make(map[string]string, len(v))
		for _, name := range v {
			s, ok := name.(string)
			if !ok {
				return nil, fmt.Errorf("module list holds %T, not a string", name)
			}
			redirs[s] = s
		}
		return redirs, nil
	default:
		return nil, fmt.Errorf("module redirections must be a map or a list of names, got %T", value)
	}
}
