package mlworkflow

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"path/filepath"
)

// sideValueName builds the canonical name of a saver freezer's side
// value: the log file's base name, the checkpoint index, and the field,
// joined by underscores, so the run directory lists side values next to
// their log in chronological order.
func sideValueName(fc FreezeContext, field string) (string, error) {
	if field == "" {
		return "", fmt.Errorf("cannot save a side value for an empty field name")
	}
	return fmt.Sprintf("%s_%d_%s", filepath.Base(fc.Path), fc.Iteration, field), nil
}

// blobFreezer writes the value's msgpack encoding as a side value in
// the collection's blob store and keeps only its name in the log. The
// freezer for anything too big to inline.
type blobFreezer struct{}

func (blobFreezer) Name() string { return "blob" }

func (blobFreezer) Freeze(fc FreezeContext, field string, value any) (map[string]any, error) {
	name, err := sideValueName(fc, field)
	if err != nil {
		return nil, err
	}
	buf, err := marshalValue(value)
	if err != nil {
		return nil, err
	}
	if err := fc.Blobs.Put(name, buf); err != nil {
		return nil, err
	}
	return map[string]any{"name": name}, nil
}

func (blobFreezer) Unfreeze(fc FreezeContext, desc map[string]any) (any, error) {
	name, err := descString(desc, "name")
	if err != nil {
		return nil, err
	}
	buf, err := fc.Blobs.Get(name)
	if err != nil {
		return nil, err
	}
	var v any
	if err := unmarshalValue(buf, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// pngFreezer stores an image.Image as a PNG side value. Unfreeze
// returns the decoded image.Image.
type pngFreezer struct{}

func (pngFreezer) Name() string { return "png" }

func (pngFreezer) Freeze(fc FreezeContext, field string, value any) (map[string]any, error) {
	img, ok := value.(image.Image)
	if !ok {
		return nil, fmt.Errorf("png freezer needs an image.Image, got %T", value)
	}
	name, err := sideValueName(fc, field)
	if err != nil {
		return nil, err
	}
	name += ".png"
	var bb bytes.Buffer
	if err := png.Encode(&bb, img); err != nil {
		return nil, err
	}
	if err := fc.Blobs.Put(name, bb.Bytes()); err != nil {
		return nil, err
	}
	return map[string]any{"name": name}, nil
}

func (pngFreezer) Unfreeze(fc FreezeContext, desc map[string]any) (any, error) {
	name, err := descString(desc, "name")
	if err != nil {
		return nil, err
	}
	buf, err := fc.Blobs.Get(name)
	if err != nil {
		return nil, err
	}
	img, err := png.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, dataErrf(buf, 0, err, "bad PNG side value %s", name)
	}
	return img, nil
}
