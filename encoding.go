package mlworkflow

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// marshalValue encodes v to msgpack with sorted map keys, so that equal
// maps produce identical bytes.
func marshalValue(v any) ([]byte, error) {
	var bb bytes.Buffer
	enc := msgpack.GetEncoder()
	enc.ResetDict(&bb, nil)
	enc.SetSortMapKeys(true)
	err := enc.Encode(v)
	msgpack.PutEncoder(enc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %T using msgpack: %w", v, err)
	}
	return bb.Bytes(), nil
}

func unmarshalValue(buf []byte, objPtr any) error {
	var r bytes.Reader
	r.Reset(buf)
	dec := msgpack.GetDecoder()
	dec.ResetDict(&r, nil)
	err := dec.Decode(objPtr)
	msgpack.PutDecoder(dec)
	if err != nil {
		return dataErrf(buf, 0, err, "failed to decode msgpack into %T", objPtr)
	}
	return nil
}

// normalizeValue runs v through the codec and back, replacing typed
// values with the generic form a reader of the encoded bytes sees.
// Two values that encode to the same bytes normalize to deep-equal
// results, which makes this the basis of the default staleness check.
func normalizeValue(v any) (any, error) {
	buf, err := marshalValue(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := unmarshalValue(buf, &out); err != nil {
		return nil, err
	}
	return out, nil
}
