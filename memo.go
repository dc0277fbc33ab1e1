package mlworkflow

import (
	"errors"
	"os"

	"github.com/vmihailenco/msgpack/v5"
)

// Memoize caches the result of an expensive computation in a file. When
// path exists, the cached result is decoded and fn never runs;
// otherwise fn runs once and its result is written to path for next
// time. A failed write leaves no file behind, so a later call retries
// the computation instead of decoding garbage.
func Memoize[T any](path string, fn func() (T, error)) (T, error) {
	var result T

	f, err := os.Open(path)
	if err == nil {
		defer f.Close()
		dec := msgpack.GetDecoder()
		defer msgpack.PutDecoder(dec)
		dec.ResetDict(f, nil)
		if err := dec.Decode(&result); err != nil {
			return result, dataErrf(nil, 0, err, "bad memo file %s, delete it to recompute", path)
		}
		return result, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return result, err
	}

	result, err = fn()
	if err != nil {
		return result, err
	}

	f, err = os.Create(path)
	if err != nil {
		return result, err
	}
	var ok bool
	defer closeAndDeleteUnlessOK(f, &ok)
	enc := msgpack.NewEncoder(f)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(result); err != nil {
		return result, err
	}
	if err := f.Sync(); err != nil {
		return result, err
	}
	if err := f.Close(); err != nil {
		return result, err
	}
	ok = true
	return result, nil
}
