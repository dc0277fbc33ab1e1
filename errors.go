package mlworkflow

import (
	"errors"
	"fmt"
)

var (
	// ErrKeyNotFound is returned by QueryItem when a dataset does not
	// contain the requested key, and by blob stores for missing names.
	ErrKeyNotFound = errors.New("key not found")

	// ErrFieldNotFound is returned when a collection or checkpoint does
	// not hold the requested field.
	ErrFieldNotFound = errors.New("field not found")

	// ErrCollectionExists is returned by OpenCollection when the log file
	// already exists and Append was not requested.
	ErrCollectionExists = errors.New("collection file already exists (set Append to continue it)")

	// ErrCorruptStore is returned when stored data fails validation: a
	// packed dataset with a truncated header, out-of-bounds index
	// offset or undecodable index, or a blob whose checksum does not
	// match. Never-finalized packed files (interrupted builds) decode
	// to an offset of zero and fail the bounds check.
	ErrCorruptStore = errors.New("stored data is corrupt or was not finalized")

	// ErrFrozenElsewhere is returned by GetFrozen when the stored
	// descriptor was produced by a different freezer than the one asked
	// to thaw it.
	ErrFrozenElsewhere = errors.New("field was frozen by a different freezer")
)

type DataError struct {
	Data []byte
	Off  int
	Err  error
	Msg  string
}

func dataErrf(data []byte, off int, err error, format string, args ...any) error {
	return &DataError{data, off, err, fmt.Sprintf(format, args...)}
}

func (e *DataError) Unwrap() error {
	return e.Err
}

func (e *DataError) Error() string {
	const prefixLen = 64
	const suffixLen = 32
	n := len(e.Data)
	if n <= prefixLen+suffixLen {
		if e.Err != nil {
			return fmt.Sprintf("%s: %v: (%d) %x", e.Msg, e.Err, n, e.Data)
		} else {
			return fmt.Sprintf("%s: (%d) %x", e.Msg, n, e.Data)
		}
	} else {
		p, s := e.Data[:prefixLen], e.Data[n-suffixLen:]
		if e.Err != nil {
			return fmt.Sprintf("%s: %v: (%d) %x...%x", e.Msg, e.Err, n, p, s)
		} else {
			return fmt.Sprintf("%s: (%d) %x...%x", e.Msg, n, p, s)
		}
	}
}

// StaleError describes why a packed dataset failed its freshness check
// against the live dataset it was built from. It is reported through
// LoadOptions.OnStale and a log warning, never returned; PackOrLoad
// still hands back the stale store.
type StaleError struct {
	Path string
	Key  any
	Err  error // ErrKeyNotFound when the store lacks the key, nil on a value mismatch
}

func (e *StaleError) Unwrap() error {
	return e.Err
}

func (e *StaleError) Error() string {
	if errors.Is(e.Err, ErrKeyNotFound) {
		return fmt.Sprintf("packed dataset %s is stale: key %v is missing", e.Path, e.Key)
	}
	return fmt.Sprintf("packed dataset %s is stale: value for key %v differs from the live dataset", e.Path, e.Key)
}

func keyErrf(key any) error {
	return fmt.Errorf("%v: %w", key, ErrKeyNotFound)
}

func fieldErrf(field string) error {
	return fmt.Errorf("%s: %w", field, ErrFieldNotFound)
}
