package mlworkflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"reflect"
)

// LoadOptions adjust PackOrLoad.
type LoadOptions[V any] struct {
	// CheckFirstN is how many leading keys of the live dataset are
	// compared against the packed file after opening. Zero means one;
	// negative disables checking.
	CheckFirstN int

	// Overwrite deletes an existing file and repacks unconditionally.
	Overwrite bool

	// Equal overrides the staleness comparison. The default encodes
	// both values and compares their decoded forms, so values that
	// serialize identically count as equal whatever their in-memory
	// types. An error from Equal aborts PackOrLoad, since no verdict
	// was reached.
	Equal func(live, stored V) (bool, error)

	// OnStale is called when a spot check fails, after the warning has
	// been logged. The stale store is still returned.
	OnStale func(*StaleError)

	Context context.Context
	Logger  *slog.Logger
}

// PackOrLoad opens the packed dataset at path, building it from ds
// first when the file does not exist. After opening, it spot-checks
// the leading keys against ds and warns if the file no longer matches,
// because a stale cache silently poisons every downstream run. The
// stale store is returned all the same; delete the file or set
// Overwrite to force a rebuild.
func PackOrLoad[K comparable, V any](ds Dataset[K, V], path string, opt LoadOptions[V]) (*PackedDataset[K, V], error) {
	ctx := opt.Context
	if ctx == nil {
		ctx = context.Background()
	}
	logger := opt.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if opt.Overwrite {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	built := false
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := Pack(ds, path, PackOptions[K]{}); err != nil {
			return nil, err
		}
		built = true
	} else if err != nil {
		return nil, err
	}

	pd, err := OpenPacked[K, V](path)
	if err != nil {
		return nil, err
	}

	stale, err := checkFresh(ds, pd, opt)
	if err != nil {
		pd.Close()
		return nil, err
	}
	if stale != nil {
		logStale(ctx, logger, stale, built)
		if opt.OnStale != nil {
			opt.OnStale(stale)
		}
	}
	return pd, nil
}

// checkFresh compares the leading keys of the live dataset against the
// packed file. A failed comparison is a verdict, not an error; errors
// mean no verdict could be reached. Checking stops at the first stale
// key.
func checkFresh[K comparable, V any](ds Dataset[K, V], pd *PackedDataset[K, V], opt LoadOptions[V]) (*StaleError, error) {
	n := opt.CheckFirstN
	if n == 0 {
		n = 1
	} else if n < 0 {
		return nil, nil
	}
	equal := opt.Equal
	if equal == nil {
		equal = codecEqual[V]
	}

	for _, key := range firstN(ds.ListKeys(), n) {
		live, err := ds.QueryItem(key)
		if err != nil {
			return nil, fmt.Errorf("checking %s: reading live item %v: %w", pd.Path(), key, err)
		}
		stored, err := pd.QueryItem(key)
		if errors.Is(err, ErrKeyNotFound) {
			return &StaleError{Path: pd.Path(), Key: key, Err: ErrKeyNotFound}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("checking %s: %w", pd.Path(), err)
		}
		eq, err := equal(live, stored)
		if err != nil {
			return nil, fmt.Errorf("could not decide whether %s is up to date, consider supplying LoadOptions.Equal: %w", pd.Path(), err)
		}
		if !eq {
			return &StaleError{Path: pd.Path(), Key: key}, nil
		}
	}
	return nil, nil
}

// codecEqual is the default staleness comparison: both values are
// normalized through the codec before a deep comparison, so a live
// int and a stored value decoded as int8 still compare equal.
func codecEqual[V any](live, stored V) (bool, error) {
	a, err := normalizeValue(live)
	if err != nil {
		return false, err
	}
	b, err := normalizeValue(stored)
	if err != nil {
		return false, err
	}
	return reflect.DeepEqual(a, b), nil
}

func logStale(ctx context.Context, logger *slog.Logger, stale *StaleError, built bool) {
	msg := "packed dataset no longer matches its source, delete the file to rebuild it"
	if built {
		msg = "packed dataset failed its check right after being built, the source dataset is probably not deterministic"
	}
	reason := "value differs"
	if errors.Is(stale.Err, ErrKeyNotFound) {
		reason = "key missing from file"
	}
	logger.LogAttrs(ctx, slog.LevelWarn, msg,
		slog.String("path", stale.Path),
		slog.Any("key", stale.Key),
		slog.String("reason", reason),
	)
}
