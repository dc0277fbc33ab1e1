package mlworkflow

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"go.etcd.io/bbolt"
)

var boltBlobBucket = []byte("blobs")

// BoltBlobStore keeps every side value in a single bbolt file, for runs
// that freeze many small values and would otherwise litter the log
// directory with one file each. Each record carries an xxhash64
// checksum verified on read.
type BoltBlobStore struct {
	bdb *bbolt.DB
}

// OpenBoltBlobStore opens or creates the blob database at path. Point
// CollectionOptions.Blobs at the result, conventionally at
// "<log path>_blobs.db".
func OpenBoltBlobStore(path string) (*BoltBlobStore, error) {
	bdb, err := bbolt.Open(path, 0o666, nil)
	if err != nil {
		return nil, err
	}
	err = bdb.Update(func(btx *bbolt.Tx) error {
		_, err := btx.CreateBucketIfNotExists(boltBlobBucket)
		return err
	})
	if err != nil {
		bdb.Close()
		return nil, err
	}
	return &BoltBlobStore{bdb: bdb}, nil
}

func (s *BoltBlobStore) Put(name string, data []byte) error {
	rec := make([]byte, 8+len(data))
	binary.BigEndian.PutUint64(rec, xxhash.Sum64(data))
	copy(rec[8:], data)
	return s.bdb.Update(func(btx *bbolt.Tx) error {
		return btx.Bucket(boltBlobBucket).Put([]byte(name), rec)
	})
}

func (s *BoltBlobStore) Get(name string) ([]byte, error) {
	var data []byte
	err := s.bdb.View(func(btx *bbolt.Tx) error {
		rec := btx.Bucket(boltBlobBucket).Get([]byte(name))
		if rec == nil {
			return keyErrf(name)
		}
		if len(rec) < 8 {
			return dataErrf(rec, 0, ErrCorruptStore, "blob %s is shorter than its checksum", name)
		}
		if want, got := binary.BigEndian.Uint64(rec), xxhash.Sum64(rec[8:]); want != got {
			return dataErrf(rec, 0, ErrCorruptStore, "blob %s checksum mismatch: stored %016x, computed %016x", name, want, got)
		}
		data = append([]byte(nil), rec[8:]...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *BoltBlobStore) Close() error { return s.bdb.Close() }
