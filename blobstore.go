package mlworkflow

// BlobStore holds the side values written by saver freezers: named
// opaque byte payloads too large to inline in a collection's log file.
// Implementations must make Put durable before returning and must
// return ErrKeyNotFound (possibly wrapped) from Get for unknown names.
// Single writer, like the collection that owns the store.
type BlobStore interface {
	Put(name string, data []byte) error
	Get(name string) ([]byte, error)
	Close() error
}
