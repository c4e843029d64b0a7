package db

// KVStore backs the audit trail. The trail is append-only: records are
// written once under prefixed keys and read back individually or by
// prefix scan, so the store exposes no delete operation.
type KVStore interface {
	Writer
	Get(key []byte) ([]byte, error)
	NewBatch() Batch
	NewIterator(start, end []byte) (Iterator, error)
	Close() error
}

type Writer interface {
	Put(key []byte, value []byte) error
}

// Batch groups writes that must land atomically, such as an evidence
// entry together with its sequence counter.
type Batch interface {
	Writer
	Commit() error
	Close() error
}

// Iterator provides sequential access over a range of key-value pairs.
// Iterators must be closed after use.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() ([]byte, error)
	Valid() bool
	Close() error
}
