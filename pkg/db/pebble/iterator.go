package pebble

import (
	"github.com/cockroachdb/pebble"

	"github.com/intent-solutions-io/irsb-protocol/pkg/db"
)

type Iterator struct {
	iter  *pebble.Iterator
	first bool
}

func (p *KVStore) NewIterator(start, end []byte) (db.Iterator, error) {
	if p.closed.Load() {
		return nil, ErrClosed
	}

	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: start,
		UpperBound: end,
	})
	if err != nil {
		return nil, err
	}

	return &Iterator{iter: iter, first: true}, nil
}

func (i *Iterator) Next() bool {
	if i.first {
		i.first = false
		return i.iter.First()
	}
	return i.iter.Next()
}

func (i *Iterator) Key() []byte {
	key := i.iter.Key()
	result := make([]byte, len(key))
	copy(result, key)
	return result
}

func (i *Iterator) Value() ([]byte, error) {
	value, err := i.iter.ValueAndErr()
	if err != nil {
		return nil, err
	}
	result := make([]byte, len(value))
	copy(result, value)
	return result, nil
}

func (i *Iterator) Valid() bool {
	return i.iter.Valid()
}

func (i *Iterator) Close() error {
	return i.iter.Close()
}
