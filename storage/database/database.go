// Copyright 2025 The alphamind Authors
// This file is part of the alphamind library.
//
// The alphamind library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The alphamind library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the alphamind library. If not, see <http://www.gnu.org/licenses/>.

package database

// DBType selects the persistent backend.
type DBType string

const (
	LevelDB  DBType = "leveldb"
	BadgerDB DBType = "badger"
	MemoryDB DBType = "memory"
)

// Putter wraps the write method shared by databases and batches.
type Putter interface {
	Put(key []byte, value []byte) error
}

// Iterator walks a key range in ascending key order. Release must be called
// exactly once.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Release()
}

// Batch collects writes for one atomic flush.
type Batch interface {
	Putter
	Delete(key []byte) error
	Write() error
	ValueSize() int
	Reset()
}

// Database is the minimal key-value surface every backend provides. One
// report, snapshot or artifact maps to one entry, so a corrupt value never
// poisons its neighbors.
type Database interface {
	Putter
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	Delete(key []byte) error
	// NewIteratorWithPrefix iterates every key carrying the prefix.
	NewIteratorWithPrefix(prefix []byte) Iterator
	// NewIteratorWithRange iterates keys in [start, limit).
	NewIteratorWithRange(start, limit []byte) Iterator
	NewBatch() Batch
	Type() DBType
	Close()
}

// table prefixes every key, carving a namespace out of a shared database.
type table struct {
	db     Database
	prefix string
}

// NewTable returns a Database view whose keys all carry the given prefix.
func NewTable(db Database, prefix string) Database {
	return &table{db: db, prefix: prefix}
}

func (dt *table) Type() DBType { return dt.db.Type() }

func (dt *table) Put(key []byte, value []byte) error {
	return dt.db.Put(append([]byte(dt.prefix), key...), value)
}

func (dt *table) Get(key []byte) ([]byte, error) {
	return dt.db.Get(append([]byte(dt.prefix), key...))
}

func (dt *table) Has(key []byte) (bool, error) {
	return dt.db.Has(append([]byte(dt.prefix), key...))
}

func (dt *table) Delete(key []byte) error {
	return dt.db.Delete(append([]byte(dt.prefix), key...))
}

func (dt *table) NewIteratorWithPrefix(prefix []byte) Iterator {
	inner := dt.db.NewIteratorWithPrefix(append([]byte(dt.prefix), prefix...))
	return &tableIterator{Iterator: inner, strip: len(dt.prefix)}
}

func (dt *table) NewIteratorWithRange(start, limit []byte) Iterator {
	inner := dt.db.NewIteratorWithRange(append([]byte(dt.prefix), start...), append([]byte(dt.prefix), limit...))
	return &tableIterator{Iterator: inner, strip: len(dt.prefix)}
}

func (dt *table) Close() {
	// Never close the shared database underneath.
}

type tableIterator struct {
	Iterator
	strip int
}

func (it *tableIterator) Key() []byte {
	k := it.Iterator.Key()
	if len(k) < it.strip {
		return k
	}
	return k[it.strip:]
}

type tableBatch struct {
	batch  Batch
	prefix string
}

func (dt *table) NewBatch() Batch {
	return &tableBatch{dt.db.NewBatch(), dt.prefix}
}

func (tb *tableBatch) Put(key, value []byte) error {
	return tb.batch.Put(append([]byte(tb.prefix), key...), value)
}

func (tb *tableBatch) Delete(key []byte) error {
	return tb.batch.Delete(append([]byte(tb.prefix), key...))
}

func (tb *tableBatch) Write() error { return tb.batch.Write() }

func (tb *tableBatch) ValueSize() int { return tb.batch.ValueSize() }

func (tb *tableBatch) Reset() { tb.batch.Reset() }
