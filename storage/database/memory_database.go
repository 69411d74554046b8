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

import (
	"bytes"
	"errors"
	"sort"
	"sync"
)

var ErrMemDBNotFound = errors.New("not found")

// MemDatabase is the in-memory backend used by tests and by ephemeral runs.
type MemDatabase struct {
	db   map[string][]byte
	lock sync.RWMutex
}

func NewMemDatabase() *MemDatabase {
	return &MemDatabase{db: make(map[string][]byte)}
}

func (db *MemDatabase) Type() DBType { return MemoryDB }

func (db *MemDatabase) Put(key []byte, value []byte) error {
	db.lock.Lock()
	defer db.lock.Unlock()
	db.db[string(key)] = append([]byte(nil), value...)
	return nil
}

func (db *MemDatabase) Has(key []byte) (bool, error) {
	db.lock.RLock()
	defer db.lock.RUnlock()
	_, ok := db.db[string(key)]
	return ok, nil
}

func (db *MemDatabase) Get(key []byte) ([]byte, error) {
	db.lock.RLock()
	defer db.lock.RUnlock()
	if entry, ok := db.db[string(key)]; ok {
		return append([]byte(nil), entry...), nil
	}
	return nil, ErrMemDBNotFound
}

func (db *MemDatabase) Delete(key []byte) error {
	db.lock.Lock()
	defer db.lock.Unlock()
	delete(db.db, string(key))
	return nil
}

func (db *MemDatabase) snapshotRange(start, limit []byte, prefix []byte) *memIterator {
	db.lock.RLock()
	defer db.lock.RUnlock()
	var keys []string
	for k := range db.db {
		kb := []byte(k)
		if prefix != nil && !bytes.HasPrefix(kb, prefix) {
			continue
		}
		if start != nil && bytes.Compare(kb, start) < 0 {
			continue
		}
		if limit != nil && bytes.Compare(kb, limit) >= 0 {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	it := &memIterator{idx: -1}
	for _, k := range keys {
		it.keys = append(it.keys, []byte(k))
		it.values = append(it.values, append([]byte(nil), db.db[k]...))
	}
	return it
}

func (db *MemDatabase) NewIteratorWithPrefix(prefix []byte) Iterator {
	return db.snapshotRange(nil, nil, prefix)
}

func (db *MemDatabase) NewIteratorWithRange(start, limit []byte) Iterator {
	return db.snapshotRange(start, limit, nil)
}

func (db *MemDatabase) Close() {}

func (db *MemDatabase) Len() int {
	db.lock.RLock()
	defer db.lock.RUnlock()
	return len(db.db)
}

type memIterator struct {
	keys   [][]byte
	values [][]byte
	idx    int
}

func (it *memIterator) Next() bool {
	it.idx++
	return it.idx < len(it.keys)
}

func (it *memIterator) Key() []byte   { return it.keys[it.idx] }
func (it *memIterator) Value() []byte { return it.values[it.idx] }
func (it *memIterator) Release()      {}

type memBatch struct {
	db     *MemDatabase
	puts   []kv
	dels   [][]byte
	size   int
}

type kv struct {
	k, v []byte
}

func (db *MemDatabase) NewBatch() Batch {
	return &memBatch{db: db}
}

func (b *memBatch) Put(key, value []byte) error {
	b.puts = append(b.puts, kv{append([]byte(nil), key...), append([]byte(nil), value...)})
	b.size += len(value)
	return nil
}

func (b *memBatch) Delete(key []byte) error {
	b.dels = append(b.dels, append([]byte(nil), key...))
	b.size++
	return nil
}

func (b *memBatch) Write() error {
	b.db.lock.Lock()
	defer b.db.lock.Unlock()
	for _, e := range b.puts {
		b.db.db[string(e.k)] = e.v
	}
	for _, k := range b.dels {
		delete(b.db.db, string(k))
	}
	return nil
}

func (b *memBatch) ValueSize() int { return b.size }

func (b *memBatch) Reset() {
	b.puts, b.dels, b.size = nil, nil, 0
}
