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
	"github.com/syndtr/goleveldb/leveldb"
	ldberrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/alexlange1/alphamind/log"
)

var OpenFileLimit = 64

type levelDB struct {
	fn string
	db *leveldb.DB

	log log.Logger
}

func getLDBOptions(cacheSize, numHandles int) *opt.Options {
	return &opt.Options{
		OpenFilesCacheCapacity: numHandles,
		BlockCacheCapacity:     cacheSize / 2 * opt.MiB,
		WriteBuffer:            cacheSize / 4 * opt.MiB, // Two of these are used internally
		Filter:                 filter.NewBloomFilter(10),
	}
}

// NewLDBDatabase opens (and if necessary recovers) a LevelDB at file.
func NewLDBDatabase(file string, cacheSize, numHandles int) (*levelDB, error) {
	localLogger := logger.NewWith("database", file)

	// Ensure we have some minimal caching and file guarantees
	if cacheSize < 16 {
		cacheSize = 16
	}
	if numHandles < 16 {
		numHandles = 16
	}

	// Open the db and recover any potential corruptions
	db, err := leveldb.OpenFile(file, getLDBOptions(cacheSize, numHandles))
	if _, corrupted := err.(*ldberrors.ErrCorrupted); corrupted {
		localLogger.Warn("Recovering corrupted database")
		db, err = leveldb.RecoverFile(file, nil)
	}
	if err != nil {
		return nil, err
	}
	localLogger.Info("Allocated LevelDB", "cacheSize", cacheSize, "numHandles", numHandles)
	return &levelDB{
		fn:  file,
		db:  db,
		log: localLogger,
	}, nil
}

func (db *levelDB) Type() DBType { return LevelDB }

// Path returns the path to the database directory.
func (db *levelDB) Path() string { return db.fn }

func (db *levelDB) Put(key []byte, value []byte) error {
	return db.db.Put(key, value, nil)
}

func (db *levelDB) Has(key []byte) (bool, error) {
	return db.db.Has(key, nil)
}

func (db *levelDB) Get(key []byte) ([]byte, error) {
	dat, err := db.db.Get(key, nil)
	if err != nil {
		return nil, err
	}
	return dat, nil
}

func (db *levelDB) Delete(key []byte) error {
	return db.db.Delete(key, nil)
}

func (db *levelDB) NewIteratorWithPrefix(prefix []byte) Iterator {
	return &ldbIterator{it: db.db.NewIterator(util.BytesPrefix(prefix), nil)}
}

func (db *levelDB) NewIteratorWithRange(start, limit []byte) Iterator {
	return &ldbIterator{it: db.db.NewIterator(&util.Range{Start: start, Limit: limit}, nil)}
}

func (db *levelDB) Close() {
	if err := db.db.Close(); err != nil {
		db.log.Error("Failed to close database", "err", err)
		return
	}
	db.log.Info("Database closed")
}

func (db *levelDB) NewBatch() Batch {
	return &ldbBatch{db: db.db, b: new(leveldb.Batch)}
}

type ldbIterator struct {
	it iterator.Iterator
}

func (it *ldbIterator) Next() bool    { return it.it.Next() }
func (it *ldbIterator) Key() []byte   { return append([]byte(nil), it.it.Key()...) }
func (it *ldbIterator) Value() []byte { return append([]byte(nil), it.it.Value()...) }
func (it *ldbIterator) Release()      { it.it.Release() }

type ldbBatch struct {
	db   *leveldb.DB
	b    *leveldb.Batch
	size int
}

func (b *ldbBatch) Put(key, value []byte) error {
	b.b.Put(key, value)
	b.size += len(value)
	return nil
}

func (b *ldbBatch) Delete(key []byte) error {
	b.b.Delete(key)
	b.size++
	return nil
}

func (b *ldbBatch) Write() error { return b.db.Write(b.b, nil) }

func (b *ldbBatch) ValueSize() int { return b.size }

func (b *ldbBatch) Reset() {
	b.b.Reset()
	b.size = 0
}
