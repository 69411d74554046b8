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
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger"

	"github.com/alexlange1/alphamind/log"
)

const gcThreshold = int64(1 << 30)
const sizeGCTickerTime = 1 * time.Minute

type badgerDB struct {
	fn string
	db *badger.DB

	gcTicker *time.Ticker
	closed   chan struct{}

	logger log.Logger
}

func getBadgerDBDefaultOption(dbDir string) badger.Options {
	opts := badger.DefaultOptions(dbDir)
	opts.Logger = nil
	return opts
}

// NewBadgerDB opens a badger-backed Database at dbDir.
func NewBadgerDB(dbDir string) (*badgerDB, error) {
	localLogger := logger.NewWith("dbDir", dbDir)

	if fi, err := os.Stat(dbDir); err == nil {
		if !fi.IsDir() {
			return nil, fmt.Errorf("badger dbDir is not a directory: %v", dbDir)
		}
	} else if os.IsNotExist(err) {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return nil, fmt.Errorf("cannot make badger dbDir %v: %v", dbDir, err)
		}
	} else {
		return nil, fmt.Errorf("cannot stat badger dbDir %v: %v", dbDir, err)
	}

	db, err := badger.Open(getBadgerDBDefaultOption(dbDir))
	if err != nil {
		return nil, fmt.Errorf("cannot open badger at %v: %v", dbDir, err)
	}

	bg := &badgerDB{
		fn:       dbDir,
		db:       db,
		gcTicker: time.NewTicker(sizeGCTickerTime),
		closed:   make(chan struct{}),
		logger:   localLogger,
	}
	go bg.runValueLogGC()
	return bg, nil
}

// runValueLogGC periodically checks the value log size and collects garbage
// once it has grown by gcThreshold since the last collection.
func (bg *badgerDB) runValueLogGC() {
	_, lastValueLogSize := bg.db.Size()
	for {
		select {
		case <-bg.closed:
			return
		case <-bg.gcTicker.C:
			_, currValueLogSize := bg.db.Size()
			if currValueLogSize-lastValueLogSize < gcThreshold {
				continue
			}
			if err := bg.db.RunValueLogGC(0.5); err != nil {
				bg.logger.Error("Error while runValueLogGC()", "err", err)
				continue
			}
			_, lastValueLogSize = bg.db.Size()
		}
	}
}

func (bg *badgerDB) Type() DBType { return BadgerDB }

func (bg *badgerDB) Path() string { return bg.fn }

func (bg *badgerDB) Put(key []byte, value []byte) error {
	txn := bg.db.NewTransaction(true)
	defer txn.Discard()
	if err := txn.Set(key, value); err != nil {
		return err
	}
	return txn.Commit()
}

func (bg *badgerDB) Has(key []byte) (bool, error) {
	txn := bg.db.NewTransaction(false)
	defer txn.Discard()
	if _, err := txn.Get(key); err == badger.ErrKeyNotFound {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return true, nil
}

func (bg *badgerDB) Get(key []byte) ([]byte, error) {
	txn := bg.db.NewTransaction(false)
	defer txn.Discard()
	item, err := txn.Get(key)
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func (bg *badgerDB) Delete(key []byte) error {
	txn := bg.db.NewTransaction(true)
	defer txn.Discard()
	if err := txn.Delete(key); err != nil {
		return err
	}
	return txn.Commit()
}

func (bg *badgerDB) NewIteratorWithPrefix(prefix []byte) Iterator {
	return newBadgerIterator(bg.db, prefix, nil)
}

func (bg *badgerDB) NewIteratorWithRange(start, limit []byte) Iterator {
	return newBadgerIterator(bg.db, start, limit)
}

func (bg *badgerDB) Close() {
	close(bg.closed)
	bg.gcTicker.Stop()
	if err := bg.db.Close(); err != nil {
		bg.logger.Error("Failed to close database", "err", err)
		return
	}
	bg.logger.Info("Database closed")
}

func (bg *badgerDB) NewBatch() Batch {
	return &badgerBatch{db: bg.db, wb: bg.db.NewWriteBatch()}
}

type badgerIterator struct {
	txn     *badger.Txn
	it      *badger.Iterator
	start   []byte
	limit   []byte
	first   bool
	key     []byte
	value   []byte
}

func newBadgerIterator(db *badger.DB, start, limit []byte) *badgerIterator {
	txn := db.NewTransaction(false)
	opts := badger.DefaultIteratorOptions
	if limit == nil {
		opts.Prefix = start
	}
	it := txn.NewIterator(opts)
	return &badgerIterator{txn: txn, it: it, start: start, limit: limit, first: true}
}

func (it *badgerIterator) Next() bool {
	if it.first {
		it.it.Seek(it.start)
		it.first = false
	} else {
		it.it.Next()
	}
	if !it.it.Valid() {
		return false
	}
	item := it.it.Item()
	key := item.KeyCopy(nil)
	if it.limit != nil && bytes.Compare(key, it.limit) >= 0 {
		return false
	}
	value, err := item.ValueCopy(nil)
	if err != nil {
		return false
	}
	it.key, it.value = key, value
	return true
}

func (it *badgerIterator) Key() []byte   { return it.key }
func (it *badgerIterator) Value() []byte { return it.value }

func (it *badgerIterator) Release() {
	it.it.Close()
	it.txn.Discard()
}

type badgerBatch struct {
	db   *badger.DB
	wb   *badger.WriteBatch
	size int
}

func (b *badgerBatch) Put(key, value []byte) error {
	if err := b.wb.Set(append([]byte(nil), key...), append([]byte(nil), value...)); err != nil {
		return err
	}
	b.size += len(value)
	return nil
}

func (b *badgerBatch) Delete(key []byte) error {
	if err := b.wb.Delete(append([]byte(nil), key...)); err != nil {
		return err
	}
	b.size++
	return nil
}

func (b *badgerBatch) Write() error { return b.wb.Flush() }

func (b *badgerBatch) ValueSize() int { return b.size }

func (b *badgerBatch) Reset() {
	b.wb.Cancel()
	b.wb = b.db.NewWriteBatch()
	b.size = 0
}
