// Package store persists the token ledger in Badger: the latest state
// snapshot plus the full event journal, one record per key.
package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v3"
	"github.com/fxamacker/cbor/v2"

	"github.com/cinder-labs/cinder/eventlog"
	"github.com/cinder-labs/cinder/ledger"
)

type Store struct {
	db  *Database
	log *slog.Logger
}

var _ eventlog.Archive = (*Store)(nil)

// NewStore wraps an opened database. A nil logger means slog.Default().
func NewStore(db *Database, log *slog.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Store{db: db, log: log}, nil
}

// Open opens the database at path and wraps it in a Store.
func Open(path string, log *slog.Logger) (*Store, error) {
	db, err := NewDatabase(path)
	if err != nil {
		return nil, err
	}
	return NewStore(db, log)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SaveSnapshot overwrites the stored state snapshot.
func (s *Store) SaveSnapshot(snap *ledger.Snapshot) error {
	data, err := cbor.Marshal(snap)
	if err != nil {
		return fmt.Errorf("error marshalling snapshot: %v", err)
	}
	if err := s.db.Set([]byte(snapshotKey), data); err != nil {
		return fmt.Errorf("error storing snapshot: %v", err)
	}
	s.log.Debug("snapshot stored", "accounts", len(snap.Balances))
	return nil
}

// LoadSnapshot returns the stored snapshot, or ok=false when none has
// been saved yet.
func (s *Store) LoadSnapshot() (*ledger.Snapshot, bool, error) {
	data, err := s.db.Get([]byte(snapshotKey))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("error reading snapshot: %v", err)
	}

	var snap ledger.Snapshot
	if err := cbor.Unmarshal(data, &snap); err != nil {
		return nil, false, fmt.Errorf("error unmarshalling snapshot: %v", err)
	}
	return &snap, true, nil
}

func recordKey(seq uint64) []byte {
	key := make([]byte, len(RecordPrefix)+8)
	copy(key, RecordPrefix)
	binary.BigEndian.PutUint64(key[len(RecordPrefix):], seq)
	return key
}

// SaveRecords stores one committed batch in a single transaction.
func (s *Store) SaveRecords(recs []eventlog.Record) error {
	if len(recs) == 0 {
		return nil
	}

	db := s.db.GetDB()
	err := db.Update(func(txn *badger.Txn) error {
		for _, rec := range recs {
			data, err := cbor.Marshal(rec)
			if err != nil {
				return fmt.Errorf("error marshalling record %d: %v", rec.Seq, err)
			}
			if err := txn.Set(recordKey(rec.Seq), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("error storing records: %v", err)
	}
	return nil
}

// EachRecord streams every stored record in sequence order. Returning
// an error from fn stops the scan.
func (s *Store) EachRecord(fn func(rec eventlog.Record) error) error {
	db := s.db.GetDB()
	return db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(RecordPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				var rec eventlog.Record
				if err := cbor.Unmarshal(val, &rec); err != nil {
					return fmt.Errorf("error unmarshalling record %x: %v", item.Key(), err)
				}
				return fn(rec)
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}
