// Package meta implements the metadata-block persistence service on BadgerDB.
//
// Each persisted record lives under the key "sb/<kind>/<seq>" where seq is a
// monotonically increasing sequence number, so that the recovery scan visits
// records of a kind in persistence order. The value is a CRC32-C checksum
// over the payload (4 bytes, little-endian) followed by the raw payload.
package meta

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"sync"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/marmos91/dittoblock/internal/logger"
	"github.com/marmos91/dittoblock/pkg/engine"
	"github.com/marmos91/dittoblock/pkg/metrics"
	volerrors "github.com/marmos91/dittoblock/pkg/volume/errors"
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// handler is one registered recovery callback.
type handler struct {
	onFound    engine.RecordFoundFunc
	doChecksum bool
}

// Store is the badger-backed metadata-block service.
type Store struct {
	db *badgerdb.DB

	mu       sync.RWMutex
	handlers map[string]handler
	seq      uint64

	mm metrics.MetaMetrics
}

// Open opens (or creates) the metadata-block store at the given directory.
func Open(dir string) (*Store, error) {
	opts := badgerdb.DefaultOptions(dir).WithLogger(nil)
	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata store at %q: %w", dir, err)
	}

	s := &Store{
		db:       db,
		handlers: make(map[string]handler),
		mm:       metrics.NoopMetaMetrics(),
	}
	if err := s.loadSeq(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// loadSeq restores the sequence counter from the highest persisted key.
func (s *Store) loadSeq() error {
	return s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		var max uint64
		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().Key()
			if len(key) >= 8 {
				if seq := binary.BigEndian.Uint64(key[len(key)-8:]); seq > max {
					max = seq
				}
			}
		}
		s.seq = max
		return nil
	})
}

// SetMetrics attaches a metrics sink. Call before the recovery scan starts.
func (s *Store) SetMetrics(mm metrics.MetaMetrics) {
	if mm != nil {
		s.mm = mm
	}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RegisterHandler registers the recovery callback for a record kind.
func (s *Store) RegisterHandler(kind string, onFound engine.RecordFoundFunc, doChecksum bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[kind] = handler{onFound: onFound, doChecksum: doChecksum}
	logger.Debug("Registered metadata record handler", logger.KeyRecord, kind)
}

// CreateRecord persists a new record of a kind and returns its handle.
func (s *Store) CreateRecord(kind string, payload []byte) (engine.Record, error) {
	s.mu.Lock()
	s.seq++
	key := recordKey(kind, s.seq)
	s.mu.Unlock()

	rec := &record{store: s, kind: kind, key: key}
	if err := rec.Write(payload); err != nil {
		return nil, err
	}
	return rec, nil
}

// ReadSubSB scans all persisted records of a kind and invokes its registered
// handler for each, in persistence order. Checksum or decode failures are
// fatal for that record and abort the scan.
func (s *Store) ReadSubSB(kind string) error {
	s.mu.RLock()
	h, ok := s.handlers[kind]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no handler registered for record kind %q", kind)
	}

	prefix := []byte("sb/" + kind + "/")
	return s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)
			var payload []byte
			err := item.Value(func(val []byte) error {
				var verr error
				payload, verr = verifyValue(kind, val, h.doChecksum)
				return verr
			})
			if err != nil {
				if volerrors.CodeOf(err) == volerrors.ErrConsistency {
					s.mm.RecordChecksumFailure(kind)
				}
				return err
			}
			s.mm.RecordRead(kind)

			rec := &record{store: s, kind: kind, key: key}
			if err := h.onFound(payload, rec); err != nil {
				return fmt.Errorf("recovery handler for %q failed: %w", kind, err)
			}
		}
		return nil
	})
}

// recordKey builds "sb/<kind>/<seq>" with a big-endian sequence suffix so
// lexicographic iteration follows persistence order.
func recordKey(kind string, seq uint64) []byte {
	key := make([]byte, 0, 3+len(kind)+1+8)
	key = append(key, "sb/"...)
	key = append(key, kind...)
	key = append(key, '/')
	key = binary.BigEndian.AppendUint64(key, seq)
	return key
}

// encodeValue prepends the CRC32-C of the payload.
func encodeValue(payload []byte) []byte {
	buf := make([]byte, 4+len(payload))
	binary.LittleEndian.PutUint32(buf[0:], crc32.Checksum(payload, castagnoli))
	copy(buf[4:], payload)
	return buf
}

// verifyValue strips and optionally verifies the checksum prefix.
func verifyValue(kind string, val []byte, doChecksum bool) ([]byte, error) {
	if len(val) < 4 {
		return nil, volerrors.NewConsistencyError(kind, fmt.Errorf("record value too short: %d bytes", len(val)))
	}
	payload := make([]byte, len(val)-4)
	copy(payload, val[4:])

	if doChecksum {
		want := binary.LittleEndian.Uint32(val[0:])
		if got := crc32.Checksum(payload, castagnoli); got != want {
			return nil, volerrors.NewConsistencyError(kind,
				fmt.Errorf("checksum mismatch: got 0x%08X want 0x%08X", got, want))
		}
	}
	return payload, nil
}

// record is a handle to one persisted metadata block.
type record struct {
	store *Store
	kind  string
	key   []byte
}

func (r *record) Kind() string { return r.kind }

// Write persists the payload under the record's key, replacing any
// previous contents.
func (r *record) Write(payload []byte) error {
	err := r.store.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(r.key, encodeValue(payload))
	})
	if err != nil {
		return fmt.Errorf("failed to write %s record: %w", r.kind, err)
	}
	r.store.mm.RecordWrite(r.kind)
	return nil
}

// Destroy erases the record.
func (r *record) Destroy() error {
	err := r.store.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete(r.key)
	})
	if err != nil {
		return fmt.Errorf("failed to destroy %s record: %w", r.kind, err)
	}
	r.store.mm.RecordDestroy(r.kind)
	return nil
}

var _ engine.MetaService = (*Store)(nil)
