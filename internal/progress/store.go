// Package progress is the key-value store holding one completion record per
// (user, course) pair. It is backed by badger; every mutating call runs in a
// badger transaction and is retried when badger reports a write conflict.
package progress

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"

	"github.com/Hero472/bdnsql/internal/domain"
)

var (
	// ErrNotFound indicates no record exists for the key.
	ErrNotFound = errors.New("progress: not found")
	// ErrExists is returned by PutIfAbsent when the key is already taken.
	ErrExists = errors.New("progress: already exists")
	// ErrTooManyConflicts is returned when a transaction kept conflicting.
	ErrTooManyConflicts = errors.New("progress: too many transaction conflicts")
)

const keySeparator = "\x00"

// Options controls how the badger database is opened.
type Options struct {
	Dir        string
	InMemory   bool
	MaxRetries int
	Logger     *log.Logger
}

// Store wraps a badger database.
type Store struct {
	db         *badger.DB
	logger     *log.Logger
	maxRetries int
}

// Open opens (or creates) the badger database described by opts.
func Open(opts Options) (*Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("progress: directory required unless in-memory")
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 10
	}

	bopts := badger.DefaultOptions(opts.Dir).WithLogger(nil)
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}

	logger.Printf("progress: opening store (dir=%q, in_memory=%t, max_retries=%d)", opts.Dir, opts.InMemory, opts.MaxRetries)
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, errors.Wrap(err, "open badger")
	}
	return &Store{db: db, logger: logger, maxRetries: opts.MaxRetries}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	s.logger.Println("progress: closing store")
	return s.db.Close()
}

// HealthCheck reports whether the database is still open.
func (s *Store) HealthCheck(ctx context.Context) error {
	if s == nil || s.db == nil || s.db.IsClosed() {
		return errors.New("progress store not open")
	}
	return ctx.Err()
}

// Get fetches the record for key.
func (s *Store) Get(ctx context.Context, key domain.ProgressKey) (domain.ProgressRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.ProgressRecord{}, err
	}
	var rec domain.ProgressRecord
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		rec, err = readRecord(txn, key)
		return err
	})
	if err != nil {
		return domain.ProgressRecord{}, err
	}
	return rec, nil
}

// Exists reports whether a record is stored for key.
func (s *Store) Exists(ctx context.Context, key domain.ProgressKey) (bool, error) {
	_, err := s.Get(ctx, key)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// PutIfAbsent writes rec only when its key is unused.
func (s *Store) PutIfAbsent(ctx context.Context, rec domain.ProgressRecord) error {
	return s.retry(ctx, "put if absent", func(txn *badger.Txn) error {
		_, err := txn.Get(recordKey(rec.Key))
		if err == nil {
			return ErrExists
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return errors.Wrap(err, "read record")
		}
		return writeRecord(txn, rec)
	})
}

// Put overwrites the record for rec.Key.
func (s *Store) Put(ctx context.Context, rec domain.ProgressRecord) error {
	return s.retry(ctx, "put", func(txn *badger.Txn) error {
		return writeRecord(txn, rec)
	})
}

// AddCompletedClass adds classID to the completed set of an existing record.
// Adding a class twice leaves the set unchanged.
func (s *Store) AddCompletedClass(ctx context.Context, key domain.ProgressKey, classID string) (domain.ProgressRecord, error) {
	return s.Update(ctx, key, func(rec *domain.ProgressRecord) error {
		rec.AddCompletedClass(classID)
		return nil
	})
}

// Update applies fn to the current record and writes the result in the same
// transaction. fn may run more than once when the transaction conflicts.
func (s *Store) Update(ctx context.Context, key domain.ProgressKey, fn func(*domain.ProgressRecord) error) (domain.ProgressRecord, error) {
	var out domain.ProgressRecord
	err := s.retry(ctx, "update", func(txn *badger.Txn) error {
		rec, err := readRecord(txn, key)
		if err != nil {
			return err
		}
		if err := fn(&rec); err != nil {
			return err
		}
		rec.Key = key
		if err := writeRecord(txn, rec); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return domain.ProgressRecord{}, err
	}
	return out, nil
}

// Delete removes the record for key. Missing keys are not an error.
func (s *Store) Delete(ctx context.Context, key domain.ProgressKey) error {
	return s.retry(ctx, "delete", func(txn *badger.Txn) error {
		return txn.Delete(recordKey(key))
	})
}

// ListByUser returns every record under the user's partition, ordered by course id.
func (s *Store) ListByUser(ctx context.Context, email string) ([]domain.ProgressRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := []byte(domain.ProgressKey{UserEmail: email}.PartitionKey() + keySeparator)
	records := make([]domain.ProgressRecord, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec domain.ProgressRecord
			err := it.Item().Value(func(val []byte) error {
				var err error
				rec, err = decodeRecord(val)
				return err
			})
			if err != nil {
				return err
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "list progress records")
	}
	return records, nil
}

func (s *Store) retry(ctx context.Context, op string, fn func(txn *badger.Txn) error) error {
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.logger.Printf("progress: %s conflicted (attempt %d/%d)", op, attempt, s.maxRetries)
	}
	return errors.Wrap(ErrTooManyConflicts, op)
}

func recordKey(key domain.ProgressKey) []byte {
	return []byte(key.PartitionKey() + keySeparator + key.SortKey())
}

type storedRecord struct {
	PK                   string        `json:"pk"`
	SK                   string        `json:"sk"`
	Email                string        `json:"email"`
	CourseID             string        `json:"course_id"`
	Status               domain.Status `json:"status"`
	CompletedClasses     []string      `json:"completed_classes"`
	CompletionPercentage int           `json:"completion_percentage"`
	Timestamp            time.Time     `json:"timestamp"`
}

func readRecord(txn *badger.Txn, key domain.ProgressKey) (domain.ProgressRecord, error) {
	item, err := txn.Get(recordKey(key))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return domain.ProgressRecord{}, ErrNotFound
		}
		return domain.ProgressRecord{}, errors.Wrap(err, "read record")
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return domain.ProgressRecord{}, errors.Wrap(err, "copy record value")
	}
	return decodeRecord(val)
}

func writeRecord(txn *badger.Txn, rec domain.ProgressRecord) error {
	classes := rec.CompletedClasses
	if classes == nil {
		classes = []string{}
	}
	payload, err := json.Marshal(storedRecord{
		PK:                   rec.Key.PartitionKey(),
		SK:                   rec.Key.SortKey(),
		Email:                rec.Key.UserEmail,
		CourseID:             rec.Key.CourseID,
		Status:               rec.Status,
		CompletedClasses:     classes,
		CompletionPercentage: rec.CompletionPercentage,
		Timestamp:            rec.UpdatedAt.UTC(),
	})
	if err != nil {
		return errors.Wrap(err, "encode record")
	}
	return txn.Set(recordKey(rec.Key), payload)
}

func decodeRecord(val []byte) (domain.ProgressRecord, error) {
	var stored storedRecord
	if err := json.Unmarshal(val, &stored); err != nil {
		return domain.ProgressRecord{}, errors.Wrap(err, "decode record")
	}
	rec := domain.ProgressRecord{
		Key: domain.ProgressKey{
			UserEmail: stored.Email,
			CourseID:  stored.CourseID,
		},
		Status:               stored.Status,
		CompletedClasses:     stored.CompletedClasses,
		CompletionPercentage: stored.CompletionPercentage,
		UpdatedAt:            stored.Timestamp,
	}
	if rec.CompletedClasses == nil {
		rec.CompletedClasses = []string{}
	}
	return rec, nil
}
