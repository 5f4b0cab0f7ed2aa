package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "github.com/boltdb/bolt"
	"github.com/cuencadelplata/ticketeate-sub002/internal/logger"
)

const deadLetterBucket = "dead_letters"

var ErrDeadLetterNotFound = errors.New("dead letter not found")

// DeadLetter is a notification that could not be delivered, keyed by order.
type DeadLetter struct {
	OrderReference string    `json:"order_reference"`
	Job            Job       `json:"job"`
	LastError      string    `json:"last_error"`
	Attempts       int       `json:"attempts"`
	FirstFailedAt  time.Time `json:"first_failed_at"`
	LastFailedAt   time.Time `json:"last_failed_at"`
}

// DeadLetterStore keeps failed notifications in a local BoltDB file so they
// can be retried by hand. The file is opened per operation, so the server and
// the CLI commands can share it; bolt's file lock serializes them.
type DeadLetterStore struct {
	path    string
	timeout time.Duration

	mu sync.Mutex
}

const deadLetterLockTimeout = 5 * time.Second

func OpenDeadLetterStore(path string) (*DeadLetterStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	s := &DeadLetterStore{path: path, timeout: deadLetterLockTimeout}
	err := s.update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(deadLetterBucket))
		return err
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *DeadLetterStore) open(readOnly bool) (*bolt.DB, error) {
	db, err := bolt.Open(s.path, 0o600, &bolt.Options{Timeout: s.timeout, ReadOnly: readOnly})
	if err != nil {
		return nil, fmt.Errorf("open dead letter store %s: %w", s.path, err)
	}
	return db, nil
}

func (s *DeadLetterStore) update(fn func(*bolt.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	db, err := s.open(false)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.Update(fn)
}

func (s *DeadLetterStore) view(fn func(*bolt.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	db, err := s.open(true)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.View(fn)
}

// Put records a failure. Repeated failures for the same order update one
// entry and bump its attempt counter.
func (s *DeadLetterStore) Put(job Job, cause error) error {
	now := time.Now().UTC()
	return s.update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(deadLetterBucket))
		key := []byte(job.OrderReference)

		entry := DeadLetter{OrderReference: job.OrderReference, FirstFailedAt: now}
		if existing := b.Get(key); existing != nil {
			if err := json.Unmarshal(existing, &entry); err != nil {
				return err
			}
		}
		entry.Job = job
		entry.Attempts++
		entry.LastFailedAt = now
		if cause != nil {
			entry.LastError = cause.Error()
		}

		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
}

func (s *DeadLetterStore) Get(orderRef string) (*DeadLetter, error) {
	var entry DeadLetter
	err := s.view(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(deadLetterBucket)).Get([]byte(orderRef))
		if v == nil {
			return ErrDeadLetterNotFound
		}
		return json.Unmarshal(v, &entry)
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *DeadLetterStore) List() ([]DeadLetter, error) {
	items := []DeadLetter{}
	err := s.view(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(deadLetterBucket)).ForEach(func(k, v []byte) error {
			var entry DeadLetter
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			items = append(items, entry)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *DeadLetterStore) Delete(orderRef string) error {
	return s.update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(deadLetterBucket))
		if b.Get([]byte(orderRef)) == nil {
			return ErrDeadLetterNotFound
		}
		return b.Delete([]byte(orderRef))
	})
}

// Redispatch retries every stored job through sender. Delivered entries are
// removed; failures stay with their attempt counter bumped.
func (s *DeadLetterStore) Redispatch(ctx context.Context, sender Sender) (sent, failed int, err error) {
	entries, err := s.List()
	if err != nil {
		return 0, 0, err
	}
	for _, entry := range entries {
		if ctx.Err() != nil {
			return sent, failed, ctx.Err()
		}
		if sendErr := sender.Send(ctx, entry.Job); sendErr != nil {
			failed++
			logger.Warnf("[REDISPATCH] order_ref=%s attempt=%d err=%v", entry.OrderReference, entry.Attempts+1, sendErr)
			if err := s.Put(entry.Job, sendErr); err != nil {
				return sent, failed, err
			}
			continue
		}
		if err := s.Delete(entry.OrderReference); err != nil {
			return sent, failed, err
		}
		sent++
		logger.Infof("[REDISPATCH] order_ref=%s delivered", entry.OrderReference)
	}
	return sent, failed, nil
}
