/*
Package state persists estimates in a bbolt database, one bucket per source,
keyed by time.
*/
package state

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Galaxy-Crusader/KalmanLocationManager/types/fix"
	"github.com/paulmach/orb/geojson"
	"go.etcd.io/bbolt"
)

var ErrNotFound = errors.New("not found")

type Store struct {
	DB    *bbolt.DB
	rOnly bool
}

// Open opens or creates the store at path.
// A writable store holds a file lock; a second writer blocks until the timeout.
func Open(path string, readOnly bool) (*Store, error) {
	if !readOnly {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, err
		}
	}
	db, err := bbolt.Open(path, 0600, &bbolt.Options{
		ReadOnly: readOnly,
		Timeout:  5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	return &Store{DB: db, rOnly: readOnly}, nil
}

func (s *Store) Close() error {
	return s.DB.Close()
}

func bucketName(source fix.Source) []byte {
	return []byte(source.String())
}

// timeKey sorts signed millis in byte order.
func timeKey(t int64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(t)^(1<<63))
	return k
}

func keyTime(k []byte) int64 {
	return int64(binary.BigEndian.Uint64(k) ^ (1 << 63))
}

func encode(e fix.Estimate) ([]byte, error) {
	return json.Marshal(e.Feature())
}

func decode(data []byte) (fix.Estimate, error) {
	f, err := geojson.UnmarshalFeature(data)
	if err != nil {
		return fix.Estimate{}, err
	}
	return fix.EstimateFromFeature(f)
}

// Put stores e under its source and time, replacing any estimate already there.
// Estimates without a fix are skipped.
func (s *Store) Put(e fix.Estimate) error {
	if !e.HasFix() {
		return nil
	}
	data, err := encode(e)
	if err != nil {
		return err
	}
	return s.DB.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(bucketName(e.Source))
		if err != nil {
			return err
		}
		return bucket.Put(timeKey(e.T), data)
	})
}

// Last is the newest estimate stored for source.
func (s *Store) Last(source fix.Source) (fix.Estimate, error) {
	var out fix.Estimate
	err := s.DB.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketName(source))
		if bucket == nil {
			return ErrNotFound
		}
		_, v := bucket.Cursor().Last()
		if v == nil {
			return ErrNotFound
		}
		// Gotcha! The value returned by Get is only valid in the scope of the transaction.
		var err error
		out, err = decode(v)
		return err
	})
	return out, err
}

// Range calls fn for each estimate of source with from <= T < to, oldest first,
// until fn returns false.
func (s *Store) Range(source fix.Source, from, to int64, fn func(fix.Estimate) bool) error {
	return s.DB.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketName(source))
		if bucket == nil {
			return nil
		}
		c := bucket.Cursor()
		for k, v := c.Seek(timeKey(from)); k != nil && keyTime(k) < to; k, v = c.Next() {
			e, err := decode(v)
			if err != nil {
				return fmt.Errorf("decode estimate at %d: %w", keyTime(k), err)
			}
			if !fn(e) {
				return nil
			}
		}
		return nil
	})
}

// Count is the number of estimates stored for source.
func (s *Store) Count(source fix.Source) int {
	n := 0
	_ = s.DB.View(func(tx *bbolt.Tx) error {
		if bucket := tx.Bucket(bucketName(source)); bucket != nil {
			n = bucket.Stats().KeyN
		}
		return nil
	})
	return n
}

// Consume stores everything from in until it closes or ctx is done.
// Write errors are logged and skipped.
func (s *Store) Consume(ctx context.Context, in <-chan fix.Estimate) error {
	log := slog.With("d", "store")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-in:
			if !ok {
				return nil
			}
			if err := s.Put(e); err != nil {
				log.Error("Failed to store estimate", "source", e.Source, "t", e.T, "error", err)
			}
		}
	}
}
