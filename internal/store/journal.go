// Package store keeps the rover's mission journal in BoltDB: destinations received,
// scan outcomes and periodic telemetry snapshots.
package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"RoverDrive/internal/model"
	"RoverDrive/internal/util"
)

var (
	bucketDestinations = []byte("destinations")
	bucketScans        = []byte("scans")
	bucketTelemetry    = []byte("telemetry")
)

// Journal is an append-only BoltDB log. Keys are sequence numbers, so cursors
// walk records in insertion order.
type Journal struct {
	db *bbolt.DB
}

// Open opens (or creates) the journal at path.
func Open(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("[journal] failed to create %s: %w", dir, err)
		}
	}
	db, err := bbolt.Open(path, 0o666, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("[journal] failed to open BoltDB: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketDestinations, bucketScans, bucketTelemetry} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("[journal] failed to create buckets: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	if err := j.db.Close(); err != nil {
		util.Error("[journal] error closing BoltDB: %v", err)
		return err
	}
	return nil
}

type destinationRecord struct {
	model.Destination
	Source string    `json:"source"` // base or scan
	At     time.Time `json:"at"`
}

// RecordDestination logs a destination added to the route.
func (j *Journal) RecordDestination(d model.Destination, source string) error {
	return j.append(bucketDestinations, destinationRecord{Destination: d, Source: source, At: time.Now()})
}

// RecordScan logs a completed sweep.
func (j *Journal) RecordScan(r model.ScanReport) error {
	return j.append(bucketScans, r)
}

// RecordTelemetry logs a telemetry snapshot.
func (j *Journal) RecordTelemetry(t model.Telemetry) error {
	return j.append(bucketTelemetry, t)
}

func (j *Journal) append(bucket []byte, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return j.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucket)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		return b.Put(key, body)
	})
}

// ScanReports returns up to limit most recent scan reports, oldest first.
// A limit <= 0 returns all of them.
func (j *Journal) ScanReports(limit int) ([]model.ScanReport, error) {
	var out []model.ScanReport
	err := j.db.View(func(tx *bbolt.Tx) error {
		return tail(tx.Bucket(bucketScans), limit, func(v []byte) error {
			var r model.ScanReport
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			out = append(out, r)
			return nil
		})
	})
	return out, err
}

// Destinations returns every destination recorded, oldest first.
func (j *Journal) Destinations() ([]model.Destination, error) {
	var out []model.Destination
	err := j.db.View(func(tx *bbolt.Tx) error {
		return tail(tx.Bucket(bucketDestinations), 0, func(v []byte) error {
			var r destinationRecord
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			out = append(out, r.Destination)
			return nil
		})
	})
	return out, err
}

// LatestTelemetry returns the newest snapshot, or ok=false when there is none.
func (j *Journal) LatestTelemetry() (t model.Telemetry, ok bool, err error) {
	err = j.db.View(func(tx *bbolt.Tx) error {
		_, v := tx.Bucket(bucketTelemetry).Cursor().Last()
		if v == nil {
			return nil
		}
		ok = true
		return json.Unmarshal(v, &t)
	})
	return t, ok, err
}

// tail calls fn for the last limit values in key order.
func tail(b *bbolt.Bucket, limit int, fn func(v []byte) error) error {
	c := b.Cursor()
	start, _ := c.First()
	if limit > 0 {
		start, _ = c.Last()
		for n := 1; n < limit; n++ {
			k, _ := c.Prev()
			if k == nil {
				break
			}
			start = k
		}
	}
	if start == nil {
		return nil
	}
	for k, v := c.Seek(start); k != nil; k, v = c.Next() {
		if err := fn(v); err != nil {
			return err
		}
	}
	return nil
}
