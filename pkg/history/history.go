// Package history persists run records of past conversions.
package history

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

const dbAPIversion = "1"

const defaultMaxKeys = 10000

// Record one completed run.
type Record struct {
	ID         string `json:"id"`
	Time       int64  `json:"time"` // Unix micro.
	Command    string `json:"command"`
	Input      string `json:"input"`
	Output     string `json:"output,omitempty"`
	Format     string `json:"format"`
	EventsIn   int    `json:"eventsIn"`
	EventsOut  int    `json:"eventsOut"`
	Markers    int    `json:"markers"`
	DurationUs uint64 `json:"durationUs"`

	BandwidthMbps float64 `json:"bandwidthMbps,omitempty"`
	ChunkMs       float64 `json:"chunkMs,omitempty"`
	Policy        string  `json:"policy,omitempty"`
}

// Store run record database.
type Store struct {
	dbPath  string
	maxKeys int

	db *bolt.DB

	// Keep saved record times strictly increasing so keys never collide.
	prevTime int64
}

// New returns an unopened store.
func New(dbPath string) *Store {
	return &Store{
		dbPath:  dbPath,
		maxKeys: defaultMaxKeys,
	}
}

// Open opens or creates the database file.
func (s *Store) Open() error {
	err := os.MkdirAll(filepath.Dir(s.dbPath), 0o700)
	if err != nil {
		return fmt.Errorf("make database directory: %w", err)
	}

	dbOpts := &bolt.Options{
		Timeout: 1 * time.Second,
	}

	db, err := bolt.Open(s.dbPath, 0o600, dbOpts)
	if err != nil {
		return fmt.Errorf("open database: %w: %v", err, s.dbPath)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(dbAPIversion))
		return err
	})
	if err != nil {
		db.Close()
		return fmt.Errorf("create bucket: %v: %w", dbAPIversion, err)
	}

	s.db = db
	return nil
}

// Close closes the database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save writes the record, assigning ID and time when unset.
func (s *Store) Save(rec Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Time == 0 {
		rec.Time = time.Now().UnixMicro()
	}
	if rec.Time <= s.prevTime {
		rec.Time = s.prevTime + 1
	}
	s.prevTime = rec.Time

	key := encodeKey(uint64(rec.Time))
	value := encodeValue(rec)

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(dbAPIversion))

		if b.Stats().KeyN >= s.maxKeys {
			if err := deleteFirstKey(b); err != nil {
				return fmt.Errorf("delete first key: %w", err)
			}
		}
		return b.Put(key, value)
	})
}

func deleteFirstKey(b *bolt.Bucket) error {
	k, _ := b.Cursor().First()
	return b.Delete(k)
}

// Query database query.
type Query struct {
	Formats []string
	Time    int64 // Return records older than this, newest first.
	Limit   int
}

// Query records in database.
func (s *Store) Query(q Query) ([]Record, error) {
	var records []Record

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(dbAPIversion))
		c := b.Cursor()

		var rec Record
		filterRecord := func(rawRecord []byte) error {
			if err := json.Unmarshal(rawRecord, &rec); err != nil {
				return fmt.Errorf("unmarshal record: %w", err)
			}

			if !stringInStrings(rec.Format, q.Formats) {
				return nil
			}

			records = append(records, rec)
			return nil
		}

		if q.Time == 0 {
			_, value := c.Last()
			if value == nil {
				return nil
			}
			if err := filterRecord(value); err != nil {
				return err
			}
		} else {
			c.Seek(encodeKey(uint64(q.Time)))
		}

		limit := q.Limit
		if limit == 0 {
			limit = defaultMaxKeys
		}

		for len(records) < limit {
			key, value := c.Prev()
			if key == nil {
				return nil
			}
			if err := filterRecord(value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return records, nil
}

func stringInStrings(source string, sources []string) bool {
	if len(sources) == 0 {
		return true
	}
	for _, src := range sources {
		if src == source {
			return true
		}
	}
	return false
}

func encodeKey(key uint64) []byte {
	output := make([]byte, 8)
	binary.BigEndian.PutUint64(output, key)
	return output
}

func encodeValue(rec Record) []byte {
	value, _ := json.Marshal(rec)
	return value
}
