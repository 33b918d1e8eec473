package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/google/uuid"

	"github.com/hutx/OpenGlass/internal/stream"
)

const keyPrefix = "artifact/"

// ErrArtifactNotFound is returned for an unknown artifact id
var ErrArtifactNotFound = errors.New("artifact not found")

// Options configures the database location
type Options struct {
	Path     string
	InMemory bool
}

// Record is the metadata stored next to each artifact
type Record struct {
	ID              string    `json:"id"`
	Kind            string    `json:"kind"`
	Source          string    `json:"source"`
	Channel         string    `json:"channel,omitempty"`
	Trigger         string    `json:"trigger"`
	Filename        string    `json:"filename"`
	Size            int       `json:"size"`
	DurationSeconds float64   `json:"duration_seconds,omitempty"`
	SampleRate      int       `json:"sample_rate,omitempty"`
	Channels        int       `json:"channels,omitempty"`
	BitsPerSample   int       `json:"bits_per_sample,omitempty"`
	HasVoice        bool      `json:"has_voice"`
	CreatedAt       time.Time `json:"created_at"`
	StoredAt        time.Time `json:"stored_at"`
}

// Store is a badger-backed artifact store. It implements stream.Sink.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

// Open opens or creates the database
func Open(opts Options, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var badgerOpts badger.Options
	if opts.InMemory {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(opts.Path, 0755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
		badgerOpts = badger.DefaultOptions(filepath.Join(opts.Path, "badger"))
	}
	badgerOpts.Logger = nil

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	logger.Info("Artifact store opened",
		slog.String("path", opts.Path),
		slog.Bool("in_memory", opts.InMemory),
	)

	return &Store{db: db, logger: logger}, nil
}

func dataKey(id string) []byte {
	return []byte(keyPrefix + id + "/data")
}

func metaKey(id string) []byte {
	return []byte(keyPrefix + id + "/meta")
}

// Put stores an artifact and returns its record
func (s *Store) Put(artifact stream.Artifact) (*Record, error) {
	data := artifact.Bytes()
	if data == nil {
		return nil, fmt.Errorf("artifact of kind %q has no payload", artifact.Kind)
	}

	record := newRecord(artifact)

	meta, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(dataKey(record.ID), data); err != nil {
			return err
		}
		return txn.Set(metaKey(record.ID), meta)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store artifact: %w", err)
	}

	s.logger.Info("Artifact stored",
		slog.String("id", record.ID),
		slog.String("kind", record.Kind),
		slog.String("filename", record.Filename),
		slog.Int("size", record.Size),
	)

	return record, nil
}

func newRecord(artifact stream.Artifact) *Record {
	record := &Record{
		ID:              uuid.NewString(),
		Kind:            string(artifact.Kind),
		Source:          string(artifact.Source),
		Trigger:         artifact.Trigger,
		Filename:        artifact.Filename(),
		Size:            len(artifact.Bytes()),
		DurationSeconds: artifact.Duration(),
		CreatedAt:       artifact.CreatedAt(),
		StoredAt:        time.Now(),
	}

	if artifact.Source == stream.SourceRadio {
		record.Channel = artifact.Channel.String()
	}

	if artifact.Audio != nil {
		record.SampleRate = artifact.Audio.Format.SampleRate
		record.Channels = artifact.Audio.Format.Channels
		record.BitsPerSample = artifact.Audio.Format.BitsPerSample
		record.HasVoice = artifact.Audio.HasVoice
	}

	return record
}

// Deliver stores the artifact, discarding the record
func (s *Store) Deliver(ctx context.Context, artifact stream.Artifact) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.Put(artifact)
	return err
}

// Meta returns the record for id
func (s *Store) Meta(id string) (*Record, error) {
	var record Record

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(metaKey(id))
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &record)
		})
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrArtifactNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get artifact metadata: %w", err)
	}

	return &record, nil
}

// Get returns the record and payload for id
func (s *Store) Get(id string) (*Record, []byte, error) {
	var record Record
	var data []byte

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(metaKey(id))
		if err != nil {
			return err
		}
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &record)
		}); err != nil {
			return err
		}

		item, err = txn.Get(dataKey(id))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil, ErrArtifactNotFound
	}

	if err != nil {
		return nil, nil, fmt.Errorf("failed to get artifact: %w", err)
	}

	return &record, data, nil
}

// List returns records newest first. An empty kind matches every artifact.
func (s *Store) List(kind string) ([]*Record, error) {
	records := make([]*Record, 0)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			if !strings.HasSuffix(string(item.Key()), "/meta") {
				continue
			}

			var record Record
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &record)
			}); err != nil {
				return fmt.Errorf("corrupt record %s: %w", item.Key(), err)
			}

			if kind == "" || record.Kind == kind {
				records = append(records, &record)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})

	return records, nil
}

// Delete removes an artifact
func (s *Store) Delete(id string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(metaKey(id)); err != nil {
			return err
		}
		if err := txn.Delete(dataKey(id)); err != nil {
			return err
		}
		return txn.Delete(metaKey(id))
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrArtifactNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete artifact: %w", err)
	}

	s.logger.Info("Artifact deleted", slog.String("id", id))
	return nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}
