package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/filmlog-scraper/pkg/log"
	"github.com/Sriram-PR/filmlog-scraper/pkg/models"
	"github.com/Sriram-PR/filmlog-scraper/pkg/utils"
)

const (
	CatalogKeyPrefix = "tmdb:"           // Prefix for cached catalog results
	RunKeyPrefix     = "run:"            // Prefix for run checkpoints
	latestRunKey     = "meta:latest_run" // Holds the run ID of the most recent checkpoint
	stateDBDir       = "state_db"        // Subdirectory name within stateDir for Badger DB files
)

// BadgerStore implements the Store interface using BadgerDB
type BadgerStore struct {
	db  *badger.DB
	log *logrus.Entry
}

// NewBadgerStore opens (or creates) the state database for username under stateDir
func NewBadgerStore(stateDir, username string, logger *logrus.Entry) (*BadgerStore, error) {
	dbPath := filepath.Join(stateDir, utils.SanitizeFilename(username)+"_"+stateDBDir)
	logger.Infof("Initializing state database at: %s", dbPath)

	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("%w: cannot create state directory %s: %w", utils.ErrFilesystem, dbPath, err)
	}

	opts := badger.DefaultOptions(dbPath).
		WithLogger(log.NewBadgerLogrusAdapter(logger)).
		WithNumVersionsToKeep(1)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open badger database at %s: %w", utils.ErrDatabase, dbPath, err)
	}

	logger.Info("State database initialized successfully.")
	return &BadgerStore{db: db, log: logger}, nil
}

const maxConflictRetries = 10

// dbUpdate wraps db.Update with a retry loop for BadgerDB transaction conflicts.
func (s *BadgerStore) dbUpdate(fn func(txn *badger.Txn) error) error {
	for i := range maxConflictRetries {
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debugf("BadgerDB transaction conflict (attempt %d/%d), retrying", i+1, maxConflictRetries)
	}
	return fmt.Errorf("%w: transaction conflict not resolved after %d retries", utils.ErrDatabase, maxConflictRetries)
}

// getJSON decodes key into out; found is false for missing or expired keys
func (s *BadgerStore) getJSON(key string, out any) (bool, error) {
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, errGet := txn.Get([]byte(key))
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			return nil
		}
		if errGet != nil {
			return fmt.Errorf("%w: failed getting key '%s': %w", utils.ErrDatabase, key, errGet)
		}
		return item.Value(func(val []byte) error {
			if errJSON := json.Unmarshal(val, out); errJSON != nil {
				return fmt.Errorf("%w: failed to unmarshal JSON for key '%s': %w", utils.ErrParsing, key, errJSON)
			}
			found = true
			return nil
		})
	})
	if err != nil {
		s.log.WithField("key", key).Errorf("DB View error: %v", err)
		return false, err
	}
	return found, nil
}

// GetCatalog implements the CatalogCache interface
func (s *BadgerStore) GetCatalog(key string, out any) (bool, error) {
	return s.getJSON(CatalogKeyPrefix+key, out)
}

// PutCatalog implements the CatalogCache interface
func (s *BadgerStore) PutCatalog(key string, v any, ttl time.Duration) error {
	val, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: failed to marshal JSON for catalog key '%s': %w", utils.ErrParsing, key, err)
	}
	fullKey := []byte(CatalogKeyPrefix + key)

	err = s.dbUpdate(func(txn *badger.Txn) error {
		e := badger.NewEntry(fullKey, val)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		s.log.WithField("key", string(fullKey)).Errorf("DB Update error in PutCatalog: %v", err)
		return fmt.Errorf("%w: failed setting catalog key '%s': %w", utils.ErrDatabase, string(fullKey), err)
	}
	return nil
}

// DropCatalog implements the CatalogCache interface
func (s *BadgerStore) DropCatalog() error {
	if err := s.db.DropPrefix([]byte(CatalogKeyPrefix)); err != nil {
		return fmt.Errorf("%w: dropping catalog cache: %w", utils.ErrDatabase, err)
	}
	s.log.Info("Catalog cache cleared.")
	return nil
}

// SaveCheckpoint implements the CheckpointStore interface
func (s *BadgerStore) SaveCheckpoint(cp *models.RunCheckpoint) error {
	if cp == nil || cp.RunID == "" {
		return fmt.Errorf("%w: checkpoint without run ID", utils.ErrDatabase)
	}
	val, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("%w: failed to marshal checkpoint %s: %w", utils.ErrParsing, cp.RunID, err)
	}

	err = s.dbUpdate(func(txn *badger.Txn) error {
		if errSet := txn.Set([]byte(RunKeyPrefix+cp.RunID), val); errSet != nil {
			return errSet
		}
		return txn.Set([]byte(latestRunKey), []byte(cp.RunID))
	})
	if err != nil {
		s.log.WithField("run_id", cp.RunID).Errorf("DB Update error in SaveCheckpoint: %v", err)
		return fmt.Errorf("%w: failed saving checkpoint %s: %w", utils.ErrDatabase, cp.RunID, err)
	}
	s.log.WithFields(logrus.Fields{"run_id": cp.RunID, "page": cp.Page, "records": len(cp.Records)}).Debug("Checkpoint saved")
	return nil
}

// LoadCheckpoint implements the CheckpointStore interface
func (s *BadgerStore) LoadCheckpoint(runID string) (*models.RunCheckpoint, error) {
	if runID == "" {
		err := s.db.View(func(txn *badger.Txn) error {
			item, errGet := txn.Get([]byte(latestRunKey))
			if errors.Is(errGet, badger.ErrKeyNotFound) {
				return nil
			}
			if errGet != nil {
				return errGet
			}
			return item.Value(func(val []byte) error {
				runID = string(val)
				return nil
			})
		})
		if err != nil {
			return nil, fmt.Errorf("%w: reading latest run: %w", utils.ErrDatabase, err)
		}
		if runID == "" {
			return nil, nil
		}
	}

	var cp models.RunCheckpoint
	found, err := s.getJSON(RunKeyPrefix+runID, &cp)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &cp, nil
}

// CountKeys implements the StoreAdmin interface
func (s *BadgerStore) CountKeys(prefix string) (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: counting keys: %w", utils.ErrDatabase, err)
	}
	return count, nil
}

// RunGC runs BadgerDB's garbage collection periodically
func (s *BadgerStore) RunGC(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Debug("BadgerDB GC goroutine started.")

	for {
		select {
		case <-ticker.C:
			if s.db == nil || s.db.IsClosed() {
				s.log.Info("DB GC: Database is nil or closed, skipping GC cycle.")
				continue
			}

			var err error
			// Loop GC until it returns ErrNoRewrite or another error
			for {
				err = s.db.RunValueLogGC(0.5)
				if err != nil {
					break
				}
			}
			if errors.Is(err, badger.ErrNoRewrite) {
				s.log.Debug("BadgerDB GC finished (no rewrite needed).")
			} else {
				s.log.Errorf("BadgerDB GC error: %v", err)
			}

		case <-ctx.Done():
			s.log.Debugf("Stopping BadgerDB garbage collection goroutine: %v", ctx.Err())
			return
		}
	}
}

// Close implements the StoreAdmin interface
func (s *BadgerStore) Close() error {
	if s.db != nil && !s.db.IsClosed() {
		s.log.Info("Closing state DB...")
		if err := s.db.Close(); err != nil {
			s.log.Errorf("Error closing state DB: %v", err)
			return err
		}
		return nil
	}
	s.log.Debug("State DB already closed or was not initialized.")
	return nil
}
