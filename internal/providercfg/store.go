package providercfg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v3"
)

// Store loads, saves and clears the single provider configuration record.
type Store interface {
	// Load returns the stored config, or nil when none is stored or the record is unreadable.
	Load(ctx context.Context) (*Config, error)
	Save(ctx context.Context, cfg Config) error
	Clear(ctx context.Context) error
	Close() error
}

// BadgerStore keeps the record in a badger key/value database.
type BadgerStore struct {
	db *badger.DB
}

// Compile-time check that BadgerStore implements Store.
var _ Store = (*BadgerStore)(nil)

// OpenBadgerStore opens (or creates) a badger database in dir.
func OpenBadgerStore(dir string) (*BadgerStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create provider config dir: %w", err)
	}
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("failed to open provider config store: %w", err)
	}
	slog.Debug("BadgerStore opened", "dir", dir)
	return &BadgerStore{db: db}, nil
}

// OpenInMemoryBadgerStore opens a badger database that lives only in memory.
func OpenInMemoryBadgerStore() (*BadgerStore, error) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory provider config store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Load(ctx context.Context) (*Config, error) {
	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(StoreKey))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read provider config: %w", err)
	}

	cfg, err := Decode(raw)
	if errors.Is(err, ErrUnsupportedVersion) {
		return nil, err
	}
	if err != nil {
		slog.Warn("BadgerStore.Load: ignoring unreadable provider config", "error", err)
		return nil, nil
	}
	return cfg, nil
}

// Save validates cfg and stores it at CurrentVersion.
func (s *BadgerStore) Save(ctx context.Context, cfg Config) error {
	if cfg.Version != 0 && cfg.Version != CurrentVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, cfg.Version)
	}
	if err := migrate(&cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode provider config: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(StoreKey), raw)
	})
	if err != nil {
		return fmt.Errorf("failed to write provider config: %w", err)
	}
	slog.Info("BadgerStore.Save: provider config saved", "provider", cfg.Provider)
	return nil
}

func (s *BadgerStore) Clear(ctx context.Context) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(StoreKey))
	})
	if err != nil {
		return fmt.Errorf("failed to clear provider config: %w", err)
	}
	slog.Info("BadgerStore.Clear: provider config cleared")
	return nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
