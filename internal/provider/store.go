// Package provider implements ConfigStore: per-provider dynamic
// configuration, persisted in bbolt and materialized to the shared
// prompts directory each worker's container/subprocess mounts read-only
// (spec.md §4.6), grounded on cuemby/warren's pkg/storage/boltdb.go.
package provider

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/hackstrix/zeusgate/internal/registry"
)

var bucketConfigs = []byte("provider_configs")

// Config is one provider's dynamic policy (spec.md §3, ProviderConfig).
type Config struct {
	Provider         string `json:"provider"`
	DefaultModel     string `json:"defaultModel"`
	DefaultInnerPort int    `json:"defaultInnerPort"`
	EnvKeys          []string `json:"envKeys"`
	SystemPrompt     string `json:"systemPrompt"`
}

// Patch is a partial update; nil fields are left untouched.
type Patch struct {
	DefaultModel     *string
	DefaultInnerPort *int
	EnvKeys          []string
	SystemPrompt     *string
}

// Store persists ProviderConfig in bbolt and mirrors each provider's
// system prompt to <promptsDir>/<provider>/system-prompt.txt.
type Store struct {
	db         *bolt.DB
	promptsDir string
	reg        *registry.Registry

	mu sync.Mutex
}

// Open opens (creating if absent) the bbolt database at dbPath and
// ensures promptsDir exists. reg is consulted to compute the ids of
// workers affected by an Update (spec.md §4.6: "returns affected worker
// ids").
func Open(dbPath, promptsDir string, reg *registry.Registry) (*Store, error) {
	db, err := bolt.Open(dbPath, 0o600, nil)
	if err != nil {
		return nil, errors.Wrap(err, "open provider config database")
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketConfigs)
		return err
	}); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create provider config bucket")
	}
	if err := os.MkdirAll(promptsDir, 0o755); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create prompts directory")
	}
	return &Store{db: db, promptsDir: promptsDir, reg: reg}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns provider's current configuration, or a zero-value Config
// with the provider tag set if none was ever written.
func (s *Store) Get(provider string) (Config, error) {
	var cfg Config
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketConfigs)
		data := b.Get([]byte(provider))
		if data == nil {
			cfg = Config{Provider: provider}
			return nil
		}
		return json.Unmarshal(data, &cfg)
	})
	if err != nil {
		return Config{}, errors.Wrapf(err, "get config for provider %q", provider)
	}
	return cfg, nil
}

// Update applies patch to provider's configuration, persists it, and —
// if the system prompt changed — rewrites the shared prompt file and
// returns the ids of that provider's currently-running workers, which
// the caller (Router) must restart for the change to take effect
// (spec.md §4.6).
func (s *Store) Update(provider string, patch Patch) (affected []string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.Get(provider)
	if err != nil {
		return nil, err
	}
	promptChanged := patch.SystemPrompt != nil && *patch.SystemPrompt != cfg.SystemPrompt

	if patch.DefaultModel != nil {
		cfg.DefaultModel = *patch.DefaultModel
	}
	if patch.DefaultInnerPort != nil {
		cfg.DefaultInnerPort = *patch.DefaultInnerPort
	}
	if patch.EnvKeys != nil {
		cfg.EnvKeys = patch.EnvKeys
	}
	if patch.SystemPrompt != nil {
		cfg.SystemPrompt = *patch.SystemPrompt
	}

	if err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketConfigs)
		data, err := json.Marshal(cfg)
		if err != nil {
			return err
		}
		return b.Put([]byte(provider), data)
	}); err != nil {
		return nil, errors.Wrapf(err, "persist config for provider %q", provider)
	}

	if promptChanged {
		if err := s.writePromptFile(provider, cfg.SystemPrompt); err != nil {
			return nil, err
		}
	}

	if promptChanged {
		for _, w := range s.reg.List(provider) {
			affected = append(affected, w.ID)
		}
	}
	return affected, nil
}

// EnsureMaterialized rewrites provider's prompt file from the persisted
// config, called by the Supervisor before every spawn (spec.md §4.2 step
// 1) so a worker always starts with the current prompt even if it was
// never explicitly changed after a gateway restart. Implements
// worker.ConfigMaterializer.
func (s *Store) EnsureMaterialized(_ context.Context, provider string) error {
	cfg, err := s.Get(provider)
	if err != nil {
		return err
	}
	return s.writePromptFile(provider, cfg.SystemPrompt)
}

func (s *Store) writePromptFile(provider, prompt string) error {
	dir := filepath.Join(s.promptsDir, provider)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "create prompt directory for provider %q", provider)
	}
	path := filepath.Join(dir, "system-prompt.txt")
	if err := os.WriteFile(path, []byte(prompt), 0o644); err != nil {
		return errors.Wrapf(err, "write prompt file for provider %q", provider)
	}
	return nil
}
