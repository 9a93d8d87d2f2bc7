// Package backup persists state snapshots as versioned JSON so a synth
// can restore its saved banks across restarts.
package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const snapshotVersion = "1"

type envelope struct {
	Version   string          `json:"version"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Storage abstracts where snapshot bytes live.
type Storage interface {
	Save(ctx context.Context, data []byte) error
	Load(ctx context.Context) ([]byte, error)
}

type Manager struct {
	storage Storage
}

func NewManager(storage Storage) *Manager {
	return &Manager{storage: storage}
}

// SaveSnapshot wraps value in a versioned envelope and writes it.
func (m *Manager) SaveSnapshot(ctx context.Context, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	raw, err := json.Marshal(envelope{
		Version:   snapshotVersion,
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
	if err != nil {
		return fmt.Errorf("failed to encode snapshot envelope: %w", err)
	}

	return m.storage.Save(ctx, raw)
}

// LoadSnapshot reads the latest snapshot into value. Version mismatches
// are rejected rather than migrated.
func (m *Manager) LoadSnapshot(ctx context.Context, value interface{}) error {
	raw, err := m.storage.Load(ctx)
	if err != nil {
		return err
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("failed to decode snapshot envelope: %w", err)
	}
	if env.Version != snapshotVersion {
		return fmt.Errorf("unsupported snapshot version %q", env.Version)
	}

	if err := json.Unmarshal(env.Data, value); err != nil {
		return fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return nil
}
