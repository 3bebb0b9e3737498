// Package store abstracts the coordinator's durable persistence layer:
// a key/value store holding exactly one logical record per run,
// {starting_prefix, watermark_prefix}, keyed by the run's starting
// prefix. Three concrete KV bindings are provided (file, Badger, S3);
// callers depend only on the KV interface.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// KV is the abstract persistence backend spec.md models the
// coordinator's state store as. Implementations need not support
// concurrent writers; RunStateStore serializes access to a single key.
type KV interface {
	// Get returns the stored value for key, or ok=false if absent.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Set durably writes value for key. A successful return means the
	// write is safe to consider committed (spec.md §4.2: the
	// coordinator MUST NOT report a watermark that has not been
	// persisted).
	Set(ctx context.Context, key string, value []byte) error
	// Close releases any resources held by the backend.
	Close() error
}

// runStateKey is the single key under which the active run's record is
// stored. One coordinator instance manages one run at a time.
const runStateKey = "bruty/run_state"

// watermarkNone is the sentinel meaning "no base prefix acknowledged
// yet". Because alphabet.Compare treats the empty string as a prefix of
// everything, it always sorts first, giving callers
// max(startingPrefix, watermark) == startingPrefix for a fresh run
// without a special case.
const watermarkNone = ""

// RunState is the persisted record for a run.
type RunState struct {
	StartingPrefix  string `json:"starting_prefix"`
	WatermarkPrefix string `json:"watermark_prefix"`
}

// RunStateStore loads and advances the persisted watermark for a run,
// applying the migration rule from spec.md §6: a run started with a
// different starting_prefix than the stored record replaces it,
// resetting the watermark to "none".
type RunStateStore struct {
	mu sync.Mutex // serializes writes of the run-state key
	kv KV
}

// NewRunStateStore wraps a KV backend.
func NewRunStateStore(kv KV) *RunStateStore {
	return &RunStateStore{kv: kv}
}

// Load fetches the persisted record for startingPrefix, creating or
// migrating it as needed. It never returns a nil state on success.
func (s *RunStateStore) Load(ctx context.Context, startingPrefix string) (*RunState, error) {
	raw, ok, err := s.kv.Get(ctx, runStateKey)
	if err != nil {
		return nil, fmt.Errorf("store: load run state: %w", err)
	}
	if !ok {
		fresh := &RunState{StartingPrefix: startingPrefix, WatermarkPrefix: watermarkNone}
		if err := s.save(ctx, fresh); err != nil {
			return nil, err
		}
		return fresh, nil
	}

	var state RunState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("store: decode run state: %w", err)
	}

	if state.StartingPrefix != startingPrefix {
		migrated := &RunState{StartingPrefix: startingPrefix, WatermarkPrefix: watermarkNone}
		if err := s.save(ctx, migrated); err != nil {
			return nil, err
		}
		return migrated, nil
	}

	return &state, nil
}

// AdvanceWatermark persists a new watermark for the run. Callers (the
// reconciler) are responsible for enforcing W1 (never backward) before
// calling this; AdvanceWatermark itself does not re-check ordering so
// it stays a pure write path.
func (s *RunStateStore) AdvanceWatermark(ctx context.Context, startingPrefix, watermark string) error {
	return s.save(ctx, &RunState{StartingPrefix: startingPrefix, WatermarkPrefix: watermark})
}

func (s *RunStateStore) save(ctx context.Context, state *RunState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("store: encode run state: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.Set(ctx, runStateKey, raw); err != nil {
		return fmt.Errorf("store: persist run state: %w", err)
	}
	return nil
}
