// Package loop models the long-lived agent loops the daemon supervises.
package loop

import (
	"errors"
	"fmt"
	"time"

	"github.com/loopdeck/loopdeck/internal/logger"
	"github.com/loopdeck/loopdeck/internal/store"
)

// Loop states as persisted in the control plane.
const (
	StateIdle    = "idle"
	StateRunning = "running"
	StatePaused  = "paused"
	StateDead    = "dead"
)

// ErrLoopNotFound indicates the requested loop id is unknown.
var ErrLoopNotFound = errors.New("loop not found")

// Registry drives loop lifecycle over the control-plane store. It is owned
// by the daemon, which serializes access.
type Registry struct {
	store *store.Store
	now   func() int64
}

// NewRegistry creates a loop registry backed by the given store.
func NewRegistry(s *store.Store) *Registry {
	return &Registry{
		store: s,
		now:   func() int64 { return time.Now().Unix() },
	}
}

// New creates a loop in the idle state.
func (r *Registry) New(id, name string) (store.LoopRecord, error) {
	now := r.now()
	record := store.LoopRecord{
		ID:        id,
		Name:      name,
		State:     StateIdle,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.store.SaveLoop(record); err != nil {
		return store.LoopRecord{}, err
	}
	logger.Info("Created loop %s (%s)", id, name)
	return record, nil
}

// Resume marks a loop running.
func (r *Registry) Resume(id string) error {
	return r.setState(id, StateRunning)
}

// Stop marks a loop paused.
func (r *Registry) Stop(id string) error {
	return r.setState(id, StatePaused)
}

// Kill marks a loop dead. The record is kept for inspection until deleted.
func (r *Registry) Kill(id string) error {
	return r.setState(id, StateDead)
}

// Delete removes a loop record entirely.
func (r *Registry) Delete(id string) error {
	removed, err := r.store.DeleteLoop(id)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("%w: %s", ErrLoopNotFound, id)
	}
	logger.Info("Deleted loop %s", id)
	return nil
}

// List returns all loops.
func (r *Registry) List() ([]store.LoopRecord, error) {
	return r.store.ListLoops()
}

func (r *Registry) setState(id, state string) error {
	record, err := r.store.GetLoop(id)
	if err != nil {
		return err
	}
	if record == nil {
		return fmt.Errorf("%w: %s", ErrLoopNotFound, id)
	}
	record.State = state
	record.UpdatedAt = r.now()
	if err := r.store.SaveLoop(*record); err != nil {
		return err
	}
	logger.Debug("Loop %s -> %s", id, state)
	return nil
}
