/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/mltframework/melted/internal/mediaengine"
	"github.com/mltframework/melted/internal/mvcp"
	"github.com/mltframework/melted/internal/telemetry"
)

// DefaultCapacity is the number of unit slots when none is configured.
const DefaultCapacity = 16

var (
	// ErrUnitNotFound is returned for an empty or out of range slot.
	ErrUnitNotFound = errors.New("playout: unit not found")
	// ErrRegistryFull is returned by Add when every slot is taken.
	ErrRegistryFull = errors.New("playout: no more units can be created")
)

// Registry is the fixed-size table of units. Slot changes are guarded by
// its own lock; each unit guards its own playlist.
type Registry struct {
	engine    mediaengine.Engine
	publisher Publisher
	logger    zerolog.Logger

	root atomic.Value

	mu    sync.Mutex
	units []*Unit
}

// NewRegistry creates a registry with capacity slots.
func NewRegistry(capacity int, engine mediaengine.Engine, pub Publisher, logger zerolog.Logger) *Registry {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	r := &Registry{
		engine:    engine,
		publisher: pub,
		logger:    logger.With().Str("component", "registry").Logger(),
		units:     make([]*Unit, capacity),
	}
	r.root.Store("")
	return r
}

// Capacity returns the number of slots.
func (r *Registry) Capacity() int {
	return len(r.units)
}

// Engine returns the media engine units are built on.
func (r *Registry) Engine() mediaengine.Engine {
	return r.engine
}

// Add creates a unit for descriptor, "service[:argument]", in the first
// free slot.
func (r *Registry) Add(ctx context.Context, descriptor string) (*Unit, error) {
	service, arg, _ := strings.Cut(descriptor, ":")

	r.mu.Lock()
	defer r.mu.Unlock()

	slot := -1
	for i, u := range r.units {
		if u == nil {
			slot = i
			break
		}
	}
	if slot < 0 {
		return nil, ErrRegistryFull
	}

	consumer, err := r.engine.NewConsumer(ctx, service, arg)
	if err != nil {
		return nil, fmt.Errorf("create consumer %q: %w", descriptor, err)
	}
	u := newUnit(slot, descriptor, r.engine, consumer, r.publisher, r.RootDir, r.logger)
	r.units[slot] = u
	telemetry.Units.Inc()

	r.logger.Info().Int("unit", slot).Str("consumer", descriptor).Msg("unit added")
	if r.publisher != nil {
		r.publisher.Publish(u.Status())
	}
	return u, nil
}

// Get returns the unit in slot index.
func (r *Registry) Get(index int) (*Unit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if index < 0 || index >= len(r.units) || r.units[index] == nil {
		return nil, fmt.Errorf("U%d: %w", index, ErrUnitNotFound)
	}
	return r.units[index], nil
}

// Units returns the occupied slots in index order.
func (r *Registry) Units() []*Unit {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Unit, 0, len(r.units))
	for _, u := range r.units {
		if u != nil {
			out = append(out, u)
		}
	}
	return out
}

// Delete terminates the unit in slot index and frees the slot.
func (r *Registry) Delete(index int) error {
	r.mu.Lock()
	if index < 0 || index >= len(r.units) || r.units[index] == nil {
		r.mu.Unlock()
		return fmt.Errorf("U%d: %w", index, ErrUnitNotFound)
	}
	u := r.units[index]
	r.units[index] = nil
	r.mu.Unlock()
	telemetry.Units.Dec()

	err := u.Close()
	r.logger.Info().Int("unit", index).Msg("unit deleted")
	if r.publisher != nil {
		r.publisher.Publish(mvcp.Undefined(index))
	}
	return err
}

// DeleteAll releases every unit.
func (r *Registry) DeleteAll() {
	r.mu.Lock()
	units := make([]*Unit, 0, len(r.units))
	for i, u := range r.units {
		if u != nil {
			units = append(units, u)
			r.units[i] = nil
		}
	}
	r.mu.Unlock()

	for _, u := range units {
		telemetry.Units.Dec()
		if err := u.Close(); err != nil {
			r.logger.Warn().Err(err).Int("unit", u.Index()).Msg("unit close failed")
		}
		if r.publisher != nil {
			r.publisher.Publish(mvcp.Undefined(u.Index()))
		}
	}
}

// RootDir returns the prefix relative resource names resolve under.
func (r *Registry) RootDir() string {
	return r.root.Load().(string)
}

// SetRootDir stops every unit and installs dir as the new root. A
// trailing slash is added when missing.
func (r *Registry) SetRootDir(dir string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.units {
		if u != nil {
			u.Terminate()
		}
	}
	if dir != "" && !strings.HasSuffix(dir, "/") {
		dir += "/"
	}
	r.root.Store(dir)
	r.logger.Info().Str("root", dir).Msg("root directory changed")
}

// Resolve prefixes name with the root directory. A "service:" prefix is
// kept in front of the result.
func (r *Registry) Resolve(name string) string {
	root := r.RootDir()
	prefix := ""
	if i := strings.Index(name, ":"); i >= 0 {
		prefix, name = name[:i+1], name[i+1:]
	}
	if root != "" {
		name = strings.TrimPrefix(name, "/")
	}
	return prefix + root + name
}

// Transfer moves the playlist of unit src onto unit dest.
func (r *Registry) Transfer(src, dest int) error {
	from, err := r.Get(src)
	if err != nil {
		return err
	}
	to, err := r.Get(dest)
	if err != nil {
		return err
	}
	return from.TransferTo(to)
}
