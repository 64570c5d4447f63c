/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package asrun records clips that played through to their tail.
package asrun

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mltframework/melted/internal/models"
	"github.com/mltframework/melted/internal/mvcp"
	"github.com/mltframework/melted/internal/telemetry"
)

// TailFrames is how close to the end of a clip the playhead must get before
// the clip counts as aired.
const TailFrames = 60

// StatusFunc returns the current snapshot of every unit.
type StatusFunc func() []mvcp.Status

// Recorder persists as-run entries.
type Recorder interface {
	Record(ctx context.Context, e models.AsRunEntry) error
}

type track struct {
	clipIndex int
	logged    bool
}

// Monitor polls unit status and reports each clip once when its playhead
// passes the tail threshold.
type Monitor struct {
	source    StatusFunc
	recorders []Recorder
	interval  time.Duration
	now       func() time.Time
	logger    zerolog.Logger

	mu     sync.Mutex
	tracks map[int]*track
}

// NewMonitor creates a monitor polling source once a second.
func NewMonitor(source StatusFunc, logger zerolog.Logger, recorders ...Recorder) *Monitor {
	return &Monitor{
		source:    source,
		recorders: recorders,
		interval:  time.Second,
		now:       time.Now,
		logger:    logger.With().Str("component", "asrun").Logger(),
		tracks:    make(map[int]*track),
	}
}

// Run polls until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// Check evaluates one round of snapshots and returns the entries it logged.
func (m *Monitor) Check(ctx context.Context) []models.AsRunEntry {
	var aired []models.AsRunEntry

	m.mu.Lock()
	for _, s := range m.source() {
		if s.State == mvcp.StateUndefined {
			delete(m.tracks, s.Unit)
			continue
		}
		t, ok := m.tracks[s.Unit]
		if !ok {
			t = &track{clipIndex: -1}
			m.tracks[s.Unit] = t
		}

		threshold := s.Length - TailFrames
		if s.ClipIndex != t.clipIndex || s.Position < threshold || s.State == mvcp.StateNotLoaded {
			t.clipIndex = s.ClipIndex
			t.logged = false
		}
		if !t.logged && s.Length > 0 && s.Position > threshold {
			t.logged = true
			aired = append(aired, models.NewAsRunEntry(s, m.now()))
		}
	}
	m.mu.Unlock()

	for _, e := range aired {
		m.logger.Info().
			Int("unit", e.Unit).
			Str("clip", e.Clip).
			Msgf("AS-RUN U%d \"%s\" len %d pos %d", e.Unit, e.Clip, e.Length, e.Position)
		telemetry.AsRunTotal.WithLabelValues(strconv.Itoa(e.Unit)).Inc()
		for _, r := range m.recorders {
			if err := r.Record(ctx, e); err != nil {
				m.logger.Warn().Err(err).Int("unit", e.Unit).Msg("as-run record failed")
			}
		}
	}
	return aired
}
