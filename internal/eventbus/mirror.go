/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus mirrors unit status snapshots to external brokers.
package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mltframework/melted/internal/mvcp"
	"github.com/mltframework/melted/internal/notifier"
	"github.com/mltframework/melted/internal/telemetry"
)

// Sink delivers an encoded message to one broker.
type Sink interface {
	Name() string
	Publish(ctx context.Context, data []byte) error
	Close() error
}

// Message is the JSON document published for every status change.
type Message struct {
	Status    mvcp.Status `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
	NodeID    string      `json:"node_id"`
}

func marshalMessage(s mvcp.Status, nodeID string, at time.Time) ([]byte, error) {
	return json.Marshal(Message{Status: s, Timestamp: at, NodeID: nodeID})
}

// UnmarshalMessage parses a mirrored status message.
func UnmarshalMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal status message: %w", err)
	}
	return &msg, nil
}

// breaker stops calling a sink after repeated failures until the cooldown
// has passed.
type breaker struct {
	fails     int
	openUntil time.Time
}

// Mirror follows a notifier and forwards every change to its sinks.
type Mirror struct {
	notifier *notifier.Notifier
	nodeID   string
	logger   zerolog.Logger
	timeout  time.Duration
	maxFails int
	cooldown time.Duration
	now      func() time.Time

	mu       sync.Mutex
	sinks    []Sink
	breakers map[string]*breaker
}

// NewMirror creates a mirror identified by nodeID.
func NewMirror(n *notifier.Notifier, nodeID string, logger zerolog.Logger, sinks ...Sink) *Mirror {
	return &Mirror{
		notifier: n,
		nodeID:   nodeID,
		logger:   logger.With().Str("component", "eventbus").Logger(),
		timeout:  2 * time.Second,
		maxFails: 5,
		cooldown: 30 * time.Second,
		now:      time.Now,
		sinks:    sinks,
		breakers: make(map[string]*breaker),
	}
}

// Sinks returns the number of configured sinks.
func (m *Mirror) Sinks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sinks)
}

// Run forwards changes until ctx is done or the notifier closes.
func (m *Mirror) Run(ctx context.Context) {
	_, seq := m.notifier.Snapshot()
	for {
		statuses, next, err := m.notifier.Wait(ctx, seq)
		switch {
		case errors.Is(err, notifier.ErrTimeout):
			continue
		case err != nil:
			return
		}
		seq = next
		for _, s := range statuses {
			m.Forward(ctx, s)
		}
	}
}

// Forward publishes s to every sink whose breaker is closed.
func (m *Mirror) Forward(ctx context.Context, s mvcp.Status) {
	data, err := marshalMessage(s, m.nodeID, m.now().UTC())
	if err != nil {
		m.logger.Error().Err(err).Msg("failed to marshal status message")
		return
	}

	m.mu.Lock()
	sinks := append([]Sink(nil), m.sinks...)
	m.mu.Unlock()

	for _, sink := range sinks {
		if !m.allow(sink.Name()) {
			continue
		}
		pubCtx, cancel := context.WithTimeout(ctx, m.timeout)
		err := sink.Publish(pubCtx, data)
		cancel()
		m.settle(sink.Name(), err)
		if err != nil {
			telemetry.MirrorErrorsTotal.WithLabelValues(sink.Name()).Inc()
			m.logger.Warn().Err(err).Str("sink", sink.Name()).Int("unit", s.Unit).Msg("status mirror publish failed")
		}
	}
}

func (m *Mirror) allow(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.breakers[name]
	if !ok {
		return true
	}
	return b.openUntil.IsZero() || !m.now().Before(b.openUntil)
}

func (m *Mirror) settle(name string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.breakers[name]
	if !ok {
		b = &breaker{}
		m.breakers[name] = b
	}
	if err == nil {
		if !b.openUntil.IsZero() {
			m.logger.Info().Str("sink", name).Msg("status mirror recovered")
		}
		b.fails, b.openUntil = 0, time.Time{}
		return
	}
	b.fails++
	if b.fails >= m.maxFails {
		b.openUntil = m.now().Add(m.cooldown)
		m.logger.Warn().Str("sink", name).Int("fail_count", b.fails).Msg("status mirror paused after repeated failures")
	}
}

// Close releases every sink.
func (m *Mirror) Close() error {
	m.mu.Lock()
	sinks := m.sinks
	m.sinks = nil
	m.mu.Unlock()

	var errs []error
	for _, s := range sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}
