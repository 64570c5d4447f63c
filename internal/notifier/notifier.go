/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package notifier fans unit status snapshots out to every connection that
// streams them.
package notifier

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/mltframework/melted/internal/mvcp"
	"github.com/mltframework/melted/internal/telemetry"
)

var (
	// ErrTimeout is returned by Wait when nothing was published within the
	// poll interval.
	ErrTimeout = errors.New("notifier: wait timed out")
	// ErrClosed is returned once the notifier has been closed.
	ErrClosed = errors.New("notifier: closed")
)

// DefaultPollInterval bounds a single Wait.
const DefaultPollInterval = time.Second

// Notifier keeps the latest snapshot per unit. Every Publish bumps a
// sequence number and wakes all waiters by closing the current change
// channel.
type Notifier struct {
	mu      sync.Mutex
	units   []mvcp.Status
	seqs    []uint64
	last    mvcp.Status
	seq     uint64
	changed chan struct{}
	closed  bool
	poll    time.Duration
}

// New creates a notifier with one slot per unit.
func New(capacity int, poll time.Duration) *Notifier {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	n := &Notifier{
		units:   make([]mvcp.Status, capacity),
		seqs:    make([]uint64, capacity),
		changed: make(chan struct{}),
		poll:    poll,
	}
	for i := range n.units {
		n.units[i] = mvcp.Undefined(i)
	}
	n.last = mvcp.Undefined(0)
	return n
}

// Capacity returns the number of unit slots.
func (n *Notifier) Capacity() int {
	return len(n.units)
}

// Publish stores s and wakes every waiter.
func (n *Notifier) Publish(s mvcp.Status) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.seq++
	if s.Unit >= 0 && s.Unit < len(n.units) {
		n.units[s.Unit] = s
		n.seqs[s.Unit] = n.seq
	}
	n.last = s
	telemetry.StatusPublishesTotal.WithLabelValues(strconv.Itoa(s.Unit)).Inc()
	close(n.changed)
	n.changed = make(chan struct{})
}

// Current returns the latest snapshot for unit without blocking.
func (n *Notifier) Current(unit int) mvcp.Status {
	n.mu.Lock()
	defer n.mu.Unlock()
	if unit < 0 || unit >= len(n.units) {
		return mvcp.Undefined(unit)
	}
	return n.units[unit]
}

// Last returns the most recently published snapshot of any unit.
func (n *Notifier) Last() mvcp.Status {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.last
}

// Snapshot returns the latest snapshot of every slot and the sequence
// number it corresponds to.
func (n *Notifier) Snapshot() ([]mvcp.Status, uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]mvcp.Status, len(n.units))
	copy(out, n.units)
	return out, n.seq
}

// Seq returns the current publish sequence number.
func (n *Notifier) Seq() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.seq
}

// Wait blocks until something is published after sequence since. It returns
// the snapshots of every unit that changed, in unit order, along with the
// sequence to pass to the next call. A wait gives up after the poll
// interval with ErrTimeout so callers can check on their peer.
func (n *Notifier) Wait(ctx context.Context, since uint64) ([]mvcp.Status, uint64, error) {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil, since, ErrClosed
	}
	if n.seq > since {
		changed := n.collectLocked(since)
		seq := n.seq
		n.mu.Unlock()
		return changed, seq, nil
	}
	ch := n.changed
	n.mu.Unlock()

	timer := time.NewTimer(n.poll)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, since, ctx.Err()
	case <-timer.C:
		return nil, since, ErrTimeout
	case <-ch:
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil, since, ErrClosed
	}
	return n.collectLocked(since), n.seq, nil
}

func (n *Notifier) collectLocked(since uint64) []mvcp.Status {
	var changed []mvcp.Status
	for i, seq := range n.seqs {
		if seq > since {
			changed = append(changed, n.units[i])
		}
	}
	if len(changed) == 0 {
		changed = append(changed, n.last)
	}
	return changed
}

// Close wakes every waiter with ErrClosed. Later publishes are dropped.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	close(n.changed)
}
