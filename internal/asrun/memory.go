/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package asrun

import (
	"context"
	"sync"

	"github.com/mltframework/melted/internal/models"
)

// Memory keeps the most recent entries in a ring buffer.
type Memory struct {
	mu       sync.RWMutex
	entries  []models.AsRunEntry
	capacity int
	head     int
	count    int
}

// NewMemory creates a ring holding up to capacity entries.
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Memory{
		entries:  make([]models.AsRunEntry, capacity),
		capacity: capacity,
	}
}

// Record adds e, overwriting the oldest entry when full.
func (m *Memory) Record(_ context.Context, e models.AsRunEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[m.head] = e
	m.head = (m.head + 1) % m.capacity
	if m.count < m.capacity {
		m.count++
	}
	return nil
}

// Recent returns up to limit entries, newest first. A negative unit
// matches every unit and a limit of 0 returns everything held.
func (m *Memory) Recent(_ context.Context, unit, limit int) ([]models.AsRunEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.AsRunEntry, 0, m.count)
	for i := 1; i <= m.count; i++ {
		e := m.entries[(m.head-i+m.capacity)%m.capacity]
		if unit >= 0 && e.Unit != unit {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
