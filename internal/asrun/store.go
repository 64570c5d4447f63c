/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package asrun

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/mltframework/melted/internal/models"
)

// History answers as-run queries.
type History interface {
	Recent(ctx context.Context, unit, limit int) ([]models.AsRunEntry, error)
}

// Store persists entries through gorm.
type Store struct {
	db *gorm.DB
}

// NewStore wraps an already migrated database.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Record inserts e.
func (s *Store) Record(ctx context.Context, e models.AsRunEntry) error {
	if err := s.db.WithContext(ctx).Create(&e).Error; err != nil {
		return fmt.Errorf("insert as-run entry: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first. A negative unit
// matches every unit and a limit of 0 means no limit.
func (s *Store) Recent(ctx context.Context, unit, limit int) ([]models.AsRunEntry, error) {
	q := s.db.WithContext(ctx).Order("aired_at DESC")
	if unit >= 0 {
		q = q.Where("unit = ?", unit)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []models.AsRunEntry
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("query as-run entries: %w", err)
	}
	return out, nil
}
