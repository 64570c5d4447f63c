/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mltframework/melted/internal/mvcp"
)

// AsRunEntry records a clip that played through to its tail on a unit.
type AsRunEntry struct {
	ID         string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Unit       int       `gorm:"index" json:"unit"`
	Clip       string    `gorm:"index" json:"clip"`
	ClipIndex  int       `json:"clip_index"`
	Length     int       `json:"length"`
	Position   int       `json:"position"`
	FPS        float64   `json:"fps"`
	Generation int       `json:"generation"`
	AiredAt    time.Time `gorm:"index" json:"aired_at"`
}

// NewAsRunEntry builds an entry from the status that triggered it.
func NewAsRunEntry(s mvcp.Status, at time.Time) AsRunEntry {
	return AsRunEntry{
		ID:         uuid.NewString(),
		Unit:       s.Unit,
		Clip:       s.Clip,
		ClipIndex:  s.ClipIndex,
		Length:     s.Length,
		Position:   s.Position,
		FPS:        s.FPS,
		Generation: s.Generation,
		AiredAt:    at.UTC(),
	}
}

// BeforeCreate fills in a missing id.
func (e *AsRunEntry) BeforeCreate(*gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}

// Duration is the clip length in wall time.
func (e AsRunEntry) Duration() time.Duration {
	if e.FPS <= 0 {
		return 0
	}
	return time.Duration(float64(e.Length) / e.FPS * float64(time.Second))
}
