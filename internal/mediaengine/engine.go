/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package mediaengine is the boundary between playout units and whatever
// renders frames. Units only open producers, drive a consumer's playhead and
// read back lengths and positions.
package mediaengine

import (
	"context"
	"errors"
)

// ErrOpen is returned when a resource cannot be located or opened.
var ErrOpen = errors.New("mediaengine: cannot open resource")

// Producer is an opened, playable resource.
type Producer interface {
	// Resource is the name the producer was opened from.
	Resource() string
	// Title is an explicit display title, or "" when the resource has none.
	Title() string
	// Length is the natural duration in frames.
	Length() int
	FPS() float64
	Properties() *Properties
}

// Consumer renders a unit's playlist and owns its playhead. Positions are
// frames on the playlist timeline.
type Consumer interface {
	Service() string
	Start() error
	Stop() error
	IsStopped() bool
	// Purge drops any frames buffered for display.
	Purge()
	// Refresh asks the consumer to re-render the current frame.
	Refresh()
	Seek(frame int)
	Position() int
	SetSpeed(speed float64)
	Speed() float64
	// SetDuration tells the playhead how long the timeline currently is.
	SetDuration(frames int)
	FPS() float64
	Properties() *Properties
	Close() error
}

// Engine opens producers and creates consumers.
type Engine interface {
	// Open resolves a resource name. defaults are copied onto the new
	// producer's properties.
	Open(ctx context.Context, resource string, defaults map[string]string) (Producer, error)
	// Decode builds a producer from a pushed document.
	Decode(ctx context.Context, doc []byte) (Producer, error)
	// NewConsumer creates an output for service with an optional argument.
	NewConsumer(ctx context.Context, service, arg string) (Consumer, error)
	// Services lists the consumer services the engine advertises.
	Services() []string
}
