/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package mediaengine

import (
	"math"
	"sync"
	"time"
)

// VirtualConsumer renders nothing. Its playhead advances with the wall
// clock at speed × fps frames per second while started, clamped to the
// timeline.
type VirtualConsumer struct {
	mu       sync.Mutex
	service  string
	arg      string
	fps      float64
	now      func() time.Time
	props    *Properties
	stopped  bool
	speed    float64
	base     float64
	anchor   time.Time
	duration int

	refreshes int
	purges    int
}

// NewVirtualConsumer returns a stopped consumer at frame 0.
func NewVirtualConsumer(service, arg string, fps float64, now func() time.Time) *VirtualConsumer {
	if now == nil {
		now = time.Now
	}
	if fps <= 0 {
		fps = DefaultFPS
	}
	c := &VirtualConsumer{
		service: service,
		arg:     arg,
		fps:     fps,
		now:     now,
		props:   NewProperties(),
		stopped: true,
		anchor:  now(),
	}
	c.props.Set("mlt_service", service)
	if arg != "" {
		c.props.Set("target", arg)
	}
	return c
}

func (c *VirtualConsumer) Service() string { return c.service }

func (c *VirtualConsumer) FPS() float64 { return c.fps }

func (c *VirtualConsumer) Properties() *Properties { return c.props }

func (c *VirtualConsumer) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settleLocked()
	c.stopped = false
	return nil
}

func (c *VirtualConsumer) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settleLocked()
	c.stopped = true
	return nil
}

func (c *VirtualConsumer) IsStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

func (c *VirtualConsumer) Purge() {
	c.mu.Lock()
	c.purges++
	c.mu.Unlock()
}

func (c *VirtualConsumer) Refresh() {
	c.mu.Lock()
	c.refreshes++
	c.mu.Unlock()
}

// Purges returns how many times the consumer was purged.
func (c *VirtualConsumer) Purges() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.purges
}

// Refreshes returns how many refreshes were requested.
func (c *VirtualConsumer) Refreshes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshes
}

func (c *VirtualConsumer) Seek(frame int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.base = c.clampLocked(float64(frame))
	c.anchor = c.now()
}

func (c *VirtualConsumer) Position() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int(math.Floor(c.positionLocked()))
}

func (c *VirtualConsumer) SetSpeed(speed float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settleLocked()
	c.speed = speed
}

func (c *VirtualConsumer) Speed() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speed
}

func (c *VirtualConsumer) SetDuration(frames int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settleLocked()
	if frames < 0 {
		frames = 0
	}
	c.duration = frames
	c.base = c.clampLocked(c.base)
}

func (c *VirtualConsumer) Close() error {
	return c.Stop()
}

func (c *VirtualConsumer) positionLocked() float64 {
	if c.stopped || c.speed == 0 {
		return c.base
	}
	elapsed := c.now().Sub(c.anchor).Seconds()
	return c.clampLocked(c.base + elapsed*c.fps*c.speed)
}

// settleLocked folds elapsed playback into base so speed or state can change
// without losing position.
func (c *VirtualConsumer) settleLocked() {
	c.base = c.positionLocked()
	c.anchor = c.now()
}

func (c *VirtualConsumer) clampLocked(pos float64) float64 {
	end := float64(c.duration)
	if end < 0 {
		end = 0
	}
	if pos > end {
		pos = end
	}
	if pos < 0 {
		pos = 0
	}
	return pos
}
