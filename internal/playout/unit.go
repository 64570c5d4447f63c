/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playout

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/mltframework/melted/internal/mediaengine"
	"github.com/mltframework/melted/internal/mvcp"
)

var (
	// ErrClipNotFound is returned when a clip index does not exist.
	ErrClipNotFound = errors.New("playout: clip not found")
	// ErrOutOfRange is returned when a trim bound lies outside the clip.
	ErrOutOfRange = errors.New("playout: position out of range")
	// ErrSameUnit is returned when a unit is asked to transfer to itself.
	ErrSameUnit = errors.New("playout: source and destination are the same unit")
	// ErrInvalidProperty is returned for a malformed name=value assignment.
	ErrInvalidProperty = errors.New("playout: invalid property assignment")
)

// Publisher receives status snapshots after every change.
type Publisher interface {
	Publish(mvcp.Status)
}

// Unit is one playout channel: a playlist rendered by a consumer.
//
// Every mutation runs under mu together with the consumer calls it needs.
// The generation bump and the status publish happen after mu is released.
type Unit struct {
	index       int
	constructor string
	engine      mediaengine.Engine
	consumer    mediaengine.Consumer
	publisher   Publisher
	root        func() string
	logger      zerolog.Logger

	generation atomic.Int64

	mu               sync.Mutex
	list             playlist
	props            *mediaengine.Properties
	producerDefaults *mediaengine.Properties
}

func newUnit(index int, constructor string, engine mediaengine.Engine, consumer mediaengine.Consumer, pub Publisher, root func() string, logger zerolog.Logger) *Unit {
	return &Unit{
		index:            index,
		constructor:      constructor,
		engine:           engine,
		consumer:         consumer,
		publisher:        pub,
		root:             root,
		logger:           logger.With().Int("unit", index).Logger(),
		props:            mediaengine.NewProperties(),
		producerDefaults: mediaengine.NewProperties(),
	}
}

// Index returns the unit's slot number.
func (u *Unit) Index() int { return u.index }

// Constructor returns the consumer descriptor the unit was created with.
func (u *Unit) Constructor() string { return u.constructor }

// Online reports whether the consumer is reachable. Local consumers always
// are.
func (u *Unit) Online() bool {
	offline, _ := u.consumer.Properties().Get("offline")
	return offline == "" || offline == "0"
}

// Generation returns the playlist version counter.
func (u *Unit) Generation() int {
	return int(u.generation.Load())
}

func (u *Unit) commit(mutated bool) {
	if mutated {
		u.generation.Add(1)
	}
	if u.publisher != nil {
		u.publisher.Publish(u.Status())
	}
}

func (u *Unit) open(ctx context.Context, resource string) (mediaengine.Producer, error) {
	p, err := u.engine.Open(ctx, resource, u.producerDefaults.Map())
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", resource, err)
	}
	return p, nil
}

// reposition runs fn and then puts the playhead back on the frame the
// current entry was showing, if that entry survived. Otherwise the
// playhead lands at the start of whatever took the entry's place.
func (u *Unit) reposition(fn func()) {
	pos := u.consumer.Position()
	cur := u.list.clipAt(pos)
	var (
		anchor *Entry
		offset int
	)
	if info, ok := u.list.info(cur); ok {
		anchor = u.list.entries[cur]
		offset = pos - info.Start
	}

	fn()

	u.consumer.SetDuration(u.list.total())
	if anchor != nil {
		if i := u.list.indexOf(anchor); i >= 0 {
			u.consumer.Seek(u.list.start(i) + clamp(offset, 0, anchor.FrameCount()-1))
			return
		}
	}
	if u.list.count() == 0 {
		u.consumer.Seek(0)
		return
	}
	u.consumer.Seek(u.list.start(clamp(cur, 0, u.list.count()-1)))
}

// Load replaces the whole playlist with resource. purge drops frames the
// consumer already buffered from the old playlist.
func (u *Unit) Load(ctx context.Context, resource string, in, out int, purge bool) error {
	p, err := u.open(ctx, resource)
	if err != nil {
		return err
	}
	u.mu.Lock()
	e := newEntry(p, in, out)
	u.reposition(func() {
		u.list.append(e)
		u.list.removeBefore(u.list.count() - 1)
	})
	u.consumer.Seek(0)
	if purge {
		u.consumer.Purge()
	}
	u.consumer.Refresh()
	u.mu.Unlock()

	u.logger.Debug().Str("clip", resource).Msg("loaded clip")
	u.commit(true)
	return nil
}

// Insert opens resource and places it before index.
func (u *Unit) Insert(ctx context.Context, resource string, index, in, out int) error {
	p, err := u.open(ctx, resource)
	if err != nil {
		return err
	}
	u.mu.Lock()
	e := newEntry(p, in, out)
	u.reposition(func() { u.list.insert(e, index) })
	u.mu.Unlock()

	u.logger.Debug().Str("clip", resource).Int("index", index).Msg("inserted clip")
	u.commit(true)
	return nil
}

// Append opens resource and adds it at the tail.
func (u *Unit) Append(ctx context.Context, resource string, in, out int) error {
	p, err := u.open(ctx, resource)
	if err != nil {
		return err
	}
	u.AppendProducer(p, in, out)
	u.logger.Debug().Str("clip", resource).Msg("appended clip")
	return nil
}

// AppendProducer adds an already opened producer at the tail.
func (u *Unit) AppendProducer(p mediaengine.Producer, in, out int) {
	u.mu.Lock()
	e := newEntry(p, in, out)
	u.reposition(func() { u.list.append(e) })
	u.mu.Unlock()
	u.commit(true)
}

// Remove deletes the entry at index. Indexes past either end are clamped
// to the nearest entry rather than rejected.
func (u *Unit) Remove(index int) {
	u.mu.Lock()
	u.reposition(func() { u.list.remove(index) })
	u.mu.Unlock()

	u.logger.Debug().Int("index", index).Msg("removed clip")
	u.commit(true)
}

// Move relocates the entry at src to dest.
func (u *Unit) Move(src, dest int) {
	u.mu.Lock()
	u.reposition(func() { u.list.move(src, dest) })
	u.mu.Unlock()

	u.logger.Debug().Int("src", src).Int("dest", dest).Msg("moved clip")
	u.commit(true)
}

func (u *Unit) clearLocked() {
	u.list.clear()
	u.consumer.SetDuration(0)
	u.consumer.Seek(0)
	u.consumer.Refresh()
}

// Clear empties the playlist and drops any buffered frames.
func (u *Unit) Clear() {
	u.mu.Lock()
	u.clearLocked()
	u.consumer.Purge()
	u.mu.Unlock()

	u.logger.Debug().Msg("cleared playlist")
	u.commit(true)
}

// Clean removes every entry except the one playing, keeping its position
// and the playback speed.
func (u *Unit) Clean() {
	u.mu.Lock()
	u.reposition(func() {
		pos := u.consumer.Position()
		cur := u.list.clipAt(pos)
		if cur < u.list.count() {
			u.list.entries = []*Entry{u.list.entries[cur]}
		}
	})
	u.consumer.Refresh()
	u.mu.Unlock()

	u.logger.Debug().Msg("cleaned playlist")
	u.commit(true)
}

// Wipe removes every entry before the one playing.
func (u *Unit) Wipe() {
	u.mu.Lock()
	u.reposition(func() {
		u.list.removeBefore(u.list.clipAt(u.consumer.Position()))
	})
	u.mu.Unlock()

	u.logger.Debug().Msg("wiped playlist")
	u.commit(true)
}

// TransferTo moves every entry of u onto the tail of dest, leaving u empty.
func (u *Unit) TransferTo(dest *Unit) error {
	if dest == u {
		return ErrSameUnit
	}

	u.mu.Lock()
	entries := u.list.snapshot()
	u.clearLocked()
	u.mu.Unlock()
	u.commit(true)

	dest.mu.Lock()
	dest.reposition(func() {
		for i := range entries {
			e := entries[i]
			dest.list.append(&e)
		}
	})
	dest.mu.Unlock()
	dest.commit(true)

	u.logger.Debug().Int("dest", dest.index).Int("clips", len(entries)).Msg("transferred playlist")
	return nil
}

// Play sets the playback rate, where 1000 is normal speed and 0 pauses,
// and makes sure the consumer is running.
func (u *Unit) Play(speed int) {
	u.mu.Lock()
	u.playLocked(speed)
	u.mu.Unlock()
	u.commit(false)
}

func (u *Unit) playLocked(speed int) {
	u.consumer.SetSpeed(float64(speed) / 1000)
	if err := u.consumer.Start(); err != nil {
		u.logger.Warn().Err(err).Msg("consumer start failed")
	}
	u.consumer.Refresh()
}

// Terminate stops playback and the consumer.
func (u *Unit) Terminate() {
	u.mu.Lock()
	u.consumer.SetSpeed(0)
	if err := u.consumer.Stop(); err != nil {
		u.logger.Warn().Err(err).Msg("consumer stop failed")
	}
	u.mu.Unlock()
	u.commit(false)
}

// HasTerminated reports whether the consumer is stopped.
func (u *Unit) HasTerminated() bool {
	return u.consumer.IsStopped()
}

// Step pauses and moves the playhead by offset frames.
func (u *Unit) Step(offset int) {
	u.mu.Lock()
	u.playLocked(0)
	u.consumer.Seek(u.consumer.Position() + offset)
	u.consumer.Refresh()
	u.mu.Unlock()
	u.commit(false)
}

// Seek moves to frame position of clip. A clip before the first lands on
// frame 0, one past the last lands on the last clip's out point and a
// negative position means the out point. The position is clamped to the
// clip's trim window.
func (u *Unit) Seek(clip, position int) {
	u.mu.Lock()
	u.seekLocked(clip, position)
	u.mu.Unlock()
	u.commit(false)
}

func (u *Unit) seekLocked(clip, position int) {
	n := u.list.count()
	if clip < 0 {
		clip, position = 0, 0
	} else if clip >= n {
		clip, position = n-1, math.MaxInt32
	}
	info, ok := u.list.info(clip)
	if !ok {
		return
	}
	offset := position
	if offset < 0 {
		offset = info.Out
	}
	if offset < info.In {
		offset = info.In
	}
	if offset >= info.Out {
		offset = info.Out
	}
	u.consumer.Seek(info.Start + offset - info.In)
	u.consumer.Refresh()
}

// CurrentClip returns the index of the entry under the playhead.
func (u *Unit) CurrentClip() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.list.clipAt(u.consumer.Position())
}

// Count returns the number of entries.
func (u *Unit) Count() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.list.count()
}

// Entries returns the playlist in order.
func (u *Unit) Entries() []ClipInfo {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]ClipInfo, 0, u.list.count())
	for i := 0; i < u.list.count(); i++ {
		info, _ := u.list.info(i)
		out = append(out, info)
	}
	return out
}

// SetClipIn moves the in point of clip. -1 resets it to the first frame.
func (u *Unit) SetClipIn(clip, position int) error {
	return u.resize(clip, position, true)
}

// SetClipOut moves the out point of clip. -1 resets it to the last frame.
func (u *Unit) SetClipOut(clip, position int) error {
	return u.resize(clip, position, false)
}

func (u *Unit) resize(clip, position int, in bool) error {
	u.mu.Lock()
	if clip < 0 || clip >= u.list.count() {
		u.mu.Unlock()
		return fmt.Errorf("clip %d: %w", clip, ErrClipNotFound)
	}
	e := u.list.entries[clip]
	length := e.Producer.Length()
	newIn, newOut := e.In, e.Out
	switch {
	case position < -1 || position >= length:
		u.mu.Unlock()
		return fmt.Errorf("clip %d frame %d: %w", clip, position, ErrOutOfRange)
	case in && position == -1:
		newIn = 0
	case in:
		newIn = position
	case position == -1:
		newOut = length - 1
	default:
		newOut = position
	}
	if newIn > newOut {
		u.mu.Unlock()
		return fmt.Errorf("clip %d in %d after out %d: %w", clip, newIn, newOut, ErrOutOfRange)
	}

	u.playLocked(0)
	u.reposition(func() {
		e.In, e.Out = newIn, newOut
	})
	if in {
		u.seekLocked(clip, 0)
	} else {
		u.seekLocked(clip, -1)
	}
	u.mu.Unlock()

	u.commit(true)
	return nil
}

// Set assigns a "name=value" property. Names prefixed "consumer." go to the
// consumer, names prefixed "producer." become defaults for producers opened
// later, and anything else is a playlist property.
func (u *Unit) Set(assignment string) error {
	var target *mediaengine.Properties
	switch {
	case strings.HasPrefix(assignment, "consumer."):
		target = u.consumer.Properties()
		assignment = strings.TrimPrefix(assignment, "consumer.")
	case strings.HasPrefix(assignment, "producer."):
		target = u.producerDefaults
		assignment = strings.TrimPrefix(assignment, "producer.")
	default:
		target = u.props
	}
	if !target.Parse(assignment) {
		return fmt.Errorf("%q: %w", assignment, ErrInvalidProperty)
	}
	return nil
}

// Get reads a playlist property.
func (u *Unit) Get(name string) (string, bool) {
	return u.props.Get(name)
}

// ConsumerProperty reads a consumer property.
func (u *Unit) ConsumerProperty(name string) (string, bool) {
	return u.consumer.Properties().Get(name)
}

func (u *Unit) titleFor(p mediaengine.Producer) string {
	if t := p.Title(); t != "" {
		return t
	}
	return stripRoot(u.root(), p.Resource())
}

func stripRoot(root, file string) string {
	root = strings.TrimSuffix(root, "/")
	if root != "" && strings.HasPrefix(file, root) {
		return file[len(root):]
	}
	return file
}

// ReportList renders the playlist: the generation, one line per entry and
// a terminating blank line.
func (u *Unit) ReportList() string {
	gen := u.Generation()
	u.mu.Lock()
	defer u.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "%d\n", gen)
	for i := 0; i < u.list.count(); i++ {
		info, _ := u.list.info(i)
		fmt.Fprintf(&b, "%d \"%s\" %d %d %d %d %.2f\n",
			i, u.titleFor(info.Producer), info.In, info.Out, info.FrameCount, info.Length, info.FPS)
	}
	b.WriteString("\n")
	return b.String()
}

// Status derives a snapshot from the playlist and consumer.
func (u *Unit) Status() mvcp.Status {
	u.mu.Lock()
	defer u.mu.Unlock()

	s := mvcp.Status{Unit: u.index}
	pos := u.consumer.Position()
	cur := u.list.clipAt(pos)
	if info, ok := u.list.info(cur); ok {
		title := u.titleFor(info.Producer)
		local := clamp(info.In+pos-info.Start, info.In, info.Out)
		s.Clip = title
		s.Speed = int(math.Round(u.consumer.Speed() * 1000))
		s.FPS = info.FPS
		s.In = info.In
		s.Out = info.Out
		s.Position = local
		s.Length = info.Length
		s.TailClip = title
		s.TailIn = info.In
		s.TailOut = info.Out
		s.TailPosition = local
		s.TailLength = info.Length
		s.ClipIndex = cur
		s.SeekFlag = 1
	}
	s.Generation = u.Generation()

	switch {
	case u.consumer.IsStopped():
		s.State = mvcp.StateStopped
	case s.Clip == "":
		s.State = mvcp.StateNotLoaded
	case s.Speed == 0:
		s.State = mvcp.StatePaused
	default:
		s.State = mvcp.StatePlaying
	}
	return s
}

// Close stops playback and releases the consumer.
func (u *Unit) Close() error {
	u.Terminate()
	u.mu.Lock()
	defer u.mu.Unlock()
	u.list.clear()
	return u.consumer.Close()
}
