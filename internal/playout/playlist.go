/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playout

import (
	"github.com/mltframework/melted/internal/mediaengine"
)

// Entry is one clip on a unit's playlist, trimmed to [In, Out].
type Entry struct {
	Producer mediaengine.Producer
	In       int
	Out      int
}

// FrameCount returns the number of frames the entry plays.
func (e *Entry) FrameCount() int {
	return e.Out - e.In + 1
}

// ClipInfo describes an entry at its position on the timeline.
type ClipInfo struct {
	Index      int
	Start      int
	In         int
	Out        int
	FrameCount int
	Length     int
	FPS        float64
	Resource   string
	Producer   mediaengine.Producer
}

// newEntry applies the trim defaults: a negative in means 0, a negative or
// oversized out means the last frame, and reversed bounds are swapped.
func newEntry(p mediaengine.Producer, in, out int) *Entry {
	length := p.Length()
	if length < 1 {
		length = 1
	}
	if in < 0 {
		in = 0
	}
	if in >= length {
		in = length - 1
	}
	if out < 0 || out >= length {
		out = length - 1
	}
	if out < in {
		in, out = out, in
	}
	return &Entry{Producer: p, In: in, Out: out}
}

// playlist is the ordered entry list behind a unit. It is not safe for
// concurrent use; the owning unit serialises access.
type playlist struct {
	entries []*Entry
}

func (pl *playlist) count() int {
	return len(pl.entries)
}

func (pl *playlist) total() int {
	n := 0
	for _, e := range pl.entries {
		n += e.FrameCount()
	}
	return n
}

func (pl *playlist) start(index int) int {
	n := 0
	for i := 0; i < index && i < len(pl.entries); i++ {
		n += pl.entries[i].FrameCount()
	}
	return n
}

func (pl *playlist) info(index int) (ClipInfo, bool) {
	if index < 0 || index >= len(pl.entries) {
		return ClipInfo{}, false
	}
	e := pl.entries[index]
	return ClipInfo{
		Index:      index,
		Start:      pl.start(index),
		In:         e.In,
		Out:        e.Out,
		FrameCount: e.FrameCount(),
		Length:     e.Producer.Length(),
		FPS:        e.Producer.FPS(),
		Resource:   e.Producer.Resource(),
		Producer:   e.Producer,
	}, true
}

// clipAt returns the index of the entry playing at timeline frame pos.
// Past the end it is the last entry; an empty playlist yields 0.
func (pl *playlist) clipAt(pos int) int {
	start := 0
	for i, e := range pl.entries {
		if pos < start+e.FrameCount() {
			return i
		}
		start += e.FrameCount()
	}
	if len(pl.entries) == 0 {
		return 0
	}
	return len(pl.entries) - 1
}

func (pl *playlist) indexOf(e *Entry) int {
	for i, cur := range pl.entries {
		if cur == e {
			return i
		}
	}
	return -1
}

func (pl *playlist) append(e *Entry) {
	pl.entries = append(pl.entries, e)
}

// insert places e before index, clamped to [0, count].
func (pl *playlist) insert(e *Entry, index int) {
	index = clamp(index, 0, len(pl.entries))
	pl.entries = append(pl.entries, nil)
	copy(pl.entries[index+1:], pl.entries[index:])
	pl.entries[index] = e
}

// remove deletes the entry at index, clamped to the last entry.
func (pl *playlist) remove(index int) {
	if len(pl.entries) == 0 {
		return
	}
	index = clamp(index, 0, len(pl.entries)-1)
	pl.entries = append(pl.entries[:index], pl.entries[index+1:]...)
}

// move relocates the entry at src so it ends up at dest. Both are clamped.
func (pl *playlist) move(src, dest int) {
	if len(pl.entries) == 0 {
		return
	}
	src = clamp(src, 0, len(pl.entries)-1)
	dest = clamp(dest, 0, len(pl.entries)-1)
	if src == dest {
		return
	}
	e := pl.entries[src]
	pl.entries = append(pl.entries[:src], pl.entries[src+1:]...)
	pl.insert(e, dest)
}

// removeBefore drops every entry before index.
func (pl *playlist) removeBefore(index int) {
	index = clamp(index, 0, len(pl.entries))
	pl.entries = append([]*Entry(nil), pl.entries[index:]...)
}

func (pl *playlist) clear() {
	pl.entries = nil
}

// snapshot copies the entries so they can be replayed elsewhere.
func (pl *playlist) snapshot() []Entry {
	out := make([]Entry, len(pl.entries))
	for i, e := range pl.entries {
		out[i] = *e
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
