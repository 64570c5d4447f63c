/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package mvcp

import (
	"fmt"
	"strconv"
	"strings"
)

// UnitState is the derived playback state of a unit.
type UnitState int

const (
	StateUnknown UnitState = iota
	StateUndefined
	StateOffline
	StateNotLoaded
	StateStopped
	StatePlaying
	StatePaused
	StateDisconnected
)

var stateNames = []string{
	StateUnknown:      "unknown",
	StateUndefined:    "undefined",
	StateOffline:      "offline",
	StateNotLoaded:    "not_loaded",
	StateStopped:      "stopped",
	StatePlaying:      "playing",
	StatePaused:       "paused",
	StateDisconnected: "disconnect",
}

func (s UnitState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// ParseUnitState maps a serialised state name back to its value.
func ParseUnitState(name string) UnitState {
	for i, n := range stateNames {
		if n == name {
			return UnitState(i)
		}
	}
	return StateUnknown
}

// MarshalText renders the state name, so JSON carries "playing" rather
// than a number.
func (s UnitState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name.
func (s *UnitState) UnmarshalText(text []byte) error {
	*s = ParseUnitState(string(text))
	return nil
}

// Status is a point-in-time snapshot of one unit.
type Status struct {
	Unit         int       `json:"unit"`
	State        UnitState `json:"status"`
	Clip         string    `json:"clip"`
	Position     int       `json:"position"`
	Speed        int       `json:"speed"`
	FPS          float64   `json:"fps"`
	In           int       `json:"in"`
	Out          int       `json:"out"`
	Length       int       `json:"length"`
	TailClip     string    `json:"tail_clip"`
	TailPosition int       `json:"tail_position"`
	TailIn       int       `json:"tail_in"`
	TailOut      int       `json:"tail_out"`
	TailLength   int       `json:"tail_length"`
	SeekFlag     int       `json:"seek_flag"`
	Generation   int       `json:"generation"`
	ClipIndex    int       `json:"clip_index"`
}

// Undefined returns the snapshot reported for a slot with no unit.
func Undefined(unit int) Status {
	return Status{Unit: unit, State: StateUndefined}
}

// String serialises the status as a single protocol line without a
// terminator.
func (s Status) String() string {
	return fmt.Sprintf("%d %s \"%s\" %d %d %.2f %d %d %d \"%s\" %d %d %d %d %d %d %d",
		s.Unit, s.State, s.Clip, s.Position, s.Speed, s.FPS,
		s.In, s.Out, s.Length,
		s.TailClip, s.TailPosition, s.TailIn, s.TailOut, s.TailLength,
		s.SeekFlag, s.Generation, s.ClipIndex)
}

// ParseStatus parses a line produced by Status.String.
func ParseStatus(line string) (Status, error) {
	fields := splitQuoted(strings.TrimSpace(line))
	if len(fields) != 17 {
		return Status{}, fmt.Errorf("%w: status has %d fields", ErrMalformed, len(fields))
	}

	var s Status
	ints := []struct {
		dst *int
		idx int
	}{
		{&s.Unit, 0}, {&s.Position, 3}, {&s.Speed, 4}, {&s.In, 6}, {&s.Out, 7},
		{&s.Length, 8}, {&s.TailPosition, 10}, {&s.TailIn, 11}, {&s.TailOut, 12},
		{&s.TailLength, 13}, {&s.SeekFlag, 14}, {&s.Generation, 15}, {&s.ClipIndex, 16},
	}
	for _, f := range ints {
		v, err := strconv.Atoi(fields[f.idx])
		if err != nil {
			return Status{}, fmt.Errorf("%w: field %d: %v", ErrMalformed, f.idx, err)
		}
		*f.dst = v
	}
	fps, err := strconv.ParseFloat(fields[5], 64)
	if err != nil {
		return Status{}, fmt.Errorf("%w: fps: %v", ErrMalformed, err)
	}
	s.FPS = fps
	s.State = ParseUnitState(fields[1])
	s.Clip = fields[2]
	s.TailClip = fields[9]
	return s, nil
}

// splitQuoted splits on spaces, keeping double-quoted runs together and
// removing their quotes.
func splitQuoted(line string) []string {
	var (
		fields []string
		cur    strings.Builder
		quoted bool
		inTok  bool
	)
	for _, r := range line {
		switch {
		case r == '"':
			quoted = !quoted
			inTok = true
		case r == ' ' && !quoted:
			if inTok {
				fields = append(fields, cur.String())
				cur.Reset()
				inTok = false
			}
		default:
			cur.WriteRune(r)
			inTok = true
		}
	}
	if inTok {
		fields = append(fields, cur.String())
	}
	return fields
}
