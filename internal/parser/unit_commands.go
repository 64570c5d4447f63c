/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package parser

import (
	"context"
	"strings"

	"github.com/mltframework/melted/internal/mvcp"
	"github.com/mltframework/melted/internal/playout"
)

// unitFor resolves the addressed unit. The second result is the code to
// return when it does not exist.
func (l *Local) unitFor(cmd *Command) (*playout.Unit, int) {
	u, err := l.registry.Get(cmd.Unit)
	if err != nil {
		return nil, mvcp.CodeInvalidUnit
	}
	return u, mvcp.CodeOK
}

// parseClip reads a clip index from token i: "+n" and "-n" are relative to
// the current clip, anything else is absolute, and a missing token means
// the current clip.
func parseClip(u *playout.Unit, cmd *Command, i int) int {
	clip := u.CurrentClip()
	if i >= len(cmd.Tokens) {
		return clip
	}
	tok := cmd.Tokens[i]
	switch {
	case strings.HasPrefix(tok, "+"):
		return clip + atoi(tok[1:])
	case strings.HasPrefix(tok, "-"):
		return clip - atoi(tok[1:])
	default:
		return atoi(tok)
	}
}

// trim returns the in and out points at tokens i and i+1 when the line has
// exactly want tokens, and -1, -1 otherwise.
func trim(cmd *Command, want, i int) (int, int) {
	if len(cmd.Tokens) != want {
		return -1, -1
	}
	return atoi(cmd.Tokens[i]), atoi(cmd.Tokens[i+1])
}

func (l *Local) list(_ context.Context, cmd *Command) int {
	u, code := l.unitFor(cmd)
	if u == nil {
		return code
	}
	cmd.Response.Write(u.ReportList())
	return mvcp.CodeOK
}

func (l *Local) load(ctx context.Context, cmd *Command) int {
	u, code := l.unitFor(cmd)
	if u == nil {
		return code
	}
	// A leading '!' keeps the consumer's buffered frames.
	name, purge := cmd.Arg, true
	if strings.HasPrefix(name, "!") {
		name, purge = name[1:], false
	}
	in, out := trim(cmd, 5, 3)
	if err := u.Load(ctx, l.registry.Resolve(name), in, out, purge); err != nil {
		l.logger.Debug().Err(err).Int("unit", cmd.Unit).Msg("load failed")
		return mvcp.CodeBadFile
	}
	return mvcp.CodeOK
}

func (l *Local) insert(ctx context.Context, cmd *Command) int {
	u, code := l.unitFor(cmd)
	if u == nil {
		return code
	}
	index := parseClip(u, cmd, 3)
	in, out := trim(cmd, 6, 4)
	if err := u.Insert(ctx, l.registry.Resolve(cmd.Arg), index, in, out); err != nil {
		l.logger.Debug().Err(err).Int("unit", cmd.Unit).Msg("insert failed")
		return mvcp.CodeBadFile
	}
	return mvcp.CodeOK
}

func (l *Local) appendClip(ctx context.Context, cmd *Command) int {
	u, code := l.unitFor(cmd)
	if u == nil {
		return code
	}
	in, out := trim(cmd, 5, 3)
	if err := u.Append(ctx, l.registry.Resolve(cmd.Arg), in, out); err != nil {
		l.logger.Debug().Err(err).Int("unit", cmd.Unit).Msg("append failed")
		return mvcp.CodeBadFile
	}
	return mvcp.CodeOK
}

func (l *Local) remove(_ context.Context, cmd *Command) int {
	u, code := l.unitFor(cmd)
	if u == nil {
		return code
	}
	u.Remove(parseClip(u, cmd, 2))
	return mvcp.CodeOK
}

func (l *Local) clean(_ context.Context, cmd *Command) int {
	u, code := l.unitFor(cmd)
	if u == nil {
		return code
	}
	u.Clean()
	return mvcp.CodeOK
}

func (l *Local) wipe(_ context.Context, cmd *Command) int {
	u, code := l.unitFor(cmd)
	if u == nil {
		return code
	}
	u.Wipe()
	return mvcp.CodeOK
}

func (l *Local) clear(_ context.Context, cmd *Command) int {
	u, code := l.unitFor(cmd)
	if u == nil {
		return code
	}
	u.Clear()
	return mvcp.CodeOK
}

func (l *Local) move(_ context.Context, cmd *Command) int {
	u, code := l.unitFor(cmd)
	if u == nil {
		return code
	}
	u.Move(parseClip(u, cmd, 2), parseClip(u, cmd, 3))
	return mvcp.CodeOK
}

func (l *Local) play(_ context.Context, cmd *Command) int {
	u, code := l.unitFor(cmd)
	if u == nil {
		return code
	}
	speed := 1000
	if len(cmd.Tokens) == 3 {
		speed = atoi(cmd.Tokens[2])
	}
	u.Play(speed)
	return mvcp.CodeOK
}

func (l *Local) stop(_ context.Context, cmd *Command) int {
	u, code := l.unitFor(cmd)
	if u == nil {
		return code
	}
	u.Terminate()
	return mvcp.CodeOK
}

func (l *Local) pause(_ context.Context, cmd *Command) int {
	u, code := l.unitFor(cmd)
	if u == nil {
		return code
	}
	u.Play(0)
	return mvcp.CodeOK
}

func (l *Local) rewind(_ context.Context, cmd *Command) int {
	return l.shuttle(cmd, -2000)
}

func (l *Local) fastForward(_ context.Context, cmd *Command) int {
	return l.shuttle(cmd, 2000)
}

// shuttle plays at speed, or returns to the top of the playlist when the
// unit is stopped.
func (l *Local) shuttle(cmd *Command, speed int) int {
	u, code := l.unitFor(cmd)
	if u == nil {
		return code
	}
	if u.HasTerminated() {
		u.Seek(0, 0)
	} else {
		u.Play(speed)
	}
	return mvcp.CodeOK
}

func (l *Local) step(_ context.Context, cmd *Command) int {
	u, code := l.unitFor(cmd)
	if u == nil {
		return code
	}
	u.Step(cmd.IntArg)
	return mvcp.CodeOK
}

func (l *Local) gotoFrame(_ context.Context, cmd *Command) int {
	u, code := l.unitFor(cmd)
	if u == nil {
		return code
	}
	u.Seek(parseClip(u, cmd, 3), cmd.IntArg)
	return mvcp.CodeOK
}

func (l *Local) setIn(_ context.Context, cmd *Command) int {
	u, code := l.unitFor(cmd)
	if u == nil {
		return code
	}
	return codeFor(u.SetClipIn(parseClip(u, cmd, 3), cmd.IntArg))
}

func (l *Local) setOut(_ context.Context, cmd *Command) int {
	u, code := l.unitFor(cmd)
	if u == nil {
		return code
	}
	return codeFor(u.SetClipOut(parseClip(u, cmd, 3), cmd.IntArg))
}

func (l *Local) unitStatus(_ context.Context, cmd *Command) int {
	u, code := l.unitFor(cmd)
	if u == nil {
		return code
	}
	cmd.Response.Write(u.Status().String() + "\n")
	return mvcp.CodeOKSingle
}

func (l *Local) setUnit(_ context.Context, cmd *Command) int {
	u, code := l.unitFor(cmd)
	if u == nil {
		return code
	}
	return codeFor(u.Set(cmd.Arg))
}

func (l *Local) getUnit(_ context.Context, cmd *Command) int {
	u, code := l.unitFor(cmd)
	if u == nil {
		return code
	}
	var (
		value string
		ok    bool
	)
	if name, found := strings.CutPrefix(cmd.Arg, "consumer."); found {
		value, ok = u.ConsumerProperty(name)
	} else {
		value, ok = u.Get(cmd.Arg)
	}
	if ok {
		cmd.Response.Printf("%s\n", value)
	}
	return mvcp.CodeOK
}

func (l *Local) transfer(_ context.Context, cmd *Command) int {
	if _, code := l.unitFor(cmd); code != mvcp.CodeOK {
		return code
	}
	dest, ok := parseUnit(cmd.Arg)
	if !ok {
		return mvcp.CodeInvalidUnit
	}
	if to, err := l.registry.Get(dest); err != nil || !to.Online() {
		return mvcp.CodeInvalidUnit
	}
	if err := l.registry.Transfer(cmd.Unit, dest); err != nil {
		return codeFor(err)
	}
	return mvcp.CodeOK
}
