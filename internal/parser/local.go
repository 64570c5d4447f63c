/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package parser

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mltframework/melted/internal/mediaengine"
	"github.com/mltframework/melted/internal/mvcp"
	"github.com/mltframework/melted/internal/notifier"
	"github.com/mltframework/melted/internal/playout"
	"github.com/mltframework/melted/internal/telemetry"
)

// Local dispatches commands against an in-process unit registry.
type Local struct {
	registry *playout.Registry
	notifier *notifier.Notifier
	logger   zerolog.Logger

	mu           sync.RWMutex
	interceptors []Interceptor
	onShutdown   func()
}

// NewLocal creates a parser over reg. Status changes of reg's units must be
// published to n.
func NewLocal(reg *playout.Registry, n *notifier.Notifier, logger zerolog.Logger) *Local {
	return &Local{
		registry: reg,
		notifier: n,
		logger:   logger.With().Str("component", "parser").Logger(),
	}
}

// Use registers an interceptor. Interceptors run in registration order.
func (l *Local) Use(i Interceptor) {
	l.mu.Lock()
	l.interceptors = append(l.interceptors, i)
	l.mu.Unlock()
}

// OnShutdown sets the function SHUTDOWN calls.
func (l *Local) OnShutdown(fn func()) {
	l.mu.Lock()
	l.onShutdown = fn
	l.mu.Unlock()
}

// Registry returns the unit table the parser drives.
func (l *Local) Registry() *playout.Registry {
	return l.registry
}

// Notifier returns the status notifier.
func (l *Local) Notifier() *notifier.Notifier {
	return l.notifier
}

// Connect always succeeds locally.
func (l *Local) Connect(context.Context) (*mvcp.Response, error) {
	return mvcp.NewStatusResponse(mvcp.CodeGreeting), nil
}

// Close deletes every unit and wakes status waiters.
func (l *Local) Close() error {
	l.registry.DeleteAll()
	l.notifier.Close()
	return nil
}

func (l *Local) snapshotInterceptors() []Interceptor {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Interceptor(nil), l.interceptors...)
}

// Execute runs one command line.
func (l *Local) Execute(ctx context.Context, line string) *mvcp.Response {
	start := time.Now()
	resp := mvcp.NewStatusResponse(mvcp.CodeUnknownCommand)

	tokens := mvcp.Tokenize(line)
	if len(tokens) == 0 {
		return resp
	}
	cmd := &Command{
		Line:     line,
		Tokens:   tokens,
		Keyword:  strings.ToUpper(tokens[0]),
		Unit:     -1,
		Root:     l.registry.RootDir(),
		Response: resp,
	}

	for _, ic := range l.snapshotInterceptors() {
		if r, ok := ic.InterceptCommand(ctx, cmd); ok {
			return r
		}
	}

	v, ok := lookup(cmd.Keyword)
	if !ok {
		telemetry.ObserveCommand("unknown", mvcp.CodeUnknownCommand, time.Since(start).Seconds())
		return resp
	}

	code := l.dispatch(ctx, v, cmd)
	resp.SetCode(code)
	telemetry.ObserveCommand(v.keyword, code, time.Since(start).Seconds())
	return resp
}

func (l *Local) dispatch(ctx context.Context, v verb, cmd *Command) int {
	pos := 1
	if v.unit {
		unit, ok := parseUnit(cmd.Token(pos))
		if !ok {
			return mvcp.CodeMissingArg
		}
		cmd.Unit = unit
		pos++
	}

	ctx, span := telemetry.StartCommandSpan(ctx, v.keyword, cmd.Unit)
	code := mvcp.CodeMissingArg
	defer func() { telemetry.EndCommandSpan(span, code) }()

	if v.arg != argNone {
		if pos >= len(cmd.Tokens) {
			return code
		}
		value := cmd.Tokens[pos]
		switch v.arg {
		case argInt:
			cmd.Arg = value
			cmd.IntArg = atoi(value)
		case argString:
			cmd.Arg = value
		case argPair:
			pair, ok := pairFromLine(cmd.Line)
			if !ok {
				return code
			}
			cmd.Arg = pair
		}
	}

	code = v.run(l, ctx, cmd)
	return code
}

// Push appends p to the unit addressed by command.
func (l *Local) Push(ctx context.Context, command string, p mediaengine.Producer) *mvcp.Response {
	resp := mvcp.NewStatusResponse(mvcp.CodeOK)
	unit, ok := parseUnit(tokenAt(command, 1))
	if !ok {
		resp.SetCode(mvcp.CodeMissingArg)
		return resp
	}
	for _, ic := range l.snapshotInterceptors() {
		if r, ok := ic.InterceptPush(ctx, unit, p); ok {
			return r
		}
	}
	u, err := l.registry.Get(unit)
	if err != nil {
		resp.SetCode(codeFor(err))
		return resp
	}
	u.AppendProducer(p, -1, -1)
	return resp
}

// Receive decodes doc through the media engine and hands the result to
// Push, so push interceptors see wire documents too.
func (l *Local) Receive(ctx context.Context, command string, doc []byte) *mvcp.Response {
	unit, ok := parseUnit(tokenAt(command, 1))
	if !ok {
		return mvcp.NewStatusResponse(mvcp.CodeMissingArg)
	}
	p, err := l.registry.Engine().Decode(ctx, doc)
	if err != nil {
		l.logger.Debug().Err(err).Int("unit", unit).Msg("receive failed")
		return mvcp.NewStatusResponse(codeFor(err))
	}
	return l.Push(ctx, command, p)
}

func tokenAt(line string, i int) string {
	tokens := mvcp.Tokenize(line)
	if i < len(tokens) {
		return tokens[i]
	}
	return ""
}

// parseUnit accepts "U<digits>" in either case.
func parseUnit(tok string) (int, bool) {
	if len(tok) < 2 || (tok[0] != 'U' && tok[0] != 'u') {
		return -1, false
	}
	for i := 1; i < len(tok); i++ {
		if tok[i] < '0' || tok[i] > '9' {
			return -1, false
		}
	}
	n, err := strconv.Atoi(tok[1:])
	if err != nil {
		return -1, false
	}
	return n, true
}

// pairFromLine recovers a name=value argument from the raw line: the text
// from the space before the first '=' to the end, without trailing spaces.
func pairFromLine(line string) (string, bool) {
	eq := strings.IndexByte(line, '=')
	if eq < 0 {
		return "", false
	}
	start := strings.LastIndexByte(line[:eq], ' ') + 1
	return strings.TrimRight(line[start:], " "), true
}

// atoi parses a leading optionally signed integer and yields 0 when there
// is none.
func atoi(s string) int {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
}
