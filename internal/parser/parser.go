/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package parser turns MVCP command lines into responses, either by
// dispatching them in process or by forwarding them to another server.
package parser

import (
	"context"
	"errors"

	"github.com/mltframework/melted/internal/mediaengine"
	"github.com/mltframework/melted/internal/mvcp"
	"github.com/mltframework/melted/internal/notifier"
	"github.com/mltframework/melted/internal/playout"
)

// Parser executes commands for a connection.
type Parser interface {
	// Connect returns the greeting.
	Connect(ctx context.Context) (*mvcp.Response, error)
	Execute(ctx context.Context, line string) *mvcp.Response
	// Push appends an opened producer to the unit named in command
	// ("PUSH U<n>").
	Push(ctx context.Context, command string, p mediaengine.Producer) *mvcp.Response
	// Receive hands a raw document to the unit named in command.
	Receive(ctx context.Context, command string, doc []byte) *mvcp.Response
	Notifier() *notifier.Notifier
	Close() error
}

// Command is the parsed form of one request line.
type Command struct {
	Line    string
	Tokens  []string
	Keyword string
	// Unit is the addressed unit, or -1 for global commands.
	Unit int
	// Arg is the command argument as text. IntArg holds its integer value
	// for integer commands.
	Arg      string
	IntArg   int
	Root     string
	Response *mvcp.Response
}

// Token returns token i or "" when the line is shorter.
func (c *Command) Token(i int) string {
	if i < 0 || i >= len(c.Tokens) {
		return ""
	}
	return c.Tokens[i]
}

// Interceptor gets first refusal on commands and pushes. Returning true
// means the returned response is final and the built-in handler is skipped.
type Interceptor interface {
	InterceptCommand(ctx context.Context, cmd *Command) (*mvcp.Response, bool)
	InterceptPush(ctx context.Context, unit int, p mediaengine.Producer) (*mvcp.Response, bool)
}

// codeFor maps an operation error to the response code reported for it.
func codeFor(err error) int {
	switch {
	case err == nil:
		return mvcp.CodeOK
	case errors.Is(err, playout.ErrUnitNotFound), errors.Is(err, playout.ErrSameUnit):
		return mvcp.CodeInvalidUnit
	case errors.Is(err, playout.ErrRegistryFull):
		return mvcp.CodeServerError
	case errors.Is(err, mediaengine.ErrOpen), errors.Is(err, playout.ErrClipNotFound):
		return mvcp.CodeBadFile
	case errors.Is(err, playout.ErrOutOfRange), errors.Is(err, playout.ErrInvalidProperty):
		return mvcp.CodeOutOfRange
	case errors.Is(err, context.DeadlineExceeded):
		return mvcp.CodeTimeout
	default:
		return mvcp.CodeServerError
	}
}
