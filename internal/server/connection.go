/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mltframework/melted/internal/mvcp"
	"github.com/mltframework/melted/internal/notifier"
	"github.com/mltframework/melted/internal/parser"
	"github.com/mltframework/melted/internal/telemetry"
)

// endOfTransmission closes the session when sent by a terminal client.
const endOfTransmission = "\x04"

// maxPushBytes bounds a single PUSH document.
const maxPushBytes = 64 << 20

// connection serves one control client.
type connection struct {
	conn   net.Conn
	br     *bufio.Reader
	parser parser.Parser
	logger zerolog.Logger
}

func newConnection(conn net.Conn, p parser.Parser, logger zerolog.Logger) *connection {
	return &connection{
		conn:   conn,
		br:     bufio.NewReader(conn),
		parser: p,
		logger: logger.With().Str("remote", conn.RemoteAddr().String()).Logger(),
	}
}

// serve runs the request loop until the peer leaves or ctx ends.
func (c *connection) serve(ctx context.Context) {
	telemetry.ActiveConnections.Inc()
	defer telemetry.ActiveConnections.Dec()
	defer c.conn.Close()

	c.logger.Debug().Msg("connection opened")
	defer c.logger.Debug().Msg("connection closed")

	if _, err := io.WriteString(c.conn, mvcp.Greeting); err != nil {
		return
	}

	for {
		line, err := mvcp.ReadLine(c.br)
		if err != nil {
			return
		}
		if strings.Contains(line, endOfTransmission) {
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		keyword := strings.ToUpper(strings.Fields(line)[0])
		if strings.HasPrefix(keyword, "BYE") {
			return
		}

		switch keyword {
		case "STATUS":
			c.logger.Info().Str("command", line).Int("code", mvcp.CodeOK).Msg("request")
			c.streamStatus(ctx)
			return
		case "PUSH":
			resp, ok := c.push(ctx, line)
			c.reply(line, resp)
			if !ok {
				return
			}
		default:
			c.reply(line, c.parser.Execute(ctx, line))
		}
	}
}

func (c *connection) reply(line string, resp *mvcp.Response) {
	payload := resp.Encode()
	c.logger.Info().Str("command", line).Int("code", resp.Code()).Msg("request")
	if _, err := io.WriteString(c.conn, payload); err != nil {
		c.logger.Debug().Err(err).Msg("write failed")
	}
}

// push reads the byte count and document following a PUSH line. ok is
// false when the stream can no longer be trusted.
func (c *connection) push(ctx context.Context, line string) (*mvcp.Response, bool) {
	failed := func() *mvcp.Response {
		resp := mvcp.NewResponse()
		resp.SetError(mvcp.CodeBadFile, "Failed to load XML")
		return resp
	}

	countLine, err := mvcp.ReadLine(c.br)
	if err != nil {
		return failed(), false
	}
	n, err := strconv.Atoi(strings.TrimSpace(countLine))
	if err != nil || n <= 0 || n > maxPushBytes {
		return failed(), true
	}
	doc := make([]byte, n)
	if _, err := io.ReadFull(c.br, doc); err != nil {
		c.logger.Debug().Err(err).Int("bytes", n).Msg("short push")
		return failed(), false
	}
	return c.parser.Receive(ctx, line, doc), true
}

// streamStatus sends every unit's snapshot followed by each change until
// the peer disconnects.
func (c *connection) streamStatus(ctx context.Context) {
	telemetry.StatusStreams.Inc()
	defer telemetry.StatusStreams.Dec()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Input after STATUS is ignored; the read fails when the peer goes.
	go func() {
		defer cancel()
		_, _ = io.Copy(io.Discard, c.br)
	}()

	n := c.parser.Notifier()
	statuses, seq := n.Snapshot()
	for {
		for _, s := range statuses {
			if _, err := io.WriteString(c.conn, s.String()+"\r\n"); err != nil {
				return
			}
		}

		var err error
		statuses, seq, err = n.Wait(ctx, seq)
		if err != nil && !errors.Is(err, notifier.ErrTimeout) {
			return
		}
	}
}
