/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package parser

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mltframework/melted/internal/mediaengine"
	"github.com/mltframework/melted/internal/mvcp"
	"github.com/mltframework/melted/internal/notifier"
)

// ErrNotConnected is returned when a remote parser is used before Connect
// or after Close.
var ErrNotConnected = errors.New("parser: not connected")

// Remote forwards every command to another server. A second connection in
// STATUS mode feeds the local notifier.
type Remote struct {
	addr     string
	timeout  time.Duration
	notifier *notifier.Notifier
	logger   zerolog.Logger

	// life spans NewRemote to Close and parents the status follower.
	life context.Context
	stop context.CancelFunc

	mu        sync.Mutex
	conn      net.Conn
	br        *bufio.Reader
	connected bool

	wg sync.WaitGroup
}

const (
	statusRetryMin = 100 * time.Millisecond
	statusRetryMax = 5 * time.Second
)

// NewRemote creates a parser for the server at addr, "host[:port]". The
// port defaults to 5250.
func NewRemote(addr string, capacity int, poll time.Duration, logger zerolog.Logger) *Remote {
	life, stop := context.WithCancel(context.Background())
	return &Remote{
		life:     life,
		stop:     stop,
		addr:     withDefaultPort(addr),
		timeout:  10 * time.Second,
		notifier: notifier.New(capacity, poll),
		logger:   logger.With().Str("component", "remote").Str("server", addr).Logger(),
	}
}

func withDefaultPort(addr string) string {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(addr, strconv.Itoa(mvcp.DefaultPort))
}

// Addr returns the server address commands are forwarded to.
func (r *Remote) Addr() string {
	return r.addr
}

// Notifier returns the notifier fed from the remote STATUS stream.
func (r *Remote) Notifier() *notifier.Notifier {
	return r.notifier
}

func (r *Remote) dial(ctx context.Context) (net.Conn, *bufio.Reader, *mvcp.Response, error) {
	d := net.Dialer{Timeout: r.timeout}
	conn, err := d.DialContext(ctx, "tcp", r.addr)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("dial %s: %w", r.addr, err)
	}
	br := bufio.NewReader(conn)
	_ = conn.SetReadDeadline(time.Now().Add(r.timeout))
	greeting, err := mvcp.ReadResponse(br)
	_ = conn.SetReadDeadline(time.Time{})
	if err != nil {
		conn.Close()
		return nil, nil, nil, fmt.Errorf("read greeting from %s: %w", r.addr, err)
	}
	return conn, br, greeting, nil
}

// Connect opens the command connection and starts mirroring status.
func (r *Remote) Connect(ctx context.Context) (*mvcp.Response, error) {
	if r.life.Err() != nil {
		return nil, ErrNotConnected
	}
	conn, br, greeting, err := r.dial(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.resetLocked()
	r.conn, r.br = conn, br
	first := !r.connected
	r.connected = true
	r.mu.Unlock()

	if first {
		r.wg.Add(1)
		go r.followStatus(r.life)
	}

	r.logger.Info().Msg("connected to remote server")
	return greeting, nil
}

// followStatus mirrors the remote STATUS stream into the notifier until ctx
// ends, redialling with backoff whenever the stream breaks.
func (r *Remote) followStatus(ctx context.Context) {
	defer r.wg.Done()

	wait := statusRetryMin
	for {
		if r.streamStatus(ctx) {
			wait = statusRetryMin
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
		if wait *= 2; wait > statusRetryMax {
			wait = statusRetryMax
		}
	}
}

// streamStatus runs one STATUS session. It reports whether any status line
// arrived before the stream ended.
func (r *Remote) streamStatus(ctx context.Context) bool {
	conn, br, _, err := r.dial(ctx)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Warn().Err(err).Msg("status stream unavailable")
		}
		return false
	}
	defer conn.Close()
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	if _, err := conn.Write([]byte("STATUS\r\n")); err != nil {
		r.logger.Warn().Err(err).Msg("status request failed")
		return false
	}
	streamed := false
	for {
		line, err := mvcp.ReadLine(br)
		if err != nil {
			if ctx.Err() == nil {
				r.logger.Warn().Err(err).Msg("status stream closed")
			}
			return streamed
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		s, err := mvcp.ParseStatus(line)
		if err != nil {
			r.logger.Debug().Err(err).Str("line", line).Msg("ignoring status line")
			continue
		}
		streamed = true
		r.notifier.Publish(s)
	}
}

// roundTrip writes payload and reads one reply on the command connection,
// redialling first if an earlier failure dropped it.
func (r *Remote) roundTrip(ctx context.Context, payload []byte) (*mvcp.Response, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.connected || r.life.Err() != nil {
		return nil, ErrNotConnected
	}
	if r.conn == nil {
		conn, br, _, err := r.dial(ctx)
		if err != nil {
			return nil, err
		}
		r.conn, r.br = conn, br
		r.logger.Info().Msg("reconnected to remote server")
	}

	deadline := time.Now().Add(r.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = r.conn.SetDeadline(deadline)
	defer func() {
		if r.conn != nil {
			_ = r.conn.SetDeadline(time.Time{})
		}
	}()

	// A failed exchange leaves the stream out of step, so the connection is
	// dropped and the next command starts on a fresh one.
	if _, err := r.conn.Write(payload); err != nil {
		r.resetLocked()
		return nil, fmt.Errorf("write to %s: %w", r.addr, err)
	}
	resp, err := mvcp.ReadResponse(r.br)
	if err != nil {
		r.resetLocked()
		return nil, fmt.Errorf("read from %s: %w", r.addr, err)
	}
	return resp, nil
}

func (r *Remote) resetLocked() {
	if r.conn != nil {
		r.conn.Close()
	}
	r.conn, r.br = nil, nil
}

func (r *Remote) failed(err error) *mvcp.Response {
	r.logger.Warn().Err(err).Msg("remote command failed")
	code := mvcp.CodeServerError
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		code = mvcp.CodeTimeout
	}
	return mvcp.NewStatusResponse(code)
}

// Execute forwards line and returns the remote reply.
func (r *Remote) Execute(ctx context.Context, line string) *mvcp.Response {
	resp, err := r.roundTrip(ctx, []byte(line+"\r\n"))
	if err != nil {
		return r.failed(err)
	}
	return resp
}

// Receive forwards doc with the PUSH sub-protocol.
func (r *Remote) Receive(ctx context.Context, command string, doc []byte) *mvcp.Response {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\r\n%d\r\n", command, len(doc))
	b.Write(doc)
	resp, err := r.roundTrip(ctx, []byte(b.String()))
	if err != nil {
		return r.failed(err)
	}
	return resp
}

// Push serialises p as a manifest and forwards it.
func (r *Remote) Push(ctx context.Context, command string, p mediaengine.Producer) *mvcp.Response {
	doc, err := mediaengine.EncodeManifest(p)
	if err != nil {
		resp := mvcp.NewStatusResponse(mvcp.CodeBadFile)
		return resp
	}
	return r.Receive(ctx, command, doc)
}

// Close drops both connections and wakes status waiters.
func (r *Remote) Close() error {
	r.stop()
	r.mu.Lock()
	if r.conn != nil {
		_, _ = r.conn.Write([]byte("BYE\r\n"))
	}
	r.resetLocked()
	r.mu.Unlock()
	r.wg.Wait()
	r.notifier.Close()
	return nil
}
