/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/mltframework/melted/internal/api"
	"github.com/mltframework/melted/internal/asrun"
	"github.com/mltframework/melted/internal/config"
	"github.com/mltframework/melted/internal/db"
	"github.com/mltframework/melted/internal/eventbus"
	"github.com/mltframework/melted/internal/mediaengine"
	"github.com/mltframework/melted/internal/mvcp"
	"github.com/mltframework/melted/internal/notifier"
	"github.com/mltframework/melted/internal/parser"
	"github.com/mltframework/melted/internal/playout"
	"github.com/mltframework/melted/internal/telemetry"
	"github.com/mltframework/melted/internal/version"
)

// Server bundles the control listener, the admin HTTP surface and the
// supporting workers.
type Server struct {
	cfg     *config.Config
	logger  zerolog.Logger
	parser  parser.Parser
	local   *parser.Local
	closers []func() error

	router     chi.Router
	httpServer *http.Server
	history    asrun.History
	monitor    *asrun.Monitor
	mirror     *eventbus.Mirror

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	connWG   sync.WaitGroup
	closing  bool

	connCtx    context.Context
	connCancel context.CancelFunc

	stop     chan struct{}
	stopOnce sync.Once
	downOnce sync.Once
	downErr  error

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs the server and wires dependencies. Nothing listens until
// Start.
func New(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	connCtx, connCancel := context.WithCancel(context.Background())
	srv := &Server{
		cfg:        cfg,
		logger:     logger.With().Str("component", "server").Logger(),
		conns:      make(map[net.Conn]struct{}),
		connCtx:    connCtx,
		connCancel: connCancel,
		stop:       make(chan struct{}),
	}

	if err := srv.initDependencies(logger); err != nil {
		connCancel()
		_ = srv.closeResources()
		return nil, err
	}
	if cfg.AdminBind != "" {
		srv.configureRoutes(logger)
	}
	return srv, nil
}

func (s *Server) initDependencies(logger zerolog.Logger) error {
	if s.cfg.Proxy != "" {
		s.parser = parser.NewRemote(s.cfg.Proxy, s.cfg.MaxUnits, s.cfg.StatusPoll, logger)
		s.logger.Info().Str("proxy", s.cfg.Proxy).Msg("forwarding commands to remote server")
	} else {
		engine := mediaengine.NewLocal(mediaengine.Config{
			FPS:        s.cfg.DefaultFPS,
			FFprobeBin: s.cfg.FFprobeBin,
		}, logger)
		n := notifier.New(s.cfg.MaxUnits, s.cfg.StatusPoll)
		reg := playout.NewRegistry(s.cfg.MaxUnits, engine, n, logger)
		if s.cfg.RootDir != "" {
			reg.SetRootDir(s.cfg.RootDir)
		}
		s.local = parser.NewLocal(reg, n, logger)
		s.local.OnShutdown(s.requestStop)
		s.parser = s.local
	}
	s.DeferClose(s.parser.Close)

	if s.cfg.AsRunEnabled {
		if err := s.initAsRun(logger); err != nil {
			return err
		}
	}

	s.initMirror(logger)
	return nil
}

func (s *Server) initAsRun(logger zerolog.Logger) error {
	mem := asrun.NewMemory(1000)
	recorders := []asrun.Recorder{mem}
	s.history = mem

	if s.cfg.DBDSN != "" {
		database, err := db.Connect(s.cfg.DBBackend, s.cfg.DBDSN)
		if err != nil {
			return err
		}
		s.DeferClose(func() error { return db.Close(database) })
		if err := db.Migrate(database); err != nil {
			return err
		}
		store := asrun.NewStore(database)
		recorders = append(recorders, store)
		s.history = store
		s.logger.Info().Str("backend", string(s.cfg.DBBackend)).Msg("as-run store ready")
	}

	s.monitor = asrun.NewMonitor(s.statuses, logger, recorders...)
	return nil
}

// statuses reads live unit positions locally, and the mirrored snapshots
// when proxying.
func (s *Server) statuses() []mvcp.Status {
	if s.local == nil {
		out, _ := s.parser.Notifier().Snapshot()
		return out
	}
	units := s.local.Registry().Units()
	out := make([]mvcp.Status, 0, len(units))
	for _, u := range units {
		out = append(out, u.Status())
	}
	return out
}

func (s *Server) initMirror(logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var sinks []eventbus.Sink
	if s.cfg.RedisAddr != "" {
		rcfg := eventbus.DefaultRedisConfig()
		rcfg.Addr = s.cfg.RedisAddr
		rcfg.Password = s.cfg.RedisPassword
		rcfg.DB = s.cfg.RedisDB
		rcfg.Channel = s.cfg.RedisChannel
		sink, err := eventbus.NewRedisSink(ctx, rcfg, logger)
		if err != nil {
			s.logger.Warn().Err(err).Msg("redis status mirror unavailable, continuing without it")
		} else {
			sinks = append(sinks, sink)
		}
	}
	if s.cfg.NATSURL != "" {
		ncfg := eventbus.DefaultNATSConfig()
		ncfg.URL = s.cfg.NATSURL
		ncfg.Subject = s.cfg.NATSSubject
		sink, err := eventbus.NewNATSSink(ncfg, logger)
		if err != nil {
			s.logger.Warn().Err(err).Msg("nats status mirror unavailable, continuing without it")
		} else {
			sinks = append(sinks, sink)
		}
	}
	if len(sinks) == 0 {
		return
	}

	nodeID, err := os.Hostname()
	if err != nil || nodeID == "" {
		nodeID = "melted"
	}
	s.mirror = eventbus.NewMirror(s.parser.Notifier(), nodeID, logger, sinks...)
	s.DeferClose(s.mirror.Close)
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("Cache-Control", "no-store")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) configureRoutes(logger zerolog.Logger) {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware("melted-admin"))
	router.Use(telemetry.MetricsMiddleware)

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		mode := "local"
		if s.local == nil {
			mode = "proxy"
		}
		_, _ = fmt.Fprintf(w, `{"status":"ok","version":%q,"mode":%q}`, version.Version, mode)
	})

	if s.cfg.MetricsEnabled {
		router.Handle("/metrics", telemetry.Handler())
	}

	api.New(s.parser, s.history, logger).Routes(router)

	s.router = router
	s.httpServer = &http.Server{
		Addr:              s.cfg.AdminBind,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		// WriteTimeout stays 0 for the websocket status feed.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
}

// Handler exposes the admin router, or nil when the admin server is off.
func (s *Server) Handler() http.Handler {
	if s.router == nil {
		return nil
	}
	return s.router
}

// Parser returns the command parser connections are served with.
func (s *Server) Parser() parser.Parser {
	return s.parser
}

// Start binds the control port, connects the parser, runs the startup
// script and begins accepting. A bind failure is returned.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.ListenAddr(), err)
	}

	var adminLn net.Listener
	if s.httpServer != nil {
		adminLn, err = net.Listen("tcp", s.cfg.AdminBind)
		if err != nil {
			ln.Close()
			return fmt.Errorf("listen admin %s: %w", s.cfg.AdminBind, err)
		}
	}

	if _, err := s.parser.Connect(ctx); err != nil {
		ln.Close()
		if adminLn != nil {
			adminLn.Close()
		}
		return fmt.Errorf("connect parser: %w", err)
	}

	if s.cfg.StartupScript != "" {
		s.runStartupScript(ctx)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.startBackgroundWorkers(adminLn)

	s.logger.Info().Str("addr", ln.Addr().String()).Str("version", version.Version).Msg("control server listening")
	go s.acceptLoop(ln)
	return nil
}

func (s *Server) runStartupScript(ctx context.Context) {
	logger := s.logger.With().Str("script", s.cfg.StartupScript).Logger()
	resp := parser.RunFile(ctx, s.parser, s.cfg.StartupScript, func(line string, resp *mvcp.Response) {
		if resp.Code() > 299 {
			logger.Warn().Str("command", line).Int("code", resp.Code()).Str("reply", resp.Line(0)).Msg("startup command failed")
		}
	})
	if resp.Code() == mvcp.CodeBadFile {
		logger.Error().Msg("startup script not found")
		return
	}
	logger.Info().Int("code", resp.Code()).Msg("startup script finished")
}

// Addr returns the bound control address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Done is closed when a client sends SHUTDOWN or Shutdown runs.
func (s *Server) Done() <-chan struct{} {
	return s.stop
}

func (s *Server) requestStop() {
	s.stopOnce.Do(func() {
		s.logger.Info().Msg("shutdown requested")
		close(s.stop)
	})
}

func (s *Server) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn().Err(err).Msg("accept failed")
			time.Sleep(50 * time.Millisecond)
			continue
		}
		if !s.track(conn) {
			conn.Close()
			return
		}
		go func() {
			defer s.untrack(conn)
			newConnection(conn, s.parser, s.logger).serve(s.connCtx)
		}()
	}
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.conns[conn] = struct{}{}
	s.connWG.Add(1)
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	s.connWG.Done()
}

// Shutdown stops accepting, closes open connections, waits for their
// handlers and releases the parser along with every unit.
func (s *Server) Shutdown(ctx context.Context) error {
	s.downOnce.Do(func() {
		s.requestStop()

		s.mu.Lock()
		s.closing = true
		if s.listener != nil {
			s.listener.Close()
		}
		for conn := range s.conns {
			conn.Close()
		}
		s.mu.Unlock()
		s.connCancel()

		waited := make(chan struct{})
		go func() {
			s.connWG.Wait()
			close(waited)
		}()
		select {
		case <-waited:
		case <-ctx.Done():
			s.logger.Warn().Err(ctx.Err()).Msg("connections still open at shutdown")
		}

		if s.httpServer != nil {
			if err := s.httpServer.Shutdown(ctx); err != nil {
				s.logger.Warn().Err(err).Msg("admin server shutdown")
			}
		}
		s.stopBackgroundWorkers()
		s.downErr = s.closeResources()
		s.logger.Info().Msg("server stopped")
	})
	return s.downErr
}

// closeResources releases owned resources in reverse order.
func (s *Server) closeResources() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) startBackgroundWorkers(adminLn net.Listener) {
	if s.monitor == nil && s.mirror == nil && adminLn == nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	if s.monitor != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			s.monitor.Run(ctx)
		}()
	}

	if s.mirror != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			s.mirror.Run(ctx)
		}()
	}

	if adminLn != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			s.logger.Info().Str("addr", adminLn.Addr().String()).Msg("admin server listening")
			if err := s.httpServer.Serve(adminLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error().Err(err).Msg("admin server exited")
			}
		}()
	}
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel == nil {
		return
	}
	s.bgCancel()
	s.bgWG.Wait()
	s.bgCancel = nil
}
