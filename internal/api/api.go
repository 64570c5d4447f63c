/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package api serves the admin HTTP surface. Every unit query goes through
// the same parser the control protocol uses, so local and proxied servers
// answer alike.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/mltframework/melted/internal/asrun"
	"github.com/mltframework/melted/internal/mvcp"
	"github.com/mltframework/melted/internal/parser"
)

// API exposes HTTP handlers.
type API struct {
	parser       parser.Parser
	history      asrun.History
	logger       zerolog.Logger
	pingInterval time.Duration
}

// New creates the API. history may be nil when the as-run log is disabled.
func New(p parser.Parser, history asrun.History, logger zerolog.Logger) *API {
	return &API{
		parser:       p,
		history:      history,
		logger:       logger.With().Str("component", "api").Logger(),
		pingInterval: 15 * time.Second,
	}
}

// Routes mounts the API under /api/v1.
func (a *API) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/units", a.handleUnitsList)
		r.Route("/units/{unit}", func(r chi.Router) {
			r.Get("/", a.handleUnitGet)
			r.Get("/list", a.handleUnitPlaylist)
		})
		r.Post("/command", a.handleCommand)
		r.Get("/asrun", a.handleAsRun)
		r.Get("/ws/status", a.handleStatusStream)
	})
}

// errUnitNotFound is returned when the protocol answers 403.
var errUnitNotFound = errors.New("unit not found")

// exec runs one protocol command and settles its framing.
func (a *API) exec(ctx context.Context, format string, args ...any) *mvcp.Response {
	resp := a.parser.Execute(ctx, fmt.Sprintf(format, args...))
	resp.Finalize()
	return resp
}

func (a *API) unitStatus(ctx context.Context, unit int) (mvcp.Status, error) {
	resp := a.exec(ctx, "USTA U%d", unit)
	switch resp.Code() {
	case mvcp.CodeOKSingle:
		return mvcp.ParseStatus(resp.Line(1))
	case mvcp.CodeInvalidUnit:
		return mvcp.Status{}, errUnitNotFound
	default:
		return mvcp.Status{}, fmt.Errorf("USTA U%d: %s", unit, resp.Line(0))
	}
}

func unitParam(r *http.Request) (int, bool) {
	raw := chi.URLParam(r, "unit")
	raw = strings.TrimPrefix(strings.TrimPrefix(raw, "U"), "u")
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
