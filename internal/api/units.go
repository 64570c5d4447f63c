/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/mltframework/melted/internal/mvcp"
)

type unitView struct {
	Unit     int         `json:"unit"`
	Consumer string      `json:"consumer"`
	Online   bool        `json:"online"`
	Status   mvcp.Status `json:"status"`
}

type entryView struct {
	Index      int     `json:"index"`
	Clip       string  `json:"clip"`
	In         int     `json:"in"`
	Out        int     `json:"out"`
	FrameCount int     `json:"frame_count"`
	Length     int     `json:"length"`
	FPS        float64 `json:"fps"`
}

type playlistView struct {
	Unit       int         `json:"unit"`
	Generation int         `json:"generation"`
	Entries    []entryView `json:"entries"`
}

type commandRequest struct {
	Command string `json:"command"`
}

type commandResult struct {
	Code    int      `json:"code"`
	Message string   `json:"message"`
	Lines   []string `json:"lines"`
}

func (a *API) handleUnitsList(w http.ResponseWriter, r *http.Request) {
	resp := a.exec(r.Context(), "ULS")
	if !mvcp.IsSuccess(resp.Code()) {
		writeError(w, http.StatusBadGateway, "uls_failed")
		return
	}

	units := make([]unitView, 0)
	for _, line := range resp.Payload() {
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(fields[0], "U"))
		if err != nil {
			continue
		}
		view := unitView{Unit: n, Consumer: fields[2], Online: fields[3] == "1"}
		if s, err := a.unitStatus(r.Context(), n); err == nil {
			view.Status = s
		}
		units = append(units, view)
	}
	writeJSON(w, http.StatusOK, units)
}

func (a *API) handleUnitGet(w http.ResponseWriter, r *http.Request) {
	unit, ok := unitParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_unit")
		return
	}
	s, err := a.unitStatus(r.Context(), unit)
	if errors.Is(err, errUnitNotFound) {
		writeError(w, http.StatusNotFound, "unit_not_found")
		return
	}
	if err != nil {
		a.logger.Warn().Err(err).Int("unit", unit).Msg("status query failed")
		writeError(w, http.StatusBadGateway, "status_failed")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (a *API) handleUnitPlaylist(w http.ResponseWriter, r *http.Request) {
	unit, ok := unitParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_unit")
		return
	}
	resp := a.exec(r.Context(), "LIST U%d", unit)
	if resp.Code() == mvcp.CodeInvalidUnit {
		writeError(w, http.StatusNotFound, "unit_not_found")
		return
	}
	if !mvcp.IsSuccess(resp.Code()) {
		writeError(w, http.StatusBadGateway, "list_failed")
		return
	}

	view := playlistView{Unit: unit, Entries: make([]entryView, 0)}
	payload := resp.Payload()
	if len(payload) > 0 {
		view.Generation, _ = strconv.Atoi(payload[0])
		for _, line := range payload[1:] {
			if e, ok := parseEntry(line); ok {
				view.Entries = append(view.Entries, e)
			}
		}
	}
	writeJSON(w, http.StatusOK, view)
}

// parseEntry reads one LIST line: index "clip" in out frames length fps.
func parseEntry(line string) (entryView, bool) {
	tokens := mvcp.Tokenize(line)
	if len(tokens) != 7 {
		return entryView{}, false
	}
	ints := make([]int, 0, 5)
	for _, i := range []int{0, 2, 3, 4, 5} {
		n, err := strconv.Atoi(tokens[i])
		if err != nil {
			return entryView{}, false
		}
		ints = append(ints, n)
	}
	fps, err := strconv.ParseFloat(tokens[6], 64)
	if err != nil {
		return entryView{}, false
	}
	return entryView{
		Index: ints[0], Clip: tokens[1], In: ints[1], Out: ints[2],
		FrameCount: ints[3], Length: ints[4], FPS: fps,
	}, true
}

func (a *API) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	line := strings.TrimSpace(req.Command)
	if line == "" || strings.ContainsAny(line, "\r\n") {
		writeError(w, http.StatusBadRequest, "invalid_command")
		return
	}

	resp := a.parser.Execute(r.Context(), line)
	resp.Finalize()
	a.logger.Info().Str("command", line).Int("code", resp.Code()).Msg("admin command")

	lines := resp.Payload()
	if lines == nil {
		lines = []string{}
	}
	writeJSON(w, http.StatusOK, commandResult{Code: resp.Code(), Message: resp.Message(), Lines: lines})
}

func (a *API) handleAsRun(w http.ResponseWriter, r *http.Request) {
	if a.history == nil {
		writeError(w, http.StatusNotFound, "asrun_disabled")
		return
	}

	unit := -1
	if v := r.URL.Query().Get("unit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_unit")
			return
		}
		unit = n
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit")
			return
		}
		limit = min(n, 1000)
	}

	entries, err := a.history.Recent(r.Context(), unit, limit)
	if err != nil {
		a.logger.Error().Err(err).Msg("as-run query failed")
		writeError(w, http.StatusInternalServerError, "asrun_query_failed")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
