/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	ws "nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/mltframework/melted/internal/mvcp"
	"github.com/mltframework/melted/internal/notifier"
	"github.com/mltframework/melted/internal/telemetry"
)

type statusEvent struct {
	Type   string       `json:"type"`
	Status *mvcp.Status `json:"status,omitempty"`
}

// handleStatusStream sends every unit's snapshot and then each change,
// the websocket equivalent of the STATUS command.
func (a *API) handleStatusStream(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.Accept(w, r, &ws.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		a.logger.Error().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(ws.StatusInternalError, "server error")

	telemetry.StatusStreams.Inc()
	defer telemetry.StatusStreams.Dec()

	// Client messages are ignored; the returned context ends when the
	// peer goes away.
	ctx := conn.CloseRead(r.Context())
	n := a.parser.Notifier()

	statuses, seq := n.Snapshot()
	if err := a.sendStatuses(ctx, conn, statuses); err != nil {
		return
	}

	lastPing := time.Now()
	for {
		statuses, next, err := n.Wait(ctx, seq)
		switch {
		case errors.Is(err, notifier.ErrTimeout):
			if time.Since(lastPing) >= a.pingInterval {
				if err := wsjson.Write(ctx, conn, statusEvent{Type: "ping"}); err != nil {
					return
				}
				lastPing = time.Now()
			}
			continue
		case errors.Is(err, notifier.ErrClosed):
			conn.Close(ws.StatusGoingAway, "server shutting down")
			return
		case err != nil:
			conn.Close(ws.StatusNormalClosure, "client disconnected")
			return
		}
		seq = next
		if err := a.sendStatuses(ctx, conn, statuses); err != nil {
			return
		}
	}
}

func (a *API) sendStatuses(ctx context.Context, conn *ws.Conn, statuses []mvcp.Status) error {
	for i := range statuses {
		if err := wsjson.Write(ctx, conn, statusEvent{Type: "status", Status: &statuses[i]}); err != nil {
			a.logger.Debug().Err(err).Msg("websocket write failed")
			return err
		}
	}
	return nil
}
