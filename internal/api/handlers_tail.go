// Tabularium - Structured Logging Pipeline with Compliance Controls
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tabularium

package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/tabularium/internal/selflog"
	ws "github.com/tomtom215/tabularium/internal/websocket"
)

// Tail upgrades the connection and attaches it to the live tail hub.
// The stream carries formatted entries from livetail appenders; the
// client sends nothing but control frames.
func (h *Handler) Tail(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		selflog.Warn().Msg("tail connection rejected, hub not initialized")
		NewResponseWriter(w, r).WriteServiceUnavailable("Live tail unavailable")
		return
	}

	upgrader := h.tailUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already answered the client.
		selflog.Error().Err(err).Msg("tail upgrade failed")
		return
	}

	client := ws.NewClient(h.hub, conn)
	h.hub.Register <- client
	client.Start()
}

func (h *Handler) tailUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkTailOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkTailOrigin validates the Origin header against the configured
// CORS origins. Browser connections always carry Origin; an absent
// header means a non-browser client and is rejected so the CORS list
// cannot be bypassed. A nil server config fails open for embedders
// that mount the handler behind their own checks.
func (h *Handler) checkTailOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		selflog.Warn().Msg("tail connection rejected, missing Origin header")
		return false
	}

	if h.serverCfg == nil {
		return true
	}

	for _, allowed := range h.serverCfg.CORSOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}

	selflog.Warn().Str("origin", origin).Msg("tail connection rejected from unauthorized origin")
	return false
}
