// Copyright (C) 2025 Morizady
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package callgraph

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	// streamWriteTimeout bounds each websocket write.
	streamWriteTimeout = 10 * time.Second

	// streamPingInterval keeps idle connections alive through proxies.
	streamPingInterval = 30 * time.Second
)

var watchUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The stream carries read-only rebuild notifications; browser
	// dashboards on other origins may subscribe.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamHello is the first frame on every watch stream. Its field names
// must not collide with Event's, so clients can decode frames uniformly.
type streamHello struct {
	Kind      string `json:"kind"`
	Classes   int    `json:"classes"`
	FileCount int    `json:"file_count"`
}

// HandleWatchStream handles GET /v1/callgraph/watch/stream.
//
// Description:
//
//	Upgrades to a websocket and forwards watcher events as JSON frames:
//	one "hello" frame with the current index counters, then a "rebuild"
//	or "error" frame per watcher event until the client disconnects or
//	the watcher closes. Slow clients miss events rather than stalling
//	the watcher.
//
// Response:
//
//	101 Switching Protocols: Websocket stream of Event frames
//	503 Service Unavailable: Watch mode not enabled
//
// Thread Safety: This method is safe for concurrent use. Each stream
// owns its connection; frames are written from a single goroutine.
func (h *Handlers) HandleWatchStream(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.log.With("request_id", requestID, "handler", "HandleWatchStream")

	if h.watcher == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: "watch mode not enabled",
			Code:  "WATCH_NOT_AVAILABLE",
		})
		return
	}

	conn, err := watchUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the handshake error.
		logger.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}
	defer conn.Close()

	watchStreamsActive.Inc()
	defer watchStreamsActive.Dec()

	events, cancel := h.watcher.Subscribe()
	defer cancel()

	// Drain client frames so close handshakes and pongs are processed;
	// the first read error means the client went away.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	stats := h.liveIndex().Stats()
	hello := streamHello{Kind: "hello", Classes: stats.TotalClasses, FileCount: stats.FileCount}
	conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	if err := conn.WriteJSON(hello); err != nil {
		logger.Warn("watch stream write failed", slog.Any("error", err))
		return
	}

	logger.Info("watch stream opened")
	ping := time.NewTicker(streamPingInterval)
	defer ping.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				// Watcher closed; end the stream cleanly.
				conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "watcher closed"),
					time.Now().Add(streamWriteTimeout))
				logger.Info("watch stream closed by watcher")
				return
			}
			conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := conn.WriteJSON(event); err != nil {
				logger.Warn("watch stream write failed", slog.Any("error", err))
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil,
				time.Now().Add(streamWriteTimeout)); err != nil {
				logger.Warn("watch stream ping failed", slog.Any("error", err))
				return
			}
		case <-clientGone:
			logger.Info("watch stream closed by client")
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}
