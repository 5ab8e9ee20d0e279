package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"comfycollab/internal/pkg/errs"
	"comfycollab/internal/pkg/limiter"
	"comfycollab/internal/pkg/logx"
	"comfycollab/internal/pkg/randx"
	"comfycollab/internal/pkg/resp"
)

// HandleWebSocket upgrades a request on /ws/{canvas} and hands the
// connection to the hub. Authentication happens on the first frame, so the
// only checks here are rate limit and canvas id shape.
func HandleWebSocket(upgrader websocket.Upgrader, rateLimiter *limiter.IPRateLimiter, deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !rateLimiter.Allow(r) {
			logx.Warn("WebSocket connection rejected: Rate limit exceeded.", "ip", limiter.ClientIP(r))
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		canvasID := chi.URLParam(r, "canvas")
		if !randx.IsValidCanvasID(canvasID) {
			logx.Warn("WebSocket request rejected: invalid canvas id", "canvas_id", canvasID)
			resp.RespondError(w, r, errs.NewError(errs.ErrCanvasIDInvalid))
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket")
			return
		}

		logx.Debug("WebSocket connection upgraded", "canvas_id", canvasID)
		deps.Hub.Serve(conn, canvasID)
	}
}

// CanvasStatus describes a live canvas session.
type CanvasStatus struct {
	ID    string `json:"id"`
	Users int    `json:"users"`
	Full  bool   `json:"full"`
	Live  bool   `json:"live"`
}

// HandleCanvasStatus reports how many collaborators a canvas has, so a client
// can tell a full canvas apart from a network failure before dialing.
func HandleCanvasStatus(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		canvasID := chi.URLParam(r, "canvas")
		if !randx.IsValidCanvasID(canvasID) {
			resp.RespondError(w, r, errs.NewError(errs.ErrCanvasIDInvalid))
			return
		}

		status := CanvasStatus{ID: canvasID}
		if canvas := deps.Hub.Lookup(canvasID); canvas != nil {
			status.Live = true
			status.Users = canvas.Size()
			status.Full = canvas.IsFull()
		}

		resp.RespondSuccess(w, r, status)
	}
}
