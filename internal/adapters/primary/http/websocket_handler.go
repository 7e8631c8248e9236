package http

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	wsAdapter "github.com/lorrc/region-sync/internal/adapters/primary/websocket"
	"github.com/lorrc/region-sync/internal/auth"
	"github.com/lorrc/region-sync/internal/config"
)

// WebSocketHandler upgrades viewer connections and registers them with the
// hub. Viewers receive friend presence and estate updates over it.
type WebSocketHandler struct {
	hub      *wsAdapter.Hub
	tm       *auth.TokenManager
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewWebSocketHandler creates a new WebSocket handler. Outside development
// only the configured origins may connect.
func NewWebSocketHandler(
	hub *wsAdapter.Hub,
	tm *auth.TokenManager,
	cfg *config.Config,
	logger *slog.Logger,
) *WebSocketHandler {
	h := &WebSocketHandler{
		hub:    hub,
		tm:     tm,
		logger: logger.With("handler", "websocket"),
	}

	allowed := cfg.WebSocket.AllowedOrigins
	anyOrigin := cfg.IsDevelopment()
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  cfg.WebSocket.ReadBufferSize,
		WriteBufferSize: cfg.WebSocket.WriteBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			// Non-browser clients send no origin.
			if origin == "" || anyOrigin {
				return true
			}
			if originAllowed(origin, allowed) {
				return true
			}
			h.logger.Warn("websocket origin rejected",
				"origin", origin,
				"remote_addr", r.RemoteAddr,
			)
			return false
		},
	}
	return h
}

// originAllowed matches origin's host against allowed entries. An entry of
// the form "*.example.com" matches example.com and any subdomain of it.
func originAllowed(origin string, allowed []string) bool {
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	host := parsed.Host

	for _, entry := range allowed {
		if suffix, ok := strings.CutPrefix(entry, "*."); ok {
			if host == suffix || strings.HasSuffix(host, "."+suffix) {
				return true
			}
			continue
		}
		if host == entry {
			return true
		}
	}
	return false
}

// bearerToken reads the token from the query string, where browsers must
// put it, or from an Authorization header.
func bearerToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// ServeHTTP handles GET /api/v1/ws
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With(
		"request_id", GetRequestID(r.Context()),
		"remote_addr", r.RemoteAddr,
	)

	token := bearerToken(r)
	if token == "" {
		logger.Warn("websocket rejected: missing token")
		WriteJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "Missing authentication token", Code: "UNAUTHORIZED"})
		return
	}
	claims, err := h.tm.ValidateToken(token)
	if err != nil {
		logger.Warn("websocket rejected: invalid token", "error", err)
		WriteJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "Invalid or expired token", Code: "UNAUTHORIZED"})
		return
	}

	// Upgrade writes its own error response.
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "user_id", claims.UserID, "error", err)
		return
	}

	client := wsAdapter.NewClient(h.hub, conn, claims.UserID, h.logger)
	h.hub.Register <- client
	logger.Info("websocket connected", "user_id", claims.UserID)

	go client.WritePump()
	go client.ReadPump()
}
