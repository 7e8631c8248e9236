package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	mw "github.com/lorrc/region-sync/internal/adapters/primary/http/middleware"
	"github.com/lorrc/region-sync/internal/auth"
	"github.com/lorrc/region-sync/internal/core/domain"
)

// FriendsView returns the cached friend presence of a viewer.
type FriendsView interface {
	Snapshot(viewerID uuid.UUID) []domain.FriendStatusPayload
}

// MeResponse defines the JSON response for the authenticated user.
type MeResponse struct {
	UserID string `json:"userId"`
	Admin  bool   `json:"admin"`
}

// MeHandler handles HTTP requests for the authenticated user.
type MeHandler struct {
	friends      FriendsView
	errorHandler *ErrorHandler
	logger       *slog.Logger
}

// NewMeHandler creates a new MeHandler.
func NewMeHandler(friends FriendsView, errorHandler *ErrorHandler, logger *slog.Logger) *MeHandler {
	return &MeHandler{
		friends:      friends,
		errorHandler: errorHandler,
		logger:       logger.With("handler", "me"),
	}
}

// RegisterRoutes registers the /me routes.
func (h *MeHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.HandleMe)
	r.Get("/friends", h.HandleFriends)
}

// HandleMe handles GET /me.
func (h *MeHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.getClaims(w, r)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, MeResponse{UserID: claims.UserID.String(), Admin: claims.Admin})
}

// HandleFriends handles GET /me/friends. It lists the friend statuses this
// process has seen for the caller, which is empty until an update arrives.
func (h *MeHandler) HandleFriends(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.getClaims(w, r)
	if !ok {
		return
	}

	var friends []domain.FriendStatusPayload
	if h.friends != nil {
		friends = h.friends.Snapshot(claims.UserID)
	}
	WriteList(w, friends)
}

// getClaims extracts and validates user claims from the request context.
func (h *MeHandler) getClaims(w http.ResponseWriter, r *http.Request) (*auth.Claims, bool) {
	claims, ok := mw.GetClaims(r.Context())
	if !ok {
		WriteJSON(w, http.StatusUnauthorized, ErrorResponse{
			Error: "Not authorized",
			Code:  "UNAUTHORIZED",
		})
		return nil, false
	}
	return claims, true
}
