package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/lorrc/region-sync/internal/adapters/primary/http/middleware"
	"github.com/lorrc/region-sync/internal/adapters/primary/validation"
	"github.com/lorrc/region-sync/internal/core/domain"
	apperrors "github.com/lorrc/region-sync/internal/core/errors"
	"github.com/lorrc/region-sync/internal/core/ports"
)

// PresenceHandler records logins and logouts.
type PresenceHandler struct {
	presenceService ports.PresenceService
	errorHandler    *ErrorHandler
	logger          *slog.Logger
}

// NewPresenceHandler creates a new presence handler
func NewPresenceHandler(presenceService ports.PresenceService, errorHandler *ErrorHandler, logger *slog.Logger) *PresenceHandler {
	return &PresenceHandler{
		presenceService: presenceService,
		errorHandler:    errorHandler,
		logger:          logger.With("handler", "presence"),
	}
}

// RegisterRoutes sets up the routing for presence endpoints.
func (h *PresenceHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.HandleSetPresence)
}

// SetPresenceRequest defines the expected JSON body for a login or logout
type SetPresenceRequest struct {
	UserID   string `json:"userId"`
	RegionID string `json:"regionId"`
	Online   *bool  `json:"online"`
}

// Validate validates the request and returns the service params
func (r *SetPresenceRequest) Validate() (ports.SetPresenceParams, error) {
	v := validation.NewValidator()

	v.Required("userId", r.UserID)
	userID := v.UUID("userId", r.UserID)
	regionID := v.UUID("regionId", r.RegionID)
	validation.NotNil(v, "online", r.Online)
	if r.Online != nil && *r.Online {
		v.Required("regionId", r.RegionID)
	}

	if err := v.Err(); err != nil {
		return ports.SetPresenceParams{}, err
	}
	return ports.SetPresenceParams{UserID: userID, RegionID: regionID, Online: *r.Online}, nil
}

// FanOutDTO reports how many regions were addressed.
type FanOutDTO struct {
	Attempted int `json:"attempted"`
	Posted    int `json:"posted"`
}

func toFanOutDTO(f domain.FanOut) FanOutDTO {
	return FanOutDTO{Attempted: f.Attempted, Posted: f.Posted}
}

// HandleSetPresence handles POST /api/v1/presence. Users may set their own
// presence; admins may set anyone's.
func (h *PresenceHandler) HandleSetPresence(w http.ResponseWriter, r *http.Request) {
	claims, ok := mw.GetClaims(r.Context())
	if !ok {
		h.errorHandler.Handle(w, r, apperrors.ErrUnauthorized)
		return
	}

	req, err := validation.DecodeJSON[SetPresenceRequest](w, r)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}
	params, err := req.Validate()
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	if params.UserID != claims.UserID && !claims.Admin {
		h.errorHandler.Handle(w, r, apperrors.ErrForbidden)
		return
	}

	fanOut, err := h.presenceService.SetStatus(r.Context(), params)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	h.logger.InfoContext(r.Context(), "presence updated",
		"user_id", params.UserID,
		"online", params.Online,
		"regions_posted", fanOut.Posted,
	)
	WriteSuccess(w, toFanOutDTO(fanOut))
}
