package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lorrc/region-sync/internal/adapters/primary/validation"
	"github.com/lorrc/region-sync/internal/core/domain"
	"github.com/lorrc/region-sync/internal/core/ports"
)

// EstateHandler exposes estate settings administration.
type EstateHandler struct {
	estateService ports.EstateService
	errorHandler  *ErrorHandler
	logger        *slog.Logger
}

// NewEstateHandler creates a new estate handler
func NewEstateHandler(estateService ports.EstateService, errorHandler *ErrorHandler, logger *slog.Logger) *EstateHandler {
	return &EstateHandler{
		estateService: estateService,
		errorHandler:  errorHandler,
		logger:        logger.With("handler", "estate"),
	}
}

// RegisterRoutes mounts the admin write route under /estates.
func (h *EstateHandler) RegisterRoutes(r chi.Router) {
	r.Put("/{estateID}/settings", h.HandleUpdateSettings)
}

// RegisterRegionRoutes mounts the read route under /regions.
func (h *EstateHandler) RegisterRegionRoutes(r chi.Router) {
	r.Get("/{regionID}/estate-settings", h.HandleGetSettings)
}

// --- Request/Response DTOs ---

// UpdateEstateSettingsRequest defines the expected JSON body for a settings edit
type UpdateEstateSettingsRequest struct {
	EstateName          string `json:"estateName"`
	OwnerID             string `json:"ownerId"`
	PublicAccess        bool   `json:"publicAccess"`
	AllowDirectTeleport bool   `json:"allowDirectTeleport"`
	DenyAnonymous       bool   `json:"denyAnonymous"`
	AbuseEmail          string `json:"abuseEmail"`
}

// Validate validates the request and builds the settings it describes
func (r *UpdateEstateSettingsRequest) Validate(estateID uint32) (domain.EstateSettings, error) {
	v := validation.NewValidator()

	v.Required("estateName", r.EstateName).
		MaxLength("estateName", r.EstateName, domain.MaxEstateNameLength).
		Email("abuseEmail", r.AbuseEmail)
	ownerID := v.UUID("ownerId", r.OwnerID)

	if err := v.Err(); err != nil {
		return domain.EstateSettings{}, err
	}
	return domain.EstateSettings{
		EstateID:            estateID,
		EstateName:          r.EstateName,
		OwnerID:             ownerID,
		PublicAccess:        r.PublicAccess,
		AllowDirectTeleport: r.AllowDirectTeleport,
		DenyAnonymous:       r.DenyAnonymous,
		AbuseEmail:          r.AbuseEmail,
	}, nil
}

// EstateSettingsDTO defines the JSON response for estate settings.
type EstateSettingsDTO struct {
	EstateID            uint32  `json:"estateId"`
	EstateName          string  `json:"estateName"`
	OwnerID             *string `json:"ownerId"`
	PublicAccess        bool    `json:"publicAccess"`
	AllowDirectTeleport bool    `json:"allowDirectTeleport"`
	DenyAnonymous       bool    `json:"denyAnonymous"`
	AbuseEmail          string  `json:"abuseEmail,omitempty"`
	UpdatedAt           *string `json:"updatedAt"`
}

func toEstateSettingsDTO(s *domain.EstateSettings) EstateSettingsDTO {
	var ownerID *string
	if s.OwnerID != uuid.Nil {
		value := s.OwnerID.String()
		ownerID = &value
	}

	var updatedAt *string
	if !s.UpdatedAt.IsZero() {
		value := s.UpdatedAt.UTC().Format(time.RFC3339)
		updatedAt = &value
	}

	return EstateSettingsDTO{
		EstateID:            s.EstateID,
		EstateName:          s.EstateName,
		OwnerID:             ownerID,
		PublicAccess:        s.PublicAccess,
		AllowDirectTeleport: s.AllowDirectTeleport,
		DenyAnonymous:       s.DenyAnonymous,
		AbuseEmail:          s.AbuseEmail,
		UpdatedAt:           updatedAt,
	}
}

// UpdateEstateSettingsResponse is returned after a successful edit
type UpdateEstateSettingsResponse struct {
	Settings EstateSettingsDTO `json:"settings"`
	Regions  FanOutDTO         `json:"regions"`
}

// --- Handlers ---

// HandleUpdateSettings handles PUT /api/v1/estates/{estateID}/settings
func (h *EstateHandler) HandleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	estateID, err := validation.ParseUint32Param("estateID", chi.URLParam(r, "estateID"))
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	req, err := validation.DecodeJSON[UpdateEstateSettingsRequest](w, r)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}
	settings, err := req.Validate(estateID)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	saved, fanOut, err := h.estateService.UpdateSettings(r.Context(), ports.UpdateEstateSettingsParams{
		EstateID: estateID,
		Settings: settings,
	})
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	h.logger.InfoContext(r.Context(), "estate settings updated",
		"estate_id", estateID,
		"regions_posted", fanOut.Posted,
	)
	WriteSuccess(w, UpdateEstateSettingsResponse{
		Settings: toEstateSettingsDTO(saved),
		Regions:  toFanOutDTO(fanOut),
	})
}

// HandleGetSettings handles GET /api/v1/regions/{regionID}/estate-settings
func (h *EstateHandler) HandleGetSettings(w http.ResponseWriter, r *http.Request) {
	v := validation.NewValidator()
	regionID := v.UUID("regionID", chi.URLParam(r, "regionID"))
	if HandleError(w, r, v.Err(), h.errorHandler) {
		return
	}

	settings, err := h.estateService.GetSettings(r.Context(), regionID)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}
	WriteSuccess(w, toEstateSettingsDTO(settings))
}
