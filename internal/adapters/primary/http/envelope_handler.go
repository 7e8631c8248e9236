package http

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lorrc/region-sync/internal/adapters/primary/validation"
	"github.com/lorrc/region-sync/internal/core/domain"
	apperrors "github.com/lorrc/region-sync/internal/core/errors"
	"github.com/lorrc/region-sync/internal/core/ports"
	"github.com/lorrc/region-sync/internal/infrastructure/logging"
)

const (
	// DeliveryIDHeader carries the sender's delivery id for log correlation.
	DeliveryIDHeader = "X-Delivery-ID"

	// PeerRegionHeader names the posting region. Inbound envelopes are rate
	// limited per peer.
	PeerRegionHeader = "X-Peer-Region"
)

// EnvelopeHandler is the HTTP receive path for envelopes posted by peer
// regions. It feeds the same receiver as the redis subscription.
type EnvelopeHandler struct {
	receiver     ports.EnvelopeReceiver
	errorHandler *ErrorHandler
	logger       *slog.Logger
}

// NewEnvelopeHandler creates a new envelope handler
func NewEnvelopeHandler(receiver ports.EnvelopeReceiver, errorHandler *ErrorHandler, logger *slog.Logger) *EnvelopeHandler {
	return &EnvelopeHandler{
		receiver:     receiver,
		errorHandler: errorHandler,
		logger:       logger.With("handler", "envelope"),
	}
}

// RegisterRoutes sets up the routing for envelope endpoints.
func (h *EnvelopeHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.HandleReceive)
}

// EnvelopeReceipt reports whether a registered decoder consumed the envelope.
// An unconsumed envelope is still accepted.
type EnvelopeReceipt struct {
	Method   string `json:"method"`
	Consumed bool   `json:"consumed"`
}

// HandleReceive handles POST /internal/v1/envelopes
func (h *EnvelopeHandler) HandleReceive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, validation.MaxBodyBytes))
	if err != nil {
		h.errorHandler.Handle(w, r, apperrors.NewBadRequestError(err, "Request body too large or unreadable"))
		return
	}

	env, err := domain.DecodeEnvelope(body)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	ctx := r.Context()
	if deliveryID := r.Header.Get(DeliveryIDHeader); deliveryID != "" {
		ctx = logging.WithDeliveryID(ctx, deliveryID)
	}

	consumed := h.receiver.OnEnvelope(ctx, env)
	h.logger.DebugContext(ctx, "envelope received",
		"method", env.Method(),
		"consumed", consumed,
		"peer", r.Header.Get(PeerRegionHeader),
	)

	WriteAccepted(w, EnvelopeReceipt{Method: env.Method(), Consumed: consumed})
}
