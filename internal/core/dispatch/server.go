package dispatch

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/lorrc/region-sync/internal/core/domain"
	"github.com/lorrc/region-sync/internal/core/ports"
	"github.com/lorrc/region-sync/internal/infrastructure/logging"
)

type namedDecoder struct {
	name    string
	decoder ports.EnvelopeDecoder
}

// Server is the receive side of region-to-region dispatch. Every inbound
// envelope is offered to each registered decoder; decoders that do not own
// the method ignore it.
type Server struct {
	logger *slog.Logger

	mu       sync.RWMutex
	decoders []namedDecoder
}

var _ ports.EnvelopeReceiver = (*Server)(nil)

// NewServer creates a server with no decoders.
func NewServer(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{logger: logger.With("component", "dispatch_server")}
}

// Register adds a decoder. Decoders should be registered during startup.
func (s *Server) Register(name string, d ports.EnvelopeDecoder) {
	if d == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decoders = append(s.decoders, namedDecoder{name: name, decoder: d})
}

// DecoderCount returns the number of registered decoders.
func (s *Server) DecoderCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.decoders)
}

// OnEnvelope offers env to every decoder and reports whether any consumed
// it. An envelope nobody recognizes is normal and not an error.
func (s *Server) OnEnvelope(ctx context.Context, env domain.Envelope) bool {
	s.mu.RLock()
	decoders := make([]namedDecoder, len(s.decoders))
	copy(decoders, s.decoders)
	s.mu.RUnlock()

	ctx = logging.WithMethod(ctx, env.Method())
	ctx, span := otel.Tracer(tracerName).Start(ctx, "dispatch.receive",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(attribute.String("envelope.method", env.Method())),
	)
	defer span.End()

	consumed := false
	for _, nd := range decoders {
		if s.offer(ctx, nd, env) {
			consumed = true
		}
	}

	span.SetAttributes(attribute.Bool("envelope.consumed", consumed))
	if !consumed {
		s.logger.DebugContext(ctx, "envelope not consumed by any decoder")
	}
	return consumed
}

// HandleRaw decodes a wire document and dispatches it. Malformed documents
// are logged and dropped.
func (s *Server) HandleRaw(ctx context.Context, data []byte) bool {
	env, err := domain.DecodeEnvelope(data)
	if err != nil {
		s.logger.WarnContext(ctx, "dropping malformed envelope",
			"error", err,
			"bytes", len(data),
		)
		return false
	}
	return s.OnEnvelope(ctx, env)
}

// offer isolates one decoder so a panic only loses that decode.
func (s *Server) offer(ctx context.Context, nd namedDecoder, env domain.Envelope) (consumed bool) {
	defer func() {
		if p := recover(); p != nil {
			logging.LogPanic(s.logger.With("decoder", nd.name), p)
			consumed = false
		}
	}()
	return nd.decoder.OnEnvelope(ctx, env)
}
