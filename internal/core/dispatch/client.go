package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/lorrc/region-sync/internal/core/domain"
	apperrors "github.com/lorrc/region-sync/internal/core/errors"
	"github.com/lorrc/region-sync/internal/core/ports"
	"github.com/lorrc/region-sync/internal/infrastructure/logging"
)

const tracerName = "github.com/lorrc/region-sync/internal/core/dispatch"

// ClientConfig controls the send path.
type ClientConfig struct {
	Workers     int           // concurrent senders
	QueueSize   int           // posts buffered before new ones are dropped
	SendTimeout time.Duration // bound for a single transport call
}

// DefaultClientConfig returns a sensible default configuration
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Workers:     4,
		QueueSize:   1024,
		SendTimeout: 5 * time.Second,
	}
}

// Stats is a snapshot of the client's counters.
type Stats struct {
	Queued  int64 `json:"queued"`
	Sent    int64 `json:"sent"`
	Failed  int64 `json:"failed"`
	Dropped int64 `json:"dropped"`
	Pending int   `json:"pending"`
}

type delivery struct {
	id     string
	handle domain.RegionHandle
	env    domain.Envelope
}

// Client is the fire-and-forget side of region-to-region dispatch. Post
// queues an envelope and returns at once; worker goroutines hand it to the
// transport. Delivery failures are logged and counted, never returned.
type Client struct {
	transport ports.Transport
	cfg       ClientConfig
	logger    *slog.Logger

	// loopback short-circuits posts addressed to a scene hosted here.
	local  ports.EnvelopeReceiver
	scenes ports.SceneSet

	queue  chan delivery
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	queued  atomic.Int64
	sent    atomic.Int64
	failed  atomic.Int64
	dropped atomic.Int64
}

var _ ports.DispatchPoster = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithLoopback delivers envelopes addressed to scenes in set straight to
// receiver instead of going through the transport.
func WithLoopback(receiver ports.EnvelopeReceiver, set ports.SceneSet) Option {
	return func(c *Client) {
		c.local = receiver
		c.scenes = set
	}
}

// NewClient creates a client and starts its workers.
func NewClient(transport ports.Transport, cfg ClientConfig, logger *slog.Logger, opts ...Option) *Client {
	defaults := DefaultClientConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = defaults.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaults.QueueSize
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaults.SendTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		transport: transport,
		cfg:       cfg,
		logger:    logger.With("component", "dispatch_client"),
		queue:     make(chan delivery, cfg.QueueSize),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go c.worker()
	}
	return c
}

// Post queues env for delivery to handle. It reports whether the envelope
// was accepted; a full queue or a shut-down client drops it.
func (c *Client) Post(handle domain.RegionHandle, env domain.Envelope) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		c.dropped.Add(1)
		c.logger.Warn("post after shutdown, dropping envelope",
			"method", env.Method(),
			"region_handle", handle.String(),
			"error", apperrors.ErrDispatcherClosed,
		)
		return false
	}

	d := delivery{id: ulid.Make().String(), handle: handle, env: env}
	select {
	case c.queue <- d:
		c.queued.Add(1)
		return true
	default:
		c.dropped.Add(1)
		c.logger.Warn("dispatch queue full, dropping envelope",
			"method", env.Method(),
			"region_handle", handle.String(),
			"delivery_id", d.id,
		)
		return false
	}
}

// PostAll posts env to each handle in order. A dropped destination does not
// stop the remaining ones. It returns how many posts were accepted.
func (c *Client) PostAll(handles []domain.RegionHandle, env domain.Envelope) int {
	accepted := 0
	for _, h := range handles {
		if c.Post(h, env) {
			accepted++
		}
	}
	return accepted
}

// Stats returns a snapshot of the client's counters.
func (c *Client) Stats() Stats {
	return Stats{
		Queued:  c.queued.Load(),
		Sent:    c.sent.Load(),
		Failed:  c.failed.Load(),
		Dropped: c.dropped.Load(),
		Pending: len(c.queue),
	}
}

// Shutdown stops accepting posts and waits for queued deliveries to finish
// or for ctx to expire.
func (c *Client) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.queue)
	}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("dispatch shutdown: %w", ctx.Err())
	}
}

func (c *Client) worker() {
	defer c.wg.Done()
	for d := range c.queue {
		c.deliver(d)
	}
}

// deliver performs one send. Nothing escapes it: errors and panics are
// logged and counted.
func (c *Client) deliver(d delivery) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.SendTimeout)
	defer cancel()
	ctx = logging.WithDeliveryID(ctx, d.id)
	ctx = logging.WithMethod(ctx, d.env.Method())

	ctx, span := otel.Tracer(tracerName).Start(ctx, "dispatch.send",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("envelope.method", d.env.Method()),
			attribute.String("region.handle", d.handle.String()),
			attribute.String("delivery.id", d.id),
		),
	)
	defer span.End()

	defer func() {
		if p := recover(); p != nil {
			c.failed.Add(1)
			logging.LogPanic(c.logger, p)
			span.SetStatus(codes.Error, "panic during send")
		}
	}()

	if c.local != nil && c.scenes != nil && c.scenes.FindSceneByHandle(d.handle) != nil {
		span.SetAttributes(attribute.Bool("dispatch.loopback", true))
		c.local.OnEnvelope(ctx, d.env)
		c.sent.Add(1)
		return
	}

	if c.transport == nil {
		c.failed.Add(1)
		c.logger.WarnContext(ctx, "no transport configured, dropping envelope",
			"region_handle", d.handle.String(),
		)
		span.SetStatus(codes.Error, "no transport")
		return
	}

	if err := c.transport.Send(ctx, d.handle, d.env); err != nil {
		c.failed.Add(1)
		c.logger.WarnContext(ctx, "envelope delivery failed",
			"region_handle", d.handle.String(),
			"error", err,
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}

	c.sent.Add(1)
	span.SetStatus(codes.Ok, "")
}
