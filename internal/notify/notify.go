// Package notify dispatches best-effort notifications after state
// transitions commit. A slow or failing publisher never affects the
// transition that triggered it; a full queue drops the message.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/Shivanand-hulikatti/event-reg-engine/internal/metrics"
)

// Message types.
const (
	TypeRegistrationConfirmed = "registration_confirmed"
	TypeRegistrationCancelled = "registration_cancelled"
	TypePaymentStatusChanged  = "payment_status_changed"
)

// Message is a notification payload.
type Message struct {
	Type           string    `json:"type"`
	EventID        string    `json:"event_id"`
	RegistrationID string    `json:"registration_id,omitempty"`
	PaymentID      string    `json:"payment_id,omitempty"`
	Email          string    `json:"email,omitempty"`
	Status         string    `json:"status,omitempty"`
	At             time.Time `json:"at"`
}

// Publisher delivers one message.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// Notifier is what the state machines depend on.
type Notifier interface {
	Notify(msg Message)
}

// Dispatcher queues messages and publishes them from its own goroutine.
type Dispatcher struct {
	queue   chan Message
	pub     Publisher
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewDispatcher returns a Dispatcher with a queue of size messages.
func NewDispatcher(pub Publisher, size int, logger *slog.Logger, m *metrics.Metrics) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.Discard()
	}
	return &Dispatcher{
		queue:   make(chan Message, size),
		pub:     pub,
		timeout: 5 * time.Second,
		logger:  logger,
		metrics: m,
	}
}

// Notify enqueues msg without blocking.
func (d *Dispatcher) Notify(msg Message) {
	select {
	case d.queue <- msg:
	default:
		d.metrics.Notifications.WithLabelValues("dropped").Inc()
		d.logger.Warn("notification queue full, dropping message",
			"type", msg.Type, "event_id", msg.EventID)
	}
}

// Run publishes queued messages until ctx is cancelled, then drains what is
// already queued and returns.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case msg := <-d.queue:
			d.publish(ctx, msg)
		case <-ctx.Done():
			d.drain()
			return
		}
	}
}

func (d *Dispatcher) drain() {
	ctx := context.Background()
	for {
		select {
		case msg := <-d.queue:
			d.publish(ctx, msg)
		default:
			return
		}
	}
}

func (d *Dispatcher) publish(ctx context.Context, msg Message) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	if err := d.pub.Publish(ctx, msg); err != nil {
		d.metrics.Notifications.WithLabelValues("failed").Inc()
		d.logger.Warn("can't publish notification", "type", msg.Type, "error", err)
		return
	}
	d.metrics.Notifications.WithLabelValues("sent").Inc()
}

// LogPublisher writes messages to the log. Used when no transport is set up.
type LogPublisher struct {
	Logger *slog.Logger
}

// Publish logs msg.
func (p LogPublisher) Publish(_ context.Context, msg Message) error {
	p.Logger.Info("notification",
		"type", msg.Type,
		"event_id", msg.EventID,
		"registration_id", msg.RegistrationID,
		"payment_id", msg.PaymentID,
		"status", msg.Status,
	)
	return nil
}

// Discard is a Notifier that drops everything.
type Discard struct{}

// Notify does nothing.
func (Discard) Notify(Message) {}
