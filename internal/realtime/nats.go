package realtime

import (
	"fmt"
	"time"

	"studio/internal/api/models"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// conn is the part of *nats.Conn the publisher uses.
type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSPublisher mirrors routed worker events onto NATS so other processes (dashboards,
// experiment trackers) can follow a training run. Each event goes to
// <subject>.<event tag> carrying the same {"event","data"} envelope the worker wrote.
type NATSPublisher struct {
	conn    conn
	subject string
	logger  zerolog.Logger
}

func NewNATSPublisher(natsURL, subject string, logger zerolog.Logger) (*NATSPublisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("studio"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return newNATSPublisher(nc, subject, logger), nil
}

func newNATSPublisher(c conn, subject string, logger zerolog.Logger) *NATSPublisher {
	return &NATSPublisher{
		conn:    c,
		subject: subject,
		logger:  logger.With().Str("component", "nats").Logger(),
	}
}

// HandleEvent publishes one event. Failures are logged; the session never waits on NATS.
func (b *NATSPublisher) HandleEvent(ev models.Event) {
	data, err := models.EncodeEvent(ev)
	if err != nil {
		b.logger.Error().Err(err).Str("event", string(ev.Tag())).Msg("nats: encode event")
		return
	}

	subject := SubjectFor(b.subject, ev.Tag())
	if err := b.conn.Publish(subject, data); err != nil {
		b.logger.Warn().Err(err).Str("subject", subject).Msg("nats: publish failed")
	}
}

// Close drains the NATS connection.
func (b *NATSPublisher) Close() {
	if err := b.conn.Drain(); err != nil {
		b.logger.Warn().Err(err).Msg("nats drain")
	}
}

// SubjectFor builds the subject an event is published on, e.g. "studio.events.epoch_end".
func SubjectFor(base string, tag models.EventTag) string {
	return base + "." + string(tag)
}

// SubscribeEvents follows everything a NATSPublisher on subject emits and hands each decoded
// event to fn. Messages that are not events are logged and skipped.
func SubscribeEvents(nc *nats.Conn, subject string, fn func(models.Event), logger zerolog.Logger) (*nats.Subscription, error) {
	sub, err := nc.Subscribe(subject+".>", eventHandler(fn, logger))
	if err != nil {
		return nil, fmt.Errorf("nats subscribe %q: %w", subject, err)
	}
	return sub, nil
}

func eventHandler(fn func(models.Event), logger zerolog.Logger) nats.MsgHandler {
	return func(msg *nats.Msg) {
		ev, err := models.DecodeEvent(msg.Data)
		if err != nil {
			logger.Warn().Err(err).Str("subject", msg.Subject).Msg("nats: bad event")
			return
		}
		fn(ev)
	}
}
