package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/HeliumBERT/tracking/internal/queue"
)

// ErrAuditBacklogFull is returned when the publisher cannot take another event
// without blocking the caller.
var ErrAuditBacklogFull = errors.New("audit publish backlog full")

// AMQPPublisherConfig configures AMQPAuditPublisher. Zero values pick defaults.
type AMQPPublisherConfig struct {
	URL            string
	Buffer         int           // queued events, default 1024
	DialTimeout    time.Duration // default queue.DialTimeout
	PublishTimeout time.Duration // default 5s
}

// AMQPAuditPublisher hands audit events to a background worker that keeps
// one connection and channel to RabbitMQ. PublishAuditRecorded never waits
// on the broker; Run does the network work and reconnects with backoff.
type AMQPAuditPublisher struct {
	cfg    AMQPPublisherConfig
	events chan queue.AuditRecordedEvent
	log    *zap.Logger
}

func NewAMQPAuditPublisher(cfg AMQPPublisherConfig, log *zap.Logger) *AMQPAuditPublisher {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 1024
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = queue.DialTimeout
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AMQPAuditPublisher{cfg: cfg, events: make(chan queue.AuditRecordedEvent, cfg.Buffer), log: log}
}

// PublishAuditRecorded enqueues ev for Run.
func (p *AMQPAuditPublisher) PublishAuditRecorded(ctx context.Context, ev queue.AuditRecordedEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case p.events <- ev:
		return nil
	default:
		return ErrAuditBacklogFull
	}
}

// Run publishes queued events until ctx is cancelled. An event whose publish
// fails is retried on the next connection.
func (p *AMQPAuditPublisher) Run(ctx context.Context) {
	var pending *queue.AuditRecordedEvent
	backoff := time.Second
	for {
		conn, ch, err := p.connect()
		if err != nil {
			p.log.Warn("rabbitmq: publisher connect failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !wait(ctx, backoff) {
				p.dropped(pending)
				return
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		pending, err = p.drain(ctx, ch, pending)
		_ = ch.Close()
		_ = conn.Close()
		if ctx.Err() != nil {
			p.dropped(pending)
			return
		}
		p.log.Warn("rabbitmq: publisher connection lost, reconnecting", zap.Error(err))
	}
}

func (p *AMQPAuditPublisher) connect() (*amqp.Connection, *amqp.Channel, error) {
	conn, err := queue.Dial(p.cfg.URL, p.cfg.DialTimeout)
	if err != nil {
		return nil, nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	if _, err := ch.QueueDeclare(
		queue.AuditQueueName, // name
		true,                 // durable
		false,                // autoDelete
		false,                // exclusive
		false,                // noWait
		nil,                  // args
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, err
	}
	return conn, ch, nil
}

// drain publishes until ctx ends or the channel fails, returning the event
// that was in flight on failure.
func (p *AMQPAuditPublisher) drain(ctx context.Context, ch *amqp.Channel, pending *queue.AuditRecordedEvent) (*queue.AuditRecordedEvent, error) {
	for {
		if pending == nil {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case ev := <-p.events:
				pending = &ev
			}
		}
		body, err := json.Marshal(*pending)
		if err != nil {
			p.log.Error("rabbitmq: audit event not encodable, dropped", zap.String("audit_id", pending.ID), zap.Error(err))
			pending = nil
			continue
		}
		pctx, cancel := context.WithTimeout(ctx, p.cfg.PublishTimeout)
		err = ch.PublishWithContext(pctx, "", queue.AuditQueueName, false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    pending.ID,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		})
		cancel()
		if err != nil {
			return pending, err
		}
		pending = nil
	}
}

func (p *AMQPAuditPublisher) dropped(pending *queue.AuditRecordedEvent) {
	n := len(p.events)
	if pending != nil {
		n++
	}
	if n > 0 {
		p.log.Warn("rabbitmq: unpublished audit events dropped at shutdown", zap.Int("count", n))
	}
}

func wait(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
