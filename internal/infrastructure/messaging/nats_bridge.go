package messaging

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/booner/backend/internal/core/services"
	"github.com/booner/backend/internal/infrastructure/logger"
	"github.com/nats-io/nats.go"
)

const resubscribeDelay = time.Second

// Hub is the part of the broadcast hub the bridge consumes.
type Hub interface {
	Subscribe(topic services.Topic) (*services.Subscription, error)
	Unsubscribe(sub *services.Subscription)
}

// Publisher is satisfied by *nats.Conn.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSBridge republishes every hub message on a NATS subject
// "<prefix>.<topic>". It is an ordinary hub subscriber, so a stalled NATS
// connection gets it dropped like any slow client; it then resubscribes.
type NATSBridge struct {
	hub    Hub
	pub    Publisher
	conn   *nats.Conn
	prefix string
	logger *logger.Logger
}

func NewNATSBridge(url, prefix string, hub Hub, log *logger.Logger) (*NATSBridge, error) {
	conn, err := nats.Connect(url,
		nats.Name("booner-orchestrator"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warnw("nats_disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Infow("nats_reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, err
	}
	b := newBridge(hub, conn, prefix, log)
	b.conn = conn
	return b, nil
}

func newBridge(hub Hub, pub Publisher, prefix string, log *logger.Logger) *NATSBridge {
	if prefix == "" {
		prefix = "booner"
	}
	return &NATSBridge{hub: hub, pub: pub, prefix: prefix, logger: log}
}

func (b *NATSBridge) Subject(topic services.Topic) string {
	return b.prefix + "." + string(topic)
}

// Run forwards both topics until ctx is done, then drains the connection.
func (b *NATSBridge) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, topic := range []services.Topic{services.TopicSystemStatus, services.TopicTaskUpdates} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.forward(ctx, topic)
		}()
	}
	wg.Wait()

	if b.conn != nil {
		if err := b.conn.Drain(); err != nil {
			b.logger.Warnw("nats_drain_failed", "error", err)
		}
	}
}

func (b *NATSBridge) forward(ctx context.Context, topic services.Topic) {
	subject := b.Subject(topic)
	for {
		sub, err := b.hub.Subscribe(topic)
		if err != nil {
			if errors.Is(err, services.ErrHubClosed) {
				return
			}
			b.logger.Errorw("nats_bridge_subscribe_failed", "topic", topic, "error", err)
		} else {
			b.logger.Infow("nats_bridge_forwarding", "topic", topic, "subject", subject)
			if done := b.pump(ctx, sub, subject); done {
				return
			}
			b.logger.Warnw("nats_bridge_dropped", "topic", topic)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(resubscribeDelay):
		}
	}
}

// pump returns true when ctx ended, false when the hub closed the subscription.
func (b *NATSBridge) pump(ctx context.Context, sub *services.Subscription, subject string) bool {
	for {
		select {
		case <-ctx.Done():
			b.hub.Unsubscribe(sub)
			return true
		case msg, ok := <-sub.C():
			if !ok {
				return false
			}
			if err := b.pub.Publish(subject, msg); err != nil {
				b.logger.Warnw("nats_publish_failed", "subject", subject, "error", err)
			}
		}
	}
}
