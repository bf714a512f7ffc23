package handlers

import (
	"time"

	"github.com/booner/backend/internal/core/services"
	"github.com/booner/backend/internal/infrastructure/logger"
	"github.com/gofiber/contrib/websocket"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// StreamHub is the part of the broadcast hub a websocket connection uses.
type StreamHub interface {
	Subscribe(topic services.Topic) (*services.Subscription, error)
	Unsubscribe(sub *services.Subscription)
}

type StreamHandler struct {
	hub    StreamHub
	logger *logger.Logger
}

func NewStreamHandler(hub StreamHub, logger *logger.Logger) *StreamHandler {
	return &StreamHandler{hub: hub, logger: logger}
}

// Handle subscribes the connection to topic for as long as it stays open.
// Client messages are read and discarded; they only serve to detect close.
func (h *StreamHandler) Handle(topic services.Topic) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		sub, err := h.hub.Subscribe(topic)
		if err != nil {
			h.logger.Errorw("stream_subscribe_failed", "topic", topic, "error", err)
			c.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()))
			return
		}
		defer h.hub.Unsubscribe(sub)

		h.logger.Infow("stream_connected", "topic", topic, "subscription_id", sub.ID, "remote", c.RemoteAddr().String())

		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := c.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ping := time.NewTicker(pingPeriod)
		defer ping.Stop()

		for {
			select {
			case <-closed:
				h.logger.Infow("stream_disconnected", "topic", topic, "subscription_id", sub.ID)
				return
			case <-ping.C:
				if err := c.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
			case msg, ok := <-sub.C():
				if !ok {
					h.logger.Warnw("stream_subscription_ended", "topic", topic, "subscription_id", sub.ID, "state", sub.State().String())
					c.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "subscriber fell behind"))
					return
				}
				if !sub.Active() {
					return
				}
				c.SetWriteDeadline(time.Now().Add(writeWait))
				if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
					h.logger.Warnw("stream_write_failed", "topic", topic, "subscription_id", sub.ID, "error", err)
					return
				}
			}
		}
	}
}
