package services

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/booner/backend/internal/core/ports"
	"github.com/booner/backend/internal/domain"
	"github.com/booner/backend/internal/infrastructure/logger"
	"github.com/booner/backend/internal/infrastructure/metrics"
	"github.com/google/uuid"
)

type Topic string

const (
	TopicSystemStatus Topic = "system.status"
	TopicTaskUpdates  Topic = "tasks.updates"
)

func (t Topic) Valid() bool {
	return t == TopicSystemStatus || t == TopicTaskUpdates
}

const (
	MessageTypeInitialState = "initial_state"
	MessageTypeTaskUpdate   = "task_update"
)

// TaskMessage is what tasks.updates subscribers receive: one initial_state
// carrying the whole table, then one task_update per transition.
type TaskMessage struct {
	Type  string           `json:"type"`
	Tasks domain.TaskTable `json:"tasks,omitempty"`
	Task  *domain.Task     `json:"task,omitempty"`
}

type SubscriptionState int32

const (
	StateConnected SubscriptionState = iota
	StateSubscribed
	StateUnsubscribed
	StateClosed
)

func (s SubscriptionState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateSubscribed:
		return "subscribed"
	case StateUnsubscribed:
		return "unsubscribed"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Subscription is one subscriber's delivery path. Messages are JSON documents.
// The channel is closed when the subscription ends, whether by Unsubscribe or
// because the subscriber fell behind.
type Subscription struct {
	ID    string
	Topic Topic

	ch    chan []byte
	since uint64
	state atomic.Int32
	once  sync.Once
}

func (s *Subscription) C() <-chan []byte {
	return s.ch
}

func (s *Subscription) State() SubscriptionState {
	return SubscriptionState(s.state.Load())
}

func (s *Subscription) Active() bool {
	return s.State() == StateSubscribed
}

func (s *Subscription) end(state SubscriptionState) bool {
	ended := false
	s.once.Do(func() {
		s.state.Store(int32(state))
		close(s.ch)
		ended = true
	})
	return ended
}

// BroadcastHub fans task transitions and system snapshots out to subscribers.
// Publishing never blocks: a subscriber whose buffer is full is dropped.
type BroadcastHub struct {
	tasks      ports.TaskSource
	bufferSize int
	logger     *logger.Logger

	mu        sync.Mutex
	snapshots ports.SnapshotSource
	subs      map[Topic]map[string]*Subscription
	closed    bool
}

type BroadcastHubConfig struct {
	Tasks      ports.TaskSource
	BufferSize int
	Logger     *logger.Logger
}

func NewBroadcastHub(cfg BroadcastHubConfig) *BroadcastHub {
	size := cfg.BufferSize
	if size < 1 {
		size = 64
	}
	return &BroadcastHub{
		tasks:      cfg.Tasks,
		bufferSize: size,
		logger:     cfg.Logger,
		subs: map[Topic]map[string]*Subscription{
			TopicSystemStatus: {},
			TopicTaskUpdates:  {},
		},
	}
}

// SetSnapshotSource wires the aggregator in after construction.
func (h *BroadcastHub) SetSnapshotSource(src ports.SnapshotSource) {
	h.mu.Lock()
	h.snapshots = src
	h.mu.Unlock()
}

// Subscribe registers a subscriber. tasks.updates subscribers first receive
// the full task table; every later delta is newer than that table.
// system.status subscribers receive the latest snapshot if there is one.
func (h *BroadcastHub) Subscribe(topic Topic) (*Subscription, error) {
	if !topic.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}

	sub := &Subscription{
		ID:    uuid.New().String(),
		Topic: topic,
		ch:    make(chan []byte, h.bufferSize),
	}
	sub.state.Store(int32(StateConnected))

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHubClosed
	}

	switch topic {
	case TopicTaskUpdates:
		// Taken under h.mu so no delta can slip between the table and registration.
		table, seq := h.tasks.ListAll()
		data, err := json.Marshal(TaskMessage{Type: MessageTypeInitialState, Tasks: table})
		if err != nil {
			return nil, fmt.Errorf("hub: encode initial state: %w", err)
		}
		sub.since = seq
		sub.ch <- data
	case TopicSystemStatus:
		if h.snapshots != nil {
			if snap := h.snapshots.Latest(); snap != nil {
				data, err := json.Marshal(snap)
				if err != nil {
					return nil, fmt.Errorf("hub: encode snapshot: %w", err)
				}
				sub.ch <- data
			}
		}
	}

	h.subs[topic][sub.ID] = sub
	sub.state.Store(int32(StateSubscribed))
	metrics.HubSubscribers.WithLabelValues(string(topic)).Inc()
	h.logger.Debugw("hub_subscribed", "topic", topic, "subscription_id", sub.ID)
	return sub, nil
}

// Unsubscribe removes the subscriber and closes its channel. Safe to call
// more than once and after the subscriber was dropped.
func (h *BroadcastHub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	h.remove(sub, StateUnsubscribed)
	h.mu.Unlock()

	// Anything left in the buffer is no longer deliverable.
	for range sub.ch {
	}
}

// Publish encodes message as JSON and delivers it to every subscriber of topic.
func (h *BroadcastHub) Publish(topic Topic, message interface{}) error {
	if !topic.Valid() {
		return fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("hub: encode message: %w", err)
	}

	var seq uint64
	if m, ok := message.(TaskMessage); ok && m.Task != nil {
		seq = m.Task.Seq
	}
	h.deliver(topic, data, seq)
	return nil
}

// PublishTask implements ports.TaskPublisher.
func (h *BroadcastHub) PublishTask(task *domain.Task) {
	if err := h.Publish(TopicTaskUpdates, TaskMessage{Type: MessageTypeTaskUpdate, Task: task}); err != nil {
		h.logger.Errorw("hub_publish_task_failed", "task_id", task.ID, "error", err)
	}
}

// PublishSnapshot implements ports.SnapshotPublisher.
func (h *BroadcastHub) PublishSnapshot(snapshot *domain.SystemSnapshot) {
	if err := h.Publish(TopicSystemStatus, snapshot); err != nil {
		h.logger.Errorw("hub_publish_snapshot_failed", "error", err)
	}
}

func (h *BroadcastHub) deliver(topic Topic, data []byte, seq uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	metrics.HubPublished.WithLabelValues(string(topic)).Inc()
	for _, sub := range h.subs[topic] {
		if seq != 0 && seq <= sub.since {
			continue
		}
		select {
		case sub.ch <- data:
		default:
			h.remove(sub, StateClosed)
			metrics.HubDropped.WithLabelValues(string(topic)).Inc()
			h.logger.Warnw("hub_slow_subscriber_dropped", "topic", topic, "subscription_id", sub.ID, "buffer", h.bufferSize)
		}
	}
}

// remove must be called with h.mu held.
func (h *BroadcastHub) remove(sub *Subscription, state SubscriptionState) {
	if _, ok := h.subs[sub.Topic][sub.ID]; ok {
		delete(h.subs[sub.Topic], sub.ID)
		metrics.HubSubscribers.WithLabelValues(string(sub.Topic)).Dec()
	}
	sub.end(state)
}

func (h *BroadcastHub) SubscriberCount(topic Topic) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[topic])
}

// Close ends every subscription. Later Subscribe calls fail with ErrHubClosed.
func (h *BroadcastHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for _, subs := range h.subs {
		for _, sub := range subs {
			h.remove(sub, StateClosed)
		}
	}
	h.logger.Infow("hub_closed")
}
