// Package broadcast fans events out to live viewer subscriptions.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kakcer47/BotTG/internal/domain/errs"
	"github.com/kakcer47/BotTG/internal/domain/model"
	"github.com/kakcer47/BotTG/internal/metrics"
)

const DefaultBuffer = 64

var ErrRequesterScoped = errors.New("event is requester scoped")

type Subscription struct {
	ID     string
	userID atomic.Int64
	send   chan model.Event
	done   chan struct{}
	once   sync.Once
	err    atomic.Pointer[error]
}

// Events is drained by the connection writer.
func (s *Subscription) Events() <-chan model.Event {
	return s.send
}

// Done is closed when the hub drops the subscription.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Bind records the viewer identity learned from the first request.
func (s *Subscription) Bind(userID int64) {
	s.userID.Store(userID)
}

func (s *Subscription) UserID() int64 {
	return s.userID.Load()
}

// Err reports why the hub dropped the subscription. It is nil after a plain
// Unsubscribe.
func (s *Subscription) Err() error {
	if err := s.err.Load(); err != nil {
		return *err
	}
	return nil
}

func (s *Subscription) fail(err error) {
	s.err.CompareAndSwap(nil, &err)
}

func (s *Subscription) close() bool {
	closed := false
	s.once.Do(func() {
		close(s.done)
		closed = true
	})
	return closed
}

type Hub struct {
	mu     sync.RWMutex
	subs   map[string]*Subscription
	buffer int
	logger *zap.Logger
}

func NewHub(buffer int, logger *zap.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		subs:   make(map[string]*Subscription),
		buffer: buffer,
		logger: logger,
	}
}

func (h *Hub) Subscribe() *Subscription {
	sub := &Subscription{
		ID:   uuid.NewString(),
		send: make(chan model.Event, h.buffer),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	h.subs[sub.ID] = sub
	metrics.Subscribers.Set(float64(len(h.subs)))
	h.mu.Unlock()
	return sub
}

// Unsubscribe is idempotent.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	if current, ok := h.subs[sub.ID]; ok && current == sub {
		delete(h.subs, sub.ID)
	}
	metrics.Subscribers.Set(float64(len(h.subs)))
	h.mu.Unlock()
	sub.close()
}

// Publish delivers a broadcast-scoped event to every subscription live at
// the time of the call. Slow subscriptions are dropped.
func (h *Hub) Publish(_ context.Context, event model.Event) error {
	if event.Scope() != model.ScopeBroadcast {
		return ErrRequesterScoped
	}

	h.mu.RLock()
	snapshot := make([]*Subscription, 0, len(h.subs))
	for _, sub := range h.subs {
		snapshot = append(snapshot, sub)
	}
	h.mu.RUnlock()

	for _, sub := range snapshot {
		h.deliver(sub, event)
	}
	return nil
}

// SendTo queues event for one subscription regardless of scope.
func (h *Hub) SendTo(sub *Subscription, event model.Event) bool {
	if sub == nil {
		return false
	}
	return h.deliver(sub, event)
}

func (h *Hub) deliver(sub *Subscription, event model.Event) bool {
	select {
	case <-sub.done:
		return false
	default:
	}

	select {
	case sub.send <- event:
		metrics.EventsDeliveredTotal.WithLabelValues(string(event.Type())).Inc()
		return true
	default:
		metrics.SlowConsumersTotal.Inc()
		err := fmt.Errorf("send buffer of %d events is full: %w", cap(sub.send), errs.ErrTransport)
		h.logger.Warn("dropping slow subscription",
			zap.String("subscription_id", sub.ID),
			zap.Int64("user_id", sub.UserID()),
			zap.Error(err),
		)
		sub.fail(err)
		h.Unsubscribe(sub)
		return false
	}
}

// Close drops every subscription; their writers close the connections.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[string]*Subscription)
	metrics.Subscribers.Set(0)
	h.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
