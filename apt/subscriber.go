package apt

import (
	"sync"
	"time"

	"github.com/arloliu/go-apt/logger"
)

// StatusEvent is a decoded message that matched no pending request, or the
// terminal event emitted once when a connection goes down.
//
// Events are shared between subscribers and must be treated as read-only.
type StatusEvent struct {
	// Message is the unsolicited frame. Nil on the terminal event.
	Message *Message
	// Time is when the reader loop decoded the frame.
	Time time.Time
	// Err is a *DeviceError for fault reports. On the terminal event it
	// wraps ErrConnClosed, and the cause of the teardown if there was one.
	Err error
	// Terminal marks the last event a subscription receives.
	Terminal bool
}

// Subscription is a handle returned by Connection.Subscribe.
//
// Events are delivered on C in decode order. The channel is closed right
// after the terminal event, or when Unsubscribe is called.
type Subscription struct {
	hub  *subscriberHub
	ch   chan *StatusEvent
	once sync.Once
}

// C returns the event channel of the subscription.
func (s *Subscription) C() <-chan *StatusEvent {
	return s.ch
}

// Unsubscribe stops delivery and closes C. It is safe to call more than
// once and after the connection has closed.
func (s *Subscription) Unsubscribe() {
	s.hub.remove(s)
}

func (s *Subscription) closeChan() {
	s.once.Do(func() { close(s.ch) })
}

// subscriberHub fans status events out to subscriptions in registration
// order.
//
// Each subscription channel has one slot more than the configured queue
// size. Regular events only use queueSize slots, so the terminal event can
// always be delivered without blocking the reader loop.
type subscriberHub struct {
	mu         sync.Mutex
	subs       []*Subscription
	queueSize  int
	terminated bool
	logger     logger.Logger
	metrics    *ConnectionMetrics
}

func newSubscriberHub(queueSize int, l logger.Logger, metrics *ConnectionMetrics) *subscriberHub {
	return &subscriberHub{
		queueSize: queueSize,
		logger:    l,
		metrics:   metrics,
	}
}

func (h *subscriberHub) add() (*Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.terminated {
		return nil, ErrConnClosed
	}

	sub := &Subscription{hub: h, ch: make(chan *StatusEvent, h.queueSize+1)}
	h.subs = append(h.subs, sub)

	return sub, nil
}

func (h *subscriberHub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i, s := range h.subs {
		if s == sub {
			h.subs = append(h.subs[:i], h.subs[i+1:]...)
			break
		}
	}

	sub.closeChan()
}

// publish delivers evt to every subscription without blocking. A
// subscription whose queue is full loses evt.
func (h *subscriberHub) publish(evt *StatusEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.terminated {
		return
	}

	for i, sub := range h.subs {
		if len(sub.ch) >= h.queueSize {
			h.metrics.incDroppedEventCount()
			h.logger.Warn("apt: subscriber queue full, status event dropped",
				"subscriber", i, "id", evt.Message.ID.String(), "queueSize", h.queueSize)

			continue
		}

		sub.ch <- evt
	}

	h.metrics.incStatusEventCount()
}

// terminate delivers the terminal event to every subscription, closes them
// and rejects further subscriptions. Only the first call has an effect.
func (h *subscriberHub) terminate(evt *StatusEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.terminated {
		return
	}
	h.terminated = true

	for _, sub := range h.subs {
		select {
		case sub.ch <- evt:
		default:
		}
		sub.closeChan()
	}

	h.subs = nil
}

func (h *subscriberHub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.subs)
}
