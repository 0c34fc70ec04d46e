package rpc

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/stustapay/stustapayd/internal/core/order"
	"github.com/stustapay/stustapayd/internal/metrics"
)

// OrderBookedEvent is the message pushed to event stream subscribers
// whenever an order reaches done.
type OrderBookedEvent struct {
	Type      string          `json:"type"`
	OrderID   int64           `json:"order_id"`
	OrderType order.Type      `json:"order_type"`
	TillID    int64           `json:"till_id"`
	CashierID int64           `json:"cashier_id"`
	ValueSum  decimal.Decimal `json:"value_sum"`
	BookedAt  time.Time       `json:"booked_at"`
}

// NewOrderBookedEvent builds the stream message for a booked order.
func NewOrderBookedEvent(o *order.Order) *OrderBookedEvent {
	bookedAt := time.Now().UTC()
	if o.BookedAt != nil {
		bookedAt = *o.BookedAt
	}
	return &OrderBookedEvent{
		Type:      "order_booked",
		OrderID:   o.ID,
		OrderType: o.Type,
		TillID:    o.TillID,
		CashierID: o.CashierID,
		ValueSum:  o.ValueSum,
		BookedAt:  bookedAt,
	}
}

// subscriber is one websocket client of the event stream. Messages are
// handed over through a buffered channel; the write pump owns the
// network side.
type subscriber struct {
	send  chan []byte
	close chan struct{}
	once  sync.Once
}

func (s *subscriber) shutdown() {
	s.once.Do(func() { close(s.close) })
}

// Hub fans order events out to all connected subscribers. It
// implements the order service's event publisher so bookings never
// block on slow clients: a subscriber whose buffer is full is dropped.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[*subscriber]struct{}
	logger      zerolog.Logger
}

// NewHub creates an empty event hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		subscribers: make(map[*subscriber]struct{}),
		logger:      logger.With().Str("component", "events").Logger(),
	}
}

// OrderBooked publishes a booked order to all subscribers.
func (h *Hub) OrderBooked(o *order.Order) {
	payload, err := json.Marshal(NewOrderBookedEvent(o))
	if err != nil {
		h.logger.Error().Err(err).Int64("order_id", o.ID).Msg("marshal order event")
		return
	}
	h.broadcast(payload)
}

func (h *Hub) broadcast(payload []byte) {
	h.mu.RLock()
	stale := make([]*subscriber, 0)
	for sub := range h.subscribers {
		select {
		case sub.send <- payload:
		default:
			stale = append(stale, sub)
		}
	}
	h.mu.RUnlock()
	for _, sub := range stale {
		h.logger.Warn().Msg("dropping slow event subscriber")
		h.remove(sub)
		sub.shutdown()
	}
}

func (h *Hub) add(sub *subscriber) {
	h.mu.Lock()
	h.subscribers[sub] = struct{}{}
	count := len(h.subscribers)
	h.mu.Unlock()
	metrics.WSConnections.Set(float64(count))
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	delete(h.subscribers, sub)
	count := len(h.subscribers)
	h.mu.Unlock()
	metrics.WSConnections.Set(float64(count))
}

// SubscriberCount reports the number of connected event clients.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Close disconnects every subscriber, used on shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := make([]*subscriber, 0, len(h.subscribers))
	for sub := range h.subscribers {
		subs = append(subs, sub)
	}
	h.subscribers = make(map[*subscriber]struct{})
	h.mu.Unlock()
	for _, sub := range subs {
		sub.shutdown()
	}
	metrics.WSConnections.Set(0)
}
