// Package push implements the Push Broadcaster (spec §4.6/C9): a periodic
// fan-out of typed snapshots to every live subscriber over a duplex
// connection. Subscribers are bounded mailboxes with drop-oldest
// back-pressure; delivery is best-effort, matching spec.md §9's "producer
// with N bounded mailboxes" design note. No teacher file implements this —
// it is new, built on gorilla/websocket's standard Upgrader/Conn API and
// robfig/cron/v3's @every scheduling, both pulled from the rest of the
// example pack (r3e-network-service_layer, tobi-techy-RAIL-BACKEND-SERVICE).
package push

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/robfig/cron/v3"

	"github.com/marlonbarreto-git/nimbus-payment-orchestrator/internal/logging"
)

// MessageType discriminates the three periodic payloads spec §4.6 names.
type MessageType string

const (
	MessageMetrics      MessageType = "metrics"
	MessageTransactions MessageType = "transactions"
	MessageHealth       MessageType = "health"
)

// Message is one server-originated push frame.
type Message struct {
	Type MessageType `json:"type"`
	Data any         `json:"data"`
}

// Snapshotter produces the three periodic payloads. Implemented by the
// wiring in cmd/server from the Health Aggregator and State Store.
type Snapshotter interface {
	Metrics(ctx context.Context) (any, error)
	RecentTransactions(ctx context.Context) (any, error)
	Health(ctx context.Context) (any, error)
}

const subscriberQueueSize = 16

type subscriber struct {
	conn     *websocket.Conn
	queue    chan Message
	done     chan struct{}
	closeOne sync.Once
}

// Broadcaster maintains the subscriber set and drives the periodic tick.
type Broadcaster struct {
	upgrader websocket.Upgrader

	mu          sync.RWMutex
	subscribers map[*subscriber]struct{}

	snapshotter Snapshotter
	logger      *logging.Logger
	cron        *cron.Cron
}

// New creates a Broadcaster. allowedOrigins configures the websocket
// upgrader's origin check (spec §6's ALLOWED_ORIGINS).
func New(snapshotter Snapshotter, logger *logging.Logger, allowedOrigins []string) *Broadcaster {
	originSet := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		originSet[o] = struct{}{}
	}

	return &Broadcaster{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				if len(originSet) == 0 {
					return true
				}
				_, ok := originSet[r.Header.Get("Origin")]
				return ok
			},
		},
		subscribers: make(map[*subscriber]struct{}),
		snapshotter: snapshotter,
		logger:      logger,
	}
}

// ServeWS upgrades an HTTP connection to the push channel and registers the
// new subscriber. Blocks (reading, discarding) until the client disconnects.
func (b *Broadcaster) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Error("websocket_upgrade_failed", "error", err.Error())
		return
	}

	sub := &subscriber{conn: conn, queue: make(chan Message, subscriberQueueSize), done: make(chan struct{})}
	b.register(sub)
	defer b.unregister(sub)

	go b.writeLoop(sub)
	b.readLoop(sub)
}

func (b *Broadcaster) register(sub *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[sub] = struct{}{}
}

func (b *Broadcaster) unregister(sub *subscriber) {
	b.mu.Lock()
	delete(b.subscribers, sub)
	b.mu.Unlock()
	sub.closeOne.Do(func() {
		close(sub.done)
		_ = sub.conn.Close()
	})
}

// readLoop discards inbound frames; the channel is server-originated only.
// A read error means the client disconnected.
func (b *Broadcaster) readLoop(sub *subscriber) {
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (b *Broadcaster) writeLoop(sub *subscriber) {
	for {
		select {
		case msg := <-sub.queue:
			payload, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			if err := sub.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-sub.done:
			return
		}
	}
}

// enqueue delivers a message to one subscriber, dropping the oldest queued
// message on overflow rather than blocking the broadcast tick.
func enqueue(sub *subscriber, msg Message) {
	select {
	case sub.queue <- msg:
		return
	default:
	}
	select {
	case <-sub.queue:
	default:
	}
	select {
	case sub.queue <- msg:
	default:
	}
}

// Broadcast publishes one message to every live subscriber.
func (b *Broadcaster) Broadcast(msg Message) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subscribers {
		enqueue(sub, msg)
	}
}

// tick publishes all three typed snapshots, per spec §4.6.
func (b *Broadcaster) tick(ctx context.Context) {
	if metrics, err := b.snapshotter.Metrics(ctx); err == nil {
		b.Broadcast(Message{Type: MessageMetrics, Data: metrics})
	} else {
		b.logger.Error("push_tick_metrics_failed", "error", err.Error())
	}
	if transactions, err := b.snapshotter.RecentTransactions(ctx); err == nil {
		b.Broadcast(Message{Type: MessageTransactions, Data: transactions})
	} else {
		b.logger.Error("push_tick_transactions_failed", "error", err.Error())
	}
	if health, err := b.snapshotter.Health(ctx); err == nil {
		b.Broadcast(Message{Type: MessageHealth, Data: health})
	} else {
		b.logger.Error("push_tick_health_failed", "error", err.Error())
	}
}

// Start begins the periodic tick at the given interval spec (cron @every
// syntax, e.g. "@every 1s"). Returns an error if the spec is invalid.
func (b *Broadcaster) Start(ctx context.Context, everySpec string) error {
	b.cron = cron.New()
	_, err := b.cron.AddFunc(everySpec, func() { b.tick(ctx) })
	if err != nil {
		return err
	}
	b.cron.Start()
	return nil
}

// Stop halts the periodic tick and closes every live subscriber connection.
func (b *Broadcaster) Stop() {
	if b.cron != nil {
		stopCtx := b.cron.Stop()
		<-stopCtx.Done()
	}

	b.mu.Lock()
	subs := make([]*subscriber, 0, len(b.subscribers))
	for sub := range b.subscribers {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		b.unregister(sub)
	}
}

// SubscriberCount reports the current number of live subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
