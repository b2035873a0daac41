// Package router implements the gateway's single in-process pub/sub hub
// (spec.md §4.1). Every other subsystem joins it through Subscribe,
// Publish and RegisterProtocol; publishers never see subscribers.
package router

import (
	"sync"

	"go.uber.org/zap"
)

// Topic is the closed set of router topics (spec.md §4.1).
type Topic string

const (
	TopicMeshMessage      Topic = "mesh_message"
	TopicBLENotification  Topic = "ble_notification"
	TopicBLEStatus        Topic = "ble_status"
	TopicBLEMessage       Topic = "ble_message" // outbound to BLE
	TopicUDPMessage       Topic = "udp_message" // outbound to UDP
	TopicWebsocketMessage Topic = "websocket_message"
	TopicWebsocketDirect  Topic = "websocket_direct"
)

// Handler processes one published event. A panic or error inside a handler
// is isolated by the router and must never prevent delivery to the other
// subscribers registered on the same topic.
type Handler func(sourceTag string, data any)

// ProtocolSender is the contract a transport adapter registers under a
// protocol name (e.g. "udp", "ble") so the router can hand it outbound
// traffic without depending on the adapter's concrete type.
type ProtocolSender interface {
	Send(data any) error
}

// Router is the pub/sub hub. The subscriber list and protocol map are
// mutated only during startup registration; Publish only reads them, under
// a read lock held just long enough to copy the handler list (mirrors
// spec.md §5's "Shared state policy").
type Router struct {
	log *zap.Logger

	mu          sync.RWMutex
	subscribers map[Topic][]Handler
	protocols   map[string]ProtocolSender

	normalizer *Normalizer
}

// New constructs a Router bound to the operator's own callsign, used by the
// normalizer and suppression oracle to detect self-originated traffic.
func New(log *zap.Logger, myCallsign string) *Router {
	r := &Router{
		log:         log.Named("router"),
		subscribers: make(map[Topic][]Handler),
		protocols:   make(map[string]ProtocolSender),
	}
	r.normalizer = NewNormalizer(myCallsign, r)
	return r
}

// Normalizer exposes the router's normalizer/suppression-oracle instance so
// callers (chiefly the command engine) can reuse the same self-callsign
// configuration.
func (r *Router) Normalizer() *Normalizer { return r.normalizer }

// Subscribe registers handler under topic. Subscribers are invoked in
// registration order on every Publish to that topic.
func (r *Router) Subscribe(topic Topic, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribers[topic] = append(r.subscribers[topic], handler)
}

// RegisterProtocol binds a named transport sender (e.g. "udp", "ble") so
// outbound publishes on its topic can be delivered to the wire.
func (r *Router) RegisterProtocol(name string, sender ProtocolSender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.protocols[name] = sender
}

// Protocol returns the sender registered under name, if any.
func (r *Router) Protocol(name string) (ProtocolSender, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.protocols[name]
	return p, ok
}

// Publish delivers data to every handler subscribed to topic, strictly
// serially and in registration order, isolating each handler's failure
// from its siblings (spec.md §5: "the publisher does not return until
// every subscriber handler has returned or raised").
func (r *Router) Publish(sourceTag string, topic Topic, data any) {
	r.mu.RLock()
	handlers := append([]Handler(nil), r.subscribers[topic]...)
	r.mu.RUnlock()

	for _, h := range handlers {
		r.dispatch(h, sourceTag, topic, data)
	}
}

func (r *Router) dispatch(h Handler, sourceTag string, topic Topic, data any) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("subscriber panicked",
				zap.String("topic", string(topic)),
				zap.Any("panic", rec),
			)
		}
	}()
	h(sourceTag, data)
}
