package mqtt

import (
	"log/slog"
	"time"

	"github.com/nugget/mqttscope/internal/events"
)

// Wire settings every session uses.
const (
	// KeepAlive is the keep-alive interval negotiated with the broker.
	KeepAlive = 30 * time.Second

	// SessionExpiryInterval is sent as the MQTT v5 session expiry
	// property, in seconds. MQTT 3.1.1 has no equivalent.
	SessionExpiryInterval uint32 = 3600

	// SubscribeQoS is the delivery guarantee requested for the
	// subscription (at least once).
	SubscribeQoS byte = 1

	// WildcardTopic is subscribed when the request has no topic.
	WildcardTopic = "#"

	// DefaultStreamCapacity bounds the messages buffered between broker
	// delivery and the receive loop.
	DefaultStreamCapacity = 300

	// disconnectQuiesce is how long (ms) the 3.1.1 client waits for
	// in-flight work when disconnecting.
	disconnectQuiesce = 250

	// connectTimeout bounds the 3.1.1 dial and CONNACK handshake. Paho
	// applies it as an absolute deadline, so zero fails every handshake.
	connectTimeout = 10 * time.Second
)

// Sink receives the events a session publishes. Publish must not block;
// [events.Bus] is the usual implementation. A panicking sink is
// recovered and logged, never propagated to the session.
type Sink interface {
	Publish(events.Event)
}

// Options configures [Start]. The zero value is usable.
type Options struct {
	// Transport builds the broker client. Nil selects the transport for
	// the request's protocol.
	Transport Transport

	// Sink receives status and message events. Nil discards them.
	Sink Sink

	// Logger for structured logging. Uses slog.Default() if nil.
	Logger *slog.Logger

	// StreamCapacity overrides [DefaultStreamCapacity] when positive.
	StreamCapacity int
}

type discardSink struct{}

func (discardSink) Publish(events.Event) {}
