// Package mqtt runs a single MQTT subscription session and turns the
// broker's message stream into status events and a live per-topic
// snapshot.
//
// A session is started with [Start] from a [Request] (broker URL,
// optional topic filter, optional credentials) and runs on its own
// goroutine:
//
//	Connecting → Subscribing → Streaming → Draining → Closed
//	                  ↘ Failed (construct, connect or subscribe error)
//
// Setup failures are fatal for the session: they are reported once as
// an error event, the session ends in [StateFailed], and nothing is
// retried. The host decides whether to start a new session.
//
// While streaming, every received message is published to the [Sink]
// as "[<topic>]\n<payload>", classified with [payload.Classify], and
// stored in the session's [snapshot.Store]. Broker deliveries feed a
// bounded [Stream] (300 messages by default) that is opened before the
// subscription is made, so nothing delivered between connect and
// subscribe is lost.
//
// Stopping is cooperative. [Handle.Stop] triggers the session's [Gate],
// which the receive loop polls once per iteration before it waits for
// the next delivery. A session waiting on a silent broker therefore
// only notices the stop when the next message or gap arrives; hosts
// that cannot wait use [Handle.Abort].
//
// Two protocol versions are supported. MQTT v5 (the default) uses
// Eclipse Paho v2's [paho] package and carries the session expiry
// interval; MQTT 3.1.1 uses paho.mqtt.golang for brokers that do not
// speak v5.
package mqtt
