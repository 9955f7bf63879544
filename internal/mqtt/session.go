package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/nugget/mqttscope/internal/config"
	"github.com/nugget/mqttscope/internal/events"
	"github.com/nugget/mqttscope/internal/payload"
	"github.com/nugget/mqttscope/internal/snapshot"
)

// State is a session's position in its lifecycle.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateSubscribing
	StateStreaming
	StateDraining
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateSubscribing:
		return "subscribing"
	case StateStreaming:
		return "streaming"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateClosed || s == StateFailed
}

// session is the state machine behind a [Handle]. Everything except the
// atomics, the client slot and the final error is owned by the run
// goroutine.
type session struct {
	id        string
	req       Request
	transport Transport
	sink      Sink
	logger    *slog.Logger
	store     *snapshot.Store
	gate      *Gate
	stream    *Stream

	state   atomic.Int32
	aborted atomic.Bool

	mu     sync.Mutex
	client Client
	err    error

	done chan struct{}
}

func (s *session) State() State {
	return State(s.state.Load())
}

func (s *session) setState(st State) {
	prev := State(s.state.Swap(int32(st)))
	s.logger.Debug("mqtt session state", "from", prev.String(), "to", st.String())
}

// run drives the session from Connecting to a terminal state. It closes
// done on return; no event is published after that.
func (s *session) run(ctx context.Context) {
	defer close(s.done)

	s.setState(StateConnecting)
	client, err := s.transport.NewClient(s.req, s.stream, s.logger)
	if err != nil {
		s.fail(ErrClientCreate, err,
			events.Error(events.KindClientError, "Error when creating client: %v.", err))
		return
	}
	s.mu.Lock()
	s.client = client
	s.mu.Unlock()

	if err := client.Connect(ctx); err != nil {
		s.fail(ErrConnectionFailed, err,
			events.Error(events.KindConnectError, "MQTT connection failed: %v.", err))
		return
	}

	s.setState(StateSubscribing)
	topic := s.req.EffectiveTopic()
	if err := client.Subscribe(ctx, topic, SubscribeQoS); err != nil {
		s.fail(ErrSubscribeFailed, err,
			events.Error(events.KindSubscribeError, "Failed to subscribe topic: %v.", err))
		return
	}

	s.setState(StateStreaming)
	ev := events.Info(events.KindConnected, "Connected to %s with topic \"%s\".", s.req.URL, topic)
	ev.Topic = topic
	s.emit(ev)
	s.logger.Info("mqtt session streaming", "request", s.req)

	s.receive(ctx)

	s.setState(StateDraining)
	s.release()
	s.setState(StateClosed)
	s.logger.Info("mqtt session closed", "topics", s.store.Len())
}

// receive is the streaming loop. The gate is checked once per
// iteration before the stream is awaited; Next is the only place the
// loop blocks.
func (s *session) receive(ctx context.Context) {
	for {
		if s.gate.Signaled() {
			s.emit(events.Info(events.KindStopped, "Stop signal received."))
			return
		}

		item, ok := s.stream.Next()
		if !ok {
			if s.aborted.Load() {
				s.emit(events.Warn(events.KindAborted, "Session aborted."))
			} else {
				s.emit(events.Info(events.KindStreamEnded, "Broker closed the stream."))
			}
			return
		}

		if item.Gap {
			s.emit(events.Warn(events.KindGap, "No message from the stream."))
			continue
		}
		s.handle(ctx, item.Message)
	}
}

// handle publishes one message and records its classified value.
func (s *session) handle(ctx context.Context, m Message) {
	text := payload.Decode(m.Payload)
	s.emit(events.Message(m.Topic, text))

	v := payload.Classify(m.Payload)
	s.store.Set(m.Topic, v)

	s.logger.Debug("mqtt message received",
		"topic", m.Topic,
		"payload_size", len(m.Payload),
		"kind", v.Kind().String(),
		"qos", m.QoS,
		"retained", m.Retained,
	)
	if s.logger.Enabled(ctx, config.LevelTrace) {
		s.logger.Log(ctx, config.LevelTrace, "mqtt message payload",
			"topic", m.Topic,
			"payload", text,
		)
	}
}

// fail reports a setup failure once and leaves the session in
// StateFailed.
func (s *session) fail(sentinel, cause error, ev events.Event) {
	s.mu.Lock()
	s.err = fmt.Errorf("%w: %w", sentinel, cause)
	s.mu.Unlock()

	s.logger.Error("mqtt session setup failed",
		"request", s.req,
		"state", s.State().String(),
		"error", cause,
	)
	s.emit(ev)
	s.release()
	s.setState(StateFailed)
}

// release unblocks pending deliveries, then disconnects the client.
// Both client libraries wait for their delivery callbacks on
// disconnect, so the stream must be released first.
func (s *session) release() {
	s.stream.Release()

	s.mu.Lock()
	client := s.client
	s.client = nil
	s.mu.Unlock()

	if client != nil {
		if err := client.Disconnect(); err != nil {
			s.logger.Warn("mqtt disconnect failed", "error", err)
		}
	}
}

// emit publishes ev to the sink. A panicking sink is logged and
// otherwise ignored.
func (s *session) emit(ev events.Event) {
	ev.Session = s.id
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("event sink panicked", "kind", ev.Kind, "panic", r)
		}
	}()
	s.sink.Publish(ev)
}

func (s *session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
