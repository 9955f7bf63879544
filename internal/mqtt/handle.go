package mqtt

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/nugget/mqttscope/internal/snapshot"
)

// Handle is the host's view of a running session.
type Handle struct {
	// ID identifies the session in events and logs.
	ID string

	s      *session
	cancel context.CancelFunc
}

// Start validates req and launches a session on its own goroutine. It
// returns an error only for an invalid request; connect and subscribe
// failures are reported through the sink, [Handle.State] and
// [Handle.Err].
//
// Cancelling ctx has the same effect as [Handle.Stop].
func Start(ctx context.Context, req Request, opts Options) (*Handle, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.Protocol == "" {
		req.Protocol = ProtocolV5
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	transport := opts.Transport
	if transport == nil {
		transport = TransportFor(req.Protocol)
	}
	var sink Sink = discardSink{}
	if opts.Sink != nil {
		sink = opts.Sink
	}

	s := &session{
		id:        id.String(),
		req:       req,
		transport: transport,
		sink:      sink,
		logger:    logger.With("session", id.String()),
		store:     snapshot.New(),
		gate:      NewGate(),
		stream:    NewStream(opts.StreamCapacity),
		done:      make(chan struct{}),
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	h := &Handle{ID: s.id, s: s, cancel: cancel}

	go func() {
		select {
		case <-ctx.Done():
			s.gate.Trigger()
		case <-s.done:
		}
	}()
	go func() {
		defer cancel()
		s.run(runCtx)
	}()

	return h, nil
}

// Stop triggers the session's gate. It returns immediately; the session
// acknowledges with a stopped event once the next delivery or gap
// arrives.
func (h *Handle) Stop() {
	h.s.gate.Trigger()
}

// Abort tears the session down without waiting for the broker: it
// triggers the gate, ends the stream and cancels any connect or
// subscribe in flight. A streaming session reports "Session aborted."
// and closes.
func (h *Handle) Abort() {
	select {
	case <-h.s.done:
		return
	default:
	}
	h.s.aborted.Store(true)
	h.s.gate.Trigger()
	h.s.stream.End()
	h.cancel()
}

// Done is closed once the session reaches a terminal state.
func (h *Handle) Done() <-chan struct{} {
	return h.s.done
}

// Wait blocks until the session ends or ctx is done. It returns the
// session's setup error, if any, or ctx's error.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.s.done:
		return h.s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the session's current state.
func (h *Handle) State() State {
	return h.s.State()
}

// Err returns the setup error that failed the session, or nil.
func (h *Handle) Err() error {
	return h.s.Err()
}

// Gate returns the session's cancellation gate.
func (h *Handle) Gate() *Gate {
	return h.s.gate
}

// Snapshot returns the session's topic snapshot. It stays readable after
// the session ends.
func (h *Handle) Snapshot() *snapshot.Store {
	return h.s.store
}
