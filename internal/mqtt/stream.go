package mqtt

import "sync"

// Message is one PUBLISH received from the broker.
type Message struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

// Item is what the stream yields: a message, or a gap when the client
// reported trouble without a message to show for it.
type Item struct {
	Message Message
	Gap     bool
}

// Stream is the bounded queue between the MQTT client's delivery
// callbacks (producers) and the session's receive loop (the single
// consumer). Delivery blocks while the queue is full, which pushes back
// on the client instead of dropping messages.
//
// The producer side ends the stream with End when the connection is
// gone; the consumer still drains everything queued before Next reports
// exhaustion. The consumer side calls Release when it stops reading so
// blocked producers return.
type Stream struct {
	items chan Item

	ended   chan struct{}
	endOnce sync.Once

	released chan struct{}
	relOnce  sync.Once

	// waitHook, when set, is called each time Next is about to block.
	waitHook func()
}

// NewStream creates a stream that buffers up to capacity items.
func NewStream(capacity int) *Stream {
	if capacity <= 0 {
		capacity = DefaultStreamCapacity
	}
	return &Stream{
		items:    make(chan Item, capacity),
		ended:    make(chan struct{}),
		released: make(chan struct{}),
	}
}

// Deliver queues m, blocking while the stream is full. It returns false
// without queuing once the consumer has released the stream.
func (s *Stream) Deliver(m Message) bool {
	return s.put(Item{Message: m})
}

// Gap queues a gap notification.
func (s *Stream) Gap() bool {
	return s.put(Item{Gap: true})
}

func (s *Stream) put(it Item) bool {
	select {
	case <-s.released:
		return false
	default:
	}
	select {
	case s.items <- it:
		return true
	case <-s.released:
		return false
	}
}

// End marks the stream exhausted. Items already queued are still
// returned by Next. Safe to call more than once.
func (s *Stream) End() {
	s.endOnce.Do(func() { close(s.ended) })
}

// Release tells producers the consumer is gone. Pending and future
// deliveries return false. Safe to call more than once.
func (s *Stream) Release() {
	s.relOnce.Do(func() { close(s.released) })
}

// Next blocks until an item is available and returns it. It returns
// false once the stream has ended and every queued item was consumed.
func (s *Stream) Next() (Item, bool) {
	select {
	case it := <-s.items:
		return it, true
	default:
	}

	if s.waitHook != nil {
		s.waitHook()
	}

	select {
	case it := <-s.items:
		return it, true
	case <-s.ended:
		// Drain whatever raced in alongside End.
		select {
		case it := <-s.items:
			return it, true
		default:
			return Item{}, false
		}
	}
}

// Len returns the number of queued items.
func (s *Stream) Len() int {
	return len(s.items)
}
