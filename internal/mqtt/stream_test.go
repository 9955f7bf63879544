package mqtt

import (
	"testing"
	"time"
)

func TestStream_DefaultCapacity(t *testing.T) {
	s := NewStream(0)
	if got := cap(s.items); got != DefaultStreamCapacity {
		t.Errorf("capacity = %d, want %d", got, DefaultStreamCapacity)
	}
	if got := cap(NewStream(5).items); got != 5 {
		t.Errorf("capacity = %d, want 5", got)
	}
}

func TestStream_OrderAndGaps(t *testing.T) {
	s := NewStream(4)
	s.Deliver(Message{Topic: "a"})
	s.Gap()
	s.Deliver(Message{Topic: "b"})

	want := []Item{{Message: Message{Topic: "a"}}, {Gap: true}, {Message: Message{Topic: "b"}}}
	for i, w := range want {
		got, ok := s.Next()
		if !ok {
			t.Fatalf("item %d: stream ended early", i)
		}
		if got.Gap != w.Gap || got.Message.Topic != w.Message.Topic {
			t.Errorf("item %d = %+v, want %+v", i, got, w)
		}
	}
	if got := s.Len(); got != 0 {
		t.Errorf("Len() = %d, want 0", got)
	}
}

func TestStream_EndDrainsQueued(t *testing.T) {
	s := NewStream(4)
	s.Deliver(Message{Topic: "a"})
	s.Deliver(Message{Topic: "b"})
	s.End()
	s.End()

	for _, topic := range []string{"a", "b"} {
		it, ok := s.Next()
		if !ok || it.Message.Topic != topic {
			t.Fatalf("Next() = (%+v, %v), want %s", it, ok, topic)
		}
	}
	if _, ok := s.Next(); ok {
		t.Error("Next() = ok after the queue drained")
	}
}

func TestStream_DeliverBlocksWhenFull(t *testing.T) {
	s := NewStream(1)
	s.Deliver(Message{Topic: "a"})

	delivered := make(chan bool)
	go func() { delivered <- s.Deliver(Message{Topic: "b"}) }()

	select {
	case <-delivered:
		t.Fatal("Deliver returned while the stream was full")
	case <-time.After(50 * time.Millisecond):
	}

	if it, _ := s.Next(); it.Message.Topic != "a" {
		t.Fatalf("Next() = %+v, want a", it)
	}
	if ok := <-delivered; !ok {
		t.Error("Deliver() = false, want true once space freed")
	}
	if it, _ := s.Next(); it.Message.Topic != "b" {
		t.Errorf("Next() = %+v, want b", it)
	}
}

func TestStream_ReleaseUnblocksProducer(t *testing.T) {
	s := NewStream(1)
	s.Deliver(Message{Topic: "a"})

	delivered := make(chan bool)
	go func() { delivered <- s.Deliver(Message{Topic: "b"}) }()
	s.Release()

	select {
	case ok := <-delivered:
		if ok {
			t.Error("Deliver() = true after Release")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Deliver still blocked after Release")
	}
	if s.Gap() {
		t.Error("Gap() = true after Release")
	}
}

func TestStream_NextWaitsForDelivery(t *testing.T) {
	s := NewStream(1)
	blocked := make(chan struct{})
	s.waitHook = func() { close(blocked) }

	got := make(chan Item)
	go func() {
		it, _ := s.Next()
		got <- it
	}()

	<-blocked
	s.Deliver(Message{Topic: "late"})
	select {
	case it := <-got:
		if it.Message.Topic != "late" {
			t.Errorf("Next() = %+v, want late", it)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Next did not wake on delivery")
	}
}
