package events

import (
	"fmt"
	"time"
)

// Level tags an event by severity. Message events carry broker data
// rather than status and are rendered without a level prefix.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarn    Level = "warn"
	LevelError   Level = "error"
	LevelMessage Level = "message"
)

// Kind constants describe what happened in the session.
const (
	// KindClientError signals the MQTT client could not be constructed.
	KindClientError = "client_error"
	// KindConnectError signals the broker connection attempt failed.
	KindConnectError = "connect_error"
	// KindSubscribeError signals the subscription was refused.
	KindSubscribeError = "subscribe_error"
	// KindConnected signals the session is connected and subscribed.
	// Topic holds the effective subscription filter.
	KindConnected = "connected"
	// KindMessage carries one received message. Topic holds the
	// message topic.
	KindMessage = "message"
	// KindGap signals the stream yielded no message.
	KindGap = "gap"
	// KindStreamEnded signals the broker closed the connection.
	KindStreamEnded = "stream_ended"
	// KindStopped acknowledges a stop request.
	KindStopped = "stopped"
	// KindAborted signals the session was torn down without waiting for
	// the next delivery.
	KindAborted = "aborted"
)

// Event is a single status line published by a session.
type Event struct {
	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"ts"`
	// Session is the ID of the session that published the event.
	Session string `json:"session,omitempty"`
	// Level is the severity tag.
	Level Level `json:"level"`
	// Kind describes what happened.
	Kind string `json:"kind"`
	// Topic is the message topic for KindMessage and the subscription
	// filter for KindConnected.
	Topic string `json:"topic,omitempty"`
	// Text is the human-readable body without the level prefix.
	Text string `json:"text"`
}

// Info builds an info-level event.
func Info(kind, format string, args ...any) Event {
	return newEvent(LevelInfo, kind, fmt.Sprintf(format, args...))
}

// Warn builds a warning event.
func Warn(kind, format string, args ...any) Event {
	return newEvent(LevelWarn, kind, fmt.Sprintf(format, args...))
}

// Error builds an error event.
func Error(kind, format string, args ...any) Event {
	return newEvent(LevelError, kind, fmt.Sprintf(format, args...))
}

// Message builds the event for one received message. Its text is the
// payload as it should be displayed.
func Message(topic, text string) Event {
	e := newEvent(LevelMessage, KindMessage, text)
	e.Topic = topic
	return e
}

func newEvent(level Level, kind, text string) Event {
	return Event{
		Timestamp: time.Now(),
		Level:     level,
		Kind:      kind,
		Text:      text,
	}
}

// Line renders the event the way a display shows it: status events get
// an "[INFO] ", "[WARN] " or "[ERROR] " prefix and messages render as
// "[<topic>]\n<payload>".
func (e Event) Line() string {
	switch e.Level {
	case LevelInfo:
		return "[INFO] " + e.Text
	case LevelWarn:
		return "[WARN] " + e.Text
	case LevelError:
		return "[ERROR] " + e.Text
	default:
		return "[" + e.Topic + "]\n" + e.Text
	}
}
