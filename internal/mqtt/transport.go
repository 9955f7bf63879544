package mqtt

import (
	"context"
	"log/slog"
)

// Transport builds broker clients for one protocol version.
type Transport interface {
	// NewClient builds a client for req that feeds received messages
	// into stream. It must not touch the network; a failure here is a
	// client creation error.
	NewClient(req Request, stream *Stream, logger *slog.Logger) (Client, error)
}

// Client is one broker connection as seen by a session. Connect and
// Subscribe are called once each, in that order, from the session
// goroutine. Disconnect may be called in any state, including after a
// failed Connect.
type Client interface {
	// Connect opens the network connection and performs the MQTT
	// handshake with clean start, [KeepAlive], an automatically assigned
	// client identifier and the request's credentials.
	Connect(ctx context.Context) error
	// Subscribe subscribes to filter at qos and returns an error if the
	// broker refuses it.
	Subscribe(ctx context.Context, filter string, qos byte) error
	// Disconnect closes the connection. Messages arriving afterwards are
	// not delivered to the stream.
	Disconnect() error
}

// TransportFor returns the transport for a protocol version.
func TransportFor(p Protocol) Transport {
	if p == ProtocolV311 {
		return v311Transport{}
	}
	return v5Transport{dial: dialBroker}
}
