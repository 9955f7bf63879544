package mqtt

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/nugget/mqttscope/internal/config"
)

// Protocol selects the MQTT protocol version a session speaks.
type Protocol string

const (
	// ProtocolV5 is MQTT 5.0, the default.
	ProtocolV5 Protocol = config.ProtocolV5
	// ProtocolV311 is MQTT 3.1.1.
	ProtocolV311 Protocol = config.ProtocolV311
)

// Credentials are sent on connect. Both fields are non-empty whenever a
// Request carries them.
type Credentials struct {
	Username string
	Password string
}

// Request describes one connection attempt. It is a value: the session
// copies it at start and never modifies it.
type Request struct {
	// URL is the broker URI; its scheme selects the transport.
	URL string
	// Topic is the subscription filter. Empty means [WildcardTopic].
	Topic string
	// Credentials is nil when the connection is anonymous.
	Credentials *Credentials
	// Protocol defaults to [ProtocolV5] when empty.
	Protocol Protocol
}

// NewRequest builds a Request from raw form input. An empty topic is
// treated as absent, and credentials are attached only when both the
// username and the password are non-empty.
func NewRequest(brokerURL, topic, username, password string) Request {
	r := Request{
		URL:      strings.TrimSpace(brokerURL),
		Topic:    topic,
		Protocol: ProtocolV5,
	}
	if username != "" && password != "" {
		r.Credentials = &Credentials{Username: username, Password: password}
	}
	return r
}

// RequestFromConfig builds a Request from the broker section of the
// configuration.
func RequestFromConfig(cfg config.BrokerConfig) (Request, error) {
	proto, err := config.NormalizeProtocol(cfg.Protocol)
	if err != nil {
		return Request{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	r := NewRequest(cfg.URL, cfg.Topic, cfg.Username, cfg.Password)
	r.Protocol = Protocol(proto)
	return r, nil
}

// EffectiveTopic returns the filter the session subscribes to.
func (r Request) EffectiveTopic() string {
	if r.Topic == "" {
		return WildcardTopic
	}
	return r.Topic
}

// Validate checks that the request names a broker. Scheme support is
// checked later by the transport, where a failure is reported as a
// client creation error.
func (r Request) Validate() error {
	if r.URL == "" {
		return fmt.Errorf("%w: broker URL is required", ErrInvalidRequest)
	}
	if _, err := r.brokerURL(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	switch r.Protocol {
	case "", ProtocolV5, ProtocolV311:
	default:
		return fmt.Errorf("%w: unknown protocol %q", ErrInvalidRequest, r.Protocol)
	}
	if c := r.Credentials; c != nil && (c.Username == "" || c.Password == "") {
		return fmt.Errorf("%w: credentials need both username and password", ErrInvalidRequest)
	}
	return nil
}

// brokerURL parses URL and requires a scheme and a host.
func (r Request) brokerURL() (*url.URL, error) {
	u, err := url.Parse(r.URL)
	if err != nil {
		return nil, fmt.Errorf("parse broker URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("broker URL %q needs a scheme and host (e.g. tcp://localhost:1883)", r.URL)
	}
	return u, nil
}

// LogValue implements [slog.LogValuer] so a Request can be logged
// without exposing the password.
func (r Request) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("url", r.URL),
		slog.String("topic", r.EffectiveTopic()),
		slog.String("protocol", string(r.protocol())),
	}
	if r.Credentials != nil {
		attrs = append(attrs, slog.String("username", r.Credentials.Username))
	}
	return slog.GroupValue(attrs...)
}

func (r Request) protocol() Protocol {
	if r.Protocol == "" {
		return ProtocolV5
	}
	return r.Protocol
}
