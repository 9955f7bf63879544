package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/url"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// v311Transport builds MQTT 3.1.1 clients on paho.mqtt.golang. The
// session expiry interval has no 3.1.1 equivalent; clean session gives
// the same "start fresh" behaviour.
type v311Transport struct{}

func (v311Transport) NewClient(req Request, stream *Stream, logger *slog.Logger) (Client, error) {
	u, err := req.brokerURL()
	if err != nil {
		return nil, err
	}
	kind := classifyScheme(u.Scheme)
	if kind == schemeUnsupported {
		return nil, fmt.Errorf("%w: %q (use tcp, mqtt, ssl, tls, mqtts, ws or wss)", ErrUnsupportedScheme, u.Scheme)
	}

	c := &v311Client{url: u, stream: stream, logger: logger}
	c.client = pahomqtt.NewClient(c.options(req, kind))
	return c, nil
}

type v311Client struct {
	url    *url.URL
	stream *Stream
	logger *slog.Logger
	client pahomqtt.Client
}

// options builds the paho options: empty client ID, clean session,
// keep-alive, no automatic reconnect or connect retry, ordered
// delivery so a full stream pushes back on the network reader.
func (c *v311Client) options(req Request, kind schemeKind) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(c.url.String())
	opts.SetClientID("")
	opts.SetCleanSession(true)
	opts.SetKeepAlive(KeepAlive)
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetOrderMatters(true)
	opts.SetProtocolVersion(4)

	if cr := req.Credentials; cr != nil {
		opts.SetUsername(cr.Username)
		opts.SetPassword(cr.Password)
	}

	if kind == schemeTLS || kind == schemeWSS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	opts.SetDefaultPublishHandler(c.onMessage)
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.logger.Warn("mqtt connection lost", "broker", c.url.Redacted(), "error", err)
		c.stream.Gap()
		c.stream.End()
	})
	return opts
}

func (c *v311Client) Connect(ctx context.Context) error {
	return waitToken(ctx, c.client.Connect())
}

func (c *v311Client) Subscribe(ctx context.Context, filter string, qos byte) error {
	token := c.client.Subscribe(filter, qos, c.onMessage)
	if err := waitToken(ctx, token); err != nil {
		return err
	}
	if st, ok := token.(*pahomqtt.SubscribeToken); ok {
		for topic, code := range st.Result() {
			if code >= 0x80 {
				return fmt.Errorf("broker refused %q (return code 0x%02X)", topic, code)
			}
		}
	}
	return nil
}

// Disconnect always goes through paho, even when no connection is open:
// a connect abandoned by a cancelled context is still in progress, and
// Disconnect makes paho drop it once the handshake returns. On a client
// that never connected it is a no-op bounded by the quiesce time.
func (c *v311Client) Disconnect() error {
	c.client.Disconnect(disconnectQuiesce)
	return nil
}

func (c *v311Client) onMessage(_ pahomqtt.Client, m pahomqtt.Message) {
	c.stream.Deliver(Message{
		Topic:    m.Topic(),
		Payload:  m.Payload(),
		QoS:      m.Qos(),
		Retained: m.Retained(),
	})
}

// waitToken waits for a paho token or for ctx, whichever comes first.
func waitToken(ctx context.Context, t pahomqtt.Token) error {
	select {
	case <-t.Done():
		return t.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
