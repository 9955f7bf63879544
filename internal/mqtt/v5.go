package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/paho"
)

// v5Transport builds MQTT v5 clients on Eclipse Paho v2. It uses the
// low-level [paho] client rather than autopaho because a session never
// reconnects.
type v5Transport struct {
	dial dialFunc
}

func (t v5Transport) NewClient(req Request, stream *Stream, logger *slog.Logger) (Client, error) {
	u, err := req.brokerURL()
	if err != nil {
		return nil, err
	}
	if classifyScheme(u.Scheme) == schemeUnsupported {
		return nil, fmt.Errorf("%w: %q (use tcp, mqtt, ssl, tls, mqtts, ws or wss)", ErrUnsupportedScheme, u.Scheme)
	}
	dial := t.dial
	if dial == nil {
		dial = dialBroker
	}
	return &v5Client{
		req:    req,
		url:    u,
		stream: stream,
		logger: logger,
		dial:   dial,
	}, nil
}

type v5Client struct {
	req    Request
	url    *url.URL
	stream *Stream
	logger *slog.Logger
	dial   dialFunc

	mu     sync.Mutex
	client *paho.Client
}

// connectPacket builds the CONNECT packet: empty client ID (assigned by
// the broker), clean start, keep-alive and session expiry.
func (c *v5Client) connectPacket() *paho.Connect {
	expiry := SessionExpiryInterval
	cp := &paho.Connect{
		ClientID:   "",
		KeepAlive:  uint16(KeepAlive / time.Second),
		CleanStart: true,
		Properties: &paho.ConnectProperties{
			SessionExpiryInterval: &expiry,
		},
	}
	if cr := c.req.Credentials; cr != nil {
		cp.UsernameFlag = true
		cp.Username = cr.Username
		cp.PasswordFlag = true
		cp.Password = []byte(cr.Password)
	}
	return cp
}

func (c *v5Client) Connect(ctx context.Context) error {
	conn, err := c.dial(ctx, c.url)
	if err != nil {
		return err
	}

	client := paho.NewClient(paho.ClientConfig{
		Conn: conn,
		OnPublishReceived: []func(paho.PublishReceived) (bool, error){
			c.onPublishReceived,
		},
		OnClientError:      c.onClientError,
		OnServerDisconnect: c.onServerDisconnect,
	})

	ca, err := client.Connect(ctx, c.connectPacket())
	if err != nil {
		conn.Close()
		return err
	}

	c.mu.Lock()
	c.client = client
	c.mu.Unlock()

	fields := []any{"broker", c.url.Redacted()}
	if ca != nil && ca.Properties != nil && ca.Properties.AssignedClientID != "" {
		fields = append(fields, "client_id", ca.Properties.AssignedClientID)
	}
	c.logger.Debug("mqtt v5 connack received", fields...)
	return nil
}

func (c *v5Client) Subscribe(ctx context.Context, filter string, qos byte) error {
	c.mu.Lock()
	client := c.client
	c.mu.Unlock()
	if client == nil {
		return fmt.Errorf("subscribe %q: not connected", filter)
	}

	sa, err := client.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{
			{Topic: filter, QoS: qos},
		},
	})
	if err != nil {
		return err
	}
	if sa != nil {
		for _, code := range sa.Reasons {
			if code >= 0x80 {
				return fmt.Errorf("broker refused %q (reason code 0x%02X)", filter, code)
			}
		}
	}
	return nil
}

func (c *v5Client) Disconnect() error {
	c.mu.Lock()
	client := c.client
	c.client = nil
	c.mu.Unlock()
	if client == nil {
		return nil
	}
	return client.Disconnect(&paho.Disconnect{ReasonCode: 0})
}

func (c *v5Client) onPublishReceived(pr paho.PublishReceived) (bool, error) {
	p := pr.Packet
	c.stream.Deliver(Message{
		Topic:    p.Topic,
		Payload:  p.Payload,
		QoS:      p.QoS,
		Retained: p.Retain,
	})
	return true, nil
}

// onClientError is called when the connection fails underneath the
// client. The session sees a gap, then the end of the stream.
func (c *v5Client) onClientError(err error) {
	c.logger.Warn("mqtt client error", "broker", c.url.Redacted(), "error", err)
	c.stream.Gap()
	c.stream.End()
}

func (c *v5Client) onServerDisconnect(d *paho.Disconnect) {
	fields := []any{"broker", c.url.Redacted()}
	if d != nil {
		fields = append(fields, "reason_code", d.ReasonCode)
		if d.Properties != nil && d.Properties.ReasonString != "" {
			fields = append(fields, "reason", d.Properties.ReasonString)
		}
	}
	c.logger.Info("mqtt broker closed the connection", fields...)
	c.stream.End()
}
