package mqtt

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/net/proxy"
)

// dialFunc opens the network connection for an MQTT v5 client.
type dialFunc func(ctx context.Context, u *url.URL) (net.Conn, error)

// schemeKind groups broker URL schemes by how they are dialed.
type schemeKind int

const (
	schemeUnsupported schemeKind = iota
	schemeTCP
	schemeTLS
	schemeWS
	schemeWSS
)

func classifyScheme(scheme string) schemeKind {
	switch strings.ToLower(scheme) {
	case "tcp", "mqtt":
		return schemeTCP
	case "ssl", "tls", "mqtts", "tcps":
		return schemeTLS
	case "ws":
		return schemeWS
	case "wss":
		return schemeWSS
	default:
		return schemeUnsupported
	}
}

// defaultPort returns the IANA port for a scheme kind.
func defaultPort(k schemeKind) string {
	switch k {
	case schemeTLS:
		return "8883"
	case schemeWS:
		return "80"
	case schemeWSS:
		return "443"
	default:
		return "1883"
	}
}

// hostPort returns u's host with the scheme's default port filled in.
func hostPort(u *url.URL) string {
	if u.Port() != "" {
		return u.Host
	}
	return net.JoinHostPort(u.Hostname(), defaultPort(classifyScheme(u.Scheme)))
}

// dialBroker connects to the broker named by u. TCP connections honour
// ALL_PROXY/NO_PROXY; websocket connections honour HTTP(S)_PROXY. There
// is no dial timeout beyond ctx.
func dialBroker(ctx context.Context, u *url.URL) (net.Conn, error) {
	switch classifyScheme(u.Scheme) {
	case schemeTCP:
		return dialTCP(ctx, hostPort(u))
	case schemeTLS:
		raw, err := dialTCP(ctx, hostPort(u))
		if err != nil {
			return nil, err
		}
		conn := tls.Client(raw, &tls.Config{
			ServerName: u.Hostname(),
			MinVersion: tls.VersionTLS12,
		})
		if err := conn.HandshakeContext(ctx); err != nil {
			raw.Close()
			return nil, fmt.Errorf("tls handshake: %w", err)
		}
		return conn, nil
	case schemeWS, schemeWSS:
		return dialWebsocket(ctx, u)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
}

func dialTCP(ctx context.Context, addr string) (net.Conn, error) {
	d := proxy.FromEnvironmentUsing(&net.Dialer{KeepAlive: KeepAlive})
	if cd, ok := d.(proxy.ContextDialer); ok {
		return cd.DialContext(ctx, "tcp", addr)
	}
	return d.Dial("tcp", addr)
}

// dialWebsocket opens an MQTT-over-websocket connection using the
// "mqtt" subprotocol.
func dialWebsocket(ctx context.Context, u *url.URL) (net.Conn, error) {
	d := websocket.Dialer{
		Proxy:           http.ProxyFromEnvironment,
		Subprotocols:    []string{"mqtt"},
		TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
	}
	ws, resp, err := d.DialContext(ctx, u.String(), nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial %s: %w (HTTP %d)", u.Redacted(), err, resp.StatusCode)
		}
		return nil, fmt.Errorf("websocket dial %s: %w", u.Redacted(), err)
	}
	return newWSConn(ws), nil
}

// wsConn adapts a websocket connection to net.Conn. MQTT packets are
// written as binary messages; reads stream across message boundaries
// since a packet may span messages.
type wsConn struct {
	*websocket.Conn

	r   io.Reader
	wmu sync.Mutex
}

func newWSConn(ws *websocket.Conn) *wsConn {
	return &wsConn{Conn: ws}
}

func (c *wsConn) Read(p []byte) (int, error) {
	for {
		if c.r == nil {
			_, r, err := c.NextReader()
			if err != nil {
				return 0, err
			}
			c.r = r
		}
		n, err := c.r.Read(p)
		if errors.Is(err, io.EOF) {
			c.r = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (c *wsConn) Write(p []byte) (int, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := c.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *wsConn) SetDeadline(t time.Time) error {
	if err := c.SetReadDeadline(t); err != nil {
		return err
	}
	return c.SetWriteDeadline(t)
}
