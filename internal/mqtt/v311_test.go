package mqtt

import (
	"context"
	"errors"
	"net"
	"net/url"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"
)

func TestV311Client_Options(t *testing.T) {
	req := NewRequest("tcp://broker.local:1883", "", "user", "secret")
	c := &v311Client{url: &url.URL{Scheme: "tcp", Host: "broker.local:1883"}, stream: NewStream(0), logger: testLogger()}
	opts := c.options(req, schemeTCP)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://broker.local:1883" {
		t.Errorf("Servers = %v, want [tcp://broker.local:1883]", opts.Servers)
	}
	if opts.ClientID != "" {
		t.Errorf("ClientID = %q, want empty", opts.ClientID)
	}
	if !opts.CleanSession {
		t.Error("CleanSession = false, want true")
	}
	if opts.KeepAlive != 30 {
		t.Errorf("KeepAlive = %d, want 30", opts.KeepAlive)
	}
	if opts.AutoReconnect || opts.ConnectRetry {
		t.Error("reconnect or connect retry enabled")
	}
	if !opts.Order {
		t.Error("Order = false, want ordered delivery")
	}
	if opts.ConnectTimeout != connectTimeout {
		t.Errorf("ConnectTimeout = %v, want %v", opts.ConnectTimeout, connectTimeout)
	}
	if opts.ProtocolVersion != 4 {
		t.Errorf("ProtocolVersion = %d, want 4", opts.ProtocolVersion)
	}
	if opts.Username != "user" || opts.Password != "secret" {
		t.Errorf("credentials = %q/%q, want user/secret", opts.Username, opts.Password)
	}
	if opts.TLSConfig != nil && opts.TLSConfig.MinVersion != 0 {
		t.Error("TLS configured for a plain tcp broker")
	}
}

func TestV311Client_TLSOptions(t *testing.T) {
	c := &v311Client{url: &url.URL{Scheme: "ssl", Host: "broker.local:8883"}, stream: NewStream(0), logger: testLogger()}
	opts := c.options(NewRequest("ssl://broker.local:8883", "", "", ""), schemeTLS)
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion == 0 {
		t.Error("TLS config not set for an ssl broker")
	}
	if opts.Username != "" {
		t.Errorf("Username = %q, want anonymous", opts.Username)
	}
}

func TestV311Client_ConnectionLostGapThenEnd(t *testing.T) {
	stream := NewStream(0)
	c := &v311Client{url: &url.URL{Scheme: "tcp", Host: "broker:1883"}, stream: stream, logger: testLogger()}
	opts := c.options(NewRequest("tcp://broker:1883", "", "", ""), schemeTCP)
	opts.OnConnectionLost(nil, errors.New("EOF"))

	item, ok := stream.Next()
	if !ok || !item.Gap {
		t.Fatalf("Next() = (%+v, %v), want a gap", item, ok)
	}
	if _, ok := stream.Next(); ok {
		t.Error("Next() = ok after connection loss, want end of stream")
	}
}

func TestV311Transport_UnsupportedScheme(t *testing.T) {
	_, err := v311Transport{}.NewClient(NewRequest("gopher://broker:70", "", "", ""), NewStream(0), testLogger())
	if !errors.Is(err, ErrUnsupportedScheme) {
		t.Errorf("NewClient() error = %v, want ErrUnsupportedScheme", err)
	}
}

// stubToken is a paho token that never completes.
type stubToken struct {
	done chan struct{}
	err  error
}

func (t *stubToken) Wait() bool                     { <-t.done; return true }
func (t *stubToken) WaitTimeout(time.Duration) bool { return false }
func (t *stubToken) Done() <-chan struct{}          { return t.done }
func (t *stubToken) Error() error                   { return t.err }

var _ pahomqtt.Token = (*stubToken)(nil)

func TestWaitToken(t *testing.T) {
	t.Run("completed", func(t *testing.T) {
		tok := &stubToken{done: make(chan struct{}), err: errors.New("refused")}
		close(tok.done)
		if err := waitToken(context.Background(), tok); err == nil || err.Error() != "refused" {
			t.Errorf("waitToken() = %v, want refused", err)
		}
	})
	t.Run("context", func(t *testing.T) {
		tok := &stubToken{done: make(chan struct{})}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := waitToken(ctx, tok); !errors.Is(err, context.Canceled) {
			t.Errorf("waitToken() = %v, want context.Canceled", err)
		}
	})
}

// recordingClient is a paho client that only records Disconnect calls.
// Any other method panics through the nil embedded interface.
type recordingClient struct {
	pahomqtt.Client
	disconnects []uint
}

func (c *recordingClient) IsConnectionOpen() bool { return false }
func (c *recordingClient) IsConnected() bool      { return false }
func (c *recordingClient) Disconnect(quiesce uint) {
	c.disconnects = append(c.disconnects, quiesce)
}

func TestV311Client_DisconnectWithoutOpenConnection(t *testing.T) {
	rc := &recordingClient{}
	c := &v311Client{url: &url.URL{Scheme: "tcp", Host: "broker:1883"}, stream: NewStream(0), logger: testLogger(), client: rc}

	if err := c.Disconnect(); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	if len(rc.disconnects) != 1 || rc.disconnects[0] != disconnectQuiesce {
		t.Errorf("paho Disconnect calls = %v, want one with quiesce %d", rc.disconnects, disconnectQuiesce)
	}
}

func TestV311Client_DisconnectTearsDownAbandonedConnect(t *testing.T) {
	t.Setenv("ALL_PROXY", "")
	t.Setenv("all_proxy", "")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		if _, err := packets.ReadPacket(conn); err != nil {
			conn.Close()
			return
		}
		accepted <- conn
	}()

	req := NewRequest("tcp://"+ln.Addr().String(), "", "", "")
	cl, err := v311Transport{}.NewClient(req, NewStream(0), testLogger())
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	connectErr := make(chan error, 1)
	go func() { connectErr <- cl.Connect(ctx) }()

	var conn net.Conn
	select {
	case conn = <-accepted:
	case <-time.After(5 * time.Second):
		t.Fatal("broker never received CONNECT")
	}
	defer conn.Close()

	// The session gives up while the broker sits on the CONNACK.
	cancel()
	if err := <-connectErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("Connect() error = %v, want context.Canceled", err)
	}
	if err := cl.Disconnect(); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}

	ack := packets.NewControlPacket(packets.Connack).(*packets.ConnackPacket)
	ack.ReturnCode = packets.Accepted
	if err := ack.Write(conn); err != nil {
		t.Fatalf("write CONNACK: %v", err)
	}

	// The client must drop the late connection instead of keeping it open.
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	buf := make([]byte, 64)
	for {
		if _, err := conn.Read(buf); err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				t.Fatal("connection still open after Disconnect, want the client to close it")
			}
			return
		}
	}
}
