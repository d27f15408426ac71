package transport

import (
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/duallink/duallink/internal/wire"
)

// HandshakeTimeout bounds TCP connect and TLS handshake per §5.
const HandshakeTimeout = 5 * time.Second

// SignalingConn wraps a TLS connection carrying length-prefixed JSON
// frames. Writes are serialised with a mutex held only across one frame
// (§4.5, §5); reads are expected to be driven by a single owning goroutine
// per the session FSM's read loop.
type SignalingConn struct {
	conn     *tls.Conn
	writeMu  sync.Mutex
}

// DialSignaling opens a TLS client connection to the receiver's signaling
// port, verifying the peer via cfg's TOFU callback.
func DialSignaling(peerIP net.IP, displayIndex int, cfg *tls.Config) (*SignalingConn, error) {
	addr := fmt.Sprintf("%s:%d", peerIP.String(), SignalingPort(displayIndex))

	dialer := &net.Dialer{Timeout: HandshakeTimeout}
	rawConn, err := dialer.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial signaling %s: %w", addr, err)
	}

	tlsConn := tls.Client(rawConn, cfg)
	tlsConn.SetDeadline(time.Now().Add(HandshakeTimeout))
	if err := tlsConn.Handshake(); err != nil {
		tlsConn.Close()
		return nil, fmt.Errorf("transport: TLS handshake with %s: %w", addr, err)
	}
	tlsConn.SetDeadline(time.Time{})

	return &SignalingConn{conn: tlsConn}, nil
}

// SignalingListener is a TLS server socket accepting one signaling
// connection per display.
type SignalingListener struct {
	ln net.Listener
}

// ListenSignaling binds a TLS server on the local signaling port for
// displayIndex, presenting the receiver's identity.
func ListenSignaling(displayIndex int, cfg *tls.Config) (*SignalingListener, error) {
	addr := fmt.Sprintf(":%d", SignalingPort(displayIndex))
	ln, err := tls.Listen("tcp", addr, cfg)
	if err != nil {
		return nil, fmt.Errorf("transport: listen signaling on %s: %w", addr, err)
	}
	return &SignalingListener{ln: ln}, nil
}

// Accept blocks for the next incoming signaling connection.
func (l *SignalingListener) Accept() (*SignalingConn, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	tlsConn, ok := conn.(*tls.Conn)
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("transport: accepted non-TLS connection")
	}
	tlsConn.SetDeadline(time.Now().Add(HandshakeTimeout))
	if err := tlsConn.Handshake(); err != nil {
		tlsConn.Close()
		return nil, fmt.Errorf("transport: TLS handshake: %w", err)
	}
	tlsConn.SetDeadline(time.Time{})
	return &SignalingConn{conn: tlsConn}, nil
}

// Close stops accepting new connections.
func (l *SignalingListener) Close() error { return l.ln.Close() }

// WriteMessage marshals and frames v, serialised against concurrent
// writers (keepalive task, input-forwarding task, outgoing-message path).
func (c *SignalingConn) WriteMessage(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wire.WriteFrame(c.conn, v)
}

// ReadMessage blocks for the next length-prefixed JSON frame and returns
// its raw bytes for envelope-first dispatch.
func (c *SignalingConn) ReadMessage() ([]byte, error) {
	return wire.ReadFrame(c.conn)
}

// SetReadDeadline forwards to the underlying TLS connection, used by the
// session FSM to enforce the 5-second keepalive-silence disconnect rule.
func (c *SignalingConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// Close closes the underlying TLS connection.
func (c *SignalingConn) Close() error { return c.conn.Close() }

// ConnectionState exposes the negotiated TLS connection state, notably the
// peer certificate chain used for TOFU pinning diagnostics.
func (c *SignalingConn) ConnectionState() tls.ConnectionState {
	return c.conn.ConnectionState()
}
