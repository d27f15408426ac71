// Package transport implements the two DLNK network channels: the
// unreliable per-display UDP video datagram socket (§4.4) and the TLS/TCP
// signaling stream (§4.5).
package transport

import (
	"fmt"
	"net"

	"github.com/duallink/duallink/internal/logging"
)

var log = logging.L("transport")

// VideoPort returns the UDP video port for display n, per the §4.4 scheme.
func VideoPort(displayIndex int) int { return 7878 + 2*displayIndex }

// SignalingPort returns the TCP signaling port for display n.
func SignalingPort(displayIndex int) int { return 7879 + 2*displayIndex }

// recvBufferBytes is the socket receive buffer size; generous enough to
// absorb a keyframe burst of a few hundred 1404-byte datagrams without the
// kernel dropping packets ahead of the reassembler's read loop.
const recvBufferBytes = 4 << 20

// VideoSender is a connected UDP socket that fires datagrams at one peer
// display endpoint. Send is non-blocking best-effort per §4.4: transport
// errors are returned for counting but never retried.
type VideoSender struct {
	conn *net.UDPConn
}

// DialVideoSender connects a UDP socket to the peer's video port for
// displayIndex.
func DialVideoSender(peerIP net.IP, displayIndex int) (*VideoSender, error) {
	addr := &net.UDPAddr{IP: peerIP, Port: VideoPort(displayIndex)}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial video sender: %w", err)
	}
	return &VideoSender{conn: conn}, nil
}

// Send fires one datagram at the peer. Errors are counted by the caller,
// not retried.
func (s *VideoSender) Send(datagram []byte) error {
	_, err := s.conn.Write(datagram)
	return err
}

// Close releases the underlying socket.
func (s *VideoSender) Close() error { return s.conn.Close() }

// VideoReceiver is a bound UDP socket accepting datagrams for one display.
type VideoReceiver struct {
	conn *net.UDPConn
}

// ListenVideoReceiver binds a UDP socket on the local video port for
// displayIndex across all interfaces.
func ListenVideoReceiver(displayIndex int) (*VideoReceiver, error) {
	addr := &net.UDPAddr{Port: VideoPort(displayIndex)}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen video receiver on port %d: %w", addr.Port, err)
	}
	if err := conn.SetReadBuffer(recvBufferBytes); err != nil {
		log.Warn("failed to set receive buffer size", "error", err)
	}
	return &VideoReceiver{conn: conn}, nil
}

// ReadInto blocks for the next datagram, copying it into buf (which should
// be sized at least fragment.DatagramSize) and returning the byte count.
func (r *VideoReceiver) ReadInto(buf []byte) (int, error) {
	return r.conn.Read(buf)
}

// Close releases the underlying socket.
func (r *VideoReceiver) Close() error { return r.conn.Close() }
