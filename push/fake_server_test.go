package push

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/digi-push/idigipush/wire"
)

// fakeServer is a minimal in-process stand-in for the push endpoint,
// grounded on the teacher's client_test.go newTestInstance helper: it
// accepts one connection at a time and lets the test script the
// handshake and any subsequent frames by hand.
type fakeServer struct {
	t  *testing.T
	ln net.Listener
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	return &fakeServer{t: t, ln: ln}
}

func (f *fakeServer) close() { f.ln.Close() }

// accept waits for the next connection.
func (f *fakeServer) accept() net.Conn {
	f.t.Helper()
	conn, err := f.ln.Accept()
	if err != nil {
		f.t.Fatal(err)
	}
	return conn
}

// dialer returns a dialFunc that connects to this fake server regardless
// of the Client's configured Host, for use as Client.dialFunc in tests.
func (f *fakeServer) dialer() dialFunc {
	return func(ctx context.Context) (net.Conn, error) {
		var d net.Dialer
		return d.DialContext(ctx, "tcp", f.ln.Addr().String())
	}
}

// readConnectionRequest reads and returns the raw bytes of one
// ConnectionRequest frame from conn.
func readConnectionRequest(t *testing.T, conn net.Conn) []byte {
	t.Helper()
	h, err := wire.ReadHeader(conn)
	if err != nil {
		t.Fatal(err)
	}
	body, err := wire.ReadBody(conn, h.Length)
	if err != nil {
		t.Fatal(err)
	}
	return append(headerBytes(h), body...)
}

func headerBytes(h wire.Header) []byte {
	return []byte{
		byte(h.Type >> 8), byte(h.Type),
		byte(h.Length >> 24), byte(h.Length >> 16), byte(h.Length >> 8), byte(h.Length),
	}
}

// sendConnectionResponse writes a ConnectionResponse frame with the
// given status code.
func sendConnectionResponse(t *testing.T, conn net.Conn, status uint16) {
	t.Helper()
	frame := []byte{
		0x00, 0x02,
		0x00, 0x00, 0x00, 0x04,
		byte(status >> 8), byte(status),
		0x00, 0x00,
	}
	if _, err := conn.Write(frame); err != nil {
		t.Fatal(err)
	}
}

// sendPublishMessage writes a PublishMessage frame carrying payload.
func sendPublishMessage(t *testing.T, conn net.Conn, blockID uint16, compression uint8, payload []byte) {
	t.Helper()
	body := []byte{
		byte(blockID >> 8), byte(blockID),
		0x00, 0x01, // aggregateCount
		compression,
		0x00, // format
		byte(len(payload) >> 24), byte(len(payload) >> 16), byte(len(payload) >> 8), byte(len(payload)),
	}
	body = append(body, payload...)
	frame := append(headerBytes(wire.Header{Type: wire.TypePublishMessage, Length: uint32(len(body))}), body...)
	if _, err := conn.Write(frame); err != nil {
		t.Fatal(err)
	}
}

// readAck reads one PublishMessageReceived frame and returns (blockID, status).
func readAck(t *testing.T, conn net.Conn) (uint16, uint16) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	h, err := wire.ReadHeader(conn)
	if err != nil {
		t.Fatal(err)
	}
	if h.Type != wire.TypePublishMessageReceived {
		t.Fatalf("frame type = %#x, want PublishMessageReceived", h.Type)
	}
	body, err := wire.ReadBody(conn, h.Length)
	if err != nil {
		t.Fatal(err)
	}
	if len(body) != 4 {
		t.Fatalf("ack body length = %d, want 4", len(body))
	}
	blockID := uint16(body[0])<<8 | uint16(body[1])
	status := uint16(body[2])<<8 | uint16(body[3])
	return blockID, status
}

// newHandshakedSession dials f, completes the handshake with a 200
// response, and returns both the client-side Session and the
// server-side net.Conn for the test to drive further.
func newHandshakedSession(t *testing.T, f *fakeServer, c *Client, cb Callback, monitorID uint32) (*Session, net.Conn) {
	t.Helper()
	type result struct {
		s   *Session
		err error
	}
	done := make(chan result, 1)
	go func() {
		s, err := c.CreateSession(context.Background(), monitorID, cb)
		done <- result{s, err}
	}()

	serverConn := f.accept()
	readConnectionRequest(t, serverConn)
	sendConnectionResponse(t, serverConn, wire.StatusOK)

	r := <-done
	if r.err != nil {
		t.Fatal(r.err)
	}
	return r.s, serverConn
}
