package push

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/digi-push/idigipush/wire"
)

const (
	plainPort = 3200
	tlsPort   = 3201

	// handshakeTimeout is the hard deadline for reading the
	// ConnectionResponse, per spec: the socket blocks for up to 10
	// seconds during the handshake only.
	handshakeTimeout = 10 * time.Second
)

// Callback is invoked with a PublishMessage payload. A truthy return
// acknowledges the message to the server; a falsy return or a callback
// panic results in no ack being sent.
type Callback func(payload []byte) bool

// Credentials authenticate a ConnectionRequest.
type Credentials struct {
	Username []byte
	Password []byte
}

var nextSessionSeq uint64

// SessionID identifies a Session's current live socket. It changes every
// time the session is (re)started, which is what lets the registry be
// keyed by "current socket identity" as spec.md requires.
type SessionID uint64

func newSessionID() SessionID {
	return SessionID(atomic.AddUint64(&nextSessionSeq, 1))
}

// Session owns one push-transport connection bound to a single Monitor.
// At most one socket is live per Session: conn is either nil (stopped) or
// connected and past the handshake.
type Session struct {
	monitorID uint32
	callback  Callback
	client    *Client

	mu   sync.Mutex
	conn net.Conn
	sid  SessionID
}

// MonitorID returns the id of the Monitor this session is bound to.
func (s *Session) MonitorID() uint32 { return s.monitorID }

// id returns the session's current socket identity; it is zero if the
// session has never been started.
func (s *Session) id() SessionID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sid
}

func (s *Session) socket() net.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// Start opens the transport socket, performs the ConnectionRequest/
// ConnectionResponse handshake, and registers the session with its
// client. It fails with ErrAlreadyStarted if the socket is already live.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.conn != nil {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.mu.Unlock()

	conn, err := s.client.dialFunc(ctx)
	if err != nil {
		return &TransportError{Op: "dial", Err: err}
	}

	if err := s.handshake(conn); err != nil {
		conn.Close()
		return err
	}

	sid := newSessionID()
	s.mu.Lock()
	s.conn = conn
	s.sid = sid
	s.mu.Unlock()

	s.client.register(sid, s)
	go s.client.readSession(s, conn)
	return nil
}

// handshake runs the ConnectionRequest/ConnectionResponse exchange on a
// freshly dialed conn. On any failure the caller closes conn.
func (s *Session) handshake(conn net.Conn) error {
	req, err := wire.EncodeConnectionRequest(s.client.creds.Username, s.client.creds.Password, s.monitorID)
	if err != nil {
		return &HandshakeError{Reason: err.Error()}
	}
	if _, err := conn.Write(req); err != nil {
		return &TransportError{Op: "write connection request", Err: err}
	}

	if err := conn.SetReadDeadline(time.Now().Add(handshakeTimeout)); err != nil {
		return &TransportError{Op: "set handshake deadline", Err: err}
	}

	resp := make([]byte, wire.ConnectionResponseLen)
	if _, err := readFull(conn, resp); err != nil {
		return &HandshakeError{Reason: fmt.Sprintf("reading connection response: %v", err)}
	}

	status, err := wire.DecodeConnectionResponse(resp)
	if err != nil {
		return &HandshakeError{Reason: err.Error()}
	}
	if status != wire.StatusOK {
		return &HandshakeError{Reason: fmt.Sprintf("status code %d", status)}
	}

	// Clear the handshake deadline; steady-state reads have no per-call
	// timeout (slow production is bounded instead by the worker queue).
	return conn.SetReadDeadline(time.Time{})
}

// readFull reads from conn until buf is full, returning the number of
// bytes read so far together with the first read error, if any.
func readFull(conn net.Conn, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		nn, err := conn.Read(buf[n:])
		n += nn
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// Stop closes the session's socket and clears it. It returns
// ErrSessionClosed if the session's socket was already closed (including
// a session that was never started), in which case it does nothing.
func (s *Session) Stop() error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn == nil {
		return ErrSessionClosed
	}
	conn.Close()
	return nil
}

// dialFunc opens the network connection a Session's handshake runs over.
// Client.dialFunc defaults to defaultDial; tests substitute a function
// that redirects to an in-process fake server instead of the fixed
// well-known ports.
type dialFunc func(ctx context.Context) (net.Conn, error)

// defaultDial opens a plaintext or TLS connection to the client's host,
// depending on the Secure flag.
func (c *Client) defaultDial(ctx context.Context) (net.Conn, error) {
	var d net.Dialer
	if !c.Secure {
		return d.DialContext(ctx, "tcp", net.JoinHostPort(c.Host, portStr(plainPort)))
	}

	tlsCfg, err := c.tlsConfig()
	if err != nil {
		return nil, err
	}
	td := tls.Dialer{NetDialer: &d, Config: tlsCfg}
	return td.DialContext(ctx, "tcp", net.JoinHostPort(c.Host, portStr(tlsPort)))
}

// tlsConfig builds the TLS configuration for a secure session. When
// TrustAnchors is set, the peer certificate must chain to one of those
// anchors but its hostname is not checked against the dial address, per
// spec.md §4.2. crypto/tls always performs hostname verification once it
// has a ServerName to check against — including one it infers itself from
// the dial address when Config.ServerName is left empty — so the only way
// to get chain-only verification is InsecureSkipVerify plus a
// VerifyPeerCertificate callback that redoes the chain check by hand.
// When TrustAnchors is empty, the peer certificate is accepted without
// any verification at all.
func (c *Client) tlsConfig() (*tls.Config, error) {
	if c.TrustAnchors == "" {
		return &tls.Config{InsecureSkipVerify: true}, nil
	}
	pool, err := loadCertPool(c.TrustAnchors)
	if err != nil {
		return nil, &TransportError{Op: "load trust anchors", Err: err}
	}
	return &tls.Config{
		InsecureSkipVerify:    true,
		VerifyPeerCertificate: verifyChainOnly(pool),
	}, nil
}

// verifyChainOnly checks that the leaf certificate presented by the peer
// chains to one of roots, without matching any hostname.
func verifyChainOnly(roots *x509.CertPool) func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		if len(rawCerts) == 0 {
			return errors.New("push: no peer certificate presented")
		}
		certs := make([]*x509.Certificate, len(rawCerts))
		for i, raw := range rawCerts {
			cert, err := x509.ParseCertificate(raw)
			if err != nil {
				return fmt.Errorf("push: parse peer certificate: %w", err)
			}
			certs[i] = cert
		}
		intermediates := x509.NewCertPool()
		for _, cert := range certs[1:] {
			intermediates.AddCert(cert)
		}
		_, err := certs[0].Verify(x509.VerifyOptions{
			Roots:         roots,
			Intermediates: intermediates,
		})
		return err
	}
}

func portStr(p int) string {
	return fmt.Sprintf("%d", p)
}
