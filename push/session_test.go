package push

import (
	"context"
	"testing"

	"github.com/digi-push/idigipush/wire"
)

func newTestClient(f *fakeServer) *Client {
	c := NewClient(Credentials{Username: []byte("u"), Password: []byte("p")})
	c.dialFunc = f.dialer()
	return c
}

// TestSessionStartSuccess covers invariant 3: a 200 ConnectionResponse
// lets Start return with a live socket and an assigned session id.
func TestSessionStartSuccess(t *testing.T) {
	f := newFakeServer(t)
	defer f.close()
	c := newTestClient(f)
	defer c.StopAll()

	s, serverConn := newHandshakedSession(t, f, c, func([]byte) bool { return true }, 7)
	defer serverConn.Close()

	if s.socket() == nil {
		t.Fatal("session socket is nil after successful start")
	}
	if s.id() == 0 {
		t.Fatal("session id not assigned after start")
	}
}

// TestSessionStartHandshakeFailure covers invariant 4: a non-200 status
// fails Start with a *HandshakeError and CreateSession returns no session.
func TestSessionStartHandshakeFailure(t *testing.T) {
	f := newFakeServer(t)
	defer f.close()
	c := newTestClient(f)
	defer c.StopAll()

	type result struct {
		s   *Session
		err error
	}
	done := make(chan result, 1)
	go func() {
		s, err := c.CreateSession(context.Background(), 7, func([]byte) bool { return true })
		done <- result{s, err}
	}()

	serverConn := f.accept()
	defer serverConn.Close()
	readConnectionRequest(t, serverConn)
	sendConnectionResponse(t, serverConn, wire.StatusUnauthorized)

	r := <-done
	if r.err == nil {
		t.Fatal("expected handshake error for non-200 status")
	}
	if _, ok := r.err.(*HandshakeError); !ok {
		t.Fatalf("err = %T, want *HandshakeError", r.err)
	}
	if r.s != nil {
		t.Fatal("session should be nil on handshake failure")
	}
}

// TestSessionAlreadyStarted covers the AlreadyStarted error kind.
func TestSessionAlreadyStarted(t *testing.T) {
	f := newFakeServer(t)
	defer f.close()
	c := newTestClient(f)
	defer c.StopAll()

	s, serverConn := newHandshakedSession(t, f, c, func([]byte) bool { return true }, 7)
	defer serverConn.Close()

	if err := s.Start(context.Background()); err != ErrAlreadyStarted {
		t.Fatalf("err = %v, want ErrAlreadyStarted", err)
	}
}

// TestCreateSessionNoMonitorID covers the ConfigError kind.
func TestCreateSessionNoMonitorID(t *testing.T) {
	f := newFakeServer(t)
	defer f.close()
	c := newTestClient(f)
	defer c.StopAll()

	if _, err := c.CreateSession(context.Background(), 0, func([]byte) bool { return true }); err != ErrNoMonitorID {
		t.Fatalf("err = %v, want ErrNoMonitorID", err)
	}
}

func TestStopClearsSocket(t *testing.T) {
	f := newFakeServer(t)
	defer f.close()
	c := newTestClient(f)
	defer c.StopAll()

	s, serverConn := newHandshakedSession(t, f, c, func([]byte) bool { return true }, 7)
	defer serverConn.Close()

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() on a live session: %v", err)
	}
	if s.socket() != nil {
		t.Fatal("socket should be nil after Stop")
	}
}

// TestStopAlreadyStoppedSession covers ErrSessionClosed: a second Stop
// call (or one on a session that was never started) reports the session
// was already closed rather than silently succeeding twice.
func TestStopAlreadyStoppedSession(t *testing.T) {
	f := newFakeServer(t)
	defer f.close()
	c := newTestClient(f)
	defer c.StopAll()

	s, serverConn := newHandshakedSession(t, f, c, func([]byte) bool { return true }, 7)
	defer serverConn.Close()

	if err := s.Stop(); err != nil {
		t.Fatalf("first Stop(): %v", err)
	}
	if err := s.Stop(); err != ErrSessionClosed {
		t.Fatalf("second Stop() err = %v, want ErrSessionClosed", err)
	}

	var never Session
	if err := never.Stop(); err != ErrSessionClosed {
		t.Fatalf("Stop() on a never-started session err = %v, want ErrSessionClosed", err)
	}
}
