package push

import (
	"fmt"
	"net"

	"github.com/digi-push/idigipush/wire"
)

// receivedFrame is handed from a session's reader goroutine to the
// multiplexer core. err is set on peer-close or a read failure, in which
// case frame is unset and the session should be restarted.
type receivedFrame struct {
	session *Session
	frame   wire.Frame
	err     error
}

// readSession is the per-session reader role: it owns conn's reads for
// as long as the session's current socket is live, reassembling frames
// and handing them to the multiplexer core over c.frames. This replaces
// the original select(2)-over-many-sockets poll loop with one goroutine
// per live socket feeding a single shared channel — the same logical
// "one reader role" spec.md describes, expressed the idiomatic Go way.
func (c *Client) readSession(s *Session, conn net.Conn) {
	for {
		f, err := wire.Decode(conn)
		if err != nil {
			c.deliverFrame(receivedFrame{session: s, err: err})
			return
		}
		if !c.deliverFrame(receivedFrame{session: s, frame: f}) {
			return
		}
	}
}

// deliverFrame sends rf to the multiplexer core, returning false if the
// client closed first (in which case the reader goroutine should exit
// without looping again).
func (c *Client) deliverFrame(rf receivedFrame) bool {
	select {
	case c.frames <- rf:
		return true
	case <-c.closed:
		return false
	}
}

// multiplex is the multiplexer core: the single goroutine that decodes
// PublishMessage bodies, enqueues callback jobs, and drives session
// restart on peer-close. It is the one place session-registry mutations
// triggered by a read happen, matching spec.md's confinement of registry
// writes to the reader role plus the create/stop-all path.
func (c *Client) multiplex() {
	defer c.wg.Done()
	for {
		select {
		case rf := <-c.frames:
			if rf.err != nil {
				c.handlePeerClose(rf.session)
				continue
			}
			c.handleFrame(rf)
		case <-c.closed:
			c.stopAllSessions()
			return
		}
	}
}

// handleFrame processes one successfully read frame. Non-PublishMessage
// frames are logged and discarded (the body has already been drained by
// readSession, which avoids the upstream implementation's framing
// desync wart — see SPEC_FULL.md §9).
func (c *Client) handleFrame(rf receivedFrame) {
	if rf.frame.Type != wire.TypePublishMessage {
		c.logger().Printf("%v", &ProtocolError{
			Reason: fmt.Sprintf("unexpected frame type %#x on monitor %d", rf.frame.Type, rf.session.MonitorID()),
		})
		return
	}

	pm, err := wire.DecodePublishMessage(rf.frame.Body)
	if err != nil {
		c.logger().Printf("%v", &ProtocolError{Reason: err.Error()})
		return
	}

	payload := pm.Payload
	if pm.Compression == wire.CompressionZlib {
		payload, err = decompress(payload)
		if err != nil {
			c.logger().Printf("%v", &ProtocolError{Reason: "zlib decompression: " + err.Error()})
			return
		}
	}

	// Back-pressure: this send blocks the multiplexer core (and
	// therefore all session reads) when the worker pool's job queue is
	// full. No frame is ever dropped silently.
	select {
	case c.jobs <- callbackJob{session: rf.session, blockID: pm.BlockID, payload: payload}:
	case <-c.closed:
	}
}

// handlePeerClose removes the stale registry entry and attempts to
// restart the session. A failed restart is logged; the session is
// dropped and not automatically retried.
func (c *Client) handlePeerClose(s *Session) {
	if err := c.restart(s); err != nil {
		c.logger().Printf("restart failed for monitor %d: %v", s.MonitorID(), err)
	}
}

// stopAllSessions is run once, by the multiplexer, as it exits: it stops
// every still-registered session's socket.
func (c *Client) stopAllSessions() {
	c.mu.Lock()
	sessions := make([]*Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		sessions = append(sessions, s)
	}
	c.mu.Unlock()

	for _, s := range sessions {
		s.Stop()
	}
}
