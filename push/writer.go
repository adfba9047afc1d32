package push

import "net"

// writeRequest is a single serialized outbound write: a raw frame bound
// for a specific socket. The shared write queue exists so worker
// goroutines never write directly to sockets, keeping writes to any one
// socket implicitly serialized by the single writer goroutine.
type writeRequest struct {
	conn  net.Conn
	frame []byte
}

// writeLoop is the writer role: it drains the shared write queue and
// writes each frame to its socket. Writes are not retried on failure;
// errors are logged. It exits once the client is closed.
func (c *Client) writeLoop() {
	defer c.wg.Done()
	for {
		select {
		case wr := <-c.writes:
			if _, err := wr.conn.Write(wr.frame); err != nil {
				c.logger().Printf("write error: %v", err)
			}
		case <-c.closed:
			return
		}
	}
}
