package push

import "github.com/digi-push/idigipush/wire"

// callbackJob is one (session, blockId, payload) unit of work: enqueued
// by the multiplexer, consumed exactly once by a worker, then discarded
// after an ack is queued (or dropped, if the callback did not ack).
type callbackJob struct {
	session *Session
	blockID uint16
	payload []byte
}

// worker is one callback-pool worker: it dequeues jobs forever, invokes
// the session's callback off the I/O path, and enqueues an ack on
// success. Workers never touch sockets directly; writes go through the
// shared write queue.
func (c *Client) worker() {
	defer c.wg.Done()
	for {
		select {
		case job := <-c.jobs:
			c.runJob(job)
		case <-c.closed:
			return
		}
	}
}

func (c *Client) runJob(job callbackJob) {
	if !c.invokeCallback(job) {
		return
	}

	conn := job.session.socket()
	if conn == nil {
		// session was stopped/restarted between enqueue and callback
		// completion; there is nothing left to ack on.
		return
	}

	frame := wire.EncodePublishMessageReceived(job.blockID, wire.StatusOK)
	select {
	case c.writes <- writeRequest{conn: conn, frame: frame}:
	case <-c.closed:
	}
}

// invokeCallback runs the user callback, recovering a panic as a logged
// non-ack rather than letting it crash the process.
func (c *Client) invokeCallback(job callbackJob) (ack bool) {
	defer func() {
		if r := recover(); r != nil {
			c.logger().Printf("callback panic for monitor %d, block %d: %v", job.session.MonitorID(), job.blockID, r)
			ack = false
		}
	}()
	return job.session.callback(job.payload)
}
