// Package push implements the push-transport client on top of package
// wire's binary framing: the authenticated session handshake, the many-sessions-over-
// one-loop multiplexer, the callback worker pool, and the session
// restart state machine described by the idigi push protocol.
package push

import (
	"context"
	"sync"
)

const (
	defaultHost           = "developer.idigi.com"
	defaultWorkerPoolSize = 20

	writesCapacity = 64
)

// Option configures a Client at construction time.
type Option func(*Client)

// WithHost overrides the default push endpoint host.
func WithHost(host string) Option {
	return func(c *Client) { c.Host = host }
}

// WithInsecure disables TLS, connecting in plaintext on port 3200
// instead of the default TLS connection on port 3201.
func WithInsecure() Option {
	return func(c *Client) { c.Secure = false }
}

// WithTrustAnchors sets a PEM file of trust anchors the TLS peer
// certificate must chain to. Without this option, secure sessions
// accept the peer certificate without verification.
func WithTrustAnchors(path string) Option {
	return func(c *Client) { c.TrustAnchors = path }
}

// WithWorkerPoolSize overrides the default callback worker pool size (20).
func WithWorkerPoolSize(n int) Option {
	return func(c *Client) { c.WorkerPoolSize = n }
}

// WithLogger overrides the default stderr logger used for diagnostics:
// steady-state protocol errors, callback panics, and restart failures.
func WithLogger(l Logger) Option {
	return func(c *Client) { c.Logger = l }
}

// Client is the push transport façade: it constructs Sessions, owns the
// session registry keyed by current socket identity, lazily starts the
// background writer/multiplexer/worker-pool tasks, and exposes
// CreateSession/StopAll.
type Client struct {
	Host           string
	Secure         bool
	TrustAnchors   string
	WorkerPoolSize int
	Logger         Logger

	creds Credentials

	mu       sync.Mutex
	sessions map[SessionID]*Session

	closed    chan struct{}
	closeOnce sync.Once

	writes chan writeRequest
	frames chan receivedFrame
	jobs   chan callbackJob

	dialFunc dialFunc

	startOnce sync.Once
	wg        sync.WaitGroup
}

// NewClient constructs a push Client. It records credentials and
// configuration but opens no socket; background tasks start lazily at
// the first CreateSession call.
func NewClient(creds Credentials, opts ...Option) *Client {
	c := &Client{
		Host:           defaultHost,
		Secure:         true,
		WorkerPoolSize: defaultWorkerPoolSize,
		creds:          creds,
		sessions:       make(map[SessionID]*Session),
		closed:         make(chan struct{}),
		writes:         make(chan writeRequest, writesCapacity),
		frames:         make(chan receivedFrame),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.jobs = make(chan callbackJob, c.WorkerPoolSize)
	c.dialFunc = c.defaultDial
	return c
}

func (c *Client) logger() Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return defaultLogger()
}

// CreateSession constructs a Session for monitorID, starts it (dial plus
// handshake), registers it, and lazily launches the background tasks.
func (c *Client) CreateSession(ctx context.Context, monitorID uint32, cb Callback) (*Session, error) {
	if monitorID == 0 {
		return nil, ErrNoMonitorID
	}
	select {
	case <-c.closed:
		return nil, ErrClientClosed
	default:
	}

	s := &Session{monitorID: monitorID, callback: cb, client: c}
	if err := s.Start(ctx); err != nil {
		return nil, err
	}

	c.ensureBackgroundTasks()
	return s, nil
}

// ensureBackgroundTasks launches the writer, multiplexer and worker pool
// goroutines the first time it is called; subsequent calls are no-ops.
func (c *Client) ensureBackgroundTasks() {
	c.startOnce.Do(func() {
		c.wg.Add(2 + c.WorkerPoolSize)
		go c.writeLoop()
		go c.multiplex()
		for i := 0; i < c.WorkerPoolSize; i++ {
			go c.worker()
		}
	})
}

func (c *Client) register(sid SessionID, s *Session) {
	c.mu.Lock()
	c.sessions[sid] = s
	c.mu.Unlock()
}

func (c *Client) deregister(sid SessionID) {
	c.mu.Lock()
	delete(c.sessions, sid)
	c.mu.Unlock()
}

// StopAll signals every background task to exit and blocks until the
// writer, multiplexer and worker pool have all exited. By the time the
// multiplexer exits, every registered session has been stopped.
func (c *Client) StopAll() {
	c.closeOnce.Do(func() { close(c.closed) })
	c.wg.Wait()
}

// restart is called by the multiplexer on peer-close. It removes the
// stale registry entry, stops then restarts the session's socket, and
// re-registers it under the new socket identity (Start does the
// re-registration). A failed restart leaves the session dropped from the
// registry; it is not automatically retried.
func (c *Client) restart(s *Session) error {
	c.deregister(s.id())
	if err := s.Stop(); err != nil && err != ErrSessionClosed {
		c.logger().Printf("stopping monitor %d before restart: %v", s.MonitorID(), err)
	}
	return s.Start(context.Background())
}
