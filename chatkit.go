// Package chatkit is a client-side engine for a multi-device chat
// service. It keeps a persistent websocket session to the server,
// mirrors conversations and message logs into a local sqlite cache,
// and reconciles local and remote state under unreliable networks.
package chatkit

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/chatkit/bus"
	"github.com/matheus3301/chatkit/config"
	"github.com/matheus3301/chatkit/status"
	"github.com/matheus3301/chatkit/store"
	"github.com/matheus3301/chatkit/transport"
)

// Info is the negotiated identity for one client session.
type Info struct {
	Endpoint string
	UserID   string
	Token    string
	Device   string
}

// wireConn is the live websocket session as the run loop sees it.
// *transport.Conn satisfies it; tests substitute an in-memory fake.
type wireConn interface {
	Messages() <-chan transport.Message
	Send(ctx context.Context, data []byte) error
	Ping(ctx context.Context) error
	Close(reason string) error
}

type dialFunc func(ctx context.Context, opts transport.Options, logger *zap.Logger) (wireConn, int, error)

// Client is the engine facade. Construct with New, wire Handlers, then
// Connect. All exported methods are safe for concurrent use.
type Client struct {
	// Handlers must be assigned before Connect.
	Handlers Handlers

	cfg    *config.Config
	info   Info
	logger *zap.Logger
	db     *store.DB
	bus    *bus.Bus
	state  *status.Machine
	api    *apiClient
	outbox *outbox
	dial   dialFunc

	mu      sync.Mutex
	conn    wireConn
	writeMu sync.Mutex

	lastAlive atomic.Int64

	appActiveCh  chan struct{}
	shutdownCh   chan struct{}
	shutdownOnce sync.Once
	startOnce    sync.Once
	wg           sync.WaitGroup
}

// New opens the local cache, runs migrations, and builds a client
// ready to Connect.
func New(cfg *config.Config, info Info, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg == nil {
		cfg = config.Default()
	}
	path := cfg.DBPath
	if path == "" {
		path = "file::memory:?cache=shared"
	}
	db, err := store.Open(path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Migrate(); err != nil {
		db.Close()
		return nil, err
	}

	b := bus.New()
	c := &Client{
		cfg:         cfg,
		info:        info,
		logger:      logger,
		db:          db,
		bus:         b,
		state:       status.NewMachine(b),
		api:         newAPIClient(http.DefaultClient, info.Endpoint, info.Token),
		appActiveCh: make(chan struct{}, 1),
		shutdownCh:  make(chan struct{}),
	}
	c.outbox = newOutbox(logger)
	c.dial = func(ctx context.Context, opts transport.Options, logger *zap.Logger) (wireConn, int, error) {
		return transport.Dial(ctx, opts, logger)
	}
	return c, nil
}

// Connect starts the connection manager. It returns immediately; the
// Handlers report progress. Calling Connect again is a no-op.
func (c *Client) Connect() error {
	if c.state.Current() == status.Shutdown {
		return ErrShutdown
	}
	c.startOnce.Do(func() {
		c.wg.Add(2)
		go c.run()
		go c.sweepLoop()
	})
	return nil
}

// AppActive signals that the host application came to the foreground.
// If the connection is broken this forces an immediate reconnect
// attempt regardless of backoff state.
func (c *Client) AppActive() {
	select {
	case c.appActiveCh <- struct{}{}:
	default:
	}
}

// Shutdown releases the transport, stops all timers, and closes the
// local cache. Idempotent; outstanding sends fail with "shutdown".
func (c *Client) Shutdown() {
	c.shutdownOnce.Do(func() {
		close(c.shutdownCh)
		if c.state.Current() != status.Shutdown {
			if err := c.state.Transition(status.Shutdown); err != nil {
				c.logger.Warn("shutdown transition", zap.Error(err))
			}
		}
		c.mu.Lock()
		conn := c.conn
		c.conn = nil
		c.mu.Unlock()
		if conn != nil {
			conn.Close("shutdown")
		}
		c.failAllPending("shutdown")
		c.wg.Wait()
		c.bus.Close()
		if err := c.db.Close(); err != nil {
			c.logger.Warn("closing store", zap.Error(err))
		}
	})
}

// ConnectionStatus returns the current connection state.
func (c *Client) ConnectionStatus() status.State {
	return c.state.Current()
}

// LastAliveAt is the time of the last frame sent or received.
func (c *Client) LastAliveAt() time.Time {
	ms := c.lastAlive.Load()
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// UnreadCount sums unread counters across all cached conversations.
func (c *Client) UnreadCount(ctx context.Context) (int64, error) {
	return c.db.UnreadTotal(ctx)
}

// Bus exposes the internal event stream for hosts that prefer channel
// subscriptions over single-slot callbacks.
func (c *Client) Bus() *bus.Bus {
	return c.bus
}

func (c *Client) touchAlive() {
	c.lastAlive.Store(time.Now().UnixMilli())
}

func (c *Client) isShutdown() bool {
	select {
	case <-c.shutdownCh:
		return true
	default:
		return false
	}
}
