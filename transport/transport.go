// Package transport carries single-frame JSON requests over a websocket.
package transport

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

const readLimit = 4 * 1024 * 1024

// Message wraps a frame read from the websocket by the reader goroutine.
// A non-nil Err is the final message delivered for a connection.
type Message struct {
	Data []byte
	Err  error
}

// Options configure a single dial attempt.
type Options struct {
	// Endpoint is the server base URL (http or https scheme).
	Endpoint string
	Token    string
	Device   string
}

// Conn is a live websocket connection. A reader goroutine feeds the
// Messages channel; writes may come from any goroutine.
type Conn struct {
	conn   *websocket.Conn
	msgs   chan Message
	cancel context.CancelFunc
}

// StatusCode extracts the HTTP status from a failed dial, or 0 when the
// failure happened before a response arrived.
func StatusCode(resp *http.Response) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode
}

// Dial opens a websocket session against endpoint's connect route. The
// returned error wraps the HTTP status line when the server refused the
// upgrade, so callers can distinguish auth failures from network ones.
func Dial(ctx context.Context, opts Options, logger *zap.Logger) (*Conn, int, error) {
	endpoint := strings.Replace(opts.Endpoint, "http", "ws", 1)
	url := fmt.Sprintf("%s/api/connect?device=%s&nonce=%s", endpoint, opts.Device, nonce())

	logger.Debug("dialing websocket", zap.String("endpoint", opts.Endpoint))

	conn, resp, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Authorization": []string{"Bearer " + opts.Token},
		},
	})
	if err != nil {
		return nil, StatusCode(resp), fmt.Errorf("dialing websocket: %w", err)
	}
	conn.SetReadLimit(readLimit)

	readCtx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		conn:   conn,
		msgs:   make(chan Message, 64),
		cancel: cancel,
	}
	go c.readLoop(readCtx)
	return c, StatusCode(resp), nil
}

// readLoop feeds msgs until a read error occurs. The error is delivered
// as the final message so the event loop sees the disconnect in-band.
func (c *Conn) readLoop(ctx context.Context) {
	for {
		_, data, err := c.conn.Read(ctx)
		select {
		case c.msgs <- Message{Data: data, Err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

// Messages returns the inbound frame channel.
func (c *Conn) Messages() <-chan Message {
	return c.msgs
}

// Send writes a text frame.
func (c *Conn) Send(ctx context.Context, data []byte) error {
	return c.conn.Write(ctx, websocket.MessageText, data)
}

// Ping sends a websocket ping and waits for the pong within ctx.
func (c *Conn) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

// Close tears down the connection and stops the reader goroutine.
func (c *Conn) Close(reason string) error {
	c.cancel()
	return c.conn.Close(websocket.StatusNormalClosure, reason)
}

func nonce() string {
	var b [4]byte
	rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
