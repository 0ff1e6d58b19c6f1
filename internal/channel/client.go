// Package channel maintains the authenticated event channel to the archive
// server and republishes its frames on the bus.
package channel

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/matheus3301/wpparchive/internal/bus"
	"go.uber.org/zap"
)

const (
	defaultReconnectMin = time.Second
	defaultReconnectMax = 30 * time.Second

	// jitter is uniform in [0, backoff/jitterDivisor).
	jitterDivisor = 2

	readLimit = 4 << 20
)

// ErrUnauthorized is returned by a DialFunc when the server rejected the credential.
var ErrUnauthorized = errors.New("channel: unauthorized")

// Conn abstracts the WebSocket connection so the client can be tested
// without a real server. *websocket.Conn satisfies this interface.
type Conn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
}

// DialFunc opens a channel connection authenticated with token.
type DialFunc func(ctx context.Context, url, token string) (Conn, error)

// Options configures a Client.
type Options struct {
	URL          string
	Bus          *bus.Bus
	Logger       *zap.Logger
	Dial         DialFunc
	ReconnectMin time.Duration
	ReconnectMax time.Duration
}

// Client owns at most one live channel at a time. The channel is bound to
// the credential passed to SetCredential.
type Client struct {
	opts   Options
	logger *zap.Logger

	// setMu serializes SetCredential/Close.
	setMu sync.Mutex

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
	done   chan struct{}
	conn   Conn

	writeMu sync.Mutex
}

// New creates a client with no channel.
func New(opts Options) *Client {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Dial == nil {
		opts.Dial = Dial
	}
	if opts.ReconnectMin <= 0 {
		opts.ReconnectMin = defaultReconnectMin
	}
	if opts.ReconnectMax < opts.ReconnectMin {
		opts.ReconnectMax = max(defaultReconnectMax, opts.ReconnectMin)
	}
	return &Client{opts: opts, logger: opts.Logger.Named("channel")}
}

// Dial is the default DialFunc. The token is sent as a bearer credential on
// the upgrade request.
func Dial(ctx context.Context, url, token string) (Conn, error) {
	conn, resp, err := websocket.Dial(ctx, url, &websocket.DialOptions{ //nolint:bodyclose // websocket.Dial closes the response body internally
		HTTPHeader: http.Header{
			"Authorization": []string{"Bearer " + token},
		},
	})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("dialing channel: %w", err)
	}
	conn.SetReadLimit(readLimit)
	return conn, nil
}

// SetCredential replaces the channel. The previous channel is fully torn
// down before a new one is opened; an empty token leaves no channel.
func (c *Client) SetCredential(token string) {
	c.setMu.Lock()
	defer c.setMu.Unlock()

	c.teardown("credential changed")
	if token == "" {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	go c.run(ctx, gen, token, done)
}

// Close tears down the current channel, if any.
func (c *Client) Close() {
	c.setMu.Lock()
	defer c.setMu.Unlock()
	c.teardown("closed")
}

// teardown cancels the running channel, waits for its goroutine and
// publishes a single disconnected event if it was connected. Caller holds setMu.
func (c *Client) teardown(reason string) {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	wasConnected := c.conn != nil
	// Bumping the generation fences any publish racing with the cancel.
	c.gen++
	c.cancel, c.done, c.conn = nil, nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done

	if wasConnected && c.opts.Bus != nil {
		c.opts.Bus.Publish(bus.Event{Kind: KindDisconnected, Payload: reason})
	}
}

// Connected reports whether a channel is currently open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Emit sends an event frame. It is a no-op when no channel is open.
func (c *Client) Emit(ctx context.Context, event string, payload any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		c.logger.Debug("emit dropped, not connected", zap.String("event", event))
		return nil
	}

	data, err := encodeFrame(event, payload)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", event, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("writing %s: %w", event, err)
	}
	return nil
}

// JoinRoom subscribes the channel to a chat room.
func (c *Client) JoinRoom(ctx context.Context, room string) error {
	return c.Emit(ctx, EventJoinRoom, room)
}

// LeaveRoom unsubscribes the channel from a chat room.
func (c *Client) LeaveRoom(ctx context.Context, room string) error {
	return c.Emit(ctx, EventLeaveRoom, room)
}

func (c *Client) run(ctx context.Context, gen uint64, token string, done chan struct{}) {
	defer close(done)

	backoff := c.opts.ReconnectMin
	for {
		c.logger.Debug("dialing", zap.String("url", c.opts.URL))
		conn, err := c.opts.Dial(ctx, c.opts.URL, token)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, ErrUnauthorized) {
				c.logger.Warn("channel credential rejected")
				c.publish(gen, KindUnauthorized, nil)
				return
			}
			c.logger.Warn("channel connect failed",
				zap.Error(err),
				zap.Duration("backoff", backoff),
			)
			c.publish(gen, KindConnectError, err.Error())
			if !c.sleep(ctx, backoff) {
				return
			}
			backoff = min(backoff*2, c.opts.ReconnectMax)
			continue
		}

		backoff = c.opts.ReconnectMin
		if !c.attach(gen, conn) {
			conn.Close(websocket.StatusNormalClosure, "superseded")
			return
		}
		c.logger.Info("channel connected")
		c.publish(gen, KindConnected, nil)

		err = c.readLoop(ctx, gen, conn)
		conn.Close(websocket.StatusNormalClosure, "bye")
		if ctx.Err() != nil {
			// Teardown publishes the disconnect itself.
			return
		}
		c.detach(gen)
		c.logger.Warn("channel lost, reconnecting", zap.Error(err))
		c.publish(gen, KindDisconnected, err.Error())

		if !c.sleep(ctx, backoff) {
			return
		}
	}
}

func (c *Client) readLoop(ctx context.Context, gen uint64, conn Conn) error {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageText {
			continue
		}
		kind, payload, ok := decodeFrame(data, time.Now())
		if !ok {
			c.logger.Debug("dropping unknown frame", zap.ByteString("frame", data))
			continue
		}
		c.publish(gen, kind, payload)
	}
}

// publish emits an event only while gen is still the live generation. The
// bus may block on a reliable subscriber, so mu is released first; teardown
// waits for run to exit, which keeps its own disconnect event last.
func (c *Client) publish(gen uint64, kind string, payload any) {
	c.mu.Lock()
	live := gen == c.gen
	c.mu.Unlock()
	if !live || c.opts.Bus == nil {
		return
	}
	c.opts.Bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now(), Payload: payload})
}

func (c *Client) attach(gen uint64, conn Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return false
	}
	c.conn = conn
	return true
}

func (c *Client) detach(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen == c.gen {
		c.conn = nil
	}
}

func (c *Client) sleep(ctx context.Context, backoff time.Duration) bool {
	var jitter time.Duration
	if n := int64(backoff) / jitterDivisor; n > 0 {
		jitter = time.Duration(rand.Int64N(n)) //nolint:gosec // reconnect jitter, no security impact
	}
	timer := time.NewTimer(backoff + jitter)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
