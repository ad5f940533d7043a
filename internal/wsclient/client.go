// Package wsclient keeps a websocket connection to the hub alive for one
// user. After a drop it retries a few times with a fixed delay, then stays
// offline until Reconnect is called.
package wsclient

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"converse-backend/internal/hub"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	DefaultReconnectDelay = time.Second
	DefaultMaxAttempts    = 5
	writeWait             = 10 * time.Second
)

type State int

const (
	Connecting State = iota
	Connected
	Offline
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Offline:
		return "offline"
	default:
		return "closed"
	}
}

var ErrNotConnected = errors.New("not connected")

type Options struct {
	URL    string
	Header http.Header
	UserID int64

	// OnEvent gets every frame the hub sends, replies included. It runs on
	// the read loop, so it must not block.
	OnEvent func(hub.Envelope)
	// OnConnect runs after every successful (re)connect, once identify and
	// the subscriptions were sent.
	OnConnect func()

	ReconnectDelay time.Duration
	MaxAttempts    int
	Dialer         *websocket.Dialer
}

// BearerHeader is the Header option for a token based session.
func BearerHeader(token string) http.Header {
	return http.Header{"Authorization": {"Bearer " + token}}
}

type Client struct {
	sugar *zap.SugaredLogger
	opts  Options

	mutex    sync.Mutex
	conn     *websocket.Conn
	state    State
	channels map[int64]bool

	writeMutex sync.Mutex
	reconnect  chan struct{}
	cancel     context.CancelFunc
	done       chan struct{}
}

func New(sugar *zap.SugaredLogger, opts Options) *Client {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.OnEvent == nil {
		opts.OnEvent = func(hub.Envelope) {}
	}

	return &Client{
		sugar:     sugar,
		opts:      opts,
		state:     Connecting,
		channels:  make(map[int64]bool),
		reconnect: make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

// Start runs the connection loop in the background until ctx is done or
// Close is called.
func (c *Client) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	go c.run(ctx)
}

func (c *Client) Close() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
}

func (c *Client) State() State {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.state
}

func (c *Client) setState(state State) {
	c.mutex.Lock()
	c.state = state
	c.mutex.Unlock()
	c.sugar.Debugf("Websocket client is %s", state)
}

// Reconnect leaves the offline state and starts a new round of attempts.
func (c *Client) Reconnect() {
	select {
	case c.reconnect <- struct{}{}:
	default:
	}
}

func (c *Client) run(ctx context.Context) {
	defer close(c.done)
	defer c.setState(Closed)

	// the first connect and a manual Reconnect dial right away, a dropped
	// connection waits the delay first
	wait := false
	for {
		conn, ok := c.dial(ctx, wait)
		wait = false
		if ctx.Err() != nil {
			return
		}
		if !ok {
			// a Reconnect from before going offline is stale
			select {
			case <-c.reconnect:
			default:
			}
			c.setState(Offline)
			select {
			case <-ctx.Done():
				return
			case <-c.reconnect:
				c.setState(Connecting)
				continue
			}
		}

		stop := context.AfterFunc(ctx, func() { conn.Close() })
		if err := c.handshake(conn); err != nil {
			c.sugar.Debugf("Websocket handshake failed: %v", err)
			conn.Close()
		} else {
			if c.opts.OnConnect != nil {
				c.opts.OnConnect()
			}
			c.readLoop(conn)
		}
		stop()

		c.mutex.Lock()
		c.conn = nil
		c.state = Connecting
		c.mutex.Unlock()

		if ctx.Err() != nil {
			return
		}
		c.sugar.Debugf("Websocket connection lost, reconnecting")
		wait = true
	}
}

// dial tries MaxAttempts times with ReconnectDelay in between. With wait set
// the delay comes before the first attempt too.
func (c *Client) dial(ctx context.Context, wait bool) (*websocket.Conn, bool) {
	for attempt := 1; attempt <= c.opts.MaxAttempts; attempt++ {
		if wait {
			select {
			case <-ctx.Done():
				return nil, false
			case <-time.After(c.opts.ReconnectDelay):
			}
		}
		wait = true

		conn, _, err := c.opts.Dialer.DialContext(ctx, c.opts.URL, c.opts.Header)
		if err == nil {
			return conn, true
		}
		c.sugar.Debugf("Websocket connect attempt %d/%d failed: %v", attempt, c.opts.MaxAttempts, err)
	}
	return nil, false
}

// handshake announces the user and restores every subscription. The hub
// reads frames in order, so nothing has to wait for the replies. Sends from
// other goroutines wait for the write lock, so identify always goes first.
func (c *Client) handshake(conn *websocket.Conn) error {
	c.writeMutex.Lock()
	defer c.writeMutex.Unlock()

	c.mutex.Lock()
	c.conn = conn
	c.state = Connected
	channels := make([]int64, 0, len(c.channels))
	for id := range c.channels {
		channels = append(channels, id)
	}
	c.mutex.Unlock()

	if err := writeFrame(conn, hub.Identify, strconv.FormatInt(c.opts.UserID, 10)); err != nil {
		return err
	}
	for _, id := range channels {
		if err := writeFrame(conn, hub.SubscribeChannel, strconv.FormatInt(id, 10)); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn) {
	defer conn.Close()

	for {
		var envelope hub.Envelope
		if err := conn.ReadJSON(&envelope); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.sugar.Debugf("Websocket read failed: %v", err)
			}
			return
		}
		c.opts.OnEvent(envelope)
	}
}

func writeFrame(conn *websocket.Conn, event string, data any) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(map[string]any{"event": event, "data": data})
}

// Send writes one event if the client is connected right now.
func (c *Client) Send(event string, data any) error {
	c.mutex.Lock()
	conn := c.conn
	connected := c.state == Connected
	c.mutex.Unlock()

	if conn == nil || !connected {
		return ErrNotConnected
	}

	c.writeMutex.Lock()
	defer c.writeMutex.Unlock()
	return writeFrame(conn, event, data)
}

// Subscribe remembers channelID across reconnects and joins its room now if
// connected.
func (c *Client) Subscribe(channelID int64) error {
	c.mutex.Lock()
	c.channels[channelID] = true
	c.mutex.Unlock()

	err := c.Send(hub.SubscribeChannel, strconv.FormatInt(channelID, 10))
	if errors.Is(err, ErrNotConnected) {
		return nil
	}
	return err
}

func (c *Client) Unsubscribe(channelID int64) error {
	c.mutex.Lock()
	delete(c.channels, channelID)
	c.mutex.Unlock()

	err := c.Send(hub.UnsubscribeChannel, strconv.FormatInt(channelID, 10))
	if errors.Is(err, ErrNotConnected) {
		return nil
	}
	return err
}

func (c *Client) Typing(channelID int64) error {
	return c.Send(hub.Typing, hub.TypingPayload{ChannelID: channelID})
}

func (c *Client) StopTyping(channelID int64) error {
	return c.Send(hub.StopTyping, hub.TypingPayload{ChannelID: channelID})
}
