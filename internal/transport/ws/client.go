// Package ws implements the chat channel abstraction over a websocket
// connection to the hub server. One Client multiplexes every channel of a
// process onto a single connection and transparently reconnects.
package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/lanternchat/lantern/internal/chat"
	"github.com/lanternchat/lantern/internal/wire"
)

var (
	ErrNotConnected = errors.New("transport not connected")
	ErrClosed       = errors.New("transport closed")
)

// Client is the websocket transport. It implements chat.ChannelClient.
type Client struct {
	url        string
	sendBuffer int

	mu          sync.Mutex
	conn        *websocket.Conn
	connected   bool
	channels    map[string]*Channel
	pendingAcks map[string]chan wire.Frame

	sendCh      chan []byte
	reconnectCh chan struct{}
	done        chan struct{}
	closeOnce   sync.Once
}

// Dial connects to the hub at url and starts the connection supervisor.
func Dial(ctx context.Context, url string, sendBuffer int) (*Client, error) {
	if sendBuffer <= 0 {
		sendBuffer = 32
	}
	c := &Client{
		url:         url,
		sendBuffer:  sendBuffer,
		channels:    make(map[string]*Channel),
		pendingAcks: make(map[string]chan wire.Frame),
		sendCh:      make(chan []byte, sendBuffer),
		reconnectCh: make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	go c.supervise()
	return c, nil
}

// Channel returns the named channel, creating it on first use.
func (c *Client) Channel(name string) chat.Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ch, ok := c.channels[name]; ok {
		return ch
	}
	ch := newChannel(c, name)
	c.channels[name] = ch
	return ch
}

// ReleaseChannel forgets the named channel so its resources can be
// reclaimed. The caller is responsible for detaching first.
func (c *Client) ReleaseChannel(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.channels, name)
}

// Close tears the connection down. Channels transition to detached.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		if c.conn != nil {
			_ = c.conn.Close()
		}
		c.mu.Unlock()
	})
}

func (c *Client) connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	go c.readPump(conn)
	go c.writePump(conn)
	log.Info().Str("module", "transport.ws").Str("url", c.url).Msg("connected")
	return nil
}

func (c *Client) readPump(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleDisconnect(err)
			return
		}
		f, err := wire.Decode(data)
		if err != nil {
			log.Warn().Err(err).Str("module", "transport.ws").Msg("malformed frame")
			continue
		}
		c.route(f)
	}
}

func (c *Client) writePump(conn *websocket.Conn) {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.sendCh:
			if err := conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}

func (c *Client) route(f wire.Frame) {
	if f.ID != "" {
		c.mu.Lock()
		ack, ok := c.pendingAcks[f.ID]
		if ok {
			delete(c.pendingAcks, f.ID)
		}
		c.mu.Unlock()
		if ok {
			ack <- f
			return
		}
	}
	if f.Action != wire.ActionEvent {
		return
	}
	c.mu.Lock()
	ch, ok := c.channels[f.Channel]
	c.mu.Unlock()
	if !ok {
		return
	}
	ch.dispatchMessage(chat.ChannelMessage{Event: f.Event, Data: f.Data})
}

// handleDisconnect fails outstanding requests, suspends attached channels,
// and asks the supervisor to reconnect.
func (c *Client) handleDisconnect(cause error) {
	select {
	case <-c.done:
		return
	default:
	}

	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return
	}
	c.connected = false
	pending := c.pendingAcks
	c.pendingAcks = make(map[string]chan wire.Frame)
	channels := make([]*Channel, 0, len(c.channels))
	for _, ch := range c.channels {
		channels = append(channels, ch)
	}
	c.mu.Unlock()

	log.Warn().Err(cause).Str("module", "transport.ws").Msg("connection lost")
	for _, ack := range pending {
		close(ack)
	}
	reason := chat.WrapError(chat.ErrCodeInternal, "transport connection lost", cause)
	for _, ch := range channels {
		ch.suspend(reason)
	}

	select {
	case c.reconnectCh <- struct{}{}:
	default:
	}
}

// supervise re-establishes the connection after a drop and re-attaches the
// channels that were suspended by it.
func (c *Client) supervise() {
	for {
		select {
		case <-c.done:
			return
		case <-c.reconnectCh:
		}

		policy := backoff.NewExponentialBackOff()
		for {
			select {
			case <-c.done:
				return
			default:
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err := c.connect(ctx)
			cancel()
			if err == nil {
				break
			}
			log.Warn().Err(err).Str("module", "transport.ws").Msg("reconnect failed")
			select {
			case <-time.After(policy.NextBackOff()):
			case <-c.done:
				return
			}
		}

		c.mu.Lock()
		channels := make([]*Channel, 0, len(c.channels))
		for _, ch := range c.channels {
			channels = append(channels, ch)
		}
		c.mu.Unlock()
		for _, ch := range channels {
			if ch.State() != chat.ChannelStateSuspended {
				continue
			}
			if err := ch.Attach(context.Background()); err != nil {
				log.Warn().Err(err).Str("module", "transport.ws").Str("channel", ch.Name()).
					Msg("reattach after reconnect failed")
			}
		}
	}
}

// request sends f with a fresh correlation id and waits for the matching
// acknowledgement.
func (c *Client) request(ctx context.Context, f wire.Frame) (wire.Frame, error) {
	f.ID = uuid.NewString()
	ackCh := make(chan wire.Frame, 1)

	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return wire.Frame{}, ErrNotConnected
	}
	c.pendingAcks[f.ID] = ackCh
	c.mu.Unlock()

	cleanup := func() {
		c.mu.Lock()
		delete(c.pendingAcks, f.ID)
		c.mu.Unlock()
	}

	data, err := f.Encode()
	if err != nil {
		cleanup()
		return wire.Frame{}, err
	}
	select {
	case c.sendCh <- data:
	case <-ctx.Done():
		cleanup()
		return wire.Frame{}, ctx.Err()
	case <-c.done:
		cleanup()
		return wire.Frame{}, ErrClosed
	}

	select {
	case ack, ok := <-ackCh:
		if !ok {
			return wire.Frame{}, ErrNotConnected
		}
		if ack.Action == wire.ActionError {
			return ack, chat.NewErrorInfo(chat.ErrorCode(ack.Code), ack.Message)
		}
		return ack, nil
	case <-ctx.Done():
		cleanup()
		return wire.Frame{}, ctx.Err()
	case <-c.done:
		cleanup()
		return wire.Frame{}, ErrClosed
	}
}
