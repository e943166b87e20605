package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/lanternchat/lantern/internal/wire"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Controller terminates websocket connections and translates wire frames
// into hub operations.
type Controller struct {
	hub        *Hub
	limiter    *RateLimiter
	readLimit  int64
	pingPeriod time.Duration
	sendBuffer int
}

func NewController(h *Hub, limiter *RateLimiter, readLimit int64, pingPeriod time.Duration, sendBuffer int) *Controller {
	return &Controller{hub: h, limiter: limiter, readLimit: readLimit, pingPeriod: pingPeriod, sendBuffer: sendBuffer}
}

type wsConn struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func (c *wsConn) TrySend(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- data:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// HandleWS upgrades the request and runs the connection's pumps.
func (ctl *Controller) HandleWS(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "hub").Msg("ws upgrade")
		return
	}
	conn := &wsConn{
		id:   uuid.NewString(),
		conn: ws,
		send: make(chan []byte, ctl.sendBuffer),
	}
	ws.SetReadLimit(ctl.readLimit)
	log.Info().Str("module", "hub").Str("conn", conn.id).Msg("new connection")

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, conn)
}

func (ctl *Controller) writePump(ctx context.Context, c *wsConn) {
	ticker := time.NewTicker(ctl.pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "hub").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "hub").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, c *wsConn) {
	defer func() {
		affected := ctl.hub.DropConn(c.id)
		ctl.limiter.Forget(c.id)
		c.Close()
		for _, name := range affected {
			ctl.publishOccupancy(name)
		}
		log.Info().Str("module", "hub").Str("conn", c.id).Msg("connection closed")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				return
			}
			ctl.handleFrame(c, data)
		}
	}
}

func (ctl *Controller) handleFrame(c *wsConn, data []byte) {
	f, err := wire.Decode(data)
	if err != nil {
		ctl.reply(c, wire.Frame{Action: wire.ActionError, Code: 40000, Message: "malformed frame"})
		return
	}
	switch f.Action {
	case wire.ActionAttach:
		ctl.hub.Subscribe(f.Channel, c.id, c)
		ctl.reply(c, wire.Frame{Action: wire.ActionAttached, ID: f.ID, Channel: f.Channel, Resumed: false})
		ctl.publishOccupancy(f.Channel)
	case wire.ActionDetach:
		ctl.hub.Unsubscribe(f.Channel, c.id)
		ctl.reply(c, wire.Frame{Action: wire.ActionDetached, ID: f.ID, Channel: f.Channel})
		ctl.publishOccupancy(f.Channel)
	case wire.ActionPublish:
		if !ctl.limiter.Allow(c.id) {
			ctl.reply(c, wire.Frame{Action: wire.ActionError, ID: f.ID, Code: 42910,
				Message: "publish rate limit exceeded"})
			return
		}
		ev := wire.Frame{Action: wire.ActionEvent, Channel: f.Channel, Event: f.Event, Data: f.Data}
		encoded, err := ev.Encode()
		if err != nil {
			return
		}
		ctl.hub.Publish(f.Channel, c.id, encoded)
		ctl.reply(c, wire.Frame{Action: wire.ActionEvent, ID: f.ID, Channel: f.Channel})
	default:
		ctl.reply(c, wire.Frame{Action: wire.ActionError, ID: f.ID, Code: 40000,
			Message: fmt.Sprintf("unknown action %q", f.Action)})
	}
}

func (ctl *Controller) reply(c *wsConn, f wire.Frame) {
	data, err := f.Encode()
	if err != nil {
		return
	}
	if err := c.TrySend(data); err != nil {
		log.Warn().Err(err).Str("module", "hub").Str("conn", c.id).Msg("reply dropped")
	}
}

// publishOccupancy pushes fresh counts to the room's occupancy channel
// whenever any of the room's channels gains or loses a subscriber.
func (ctl *Controller) publishOccupancy(channelName string) {
	idx := strings.Index(channelName, "::")
	if idx < 0 {
		return
	}
	room := channelName[:idx]
	payload, err := json.Marshal(map[string]int{
		"connections":     ctl.hub.Occupancy(room + "::messages"),
		"presenceMembers": ctl.hub.Occupancy(room + "::presence"),
	})
	if err != nil {
		return
	}
	ev := wire.Frame{Action: wire.ActionEvent, Channel: room + "::occupancy", Event: "occupancy", Data: payload}
	encoded, err := ev.Encode()
	if err != nil {
		return
	}
	ctl.hub.Publish(room+"::occupancy", "", encoded)
}
