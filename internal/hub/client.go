package hub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"converse-backend/internal/apperr"
	"converse-backend/internal/metrics"

	"github.com/gorilla/websocket"
)

// client is one websocket connection. Everything but send and done is only
// touched by the goroutine running readPump.
type client struct {
	hub      *Hub
	conn     *websocket.Conn
	id       string
	identity Identity
	ctx      context.Context

	identified bool
	rooms      map[int64]struct{}

	send chan []byte
	done chan struct{}
}

// enqueue never blocks, a client that can't keep up loses the event.
func (c *client) enqueue(frame []byte) {
	select {
	case c.send <- frame:
	default:
		metrics.EventsDropped.WithLabelValues("queue_full").Inc()
		c.hub.sugar.Warnf("Send queue of connection [%s] is full, dropping event", c.id)
	}
}

func (c *client) reply(event string, data any) {
	frame, err := PrepareMessage(event, data)
	if err != nil {
		c.hub.sugar.Error(err)
		return
	}
	c.enqueue(frame)
}

func (c *client) replyError(event string, message string) {
	c.reply(Error, ErrorPayload{Event: event, Message: message})
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.hub.sugar.Debug(err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.sugar.Debug(err)
				return
			}
		case <-c.done:
			c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		}
	}
}

func (c *client) readPump() {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		if c.identified {
			c.hub.refreshPresence(c)
		}
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.hub.sugar.Debugf("Connection [%s] closed: %v", c.id, err)
			}
			return
		}
		c.handle(data)
	}
}

func (c *client) handle(data []byte) {
	var envelope Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		c.replyError("", "Malformed frame")
		return
	}

	switch envelope.Event {
	case Identify:
		c.identify(envelope.Data)
	case SubscribeChannel:
		c.subscribe(envelope.Data)
	case UnsubscribeChannel:
		c.unsubscribe(envelope.Data)
	case Typing, StopTyping:
		c.relayTyping(envelope.Event, envelope.Data)
	default:
		c.replyError(envelope.Event, "Unknown event")
	}
}

// decodeID accepts an id as a JSON string or number.
func decodeID(raw json.RawMessage) (int64, error) {
	var id int64
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, err
		}
		parsed, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, err
		}
		id = parsed
	} else if err := json.Unmarshal(raw, &id); err != nil {
		return 0, err
	}

	if id <= 0 {
		return 0, fmt.Errorf("id must be positive")
	}
	return id, nil
}

// identify moves the connection to Identified. The announced id has to be
// the one the upgrade credential was issued for.
func (c *client) identify(raw json.RawMessage) {
	userID, err := decodeID(raw)
	if err != nil {
		c.replyError(Identify, "Invalid user id")
		return
	}

	if userID != c.identity.UserID {
		c.hub.sugar.Warnf("Connection [%s] of user ID [%d] tried to identify as user ID [%d]", c.id, c.identity.UserID, userID)
		c.replyError(Identify, "User id doesn't match the credential of this connection")
		return
	}

	c.identified = true
	c.hub.track(c)
	c.reply(Identified, IdentifiedPayload{UserID: userID})
}

func (c *client) subscribe(raw json.RawMessage) {
	if !c.identified {
		c.replyError(SubscribeChannel, "Identify before subscribing")
		return
	}

	channelID, err := decodeID(raw)
	if err != nil {
		c.replyError(SubscribeChannel, "Invalid channel id")
		return
	}

	if _, ok := c.rooms[channelID]; !ok {
		if err := c.hub.authorizer.CanReadChannel(c.ctx, c.identity.UserID, channelID); err != nil {
			if apperr.KindOf(err) == apperr.Unexpected {
				c.hub.sugar.Error(err)
			}
			c.replyError(SubscribeChannel, apperr.PublicMessage(err))
			return
		}

		if err := c.hub.join(c.ctx, c, channelID); err != nil {
			c.hub.sugar.Errorf("Failed to join room of channel ID [%d]: %v", channelID, err)
			c.replyError(SubscribeChannel, "Couldn't subscribe to channel")
			return
		}
		c.rooms[channelID] = struct{}{}
		c.hub.sugar.Debugf("Connection [%s] subscribed to channel ID [%d]", c.id, channelID)
	}

	c.reply(Subscribed, ChannelPayload{ChannelID: channelID})
}

func (c *client) unsubscribe(raw json.RawMessage) {
	channelID, err := decodeID(raw)
	if err != nil {
		c.replyError(UnsubscribeChannel, "Invalid channel id")
		return
	}

	if _, ok := c.rooms[channelID]; ok {
		c.hub.leave(c.ctx, c, channelID)
		delete(c.rooms, channelID)
		c.hub.sugar.Debugf("Connection [%s] unsubscribed from channel ID [%d]", c.id, channelID)
	}

	c.reply(Unsubscribed, ChannelPayload{ChannelID: channelID})
}

// relayTyping forwards typing indicators to the rest of the room. The
// username comes from the connection's credential, not from the payload.
func (c *client) relayTyping(event string, raw json.RawMessage) {
	var incoming struct {
		ChannelID json.RawMessage `json:"channelId"`
	}
	if err := json.Unmarshal(raw, &incoming); err != nil {
		c.replyError(event, "Invalid payload")
		return
	}
	channelID, err := decodeID(incoming.ChannelID)
	if err != nil {
		c.replyError(event, "Invalid channel id")
		return
	}
	payload := TypingPayload{ChannelID: channelID}

	if _, ok := c.rooms[payload.ChannelID]; !ok || !c.identified {
		c.replyError(event, "Subscribe to the channel first")
		return
	}

	if event == Typing {
		payload.Username = c.identity.Username
	}

	if err := c.hub.publish(c.ctx, payload.ChannelID, c.id, event, payload); err != nil {
		c.hub.sugar.Error(err)
	}
}
