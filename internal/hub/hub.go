package hub

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"converse-backend/internal/keyValue"
	"converse-backend/internal/metrics"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 * 1024
	sendQueueSize  = 64
	presenceTTL    = 2 * pongWait
)

// Identity is who the bearer credential of the upgrade request belongs to.
type Identity struct {
	UserID   int64
	Username string
}

type Authorizer interface {
	CanReadChannel(ctx context.Context, userID int64, channelID int64) error
}

type AuthorizerFunc func(ctx context.Context, userID int64, channelID int64) error

func (f AuthorizerFunc) CanReadChannel(ctx context.Context, userID int64, channelID int64) error {
	return f(ctx, userID, channelID)
}

type room struct {
	mutex   sync.Mutex
	clients map[*client]struct{}
}

type Hub struct {
	sugar      *zap.SugaredLogger
	broker     Broker
	presence   *keyValue.Store
	authorizer Authorizer
	upgrader   websocket.Upgrader

	mutex sync.RWMutex
	rooms map[int64]*room
	// only the most recent connection of a user is tracked
	users map[int64]*client
}

// New starts listening on the broker. checkOrigin may be nil to accept any
// origin.
func New(sugar *zap.SugaredLogger, broker Broker, presence *keyValue.Store, authorizer Authorizer, checkOrigin func(r *http.Request) bool) (*Hub, error) {
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}

	h := &Hub{
		sugar:      sugar,
		broker:     broker,
		presence:   presence,
		authorizer: authorizer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		rooms: make(map[int64]*room),
		users: make(map[int64]*client),
	}

	if err := broker.Start(h.deliver); err != nil {
		return nil, fmt.Errorf("starting broker: %w", err)
	}
	return h, nil
}

func (h *Hub) Close() error {
	return h.broker.Close()
}

// ServeConn upgrades the request and runs the connection until it drops.
// The caller must have verified the request's credential already.
func (h *Hub) ServeConn(w http.ResponseWriter, r *http.Request, identity Identity) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader already replied
		h.sugar.Debug(err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := &client{
		hub:      h,
		conn:     conn,
		id:       uuid.NewString(),
		identity: identity,
		rooms:    make(map[int64]struct{}),
		send:     make(chan []byte, sendQueueSize),
		done:     make(chan struct{}),
		ctx:      ctx,
	}

	h.sugar.Debugf("Connected user ID [%d] to WebSocket as connection [%s]", identity.UserID, c.id)
	metrics.WebsocketConnections.Inc()
	defer metrics.WebsocketConnections.Dec()

	go c.writePump()
	c.readPump()

	h.disconnect(c)
}

// Emit broadcasts event to every subscriber of the channel's room.
func (h *Hub) Emit(ctx context.Context, channelID int64, event string, data any) error {
	return h.publish(ctx, channelID, "", event, data)
}

func (h *Hub) publish(ctx context.Context, channelID int64, exclude string, event string, data any) error {
	frame, err := PrepareMessage(event, data)
	if err != nil {
		return err
	}

	metrics.EventsEmitted.WithLabelValues(event).Inc()
	err = h.broker.Publish(ctx, Broadcast{Room: channelID, Exclude: exclude, Frame: frame})
	if err != nil {
		metrics.EventsDropped.WithLabelValues("broker").Inc()
		return fmt.Errorf("publishing %s to channel ID [%d]: %w", event, channelID, err)
	}
	return nil
}

// deliver hands a broadcast to the local subscribers of its room. A room
// delivers one broadcast at a time so its subscribers see the same order.
func (h *Hub) deliver(b Broadcast) {
	h.mutex.RLock()
	r, ok := h.rooms[b.Room]
	h.mutex.RUnlock()
	if !ok {
		return
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	for c := range r.clients {
		if c.id == b.Exclude {
			continue
		}
		c.enqueue(b.Frame)
	}
}

func (h *Hub) join(ctx context.Context, c *client, channelID int64) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	r, ok := h.rooms[channelID]
	if !ok {
		if err := h.broker.Subscribe(ctx, channelID); err != nil {
			return err
		}
		r = &room{clients: make(map[*client]struct{})}
		h.rooms[channelID] = r
		metrics.HubRooms.Inc()
	}

	r.mutex.Lock()
	r.clients[c] = struct{}{}
	r.mutex.Unlock()
	return nil
}

func (h *Hub) leave(ctx context.Context, c *client, channelID int64) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	r, ok := h.rooms[channelID]
	if !ok {
		return
	}

	r.mutex.Lock()
	delete(r.clients, c)
	empty := len(r.clients) == 0
	r.mutex.Unlock()

	if empty {
		delete(h.rooms, channelID)
		metrics.HubRooms.Dec()
		if err := h.broker.Unsubscribe(ctx, channelID); err != nil {
			h.sugar.Errorf("Failed to unsubscribe from room of channel ID [%d]: %v", channelID, err)
		}
	}
}

func presenceKey(userID int64) string {
	return fmt.Sprintf("presence:%d", userID)
}

func (h *Hub) track(c *client) {
	h.mutex.Lock()
	h.users[c.identity.UserID] = c
	h.mutex.Unlock()

	h.refreshPresence(c)
}

func (h *Hub) refreshPresence(c *client) {
	err := h.presence.Set(c.ctx, presenceKey(c.identity.UserID), c.id, presenceTTL)
	if err != nil {
		h.sugar.Errorf("Failed to set presence of user ID [%d]: %v", c.identity.UserID, err)
	}
}

// IsOnline reports whether the user has a live connection on any instance.
func (h *Hub) IsOnline(ctx context.Context, userID int64) bool {
	v, err := h.presence.Get(ctx, presenceKey(userID))
	if err == nil {
		return v != ""
	}

	h.sugar.Errorf("Failed to read presence of user ID [%d]: %v", userID, err)

	h.mutex.RLock()
	defer h.mutex.RUnlock()
	_, ok := h.users[userID]
	return ok
}

func (h *Hub) disconnect(c *client) {
	h.sugar.Debugf("Removing connection [%s] of user ID [%d] from hub", c.id, c.identity.UserID)

	for channelID := range c.rooms {
		h.leave(c.ctx, c, channelID)
	}

	if c.identified {
		h.mutex.Lock()
		tracked := h.users[c.identity.UserID] == c
		if tracked {
			delete(h.users, c.identity.UserID)
		}
		h.mutex.Unlock()

		if tracked {
			err := h.presence.DelIfEquals(c.ctx, presenceKey(c.identity.UserID), c.id)
			if err != nil {
				h.sugar.Errorf("Failed to clear presence of user ID [%d]: %v", c.identity.UserID, err)
			}
		}
	}

	close(c.done)
}
