package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Broadcast is one frame addressed to a channel room. Exclude is the id of
// a connection that must not receive it.
type Broadcast struct {
	Room    int64           `json:"room,string"`
	Exclude string          `json:"exclude,omitempty"`
	Frame   json.RawMessage `json:"frame"`
}

// Broker carries broadcasts between hub instances. Every broadcast
// published for a room this instance subscribed to comes back through the
// deliver func given to Start.
type Broker interface {
	Start(deliver func(Broadcast)) error
	Subscribe(ctx context.Context, room int64) error
	Unsubscribe(ctx context.Context, room int64) error
	Publish(ctx context.Context, b Broadcast) error
	Close() error
}

func roomKey(room int64) string {
	return fmt.Sprintf("room:%d", room)
}

// LocalBroker is used when the server is self contained, it hands
// broadcasts straight back to the same process.
type LocalBroker struct {
	mutex   sync.RWMutex
	deliver func(Broadcast)
}

func NewLocalBroker() *LocalBroker {
	return &LocalBroker{}
}

func (b *LocalBroker) Start(deliver func(Broadcast)) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.deliver = deliver
	return nil
}

func (b *LocalBroker) Subscribe(context.Context, int64) error   { return nil }
func (b *LocalBroker) Unsubscribe(context.Context, int64) error { return nil }

func (b *LocalBroker) Publish(_ context.Context, broadcast Broadcast) error {
	b.mutex.RLock()
	deliver := b.deliver
	b.mutex.RUnlock()

	if deliver == nil {
		return fmt.Errorf("local broker wasn't started")
	}
	deliver(broadcast)
	return nil
}

func (b *LocalBroker) Close() error {
	return nil
}

// RedisBroker fans broadcasts out over redis pub/sub so several server
// instances reach all their clients. Each room is the redis channel
// room:<id>.
type RedisBroker struct {
	sugar       *zap.SugaredLogger
	redisClient *redis.Client
	pubsub      *redis.PubSub
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

func NewRedisBroker(sugar *zap.SugaredLogger, redisClient *redis.Client) *RedisBroker {
	return &RedisBroker{sugar: sugar, redisClient: redisClient}
}

func (b *RedisBroker) Start(deliver func(Broadcast)) error {
	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.pubsub = b.redisClient.Subscribe(ctx)

	msgCh := b.pubsub.Channel()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgCh:
				if !ok {
					return
				}

				var broadcast Broadcast
				if err := json.Unmarshal([]byte(msg.Payload), &broadcast); err != nil {
					b.sugar.Errorf("Malformed broadcast on redis channel [%s]: %v", msg.Channel, err)
					continue
				}

				room, err := strconv.ParseInt(strings.TrimPrefix(msg.Channel, "room:"), 10, 64)
				if err != nil || room != broadcast.Room {
					b.sugar.Errorf("Broadcast for room [%d] arrived on redis channel [%s]", broadcast.Room, msg.Channel)
					continue
				}
				deliver(broadcast)
			}
		}
	}()
	return nil
}

func (b *RedisBroker) Subscribe(ctx context.Context, room int64) error {
	b.sugar.Debugf("Subscribing to redis channel [%s]", roomKey(room))
	return b.pubsub.Subscribe(ctx, roomKey(room))
}

func (b *RedisBroker) Unsubscribe(ctx context.Context, room int64) error {
	b.sugar.Debugf("Unsubscribing from redis channel [%s]", roomKey(room))
	return b.pubsub.Unsubscribe(ctx, roomKey(room))
}

func (b *RedisBroker) Publish(ctx context.Context, broadcast Broadcast) error {
	payload, err := json.Marshal(broadcast)
	if err != nil {
		return err
	}
	return b.redisClient.Publish(ctx, roomKey(broadcast.Room), payload).Err()
}

func (b *RedisBroker) Close() error {
	if b.cancel != nil {
		b.cancel()
	}
	var err error
	if b.pubsub != nil {
		err = b.pubsub.Close()
	}
	b.wg.Wait()
	return err
}
