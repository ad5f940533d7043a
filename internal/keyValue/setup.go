package keyValue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ExpiryInterval is how often the local hashmap drops expired keys.
const ExpiryInterval = time.Minute

type value struct {
	value   string
	expires time.Time
}

// Store is a small string cache with expiry. Without a redis client it keeps
// everything in a local hashmap, which is enough for a single instance.
type Store struct {
	sugar       *zap.SugaredLogger
	redisClient *redis.Client

	mutex   sync.RWMutex
	hashmap map[string]value
	now     func() time.Time
}

func New(sugar *zap.SugaredLogger, redisClient *redis.Client) *Store {
	return &Store{
		sugar:       sugar,
		redisClient: redisClient,
		hashmap:     make(map[string]value),
		now:         time.Now,
	}
}

func (s *Store) selfContained() bool {
	return s.redisClient == nil
}

// RunExpiry drops expired local keys every interval until ctx is done.
// Redis expires its own keys, so this returns immediately in that mode.
func (s *Store) RunExpiry(ctx context.Context, interval time.Duration) {
	if !s.selfContained() {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.deleteExpired()
		}
	}
}

func (s *Store) deleteExpired() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	now := s.now()
	for key, v := range s.hashmap {
		if v.expires.Before(now) {
			delete(s.hashmap, key)
		}
	}
}

// Get returns "" for a missing or expired key.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	if s.selfContained() {
		s.sugar.Debugf("Getting value of key [%s] from hashmap", key)

		s.mutex.RLock()
		defer s.mutex.RUnlock()

		v, ok := s.hashmap[key]
		if !ok || v.expires.Before(s.now()) {
			return "", nil
		}
		return v.value, nil
	}

	s.sugar.Debugf("Getting value of key [%s] from redis", key)

	v, err := s.redisClient.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, err
}

func (s *Store) GetDel(ctx context.Context, key string) (string, error) {
	if s.selfContained() {
		s.sugar.Debugf("Getting and deleting value of key [%s] from hashmap", key)

		s.mutex.Lock()
		defer s.mutex.Unlock()

		v, ok := s.hashmap[key]
		delete(s.hashmap, key)
		if !ok || v.expires.Before(s.now()) {
			return "", nil
		}
		return v.value, nil
	}

	s.sugar.Debugf("Getting and deleting value of key [%s] from redis", key)

	v, err := s.redisClient.GetDel(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, err
}

func (s *Store) Set(ctx context.Context, key string, v string, expires time.Duration) error {
	if s.selfContained() {
		s.sugar.Debugf("Setting value of key [%s] to [%s] in hashmap", key, v)

		s.mutex.Lock()
		defer s.mutex.Unlock()

		s.hashmap[key] = value{v, s.now().Add(expires)}
		return nil
	}

	s.sugar.Debugf("Setting value of key [%s] to [%s] in redis", key, v)
	return s.redisClient.Set(ctx, key, v, expires).Err()
}

func (s *Store) Del(ctx context.Context, key string) error {
	if s.selfContained() {
		s.mutex.Lock()
		defer s.mutex.Unlock()

		delete(s.hashmap, key)
		return nil
	}

	return s.redisClient.Del(ctx, key).Err()
}

// DelIfEquals removes key only while it still holds v. Presence uses this so
// an old connection can't clear the entry of a newer one.
func (s *Store) DelIfEquals(ctx context.Context, key string, v string) error {
	if s.selfContained() {
		s.mutex.Lock()
		defer s.mutex.Unlock()

		if current, ok := s.hashmap[key]; ok && current.value == v {
			delete(s.hashmap, key)
		}
		return nil
	}

	return delIfEqualsScript.Run(ctx, s.redisClient, []string{key}, v).Err()
}

var delIfEqualsScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)
