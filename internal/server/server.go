// Package server wires the domain services, the realtime hub and the HTTP
// router into one handler.
package server

import (
	"context"
	"net/http"
	"slices"

	"converse-backend/internal/accounts"
	"converse-backend/internal/config"
	"converse-backend/internal/database"
	"converse-backend/internal/directory"
	"converse-backend/internal/handlers"
	"converse-backend/internal/hub"
	"converse-backend/internal/jwt"
	"converse-backend/internal/keyValue"
	"converse-backend/internal/meetings"
	"converse-backend/internal/messages"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Options struct {
	// MeetingLinkBase prefixes every generated meeting link.
	MeetingLinkBase string
	// BcryptCost of 0 means accounts.DefaultCost.
	BcryptCost int
}

type Server struct {
	Store     *database.Store
	KeyValue  *keyValue.Store
	Hub       *hub.Hub
	Directory *directory.Directory
	Messages  *messages.Engine
	Meetings  *meetings.Service
	Accounts  *accounts.Service
	Issuer    *jwt.Issuer
	Handler   http.Handler
}

// New builds the whole service on top of store. With a nil redisClient the
// hub and the key/value cache stay in process.
func New(sugar *zap.SugaredLogger, cfg *config.Config, store *database.Store, redisClient *redis.Client, opts Options) (*Server, error) {
	kv := keyValue.New(sugar, redisClient)

	var broker hub.Broker
	if redisClient != nil {
		broker = hub.NewRedisBroker(sugar, redisClient)
	} else {
		broker = hub.NewLocalBroker()
	}

	var checkOrigin func(r *http.Request) bool
	if cfg.Cors && len(cfg.CorsOrigins) > 0 {
		checkOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(cfg.CorsOrigins, origin)
		}
	}

	// the hub asks the directory about channel access while the directory
	// notifies through the hub
	var dir *directory.Directory
	authorizer := hub.AuthorizerFunc(func(ctx context.Context, userID int64, channelID int64) error {
		return dir.CanReadChannel(ctx, userID, channelID)
	})

	h, err := hub.New(sugar, broker, kv, authorizer, checkOrigin)
	if err != nil {
		return nil, err
	}
	dir = directory.New(sugar, store, h, h)

	s := &Server{
		Store:     store,
		KeyValue:  kv,
		Hub:       h,
		Directory: dir,
		Messages:  messages.New(sugar, store, h),
		Meetings:  meetings.New(sugar, store, h, opts.MeetingLinkBase),
		Accounts:  accounts.New(sugar, store, opts.BcryptCost),
		Issuer:    jwt.NewIssuer(cfg.JwtSecret, cfg.IsHttps()),
	}

	s.Handler = handlers.New(handlers.Deps{
		Sugar:     sugar,
		Issuer:    s.Issuer,
		KeyValue:  kv,
		Store:     store,
		Accounts:  s.Accounts,
		Directory: s.Directory,
		Messages:  s.Messages,
		Meetings:  s.Meetings,
		Hub:       h,
	}).Router(cfg)

	return s, nil
}

// Run keeps background maintenance going until ctx is done.
func (s *Server) Run(ctx context.Context) {
	s.KeyValue.RunExpiry(ctx, keyValue.ExpiryInterval)
}

func (s *Server) Close() error {
	return s.Hub.Close()
}
