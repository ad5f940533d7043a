package handlers

import (
	"net/http"
	"time"

	"converse-backend/internal/accounts"
	"converse-backend/internal/config"
	"converse-backend/internal/database"
	"converse-backend/internal/directory"
	"converse-backend/internal/hub"
	"converse-backend/internal/jwt"
	"converse-backend/internal/keyValue"
	"converse-backend/internal/meetings"
	"converse-backend/internal/messages"
	"converse-backend/internal/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Handler struct {
	sugar     *zap.SugaredLogger
	issuer    *jwt.Issuer
	keyValue  *keyValue.Store
	store     *database.Store
	accounts  *accounts.Service
	directory *directory.Directory
	messages  *messages.Engine
	meetings  *meetings.Service
	hub       *hub.Hub
}

type Deps struct {
	Sugar     *zap.SugaredLogger
	Issuer    *jwt.Issuer
	KeyValue  *keyValue.Store
	Store     *database.Store
	Accounts  *accounts.Service
	Directory *directory.Directory
	Messages  *messages.Engine
	Meetings  *meetings.Service
	Hub       *hub.Hub
}

func New(deps Deps) *Handler {
	return &Handler{
		sugar:     deps.Sugar,
		issuer:    deps.Issuer,
		keyValue:  deps.KeyValue,
		store:     deps.Store,
		accounts:  deps.Accounts,
		directory: deps.Directory,
		messages:  deps.Messages,
		meetings:  deps.Meetings,
		hub:       deps.Hub,
	}
}

func (h *Handler) Router(cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	r.Use(metrics.Middleware)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if cfg.PrintHttpRequests {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)

	if cfg.Cors {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CorsOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Handle("/metrics", promhttp.Handler())

	websocketPath := "/ws"
	if cfg.BehindNginx {
		websocketPath = "/ws/"
	}
	// no timeout here, the connection outlives the request
	r.With(h.UserVerifier).Get(websocketPath, h.HandleWebSocket)

	r.Route("/api", func(api chi.Router) {
		api.Use(middleware.Timeout(60 * time.Second))

		api.Get("/health", h.Health)

		api.Route("/auth", func(r chi.Router) {
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)

			r.Group(func(r chi.Router) {
				r.Use(h.UserVerifier)
				r.Post("/logout", h.Logout)
				r.Get("/me", h.Me)
				r.Put("/profile", h.UpdateProfile)
				r.Put("/preferences/{section}", h.UpdatePreferences)
			})
		})

		api.Route("/communities", func(r chi.Router) {
			r.Use(h.UserVerifier)
			r.Get("/", h.ListCommunities)
			r.Post("/", h.CreateCommunity)
			r.Get("/{id}", h.GetCommunity)
			r.Delete("/{id}", h.DeleteCommunity)
			r.Post("/{id}/join", h.JoinCommunity)
			r.Post("/{id}/leave", h.LeaveCommunity)
			r.Get("/{id}/members", h.ListMembers)
		})

		api.Route("/channels", func(r chi.Router) {
			r.Use(h.UserVerifier)
			r.Post("/", h.CreateChannel)
			r.Get("/community/{id}", h.ListChannels)
			r.Get("/{id}", h.GetChannel)
			r.Delete("/{id}", h.DeleteChannel)
		})

		api.Route("/messages", func(r chi.Router) {
			r.Use(h.UserVerifier)
			r.Post("/", h.CreateMessage)
			r.Get("/channel/{id}", h.ListMessages)
			r.Get("/{id}", h.GetMessage)
			r.Put("/{id}", h.EditMessage)
			r.Delete("/{id}", h.DeleteMessage)
		})

		api.Route("/meetings", func(r chi.Router) {
			r.Use(h.UserVerifier)
			r.Post("/", h.CreateMeeting)
			r.Get("/community/{id}", h.ListMeetings)
			r.Post("/{id}/join", h.JoinMeeting)
			r.Patch("/{id}/status", h.UpdateMeetingStatus)
			r.Delete("/{id}", h.DeleteMeeting)
		})
	})

	return r
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.sugar.Error(err)
		h.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	h.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
