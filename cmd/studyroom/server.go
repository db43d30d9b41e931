package main

import (
	"context"
	"net/http"
	"time"

	"studyroom/internal/constants"
	"studyroom/internal/httputil"
	"studyroom/internal/hub"
	"studyroom/internal/metrics"
	"studyroom/internal/middleware"
	"studyroom/internal/models"
	"studyroom/internal/versioning"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// maxJSONBody bounds room and message request bodies.
const maxJSONBody = 64 * 1024

// Store is the persistence the HTTP handlers need.
type Store interface {
	Ping(ctx context.Context) error
	CreateRoom(ctx context.Context, creatorID string, req models.CreateRoomRequest) (*models.Room, error)
	GetRoom(ctx context.Context, roomID string) (*models.Room, error)
	UpdateRoom(ctx context.Context, roomID string, update models.RoomUpdate) (*models.Room, error)
	DeleteRoom(ctx context.Context, roomID string) error
	AddParticipant(ctx context.Context, roomID, userID string) error
	AppendMessage(ctx context.Context, msg models.Message, uploadName string) (*models.Message, bool, error)
	ListMessages(ctx context.Context, roomID string) ([]models.Message, error)
	SaveUpload(ctx context.Context, upload *models.StoredUpload) error
	GetUpload(ctx context.Context, name string) (*models.StoredUpload, error)
}

type Server struct {
	router   *mux.Router
	logger   *logrus.Logger
	store    Store
	hub      *hub.Hub
	metrics  *metrics.Registry
	tokens   *middleware.TokenSet
	limiter  *middleware.RateLimiter
	cfg      models.Config
	maxBytes int64
	server   *http.Server
}

func NewServer(cfg models.Config, store Store, roomHub *hub.Hub, registry *metrics.Registry, tokens *middleware.TokenSet, limiter *middleware.RateLimiter, logger *logrus.Logger) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		logger:   logger,
		store:    store,
		hub:      roomHub,
		metrics:  registry,
		tokens:   tokens,
		limiter:  limiter,
		cfg:      cfg,
		maxBytes: int64(cfg.Chat.MaxAttachmentMB) * constants.BytesPerMegabyte,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.ObservabilityMiddleware(s.logger, s.metrics))

	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	s.router.HandleFunc("/media/{name}", s.handleMedia()).Methods(http.MethodGet, http.MethodHead)

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(versioning.NewVersionMiddleware(s.logger).VersionHandler)
	api.Use(middleware.BearerAuth(s.tokens, s.logger))

	api.HandleFunc("/rooms/{id}", s.handleGetRoom()).Methods(http.MethodGet)
	api.HandleFunc("/rooms/{id}/messages", s.handleListMessages()).Methods(http.MethodGet)
	api.HandleFunc("/rooms/{id}/messages/stream", s.handleStream()).Methods(http.MethodGet)

	writes := api.NewRoute().Subrouter()
	writes.Use(s.limiter.Middleware(s.metrics))
	writes.HandleFunc("/rooms", s.handleCreateRoom()).Methods(http.MethodPost)
	writes.HandleFunc("/rooms/{id}", s.handleUpdateRoom()).Methods(http.MethodPut)
	writes.HandleFunc("/rooms/{id}", s.handleDeleteRoom()).Methods(http.MethodDelete)
	writes.HandleFunc("/rooms/{id}/messages", s.handleAppendMessage()).Methods(http.MethodPost)
	writes.HandleFunc("/upload", s.handleUpload()).Methods(http.MethodPost)
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(constants.DefaultServerReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(constants.DefaultServerWriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(constants.DefaultServerIdleTimeoutSec) * time.Second,
	}

	s.logger.WithField("addr", s.cfg.Server.Addr).Info("Starting server")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown closes open room streams (hijacked connections are not tracked by
// http.Server) and then drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, code := "ok", http.StatusOK
		if err := s.store.Ping(r.Context()); err != nil {
			s.logger.WithError(err).Warn("Health check database ping failed")
			status, code = "degraded", http.StatusServiceUnavailable
		}
		_ = httputil.WriteJSON(w, code, map[string]interface{}{
			"status":  status,
			"version": versioning.CurrentBuildInfo(),
		})
	}
}
