// Package devserver is an in-memory stand-in for the Marketa backend. It
// speaks the same REST and event-stream contract as the hosted server and is
// used by tests and for offline development.
package devserver

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/arunshreyas/Marketa/internal/logging"
)

// Options configure a Server.
type Options struct {
	// Secret signs issued tokens. A random secret is used when empty.
	Secret []byte
	// ReplyDelay is how long the assistant takes to answer a message.
	ReplyDelay time.Duration
	// PingInterval is the keepalive period of message streams.
	PingInterval time.Duration
	Logger       *zap.Logger
}

// Faults make the server misbehave the ways the real backend can.
type Faults struct {
	// DropPush stores replies but never pushes them.
	DropPush bool
	// DuplicatePush pushes every reply twice.
	DuplicatePush bool
	// PushDelay holds a stored reply back from the stream.
	PushDelay time.Duration
	// DisableResponsesByCampaign answers 404 on /responses/by-campaign/:id.
	DisableResponsesByCampaign bool
	// FailMessages answers 500 on POST /messages.
	FailMessages bool
}

// Server is the dev backend.
type Server struct {
	echo      *echo.Echo
	hub       *Hub
	responder *Responder
	state     *state
	opts      Options
	logger    *zap.Logger

	mu         sync.RWMutex
	faults     Faults
	generation atomic.Int64

	ctx     context.Context
	cancel  context.CancelFunc
	closeMu sync.RWMutex
	closed  bool
	wg      sync.WaitGroup
}

// New creates a server and starts its stream hub. Close releases it.
func New(opts Options) *Server {
	if len(opts.Secret) == 0 {
		opts.Secret = []byte(newObjectID() + newObjectID())
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 15 * time.Second
	}
	logger := logging.OrNop(opts.Logger).Named("devserver")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		echo:      e,
		hub:       NewHub(logger),
		responder: NewResponder(),
		state:     newState(),
		opts:      opts,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}

	// Middleware
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Debug("request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency))
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	s.RegisterRoutes(e)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.hub.Run(ctx)
	}()
	return s
}

// RegisterRoutes registers the backend routes with the echo server.
func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", s.Health)

	// Auth
	e.POST("/signup", s.Signup)
	e.POST("/login", s.Login)
	e.GET("/auth/:provider", s.OAuth)

	// Users
	e.GET("/users/me", s.Me, s.requireAuth)
	e.GET("/users/:id", s.GetUser, s.requireAuth)
	e.PATCH("/users/:id", s.UpdateUser, s.requireAuth)
	e.POST("/users/:id/profile-picture", s.UploadProfilePicture, s.requireAuth)
	e.DELETE("/users/:id/profile-picture", s.DeleteProfilePicture, s.requireAuth)

	// Brand
	e.GET("/api/brand", s.GetBrand, s.requireAuth)
	e.POST("/api/brand", s.SaveBrand, s.requireAuth)

	// General assistant
	e.POST("/api/marketa/chat", s.AssistantChat, s.requireAuth)

	// Campaigns
	e.GET("/campaigns/user/:id", s.ListCampaigns, s.requireAuth)
	e.POST("/campaigns", s.CreateCampaign, s.requireAuth)
	e.GET("/campaigns/:id", s.GetCampaign, s.requireAuth)
	e.PATCH("/campaigns/:id", s.UpdateCampaign, s.requireAuth)
	e.DELETE("/campaigns/:id", s.DeleteCampaign, s.requireAuth)
	e.POST("/campaigns/:id/chat", s.CampaignChat, s.requireAuth)

	// Messages and replies
	e.POST("/messages", s.SendMessage, s.requireAuth)
	e.GET("/messages/campaign/:id", s.CampaignMessages, s.requireAuth)
	e.GET("/messages/stream/:id", s.StreamMessages, s.requireAuth)
	e.GET("/response", s.Responses, s.requireAuth)
	e.GET("/responses/by-campaign/:id", s.CampaignResponses, s.requireAuth)
}

// ServeHTTP lets the server run under httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start listens on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.logger.Info("dev backend listening", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown closes open streams, then stops the listener gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stop()
	err := s.echo.Shutdown(ctx)
	s.wg.Wait()
	return err
}

// Close stops the hub and pending replies without touching the listener.
func (s *Server) Close() {
	s.stop()
	s.wg.Wait()
}

func (s *Server) stop() {
	s.closeMu.Lock()
	s.closed = true
	s.closeMu.Unlock()
	s.cancel()
}

// SetFaults replaces the active fault knobs.
func (s *Server) SetFaults(f Faults) {
	s.mu.Lock()
	s.faults = f
	s.mu.Unlock()
}

func (s *Server) currentFaults() Faults {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.faults
}

// ExpireSessions invalidates every token issued so far.
func (s *Server) ExpireSessions() {
	s.generation.Add(1)
}

// Hub returns the stream hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Health returns health status.
func (s *Server) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "dev",
	})
}

func jsonError(c echo.Context, status int, message string) error {
	return c.JSON(status, map[string]string{"message": message})
}

// ownershipError maps a state lookup failure. Resources of other users are
// reported as missing.
func ownershipError(c echo.Context, err error, what string) error {
	switch {
	case errors.Is(err, errNotFound), errors.Is(err, errForbidden):
		return jsonError(c, http.StatusNotFound, what+" not found")
	case errors.Is(err, errConflict):
		return jsonError(c, http.StatusConflict, what+" already exists")
	}
	return jsonError(c, http.StatusInternalServerError, err.Error())
}

// after runs fn once d has elapsed unless the server is closed first.
func (s *Server) after(d time.Duration, fn func()) {
	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	if s.closed {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if d > 0 {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-s.ctx.Done():
				return
			}
		}
		if s.ctx.Err() != nil {
			return
		}
		fn()
	}()
}
