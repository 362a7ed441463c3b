// Package server is the HTTP/WebSocket surface of the application. Every
// handler is thin glue: authenticate the request, assemble a prompt, call
// the completion client, return JSON.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arogyasahayak/sahayak/internal/assistant"
	"github.com/arogyasahayak/sahayak/internal/cache"
	"github.com/arogyasahayak/sahayak/internal/config"
	"github.com/arogyasahayak/sahayak/internal/history"
	"github.com/arogyasahayak/sahayak/internal/notify"
	"github.com/arogyasahayak/sahayak/internal/reminder"
)

type Server struct {
	cfg         config.ServerConfig
	client      *assistant.Client
	hist        *history.Store
	tips        *cache.Cache
	reminders   *reminder.Scheduler
	dispatcher  *notify.Dispatcher
	callTimeout time.Duration
	logger      *slog.Logger

	engine  *gin.Engine
	httpSrv *http.Server
	limiter *clientLimiter
	wg      sync.WaitGroup
}

type Deps struct {
	Client      *assistant.Client
	History     *history.Store
	Tips        *cache.Cache
	Reminders   *reminder.Scheduler
	Dispatcher  *notify.Dispatcher
	CallTimeout time.Duration
}

func New(cfg config.ServerConfig, deps Deps, logger *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	if deps.CallTimeout <= 0 {
		deps.CallTimeout = 5 * time.Minute
	}

	s := &Server{
		cfg:         cfg,
		client:      deps.Client,
		hist:        deps.History,
		tips:        deps.Tips,
		reminders:   deps.Reminders,
		dispatcher:  deps.Dispatcher,
		callTimeout: deps.CallTimeout,
		logger:      logger,
		limiter:     newClientLimiter(cfg.RatePerMinute),
	}
	s.engine = s.buildRouter()
	return s
}

func (s *Server) buildRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestLog())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	api.Use(s.auth(), s.rateLimit())
	{
		api.POST("/chat", s.handleChat)
		api.POST("/symptom-check", s.handleSymptomCheck)
		api.POST("/dictionary", s.handleDictionary)
		api.GET("/health-tip", s.handleHealthTip)

		api.POST("/student/mock-test", s.handleMockTest)
		api.POST("/student/study-plan", s.handleStudyPlan)
		api.POST("/student/socratic", s.handleSocratic)

		api.POST("/reminders", s.handleCreateReminder)
		api.GET("/reminders", s.handleListReminders)
		api.DELETE("/reminders/:id", s.handleDeleteReminder)
		api.POST("/reminders/:id/pause", s.handlePauseReminder)
		api.POST("/reminders/:id/resume", s.handleResumeReminder)
	}

	// WebSocket does its own auth via query token; browsers cannot set
	// headers on upgrade requests.
	r.GET("/ws", s.handleWS)

	return r
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func (s *Server) auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.AuthToken == "" {
			c.Next()
			return
		}
		header := c.GetHeader("Authorization")
		if header != "Bearer "+s.cfg.AuthToken {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func (s *Server) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Allow(clientKey(c)) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}

// clientKey identifies a caller for rate limiting: the user header when
// present, the remote IP otherwise.
func clientKey(c *gin.Context) string {
	if user := userID(c); user != "anonymous" {
		return "user:" + user
	}
	return "ip:" + c.ClientIP()
}

// userID reads the caller identity. Full authentication flows live
// outside this service; the reverse proxy in front sets this header.
func userID(c *gin.Context) string {
	if id := strings.TrimSpace(c.GetHeader("X-User-ID")); id != "" {
		return id
	}
	return "anonymous"
}

// Start binds the listener and serves until Stop.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}

	s.httpSrv = &http.Server{
		Addr:    s.cfg.ListenAddr,
		Handler: s.engine,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()

	s.logger.Info("server started", "addr", s.cfg.ListenAddr)
	return nil
}

// Stop drains in-flight requests within ctx.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	err := s.httpSrv.Shutdown(ctx)
	s.wg.Wait()
	return err
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.engine }
