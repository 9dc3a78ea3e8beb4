// Package server wires the dispute engine together and runs the HTTP API.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/atelierhq/atelier/internal/activity"
	"github.com/atelierhq/atelier/internal/auth"
	"github.com/atelierhq/atelier/internal/config"
	"github.com/atelierhq/atelier/internal/dispute"
	"github.com/atelierhq/atelier/internal/escrow"
	"github.com/atelierhq/atelier/internal/evidence"
	"github.com/atelierhq/atelier/internal/health"
	"github.com/atelierhq/atelier/internal/idgen"
	"github.com/atelierhq/atelier/internal/logging"
	"github.com/atelierhq/atelier/internal/metrics"
	"github.com/atelierhq/atelier/internal/notifications"
	"github.com/atelierhq/atelier/internal/outbox"
	"github.com/atelierhq/atelier/internal/ratelimit"
	"github.com/atelierhq/atelier/internal/realtime"
	"github.com/atelierhq/atelier/internal/reputation"
	"github.com/atelierhq/atelier/internal/security"
	"github.com/atelierhq/atelier/internal/traces"
	"github.com/atelierhq/atelier/internal/transactions"
	"github.com/atelierhq/atelier/internal/validation"
)

// Server wraps the HTTP server and the dispute engine's dependencies.
type Server struct {
	cfg    *config.Config
	logger *slog.Logger

	db *sql.DB // nil when running on in-memory stores

	disputes      *dispute.Service
	escrow        *escrow.Service
	transactions  *transactions.Service
	evidence      *evidence.Service
	activity      *activity.Service
	notifications *notifications.Service
	reputation    *reputation.Service

	outboxWorker *outbox.Worker
	sweeper      *dispute.Timer
	hub          *realtime.Hub
	rateLimiter  *ratelimit.Limiter
	health       *health.Registry

	router       *gin.Engine
	httpSrv      *http.Server
	cancelRunCtx context.CancelFunc
	traceStop    func(context.Context) error

	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server.
type Option func(*Server)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates a server instance with all services wired.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
		health: health.NewRegistry(),
	}
	for _, opt := range opts {
		opt(s)
	}

	ctx := context.Background()

	traceStop, err := traces.Init(ctx, cfg.OTLPEndpoint, s.logger)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	s.traceStop = traceStop

	var (
		disputeStore dispute.Store
		escrowStore  escrow.Store
		txStore      transactions.Store
		outboxStore  outbox.Store
		actStore     activity.Store
		notifStore   notifications.Store
		strikeStore  reputation.Store
	)

	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		s.db = db
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))

		disputeStore = dispute.NewPostgresStore(db)
		escrowStore = escrow.NewPostgresStore(db)
		txStore = transactions.NewPostgresStore(db)
		outboxStore = outbox.NewPostgresStore(db)
		actStore = activity.NewPostgresStore(db)
		notifStore = notifications.NewPostgresStore(db)
		strikeStore = reputation.NewPostgresStore(db)

		s.health.Register("database", func(ctx context.Context) health.Status {
			ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				return health.Status{Name: "database", Healthy: false, Detail: err.Error()}
			}
			return health.Status{Name: "database", Healthy: true}
		})
	} else {
		s.logger.Info("using in-memory storage (data will not persist)")
		disputeStore = dispute.NewMemoryStore()
		escrowStore = escrow.NewMemoryStore()
		txStore = transactions.NewMemoryStore()
		outboxStore = outbox.NewMemoryStore()
		actStore = activity.NewMemoryStore()
		notifStore = notifications.NewMemoryStore()
		strikeStore = reputation.NewMemoryStore()
	}

	// Core services.
	s.transactions = transactions.NewService(txStore)
	s.escrow = escrow.NewService(escrowStore)
	s.evidence = evidence.NewService(evidence.NewMemoryStore())
	s.activity = activity.NewService(actStore)
	s.notifications = notifications.NewService(notifStore)
	s.reputation = reputation.NewService(strikeStore)

	emitter := outbox.NewEmitter(outboxStore)
	gate := dispute.NewGate(s.transactions, disputeStore)
	s.disputes = dispute.NewService(disputeStore, gate, s.escrow, emitter)

	// Realtime hub feeds websocket clients; the notifier sink fans
	// outbox events out to it and to the stored notification list.
	s.hub = realtime.NewHub(s.logger)

	sinks := []outbox.Sink{
		activity.NewRecorder(actStore),
		notifications.NewNotifier(notifStore, s.hub),
		reputation.NewRecorder(strikeStore),
	}
	s.outboxWorker = outbox.NewWorker(outboxStore, sinks, s.logger)

	sweepInterval := time.Duration(cfg.SweepInterval) * time.Second
	s.sweeper = dispute.NewTimer(s.disputes, disputeStore, sweepInterval, s.logger)

	s.health.Register("outbox_worker", func(ctx context.Context) health.Status {
		return health.Status{Name: "outbox_worker", Healthy: s.outboxWorker.Running()}
	})
	s.health.Register("sweeper", func(ctx context.Context) health.Status {
		return health.Status{Name: "sweeper", Healthy: s.sweeper.Running()}
	})

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)
	return s, nil
}

// maskDSN hides the password in a connection string for logging.
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	s.router.Use(security.HeadersMiddleware())

	origins := strings.Split(s.cfg.CORSOrigins, ",")
	s.router.Use(security.CORSMiddleware(origins))

	s.router.Use(s.requestSizeMiddleware())

	limitCfg := ratelimit.DefaultConfig()
	limitCfg.RequestsPerMinute = s.cfg.RateLimitRPS * 60
	s.rateLimiter = ratelimit.New(limitCfg)
	s.router.Use(s.rateLimiter.Middleware())

	s.router.Use(metrics.Middleware())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
}

// requestSizeMiddleware caps request bodies. JSON endpoints get the
// standard limit; evidence uploads carry media and get a larger one.
func (s *Server) requestSizeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := int64(validation.MaxRequestSize)
		if c.Request.Method == http.MethodPost && strings.HasPrefix(c.Request.URL.Path, "/v1/evidence") {
			limit = evidence.MaxVideoBytes + validation.MaxRequestSize
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		logger := logging.L(c.Request.Context())

		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	s.router.GET("/ws", func(c *gin.Context) {
		s.hub.HandleWebSocket(c.Writer, c.Request)
	})

	disputeHandlers := dispute.NewHandlers(s.disputes)
	escrowHandlers := escrow.NewHandlers(s.escrow)
	txHandlers := transactions.NewHandlers(s.transactions)
	evidenceHandlers := evidence.NewHandlers(s.evidence)
	activityHandlers := activity.NewHandlers(s.activity)
	notifHandlers := notifications.NewHandlers(s.notifications)
	strikeHandlers := reputation.NewHandlers(s.reputation)

	// The gateway terminates user authentication and forwards the
	// verified identity in X-User-ID; admin calls carry X-Admin-Secret.
	v1 := s.router.Group("/v1")
	v1.Use(auth.Middleware())
	v1.Use(validation.IDParamMiddleware())

	// Strike counts are public, like a seller rating.
	v1.GET("/users/:id/strikes", strikeHandlers.ListByUser)
	v1.GET("/evidence/:id", evidenceHandlers.Get)

	user := v1.Group("")
	user.Use(auth.RequireUser())
	{
		user.POST("/disputes", disputeHandlers.File)
		user.GET("/disputes", disputeHandlers.List)
		user.GET("/disputes/:id", disputeHandlers.Get)
		user.POST("/disputes/:id/offer", disputeHandlers.ProposeOffer)
		user.POST("/disputes/:id/offer/respond", disputeHandlers.RespondToOffer)
		user.POST("/disputes/:id/withdraw", disputeHandlers.Withdraw)
		user.GET("/disputes/:id/activity", activityHandlers.ListByDispute)

		user.POST("/evidence", evidenceHandlers.Upload)

		user.GET("/escrow/:ref/balance", escrowHandlers.GetBalance)

		user.GET("/users/:id/notifications", notifHandlers.ListByUser)
		user.POST("/notifications/:id/read", notifHandlers.MarkRead)
	}

	admin := v1.Group("/admin")
	admin.Use(auth.RequireAdmin(s.cfg.AdminSecret))
	{
		admin.GET("/disputes", disputeHandlers.List)
		admin.GET("/disputes/stats", disputeHandlers.Stats)
		admin.GET("/disputes/:id", disputeHandlers.Get)
		admin.POST("/disputes/:id/resolve", disputeHandlers.Resolve)
		admin.GET("/disputes/:id/activity", activityHandlers.ListByDispute)

		admin.POST("/transactions", txHandlers.Register)
		admin.POST("/transactions/:ref/status", txHandlers.SetStatus)
		admin.GET("/transactions/:ref", txHandlers.Get)

		admin.POST("/escrow/deposits", escrowHandlers.Deposit)
	}
}

func (s *Server) healthHandler(c *gin.Context) {
	healthy, statuses := s.health.CheckAll(c.Request.Context())

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, gin.H{
		"status":    status,
		"version":   "0.1.0",
		"checks":    statuses,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// Run starts the HTTP server with graceful shutdown.
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	go s.hub.Run(runCtx)
	go s.outboxWorker.Start(runCtx)
	go s.sweeper.Start(runCtx)

	if s.db != nil {
		metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server. Pending outbox events get one
// final delivery pass so notifications for already-committed state
// changes aren't stranded until the next boot.
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	s.sweeper.Stop()
	s.outboxWorker.Stop()
	s.outboxWorker.Drain(ctx)
	s.logger.Info("outbox drained")

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	if s.traceStop != nil {
		if err := s.traceStop(ctx); err != nil {
			s.logger.Error("trace shutdown error", "error", err)
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func generateRequestID() string {
	return idgen.Hex(16)
}
