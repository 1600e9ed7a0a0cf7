package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	"github.com/damien-schneider/claude-code-desktop-sub001/api"
	"github.com/damien-schneider/claude-code-desktop-sub001/claude"
	"github.com/damien-schneider/claude-code-desktop-sub001/claude/reducer"
	"github.com/damien-schneider/claude-code-desktop-sub001/db"
	"github.com/damien-schneider/claude-code-desktop-sub001/log"
	"github.com/damien-schneider/claude-code-desktop-sub001/tracing"
)

// finishedStateRetention is how long folded state of an ended process stays readable
const finishedStateRetention = 10 * time.Minute

// Server owns and coordinates all application components
type Server struct {
	cfg *Config

	// Components (owned by server)
	database     *db.DB
	runs         *db.RunStore
	tracer       *tracing.Provider
	orchestrator *claude.Orchestrator
	views        *reducer.Reducer

	detachViews func()
	pruneMu     sync.Mutex
	pruneTimers map[string]*time.Timer

	// Shutdown context - cancelled when server is shutting down.
	// Long-running handlers (WebSocket, SSE) and the install watcher listen to it.
	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc

	// HTTP
	router *gin.Engine
	http   *http.Server
}

// New creates a new server with all components initialized
func New(cfg *Config) (*Server, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:            cfg,
		pruneTimers:    make(map[string]*time.Timer),
		shutdownCtx:    ctx,
		shutdownCancel: cancel,
	}

	// 1. Open database
	log.Info().Str("path", cfg.DatabasePath).Msg("initializing database")
	database, err := db.Open(cfg.ToDBConfig())
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	s.database = database
	s.runs = db.NewRunStore(database)

	// 2. Runs left open by a previous crash can never end now
	if n, err := s.runs.MarkInterrupted(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to close stale runs")
	} else if n > 0 {
		log.Info().Int64("count", n).Msg("marked runs from previous instance as interrupted")
	}

	// 3. Tracing
	log.Info().Bool("enabled", cfg.Tracing.Enabled).Msg("initializing tracing")
	provider, err := tracing.NewProvider(cfg.ToTracingConfig())
	if err != nil {
		database.Close()
		cancel()
		return nil, fmt.Errorf("failed to init tracing: %w", err)
	}
	s.tracer = provider

	// 4. Fold events into per-session state
	s.views = reducer.New(cfg.ToReducerOptions())

	// 5. Create orchestrator
	log.Info().Str("transport", cfg.Transport).Msg("initializing session orchestrator")
	opts := cfg.ToOrchestratorOptions()
	opts.Recorder = s.runs
	opts.Tracer = provider.Tracer()
	opts.OnStopped = s.processStopped
	s.orchestrator = claude.New(opts)
	s.connectServices()

	// 6. Setup HTTP router
	s.setupRouter()

	log.Info().Msg("server initialized successfully")
	return s, nil
}

// connectServices wires up event handlers between services
func (s *Server) connectServices() {
	detachReducer := s.views.Attach(s.orchestrator.Subscribe)

	// Ended processes keep their state for a while so late readers still see the outcome
	detachPruner := s.orchestrator.Subscribe(func(ev claude.Event) {
		if ev.IsTerminal() {
			s.scheduleForget(ev.ProcessID)
		}
	})

	s.detachViews = func() {
		detachPruner()
		detachReducer()
	}
}

// processStopped retires the view of a process ended through Stop, which
// publishes no terminal event
func (s *Server) processStopped(processID string) {
	s.views.End(processID)
	s.scheduleForget(processID)
}

func (s *Server) scheduleForget(processID string) {
	s.pruneMu.Lock()
	defer s.pruneMu.Unlock()
	if _, ok := s.pruneTimers[processID]; ok {
		return
	}
	s.pruneTimers[processID] = time.AfterFunc(finishedStateRetention, func() {
		s.views.Forget(processID)
		s.pruneMu.Lock()
		delete(s.pruneTimers, processID)
		s.pruneMu.Unlock()
	})
}

// setupRouter creates and configures the Gin router
func (s *Server) setupRouter() {
	// Set Gin mode
	if !s.cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Create router
	s.router = gin.New()

	// Middleware
	s.router.Use(gin.Recovery())
	s.router.Use(log.GinLogger(api.EventsStreamPath, "/api/claude/processes", "/api/claude/sessions/views"))

	// CORS for development
	if s.cfg.IsDevelopment() {
		s.router.Use(s.corsMiddleware())
	}

	// Security headers (production only)
	if !s.cfg.IsDevelopment() {
		s.router.Use(s.securityHeadersMiddleware())
	}

	// Gzip compression (skip SSE and WebSocket endpoints)
	s.router.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{
		api.EventsStreamPath,    // SSE - needs streaming
		api.EventsWebSocketPath, // WebSocket - protocol upgrade
	})))

	// Trust proxy headers
	s.router.SetTrustedProxies(nil)

	// Ignore .well-known requests
	s.router.GET("/.well-known/*path", func(c *gin.Context) {
		c.Status(http.StatusNotFound)
	})

	s.router.GET("/health", func(c *gin.Context) {
		active := s.orchestrator.ListActive()
		c.JSON(http.StatusOK, gin.H{"status": "ok", "activeProcesses": active.Count})
	})

	api.SetupRoutes(s.router, api.NewHandlers(s))
}

// corsMiddleware allows the desktop shell's dev server to call the API
func (s *Server) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		allowedOrigins := map[string]bool{
			"http://localhost:5173": true,
			"http://localhost:1420": true,
		}

		if allowedOrigins[origin] {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}

		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, X-Requested-With")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// securityHeadersMiddleware adds security headers for production
func (s *Server) securityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Prevent MIME type sniffing
		c.Header("X-Content-Type-Options", "nosniff")

		// Clickjacking protection
		c.Header("X-Frame-Options", "SAMEORIGIN")

		// Referrer policy - don't leak full URLs to other origins
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		c.Next()
	}
}

// Start starts all background services and the HTTP server
func (s *Server) Start() error {
	log.Info().Msg("starting server components")

	// Invalidate the cached CLI location when it gets installed or moved
	if s.cfg.WatchInstallDirs {
		if err := s.orchestrator.WatchInstallDirs(s.shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("install directory watcher not started")
		}
	}

	// Create HTTP server
	s.http = &http.Server{
		Addr:     fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:  s.router,
		ErrorLog: log.StdErrorLogger(), // Route Go's internal HTTP errors through zerolog
	}

	log.Info().
		Str("addr", s.http.Addr).
		Str("env", s.cfg.Env).
		Msg("HTTP server starting")

	// Start HTTP server (blocks)
	return s.http.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("shutting down server")

	// 1. Signal event streams and the install watcher to stop
	log.Info().Msg("signaling handlers to stop")
	s.shutdownCancel()

	// Give handlers a moment to process the cancellation and close connections.
	// This prevents "response.WriteHeader on hijacked connection" warnings.
	time.Sleep(100 * time.Millisecond)

	// 2. Stop every live session; this also closes the event bus
	if err := s.orchestrator.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("orchestrator shutdown error")
	}

	// 3. Shutdown HTTP server (stop accepting new requests and wait for existing ones)
	if s.http != nil {
		if err := s.http.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("http server shutdown error")
		}
	}

	s.detachViews()
	s.views.Close()
	s.pruneMu.Lock()
	for _, t := range s.pruneTimers {
		t.Stop()
	}
	s.pruneMu.Unlock()

	if err := s.tracer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("tracing shutdown error")
	}

	// Close database last; sessions stopped above have recorded their end
	if s.database != nil {
		if err := s.database.Close(); err != nil {
			log.Error().Err(err).Msg("database close error")
			return err
		}
	}

	log.Info().Msg("server shutdown complete")
	return nil
}

// Component accessors for API handlers
func (s *Server) Sessions() api.Sessions             { return s.orchestrator }
func (s *Server) Runs() api.RunHistory               { return s.runs }
func (s *Server) Views() api.SessionViews            { return s.views }
func (s *Server) Orchestrator() *claude.Orchestrator { return s.orchestrator }
func (s *Server) Router() *gin.Engine                { return s.router }
func (s *Server) ShutdownContext() context.Context   { return s.shutdownCtx }
