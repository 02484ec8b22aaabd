// Package server is the console's HTTP gateway: the JSON API used by the UI,
// the live event socket, a passthrough proxy to the LVS backend and the
// static front-end bundle.
package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/raaihank/lvs-console/internal/backend"
	"github.com/raaihank/lvs-console/internal/config"
	"github.com/raaihank/lvs-console/internal/logger"
	"github.com/raaihank/lvs-console/internal/logparse"
	"github.com/raaihank/lvs-console/internal/session"
	"github.com/raaihank/lvs-console/internal/store"
	"github.com/raaihank/lvs-console/internal/web"
	"github.com/raaihank/lvs-console/internal/websocket"
)

// Version is reported by /info
const Version = "0.3.0"

// Backend is the subset of the LVS backend client the gateway uses
type Backend interface {
	UploadGDS(ctx context.Context, filename string, r io.Reader) (*backend.GDSUpload, error)
	ScanGDS(ctx context.Context, req backend.ScanRequest) (*backend.GDSScan, error)
	UploadCIR(ctx context.Context, filename string, r io.Reader) (*backend.CIRUpload, error)
	ScanCIR(ctx context.Context, name string) (*backend.CIRScan, error)
	LVSCells(ctx context.Context, cirName, gdsName string) (*backend.LVSCellList, error)
	RunLVS(ctx context.Context, req backend.RunRequest) (*backend.Report, error)
	BaseURL() *url.URL
}

// ParseCache caches parsed violation logs
type ParseCache interface {
	Get(ctx context.Context, text string) (*logparse.Result, bool)
	Put(ctx context.Context, text string, res logparse.Result) error
}

// RunStore records run history
type RunStore interface {
	RecordRun(ctx context.Context, run *store.Run) error
	RecordRuleCounts(ctx context.Context, runID int64, rows []logparse.RuleCount) error
	RecentRuns(ctx context.Context, limit int) ([]store.Run, error)
}

// Deps are the optional collaborators of the server. A nil Backend is built
// from the configuration; nil Cache and Store disable those features.
type Deps struct {
	Backend Backend
	Cache   ParseCache
	Store   RunStore
}

// Server represents the gateway
type Server struct {
	config  *config.Config
	logger  *logger.Logger
	router  *mux.Router
	server  *http.Server
	wsHub   *websocket.Hub
	state   *session.State
	backend Backend
	cache   ParseCache
	store   RunStore
	limiter *rateLimiter
	schemas *schemas
	started time.Time
}

// New creates a new server instance
func New(cfg *config.Config, log *logger.Logger, deps Deps) (*Server, error) {
	be := deps.Backend
	if be == nil {
		client, err := backend.New(backend.Config{
			BaseURL:    cfg.Backend.URL,
			Timeout:    cfg.Backend.Timeout,
			RunTimeout: cfg.Backend.RunTimeout,
		}, log.WithComponent("backend"))
		if err != nil {
			return nil, fmt.Errorf("failed to create backend client: %w", err)
		}
		be = client
	}

	sch, err := compileSchemas()
	if err != nil {
		return nil, err
	}

	wsHub := websocket.NewHub(&websocket.HubConfig{
		BroadcastUploads:     cfg.WebSocket.Events.BroadcastUploads,
		BroadcastSelection:   cfg.WebSocket.Events.BroadcastSelection,
		BroadcastRuns:        cfg.WebSocket.Events.BroadcastRuns,
		BroadcastConnections: cfg.WebSocket.Events.BroadcastConnections,
		AllowedOrigins:       cfg.WebSocket.AllowedOrigins,
	}, log)

	s := &Server{
		config:  cfg,
		logger:  log.WithComponent("server"),
		router:  mux.NewRouter(),
		wsHub:   wsHub,
		state:   session.New(cfg.Rules, wsHub),
		backend: be,
		cache:   deps.Cache,
		store:   deps.Store,
		limiter: newRateLimiter(cfg.RateLimit.Enabled, cfg.RateLimit.RequestsPerMin, cfg.RateLimit.Burst),
		schemas: sch,
		started: time.Now(),
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/info", s.handleInfo).Methods("GET")

	if s.config.WebSocket.Enabled {
		s.router.HandleFunc(s.config.WebSocket.Path, s.wsHub.HandleWebSocket).Methods("GET")
	}

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(s.loggingMiddleware)
	api.Use(s.rateLimitMiddleware)
	api.Use(s.authMiddleware)

	api.HandleFunc("/logs/parse", s.handleParseLogs).Methods("POST")
	api.HandleFunc("/hierarchy/diff", s.handleHierarchyDiff).Methods("POST")
	api.HandleFunc("/hierarchy/scan", s.handleHierarchyScan).Methods("GET")
	api.HandleFunc("/cells/text", s.handleCellsText).Methods("POST")
	api.HandleFunc("/cells/lvs", s.handleLVSCells).Methods("GET")
	api.HandleFunc("/gds", s.handleUploadGDS).Methods("POST")
	api.HandleFunc("/cir", s.handleUploadCIR).Methods("POST")
	api.HandleFunc("/session", s.handleGetSession).Methods("GET")
	api.HandleFunc("/session", s.handlePutSession).Methods("PUT")
	api.HandleFunc("/lvs/run", s.handleRun).Methods("POST")
	api.HandleFunc("/runs", s.handleRuns).Methods("GET")

	proxy := s.router.PathPrefix("/backend").Subrouter()
	proxy.Use(s.loggingMiddleware)
	proxy.Use(s.rateLimitMiddleware)
	proxy.PathPrefix("/").HandlerFunc(s.handleBackendProxy)

	s.router.PathPrefix("/").Handler(web.NewSPA(s.config.Web.StaticDir))
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Session returns the session state
func (s *Server) Session() *session.State {
	return s.state
}

// Start runs the event hub and serves HTTP until Stop is called or ctx ends
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting LVS console gateway",
		zap.Int("port", s.config.Server.Port),
		zap.String("backend", s.backend.BaseURL().String()),
		zap.Bool("cache", s.cache != nil),
		zap.Bool("store", s.store != nil),
	)

	go s.wsHub.Run(ctx)
	go s.limiter.runCleanup(ctx.Done(), 30*time.Minute)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping LVS console gateway")
	return s.server.Shutdown(ctx)
}

// ApplyConfig hot-applies the settings that can change without a restart
func (s *Server) ApplyConfig(cfg *config.Config) {
	s.limiter.SetLimits(cfg.RateLimit.Enabled, cfg.RateLimit.RequestsPerMin, cfg.RateLimit.Burst)
	s.logger.Info("Rate limits updated",
		zap.Bool("enabled", cfg.RateLimit.Enabled),
		zap.Int("requests_per_min", cfg.RateLimit.RequestsPerMin),
		zap.Int("burst", cfg.RateLimit.Burst),
	)
}

// GetWebSocketHub returns the WebSocket hub for broadcasting events
func (s *Server) GetWebSocketHub() *websocket.Hub {
	return s.wsHub
}
