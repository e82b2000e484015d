package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/syeo66/cadence/collaborative"
	"github.com/syeo66/cadence/config"
	"github.com/syeo66/cadence/content"
	"github.com/syeo66/cadence/database"
	"github.com/syeo66/cadence/errors"
	"github.com/syeo66/cadence/handlers"
	"github.com/syeo66/cadence/middleware"
	"github.com/syeo66/cadence/popularity"
	"github.com/syeo66/cadence/predictor"
	"github.com/syeo66/cadence/recommend"
	"github.com/syeo66/cadence/similarity"
)

// Server operation constants
const (
	ModelRefreshTimeout = 2 * time.Minute
	ReadHeaderTimeout   = 10 * time.Second
)

// Server is the composition root: it owns the database, the feature
// predictor and the HTTP listener.
type Server struct {
	config       *config.Config
	logger       *logrus.Logger
	db           *database.DB
	service      *recommend.Service
	predictor    *predictor.Predictor
	router       *mux.Router
	server       *http.Server
	addr         net.Addr
	refreshMutex sync.RWMutex
	refreshTick  *time.Ticker
	refreshWg    sync.WaitGroup
	shutdownChan chan struct{}
	shutdownOnce sync.Once
}

func New(cfg *config.Config) (*Server, error) {
	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
		logger.WithError(err).Warn("Invalid log level, defaulting to info")
	}
	logger.SetLevel(level)

	return NewWithLogger(cfg, logger)
}

// NewWithLogger wires every component from cfg using the given logger.
func NewWithLogger(cfg *config.Config, logger *logrus.Logger) (*Server, error) {
	engine, err := similarity.NewEngine(cfg.Similarity)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryServer, "INITIALIZATION_FAILED", "invalid similarity weights")
	}

	poolConfig := &database.ConnectionPool{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		HealthCheck:     cfg.Database.HealthCheck,
	}
	db, err := database.NewWithPool(cfg.DatabasePath, logger, poolConfig)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryServer, "INITIALIZATION_FAILED", "failed to initialize database").
			WithContext("database_path", cfg.DatabasePath)
	}

	logger.WithFields(logrus.Fields{
		"max_open_conns":     cfg.Database.MaxOpenConns,
		"max_idle_conns":     cfg.Database.MaxIdleConns,
		"conn_max_lifetime":  cfg.Database.ConnMaxLifetime,
		"conn_max_idle_time": cfg.Database.ConnMaxIdleTime,
		"health_check":       cfg.Database.HealthCheck,
	}).Info("Database connection pool configured")

	pop := popularity.New(logger)
	pred := predictor.New(db, logger, predictor.WithRefreshInterval(cfg.Predictor.RefreshInterval))
	service := recommend.New(db, recommend.Components{
		Engine: engine,
		Collaborative: collaborative.New(engine, logger, collaborative.Config{
			Neighbors:         cfg.Collaborative.Neighbors,
			UserNeighbors:     cfg.Collaborative.UserNeighbors,
			MinUserSimilarity: cfg.Collaborative.MinUserSimilarity,
			SparseThreshold:   cfg.Collaborative.SparseThreshold,
			MF: collaborative.MFConfig{
				Factors:        cfg.Collaborative.Factors,
				Epochs:         cfg.Collaborative.Epochs,
				LearningRate:   cfg.Collaborative.LearningRate,
				Regularization: cfg.Collaborative.Regularization,
				Seed:           cfg.Collaborative.Seed,
			},
		}),
		Content:    content.New(engine, pop, logger, content.Config{MinSimilarity: cfg.Content.MinSimilarity}),
		Popularity: pop,
		Predictor:  pred,
	}, logger, recommend.Config{
		DefaultLimit:     cfg.Recommend.DefaultLimit,
		MaxLimit:         cfg.Recommend.MaxLimit,
		Weights:          cfg.Hybrid,
		BatchSize:        cfg.Recommend.BatchSize,
		SimilarCacheTTL:  cfg.Recommend.SimilarCacheTTL,
		SimilarCacheSize: cfg.Recommend.SimilarCacheSize,
	})

	s := &Server{
		config:       cfg,
		logger:       logger,
		db:           db,
		service:      service,
		predictor:    pred,
		shutdownChan: make(chan struct{}),
	}
	s.router = s.routes(handlers.New(service, logger))
	return s, nil
}

func (s *Server) routes(h *handlers.Handler) *mux.Router {
	router := mux.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.AccessLog(s.logger))

	if s.config.Security.HeadersEnabled {
		router.Use(middleware.NewSecurityHeaders(s.config.Security, s.logger).Handler)
		s.logger.WithField("dev_mode", s.config.IsDevMode()).Info("Security headers middleware enabled")
	} else {
		s.logger.Info("Security headers middleware disabled")
	}

	if s.config.RateLimit.Enabled {
		router.Use(middleware.NewRateLimiter(s.config.RateLimit.RPS, s.config.RateLimit.Burst, s.logger).Handler)
		s.logger.WithFields(logrus.Fields{
			"rps":   s.config.RateLimit.RPS,
			"burst": s.config.RateLimit.Burst,
		}).Info("Rate limiting enabled")
	} else {
		s.logger.Info("Rate limiting disabled")
	}

	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	h.Register(router)
	return router
}

// Handler returns the fully wrapped router.
func (s *Server) Handler() http.Handler {
	return s.router
}

type healthResponse struct {
	Status    string                   `json:"status"`
	Database  database.ConnectionStats `json:"database"`
	Predictor predictor.Status         `json:"predictor"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:    "ok",
		Database:  s.db.GetConnectionStats(),
		Predictor: s.predictor.Status(),
	}
	status := http.StatusOK
	if err := s.db.Ping(); err != nil {
		s.logger.WithError(err).Warn("Health check failed")
		resp.Status = "unavailable"
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.WithError(err).Error("Failed to encode health response")
	}
}

// Start binds the listener, serves in the background and starts the model
// refresh loop.
func (s *Server) Start() error {
	if s.server != nil {
		return errors.ErrServerStart.WithContext("reason", "server already started")
	}

	listener, err := net.Listen("tcp", ":"+s.config.Port)
	if err != nil {
		return errors.Wrap(err, errors.CategoryServer, "START_FAILED", "failed to bind port").
			WithContext("port", s.config.Port)
	}
	s.addr = listener.Addr()
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: ReadHeaderTimeout,
	}

	s.logger.WithFields(logrus.Fields{
		"port": s.config.Port,
		"url":  fmt.Sprintf("http://localhost:%d", listener.Addr().(*net.TCPAddr).Port),
	}).Info("Starting recommendation server")

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("Server stopped unexpectedly")
		}
	}()

	s.refreshWg.Add(1)
	go s.refreshModel()
	return nil
}

// Addr returns the bound address once Start has succeeded.
func (s *Server) Addr() net.Addr {
	return s.addr
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down recommendation server...")

	s.shutdownOnce.Do(func() { close(s.shutdownChan) })

	s.refreshMutex.RLock()
	if s.refreshTick != nil {
		s.refreshTick.Stop()
	}
	s.refreshMutex.RUnlock()

	done := make(chan struct{})
	go func() {
		s.refreshWg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("Shutdown timeout reached while waiting for model refresh")
	}

	var shutdownErr error
	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			s.logger.WithError(err).Error("Failed to shutdown HTTP server")
			shutdownErr = errors.Wrap(err, errors.CategoryServer, "SHUTDOWN_FAILED", "failed to shutdown HTTP server")
		}
	}

	if err := s.predictor.Close(); err != nil {
		s.logger.WithError(err).Error("Failed to close feature predictor")
	}
	if err := s.db.Close(); err != nil {
		s.logger.WithError(err).Error("Failed to close database connection")
	}

	if shutdownErr == nil {
		s.logger.Info("Recommendation server shut down successfully")
	}
	return shutdownErr
}

// refreshModel builds the feature model once at startup and then on every
// tick of the configured refresh interval.
func (s *Server) refreshModel() {
	defer s.refreshWg.Done()

	s.rebuildModel()

	interval := s.config.Predictor.RefreshInterval
	if interval <= 0 {
		s.logger.Info("Periodic model refresh disabled")
		return
	}

	s.refreshMutex.Lock()
	s.refreshTick = time.NewTicker(interval)
	ticker := s.refreshTick
	s.refreshMutex.Unlock()
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.rebuildModel()
		case <-s.shutdownChan:
			s.logger.Info("Stopping model refresh goroutine")
			return
		}
	}
}

func (s *Server) rebuildModel() {
	select {
	case <-s.shutdownChan:
		return
	default:
	}

	ctx, cancel := context.WithTimeout(context.Background(), ModelRefreshTimeout)
	defer cancel()

	status, err := s.predictor.Initialize(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("Feature model refresh failed")
		return
	}
	s.logger.WithFields(logrus.Fields{
		"mode":          status.Mode,
		"trainingSongs": status.TrainingSize,
	}).Debug("Feature model refreshed")
}
