package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/lox/chinesepoker/internal/arrange"
	"github.com/lox/chinesepoker/internal/estimator"
	"github.com/lox/chinesepoker/internal/gameid"
	"github.com/lox/chinesepoker/internal/report"
	"github.com/lox/chinesepoker/internal/scoring"
)

// ResultStore persists solved games
type ResultStore interface {
	SaveGame(ctx context.Context, rec report.GameRecord) error
	RecentGames(ctx context.Context, limit int) ([]report.GameRecord, error)
}

// Config holds the engine components the server exposes
type Config struct {
	Rules          scoring.Rules
	Enumerator     *arrange.Enumerator
	Solve          estimator.SolveConfig
	PruneDominated bool

	// Defaults for /api/ev requests.
	Samples   int
	Opponents int
	Policy    estimator.Policy
	Workers   int

	// Store is optional. Without one, solved games are not persisted and
	// /api/games returns 503.
	Store  ResultStore
	Clock  quartz.Clock
	Logger *log.Logger
}

// Server serves the REST API and the equilibrium websocket
type Server struct {
	config   Config
	upgrader websocket.Upgrader
	ids      *gameid.Generator
	clock    quartz.Clock
	logger   *log.Logger

	mu          sync.Mutex
	connections map[*Connection]struct{}
	ctx         context.Context
	cancel      context.CancelFunc
}

// New creates a server
func New(config Config) (*Server, error) {
	if err := config.Rules.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rules: %w", err)
	}
	if err := config.Solve.Validate(); err != nil {
		return nil, fmt.Errorf("invalid solve config: %w", err)
	}
	if config.Logger == nil {
		config.Logger = log.New(io.Discard)
	}
	if config.Clock == nil {
		config.Clock = quartz.NewReal()
	}
	if config.Enumerator == nil {
		e, err := arrange.NewEnumerator(arrange.Config{Logger: config.Logger})
		if err != nil {
			return nil, err
		}
		config.Enumerator = e
	}
	if config.Samples <= 0 {
		config.Samples = 400
	}
	if config.Opponents <= 0 {
		config.Opponents = estimator.MaxPlayers - 1
	}
	if config.Policy == nil {
		config.Policy = estimator.MaxProductPolicy{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		config: config,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		ids:         gameid.NewGenerator(config.Clock, nil),
		clock:       config.Clock,
		logger:      config.Logger.WithPrefix("server"),
		connections: make(map[*Connection]struct{}),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Handler returns the HTTP routes
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Post("/arrange", s.handleArrange)
		r.Post("/score", s.handleScore)
		r.Post("/ev", s.handleEV)
		r.Post("/equilibrium", s.handleEquilibrium)
		r.Get("/games", s.handleGames)
		r.Get("/cache", s.handleCache)
		r.Delete("/cache", s.handleCache)
	})
	r.Get("/ws/equilibrium", s.handleWebSocket)
	return r
}

// ListenAndServe serves until ctx is done, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server")
	s.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// Stop closes every websocket connection and cancels their searches
func (s *Server) Stop() {
	s.cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.connections {
		_ = conn.Close()
	}
}

// ConnectionCount returns the number of open websocket connections
func (s *Server) ConnectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.connections)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection", "error", err)
		return
	}

	client := NewConnection(s.ctx, conn, s)
	s.mu.Lock()
	s.connections[client] = struct{}{}
	total := len(s.connections)
	s.mu.Unlock()
	s.logger.Info("Client connected", "total", total)

	client.Start()

	go func() {
		<-client.Done()
		s.mu.Lock()
		delete(s.connections, client)
		total := len(s.connections)
		s.mu.Unlock()
		s.logger.Info("Client disconnected", "total", total)
	}()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "OK")
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := s.clock.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", s.clock.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}
