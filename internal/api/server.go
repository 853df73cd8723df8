// Package api serves read-only status over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"auction_go/internal/domain"
	"auction_go/internal/infra"
	"auction_go/internal/service"

	"github.com/gin-gonic/gin"
)

// SignalReader lists recorded signals.
type SignalReader interface {
	GetSignals(ctx context.Context, symbol string, limit int) ([]domain.Signal, error)
}

// PositionLister lists open positions.
type PositionLister interface {
	Positions() []domain.Position
}

// Server is the status API.
type Server struct {
	engine    *gin.Engine
	addr      string
	states    *service.StateService
	signals   SignalReader
	positions PositionLister
	metrics   *infra.Metrics
	logger    *slog.Logger
	started   time.Time
}

// NewServer wires the routes. signals and positions may be nil.
func NewServer(addr string, states *service.StateService, signals SignalReader, positions PositionLister, metrics *infra.Metrics, logger *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		engine:    gin.New(),
		addr:      addr,
		states:    states,
		signals:   signals,
		positions: positions,
		metrics:   metrics,
		logger:    logger,
		started:   time.Now(),
	}
	s.engine.Use(gin.Recovery())
	s.RegisterRoutes(s.engine)
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// RegisterRoutes attaches all endpoints to r.
func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/healthz", s.health)
	r.GET("/symbols", s.listSymbols)
	r.GET("/symbols/:symbol/state", s.symbolState)
	r.GET("/symbols/:symbol/signals", s.symbolSignals)
	r.GET("/positions", s.listPositions)
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}
}

func (s *Server) health(c *gin.Context) {
	body := gin.H{
		"status": "ok",
		"uptime": time.Since(s.started).Truncate(time.Second).String(),
	}
	if s.metrics != nil {
		body["metrics"] = s.metrics.Snapshot()
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) listSymbols(c *gin.Context) {
	c.JSON(http.StatusOK, s.states.GetAll())
}

func (s *Server) symbolState(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))
	st, ok := s.states.Get(symbol)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown symbol " + symbol})
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) symbolSignals(c *gin.Context) {
	if s.signals == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "signal store not configured"})
		return
	}
	symbol := strings.ToUpper(c.Param("symbol"))
	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	sigs, err := s.signals.GetSignals(c.Request.Context(), symbol, limit)
	if err != nil {
		s.logger.Error("Signal query failed", slog.String("symbol", symbol), slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "signal query failed"})
		return
	}
	c.JSON(http.StatusOK, sigs)
}

func (s *Server) listPositions(c *gin.Context) {
	if s.positions == nil {
		c.JSON(http.StatusOK, []domain.Position{})
		return
	}
	c.JSON(http.StatusOK, s.positions.Positions())
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Status API listening", slog.String("addr", s.addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
