// Package api exposes the read-only ops surface plus the trading kill
// switch over HTTP, and streams bus events to websocket clients.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"auction-market-bot/internal/auth"
	"auction-market-bot/internal/database"
	"auction-market-bot/internal/events"
	"auction-market-bot/internal/logging"
)

// Store is the slice of the repository the API reads from.
type Store interface {
	ListSymbols(ctx context.Context) ([]database.Symbol, error)
	GetSymbolID(ctx context.Context, symbol string) (int, error)
	GetLatestProfileMetrics(ctx context.Context, symbolID int) (*database.ProfileMetrics, error)
	GetLatestMarketState(ctx context.Context, symbolID int) (*database.MarketStateRow, error)
	GetLatestOrderFlow(ctx context.Context, symbolID int) (*database.OrderFlowRow, error)
	ListRecentSignals(ctx context.Context, limit int) ([]database.SignalRow, error)
	GetOpenPositions(ctx context.Context) ([]database.PositionRow, error)
	ListRecentTrades(ctx context.Context, limit int) ([]database.TradeRow, error)
	ListRecentArbitrageOpportunities(ctx context.Context, limit int) ([]database.BinaryPriceRow, error)
	GetOpenBinaryPositions(ctx context.Context) ([]database.BinaryPositionRow, error)
}

// TradingControl is the kill switch exposed over the API.
type TradingControl interface {
	SetEnabled(enabled bool)
	Enabled() bool
}

// Config holds the HTTP server settings.
type Config struct {
	Host            string
	Port            int
	AllowedOrigins  string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Server is the ops HTTP server.
type Server struct {
	cfg        Config
	router     *gin.Engine
	httpServer *http.Server
	store      Store
	bus        *events.EventBus
	trading    TradingControl
	authSvc    *auth.Service
	hub        *Hub
	logger     zerolog.Logger
}

// NewServer builds the server and its routes. authSvc nil disables auth
// and leaves the trading endpoints open; trading nil returns 503 from
// the kill-switch endpoints.
func NewServer(cfg Config, store Store, bus *events.EventBus, trading TradingControl, authSvc *auth.Service) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if cfg.AllowedOrigins == "" || cfg.AllowedOrigins == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = strings.Split(cfg.AllowedOrigins, ",")
	}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	s := &Server{
		cfg:     cfg,
		router:  router,
		store:   store,
		bus:     bus,
		trading: trading,
		authSvc: authSvc,
		hub:     NewHub(),
		logger:  logging.Component("api"),
	}
	s.setupRoutes()

	go s.hub.Run()
	if bus != nil {
		bus.SubscribeAll(s.hub.BroadcastEvent)
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/ws", s.handleWebSocket)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/auth/login", s.handleLogin)

		v1.GET("/symbols", s.handleSymbols)
		v1.GET("/profile/:symbol", s.handleProfile)
		v1.GET("/state/:symbol", s.handleState)
		v1.GET("/flow/:symbol", s.handleFlow)
		v1.GET("/signals", s.handleSignals)
		v1.GET("/positions", s.handlePositions)
		v1.GET("/trades", s.handleTrades)
		v1.GET("/arbitrage/opportunities", s.handleArbOpportunities)
		v1.GET("/arbitrage/positions", s.handleArbPositions)

		protected := v1.Group("/trading")
		protected.Use(s.authMiddleware())
		{
			protected.POST("/enable", s.handleTradingEnable)
			protected.POST("/disable", s.handleTradingDisable)
			protected.GET("/status", s.handleTradingStatus)
		}
	}
}

// Start runs the server until ctx is cancelled, then drains with the
// configured shutdown grace.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.httpServer.Addr).Msg("api server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// Router exposes the handler tree, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}
