package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

const defaultListLimit = 50

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}

func (s *Server) handleLogin(c *gin.Context) {
	if s.authSvc == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "auth disabled"})
		return
	}

	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password required"})
		return
	}

	token, err := s.authSvc.Login(req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"token_type": "Bearer",
		"expires_in": s.authSvc.TokenDurationSeconds(),
	})
}

func (s *Server) handleSymbols(c *gin.Context) {
	symbols, err := s.store.ListSymbols(c.Request.Context())
	if err != nil {
		s.serverError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbols": symbols})
}

// symbolID resolves the :symbol path param, writing the error response
// itself on failure.
func (s *Server) symbolID(c *gin.Context) (int, bool) {
	symbol := c.Param("symbol")
	id, err := s.store.GetSymbolID(c.Request.Context(), symbol)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown symbol: " + symbol})
		return 0, false
	}
	return id, true
}

func (s *Server) handleProfile(c *gin.Context) {
	id, ok := s.symbolID(c)
	if !ok {
		return
	}
	m, err := s.store.GetLatestProfileMetrics(c.Request.Context(), id)
	if err != nil {
		s.serverError(c, err)
		return
	}
	if m == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no profile yet"})
		return
	}
	c.JSON(http.StatusOK, m)
}

func (s *Server) handleState(c *gin.Context) {
	id, ok := s.symbolID(c)
	if !ok {
		return
	}
	state, err := s.store.GetLatestMarketState(c.Request.Context(), id)
	if err != nil {
		s.serverError(c, err)
		return
	}
	if state == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no state observation yet"})
		return
	}
	c.JSON(http.StatusOK, state)
}

func (s *Server) handleFlow(c *gin.Context) {
	id, ok := s.symbolID(c)
	if !ok {
		return
	}
	flow, err := s.store.GetLatestOrderFlow(c.Request.Context(), id)
	if err != nil {
		s.serverError(c, err)
		return
	}
	if flow == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no order flow yet"})
		return
	}
	c.JSON(http.StatusOK, flow)
}

func (s *Server) handleSignals(c *gin.Context) {
	signals, err := s.store.ListRecentSignals(c.Request.Context(), listLimit(c))
	if err != nil {
		s.serverError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"signals": signals})
}

func (s *Server) handlePositions(c *gin.Context) {
	positions, err := s.store.GetOpenPositions(c.Request.Context())
	if err != nil {
		s.serverError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": positions})
}

func (s *Server) handleTrades(c *gin.Context) {
	trades, err := s.store.ListRecentTrades(c.Request.Context(), listLimit(c))
	if err != nil {
		s.serverError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

func (s *Server) handleArbOpportunities(c *gin.Context) {
	opps, err := s.store.ListRecentArbitrageOpportunities(c.Request.Context(), listLimit(c))
	if err != nil {
		s.serverError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"opportunities": opps})
}

func (s *Server) handleArbPositions(c *gin.Context) {
	positions, err := s.store.GetOpenBinaryPositions(c.Request.Context())
	if err != nil {
		s.serverError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": positions})
}

func (s *Server) handleTradingEnable(c *gin.Context) {
	if s.trading == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "trading engine not running"})
		return
	}
	s.trading.SetEnabled(true)
	s.logger.Warn().Str("operator", c.GetString("username")).Msg("trading enabled via API")
	c.JSON(http.StatusOK, gin.H{"trading_enabled": true})
}

func (s *Server) handleTradingDisable(c *gin.Context) {
	if s.trading == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "trading engine not running"})
		return
	}
	s.trading.SetEnabled(false)
	s.logger.Warn().Str("operator", c.GetString("username")).Msg("trading disabled via API")
	c.JSON(http.StatusOK, gin.H{"trading_enabled": false})
}

func (s *Server) handleTradingStatus(c *gin.Context) {
	if s.trading == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "trading engine not running"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trading_enabled": s.trading.Enabled()})
}

func (s *Server) serverError(c *gin.Context, err error) {
	s.logger.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func listLimit(c *gin.Context) int {
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			return n
		}
	}
	return defaultListLimit
}
