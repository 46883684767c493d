// Package api exposes the read-only dashboard over HTTP. All data comes
// from the persisted state files, so the dashboard observes exactly what a
// restarted process would recover.
package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"transformerbot/config"
	"transformerbot/retry"
	"transformerbot/store"
)

// Server is the HTTP API server.
type Server struct {
	router *gin.Engine
	cfg    *config.Config
	store  *store.Store
	timing *retry.TimingManager
	log    zerolog.Logger
	start  time.Time
}

// NewServer creates the API server and registers its routes.
func NewServer(cfg *config.Config, st *store.Store, timing *retry.TimingManager, log zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	s := &Server{
		router: router,
		cfg:    cfg,
		store:  st,
		timing: timing,
		log:    log,
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Cache-Control")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}

func (s *Server) setupRoutes() {
	s.router.Any("/health", s.handleHealth)

	api := s.router.Group("/api")
	{
		api.GET("/position", s.handlePosition)
		api.GET("/history", s.handleHistory)
		api.GET("/pnl", s.handlePnL)
		api.GET("/analysis", s.handleAnalysis)
		api.GET("/timing", s.handleTiming)
	}

	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": fmt.Sprintf("route not found: %s %s", c.Request.Method, c.Request.URL.Path),
		})
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"symbol":    s.cfg.Exchange.Symbol,
		"timeframe": s.cfg.Exchange.Timeframe,
		"uptime":    time.Since(s.start).Truncate(time.Second).String(),
	})
}

// handlePosition reads the position file rather than in-process state; the
// atomic writes guarantee it is never torn.
func (s *Server) handlePosition(c *gin.Context) {
	pos, err := s.store.LoadPosition()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"position": pos})
}

func (s *Server) handleHistory(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid limit %q", raw)})
			return
		}
		limit = n
	}

	var history []store.TradeDecision
	if limit > 0 {
		history = s.store.LoadLastDecisions(limit)
	} else {
		history = s.store.LoadTradeHistory()
	}
	c.JSON(http.StatusOK, gin.H{
		"count":   len(history),
		"history": history,
	})
}

// handlePnL aggregates realized results from the ledger's CLOSE_* entries.
func (s *Server) handlePnL(c *gin.Context) {
	history := s.store.LoadTradeHistory()

	var (
		total  float64
		closed int
		wins   int
	)
	for _, d := range history {
		if !strings.HasPrefix(d.Action, "CLOSE_") || d.PnL == nil {
			continue
		}
		closed++
		total += *d.PnL
		if *d.PnL > 0 {
			wins++
		}
	}

	winRate := 0.0
	if closed > 0 {
		winRate = float64(wins) / float64(closed) * 100
	}
	c.JSON(http.StatusOK, gin.H{
		"total_trades":  len(history),
		"closed_trades": closed,
		"total_pnl_pct": total,
		"wins":          wins,
		"losses":        closed - wins,
		"win_rate_pct":  winRate,
	})
}

func (s *Server) handleAnalysis(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"analysis": s.store.LoadPreviousResponse()})
}

func (s *Server) handleTiming(c *gin.Context) {
	stats := s.timing.All()
	out := make(map[string]gin.H, len(stats))
	for name, st := range stats {
		out[name] = gin.H{
			"calls":      st.CallCount,
			"total_ms":   st.Total.Milliseconds(),
			"average_ms": st.Average().Milliseconds(),
			"min_ms":     st.Min.Milliseconds(),
			"max_ms":     st.Max.Milliseconds(),
		}
	}
	c.JSON(http.StatusOK, out)
}

// Start blocks serving HTTP until the listener fails.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.APIServerPort)
	s.log.Info().Str("addr", addr).Msg("API server listening")
	return s.router.Run(addr)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.router }
