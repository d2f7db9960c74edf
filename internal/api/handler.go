package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"mt5-gateway/internal/health"
	"mt5-gateway/internal/journal"
	"mt5-gateway/internal/market"
	"mt5-gateway/internal/monitor"
	"mt5-gateway/internal/orders"
	"mt5-gateway/internal/stream"
	"mt5-gateway/pkg/config"
	"mt5-gateway/pkg/mt5"
)

// Server wires the HTTP surface of the gateway.
type Server struct {
	Router   *gin.Engine
	Terminal mt5.Terminal
	Health   *health.Monitor
	Market   *market.Service
	Orders   *orders.Manager
	Stream   *stream.Engine
	Journal  *journal.Journal
	Metrics  *monitor.SystemMetrics
	Policy   config.Policy

	// JWTSecret enables auth on trading endpoints when non-empty.
	JWTSecret string
	Meta      SystemMeta
}

// SystemMeta describes runtime identity exposed on /health.
type SystemMeta struct {
	InstanceID string
	Version    string
	StartedAt  time.Time
}

// NewServer builds the router with the full middleware stack and routes.
func NewServer(term mt5.Terminal, hm *health.Monitor, mkt *market.Service, ord *orders.Manager, str *stream.Engine, jrnl *journal.Journal, metrics *monitor.SystemMetrics, policy config.Policy, jwtSecret string, requestTimeout time.Duration, meta SystemMeta) *Server {
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}
	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())                    // Panic recovery (first)
	r.Use(RequestIDMiddleware())             // Request ID tracking
	r.Use(RequestLogger(metrics))            // Request logging (after ID is set)
	r.Use(RateLimitMiddleware())             // Rate limiting
	r.Use(TimeoutMiddleware(requestTimeout)) // Request timeout
	r.Use(CORSMiddleware())                  // CORS (last before routes)

	s := &Server{
		Router:    r,
		Terminal:  term,
		Health:    hm,
		Market:    mkt,
		Orders:    ord,
		Stream:    str,
		Journal:   jrnl,
		Metrics:   metrics,
		Policy:    policy,
		JWTSecret: jwtSecret,
		Meta:      meta,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.getHealth)
	s.Router.GET("/metrics", s.getMetrics)

	s.Router.GET("/account", s.getAccount)
	s.Router.GET("/symbols", s.listSymbols)
	s.Router.GET("/symbol/:symbol", s.getSymbol)
	s.Router.POST("/history/candles", s.getCandles)
	s.Router.GET("/positions", s.getPositions)
	s.Router.GET("/journal/orders", s.getJournal)

	// Trading endpoints carry auth when a secret is configured.
	trading := s.Router.Group("")
	if s.JWTSecret != "" {
		trading.Use(AuthMiddleware(s.JWTSecret))
	}
	trading.POST("/order", s.placeOrder)
	trading.DELETE("/position/:ticket", s.closePosition)

	s.Router.GET("/ws/ticks/:symbol", s.streamTicks)
}

func respondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, gin.H{
		"code":  code,
		"error": msg,
	})
}

// respondMapped translates taxonomy errors into wire responses.
func (s *Server) respondMapped(c *gin.Context, err error) {
	code := mt5.Kind(err)
	status := http.StatusInternalServerError
	switch code {
	case "VALIDATION_ERROR":
		status = http.StatusBadRequest
	case "NOT_FOUND":
		status = http.StatusNotFound
	case "TERMINAL_UNAVAILABLE":
		status = http.StatusServiceUnavailable
	case "TERMINAL_REJECTED":
		status = http.StatusBadGateway
	}
	if s.Metrics != nil && status >= 500 {
		s.Metrics.IncrementErrors()
	}
	respondError(c, status, code, err.Error())
}

// requireTerminal gates a handler on connection state. While the
// terminal is down only endpoints the limited-mode policy names may
// proceed; everything else fails fast without touching the bridge.
func (s *Server) requireTerminal(c *gin.Context, endpoint string) bool {
	if s.Health == nil || s.Health.Connected() {
		return true
	}
	if s.Policy.Allows(endpoint) {
		return true
	}
	if s.Metrics != nil {
		s.Metrics.IncrementLimitedRejections()
	}
	respondError(c, http.StatusServiceUnavailable, "TERMINAL_UNAVAILABLE", "terminal connection is down")
	return false
}

// Start runs the HTTP server (blocking).
func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
