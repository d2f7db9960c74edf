package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"mt5-gateway/internal/journal"
	"mt5-gateway/internal/orders"
	"mt5-gateway/pkg/mt5"
)

type placeOrderRequest struct {
	Symbol    string  `json:"symbol" binding:"required,min=1"`
	Volume    float64 `json:"volume" binding:"gt=0"`
	OrderType string  `json:"order_type" binding:"required,oneof=BUY SELL buy sell"`
	SL        float64 `json:"sl"`
	TP        float64 `json:"tp"`
	Deviation int     `json:"deviation"`
	Comment   string  `json:"comment"`
}

type candlesRequest struct {
	Symbol    string `json:"symbol" binding:"required,min=1"`
	Timeframe string `json:"timeframe" binding:"required,min=1"`
	Start     string `json:"start" binding:"required"`
	End       string `json:"end" binding:"required"`
	Count     int    `json:"count"`
}

type journalQuery struct {
	Limit int `form:"limit"`
}

// getHealth always answers, even while the terminal is down: it is how
// operators tell limited mode from a dead process.
func (s *Server) getHealth(c *gin.Context) {
	state := "UNKNOWN"
	lastProbe := time.Time{}
	lastErr := ""
	if s.Health != nil {
		state = string(s.Health.State())
		lastProbe, lastErr = s.Health.LastProbe()
	}

	resp := gin.H{
		"status":      "ok",
		"connected":   s.Health != nil && s.Health.Connected(),
		"conn_state":  state,
		"instance_id": s.Meta.InstanceID,
		"version":     s.Meta.Version,
		"uptime_sec":  int(time.Since(s.Meta.StartedAt).Seconds()),
	}
	if q, ok := s.Terminal.(interface{ QueueDepth() int }); ok {
		resp["queue_depth"] = q.QueueDepth()
	}
	if !lastProbe.IsZero() {
		resp["last_probe"] = lastProbe.UTC().Format(time.RFC3339)
	}
	if lastErr != "" {
		resp["last_error"] = lastErr
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) getMetrics(c *gin.Context) {
	if s.Metrics == nil {
		respondError(c, http.StatusNotFound, "NOT_FOUND", "metrics not enabled")
		return
	}
	c.JSON(http.StatusOK, s.Metrics.GetSnapshot())
}

func (s *Server) getAccount(c *gin.Context) {
	if !s.requireTerminal(c, "account") {
		return
	}
	acc, err := s.Terminal.AccountInfo(c.Request.Context())
	if err != nil {
		s.respondMapped(c, err)
		return
	}
	c.JSON(http.StatusOK, acc)
}

func (s *Server) listSymbols(c *gin.Context) {
	if !s.requireTerminal(c, "symbols") {
		return
	}
	names, err := s.Market.ListSymbols(c.Request.Context())
	if err != nil {
		s.respondMapped(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbols": names, "count": len(names)})
}

// getSymbol merges symbol metadata with the live quote. While the
// terminal is down the cached metadata is served, clearly labeled
// stale, when the limited-mode policy allows it.
func (s *Server) getSymbol(c *gin.Context) {
	name := c.Param("symbol")

	if s.Health != nil && !s.Health.Connected() {
		if !s.Policy.Allows("symbol_cached") {
			if s.Metrics != nil {
				s.Metrics.IncrementLimitedRejections()
			}
			respondError(c, http.StatusServiceUnavailable, "TERMINAL_UNAVAILABLE", "terminal connection is down")
			return
		}
		sym, ok := s.Market.CachedSymbol(c.Request.Context(), name)
		if !ok {
			respondError(c, http.StatusServiceUnavailable, "TERMINAL_UNAVAILABLE", "terminal down and symbol not cached")
			return
		}
		c.JSON(http.StatusOK, gin.H{"symbol": sym, "cached": true})
		return
	}

	detail, err := s.Market.SymbolDetail(c.Request.Context(), name)
	if err != nil {
		s.respondMapped(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (s *Server) getCandles(c *gin.Context) {
	if !s.requireTerminal(c, "candles") {
		return
	}

	var req candlesRequest
	if err := c.BindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid candles payload: "+err.Error())
		return
	}

	start, err := parseTime(req.Start)
	if err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid start timestamp")
		return
	}
	end, err := parseTime(req.End)
	if err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid end timestamp")
		return
	}

	candles, err := s.Market.Candles(c.Request.Context(), req.Symbol, mt5.Timeframe(req.Timeframe), start, end, req.Count)
	if err != nil {
		s.respondMapped(c, err)
		return
	}
	if candles == nil {
		candles = []mt5.Candle{}
	}
	c.JSON(http.StatusOK, gin.H{
		"symbol":    req.Symbol,
		"timeframe": req.Timeframe,
		"candles":   candles,
		"count":     len(candles),
	})
}

func (s *Server) getPositions(c *gin.Context) {
	if !s.requireTerminal(c, "positions") {
		return
	}
	positions, err := s.Terminal.Positions(c.Request.Context())
	if err != nil {
		s.respondMapped(c, err)
		return
	}
	if positions == nil {
		positions = []mt5.Position{}
	}
	c.JSON(http.StatusOK, gin.H{"positions": positions, "count": len(positions)})
}

func (s *Server) placeOrder(c *gin.Context) {
	if !s.requireTerminal(c, "order") {
		return
	}

	var req placeOrderRequest
	if err := c.BindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid order payload: "+err.Error())
		return
	}

	receipt, err := s.Orders.PlaceOrder(c.Request.Context(), orders.Spec{
		Symbol:    req.Symbol,
		Volume:    req.Volume,
		OrderType: req.OrderType,
		SL:        req.SL,
		TP:        req.TP,
		Deviation: req.Deviation,
		Comment:   req.Comment,
	})
	if err != nil {
		s.respondMapped(c, err)
		return
	}

	if s.Metrics != nil {
		s.Metrics.IncrementOrders()
	}
	c.JSON(http.StatusCreated, receipt)
}

func (s *Server) closePosition(c *gin.Context) {
	if !s.requireTerminal(c, "position_close") {
		return
	}

	ticket, err := strconv.ParseInt(c.Param("ticket"), 10, 64)
	if err != nil || ticket <= 0 {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "ticket must be a positive integer")
		return
	}

	conf, err := s.Orders.ClosePosition(c.Request.Context(), ticket)
	if err != nil {
		s.respondMapped(c, err)
		return
	}
	c.JSON(http.StatusOK, conf)
}

func (s *Server) getJournal(c *gin.Context) {
	if s.Journal == nil {
		respondError(c, http.StatusNotFound, "NOT_FOUND", "journal not enabled")
		return
	}

	var q journalQuery
	if err := c.BindQuery(&q); err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid query parameters")
		return
	}

	entries, err := s.Journal.Recent(c.Request.Context(), q.Limit)
	if err != nil {
		s.respondMapped(c, err)
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	c.JSON(http.StatusOK, gin.H{"orders": entries, "count": len(entries)})
}

// parseTime accepts RFC3339, a naive timestamp (treated as UTC), or
// unix seconds.
func parseTime(v string) (time.Time, error) {
	if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	if ts, err := time.Parse(time.RFC3339, v); err == nil {
		return ts, nil
	}
	return time.Parse("2006-01-02T15:04:05", v)
}
