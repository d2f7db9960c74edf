package api

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"mt5-gateway/pkg/mt5"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamTicks upgrades the connection and forwards the symbol's tick
// feed until the client disconnects. Delivery is at-most-once: a client
// that cannot keep up misses ticks instead of backing up the poller.
func (s *Server) streamTicks(c *gin.Context) {
	symbol := c.Param("symbol")
	if symbol == "" {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "symbol is required")
		return
	}

	// Reject unknown symbols before the upgrade while we can still
	// answer with a proper status code.
	if s.Health != nil && s.Health.Connected() {
		if _, err := s.Terminal.SymbolInfo(c.Request.Context(), symbol); err != nil {
			s.respondMapped(c, err)
			return
		}
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("api: ws upgrade error: %v", err)
		return
	}
	defer conn.Close()

	sub := s.Stream.Subscribe(symbol)
	defer sub.Close()

	// Drain client frames so pings are answered and closes are seen.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	log.Printf("api: tick stream opened for %s (%s)", symbol, c.ClientIP())
	for {
		select {
		case <-done:
			log.Printf("api: tick stream closed for %s", symbol)
			return
		case tick, ok := <-sub.C:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(tickFrame(tick)); err != nil {
				log.Printf("api: ws write error for %s: %v", symbol, err)
				return
			}
			if s.Metrics != nil {
				s.Metrics.IncrementTicks()
			}
		}
	}
}

func tickFrame(tick mt5.Tick) gin.H {
	return gin.H{
		"symbol": tick.Symbol,
		"bid":    tick.Bid,
		"ask":    tick.Ask,
		"last":   tick.Last,
		"volume": tick.Volume,
		"time":   tick.Time.UTC().Format(time.RFC3339Nano),
	}
}
