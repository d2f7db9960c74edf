package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/denisbrodbeck/machineid"

	"mt5-gateway/internal/api"
	"mt5-gateway/internal/bridge"
	"mt5-gateway/internal/events"
	"mt5-gateway/internal/health"
	"mt5-gateway/internal/journal"
	"mt5-gateway/internal/market"
	"mt5-gateway/internal/monitor"
	"mt5-gateway/internal/orders"
	"mt5-gateway/internal/stream"
	"mt5-gateway/pkg/cache"
	"mt5-gateway/pkg/config"
)

const version = "1.0.0"

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	policy, err := config.LoadPolicy(cfg.PolicyPath)
	if err != nil {
		log.Fatalf("policy load failed: %v", err)
	}

	log.Printf("starting mt5-gateway %s (bridge %s, api :%s)", version, cfg.BridgeURL(), cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Core services
	bus := events.NewBus()
	metrics := monitor.NewSystemMetrics()

	client := bridge.New(bridge.Config{
		URL:            cfg.BridgeURL(),
		RequestTimeout: cfg.RequestTimeout,
		BaseDelay:      cfg.ReconnectBaseDelay,
		MaxDelay:       cfg.ReconnectMaxDelay,
		Login:          cfg.MT5Login,
		Password:       cfg.MT5Password,
		Server:         cfg.MT5Server,
		ObserveLatency: metrics.BridgeLatency.RecordDuration,
		OnReconnect:    metrics.IncrementReconnects,
	})
	client.Start(ctx)

	hm := health.NewMonitor(client, bus, cfg.HealthProbeInterval, cfg.RequestTimeout)
	hm.Start(ctx)

	// Symbol cache: redis when configured, in-memory otherwise.
	var symCache cache.SymbolCache
	if cfg.RedisAddr != "" {
		rc, err := cache.NewRedis(cfg.RedisAddr, cfg.SymbolCacheTTL)
		if err != nil {
			log.Printf("redis cache unavailable (%v), falling back to in-memory", err)
			symCache = cache.NewSharded(cfg.SymbolCacheTTL)
		} else {
			symCache = rc
		}
	} else {
		symCache = cache.NewSharded(cfg.SymbolCacheTTL)
	}
	defer symCache.Close()

	// Trade journal is optional.
	var jrnl *journal.Journal
	if cfg.JournalDBPath != "" {
		jrnl, err = journal.Open(cfg.JournalDBPath)
		if err != nil {
			log.Fatalf("journal init failed: %v", err)
		}
		defer jrnl.Close()
	}

	mkt := market.NewService(client, symCache)

	var ordJournal orders.Journal
	if jrnl != nil {
		ordJournal = jrnl
	}
	ordMgr := orders.NewManager(client, ordJournal, bus)

	streamEng := stream.NewEngine(client, bus, cfg.TickPollInterval)
	streamEng.Start(ctx)

	instanceID, err := machineid.ProtectedID("mt5-gateway")
	if err != nil {
		instanceID = "unknown"
	}
	meta := api.SystemMeta{
		InstanceID: instanceID,
		Version:    version,
		StartedAt:  time.Now(),
	}

	server := api.NewServer(client, hm, mkt, ordMgr, streamEng, jrnl, metrics, policy, cfg.JWTSecret, cfg.APIRequestTimeout, meta)

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: server.Router,
	}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server failed: %v", err)
		}
	}()
	log.Printf("api listening on :%s", cfg.Port)

	// Wait for shutdown signal.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	log.Println("stopped")
}
