package market

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"mt5-gateway/pkg/cache"
	"mt5-gateway/pkg/mt5"
)

// SymbolDetail is a symbol description merged with its latest quote.
type SymbolDetail struct {
	mt5.Symbol
	Bid      float64   `json:"bid"`
	Ask      float64   `json:"ask"`
	TickTime time.Time `json:"tick_time"`
}

// Service answers market-data queries against the terminal, with an
// optional read-through cache for the static part of symbol metadata.
// Quotes are never cached: stale prices are worse than slow ones.
type Service struct {
	terminal mt5.Terminal
	symbols  cache.SymbolCache
}

// NewService wires a market-data service; symbols may be nil to disable caching.
func NewService(terminal mt5.Terminal, symbols cache.SymbolCache) *Service {
	return &Service{terminal: terminal, symbols: symbols}
}

// ListSymbols returns the names of all symbols visible in the terminal.
func (s *Service) ListSymbols(ctx context.Context) ([]string, error) {
	return s.terminal.Symbols(ctx)
}

// SymbolDetail returns symbol metadata merged with the current tick.
// Metadata may come from the cache; the tick always comes from the
// terminal so bid/ask reflect the live book.
func (s *Service) SymbolDetail(ctx context.Context, name string) (SymbolDetail, error) {
	if strings.TrimSpace(name) == "" {
		return SymbolDetail{}, fmt.Errorf("%w: symbol is required", mt5.ErrValidation)
	}

	sym, err := s.symbolInfo(ctx, name)
	if err != nil {
		return SymbolDetail{}, err
	}

	tick, err := s.terminal.SymbolTick(ctx, name)
	if err != nil {
		return SymbolDetail{}, err
	}

	return SymbolDetail{
		Symbol:   sym,
		Bid:      tick.Bid,
		Ask:      tick.Ask,
		TickTime: tick.Time,
	}, nil
}

// CachedSymbol serves symbol metadata from the cache only, without
// touching the terminal. Used while the connection is down.
func (s *Service) CachedSymbol(ctx context.Context, name string) (mt5.Symbol, bool) {
	if s.symbols == nil {
		return mt5.Symbol{}, false
	}
	return s.symbols.Get(ctx, name)
}

func (s *Service) symbolInfo(ctx context.Context, name string) (mt5.Symbol, error) {
	if s.symbols != nil {
		if sym, ok := s.symbols.Get(ctx, name); ok {
			return sym, nil
		}
	}
	sym, err := s.terminal.SymbolInfo(ctx, name)
	if err != nil {
		return mt5.Symbol{}, err
	}
	if s.symbols != nil {
		s.symbols.Set(ctx, sym)
	}
	return sym, nil
}

// Candles fetches OHLCV history for symbol between start and end. When
// count > 0 and the range yields more bars, only the most recent count
// bars are returned. Bars always come back in ascending time order.
func (s *Service) Candles(ctx context.Context, symbol string, timeframe mt5.Timeframe, start, end time.Time, count int) ([]mt5.Candle, error) {
	if strings.TrimSpace(symbol) == "" {
		return nil, fmt.Errorf("%w: symbol is required", mt5.ErrValidation)
	}
	if _, ok := timeframe.Code(); !ok {
		return nil, fmt.Errorf("%w: unknown timeframe %q", mt5.ErrValidation, timeframe)
	}
	if !end.After(start) {
		return nil, fmt.Errorf("%w: end must be after start", mt5.ErrValidation)
	}
	if count < 0 {
		return nil, fmt.Errorf("%w: count must be >= 0", mt5.ErrValidation)
	}

	candles, err := s.terminal.CopyRatesRange(ctx, symbol, timeframe, start, end)
	if err != nil {
		return nil, err
	}

	sort.Slice(candles, func(i, j int) bool {
		return candles[i].Time.Before(candles[j].Time)
	})

	if count > 0 && len(candles) > count {
		dropped := len(candles) - count
		candles = candles[dropped:]
		log.Printf("market: %s %s truncated %d bars to most recent %d", symbol, timeframe, dropped, count)
	}
	return candles, nil
}
