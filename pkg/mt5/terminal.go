package mt5

import (
	"context"
	"time"
)

// Terminal abstracts the remote trading terminal behind the narrow RPC
// surface the bridge exposes, so it can be swapped for a test double.
type Terminal interface {
	Login(ctx context.Context, login int64, password, server string) error
	AccountInfo(ctx context.Context) (Account, error)
	Symbols(ctx context.Context) ([]string, error)
	SymbolInfo(ctx context.Context, name string) (Symbol, error)
	SymbolTick(ctx context.Context, name string) (Tick, error)
	OrderSend(ctx context.Context, req TradeRequest) (TradeResult, error)
	Positions(ctx context.Context) ([]Position, error)
	CopyRatesRange(ctx context.Context, symbol string, timeframe Timeframe, start, end time.Time) ([]Candle, error)
	Ping(ctx context.Context) error
}
