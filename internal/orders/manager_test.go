package orders

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"mt5-gateway/pkg/mt5"
)

// fakeTerminal scripts bridge responses and counts calls.
type fakeTerminal struct {
	symbols   map[string]mt5.Symbol
	tick      mt5.Tick
	positions []mt5.Position
	result    mt5.TradeResult

	sendErr error
	tickErr error

	bridgeCalls int64 // every terminal round trip
	orderSends  int64
	lastReq     mt5.TradeRequest
}

func (f *fakeTerminal) Login(context.Context, int64, string, string) error { return nil }
func (f *fakeTerminal) AccountInfo(context.Context) (mt5.Account, error)   { return mt5.Account{}, nil }
func (f *fakeTerminal) Symbols(context.Context) ([]string, error)          { return nil, nil }
func (f *fakeTerminal) Ping(context.Context) error                         { return nil }

func (f *fakeTerminal) SymbolInfo(_ context.Context, name string) (mt5.Symbol, error) {
	atomic.AddInt64(&f.bridgeCalls, 1)
	sym, ok := f.symbols[name]
	if !ok {
		return mt5.Symbol{}, fmt.Errorf("%w: symbol %s", mt5.ErrNotFound, name)
	}
	return sym, nil
}

func (f *fakeTerminal) SymbolTick(context.Context, string) (mt5.Tick, error) {
	atomic.AddInt64(&f.bridgeCalls, 1)
	if f.tickErr != nil {
		return mt5.Tick{}, f.tickErr
	}
	return f.tick, nil
}

func (f *fakeTerminal) OrderSend(_ context.Context, req mt5.TradeRequest) (mt5.TradeResult, error) {
	atomic.AddInt64(&f.bridgeCalls, 1)
	atomic.AddInt64(&f.orderSends, 1)
	f.lastReq = req
	if f.sendErr != nil {
		return mt5.TradeResult{}, f.sendErr
	}
	return f.result, nil
}

func (f *fakeTerminal) Positions(context.Context) ([]mt5.Position, error) {
	atomic.AddInt64(&f.bridgeCalls, 1)
	return f.positions, nil
}

func (f *fakeTerminal) CopyRatesRange(context.Context, string, mt5.Timeframe, time.Time, time.Time) ([]mt5.Candle, error) {
	return nil, nil
}

func eurusd() map[string]mt5.Symbol {
	return map[string]mt5.Symbol{
		"EURUSD": {Name: "EURUSD", VolumeMin: 0.01, VolumeMax: 100, VolumeStep: 0.01},
	}
}

func TestPlaceOrderFilled(t *testing.T) {
	term := &fakeTerminal{
		symbols: eurusd(),
		tick:    mt5.Tick{Bid: 1.1000, Ask: 1.1002},
		result:  mt5.TradeResult{Retcode: mt5.RetcodeDone, Ticket: 42, Price: 1.1002},
	}
	mgr := NewManager(term, nil, nil)

	receipt, err := mgr.PlaceOrder(context.Background(), Spec{
		Symbol: "EURUSD", Volume: 0.10, OrderType: "BUY",
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if receipt.Status != mt5.StatusFilled {
		t.Errorf("Status = %s, want FILLED", receipt.Status)
	}
	if receipt.Ticket != 42 {
		t.Errorf("Ticket = %d, want 42", receipt.Ticket)
	}
	if n := atomic.LoadInt64(&term.orderSends); n != 1 {
		t.Errorf("order_send calls = %d, want exactly 1", n)
	}
	if term.lastReq.Price != 1.1002 {
		t.Errorf("BUY must use ask: got %v", term.lastReq.Price)
	}
	if term.lastReq.Deviation != 20 {
		t.Errorf("default deviation = %d, want 20", term.lastReq.Deviation)
	}
}

func TestPlaceOrderSellUsesBid(t *testing.T) {
	term := &fakeTerminal{
		symbols: eurusd(),
		tick:    mt5.Tick{Bid: 1.1000, Ask: 1.1002},
		result:  mt5.TradeResult{Retcode: mt5.RetcodeDone, Ticket: 7, Price: 1.1000},
	}
	mgr := NewManager(term, nil, nil)

	if _, err := mgr.PlaceOrder(context.Background(), Spec{Symbol: "EURUSD", Volume: 0.01, OrderType: "sell"}); err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if term.lastReq.Price != 1.1000 {
		t.Errorf("SELL must use bid: got %v", term.lastReq.Price)
	}
	if term.lastReq.Type != mt5.OrderTypeSell {
		t.Errorf("Type = %d, want %d", term.lastReq.Type, mt5.OrderTypeSell)
	}
}

func TestPlaceOrderValidationSkipsBridge(t *testing.T) {
	cases := []Spec{
		{Symbol: "", Volume: 0.1, OrderType: "BUY"},
		{Symbol: "EURUSD", Volume: 0, OrderType: "BUY"},
		{Symbol: "EURUSD", Volume: -1, OrderType: "BUY"},
		{Symbol: "EURUSD", Volume: 0.1, OrderType: "HOLD"},
		{Symbol: "EURUSD", Volume: 0.1, OrderType: "BUY", SL: -1},
	}
	for _, spec := range cases {
		term := &fakeTerminal{symbols: eurusd(), tick: mt5.Tick{Bid: 1, Ask: 1}}
		mgr := NewManager(term, nil, nil)

		_, err := mgr.PlaceOrder(context.Background(), spec)
		if !errors.Is(err, mt5.ErrValidation) {
			t.Errorf("spec %+v: err = %v, want validation error", spec, err)
		}
		if n := atomic.LoadInt64(&term.bridgeCalls); n != 0 {
			t.Errorf("spec %+v: %d bridge calls, want 0", spec, n)
		}
	}
}

func TestPlaceOrderVolumeBounds(t *testing.T) {
	cases := []float64{0.001, 200, 0.015}
	for _, vol := range cases {
		term := &fakeTerminal{symbols: eurusd(), tick: mt5.Tick{Bid: 1, Ask: 1}}
		mgr := NewManager(term, nil, nil)

		_, err := mgr.PlaceOrder(context.Background(), Spec{Symbol: "EURUSD", Volume: vol, OrderType: "BUY"})
		if !errors.Is(err, mt5.ErrValidation) {
			t.Errorf("volume %v: err = %v, want validation error", vol, err)
		}
		if n := atomic.LoadInt64(&term.orderSends); n != 0 {
			t.Errorf("volume %v: order_send called, want local rejection", vol)
		}
	}
}

func TestPlaceOrderStopDirection(t *testing.T) {
	// An inverted sl/tp pair is wrong for the side no matter where the
	// market is, so it must be rejected before any terminal round trip.
	inverted := []Spec{
		{Symbol: "EURUSD", Volume: 0.01, OrderType: "BUY", SL: 1.2000, TP: 1.0500},
		{Symbol: "EURUSD", Volume: 0.01, OrderType: "SELL", SL: 1.0500, TP: 1.2000},
	}
	for _, spec := range inverted {
		term := &fakeTerminal{symbols: eurusd(), tick: mt5.Tick{Bid: 1.1000, Ask: 1.1002}}
		mgr := NewManager(term, nil, nil)

		_, err := mgr.PlaceOrder(context.Background(), spec)
		if !errors.Is(err, mt5.ErrValidation) {
			t.Errorf("%s sl=%v tp=%v: err = %v, want validation error", spec.OrderType, spec.SL, spec.TP, err)
		}
		if n := atomic.LoadInt64(&term.bridgeCalls); n != 0 {
			t.Errorf("%s sl=%v tp=%v: %d bridge calls, want 0", spec.OrderType, spec.SL, spec.TP, n)
		}
	}

	// A lone stop on the wrong side of the live quote needs the quote to
	// detect, but must still never reach order_send.
	quoteRelative := []Spec{
		{Symbol: "EURUSD", Volume: 0.01, OrderType: "BUY", SL: 1.2000},
		{Symbol: "EURUSD", Volume: 0.01, OrderType: "SELL", TP: 1.2000},
	}
	for _, spec := range quoteRelative {
		term := &fakeTerminal{symbols: eurusd(), tick: mt5.Tick{Bid: 1.1000, Ask: 1.1002}}
		mgr := NewManager(term, nil, nil)

		_, err := mgr.PlaceOrder(context.Background(), spec)
		if !errors.Is(err, mt5.ErrValidation) {
			t.Errorf("%s sl=%v tp=%v: err = %v, want validation error", spec.OrderType, spec.SL, spec.TP, err)
		}
		if n := atomic.LoadInt64(&term.orderSends); n != 0 {
			t.Errorf("%s sl=%v tp=%v: order_send called %d times, want 0", spec.OrderType, spec.SL, spec.TP, n)
		}
	}
}

func TestPlaceOrderRetcodeMapping(t *testing.T) {
	cases := []struct {
		retcode int
		want    mt5.OrderStatus
	}{
		{mt5.RetcodeDone, mt5.StatusFilled},
		{mt5.RetcodeDonePartial, mt5.StatusFilled},
		{mt5.RetcodePlaced, mt5.StatusPending},
		{mt5.RetcodeRequote, mt5.StatusRequote},
		{mt5.RetcodeTimeout, mt5.StatusTimeout},
		{mt5.RetcodeNoMoney, mt5.StatusRejected},
		{mt5.RetcodeMarketClose, mt5.StatusRejected},
	}
	for _, tc := range cases {
		term := &fakeTerminal{
			symbols: eurusd(),
			tick:    mt5.Tick{Bid: 1.1, Ask: 1.1},
			result:  mt5.TradeResult{Retcode: tc.retcode, Comment: "scripted"},
		}
		mgr := NewManager(term, nil, nil)

		receipt, err := mgr.PlaceOrder(context.Background(), Spec{Symbol: "EURUSD", Volume: 0.01, OrderType: "BUY"})
		if err != nil {
			t.Fatalf("retcode %d: %v", tc.retcode, err)
		}
		if receipt.Status != tc.want {
			t.Errorf("retcode %d: Status = %s, want %s", tc.retcode, receipt.Status, tc.want)
		}
		if tc.want != mt5.StatusFilled && receipt.Reason == "" {
			t.Errorf("retcode %d: non-filled receipt should carry a reason", tc.retcode)
		}
	}
}

func TestPlaceOrderDisconnectedBridge(t *testing.T) {
	term := &fakeTerminal{
		symbols: eurusd(),
		tick:    mt5.Tick{Bid: 1.1, Ask: 1.1},
		sendErr: fmt.Errorf("%w: bridge not connected", mt5.ErrConnection),
	}
	mgr := NewManager(term, nil, nil)

	_, err := mgr.PlaceOrder(context.Background(), Spec{Symbol: "EURUSD", Volume: 0.01, OrderType: "BUY"})
	if !errors.Is(err, mt5.ErrConnection) {
		t.Errorf("err = %v, want connection error", err)
	}
	// No retry on trade calls, ever.
	if n := atomic.LoadInt64(&term.orderSends); n != 1 {
		t.Errorf("order_send calls = %d, want exactly 1", n)
	}
}

func TestClosePositionUnknownTicket(t *testing.T) {
	term := &fakeTerminal{positions: []mt5.Position{{Ticket: 1, Symbol: "EURUSD"}}}
	mgr := NewManager(term, nil, nil)

	_, err := mgr.ClosePosition(context.Background(), 999)
	if !errors.Is(err, mt5.ErrNotFound) {
		t.Errorf("err = %v, want not found", err)
	}
	if n := atomic.LoadInt64(&term.orderSends); n != 0 {
		t.Errorf("order_send called for unknown ticket")
	}
}

func TestClosePositionOppositeDeal(t *testing.T) {
	term := &fakeTerminal{
		positions: []mt5.Position{{Ticket: 5, Symbol: "EURUSD", Volume: 0.5, Side: mt5.SideBuy}},
		tick:      mt5.Tick{Bid: 1.0950, Ask: 1.0952},
		result:    mt5.TradeResult{Retcode: mt5.RetcodeDone, Ticket: 6, Price: 1.0950},
	}
	mgr := NewManager(term, nil, nil)

	conf, err := mgr.ClosePosition(context.Background(), 5)
	if err != nil {
		t.Fatalf("ClosePosition: %v", err)
	}
	if conf.Status != "closed" || conf.Ticket != 5 {
		t.Errorf("unexpected confirmation: %+v", conf)
	}
	if term.lastReq.Type != mt5.OrderTypeSell {
		t.Errorf("closing a BUY must SELL, got type %d", term.lastReq.Type)
	}
	if term.lastReq.Price != 1.0950 {
		t.Errorf("closing a BUY must use bid, got %v", term.lastReq.Price)
	}
	if term.lastReq.Position != 5 {
		t.Errorf("close request must reference ticket 5, got %d", term.lastReq.Position)
	}
	if term.lastReq.Volume != 0.5 {
		t.Errorf("close must use full position volume, got %v", term.lastReq.Volume)
	}
}

func TestClosePositionTerminalRejection(t *testing.T) {
	term := &fakeTerminal{
		positions: []mt5.Position{{Ticket: 5, Symbol: "EURUSD", Volume: 0.5, Side: mt5.SideSell}},
		tick:      mt5.Tick{Bid: 1.0950, Ask: 1.0952},
		result:    mt5.TradeResult{Retcode: mt5.RetcodeMarketClose, Comment: "market closed"},
	}
	mgr := NewManager(term, nil, nil)

	_, err := mgr.ClosePosition(context.Background(), 5)
	if !errors.Is(err, mt5.ErrBridge) {
		t.Errorf("err = %v, want terminal rejection", err)
	}
	if term.lastReq.Type != mt5.OrderTypeBuy {
		t.Errorf("closing a SELL must BUY, got type %d", term.lastReq.Type)
	}
}
