package bridge

import "encoding/json"

// Bridge method names. The terminal-side shim accepts exactly this set;
// anything else is rejected with errMethodUnknown.
const (
	methodLogin          = "login"
	methodAccountInfo    = "account_info"
	methodSymbols        = "symbols_get"
	methodSymbolInfo     = "symbol_info"
	methodSymbolTick     = "symbol_info_tick"
	methodOrderSend      = "order_send"
	methodPositions      = "positions_get"
	methodCopyRatesRange = "copy_rates_range"
	methodTerminalInfo   = "terminal_info"
)

// Wire-level error codes produced by the shim itself (terminal retcodes
// pass through unchanged and are always positive five-digit values).
const (
	errCodeNotFound  = 404
	errMethodUnknown = 400
	errTerminalGone  = 503
)

// request is a single framed call to the bridge.
type request struct {
	ID     string `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

// response mirrors request by ID; exactly one of Result/Error is set.
type response struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *wireError      `json:"error,omitempty"`
}

type wireError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
