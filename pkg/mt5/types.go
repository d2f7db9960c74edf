package mt5

import "time"

// Side denotes order side.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns SELL for BUY and BUY for SELL.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Valid reports whether the side is one of the two known values.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// OrderStatus normalizes terminal retcodes into a small set.
type OrderStatus string

const (
	StatusFilled   OrderStatus = "FILLED"
	StatusPending  OrderStatus = "PENDING"
	StatusRejected OrderStatus = "REJECTED"
	StatusRequote  OrderStatus = "REQUOTE"
	StatusTimeout  OrderStatus = "TIMEOUT"
)

// MT5 wire constants. Values match the terminal protocol.
const (
	OrderTypeBuy    = 0
	OrderTypeSell   = 1
	TradeActionDeal = 1
)

// Trade retcodes returned by order_send.
const (
	RetcodeRequote     = 10004
	RetcodeReject      = 10006
	RetcodePlaced      = 10008
	RetcodeDone        = 10009
	RetcodeDonePartial = 10010
	RetcodeTimeout     = 10012
	RetcodeInvalidVol  = 10014
	RetcodeInvalidStop = 10016
	RetcodeMarketClose = 10018
	RetcodeNoMoney     = 10019
)

// Timeframe is a candle aggregation interval ("M1".."MN1").
type Timeframe string

// timeframes maps wire names to terminal timeframe codes.
var timeframes = map[Timeframe]int{
	"M1":  1,
	"M5":  5,
	"M15": 15,
	"M30": 30,
	"H1":  16385,
	"H4":  16388,
	"D1":  16408,
	"W1":  32769,
	"MN1": 49153,
}

// Code returns the terminal code for the timeframe and whether it is known.
func (tf Timeframe) Code() (int, bool) {
	c, ok := timeframes[tf]
	return c, ok
}

// Account is a read-only snapshot of the trading account.
type Account struct {
	Login      int64   `json:"login"`
	Server     string  `json:"server"`
	Balance    float64 `json:"balance"`
	Equity     float64 `json:"equity"`
	Margin     float64 `json:"margin"`
	FreeMargin float64 `json:"free_margin"`
	Leverage   int     `json:"leverage"`
	Currency   string  `json:"currency"`
	Name       string  `json:"name"`
	Company    string  `json:"company"`
}

// Symbol describes a tradable instrument as reported by the terminal.
type Symbol struct {
	Name         string  `json:"name"`
	Description  string  `json:"description"`
	Digits       int     `json:"digits"`
	Point        float64 `json:"point"`
	Spread       float64 `json:"spread"`
	ContractSize float64 `json:"trade_contract_size"`
	VolumeMin    float64 `json:"volume_min"`
	VolumeMax    float64 `json:"volume_max"`
	VolumeStep   float64 `json:"volume_step"`
	Visible      bool    `json:"visible"`
}

// Tick is a single bid/ask update for a symbol.
type Tick struct {
	Symbol string    `json:"symbol"`
	Bid    float64   `json:"bid"`
	Ask    float64   `json:"ask"`
	Last   float64   `json:"last"`
	Volume float64   `json:"volume"`
	Time   time.Time `json:"time"`
}

// Candle is one OHLCV bar for a fixed interval.
type Candle struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
	Spread int       `json:"spread"`
}

// Position is an open position owned by the terminal.
type Position struct {
	Ticket       int64     `json:"ticket"`
	Symbol       string    `json:"symbol"`
	Volume       float64   `json:"volume"`
	Side         Side      `json:"type"`
	OpenPrice    float64   `json:"price"`
	CurrentPrice float64   `json:"current_price"`
	Profit       float64   `json:"profit"`
	StopLoss     float64   `json:"sl"`
	TakeProfit   float64   `json:"tp"`
	OpenedAt     time.Time `json:"time"`
	Comment      string    `json:"comment"`
}

// TradeRequest is the payload for order_send.
type TradeRequest struct {
	Action    int     `json:"action"`
	Symbol    string  `json:"symbol"`
	Volume    float64 `json:"volume"`
	Type      int     `json:"type"`
	Price     float64 `json:"price"`
	SL        float64 `json:"sl,omitempty"`
	TP        float64 `json:"tp,omitempty"`
	Deviation int     `json:"deviation"`
	Position  int64   `json:"position,omitempty"`
	Comment   string  `json:"comment,omitempty"`
}

// TradeResult is the terminal ack for order_send.
type TradeResult struct {
	Retcode int     `json:"retcode"`
	Ticket  int64   `json:"order"`
	Volume  float64 `json:"volume"`
	Price   float64 `json:"price"`
	Comment string  `json:"comment"`
}

// OrderReceipt is the gateway-level result of a placed order.
type OrderReceipt struct {
	Ticket    int64       `json:"ticket"`
	Symbol    string      `json:"symbol"`
	Volume    float64     `json:"volume"`
	Price     float64     `json:"price"`
	OrderType Side        `json:"order_type"`
	Status    OrderStatus `json:"status"`
	Reason    string      `json:"reason,omitempty"`
}
