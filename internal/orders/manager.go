package orders

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"

	"mt5-gateway/internal/events"
	"mt5-gateway/pkg/mt5"
)

// Spec is a client order request after wire-level decoding.
type Spec struct {
	Symbol    string
	Volume    float64
	OrderType string // BUY or SELL
	SL        float64
	TP        float64
	Deviation int
	Comment   string
}

// CloseConfirmation acknowledges a closed position.
type CloseConfirmation struct {
	Ticket int64   `json:"ticket"`
	Status string  `json:"status"`
	Price  float64 `json:"price"`
}

// Journal records trade outcomes for audit. Implementations must never
// influence the trade path; failures are logged and ignored.
type Journal interface {
	RecordOrder(ctx context.Context, receipt mt5.OrderReceipt)
	RecordClose(ctx context.Context, conf CloseConfirmation, symbol string)
}

// Manager validates order requests and forwards them to the terminal.
// It keeps no order state of its own: the terminal owns every ticket.
type Manager struct {
	terminal mt5.Terminal
	journal  Journal
	bus      *events.Bus

	defaultDeviation int
}

// NewManager wires an order manager; journal and bus may be nil.
func NewManager(terminal mt5.Terminal, journal Journal, bus *events.Bus) *Manager {
	return &Manager{terminal: terminal, journal: journal, bus: bus, defaultDeviation: 20}
}

// PlaceOrder validates the Spec locally, then issues exactly one
// order_send. Trade calls are never retried: a connection failure after
// dispatch surfaces as-is so the caller can reconcile against the
// terminal instead of silently replaying a financial operation.
func (m *Manager) PlaceOrder(ctx context.Context, spec Spec) (mt5.OrderReceipt, error) {
	side, err := validateSpec(spec)
	if err != nil {
		return mt5.OrderReceipt{}, err
	}

	sym, err := m.terminal.SymbolInfo(ctx, spec.Symbol)
	if err != nil {
		return mt5.OrderReceipt{}, err
	}
	if err := validateVolume(spec.Volume, sym); err != nil {
		return mt5.OrderReceipt{}, err
	}

	tick, err := m.terminal.SymbolTick(ctx, spec.Symbol)
	if err != nil {
		return mt5.OrderReceipt{}, err
	}

	price := tick.Ask
	orderType := mt5.OrderTypeBuy
	if side == mt5.SideSell {
		price = tick.Bid
		orderType = mt5.OrderTypeSell
	}

	if err := validateStops(side, price, spec.SL, spec.TP); err != nil {
		return mt5.OrderReceipt{}, err
	}

	deviation := spec.Deviation
	if deviation <= 0 {
		deviation = m.defaultDeviation
	}
	req := mt5.TradeRequest{
		Action:    mt5.TradeActionDeal,
		Symbol:    spec.Symbol,
		Volume:    spec.Volume,
		Type:      orderType,
		Price:     price,
		SL:        spec.SL,
		TP:        spec.TP,
		Deviation: deviation,
		Comment:   spec.Comment,
	}

	res, err := m.terminal.OrderSend(ctx, req)
	if err != nil {
		return mt5.OrderReceipt{}, err
	}

	receipt := mt5.OrderReceipt{
		Ticket:    res.Ticket,
		Symbol:    spec.Symbol,
		Volume:    spec.Volume,
		Price:     res.Price,
		OrderType: side,
		Status:    statusFromRetcode(res.Retcode),
		Reason:    reasonFromResult(res),
	}
	log.Printf("orders: %s %s %.2f -> ticket=%d status=%s", side, spec.Symbol, spec.Volume, receipt.Ticket, receipt.Status)

	if m.journal != nil {
		m.journal.RecordOrder(ctx, receipt)
	}
	if m.bus != nil {
		if receipt.Status == mt5.StatusRejected {
			m.bus.Publish(events.EventOrderRejected, receipt)
		} else {
			m.bus.Publish(events.EventOrderPlaced, receipt)
		}
	}
	return receipt, nil
}

// ClosePosition closes the position identified by ticket with an
// opposite market deal. The terminal is authoritative for the ticket
// lookup; there is no local position cache to consult.
func (m *Manager) ClosePosition(ctx context.Context, ticket int64) (CloseConfirmation, error) {
	positions, err := m.terminal.Positions(ctx)
	if err != nil {
		return CloseConfirmation{}, err
	}

	var pos *mt5.Position
	for i := range positions {
		if positions[i].Ticket == ticket {
			pos = &positions[i]
			break
		}
	}
	if pos == nil {
		return CloseConfirmation{}, fmt.Errorf("%w: position %d", mt5.ErrNotFound, ticket)
	}

	tick, err := m.terminal.SymbolTick(ctx, pos.Symbol)
	if err != nil {
		return CloseConfirmation{}, err
	}

	// Closing a BUY sells at bid; closing a SELL buys at ask.
	price := tick.Bid
	orderType := mt5.OrderTypeSell
	if pos.Side == mt5.SideSell {
		price = tick.Ask
		orderType = mt5.OrderTypeBuy
	}

	res, err := m.terminal.OrderSend(ctx, mt5.TradeRequest{
		Action:    mt5.TradeActionDeal,
		Symbol:    pos.Symbol,
		Volume:    pos.Volume,
		Type:      orderType,
		Price:     price,
		Deviation: m.defaultDeviation,
		Position:  ticket,
		Comment:   fmt.Sprintf("close position %d", ticket),
	})
	if err != nil {
		return CloseConfirmation{}, err
	}
	if res.Retcode != mt5.RetcodeDone {
		return CloseConfirmation{}, &mt5.BridgeError{Retcode: res.Retcode, Message: res.Comment}
	}

	conf := CloseConfirmation{Ticket: ticket, Status: "closed", Price: res.Price}
	log.Printf("orders: closed position %d (%s %.2f @ %.5f)", ticket, pos.Symbol, pos.Volume, res.Price)

	if m.journal != nil {
		m.journal.RecordClose(ctx, conf, pos.Symbol)
	}
	if m.bus != nil {
		m.bus.Publish(events.EventPositionClose, conf)
	}
	return conf, nil
}

// validateSpec checks everything that needs no market data.
func validateSpec(spec Spec) (mt5.Side, error) {
	if strings.TrimSpace(spec.Symbol) == "" {
		return "", fmt.Errorf("%w: symbol is required", mt5.ErrValidation)
	}
	if spec.Volume <= 0 {
		return "", fmt.Errorf("%w: volume must be > 0", mt5.ErrValidation)
	}
	side := mt5.Side(strings.ToUpper(spec.OrderType))
	if !side.Valid() {
		return "", fmt.Errorf("%w: order_type must be BUY or SELL", mt5.ErrValidation)
	}
	if spec.SL < 0 || spec.TP < 0 {
		return "", fmt.Errorf("%w: sl/tp must be >= 0", mt5.ErrValidation)
	}
	// With both stops set, their ordering is fixed by the side alone:
	// a BUY exits down through SL and up through TP, a SELL the reverse.
	// No quote is needed to reject an inverted pair.
	if spec.SL > 0 && spec.TP > 0 {
		if side == mt5.SideBuy && spec.SL >= spec.TP {
			return "", fmt.Errorf("%w: stop-loss %.5f must be below take-profit %.5f for BUY", mt5.ErrValidation, spec.SL, spec.TP)
		}
		if side == mt5.SideSell && spec.TP >= spec.SL {
			return "", fmt.Errorf("%w: take-profit %.5f must be below stop-loss %.5f for SELL", mt5.ErrValidation, spec.TP, spec.SL)
		}
	}
	return side, nil
}

// validateVolume enforces the symbol's volume bounds and step.
func validateVolume(volume float64, sym mt5.Symbol) error {
	if sym.VolumeMin > 0 && volume < sym.VolumeMin {
		return fmt.Errorf("%w: volume %.4f below minimum %.4f", mt5.ErrValidation, volume, sym.VolumeMin)
	}
	if sym.VolumeMax > 0 && volume > sym.VolumeMax {
		return fmt.Errorf("%w: volume %.4f above maximum %.4f", mt5.ErrValidation, volume, sym.VolumeMax)
	}
	if sym.VolumeStep > 0 {
		steps := volume / sym.VolumeStep
		if math.Abs(steps-math.Round(steps)) > 1e-7 {
			return fmt.Errorf("%w: volume %.4f not aligned to step %.4f", mt5.ErrValidation, volume, sym.VolumeStep)
		}
	}
	return nil
}

// validateStops rejects stop levels on the wrong side of the price.
func validateStops(side mt5.Side, price, sl, tp float64) error {
	if side == mt5.SideBuy {
		if sl > 0 && sl >= price {
			return fmt.Errorf("%w: stop-loss %.5f must be below price %.5f for BUY", mt5.ErrValidation, sl, price)
		}
		if tp > 0 && tp <= price {
			return fmt.Errorf("%w: take-profit %.5f must be above price %.5f for BUY", mt5.ErrValidation, tp, price)
		}
		return nil
	}
	if sl > 0 && sl <= price {
		return fmt.Errorf("%w: stop-loss %.5f must be above price %.5f for SELL", mt5.ErrValidation, sl, price)
	}
	if tp > 0 && tp >= price {
		return fmt.Errorf("%w: take-profit %.5f must be below price %.5f for SELL", mt5.ErrValidation, tp, price)
	}
	return nil
}

func statusFromRetcode(retcode int) mt5.OrderStatus {
	switch retcode {
	case mt5.RetcodeDone, mt5.RetcodeDonePartial:
		return mt5.StatusFilled
	case mt5.RetcodePlaced:
		return mt5.StatusPending
	case mt5.RetcodeRequote:
		return mt5.StatusRequote
	case mt5.RetcodeTimeout:
		return mt5.StatusTimeout
	default:
		return mt5.StatusRejected
	}
}

func reasonFromResult(res mt5.TradeResult) string {
	if res.Retcode == mt5.RetcodeDone || res.Retcode == mt5.RetcodeDonePartial {
		return ""
	}
	if res.Comment != "" {
		return res.Comment
	}
	return fmt.Sprintf("retcode %d", res.Retcode)
}

// IsRejected reports whether err or a receipt status means the terminal
// refused the order (as opposed to never receiving it).
func IsRejected(err error) bool {
	return errors.Is(err, mt5.ErrBridge)
}
