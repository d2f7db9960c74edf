package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"mt5-gateway/pkg/mt5"
)

// Config carries the connection parameters for the terminal bridge.
type Config struct {
	URL            string
	RequestTimeout time.Duration
	BaseDelay      time.Duration
	MaxDelay       time.Duration

	// Credentials replayed after every reconnect. Login 0 skips the
	// login call (terminal already authenticated).
	Login    int64
	Password string
	Server   string

	// Optional instrumentation hooks.
	ObserveLatency func(time.Duration)
	OnReconnect    func()
}

// Client speaks framed JSON to the terminal-side bridge over one
// websocket connection. All calls funnel through a FIFO queue consumed
// by a single worker so concurrent callers never interleave frames on
// the shared protocol session.
type Client struct {
	cfg    Config
	dialer *websocket.Dialer

	calls chan *pendingCall

	mu        sync.RWMutex
	connected bool
}

type pendingCall struct {
	ctx    context.Context
	method string
	params any
	reply  chan callResult
}

type callResult struct {
	data json.RawMessage
	err  error
}

// New builds a client; Start must be called before Call.
func New(cfg Config) *Client {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Second
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = 30 * time.Second
	}
	return &Client{
		cfg:    cfg,
		dialer: websocket.DefaultDialer,
		calls:  make(chan *pendingCall, 64),
	}
}

// Start runs the connect/serve/reconnect loop until ctx is canceled.
func (c *Client) Start(ctx context.Context) {
	go c.run(ctx)
}

// Connected reports whether the bridge connection is currently up.
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// QueueDepth reports how many calls are waiting for the worker.
func (c *Client) QueueDepth() int {
	return len(c.calls)
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

func (c *Client) run(ctx context.Context) {
	backoff := &Backoff{Base: c.cfg.BaseDelay, Max: c.cfg.MaxDelay}

	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
		if err != nil {
			delay := backoff.Next()
			log.Printf("bridge: dial %s failed: %v (retry in %v)", c.cfg.URL, err, delay)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}

		if err := c.loginOnConn(conn); err != nil {
			_ = conn.Close()
			delay := backoff.Next()
			log.Printf("bridge: login failed: %v (retry in %v)", err, delay)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}

		backoff.Reset()
		c.setConnected(true)
		log.Printf("bridge: connected to %s", c.cfg.URL)
		if c.cfg.OnReconnect != nil {
			c.cfg.OnReconnect()
		}

		err = c.serve(ctx, conn)
		c.setConnected(false)
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}
		log.Printf("bridge: connection lost: %v", err)
	}
}

// loginOnConn performs the initial login exchange directly on a fresh
// connection, before it starts serving the call queue.
func (c *Client) loginOnConn(conn *websocket.Conn) error {
	if c.cfg.Login == 0 {
		return nil
	}
	params := map[string]any{
		"login":    c.cfg.Login,
		"password": c.cfg.Password,
		"server":   c.cfg.Server,
	}
	_, err := c.roundTrip(conn, methodLogin, params)
	return err
}

// serve consumes the call queue until the connection errors. A timeout
// or desync poisons the connection: we return and force a reconnect
// rather than trying to repair the session in place.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case call := <-c.calls:
			// A call whose caller already gave up must never reach the
			// wire: the caller was told it failed, and executing it now
			// (possibly on a fresh session, long after it was queued)
			// would run a trade nobody is waiting for.
			if err := call.ctx.Err(); err != nil {
				call.reply <- callResult{err: fmt.Errorf("%w: %v", mt5.ErrConnection, err)}
				continue
			}
			data, err := c.roundTrip(conn, call.method, call.params)
			call.reply <- callResult{data: data, err: err}
			if err != nil && errors.Is(err, mt5.ErrConnection) {
				return err
			}
		}
	}
}

// roundTrip writes one request frame and reads its response. Calls are
// strictly serialized, so the next frame on the wire must carry our ID;
// anything else is a protocol desync.
func (c *Client) roundTrip(conn *websocket.Conn, method string, params any) (json.RawMessage, error) {
	id := uuid.NewString()
	req := request{ID: id, Method: method, Params: params}

	if c.cfg.ObserveLatency != nil {
		start := time.Now()
		defer func() { c.cfg.ObserveLatency(time.Since(start)) }()
	}

	deadline := time.Now().Add(c.cfg.RequestTimeout)
	_ = conn.SetWriteDeadline(deadline)
	if err := conn.WriteJSON(req); err != nil {
		return nil, fmt.Errorf("%w: write %s: %v", mt5.ErrConnection, method, err)
	}

	_ = conn.SetReadDeadline(deadline)
	var resp response
	if err := conn.ReadJSON(&resp); err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", mt5.ErrConnection, method, err)
	}
	if resp.ID != id {
		return nil, fmt.Errorf("%w: desync on %s: got frame %s", mt5.ErrConnection, method, resp.ID)
	}
	if resp.Error != nil {
		if resp.Error.Code == errCodeNotFound {
			return nil, fmt.Errorf("%w: %s", mt5.ErrNotFound, resp.Error.Message)
		}
		return nil, &mt5.BridgeError{Retcode: resp.Error.Code, Message: resp.Error.Message}
	}
	return resp.Result, nil
}

// Call enqueues a bridge call and waits for the result. It fails fast
// with a connection error while the bridge is down instead of queueing
// against a dead session.
func (c *Client) Call(ctx context.Context, method string, params any, out any) error {
	if !c.Connected() {
		return fmt.Errorf("%w: bridge not connected", mt5.ErrConnection)
	}

	call := &pendingCall{ctx: ctx, method: method, params: params, reply: make(chan callResult, 1)}
	select {
	case c.calls <- call:
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", mt5.ErrConnection, ctx.Err())
	}

	// Once the worker picks the call up it always answers; the reply
	// channel is buffered so an abandoned caller leaks nothing.
	select {
	case res := <-call.reply:
		if res.err != nil {
			return res.err
		}
		if out != nil && len(res.data) > 0 {
			if err := json.Unmarshal(res.data, out); err != nil {
				return fmt.Errorf("decode %s result: %w", method, err)
			}
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", mt5.ErrConnection, ctx.Err())
	}
}

// --- mt5.Terminal implementation ---

// Login authenticates against the terminal explicitly (the run loop
// already replays it on reconnect).
func (c *Client) Login(ctx context.Context, login int64, password, server string) error {
	return c.Call(ctx, methodLogin, map[string]any{
		"login": login, "password": password, "server": server,
	}, nil)
}

func (c *Client) AccountInfo(ctx context.Context) (mt5.Account, error) {
	var acc mt5.Account
	err := c.Call(ctx, methodAccountInfo, nil, &acc)
	return acc, err
}

func (c *Client) Symbols(ctx context.Context) ([]string, error) {
	var names []string
	err := c.Call(ctx, methodSymbols, nil, &names)
	return names, err
}

func (c *Client) SymbolInfo(ctx context.Context, name string) (mt5.Symbol, error) {
	var sym mt5.Symbol
	err := c.Call(ctx, methodSymbolInfo, map[string]any{"symbol": name}, &sym)
	return sym, err
}

func (c *Client) SymbolTick(ctx context.Context, name string) (mt5.Tick, error) {
	var tick mt5.Tick
	err := c.Call(ctx, methodSymbolTick, map[string]any{"symbol": name}, &tick)
	if err == nil {
		tick.Symbol = name
	}
	return tick, err
}

func (c *Client) OrderSend(ctx context.Context, req mt5.TradeRequest) (mt5.TradeResult, error) {
	var res mt5.TradeResult
	err := c.Call(ctx, methodOrderSend, req, &res)
	return res, err
}

func (c *Client) Positions(ctx context.Context) ([]mt5.Position, error) {
	var positions []mt5.Position
	err := c.Call(ctx, methodPositions, nil, &positions)
	return positions, err
}

func (c *Client) CopyRatesRange(ctx context.Context, symbol string, timeframe mt5.Timeframe, start, end time.Time) ([]mt5.Candle, error) {
	code, ok := timeframe.Code()
	if !ok {
		return nil, fmt.Errorf("%w: unknown timeframe %q", mt5.ErrValidation, timeframe)
	}
	var candles []mt5.Candle
	err := c.Call(ctx, methodCopyRatesRange, map[string]any{
		"symbol":    symbol,
		"timeframe": code,
		"start":     start.Unix(),
		"end":       end.Unix(),
	}, &candles)
	return candles, err
}

// Ping issues the lightweight terminal_info probe.
func (c *Client) Ping(ctx context.Context) error {
	return c.Call(ctx, methodTerminalInfo, nil, nil)
}
