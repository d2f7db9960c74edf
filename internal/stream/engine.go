package stream

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"mt5-gateway/internal/events"
	"mt5-gateway/internal/health"
	"mt5-gateway/pkg/mt5"
)

const subscriberBuffer = 16

// Subscription is one consumer's view of a symbol's tick feed. Ticks
// arrive on C with at-most-once delivery: a consumer that falls behind
// misses quotes instead of stalling the poller.
type Subscription struct {
	C      <-chan mt5.Tick
	cancel func()
}

// Close detaches the subscription. The channel is closed by the engine.
func (s *Subscription) Close() { s.cancel() }

// Engine multiplexes tick polling: one poller goroutine per symbol with
// at least one subscriber, no matter how many consumers attach. Pollers
// go idle while the terminal connection is down and resume on recovery.
type Engine struct {
	terminal  mt5.Terminal
	bus       *events.Bus
	interval  time.Duration
	suspended atomic.Bool

	mu      sync.Mutex
	pollers map[string]*poller
	nextID  uint64
}

type poller struct {
	symbol string
	stop   chan struct{}

	mu   sync.Mutex
	subs map[uint64]chan mt5.Tick
	last mt5.Tick
}

// NewEngine builds a tick streaming engine.
func NewEngine(terminal mt5.Terminal, bus *events.Bus, interval time.Duration) *Engine {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &Engine{
		terminal: terminal,
		bus:      bus,
		interval: interval,
		pollers:  make(map[string]*poller),
	}
}

// Start watches connection-state events until ctx is canceled. Pollers
// keep their tickers running while suspended; they just skip the probe,
// so resume is immediate on the next period.
func (e *Engine) Start(ctx context.Context) {
	if e.bus == nil {
		return
	}
	ch, unsub := e.bus.Subscribe(events.EventConnState, 8)
	go func() {
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case payload, ok := <-ch:
				if !ok {
					return
				}
				state, _ := payload.(health.State)
				down := state != health.StateConnected
				if e.suspended.Swap(down) != down {
					if down {
						log.Printf("stream: polling suspended (%s)", state)
					} else {
						log.Printf("stream: polling resumed")
					}
				}
			}
		}
	}()
}

// Subscribe attaches a consumer to the symbol's tick feed, starting a
// poller if this is the symbol's first subscriber.
func (e *Engine) Subscribe(symbol string) *Subscription {
	e.mu.Lock()
	p, ok := e.pollers[symbol]
	if !ok {
		p = &poller{
			symbol: symbol,
			stop:   make(chan struct{}),
			subs:   make(map[uint64]chan mt5.Tick),
		}
		e.pollers[symbol] = p
		go e.poll(p)
	}
	e.nextID++
	id := e.nextID

	// Attach before releasing the engine lock: the last-unsubscribe
	// retire path re-checks emptiness under the same lock, so a poller
	// found in the map cannot be torn down between lookup and attach.
	ch := make(chan mt5.Tick, subscriberBuffer)
	p.mu.Lock()
	p.subs[id] = ch
	p.mu.Unlock()
	e.mu.Unlock()

	return &Subscription{
		C:      ch,
		cancel: func() { e.unsubscribe(p, id) },
	}
}

// SubscriberCount reports the number of consumers attached to symbol.
func (e *Engine) SubscriberCount(symbol string) int {
	e.mu.Lock()
	p, ok := e.pollers[symbol]
	e.mu.Unlock()
	if !ok {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

// PollerCount reports how many symbol pollers are live.
func (e *Engine) PollerCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pollers)
}

func (e *Engine) unsubscribe(p *poller, id uint64) {
	p.mu.Lock()
	ch, ok := p.subs[id]
	if ok {
		delete(p.subs, id)
		close(ch)
	}
	empty := len(p.subs) == 0
	p.mu.Unlock()
	if !ok || !empty {
		return
	}

	// Last subscriber gone: retire the poller. Re-check under the
	// engine lock in case a new subscriber raced in.
	e.mu.Lock()
	p.mu.Lock()
	if len(p.subs) == 0 && e.pollers[p.symbol] == p {
		delete(e.pollers, p.symbol)
		close(p.stop)
	}
	p.mu.Unlock()
	e.mu.Unlock()
}

func (e *Engine) poll(p *poller) {
	log.Printf("stream: poller started for %s", p.symbol)
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			log.Printf("stream: poller stopped for %s", p.symbol)
			return
		case <-ticker.C:
			if e.suspended.Load() {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), e.interval*4)
			tick, err := e.terminal.SymbolTick(ctx, p.symbol)
			cancel()
			if err != nil {
				// The health monitor decides when the link is down;
				// a failed poll is just a missed tick.
				continue
			}
			p.broadcast(tick)
		}
	}
}

// broadcast fans a tick out to every subscriber without blocking. An
// unchanged quote is not re-sent.
func (p *poller) broadcast(tick mt5.Tick) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if tick.Time.Equal(p.last.Time) && tick.Bid == p.last.Bid && tick.Ask == p.last.Ask {
		return
	}
	p.last = tick

	for _, ch := range p.subs {
		select {
		case ch <- tick:
		default:
			// slow consumer drops this tick
		}
	}
}
