package health

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"mt5-gateway/internal/events"
	"mt5-gateway/pkg/mt5"
)

// State describes the terminal connection as seen by the gateway.
type State string

const (
	StateDisconnected State = "DISCONNECTED"
	StateConnecting   State = "CONNECTING"
	StateConnected    State = "CONNECTED"
)

// Prober is the probe surface of the bridge client.
type Prober interface {
	Ping(ctx context.Context) error
}

// Monitor owns the process-wide connection state. It probes the bridge
// on a fixed interval, independent of request traffic, and publishes
// state transitions on the event bus.
type Monitor struct {
	prober   Prober
	bus      *events.Bus
	interval time.Duration
	timeout  time.Duration

	mu             sync.RWMutex
	state          State
	lastProbe      time.Time
	lastErr        string
	timeoutsInARow int
}

// NewMonitor creates a monitor in the DISCONNECTED state.
func NewMonitor(prober Prober, bus *events.Bus, interval, timeout time.Duration) *Monitor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if timeout <= 0 {
		timeout = interval
	}
	return &Monitor{
		prober:   prober,
		bus:      bus,
		interval: interval,
		timeout:  timeout,
		state:    StateDisconnected,
	}
}

// Start begins periodic probing until ctx is canceled.
func (m *Monitor) Start(ctx context.Context) {
	m.transition(StateConnecting)
	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		m.probe(ctx)
		for {
			select {
			case <-ctx.Done():
				m.transition(StateDisconnected)
				return
			case <-ticker.C:
				m.probe(ctx)
			}
		}
	}()
}

// State returns the current connection state.
func (m *Monitor) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Connected is the fail-fast check used by request handlers.
func (m *Monitor) Connected() bool {
	return m.State() == StateConnected
}

// LastProbe returns the time and error message of the latest probe.
func (m *Monitor) LastProbe() (time.Time, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastProbe, m.lastErr
}

func (m *Monitor) probe(ctx context.Context) {
	// Each probe against a down link is a reconnect attempt.
	if m.State() == StateDisconnected {
		m.transition(StateConnecting)
	}

	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	err := m.prober.Ping(probeCtx)
	cancel()

	m.mu.Lock()
	m.lastProbe = time.Now()
	if err != nil {
		m.lastErr = err.Error()
	} else {
		m.lastErr = ""
	}
	m.mu.Unlock()

	switch {
	case err == nil:
		m.mu.Lock()
		m.timeoutsInARow = 0
		m.mu.Unlock()
		m.transition(StateConnected)
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(probeCtx.Err(), context.DeadlineExceeded):
		// A single timeout may be load; two in a row means the link is gone.
		m.mu.Lock()
		m.timeoutsInARow++
		n := m.timeoutsInARow
		m.mu.Unlock()
		if n >= 2 {
			m.transition(StateDisconnected)
		}
	default:
		m.mu.Lock()
		m.timeoutsInARow = 0
		m.mu.Unlock()
		m.transition(StateDisconnected)
	}
}

func (m *Monitor) transition(next State) {
	m.mu.Lock()
	prev := m.state
	if prev == next {
		m.mu.Unlock()
		return
	}
	m.state = next
	m.mu.Unlock()

	log.Printf("health: %s -> %s", prev, next)
	if m.bus != nil {
		m.bus.Publish(events.EventConnState, next)
	}
}

// ForceProbe runs one probe immediately (used by tests and by the
// reconnect path to shorten the CONNECTING window).
func (m *Monitor) ForceProbe(ctx context.Context) {
	m.probe(ctx)
}

var _ Prober = (mt5.Terminal)(nil)
