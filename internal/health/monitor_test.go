package health

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"mt5-gateway/internal/events"
)

// scriptedProber returns its errors in order, then nil forever.
type scriptedProber struct {
	mu   sync.Mutex
	errs []error
}

func (p *scriptedProber) Ping(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.errs) == 0 {
		return nil
	}
	err := p.errs[0]
	p.errs = p.errs[1:]
	return err
}

func TestProbeSuccessConnects(t *testing.T) {
	m := NewMonitor(&scriptedProber{}, nil, time.Second, time.Second)
	if m.State() != StateDisconnected {
		t.Fatalf("initial state = %s, want DISCONNECTED", m.State())
	}

	m.ForceProbe(context.Background())
	if !m.Connected() {
		t.Errorf("state = %s, want CONNECTED after successful probe", m.State())
	}
}

func TestSingleTimeoutKeepsConnection(t *testing.T) {
	p := &scriptedProber{errs: []error{nil, context.DeadlineExceeded}}
	m := NewMonitor(p, nil, time.Second, time.Second)

	m.ForceProbe(context.Background()) // connect
	m.ForceProbe(context.Background()) // one timeout
	if !m.Connected() {
		t.Errorf("one timeout must not drop the connection, state = %s", m.State())
	}
}

func TestTwoTimeoutsDisconnect(t *testing.T) {
	p := &scriptedProber{errs: []error{nil, context.DeadlineExceeded, context.DeadlineExceeded}}
	m := NewMonitor(p, nil, time.Second, time.Second)

	m.ForceProbe(context.Background())
	m.ForceProbe(context.Background())
	m.ForceProbe(context.Background())
	if m.State() != StateDisconnected {
		t.Errorf("two consecutive timeouts must disconnect, state = %s", m.State())
	}
}

func TestSuccessResetsTimeoutCount(t *testing.T) {
	p := &scriptedProber{errs: []error{nil, context.DeadlineExceeded, nil, context.DeadlineExceeded}}
	m := NewMonitor(p, nil, time.Second, time.Second)

	for i := 0; i < 4; i++ {
		m.ForceProbe(context.Background())
	}
	if !m.Connected() {
		t.Errorf("interleaved successes must reset the timeout count, state = %s", m.State())
	}
}

func TestHardFailureDisconnectsImmediately(t *testing.T) {
	p := &scriptedProber{errs: []error{nil, errors.New("connection refused")}}
	m := NewMonitor(p, nil, time.Second, time.Second)

	m.ForceProbe(context.Background())
	m.ForceProbe(context.Background())
	if m.State() != StateDisconnected {
		t.Errorf("hard failure must disconnect at once, state = %s", m.State())
	}
}

func TestTransitionsPublishedOnBus(t *testing.T) {
	bus := events.NewBus()
	ch, unsub := bus.Subscribe(events.EventConnState, 8)
	defer unsub()

	p := &scriptedProber{errs: []error{nil, errors.New("gone")}}
	m := NewMonitor(p, bus, time.Second, time.Second)

	m.ForceProbe(context.Background())
	m.ForceProbe(context.Background())

	var states []State
	for len(states) < 3 {
		select {
		case payload := <-ch:
			states = append(states, payload.(State))
		case <-time.After(time.Second):
			t.Fatalf("timed out after states %v", states)
		}
	}
	// DISCONNECTED -> CONNECTING -> CONNECTED -> (CONNECTING is skipped
	// while up) -> DISCONNECTED
	want := []State{StateConnecting, StateConnected, StateDisconnected}
	for i, w := range want {
		if states[i] != w {
			t.Errorf("transition %d = %s, want %s", i, states[i], w)
		}
	}
}

func TestStartProbesPeriodically(t *testing.T) {
	m := NewMonitor(&scriptedProber{}, nil, 10*time.Millisecond, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m.Start(ctx)

	deadline := time.After(time.Second)
	for !m.Connected() {
		select {
		case <-deadline:
			t.Fatal("monitor never reached CONNECTED")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if probed, _ := m.LastProbe(); probed.IsZero() {
		t.Error("LastProbe should be set after probing")
	}
}
