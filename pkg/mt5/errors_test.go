package mt5

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindMapping(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("%w: volume must be > 0", ErrValidation), "VALIDATION_ERROR"},
		{fmt.Errorf("%w: position 42", ErrNotFound), "NOT_FOUND"},
		{fmt.Errorf("%w: dial failed", ErrConnection), "TERMINAL_UNAVAILABLE"},
		{&BridgeError{Retcode: 10019, Message: "no money"}, "TERMINAL_REJECTED"},
		{errors.New("something else"), "INTERNAL_ERROR"},
	}
	for _, tc := range cases {
		if got := Kind(tc.err); got != tc.want {
			t.Errorf("Kind(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestBridgeErrorUnwrap(t *testing.T) {
	err := fmt.Errorf("order_send: %w", &BridgeError{Retcode: 10004, Message: "requote"})
	if !errors.Is(err, ErrBridge) {
		t.Fatal("wrapped BridgeError should match ErrBridge")
	}

	var be *BridgeError
	if !errors.As(err, &be) {
		t.Fatal("errors.As should recover *BridgeError")
	}
	if be.Retcode != 10004 {
		t.Errorf("Retcode = %d, want 10004", be.Retcode)
	}
}

func TestTimeframeCodes(t *testing.T) {
	cases := map[Timeframe]int{
		"M1": 1, "M5": 5, "M15": 15, "M30": 30,
		"H1": 16385, "H4": 16388, "D1": 16408, "W1": 32769, "MN1": 49153,
	}
	for tf, want := range cases {
		code, ok := tf.Code()
		if !ok || code != want {
			t.Errorf("Code(%s) = %d, %v; want %d, true", tf, code, ok, want)
		}
	}
	if _, ok := Timeframe("H2").Code(); ok {
		t.Error("H2 should not be a known timeframe")
	}
}

func TestSideOpposite(t *testing.T) {
	if SideBuy.Opposite() != SideSell || SideSell.Opposite() != SideBuy {
		t.Error("Opposite should swap BUY and SELL")
	}
	if Side("HOLD").Valid() {
		t.Error("HOLD should not be a valid side")
	}
}
