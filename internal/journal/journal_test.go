package journal

import (
	"context"
	"path/filepath"
	"testing"

	"mt5-gateway/internal/orders"
	"mt5-gateway/pkg/mt5"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestRecordAndRecent(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	j.RecordOrder(ctx, mt5.OrderReceipt{
		Ticket: 42, Symbol: "EURUSD", Volume: 0.1, Price: 1.1002,
		OrderType: mt5.SideBuy, Status: mt5.StatusFilled,
	})
	j.RecordOrder(ctx, mt5.OrderReceipt{
		Ticket: 43, Symbol: "GBPUSD", Volume: 0.2, Price: 1.27,
		OrderType: mt5.SideSell, Status: mt5.StatusRejected, Reason: "no money",
	})
	j.RecordClose(ctx, orders.CloseConfirmation{Ticket: 42, Status: "closed", Price: 1.1050}, "EURUSD")

	entries, err := j.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("len = %d, want 3", len(entries))
	}

	// Newest first.
	if entries[0].Kind != "close" || entries[0].Ticket != 42 {
		t.Errorf("latest entry = %+v, want the close event", entries[0])
	}

	var rejected *Entry
	for i := range entries {
		if entries[i].Status == string(mt5.StatusRejected) {
			rejected = &entries[i]
		}
	}
	if rejected == nil || rejected.Reason != "no money" {
		t.Errorf("rejected entry should carry its reason, got %+v", rejected)
	}
}

func TestRecentLimit(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		j.RecordOrder(ctx, mt5.OrderReceipt{
			Ticket: int64(i + 1), Symbol: "EURUSD", Volume: 0.1,
			OrderType: mt5.SideBuy, Status: mt5.StatusFilled,
		})
	}

	entries, err := j.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("len = %d, want 3", len(entries))
	}
}

func TestOpenEmptyPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Error("expected error for empty path")
	}
}
