package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"mt5-gateway/internal/orders"
	"mt5-gateway/pkg/mt5"
)

// Journal is an append-only audit log of trade outcomes. It is strictly
// observational: the terminal remains the source of truth for every
// ticket, and a journal failure never fails the trade that produced it.
type Journal struct {
	db *sql.DB
}

// Entry is one journaled trade event.
type Entry struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"` // "open" or "close"
	Ticket    int64     `json:"ticket"`
	Symbol    string    `json:"symbol"`
	Volume    float64   `json:"volume"`
	Price     float64   `json:"price"`
	OrderType string    `json:"order_type,omitempty"`
	Status    string    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

const schema = `
CREATE TABLE IF NOT EXISTS trade_events (
    id         TEXT PRIMARY KEY,
    kind       TEXT NOT NULL,
    ticket     INTEGER NOT NULL,
    symbol     TEXT NOT NULL,
    volume     REAL NOT NULL,
    price      REAL NOT NULL,
    order_type TEXT NOT NULL DEFAULT '',
    status     TEXT NOT NULL,
    reason     TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trade_events_ticket ON trade_events(ticket);
CREATE INDEX IF NOT EXISTS idx_trade_events_created ON trade_events(created_at);
`

// Open creates (if needed) and opens the journal database at path.
func Open(path string) (*Journal, error) {
	if path == "" {
		return nil, errors.New("journal path is empty")
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite prefers single writer.
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create journal schema: %w", err)
	}

	return &Journal{db: db}, nil
}

// Close releases the underlying DB handle.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// RecordOrder appends a placed-order receipt.
func (j *Journal) RecordOrder(ctx context.Context, receipt mt5.OrderReceipt) {
	j.insert(ctx, Entry{
		ID:        uuid.NewString(),
		Kind:      "open",
		Ticket:    receipt.Ticket,
		Symbol:    receipt.Symbol,
		Volume:    receipt.Volume,
		Price:     receipt.Price,
		OrderType: string(receipt.OrderType),
		Status:    string(receipt.Status),
		Reason:    receipt.Reason,
		CreatedAt: time.Now().UTC(),
	})
}

// RecordClose appends a position-close confirmation.
func (j *Journal) RecordClose(ctx context.Context, conf orders.CloseConfirmation, symbol string) {
	j.insert(ctx, Entry{
		ID:        uuid.NewString(),
		Kind:      "close",
		Ticket:    conf.Ticket,
		Symbol:    symbol,
		Price:     conf.Price,
		Status:    conf.Status,
		CreatedAt: time.Now().UTC(),
	})
}

func (j *Journal) insert(ctx context.Context, e Entry) {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO trade_events (id, kind, ticket, symbol, volume, price, order_type, status, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Kind, e.Ticket, e.Symbol, e.Volume, e.Price, e.OrderType, e.Status, e.Reason, e.CreatedAt)
	if err != nil {
		log.Printf("journal: insert failed (ticket=%d): %v", e.Ticket, err)
	}
}

// Recent returns the latest events, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	rows, err := j.db.QueryContext(ctx,
		`SELECT id, kind, ticket, symbol, volume, price, order_type, status, reason, created_at
		 FROM trade_events ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Kind, &e.Ticket, &e.Symbol, &e.Volume, &e.Price,
			&e.OrderType, &e.Status, &e.Reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

var _ orders.Journal = (*Journal)(nil)
