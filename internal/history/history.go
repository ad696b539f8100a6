// Package history keeps an audit trail of pipeline outcomes so operators
// can see what was delivered, filtered or failed without scraping logs.
//
// Drivers:
//   - "file":   append-only JSON Lines, compacted when it grows past Keep
//   - "sqlite": SQLite database (modernc.org/sqlite, no cgo)
//
// An empty driver or "none" disables history.
package history

import (
	"context"
	"errors"
	"strings"
	"time"

	"slacklog/internal/eventbus"
	"slacklog/pkg/logx"
)

var ErrClosed = errors.New("history: store closed")

type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	// Keep bounds retained entries. Zero means 10000.
	Keep int
}

func (c Config) keep() int {
	if c.Keep <= 0 {
		return 10000
	}
	return c.Keep
}

// Entry is one persisted outcome.
type Entry struct {
	ID          string    `json:"id"`
	At          time.Time `json:"at"`
	Source      string    `json:"source"`
	Level       string    `json:"level"`
	Logger      string    `json:"logger,omitempty"`
	Service     string    `json:"service,omitempty"`
	Environment string    `json:"environment,omitempty"`
	Message     string    `json:"message"`
	Outcome     string    `json:"outcome"`
	Error       string    `json:"error,omitempty"`
}

func FromDelivery(d eventbus.Delivery) Entry {
	return Entry{
		ID:          d.ID,
		At:          d.Time,
		Source:      d.Source,
		Level:       d.Level,
		Logger:      d.Logger,
		Service:     d.Service,
		Environment: d.Environment,
		Message:     d.Message,
		Outcome:     d.Outcome,
		Error:       d.Err,
	}
}

type Store interface {
	Append(ctx context.Context, e Entry) error
	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]Entry, error)
	Close() error
}

// Open initializes the configured store. It returns (nil, nil) when
// history is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown history driver: " + driver)
	}
}
