package storage

import (
	"context"
	"errors"
	"strings"

	logx "adhanbot/pkg/logx"
)

// Store is the persistence API used by the dispatcher and the app.
type Store interface {
	PutAlert(ctx context.Context, a Alert) error
	DeleteAlert(ctx context.Context, id string) error
	// DeleteAlertsWithPrefix removes every alert whose id starts with prefix
	// and returns how many were removed.
	DeleteAlertsWithPrefix(ctx context.Context, prefix string) (int, error)
	// ListAlerts returns matching alerts ordered by fire time.
	ListAlerts(ctx context.Context, prefix string) ([]Alert, error)

	GetPref(ctx context.Context, key string) (value string, ok bool, err error)
	PutPref(ctx context.Context, key, value string) error

	AppendRun(ctx context.Context, r RunRecord) error
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "storage"), logx.String("driver", driver))

	switch driver {
	case "memory":
		return NewMemory(), nil
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
