package alerts

import (
	"context"
	"time"

	"adhanbot/internal/prayer"
)

// Entry is one concrete alert ready for dispatch.
type Entry struct {
	ID       ID          `json:"-"`
	Key      string      `json:"id"`
	At       time.Time   `json:"at"`
	Category Category    `json:"category"`
	Kind     prayer.Kind `json:"kind"`
	Day      int         `json:"day"`
	Title    string      `json:"title"`
	Body     string      `json:"body"`
}

// Dispatcher is the platform alert primitive. Every call is independent and
// best effort; the projector logs failures and moves on.
type Dispatcher interface {
	Schedule(ctx context.Context, e Entry) error
	CancelAllWithPrefix(ctx context.Context, prefix string) error
	Pending(ctx context.Context) ([]string, error)
}
