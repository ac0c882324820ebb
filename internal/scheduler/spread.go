package scheduler

import (
	"hash/fnv"
	"math/rand"
	"time"

	"github.com/robfig/cron/v3"
)

const maxStartupSpread = 30 * time.Second

// spreadSchedule delays the first run of an interval by a per-name jitter,
// then follows the plain interval.
type spreadSchedule struct {
	every cron.ConstantDelaySchedule
	first time.Time
}

func (s *spreadSchedule) Next(t time.Time) time.Time {
	if t.Before(s.first) {
		return s.first
	}
	return s.every.Next(t)
}

func spreadInterval(every time.Duration, now time.Time, name string) (cron.Schedule, time.Duration) {
	base := cron.Every(every)
	limit := every
	if limit > maxStartupSpread {
		limit = maxStartupSpread
	}
	if limit <= 0 {
		return base, 0
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	rng := rand.New(rand.NewSource(now.UnixNano() ^ int64(h.Sum64())))
	// Cron schedules are second-granular.
	jitter := time.Duration(rng.Int63n(int64(limit))).Truncate(time.Second)
	first := now.Truncate(time.Second).Add(every + jitter)
	return &spreadSchedule{every: base, first: first}, jitter
}
