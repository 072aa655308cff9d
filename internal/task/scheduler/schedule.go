package scheduler

import (
	"hash/fnv"
	"math/rand"
	"sync/atomic"
	"time"
)

const maxStartupSpread = 30 * time.Second

// intervalSchedule is a fixed-rate cron.Schedule anchored at first.
//
// Unlike cron.Every it keeps sub-second precision, and because ticks are
// computed from the anchor rather than from the previous fire time, timer
// lateness never accumulates. Missed ticks are not replayed.
type intervalSchedule struct {
	every time.Duration
	first time.Time
}

func (s intervalSchedule) Next(t time.Time) time.Time {
	if t.Before(s.first) {
		return s.first
	}
	n := t.Sub(s.first)/s.every + 1
	return s.first.Add(n * s.every)
}

var spreadSeq uint64

// firstTick returns when a task's first tick fires: one full interval after
// start, plus an optional startup jitter.
func firstTick(every time.Duration, start time.Time, spread bool, tag string) (time.Time, time.Duration) {
	first := start.Add(every)
	if !spread {
		return first, 0
	}
	spreadMax := every
	if spreadMax > maxStartupSpread {
		spreadMax = maxStartupSpread
	}
	if spreadMax <= 0 {
		return first, 0
	}

	seed := time.Now().UnixNano() ^ int64(atomic.AddUint64(&spreadSeq, 1)) ^ int64(fnv64a(tag))
	rng := rand.New(rand.NewSource(seed))
	jitter := time.Duration(rng.Int63n(int64(spreadMax)))
	return first.Add(jitter), jitter
}

func fnv64a(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}
