package execlog

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"cadence/internal/eventbus"
	"cadence/internal/storage"
	logx "cadence/pkg/logx"
)

const (
	writeTimeout  = 5 * time.Second
	pruneInterval = time.Minute
)

// Recorder persists COMPLETED events to the history store. Store failures are
// logged and dropped; history is an audit trail, not scheduler state.
type Recorder struct {
	store     storage.Store
	log       logx.Logger
	retention time.Duration

	prune rate.Sometimes
	warn  *rate.Limiter
	now   func() time.Time
}

// NewRecorder returns a recorder. retention <= 0 disables pruning.
func NewRecorder(store storage.Store, log logx.Logger, retention time.Duration) *Recorder {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Recorder{
		store:     store,
		log:       log.With(logx.String("comp", "history")),
		retention: retention,
		prune:     rate.Sometimes{First: 1, Interval: pruneInterval},
		warn:      rate.NewLimiter(rate.Every(10*time.Second), 3),
		now:       time.Now,
	}
}

// Run consumes events until ctx is done or events is closed. On cancellation
// it first drains whatever is already buffered, so completions published
// before shutdown are still stored.
func (r *Recorder) Run(ctx context.Context, events <-chan eventbus.Event) error {
	for {
		select {
		case e, ok := <-events:
			if !ok {
				return nil
			}
			r.handle(e)
		case <-ctx.Done():
			for {
				select {
				case e, ok := <-events:
					if !ok {
						return nil
					}
					r.handle(e)
				default:
					return nil
				}
			}
		}
	}
}

func (r *Recorder) handle(e eventbus.Event) {
	if e.Type != eventbus.TypeRunCompleted {
		return
	}
	ev, ok := e.Data.(Event)
	if !ok || ev.Record == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := r.store.AppendRun(ctx, *ev.Record); err != nil {
		if r.warn.Allow() {
			r.log.Warn("history append failed", logx.String("task", ev.Task), logx.String("run_id", ev.Record.RunID), logx.Err(err))
		}
		return
	}

	if r.retention > 0 {
		r.prune.Do(func() { r.pruneOld(ctx) })
	}
}

func (r *Recorder) pruneOld(ctx context.Context) {
	cutoff := r.now().Add(-r.retention)
	n, err := r.store.Prune(ctx, cutoff)
	if err != nil {
		if r.warn.Allow() {
			r.log.Warn("history prune failed", logx.Err(err))
		}
		return
	}
	if n > 0 {
		r.log.Debug("history pruned", logx.Int("removed", n), logx.Time("before", cutoff))
	}
}
