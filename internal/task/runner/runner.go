package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"cadence/internal/task"
	logx "cadence/pkg/logx"
)

const defaultWaitDelay = 10 * time.Second

// Runner spawns task processes. A Runner holds no per-run state and is safe
// for concurrent use.
type Runner struct {
	log logx.Logger

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	waitDelay time.Duration
}

// Option customizes a Runner.
type Option func(*Runner)

// WithLogger sets the runner's diagnostic logger.
func WithLogger(log logx.Logger) Option { return func(r *Runner) { r.log = log } }

// WithStdio overrides the streams handed to child processes.
// By default children inherit the orchestrator's stdin/stdout/stderr.
func WithStdio(stdin io.Reader, stdout, stderr io.Writer) Option {
	return func(r *Runner) {
		r.stdin = stdin
		r.stdout = stdout
		r.stderr = stderr
	}
}

// WithWaitDelay bounds how long a signalled child may take to exit before it
// is killed outright.
func WithWaitDelay(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.waitDelay = d
		}
	}
}

// New constructs a Runner.
func New(opts ...Option) *Runner {
	r := &Runner{
		log:       logx.Nop(),
		stdin:     os.Stdin,
		stdout:    os.Stdout,
		stderr:    os.Stderr,
		waitDelay: defaultWaitDelay,
	}
	for _, o := range opts {
		o(r)
	}
	if r.log.IsZero() {
		r.log = logx.Nop()
	}
	return r
}

// Start runs t in a new goroutine and passes the finished record to done.
func (r *Runner) Start(ctx context.Context, t task.Task, done func(task.Record)) {
	go func() {
		rec := r.Execute(ctx, t)
		if done != nil {
			done(rec)
		}
	}()
}

// Execute runs t to completion and returns its record. It blocks until the
// process has exited and its output has been copied.
func (r *Runner) Execute(ctx context.Context, t task.Task) (rec task.Record) {
	if ctx == nil {
		ctx = context.Background()
	}
	rec = task.NewRecord(t.Name)

	defer func() {
		if p := recover(); p != nil {
			rec.Error = fmt.Sprintf("runner panic: %v", p)
			rec = rec.Finish(task.OutcomeSpawnError, -1)
			r.log.Error("runner panicked", logx.String("task", t.Name), logx.Any("panic", p))
		}
	}()

	runCtx := ctx
	if t.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, t.Command, t.Args...)
	cmd.Stdin = r.stdin
	cmd.Stdout = r.stdout
	cmd.Stderr = r.stderr
	cmd.Dir = t.Dir
	cmd.Env = append(os.Environ(), t.Env...)
	cmd.WaitDelay = r.waitDelay
	isolate(cmd)
	cmd.Cancel = func() error {
		// Deadline on the run context only: the per-task timeout fired.
		if ctx.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return kill(cmd.Process)
		}
		// WaitDelay only kills the leader; members of its group that outlive
		// the grace get SIGKILL even after the leader has been reaped.
		p := cmd.Process
		time.AfterFunc(r.waitDelay, func() { _ = kill(p) })
		return terminate(p)
	}

	if err := cmd.Start(); err != nil {
		rec.Error = err.Error()
		rec = rec.Finish(task.OutcomeSpawnError, -1)
		return rec
	}
	r.log.Debug("process started", logx.String("task", t.Name), logx.Int("pid", cmd.Process.Pid), logx.String("run_id", rec.RunID))

	waitErr := cmd.Wait()
	timedOut := ctx.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded)

	ps := cmd.ProcessState
	if ps == nil {
		if waitErr != nil {
			rec.Error = waitErr.Error()
		}
		rec.TimedOut = timedOut
		rec = rec.Finish(task.OutcomeTerminated, -1)
		return rec
	}

	code := ps.ExitCode()
	switch {
	case code == -1:
		rec.Signal = signalName(ps)
		rec.TimedOut = timedOut
		if timedOut {
			rec.Error = fmt.Sprintf("timed out after %s", t.Timeout)
		}
		rec = rec.Finish(task.OutcomeTerminated, -1)
	case code == 0:
		var ee *exec.ExitError
		if waitErr != nil && !errors.As(waitErr, &ee) {
			// e.g. WaitDelay expired while copying output of a clean exit.
			rec.Error = waitErr.Error()
		}
		rec = rec.Finish(task.OutcomeSuccess, 0)
	default:
		rec = rec.Finish(task.OutcomeFailure, code)
	}
	return rec
}
