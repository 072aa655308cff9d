package runner

import (
	"bytes"
	"context"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"cadence/internal/task"
)

func newTestRunner(out *bytes.Buffer) *Runner {
	return New(WithStdio(nil, out, out), WithWaitDelay(time.Second))
}

func TestExecuteOutcomes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		task    task.Task
		outcome task.Outcome
		status  int
	}{
		{name: "success", task: helperTask("ok", "exit", "0"), outcome: task.OutcomeSuccess, status: 0},
		{name: "failure 1", task: helperTask("one", "exit", "1"), outcome: task.OutcomeFailure, status: 1},
		{name: "failure 2", task: helperTask("two", "exit", "2"), outcome: task.OutcomeFailure, status: 2},
		{
			name:    "spawn error",
			task:    task.Task{Name: "missing", Command: filepath.Join(t.TempDir(), "does-not-exist"), Interval: time.Second},
			outcome: task.OutcomeSpawnError,
			status:  -1,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var out bytes.Buffer
			rec := newTestRunner(&out).Execute(context.Background(), tt.task)
			if rec.Outcome != tt.outcome {
				t.Fatalf("Outcome = %s, want %s (err=%q)", rec.Outcome, tt.outcome, rec.Error)
			}
			if rec.ExitStatus != tt.status {
				t.Fatalf("ExitStatus = %d, want %d", rec.ExitStatus, tt.status)
			}
			if rec.Task != tt.task.Name || rec.RunID == "" {
				t.Fatalf("unexpected identity: %+v", rec)
			}
			if rec.FinishedAt.Before(rec.StartedAt) {
				t.Fatalf("finished before started: %+v", rec)
			}
			if tt.outcome == task.OutcomeSpawnError && rec.Error == "" {
				t.Fatal("spawn error should carry the launch error")
			}
		})
	}
}

func TestExecutePassesThroughOutputEnvAndDir(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer
	r := newTestRunner(&out)

	if rec := r.Execute(context.Background(), helperTask("echo", "echo", "hello-run")); rec.Outcome != task.OutcomeSuccess {
		t.Fatalf("echo failed: %+v", rec)
	}
	if got := out.String(); got != "hello-run" {
		t.Fatalf("stdout = %q, want %q", got, "hello-run")
	}

	out.Reset()
	tk := helperTask("env", "env", "CADENCE_TEST_VALUE")
	tk.Env = append(tk.Env, "CADENCE_TEST_VALUE=42")
	if rec := r.Execute(context.Background(), tk); rec.Outcome != task.OutcomeSuccess {
		t.Fatalf("env failed: %+v", rec)
	}
	if got := out.String(); got != "42" {
		t.Fatalf("env output = %q, want 42", got)
	}

	out.Reset()
	dir := t.TempDir()
	tk = helperTask("pwd", "pwd")
	tk.Dir = dir
	if rec := r.Execute(context.Background(), tk); rec.Outcome != task.OutcomeSuccess {
		t.Fatalf("pwd failed: %+v", rec)
	}
	got, _ := filepath.EvalSymlinks(strings.TrimSpace(out.String()))
	want, _ := filepath.EvalSymlinks(dir)
	if got != want {
		t.Fatalf("working dir = %q, want %q", got, want)
	}
}

func TestExecuteSignalled(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("signals are unix-only")
	}
	t.Parallel()
	var out bytes.Buffer
	rec := newTestRunner(&out).Execute(context.Background(), helperTask("killed", "kill-self"))
	if rec.Outcome != task.OutcomeTerminated {
		t.Fatalf("Outcome = %s, want TERMINATED (%+v)", rec.Outcome, rec)
	}
	if rec.Signal != "killed" {
		t.Fatalf("Signal = %q, want %q", rec.Signal, "killed")
	}
	if rec.TimedOut {
		t.Fatal("self-kill is not a timeout")
	}
}

func TestExecuteTimeout(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("signals are unix-only")
	}
	t.Parallel()
	var out bytes.Buffer
	tk := helperTask("slow", "sleep", "10s")
	tk.Timeout = 200 * time.Millisecond

	start := time.Now()
	rec := newTestRunner(&out).Execute(context.Background(), tk)
	if time.Since(start) > 5*time.Second {
		t.Fatalf("timeout not enforced, took %v", time.Since(start))
	}
	if rec.Outcome != task.OutcomeTerminated || !rec.TimedOut {
		t.Fatalf("expected timed-out TERMINATED, got %+v", rec)
	}
}

func TestExecuteCancelSendsTerm(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("signals are unix-only")
	}
	t.Parallel()
	var out bytes.Buffer
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(200*time.Millisecond, cancel)

	rec := newTestRunner(&out).Execute(ctx, helperTask("drain", "sleep", "10s"))
	if rec.Outcome != task.OutcomeTerminated {
		t.Fatalf("expected TERMINATED, got %+v", rec)
	}
	if rec.Signal != "terminated" {
		t.Fatalf("Signal = %q, want terminated", rec.Signal)
	}
	if rec.TimedOut {
		t.Fatal("cancellation is not a timeout")
	}
}

func TestStartDeliversViaCallback(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer
	done := make(chan task.Record, 1)
	newTestRunner(&out).Start(context.Background(), helperTask("async", "exit", "3"), func(r task.Record) { done <- r })

	select {
	case rec := <-done:
		if rec.Outcome != task.OutcomeFailure || rec.ExitStatus != 3 {
			t.Fatalf("unexpected record: %+v", rec)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("callback not invoked")
	}
}
