package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"cadence/internal/task"
	logx "cadence/pkg/logx"
)

func rec(name string, outcome task.Outcome, finished time.Time) task.Record {
	r := task.NewRecord(name)
	r.StartedAt = finished.Add(-time.Second)
	r.FinishedAt = finished
	r.Outcome = outcome
	if outcome == task.OutcomeSuccess {
		r.ExitStatus = 0
	}
	return r
}

func openTest(t *testing.T, driver string) Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history."+driver)
	st, err := Open(Config{Driver: driver, Path: path, BusyTimeout: time.Second}, logx.Nop())
	if err != nil {
		t.Fatalf("Open(%s): %v", driver, err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestStoreDrivers(t *testing.T) {
	for _, driver := range []string{"file", "sqlite"} {
		driver := driver
		t.Run(driver, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			st := openTest(t, driver)

			base := time.Now().Add(-time.Hour).Truncate(time.Millisecond)
			in := []task.Record{
				rec("backup", task.OutcomeSuccess, base),
				rec("backup", task.OutcomeFailure, base.Add(time.Minute)),
				rec("sync", task.OutcomeSuccess, base.Add(2*time.Minute)),
				rec("backup", task.OutcomeSuccess, base.Add(3*time.Minute)),
			}
			in[1].ExitStatus = 2
			in[1].Error = "exit status 2"
			for _, r := range in {
				if err := st.AppendRun(ctx, r); err != nil {
					t.Fatalf("AppendRun: %v", err)
				}
			}

			all, err := st.RecentRuns(ctx, Query{})
			if err != nil {
				t.Fatalf("RecentRuns: %v", err)
			}
			if len(all) != 4 || all[0].RunID != in[3].RunID || all[3].RunID != in[0].RunID {
				t.Fatalf("expected newest first, got %+v", all)
			}

			got, err := st.RecentRuns(ctx, Query{Task: "backup", Outcome: task.OutcomeFailure})
			if err != nil {
				t.Fatalf("RecentRuns filtered: %v", err)
			}
			if len(got) != 1 || got[0].ExitStatus != 2 || got[0].Error != "exit status 2" {
				t.Fatalf("filtered = %+v", got)
			}
			if !got[0].FinishedAt.Equal(in[1].FinishedAt) {
				t.Fatalf("finished_at round trip: %v vs %v", got[0].FinishedAt, in[1].FinishedAt)
			}

			limited, _ := st.RecentRuns(ctx, Query{Task: "backup", Limit: 2})
			if len(limited) != 2 {
				t.Fatalf("limit ignored: %d", len(limited))
			}

			n, err := st.Prune(ctx, base.Add(90*time.Second))
			if err != nil {
				t.Fatalf("Prune: %v", err)
			}
			if n != 2 {
				t.Fatalf("Prune removed %d, want 2", n)
			}

			// Appends keep working after a prune rewrote the file.
			if err := st.AppendRun(ctx, rec("sync", task.OutcomeTerminated, base.Add(4*time.Minute))); err != nil {
				t.Fatalf("AppendRun after prune: %v", err)
			}
			left, _ := st.RecentRuns(ctx, Query{})
			if len(left) != 3 || left[0].Outcome != task.OutcomeTerminated {
				t.Fatalf("after prune = %+v", left)
			}
		})
	}
}

func TestOpenDisabledAndUnknown(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{Driver: "none"}, logx.Nop())
	if st != nil || err != nil {
		t.Fatalf("disabled store = %v, %v", st, err)
	}
	if _, err := Open(Config{Driver: "redis", Path: "x"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
	if _, err := Open(Config{Driver: "file"}, logx.Nop()); err == nil {
		t.Fatal("expected error for missing path")
	}
}

func TestFileStoreClosed(t *testing.T) {
	t.Parallel()
	st := openTest(t, "file")
	_ = st.Close()
	if err := st.AppendRun(context.Background(), rec("x", task.OutcomeSuccess, time.Now())); err != ErrClosed {
		t.Fatalf("AppendRun after Close = %v, want ErrClosed", err)
	}
}
