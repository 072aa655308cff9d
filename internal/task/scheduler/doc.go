// Package scheduler drives tasks on fixed intervals.
//
// Each task gets its own recurring trigger (a robfig/cron entry with a
// fixed-rate interval schedule). On every tick the scheduler either dispatches
// a run, when the task is IDLE, or reports a skip, when the previous run is
// still RUNNING. Runs are never queued and never overlap for the same task.
//
// The scheduler is responsible only for:
//   - computing trigger times
//   - the per-task IDLE/RUNNING state machine
//   - handing runs to an Executor and results to an Observer
//
// Stop cancels future ticks and drains in-flight runs; it does not kill them
// unless a shutdown grace period is configured.
package scheduler
