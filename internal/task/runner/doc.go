// Package runner executes one task run as an isolated OS process and turns
// however it ended into a task.Record.
//
// Run-level failures never cross the package boundary as errors or panics:
//   - exit 0                  -> SUCCESS
//   - exit != 0               -> FAILURE (status recorded)
//   - killed by a signal      -> TERMINATED (signal recorded)
//   - could not be launched   -> SPAWN_ERROR (error recorded)
//
// There is no retry and no default timeout. A per-task Timeout kills the
// process when it expires; cancelling the context passed to Execute sends
// SIGTERM (escalating to SIGKILL after the wait delay).
package runner
