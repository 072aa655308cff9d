// Package task holds the orchestrator's data model: task definitions, the
// registry validation that admits them, per-task run state, and the execution
// records produced by runs.
//
// Scheduling lives in internal/task/scheduler; process execution lives in
// internal/task/runner.
package task
