// Package execlog is the execution log: one structured line per dispatch,
// skip and completion, plus a bus fanout that feeds the run history store.
//
// It only observes. Nothing here can change scheduler state, and no call
// panics or returns an error to the scheduler.
package execlog
