// Package storage persists run history.
//
// Every completed run is appended as one record. Records can be listed newest
// first and pruned by age. Two drivers exist: "file" (JSON Lines) and
// "sqlite" (modernc.org/sqlite, pure Go).
package storage
