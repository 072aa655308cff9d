// Package logx configures cadence's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - Machine output JSON-structured (stdout and/or file)
//   - Runtime level/sink changes possible without replacing loggers
package logx
