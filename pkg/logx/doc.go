// Package logx configures bizbot's structured logging.
//
// A small value-type wrapper (logx.Logger) sits on top of zerolog so that:
//   - console output stays readable (short timestamp + short caller)
//   - file output is JSON-structured
//   - warnings can be mirrored to a Discord staff channel (min-level + rate limit)
package logx
