// Package logx configures plantmart's structured logging.
//
// It is a small wrapper (logx.Logger) on top of zerolog that keeps:
//   - Console output readable (short timestamp + short caller)
//   - Optional file output JSON-structured
//   - The minimum level adjustable at runtime (config hot reload)
package logx
