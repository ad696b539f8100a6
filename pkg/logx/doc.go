// Package logx configures slacklog's structured logging.
//
// It is a small wrapper (logx.Logger) on top of zerolog that keeps:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - An optional Slack sink that feeds log events through a slacklog.Pipeline
package logx
