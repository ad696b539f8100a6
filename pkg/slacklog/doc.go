// Package slacklog turns log records into Slack block-kit messages.
//
// The package is split into a pure core and thin adapters:
//   - Filter/Evaluate decide whether a record should be delivered
//   - MessageDesign builds the ordered block list for a record
//   - Formatter binds a design to a Configuration and produces a Payload
//   - Pipeline chains the three and hands the payload to a Sender
//   - Handler adapts Pipeline to log/slog
//
// Everything except Sender is side-effect free and safe for concurrent use.
// Configuration values are immutable once built with NewConfiguration.
package slacklog
