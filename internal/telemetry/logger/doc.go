// Package logger provides structured logging for clinvault.
//
// It wraps log/slog with:
//
//   - JSON (default) or text output, optionally to a rotated file
//   - A process-wide level that can be changed at runtime (SetLevel)
//   - Redaction of secrets and clinical content by attribute key
//   - Correlation attributes (request ID, trace and span IDs) via Attrs
package logger
