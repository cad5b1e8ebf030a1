// Package config provides server configuration for clinvault.
//
// This package defines the server configuration structure and validation:
//
//   - spec.go: ServerConfig struct definition
//   - default.go: Default configuration values
//   - verify.go: Business validation (backend names, cache bounds, key format)
//   - sanitize.go: Log sanitization (hide sensitive values)
//   - convert.go: Mapping onto storage, logger and tracer options
//
// Configuration is loaded via internal/infra/confloader from a YAML file
// and CLINVAULT_ environment variables.
package config
