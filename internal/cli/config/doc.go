// Package config holds the clinvault-cli profile (~/.clinvault/cli.yaml).
//
// The profile supplies defaults for global flags so operators do not
// repeat --config and --admin on every invocation. Flags and CLINVAULT_*
// environment variables take precedence over the profile.
package config
