// Package buildinfo exposes the version, commit and build time of the
// running binary.
//
// Values are injected at build time via ldflags:
//
//	go build -ldflags "-X github.com/yndnr/clinvault/internal/infra/buildinfo.Version=v1.0.0"
//
// When they are not, Get falls back to the module and VCS data embedded by
// the Go toolchain.
package buildinfo
