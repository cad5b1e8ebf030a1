// Package handler provides the admin HTTP handlers of clinvault-server:
// liveness and readiness, storage status and audit review.
package handler
