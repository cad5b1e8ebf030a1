// Package domain defines the core domain models for clinvault.
//
// Domain models are plain value objects without IO dependencies:
//
//   - Session: a conversation owned by one user, optionally linked to a patient
//   - ClinicalFile: metadata of an uploaded clinical document
//   - ClinicalRecord: a versioned structured clinical record ("ficha")
//   - AuditEntry: an immutable access record for a session
//   - Errors: the structured error taxonomy shared by all layers
//
// Every entity offers Validate and Clone. Timestamps are Unix milliseconds.
package domain
