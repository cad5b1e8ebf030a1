package handler

import (
	"time"

	"github.com/yndnr/clinvault/internal/core/domain"
	"github.com/yndnr/clinvault/internal/infra/buildinfo"
	"github.com/yndnr/clinvault/internal/storage"
)

// Response is the standard API response envelope.
// All JSON responses use this format (except /metrics which uses Prometheus format).
type Response struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
	Details   any    `json:"details,omitempty"`
}

// NewResponse creates a success response.
func NewResponse(requestID string, data any) *Response {
	return &Response{
		Code:      "OK",
		Message:   "Success",
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(requestID, code, message string, details any) *Response {
	return &Response{
		Code:      code,
		Message:   message,
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Details:   details,
	}
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status    string `json:"status"`
	Backend   string `json:"backend,omitempty"`
	Durable   bool   `json:"durable"`
	Degraded  bool   `json:"degraded"`
	LastError string `json:"last_error,omitempty"`
	Time      string `json:"time"`
}

// StatusResponse is the body of GET /admin/v1/status.
type StatusResponse struct {
	Build   buildinfo.Info `json:"build"`
	Storage StorageStatus  `json:"storage"`
}

// StorageStatus is the JSON view of storage.Stats.
type StorageStatus struct {
	Backend  string `json:"backend"`
	Durable  bool   `json:"durable"`
	Degraded bool   `json:"degraded"`

	KeyFingerprint string `json:"key_fingerprint,omitempty"`

	Cache CacheStatus `json:"cache"`
	Audit AuditStatus `json:"audit"`
}

// CacheStatus is the JSON view of the hot cache counters.
type CacheStatus struct {
	Size        int     `json:"size"`
	Capacity    int     `json:"capacity"`
	Utilization float64 `json:"utilization"`
	Hits        uint64  `json:"hits"`
	Misses      uint64  `json:"misses"`
	Evictions   uint64  `json:"evictions"`
	Expirations uint64  `json:"expirations"`
}

// AuditStatus is the JSON view of the audit write outcomes.
type AuditStatus struct {
	Written    uint64 `json:"written"`
	Failed     uint64 `json:"failed"`
	Suppressed uint64 `json:"suppressed"`
}

func newStorageStatus(s storage.Stats) StorageStatus {
	return StorageStatus{
		Backend:  string(s.Backend),
		Durable:  s.Durable,
		Degraded: s.Degraded,

		KeyFingerprint: s.KeyFingerprint,

		Cache: CacheStatus{
			Size:        s.CacheSize,
			Capacity:    s.CacheCapacity,
			Utilization: s.CacheUtilization,
			Hits:        s.Cache.Hits,
			Misses:      s.Cache.Misses,
			Evictions:   s.Cache.Evictions,
			Expirations: s.Cache.Expirations,
		},
		Audit: AuditStatus{
			Written:    s.Audit.Written,
			Failed:     s.Audit.Failed,
			Suppressed: s.Audit.Suppressed,
		},
	}
}

// AuditEntryResponse is one audit entry in GET /admin/v1/audit.
type AuditEntryResponse struct {
	ID        int64             `json:"id"`
	SessionID string            `json:"session_id"`
	Action    string            `json:"action"`
	ActorID   string            `json:"actor_id"`
	Timestamp int64             `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func newAuditEntries(entries []*domain.AuditEntry) []AuditEntryResponse {
	out := make([]AuditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, AuditEntryResponse{
			ID:        e.ID,
			SessionID: e.SessionID,
			Action:    string(e.Action),
			ActorID:   e.ActorID,
			Timestamp: e.Timestamp,
			Metadata:  e.Metadata,
		})
	}
	return out
}
