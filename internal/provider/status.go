package provider

import (
	"strings"

	"forge/internal/domain"
)

// Synonym table for the provider's raw status strings, matched
// case-insensitively. Unknown strings map to RUNNING so an unfamiliar
// intermediate state keeps the poll loop alive instead of failing the job.
var statusSynonyms = map[string]domain.JobStatus{
	"queued":      domain.JobStatusQueued,
	"pending":     domain.JobStatusQueued,
	"waiting":     domain.JobStatusQueued,
	"submitted":   domain.JobStatusQueued,
	"accepted":    domain.JobStatusQueued,
	"running":     domain.JobStatusRunning,
	"in_progress": domain.JobStatusRunning,
	"processing":  domain.JobStatusRunning,
	"started":     domain.JobStatusRunning,
	"generating":  domain.JobStatusRunning,
	"completed":   domain.JobStatusCompleted,
	"complete":    domain.JobStatusCompleted,
	"succeeded":   domain.JobStatusCompleted,
	"success":     domain.JobStatusCompleted,
	"done":        domain.JobStatusCompleted,
	"finished":    domain.JobStatusCompleted,
	"failed":      domain.JobStatusFailed,
	"failure":     domain.JobStatusFailed,
	"error":       domain.JobStatusFailed,
	"cancelled":   domain.JobStatusFailed,
	"canceled":    domain.JobStatusFailed,
	"rejected":    domain.JobStatusFailed,
}

// NormalizeStatus maps a raw provider status string to a JobStatus.
func NormalizeStatus(raw string) domain.JobStatus {
	key := strings.ToLower(strings.TrimSpace(raw))
	if status, ok := statusSynonyms[key]; ok {
		return status
	}
	return domain.JobStatusRunning
}
