package domain

import "time"

// JobType enumerates supported generation job categories.
type JobType string

const (
	JobTypeImage   JobType = "image"
	JobTypeVideo   JobType = "video"
	JobTypeMusic   JobType = "music"
	JobTypeModel3D JobType = "model3d"
)

// KnownJobType reports whether t is one of the supported categories.
func KnownJobType(t JobType) bool {
	switch t {
	case JobTypeImage, JobTypeVideo, JobTypeMusic, JobTypeModel3D:
		return true
	}
	return false
}

// JobStatus enumerates normalized provider-side lifecycle states.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "QUEUED"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusCompleted JobStatus = "COMPLETED"
	JobStatusFailed    JobStatus = "FAILED"
	JobStatusTimedOut  JobStatus = "TIMED_OUT"
)

// Artifact is one generated output with optional provider metadata.
type Artifact struct {
	URL         string `json:"url"`
	ContentType string `json:"content_type,omitempty"`
	FileName    string `json:"file_name,omitempty"`
	FileSize    int64  `json:"file_size,omitempty"`
}

// JobResult is the normalized output of one completed job.
type JobResult struct {
	Artifacts []Artifact `json:"artifacts"`
}

// Reservation records credits withheld for an in-flight job so that a
// reconciliation sweep can resolve jobs that outlived their polling ceiling.
// Settled reservations are never touched again.
type Reservation struct {
	RequestID string
	AccountID string
	JobType   JobType
	Amount    int64
	Settled   bool
	Outcome   string
	CreatedAt time.Time
}

// Reservation outcomes recorded at settlement time.
const (
	ReservationOutcomeCompleted = "completed"
	ReservationOutcomeRefunded  = "refunded"
)
