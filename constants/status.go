package constants

// JobStatus is the canonical state of an audit job.
type JobStatus string

// Stable values (persisted in audit_job.status and returned by the status endpoint).
const (
	JobStatusPending   JobStatus = "PENDING"   // queued, not yet picked up by a worker
	JobStatusRunning   JobStatus = "RUNNING"   // in progress, carries progress + message
	JobStatusSucceeded JobStatus = "SUCCEEDED" // terminal, carries the result
	JobStatusFailed    JobStatus = "FAILED"    // terminal, carries the error message
)

// Terminal reports whether no further transitions are allowed from s.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed
}

func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusRunning, JobStatusSucceeded, JobStatusFailed:
		return true
	default:
		return false
	}
}
