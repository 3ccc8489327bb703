package report

import (
	"fmt"
	"strings"
	"time"
)

// Namer produces the artifact base name for a job.
type Namer func(jobID string, now time.Time) string

// ByJobID names the artifact after the job, e.g. "<job id>".
func ByJobID(jobID string, _ time.Time) string { return jobID }

// ByTimestamp names the artifact after the finish time, e.g. "audit_20260102_150405".
func ByTimestamp(_ string, now time.Time) string {
	return "audit_" + now.UTC().Format("20060102_150405")
}

// NamerFor resolves a configured strategy name.
func NamerFor(strategy string) (Namer, error) {
	switch strings.ToLower(strings.TrimSpace(strategy)) {
	case "", "job_id":
		return ByJobID, nil
	case "timestamp":
		return ByTimestamp, nil
	default:
		return nil, fmt.Errorf("unknown report naming strategy %q", strategy)
	}
}
