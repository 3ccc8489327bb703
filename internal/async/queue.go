package async

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/skills-audit/internal/core/aggregate"
	"github.com/joseph-ayodele/skills-audit/internal/entity"
)

// Request is what a caller submits. Credentials live only in memory for the job's lifetime.
type Request struct {
	Credentials entity.Credentials
	Thresholds  aggregate.Thresholds
	Languages   []string
}

// Job is a queued unit of work.
type Job struct {
	ID          uuid.UUID
	Request     Request
	SubmittedAt time.Time
}

// Queue is the job runner surface used by transports.
type Queue interface {
	Submit(ctx context.Context, req Request) (uuid.UUID, error)
	Status(ctx context.Context, id uuid.UUID) (entity.Job, error)
	Cancel(id uuid.UUID) error
	Shutdown(ctx context.Context)
}
