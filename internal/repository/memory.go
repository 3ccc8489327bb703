package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/skills-audit/internal/common"
	"github.com/joseph-ayodele/skills-audit/internal/entity"
)

// MemoryJobRepository keeps jobs in process memory. Used when no DSN is configured.
type MemoryJobRepository struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]entity.Job
}

func NewMemoryJobRepository() *MemoryJobRepository {
	return &MemoryJobRepository{jobs: make(map[uuid.UUID]entity.Job)}
}

func (m *MemoryJobRepository) Create(_ context.Context, job entity.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; ok {
		return fmt.Errorf("create job: %s already exists", job.ID)
	}
	m.jobs[job.ID] = job
	return nil
}

func (m *MemoryJobRepository) Save(_ context.Context, job entity.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; !ok {
		return fmt.Errorf("save job %s: %w", job.ID, common.ErrNotFound)
	}
	m.jobs[job.ID] = job
	return nil
}

func (m *MemoryJobRepository) Get(_ context.Context, id uuid.UUID) (entity.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return entity.Job{}, fmt.Errorf("job %s: %w", id, common.ErrNotFound)
	}
	return job, nil
}
