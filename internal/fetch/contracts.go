// Package fetch declares the page-fetch capability the audit pipeline runs against.
package fetch

import (
	"context"

	"github.com/joseph-ayodele/skills-audit/internal/entity"
)

// Session is an authenticated platform session. It is owned exclusively by the pipeline
// that acquired it and must be handed back to Release exactly once.
type Session interface {
	ID() string
}

// ResourceCounter counts the visible learning resources on one course page. It must be
// safe for concurrent use and must not navigate the session's current page.
type ResourceCounter interface {
	CountResources(ctx context.Context, s Session, courseURL string) (int, error)
}

// Fetcher is the behavior the pipeline depends on.
type Fetcher interface {
	ResourceCounter

	// Authenticate acquires a session. Failures are *Error with KindSessionUnavailable
	// (no browser/session could be acquired) or KindBadCredentials.
	Authenticate(ctx context.Context, creds entity.Credentials) (Session, error)
	// DiscoverTaxonomy lists languages and their level links in discovery order.
	DiscoverTaxonomy(ctx context.Context, s Session) (entity.Taxonomy, error)
	// ListCourseReferences lists course cards on a level page; empty is a valid outcome.
	ListCourseReferences(ctx context.Context, s Session, levelURL string) ([]entity.CourseRef, error)
	// Release closes the session. A nil session is a no-op.
	Release(ctx context.Context, s Session) error
}
