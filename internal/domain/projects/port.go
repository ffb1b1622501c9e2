package projects

import (
	"context"
	"time"
)

// Repository port (interface untuk persistence)
type Repository interface {
	Save(ctx context.Context, p *Project) error

	// Get is owner-scoped: absent and foreign projects are indistinguishable
	// to the caller.
	Get(ctx context.Context, ownerID string, id ProjectID) (*Project, error)

	// TouchAnalyzed bumps last_analyzed_at/updated_at after a successful run.
	TouchAnalyzed(ctx context.Context, id ProjectID, at time.Time) error

	// Delete cascades to the project's sessions and their issues.
	Delete(ctx context.Context, ownerID string, id ProjectID) error
}
