package analysis

import "context"

// Repository port (interface untuk persistence)
type Repository interface {
	// CreateSession persists the completed session and its issues in one
	// transaction scope. Individual issue-insert failures are skipped and
	// reported via the returned issue slice; the session itself is atomic.
	CreateSession(ctx context.Context, s *Session, issues []*Issue) ([]*Issue, error)

	// GetSession joins through the owning project to verify ownership.
	// Absent and foreign sessions both yield ErrNotFound.
	GetSession(ctx context.Context, ownerID string, id SessionID) (*SessionWithIssues, error)

	// ListSessions pages over a project's sessions, newest first.
	ListSessions(ctx context.Context, ownerID, projectID string, page, pageSize int) (PaginatedSessions, error)

	// SetIssueResolved / SetIssueFalsePositive toggle the only two mutable
	// issue fields, ownership verified transitively via session -> project.
	SetIssueResolved(ctx context.Context, ownerID string, id IssueID, resolved bool) (*Issue, error)
	SetIssueFalsePositive(ctx context.Context, ownerID string, id IssueID, falsePositive bool) (*Issue, error)
}
