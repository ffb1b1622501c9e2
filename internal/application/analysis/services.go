package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	domainai "github.com/bryanwahyu/codeaudit/internal/domain/ai"
	domain "github.com/bryanwahyu/codeaudit/internal/domain/analysis"
	"github.com/bryanwahyu/codeaudit/internal/domain/projects"
)

// maxSourceBytes caps how much project content is sent to the reasoning
// service in one assessment.
const maxSourceBytes = 200 << 10

// defaultConfidence is substituted when the reasoning service omits a
// confidence score for a finding.
const defaultConfidence = 0.8

// defaultAssessTimeout bounds the single blocking external call; a slow
// reasoning service degrades to zero findings instead of hanging the request.
const defaultAssessTimeout = 60 * time.Second

// Clock abstraction supaya gampang ditest
type Clock interface {
	Now() time.Time
}

// ReportArchive port (optional object storage for exported reports)
type ReportArchive interface {
	UploadReport(ctx context.Context, key string, payload []byte, contentType string) (string, error)
}

// Service implements use-cases untuk the analysis pipeline.
// Service is designed to be used concurrently and is thread-safe.
type Service struct {
	Projects      projects.Repository
	Sessions      domain.Repository
	AI            domainai.Client
	Archive       ReportArchive // nil disables export archiving
	Clock         Clock
	Model         string
	AssessTimeout time.Duration
}

func (s *Service) assessTimeout() time.Duration {
	if s.AssessTimeout > 0 {
		return s.AssessTimeout
	}
	return defaultAssessTimeout
}

//
// ==== USE CASES ====
//

// RunAnalysis drives the whole pipeline for one project: ownership check,
// reasoning-service call, extraction, aggregation, persistence, timestamp
// bump. The session is written once, already completed; a reasoning-service
// failure yields a completed session with zero findings rather than an error.
func (s *Service) RunAnalysis(ctx context.Context, principalID, projectID string) (*domain.SessionWithIssues, error) {
	if _, err := uuid.Parse(projectID); err != nil {
		return nil, fmt.Errorf("%w: project id must be a uuid", domain.ErrInvalidInput)
	}

	project, err := s.Projects.Get(ctx, principalID, projects.ProjectID(projectID))
	if err != nil {
		return nil, err
	}

	start := s.Clock.Now()
	raw := s.assess(ctx, project)
	if ctx.Err() != nil {
		// Caller went away mid-call: fail cleanly, write nothing. A session
		// with zero findings must never appear because of a cancellation.
		return nil, ctx.Err()
	}

	findings := domain.ExtractFindings(raw)
	for i := range findings {
		if findings[i].FilePath == "" {
			findings[i].FilePath = fmt.Sprintf("%s/main.js", project.Name)
		}
		if findings[i].ConfidenceScore == nil {
			c := defaultConfidence
			findings[i].ConfidenceScore = &c
		}
	}

	counts, score := domain.AggregateFindings(findings)
	now := s.Clock.Now()
	elapsed := now.Sub(start).Milliseconds()

	session := &domain.Session{
		ID:               domain.SessionID(uuid.New().String()),
		ProjectID:        string(project.ID),
		Status:           domain.StatusCompleted,
		OverallScore:     &score,
		Counts:           counts,
		ProcessingTimeMS: &elapsed,
		Model:            s.Model,
		CreatedAt:        start,
		CompletedAt:      &now,
	}

	issues := make([]*domain.Issue, 0, len(findings))
	for _, f := range findings {
		issues = append(issues, &domain.Issue{
			ID:              domain.IssueID(uuid.New().String()),
			SessionID:       session.ID,
			Severity:        domain.Severity(f.Severity),
			Type:            f.Type,
			Category:        f.Category,
			FilePath:        f.FilePath,
			LineNumber:      f.LineNumber,
			CodeSnippet:     f.CodeSnippet,
			Description:     f.Description,
			Recommendation:  f.Recommendation,
			ConfidenceScore: *f.ConfidenceScore,
			CreatedAt:       now,
		})
	}

	persisted, err := s.Sessions.CreateSession(ctx, session, issues)
	if err != nil {
		return nil, fmt.Errorf("persisting session: %w", err)
	}

	if err := s.Projects.TouchAnalyzed(ctx, project.ID, now); err != nil {
		slog.Warn("failed to bump project analysis timestamp",
			"project_id", project.ID, "err", err)
	}

	return &domain.SessionWithIssues{Session: session, Issues: persisted}, nil
}

// assess performs the one blocking external call with its own deadline.
// Every failure mode short of caller cancellation collapses to "" so the
// pipeline continues with zero findings.
func (s *Service) assess(ctx context.Context, project *projects.Project) string {
	content := project.SourceContent
	if len(content) > maxSourceBytes {
		content = content[:maxSourceBytes]
	}

	cctx, cancel := context.WithTimeout(ctx, s.assessTimeout())
	defer cancel()

	raw, err := s.AI.Assess(cctx, content, project.Name)
	if err != nil {
		slog.Warn("reasoning service degraded, continuing with zero findings",
			"project_id", project.ID, "err", err)
		return ""
	}
	return raw
}

// GetSession returns a session with its findings, owner-scoped.
func (s *Service) GetSession(ctx context.Context, principalID, sessionID string) (*domain.SessionWithIssues, error) {
	if _, err := uuid.Parse(sessionID); err != nil {
		return nil, fmt.Errorf("%w: session id must be a uuid", domain.ErrInvalidInput)
	}
	return s.Sessions.GetSession(ctx, principalID, domain.SessionID(sessionID))
}

// ListSessions pages over a project's sessions, newest first.
func (s *Service) ListSessions(ctx context.Context, principalID, projectID string, page, pageSize int) (domain.PaginatedSessions, error) {
	if _, err := uuid.Parse(projectID); err != nil {
		return domain.PaginatedSessions{}, fmt.Errorf("%w: project id must be a uuid", domain.ErrInvalidInput)
	}
	return s.Sessions.ListSessions(ctx, principalID, projectID, page, pageSize)
}

// ExportResult bundles a session, its findings, and the owning project's
// name into a single export payload.
type ExportResult struct {
	ProjectName string          `json:"project_name"`
	Session     *domain.Session `json:"session"`
	Issues      []*domain.Issue `json:"issues"`
	ArchiveURL  string          `json:"archive_url,omitempty"`
}

// ExportSession builds the export payload. Only "json" is supported; the
// upstream pdf path never rendered anything and was dropped. When an archive
// store is configured a copy is uploaded and its URL returned alongside.
func (s *Service) ExportSession(ctx context.Context, principalID, sessionID, format string) (*ExportResult, error) {
	if format != "json" {
		return nil, fmt.Errorf("%w: %q (supported: json)", domain.ErrInvalidFormat, format)
	}

	sw, err := s.GetSession(ctx, principalID, sessionID)
	if err != nil {
		return nil, err
	}
	project, err := s.Projects.Get(ctx, principalID, projects.ProjectID(sw.Session.ProjectID))
	if err != nil {
		return nil, err
	}

	out := &ExportResult{
		ProjectName: project.Name,
		Session:     sw.Session,
		Issues:      sw.Issues,
	}

	if s.Archive != nil {
		payload, err := json.Marshal(out)
		if err != nil {
			slog.Warn("export payload marshal failed, skipping archive upload", "session_id", sessionID, "err", err)
		} else {
			key := fmt.Sprintf("%s/exports/%s.json", principalID, sessionID)
			url, uerr := s.Archive.UploadReport(ctx, key, payload, "application/json")
			if uerr != nil {
				slog.Warn("export archive upload failed", "session_id", sessionID, "err", uerr)
			} else {
				out.ArchiveURL = url
			}
		}
	}

	return out, nil
}

// ResolveIssue marks a finding as resolved. Idempotent: resolving an already
// resolved finding succeeds.
func (s *Service) ResolveIssue(ctx context.Context, principalID, issueID string) (*domain.Issue, error) {
	if _, err := uuid.Parse(issueID); err != nil {
		return nil, fmt.Errorf("%w: issue id must be a uuid", domain.ErrInvalidInput)
	}
	return s.Sessions.SetIssueResolved(ctx, principalID, domain.IssueID(issueID), true)
}

// MarkFalsePositive flags a finding as a false positive. Idempotent.
func (s *Service) MarkFalsePositive(ctx context.Context, principalID, issueID string) (*domain.Issue, error) {
	if _, err := uuid.Parse(issueID); err != nil {
		return nil, fmt.Errorf("%w: issue id must be a uuid", domain.ErrInvalidInput)
	}
	return s.Sessions.SetIssueFalsePositive(ctx, principalID, domain.IssueID(issueID), true)
}
