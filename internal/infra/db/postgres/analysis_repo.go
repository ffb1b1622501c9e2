package postgres

import (
    "context"
    "database/sql"
    "errors"
    "fmt"
    "log/slog"
    "math"

    domain "github.com/bryanwahyu/codeaudit/internal/domain/analysis"
)

type AnalysisRepository struct{ db *sql.DB }

func NewAnalysisRepository(db *sql.DB) *AnalysisRepository { return &AnalysisRepository{db: db} }

// CreateSession inserts the session row and its issues inside one
// transaction; failing issue inserts are skipped via savepoints so they do
// not abort the surrounding transaction (postgres poisons a tx on error).
func (r *AnalysisRepository) CreateSession(ctx context.Context, s *domain.Session, issues []*domain.Issue) ([]*domain.Issue, error) {
    tx, err := r.db.BeginTx(ctx, nil)
    if err != nil {
        return nil, err
    }
    defer tx.Rollback()

    const qs = `
INSERT INTO analysis_sessions
(id, project_id, status, overall_score,
 critical, high, medium, low, total_issues,
 processing_time_ms, model, created_at, completed_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13);`
    if _, err := tx.ExecContext(ctx, qs,
        s.ID, s.ProjectID, stringOrDash(string(s.Status)), s.OverallScore,
        s.Counts.Critical, s.Counts.High, s.Counts.Medium, s.Counts.Low, s.Counts.Total,
        s.ProcessingTimeMS, s.Model, s.CreatedAt, s.CompletedAt,
    ); err != nil {
        return nil, fmt.Errorf("inserting session: %w", err)
    }

    const qi = `
INSERT INTO security_issues
(id, session_id, severity, type, category, file_path,
 line_number, code_snippet, description, recommendation,
 confidence_score, false_positive, resolved, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14);`
    persisted := make([]*domain.Issue, 0, len(issues))
    for n, i := range issues {
        sp := fmt.Sprintf("issue_%d", n)
        if _, err := tx.ExecContext(ctx, "SAVEPOINT "+sp); err != nil {
            return nil, err
        }
        if _, err := tx.ExecContext(ctx, qi,
            i.ID, i.SessionID, i.Severity, i.Type, i.Category, i.FilePath,
            i.LineNumber, nullIfEmpty(i.CodeSnippet), i.Description, i.Recommendation,
            i.ConfidenceScore, i.FalsePositive, i.Resolved, i.CreatedAt,
        ); err != nil {
            slog.Warn("skipping issue insert", "issue_id", i.ID, "err", err)
            if _, err := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+sp); err != nil {
                return nil, err
            }
            continue
        }
        persisted = append(persisted, i)
    }

    if err := tx.Commit(); err != nil {
        return nil, err
    }
    return persisted, nil
}

// GetSession joins through the owning project to enforce ownership
func (r *AnalysisRepository) GetSession(ctx context.Context, ownerID string, id domain.SessionID) (*domain.SessionWithIssues, error) {
    const q = `
SELECT s.id, s.project_id, s.status, s.overall_score,
       s.critical, s.high, s.medium, s.low, s.total_issues,
       s.processing_time_ms, s.model, s.created_at, s.completed_at
FROM analysis_sessions s
JOIN projects p ON p.id = s.project_id
WHERE p.owner_id=$1 AND s.id=$2
LIMIT 1;`
    row := r.db.QueryRowContext(ctx, q, ownerID, id)
    s, err := scanSession(row)
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return nil, domain.ErrNotFound
        }
        return nil, err
    }

    const qi = `
SELECT id, session_id, severity, type, category, file_path,
       line_number, code_snippet, description, recommendation,
       confidence_score, false_positive, resolved, created_at
FROM security_issues
WHERE session_id=$1
ORDER BY created_at ASC, id ASC;`
    rows, err := r.db.QueryContext(ctx, qi, s.ID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()

    var issues []*domain.Issue
    for rows.Next() {
        i, err := scanIssue(rows)
        if err != nil {
            return nil, err
        }
        issues = append(issues, i)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return &domain.SessionWithIssues{Session: s, Issues: issues}, nil
}

// ListSessions with offset + limit
func (r *AnalysisRepository) ListSessions(ctx context.Context, ownerID, projectID string, page, pageSize int) (domain.PaginatedSessions, error) {
    if page <= 0 { page = 1 }
    if pageSize <= 0 { pageSize = 20 }
    offset := (page - 1) * pageSize

    const q = `
SELECT s.id, s.project_id, s.status, s.overall_score,
       s.critical, s.high, s.medium, s.low, s.total_issues,
       s.processing_time_ms, s.model, s.created_at, s.completed_at
FROM analysis_sessions s
JOIN projects p ON p.id = s.project_id
WHERE p.owner_id=$1 AND s.project_id=$2
ORDER BY s.created_at DESC, s.id DESC
LIMIT $3 OFFSET $4;`
    rows, err := r.db.QueryContext(ctx, q, ownerID, projectID, pageSize, offset)
    if err != nil {
        return domain.PaginatedSessions{}, fmt.Errorf("querying sessions: %w", err)
    }
    defer rows.Close()

    var sessions []*domain.Session
    for rows.Next() {
        s, err := scanSession(rows)
        if err != nil {
            return domain.PaginatedSessions{}, fmt.Errorf("scanning row: %w", err)
        }
        sessions = append(sessions, s)
    }
    if err := rows.Err(); err != nil {
        return domain.PaginatedSessions{}, fmt.Errorf("iterating rows: %w", err)
    }

    const qc = `
SELECT COUNT(*)
FROM analysis_sessions s
JOIN projects p ON p.id = s.project_id
WHERE p.owner_id=$1 AND s.project_id=$2;`
    var total int64
    if err := r.db.QueryRowContext(ctx, qc, ownerID, projectID).Scan(&total); err != nil {
        return domain.PaginatedSessions{}, fmt.Errorf("getting total count: %w", err)
    }

    return domain.PaginatedSessions{
        Data:       sessions,
        Page:       page,
        PageSize:   pageSize,
        Total:      total,
        TotalPages: int(math.Ceil(float64(total) / float64(pageSize))),
    }, nil
}

// SetIssueResolved toggles the resolved flag, owner-scoped
func (r *AnalysisRepository) SetIssueResolved(ctx context.Context, ownerID string, id domain.IssueID, resolved bool) (*domain.Issue, error) {
    return r.toggleIssue(ctx, ownerID, id, "resolved", resolved)
}

// SetIssueFalsePositive toggles the false_positive flag, owner-scoped
func (r *AnalysisRepository) SetIssueFalsePositive(ctx context.Context, ownerID string, id domain.IssueID, falsePositive bool) (*domain.Issue, error) {
    return r.toggleIssue(ctx, ownerID, id, "false_positive", falsePositive)
}

func (r *AnalysisRepository) toggleIssue(ctx context.Context, ownerID string, id domain.IssueID, column string, value bool) (*domain.Issue, error) {
    const q = `
SELECT i.id, i.session_id, i.severity, i.type, i.category, i.file_path,
       i.line_number, i.code_snippet, i.description, i.recommendation,
       i.confidence_score, i.false_positive, i.resolved, i.created_at
FROM security_issues i
JOIN analysis_sessions s ON s.id = i.session_id
JOIN projects p ON p.id = s.project_id
WHERE p.owner_id=$1 AND i.id=$2
LIMIT 1;`
    row := r.db.QueryRowContext(ctx, q, ownerID, id)
    issue, err := scanIssue(row)
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return nil, domain.ErrNotFound
        }
        return nil, err
    }

    // column comes from the two callers above, never from input
    update := fmt.Sprintf(`UPDATE security_issues SET %s = $1 WHERE id = $2;`, column)
    if _, err := r.db.ExecContext(ctx, update, value, id); err != nil {
        return nil, err
    }

    switch column {
    case "resolved":
        issue.Resolved = value
    case "false_positive":
        issue.FalsePositive = value
    }
    return issue, nil
}

type rowScanner interface{ Scan(dest ...any) error }

func scanSession(row rowScanner) (*domain.Session, error) {
    var s domain.Session
    var score sql.NullFloat64
    var processing sql.NullInt64
    var model sql.NullString
    var completed sql.NullTime
    var crit, hi, med, lo, tot int
    if err := row.Scan(
        &s.ID, &s.ProjectID, &s.Status, &score,
        &crit, &hi, &med, &lo, &tot,
        &processing, &model, &s.CreatedAt, &completed,
    ); err != nil {
        return nil, err
    }
    s.Counts = domain.SeverityCounts{Critical: crit, High: hi, Medium: med, Low: lo, Total: tot}
    if score.Valid { s.OverallScore = &score.Float64 }
    if processing.Valid { s.ProcessingTimeMS = &processing.Int64 }
    if model.Valid { s.Model = model.String }
    if completed.Valid { s.CompletedAt = &completed.Time }
    return &s, nil
}

func scanIssue(row rowScanner) (*domain.Issue, error) {
    var i domain.Issue
    var line sql.NullInt64
    var snippet sql.NullString
    if err := row.Scan(
        &i.ID, &i.SessionID, &i.Severity, &i.Type, &i.Category, &i.FilePath,
        &line, &snippet, &i.Description, &i.Recommendation,
        &i.ConfidenceScore, &i.FalsePositive, &i.Resolved, &i.CreatedAt,
    ); err != nil {
        return nil, err
    }
    if line.Valid {
        n := int(line.Int64)
        i.LineNumber = &n
    }
    if snippet.Valid { i.CodeSnippet = snippet.String }
    return &i, nil
}

func nullIfEmpty(s string) any {
    if s == "" {
        return nil
    }
    return s
}
