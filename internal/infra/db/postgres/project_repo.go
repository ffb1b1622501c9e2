package postgres

import (
    "context"
    "database/sql"
    "errors"
    "time"

    "github.com/bryanwahyu/codeaudit/internal/domain/analysis"
    domain "github.com/bryanwahyu/codeaudit/internal/domain/projects"
)

type ProjectRepository struct{ db *sql.DB }

func NewProjectRepository(db *sql.DB) *ProjectRepository { return &ProjectRepository{db: db} }

// Save insert/update Project record
func (r *ProjectRepository) Save(ctx context.Context, p *domain.Project) error {
    const q = `
INSERT INTO projects
(id, owner_id, name, source_content, language, last_analyzed_at, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (id) DO UPDATE SET
 name = EXCLUDED.name,
 source_content = EXCLUDED.source_content,
 language = EXCLUDED.language,
 updated_at = EXCLUDED.updated_at;`

    created := p.CreatedAt
    if created.IsZero() { created = time.Now() }
    updated := p.UpdatedAt
    if updated.IsZero() { updated = created }

    _, err := r.db.ExecContext(ctx, q,
        p.ID, p.OwnerID, stringOrDash(p.Name), p.SourceContent, p.Language,
        p.LastAnalyzedAt, created, updated,
    )
    return err
}

// Get by ID, scoped to the owner
func (r *ProjectRepository) Get(ctx context.Context, ownerID string, id domain.ProjectID) (*domain.Project, error) {
    const q = `
SELECT id, owner_id, name, source_content, language, last_analyzed_at, created_at, updated_at
FROM projects
WHERE owner_id=$1 AND id=$2
LIMIT 1;`
    row := r.db.QueryRowContext(ctx, q, ownerID, id)

    var p domain.Project
    var lastAnalyzed sql.NullTime
    if err := row.Scan(
        &p.ID, &p.OwnerID, &p.Name, &p.SourceContent, &p.Language,
        &lastAnalyzed, &p.CreatedAt, &p.UpdatedAt,
    ); err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return nil, analysis.ErrNotFound
        }
        return nil, err
    }
    if lastAnalyzed.Valid { p.LastAnalyzedAt = &lastAnalyzed.Time }
    return &p, nil
}

// TouchAnalyzed bumps last_analyzed_at and updated_at after a successful run
func (r *ProjectRepository) TouchAnalyzed(ctx context.Context, id domain.ProjectID, at time.Time) error {
    const q = `UPDATE projects SET last_analyzed_at=$1, updated_at=$2 WHERE id=$3;`
    _, err := r.db.ExecContext(ctx, q, at, at, id)
    return err
}

// Delete removes the project; sessions and issues cascade via FK
func (r *ProjectRepository) Delete(ctx context.Context, ownerID string, id domain.ProjectID) error {
    const q = `DELETE FROM projects WHERE owner_id=$1 AND id=$2;`
    res, err := r.db.ExecContext(ctx, q, ownerID, id)
    if err != nil {
        return err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return err
    }
    if n == 0 {
        return analysis.ErrNotFound
    }
    return nil
}
