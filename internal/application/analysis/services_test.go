package analysis_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appanalysis "github.com/bryanwahyu/codeaudit/internal/application/analysis"
	domainai "github.com/bryanwahyu/codeaudit/internal/domain/ai"
	"github.com/bryanwahyu/codeaudit/internal/domain/analysis"
	"github.com/bryanwahyu/codeaudit/internal/domain/projects"
)

// fakeStore implements projects.Repository and analysis.Repository in memory
// with the same owner scoping the SQL repos enforce.
type fakeStore struct {
	mu       sync.Mutex
	projects map[projects.ProjectID]*projects.Project
	sessions map[analysis.SessionID]*analysis.Session
	issues   map[analysis.SessionID][]*analysis.Issue

	createErr      error
	dropFirstIssue bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		projects: make(map[projects.ProjectID]*projects.Project),
		sessions: make(map[analysis.SessionID]*analysis.Session),
		issues:   make(map[analysis.SessionID][]*analysis.Issue),
	}
}

func (f *fakeStore) Save(ctx context.Context, p *projects.Project) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.projects[p.ID] = p
	return nil
}

func (f *fakeStore) Get(ctx context.Context, ownerID string, id projects.ProjectID) (*projects.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[id]
	if !ok || p.OwnerID != ownerID {
		return nil, analysis.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) TouchAnalyzed(ctx context.Context, id projects.ProjectID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.projects[id]; ok {
		p.LastAnalyzedAt = &at
		p.UpdatedAt = at
	}
	return nil
}

func (f *fakeStore) Delete(ctx context.Context, ownerID string, id projects.ProjectID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[id]
	if !ok || p.OwnerID != ownerID {
		return analysis.ErrNotFound
	}
	delete(f.projects, id)
	return nil
}

func (f *fakeStore) CreateSession(ctx context.Context, s *analysis.Session, issues []*analysis.Issue) ([]*analysis.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	if f.dropFirstIssue && len(issues) > 0 {
		issues = issues[1:]
	}
	f.sessions[s.ID] = s
	f.issues[s.ID] = issues
	return issues, nil
}

func (f *fakeStore) ownerOf(s *analysis.Session) string {
	if p, ok := f.projects[projects.ProjectID(s.ProjectID)]; ok {
		return p.OwnerID
	}
	return ""
}

func (f *fakeStore) GetSession(ctx context.Context, ownerID string, id analysis.SessionID) (*analysis.SessionWithIssues, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok || f.ownerOf(s) != ownerID {
		return nil, analysis.ErrNotFound
	}
	return &analysis.SessionWithIssues{Session: s, Issues: f.issues[id]}, nil
}

func (f *fakeStore) ListSessions(ctx context.Context, ownerID, projectID string, page, pageSize int) (analysis.PaginatedSessions, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*analysis.Session
	for _, s := range f.sessions {
		if s.ProjectID == projectID && f.ownerOf(s) == ownerID {
			out = append(out, s)
		}
	}
	return analysis.PaginatedSessions{Data: out, Page: 1, PageSize: pageSize, Total: int64(len(out)), TotalPages: 1}, nil
}

func (f *fakeStore) findIssue(ownerID string, id analysis.IssueID) (*analysis.Issue, error) {
	for sid, list := range f.issues {
		for _, i := range list {
			if i.ID == id {
				if f.ownerOf(f.sessions[sid]) != ownerID {
					return nil, analysis.ErrNotFound
				}
				return i, nil
			}
		}
	}
	return nil, analysis.ErrNotFound
}

func (f *fakeStore) SetIssueResolved(ctx context.Context, ownerID string, id analysis.IssueID, resolved bool) (*analysis.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i, err := f.findIssue(ownerID, id)
	if err != nil {
		return nil, err
	}
	i.Resolved = resolved
	cp := *i
	return &cp, nil
}

func (f *fakeStore) SetIssueFalsePositive(ctx context.Context, ownerID string, id analysis.IssueID, falsePositive bool) (*analysis.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i, err := f.findIssue(ownerID, id)
	if err != nil {
		return nil, err
	}
	i.FalsePositive = falsePositive
	cp := *i
	return &cp, nil
}

// fakeAI lets each test script the reasoning service.
type fakeAI struct {
	assess func(ctx context.Context) (string, error)
	calls  int
}

func (f *fakeAI) Assess(ctx context.Context, sourceContent, projectLabel string) (string, error) {
	f.calls++
	return f.assess(ctx)
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func newService(store *fakeStore, ai *fakeAI) *appanalysis.Service {
	return &appanalysis.Service{
		Projects: store,
		Sessions: store,
		AI:       ai,
		Clock:    fixedClock{t: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)},
		Model:    "o3-2025-04-16",
	}
}

func seedProject(store *fakeStore, owner string) *projects.Project {
	p := &projects.Project{
		ID:            projects.ProjectID(uuid.New().String()),
		OwnerID:       owner,
		Name:          "webshop",
		SourceContent: "const q = 'SELECT * FROM users WHERE id = ' + req.params.id",
	}
	_ = store.Save(context.Background(), p)
	return p
}

const twoFindingsJSON = `{"vulnerabilities": [
  {
    "severity": "critical",
    "type": "SQL Injection",
    "category": "Input Validation",
    "filePath": "routes/users.js",
    "lineNumber": 12,
    "description": "Request parameter concatenated into SQL query string.",
    "recommendation": "Use parameterized queries for all user-controlled input.",
    "confidenceScore": 0.95
  },
  {
    "severity": "medium",
    "type": "XSS",
    "category": "Output Encoding",
    "description": "User-supplied value rendered into HTML without escaping.",
    "recommendation": "HTML-escape all interpolated values before rendering."
  }
]}`

func TestRunAnalysis(t *testing.T) {
	ctx := context.Background()

	t.Run("should persist a completed session with aggregated counts", func(t *testing.T) {
		store := newFakeStore()
		p := seedProject(store, "alice")
		svc := newService(store, &fakeAI{assess: func(ctx context.Context) (string, error) {
			return twoFindingsJSON, nil
		}})

		result, err := svc.RunAnalysis(ctx, "alice", string(p.ID))

		require.NoError(t, err)
		assert.Equal(t, analysis.StatusCompleted, result.Session.Status)
		assert.Equal(t, 1, result.Session.Counts.Critical)
		assert.Equal(t, 1, result.Session.Counts.Medium)
		assert.Equal(t, 2, result.Session.Counts.Total)
		require.NotNil(t, result.Session.OverallScore)
		assert.Equal(t, 6.0, *result.Session.OverallScore) // 10 - (3 + 1)
		require.NotNil(t, result.Session.CompletedAt)
		require.NotNil(t, result.Session.ProcessingTimeMS)
		require.Len(t, result.Issues, 2)
	})

	t.Run("should default filePath and confidence when omitted", func(t *testing.T) {
		store := newFakeStore()
		p := seedProject(store, "alice")
		svc := newService(store, &fakeAI{assess: func(ctx context.Context) (string, error) {
			return twoFindingsJSON, nil
		}})

		result, err := svc.RunAnalysis(ctx, "alice", string(p.ID))

		require.NoError(t, err)
		xss := result.Issues[1]
		assert.Equal(t, "webshop/main.js", xss.FilePath)
		assert.Equal(t, 0.8, xss.ConfidenceScore)
		assert.Equal(t, 0.95, result.Issues[0].ConfidenceScore)
	})

	t.Run("should complete with zero findings when the reasoning service fails", func(t *testing.T) {
		store := newFakeStore()
		p := seedProject(store, "alice")
		svc := newService(store, &fakeAI{assess: func(ctx context.Context) (string, error) {
			return "", errors.New("upstream 503")
		}})

		result, err := svc.RunAnalysis(ctx, "alice", string(p.ID))

		require.NoError(t, err)
		assert.Equal(t, analysis.StatusCompleted, result.Session.Status)
		assert.Equal(t, 0, result.Session.Counts.Total)
		assert.Equal(t, 10.0, *result.Session.OverallScore)
		assert.Empty(t, result.Issues)
	})

	t.Run("should absorb quota exhaustion like any other upstream failure", func(t *testing.T) {
		store := newFakeStore()
		p := seedProject(store, "alice")
		svc := newService(store, &fakeAI{assess: func(ctx context.Context) (string, error) {
			return "", fmt.Errorf("%w: rate limit reached", domainai.ErrQuotaExceeded)
		}})

		result, err := svc.RunAnalysis(ctx, "alice", string(p.ID))

		require.NoError(t, err)
		assert.Equal(t, analysis.StatusCompleted, result.Session.Status)
		assert.Equal(t, 0, result.Session.Counts.Total)
		assert.Equal(t, 10.0, *result.Session.OverallScore)
	})

	t.Run("should complete with zero findings when the response has no JSON", func(t *testing.T) {
		store := newFakeStore()
		p := seedProject(store, "alice")
		svc := newService(store, &fakeAI{assess: func(ctx context.Context) (string, error) {
			return "The code looks reasonably safe to me.", nil
		}})

		result, err := svc.RunAnalysis(ctx, "alice", string(p.ID))

		require.NoError(t, err)
		assert.Equal(t, 0, result.Session.Counts.Total)
		assert.Equal(t, 10.0, *result.Session.OverallScore)
	})

	t.Run("should bump the project analysis timestamp", func(t *testing.T) {
		store := newFakeStore()
		p := seedProject(store, "alice")
		svc := newService(store, &fakeAI{assess: func(ctx context.Context) (string, error) {
			return twoFindingsJSON, nil
		}})

		_, err := svc.RunAnalysis(ctx, "alice", string(p.ID))

		require.NoError(t, err)
		require.NotNil(t, store.projects[p.ID].LastAnalyzedAt)
	})

	t.Run("should hide foreign projects behind not found", func(t *testing.T) {
		store := newFakeStore()
		p := seedProject(store, "alice")
		ai := &fakeAI{assess: func(ctx context.Context) (string, error) { return "{}", nil }}
		svc := newService(store, ai)

		_, err := svc.RunAnalysis(ctx, "bob", string(p.ID))

		assert.ErrorIs(t, err, analysis.ErrNotFound)
		assert.Zero(t, ai.calls)
	})

	t.Run("should reject malformed project ids", func(t *testing.T) {
		svc := newService(newFakeStore(), &fakeAI{assess: func(ctx context.Context) (string, error) { return "", nil }})

		_, err := svc.RunAnalysis(ctx, "alice", "not-a-uuid")

		assert.ErrorIs(t, err, analysis.ErrInvalidInput)
	})

	t.Run("should write nothing when the caller cancels mid-call", func(t *testing.T) {
		store := newFakeStore()
		p := seedProject(store, "alice")
		cctx, cancel := context.WithCancel(ctx)
		svc := newService(store, &fakeAI{assess: func(ctx context.Context) (string, error) {
			cancel()
			<-ctx.Done()
			return "", ctx.Err()
		}})

		_, err := svc.RunAnalysis(cctx, "alice", string(p.ID))

		assert.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, store.sessions)
	})

	t.Run("should keep the session and counts when an issue insert is skipped", func(t *testing.T) {
		store := newFakeStore()
		p := seedProject(store, "alice")
		store.dropFirstIssue = true
		svc := newService(store, &fakeAI{assess: func(ctx context.Context) (string, error) {
			return twoFindingsJSON, nil
		}})

		result, err := svc.RunAnalysis(ctx, "alice", string(p.ID))

		require.NoError(t, err)
		assert.Equal(t, analysis.StatusCompleted, result.Session.Status)
		assert.Equal(t, 2, result.Session.Counts.Total)
		require.Len(t, result.Issues, 1)

		got, err := svc.GetSession(ctx, "alice", string(result.Session.ID))
		require.NoError(t, err)
		assert.Equal(t, 2, got.Session.Counts.Total)
		assert.Len(t, got.Issues, 1)
	})

	t.Run("should propagate persistence failures", func(t *testing.T) {
		store := newFakeStore()
		p := seedProject(store, "alice")
		store.createErr = errors.New("disk full")
		svc := newService(store, &fakeAI{assess: func(ctx context.Context) (string, error) {
			return twoFindingsJSON, nil
		}})

		_, err := svc.RunAnalysis(ctx, "alice", string(p.ID))

		assert.Error(t, err)
		assert.NotErrorIs(t, err, analysis.ErrNotFound)
	})
}

func TestGetSession(t *testing.T) {
	ctx := context.Background()

	t.Run("should return identical counts and score right after a run", func(t *testing.T) {
		store := newFakeStore()
		p := seedProject(store, "alice")
		svc := newService(store, &fakeAI{assess: func(ctx context.Context) (string, error) {
			return twoFindingsJSON, nil
		}})

		ran, err := svc.RunAnalysis(ctx, "alice", string(p.ID))
		require.NoError(t, err)

		got, err := svc.GetSession(ctx, "alice", string(ran.Session.ID))
		require.NoError(t, err)

		assert.Equal(t, ran.Session.Counts, got.Session.Counts)
		assert.Equal(t, *ran.Session.OverallScore, *got.Session.OverallScore)
		assert.Len(t, got.Issues, len(ran.Issues))
	})

	t.Run("should hide foreign sessions behind not found", func(t *testing.T) {
		store := newFakeStore()
		p := seedProject(store, "alice")
		svc := newService(store, &fakeAI{assess: func(ctx context.Context) (string, error) {
			return twoFindingsJSON, nil
		}})

		ran, err := svc.RunAnalysis(ctx, "alice", string(p.ID))
		require.NoError(t, err)

		_, err = svc.GetSession(ctx, "bob", string(ran.Session.ID))
		assert.ErrorIs(t, err, analysis.ErrNotFound)
	})

	t.Run("should reject malformed session ids", func(t *testing.T) {
		svc := newService(newFakeStore(), &fakeAI{assess: func(ctx context.Context) (string, error) { return "", nil }})

		_, err := svc.GetSession(ctx, "alice", "42")
		assert.ErrorIs(t, err, analysis.ErrInvalidInput)
	})
}

type fakeArchive struct {
	keys []string
}

func (f *fakeArchive) UploadReport(ctx context.Context, key string, payload []byte, contentType string) (string, error) {
	f.keys = append(f.keys, key)
	return fmt.Sprintf("http://archive.local/%s", key), nil
}

func TestExportSession(t *testing.T) {
	ctx := context.Background()

	runOnce := func(t *testing.T, store *fakeStore) (svc *appanalysis.Service, sessionID string) {
		t.Helper()
		p := seedProject(store, "alice")
		svc = newService(store, &fakeAI{assess: func(ctx context.Context) (string, error) {
			return twoFindingsJSON, nil
		}})
		ran, err := svc.RunAnalysis(ctx, "alice", string(p.ID))
		require.NoError(t, err)
		return svc, string(ran.Session.ID)
	}

	t.Run("should bundle project name with session and issues", func(t *testing.T) {
		svc, id := runOnce(t, newFakeStore())

		out, err := svc.ExportSession(ctx, "alice", id, "json")

		require.NoError(t, err)
		assert.Equal(t, "webshop", out.ProjectName)
		assert.Len(t, out.Issues, 2)
		assert.Empty(t, out.ArchiveURL)
	})

	t.Run("should reject any format besides json", func(t *testing.T) {
		svc, id := runOnce(t, newFakeStore())

		_, err := svc.ExportSession(ctx, "alice", id, "pdf")
		assert.ErrorIs(t, err, analysis.ErrInvalidFormat)

		_, err = svc.ExportSession(ctx, "alice", id, "csv")
		assert.ErrorIs(t, err, analysis.ErrInvalidFormat)
	})

	t.Run("should archive a copy when a store is configured", func(t *testing.T) {
		store := newFakeStore()
		svc, id := runOnce(t, store)
		archive := &fakeArchive{}
		svc.Archive = archive

		out, err := svc.ExportSession(ctx, "alice", id, "json")

		require.NoError(t, err)
		assert.Contains(t, out.ArchiveURL, id)
		require.Len(t, archive.keys, 1)
	})

	t.Run("should hide foreign sessions behind not found", func(t *testing.T) {
		svc, id := runOnce(t, newFakeStore())

		_, err := svc.ExportSession(ctx, "bob", id, "json")
		assert.ErrorIs(t, err, analysis.ErrNotFound)
	})
}

func TestIssueToggles(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*appanalysis.Service, *fakeStore, string) {
		t.Helper()
		store := newFakeStore()
		p := seedProject(store, "alice")
		svc := newService(store, &fakeAI{assess: func(ctx context.Context) (string, error) {
			return twoFindingsJSON, nil
		}})
		ran, err := svc.RunAnalysis(ctx, "alice", string(p.ID))
		require.NoError(t, err)
		return svc, store, string(ran.Issues[0].ID)
	}

	t.Run("should resolve an issue idempotently", func(t *testing.T) {
		svc, _, issueID := setup(t)

		first, err := svc.ResolveIssue(ctx, "alice", issueID)
		require.NoError(t, err)
		assert.True(t, first.Resolved)

		second, err := svc.ResolveIssue(ctx, "alice", issueID)
		require.NoError(t, err)
		assert.True(t, second.Resolved)
	})

	t.Run("should mark false positive without touching resolved", func(t *testing.T) {
		svc, _, issueID := setup(t)

		issue, err := svc.MarkFalsePositive(ctx, "alice", issueID)

		require.NoError(t, err)
		assert.True(t, issue.FalsePositive)
		assert.False(t, issue.Resolved)
	})

	t.Run("should hide foreign issues behind not found", func(t *testing.T) {
		svc, _, issueID := setup(t)

		_, err := svc.ResolveIssue(ctx, "bob", issueID)
		assert.ErrorIs(t, err, analysis.ErrNotFound)

		_, err = svc.MarkFalsePositive(ctx, "bob", issueID)
		assert.ErrorIs(t, err, analysis.ErrNotFound)
	})

	t.Run("should reject malformed issue ids", func(t *testing.T) {
		svc, _, _ := setup(t)

		_, err := svc.ResolveIssue(ctx, "alice", "nope")
		assert.ErrorIs(t, err, analysis.ErrInvalidInput)
	})

	t.Run("should return not found for an absent issue id", func(t *testing.T) {
		svc, _, _ := setup(t)

		_, err := svc.ResolveIssue(ctx, "alice", uuid.New().String())
		assert.ErrorIs(t, err, analysis.ErrNotFound)
	})
}
