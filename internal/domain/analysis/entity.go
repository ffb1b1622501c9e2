package analysis

import (
	"fmt"
	"strings"
	"time"
)

// ID tipe untuk AnalysisSession
type SessionID string

// IssueID identifier type
type IssueID string

// Severity enum
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// ParseSeverity normalizes a raw severity string to the four-value taxonomy.
func ParseSeverity(s string) (Severity, error) {
	switch Severity(strings.ToLower(strings.TrimSpace(s))) {
	case SeverityCritical:
		return SeverityCritical, nil
	case SeverityHigh:
		return SeverityHigh, nil
	case SeverityMedium:
		return SeverityMedium, nil
	case SeverityLow:
		return SeverityLow, nil
	}
	return "", fmt.Errorf("unknown severity: %q", s)
}

// Status enum
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// FindingTypes are the only vulnerability classes the reasoning service is
// allowed to report; the prompt builder enumerates them verbatim.
var FindingTypes = []string{
	"SQL Injection",
	"XSS",
	"Path Traversal",
	"Command Injection",
	"Insecure Deserialization",
	"Broken Authentication",
	"Broken Access Control",
	"Security Misconfiguration",
	"Insecure Direct Object Reference",
	"CSRF",
}

// SeverityCounts value object
type SeverityCounts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Total    int `json:"total"`
}

// Aggregate Root: Session (one pipeline invocation against one project)
type Session struct {
	ID               SessionID      `json:"id"`
	ProjectID        string         `json:"project_id"`
	Status           Status         `json:"status"`
	OverallScore     *float64       `json:"overall_score"`
	Counts           SeverityCounts `json:"counts"`
	ProcessingTimeMS *int64         `json:"processing_time_ms"`
	Model            string         `json:"model,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	CompletedAt      *time.Time     `json:"completed_at"`
}

// Issue is one validated vulnerability tied to a session.
type Issue struct {
	ID              IssueID   `json:"id"`
	SessionID       SessionID `json:"session_id"`
	Severity        Severity  `json:"severity"`
	Type            string    `json:"type"`
	Category        string    `json:"category"`
	FilePath        string    `json:"file_path"`
	LineNumber      *int      `json:"line_number"`
	CodeSnippet     string    `json:"code_snippet,omitempty"`
	Description     string    `json:"description"`
	Recommendation  string    `json:"recommendation"`
	ConfidenceScore float64   `json:"confidence_score"`
	FalsePositive   bool      `json:"false_positive"`
	Resolved        bool      `json:"resolved"`
	CreatedAt       time.Time `json:"created_at"`
}

// SessionWithIssues is the retrieval/export shape: a session plus its findings.
type SessionWithIssues struct {
	Session *Session `json:"session"`
	Issues  []*Issue `json:"issues"`
}

// PaginatedSessions represents a paginated response with data and metadata
type PaginatedSessions struct {
	Data       []*Session `json:"data"`
	Page       int        `json:"page"`
	PageSize   int        `json:"pageSize"`
	Total      int64      `json:"totalItems"`
	TotalPages int        `json:"totalPages"`
}
