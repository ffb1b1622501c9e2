package projects

import "time"

// ID tipe untuk Project
type ProjectID string

// Project holds the source content under analysis and its owner reference.
// Full project CRUD lives outside this service; the pipeline only reads
// content and bumps the analysis timestamps.
type Project struct {
	ID             ProjectID  `json:"id"`
	OwnerID        string     `json:"owner_id"`
	Name           string     `json:"name"`
	SourceContent  string     `json:"source_content,omitempty"`
	Language       string     `json:"language,omitempty"`
	LastAnalyzedAt *time.Time `json:"last_analyzed_at"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}
