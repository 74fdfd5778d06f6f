package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	RunStatusInProgress = "in_progress"
	RunStatusCompleted  = "completed"
	RunStatusFailed     = "failed"
)

const (
	RunTypeComics   = "comics"
	RunTypeChapters = "chapters"
)

// Run is one invocation of a seeder over an input file.
type Run struct {
	bun.BaseModel `bun:"table:ingest_runs,alias:r"`

	ID         int        `bun:",pk,autoincrement" json:"id"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	UUID       string     `bun:"uuid,notnull" json:"uuid"`
	Type       string     `bun:",notnull" json:"type"`
	Status     string     `bun:",notnull" json:"status"`
	Source     *string    `json:"source,omitempty"`
	Total      int        `bun:",notnull" json:"total"`
	Processed  int        `bun:",notnull" json:"processed"`
	Created    int        `bun:",notnull" json:"created"`
	Updated    int        `bun:",notnull" json:"updated"`
	Skipped    int        `bun:",notnull" json:"skipped"`
	Errored    int        `bun:",notnull" json:"errored"`
	Error      *string    `json:"error,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
