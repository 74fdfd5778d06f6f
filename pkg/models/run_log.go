package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	RunLogLevelInfo  = "info"
	RunLogLevelWarn  = "warn"
	RunLogLevelError = "error"
)

type RunLog struct {
	bun.BaseModel `bun:"table:run_logs,alias:rl"`

	ID        int       `bun:",pk,autoincrement" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	RunID     int       `bun:",notnull" json:"run_id"`
	Level     string    `bun:",notnull" json:"level"`
	Message   string    `bun:",notnull" json:"message"`
	Label     *string   `json:"label,omitempty"`
	Data      *string   `json:"data,omitempty"`
}
