package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Chapter struct {
	bun.BaseModel `bun:"table:chapters,alias:ch"`

	ID          int        `bun:",pk,autoincrement" json:"id"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ComicID     int        `bun:",notnull" json:"comic_id"`
	Comic       *Comic     `bun:"rel:belongs-to,join:comic_id=id" json:"-"`
	Number      float64    `bun:",notnull" json:"number"`
	Title       string     `bun:",notnull" json:"title"`
	Pages       []string   `bun:"pages" json:"pages"`
	PageCount   int        `bun:",notnull" json:"page_count"`
	SourceURL   *string    `json:"source_url,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}
