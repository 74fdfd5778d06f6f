package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	ComicStatusOngoing   = "ongoing"
	ComicStatusCompleted = "completed"
	ComicStatusHiatus    = "hiatus"
	ComicStatusCancelled = "cancelled"
)

// ComicStatuses is the closed set of statuses a comic can be stored with.
var ComicStatuses = []string{
	ComicStatusOngoing,
	ComicStatusCompleted,
	ComicStatusHiatus,
	ComicStatusCancelled,
}

type Comic struct {
	bun.BaseModel `bun:"table:comics,alias:c"`

	ID              int        `bun:",pk,autoincrement" json:"id"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	Title           string     `bun:",notnull" json:"title"`
	Slug            string     `bun:",notnull" json:"slug"`
	AltTitles       *string    `json:"alt_titles,omitempty"`
	Description     *string    `json:"description,omitempty"`
	Status          string     `bun:",notnull" json:"status"`
	CategoryID      *int       `json:"category_id,omitempty"`
	Category        *Category  `bun:"rel:belongs-to,join:category_id=id" json:"category,omitempty"`
	CoverImagePath  *string    `json:"cover_image_path,omitempty"`
	SourceURL       *string    `json:"source_url,omitempty"`
	PublishedAt     *time.Time `json:"published_at,omitempty"`
	SourceUpdatedAt *time.Time `json:"source_updated_at,omitempty"`
	LastChapterAt   *time.Time `json:"last_chapter_at,omitempty"`
}

type ComicCreator struct {
	bun.BaseModel `bun:"table:comic_creators,alias:cc"`

	ComicID   int      `bun:",pk" json:"comic_id"`
	CreatorID int      `bun:",pk" json:"creator_id"`
	Creator   *Creator `bun:"rel:belongs-to,join:creator_id=id" json:"creator,omitempty"`
}

type ComicTag struct {
	bun.BaseModel `bun:"table:comic_tags,alias:ct"`

	ComicID int  `bun:",pk" json:"comic_id"`
	TagID   int  `bun:",pk" json:"tag_id"`
	Tag     *Tag `bun:"rel:belongs-to,join:tag_id=id" json:"tag,omitempty"`
}
