package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Categories, creators and tags are name-keyed reference rows shared by many
// comics. They are created lazily by the seeders and never renamed.

type Category struct {
	bun.BaseModel `bun:"table:categories,alias:cat"`

	ID        int       `bun:",pk,autoincrement" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Name      string    `bun:",notnull" json:"name"`
}

type Creator struct {
	bun.BaseModel `bun:"table:creators,alias:cr"`

	ID        int       `bun:",pk,autoincrement" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Name      string    `bun:",notnull" json:"name"`
}

type Tag struct {
	bun.BaseModel `bun:"table:tags,alias:t"`

	ID        int       `bun:",pk,autoincrement" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Name      string    `bun:",notnull" json:"name"`
}
