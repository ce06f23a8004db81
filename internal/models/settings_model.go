package models

import "time"

// AutoShareSettings controls the blog auto-share policy. A single row is kept.
type AutoShareSettings struct {
	Enabled       bool       `db:"enabled" json:"enabled"`
	Platforms     []Platform `db:"platforms" json:"platforms"`
	IncludeImage  bool       `db:"include_image" json:"include_image"`
	ExcerptLength int        `db:"excerpt_length" json:"excerpt_length"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}
