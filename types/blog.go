package types

import "time"

// BlogPost is an article of the public blog. Content is markdown.
type BlogPost struct {
	ID      string `json:"id" db:"id"`
	Title   string `json:"title" db:"title"`
	Slug    string `json:"slug" db:"slug"`
	Excerpt string `json:"excerpt" db:"excerpt"`
	Content string `json:"content" db:"content"`
	Image   string `json:"image" db:"image"`

	// ContentHTML is the sanitized rendering of Content. Never persisted.
	ContentHTML string `json:"content_html,omitempty" db:"-"`

	// PublishedAt is nil for drafts. Posts with a future value are scheduled.
	PublishedAt *time.Time `json:"published_at,omitempty" db:"published_at"`

	AuthorID  string    `json:"author_id,omitempty" db:"author_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Published reports whether the post is visible at the given instant.
func (p BlogPost) Published(now time.Time) bool {
	return p.PublishedAt != nil && p.PublishedAt.Before(now)
}
