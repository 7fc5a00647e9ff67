package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/brazeiro63/vovo-achados-portal/types"
	"github.com/google/uuid"
)

// BlogRepository handles persistence for blog posts.
type BlogRepository struct {
	db *sql.DB
}

func NewBlogRepository(db *sql.DB) *BlogRepository {
	return &BlogRepository{db: db}
}

const blogColumns = `id, title, slug, excerpt, content, image, published_at, COALESCE(author_id::text, ''), created_at, updated_at`

func scanBlogPost(row interface{ Scan(...any) error }) (types.BlogPost, error) {
	var post types.BlogPost
	var publishedAt sql.NullTime
	err := row.Scan(
		&post.ID,
		&post.Title,
		&post.Slug,
		&post.Excerpt,
		&post.Content,
		&post.Image,
		&publishedAt,
		&post.AuthorID,
		&post.CreatedAt,
		&post.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.BlogPost{}, ErrNotFound
		}
		return types.BlogPost{}, err
	}
	if publishedAt.Valid {
		t := publishedAt.Time
		post.PublishedAt = &t
	}
	return post, nil
}

func (r *BlogRepository) queryPosts(ctx context.Context, query string, args ...any) ([]types.BlogPost, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	posts := []types.BlogPost{}
	for rows.Next() {
		post, err := scanBlogPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return posts, nil
}

// ListPublished returns posts published before now, newest first.
func (r *BlogRepository) ListPublished(ctx context.Context, now time.Time) ([]types.BlogPost, error) {
	query := `
		SELECT ` + blogColumns + `
		FROM blog_posts
		WHERE published_at IS NOT NULL AND published_at < $1
		ORDER BY published_at DESC`
	return r.queryPosts(ctx, query, now)
}

func (r *BlogRepository) GetPublishedBySlug(ctx context.Context, slug string, now time.Time) (types.BlogPost, error) {
	query := `
		SELECT ` + blogColumns + `
		FROM blog_posts
		WHERE slug = $1 AND published_at IS NOT NULL AND published_at < $2`
	return scanBlogPost(r.db.QueryRowContext(ctx, query, slug, now))
}

// ListAll returns drafts and published posts, most recently edited first.
func (r *BlogRepository) ListAll(ctx context.Context) ([]types.BlogPost, error) {
	query := `SELECT ` + blogColumns + ` FROM blog_posts ORDER BY updated_at DESC`
	return r.queryPosts(ctx, query)
}

func (r *BlogRepository) Get(ctx context.Context, id string) (types.BlogPost, error) {
	query := `SELECT ` + blogColumns + ` FROM blog_posts WHERE id = $1`
	return scanBlogPost(r.db.QueryRowContext(ctx, query, id))
}

func (r *BlogRepository) Create(ctx context.Context, post types.BlogPost) (types.BlogPost, error) {
	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	now := time.Now()
	post.CreatedAt = now
	post.UpdatedAt = now

	const query = `
		INSERT INTO blog_posts (id, title, slug, excerpt, content, image, published_at, author_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.db.ExecContext(ctx, query,
		post.ID,
		post.Title,
		post.Slug,
		post.Excerpt,
		post.Content,
		post.Image,
		post.PublishedAt,
		nullString(post.AuthorID),
		post.CreatedAt,
		post.UpdatedAt,
	)
	if err != nil {
		return types.BlogPost{}, mapWriteError(err)
	}
	return post, nil
}

func (r *BlogRepository) Update(ctx context.Context, post types.BlogPost) (types.BlogPost, error) {
	post.UpdatedAt = time.Now()

	const query = `
		UPDATE blog_posts
		SET title = $1,
			slug = $2,
			excerpt = $3,
			content = $4,
			image = $5,
			published_at = $6,
			updated_at = $7
		WHERE id = $8`
	err := execOne(ctx, r.db, query,
		post.Title,
		post.Slug,
		post.Excerpt,
		post.Content,
		post.Image,
		post.PublishedAt,
		post.UpdatedAt,
		post.ID,
	)
	if err != nil {
		return types.BlogPost{}, mapWriteError(err)
	}
	return post, nil
}

func (r *BlogRepository) Delete(ctx context.Context, id string) error {
	return execOne(ctx, r.db, `DELETE FROM blog_posts WHERE id = $1`, id)
}
