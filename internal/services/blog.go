package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/brazeiro63/vovo-achados-portal/internal/cache"
	"github.com/brazeiro63/vovo-achados-portal/internal/store"
	"github.com/brazeiro63/vovo-achados-portal/types"
)

// BlogRepository defines persistence operations for blog posts.
type BlogRepository interface {
	ListPublished(ctx context.Context, now time.Time) ([]types.BlogPost, error)
	GetPublishedBySlug(ctx context.Context, slug string, now time.Time) (types.BlogPost, error)
	ListAll(ctx context.Context) ([]types.BlogPost, error)
	Get(ctx context.Context, id string) (types.BlogPost, error)
	Create(ctx context.Context, post types.BlogPost) (types.BlogPost, error)
	Update(ctx context.Context, post types.BlogPost) (types.BlogPost, error)
	Delete(ctx context.Context, id string) error
}

// BlogInput is the editor form.
type BlogInput struct {
	Title   string `json:"title"`
	Slug    string `json:"slug"`
	Excerpt string `json:"excerpt"`
	Content string `json:"content"`
	Image   string `json:"image"`
	Publish bool   `json:"publish"`
}

type BlogService struct {
	repo     BlogRepository
	queries  *cache.Query
	renderer *Renderer
	now      func() time.Time
}

func NewBlogService(repo BlogRepository, queries *cache.Query) *BlogService {
	return &BlogService{repo: repo, queries: queries, renderer: NewRenderer(), now: time.Now}
}

// ListPublished returns visible posts, newest first.
func (s *BlogService) ListPublished(ctx context.Context) ([]types.BlogPost, error) {
	return cache.Fetch(ctx, s.queries, KeyPublishedPosts, func(ctx context.Context) ([]types.BlogPost, error) {
		return s.repo.ListPublished(ctx, s.now())
	})
}

// GetPublished returns a visible post with its rendered content.
func (s *BlogService) GetPublished(ctx context.Context, slug string) (types.BlogPost, error) {
	slug = strings.TrimSpace(slug)
	return cache.Fetch(ctx, s.queries, cache.Key(KeyPublishedPost, slug), func(ctx context.Context) (types.BlogPost, error) {
		post, err := s.repo.GetPublishedBySlug(ctx, slug, s.now())
		if err != nil {
			return types.BlogPost{}, err
		}
		html, err := s.renderer.Render(post.Content)
		if err != nil {
			return types.BlogPost{}, err
		}
		post.ContentHTML = html
		return post, nil
	})
}

// ListAll returns drafts and published posts, most recently edited first.
func (s *BlogService) ListAll(ctx context.Context) ([]types.BlogPost, error) {
	return cache.Fetch(ctx, s.queries, KeyAllPosts, s.repo.ListAll)
}

func (s *BlogService) Get(ctx context.Context, id string) (types.BlogPost, error) {
	return s.repo.Get(ctx, id)
}

func (s *BlogService) Create(ctx context.Context, in BlogInput, authorID string) (types.BlogPost, error) {
	in = normalizeBlogInput(in)
	if err := validateBlogInput(in); err != nil {
		return types.BlogPost{}, err
	}

	post := types.BlogPost{
		Title:    in.Title,
		Slug:     in.Slug,
		Excerpt:  in.Excerpt,
		Content:  in.Content,
		Image:    in.Image,
		AuthorID: authorID,
	}
	if in.Publish {
		now := s.now()
		post.PublishedAt = &now
	}

	created, err := s.repo.Create(ctx, post)
	if err != nil {
		return types.BlogPost{}, slugConflict(err)
	}
	s.invalidate(ctx)
	slog.InfoContext(ctx, "blog post created", slog.String("id", created.ID), slog.Bool("published", created.PublishedAt != nil))
	return created, nil
}

// Update edits a post. The first publication stamps published_at; later
// saves keep it, and unpublishing clears it.
func (s *BlogService) Update(ctx context.Context, id string, in BlogInput) (types.BlogPost, error) {
	in = normalizeBlogInput(in)
	if err := validateBlogInput(in); err != nil {
		return types.BlogPost{}, err
	}

	post, err := s.repo.Get(ctx, id)
	if err != nil {
		return types.BlogPost{}, err
	}
	post.Title = in.Title
	post.Slug = in.Slug
	post.Excerpt = in.Excerpt
	post.Content = in.Content
	post.Image = in.Image
	switch {
	case in.Publish && post.PublishedAt == nil:
		now := s.now()
		post.PublishedAt = &now
	case !in.Publish:
		post.PublishedAt = nil
	}

	updated, err := s.repo.Update(ctx, post)
	if err != nil {
		return types.BlogPost{}, slugConflict(err)
	}
	s.invalidate(ctx)
	return updated, nil
}

func (s *BlogService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *BlogService) invalidate(ctx context.Context) {
	s.queries.Invalidate(ctx, KeyAllPosts, KeyPublishedPosts, KeyPublishedPost)
}

func normalizeBlogInput(in BlogInput) BlogInput {
	in.Title = strings.TrimSpace(in.Title)
	in.Excerpt = strings.TrimSpace(in.Excerpt)
	in.Content = strings.TrimSpace(in.Content)
	in.Image = strings.TrimSpace(in.Image)
	in.Slug = Slugify(in.Slug)
	if in.Slug == "" {
		in.Slug = Slugify(in.Title)
	}
	return in
}

func validateBlogInput(in BlogInput) error {
	switch {
	case utf8.RuneCountInString(in.Title) < 3:
		return invalid("O título deve ter pelo menos 3 caracteres")
	case in.Slug == "":
		return invalid("O slug é obrigatório")
	case utf8.RuneCountInString(in.Excerpt) < 10:
		return invalid("O resumo deve ter pelo menos 10 caracteres")
	case utf8.RuneCountInString(in.Content) < 50:
		return invalid("O conteúdo deve ter pelo menos 50 caracteres")
	case !isAbsoluteURL(in.Image):
		return invalid("A imagem deve ser uma URL válida")
	}
	return nil
}

func slugConflict(err error) error {
	if errors.Is(err, store.ErrConflict) {
		return invalid("Já existe um post com este slug")
	}
	return err
}
