package handlers

import (
	"log/slog"
	"net/http"

	"github.com/brazeiro63/vovo-achados-portal/internal/services"
	"github.com/go-chi/chi/v5"
)

// BlogHandler provides HTTP handlers for blog posts.
type BlogHandler struct {
	blog   *services.BlogService
	logger *slog.Logger
}

func NewBlogHandler(blog *services.BlogService, logger *slog.Logger) *BlogHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BlogHandler{blog: blog, logger: logger}
}

// BlogRouter registers the public blog reads.
func BlogRouter(r chi.Router, h *BlogHandler) {
	r.Get("/", h.ListPublished)
	r.Get("/{slug}", h.GetPublished)
}

// AdminBlogRouter registers the editor routes. The caller guards them.
func AdminBlogRouter(r chi.Router, h *BlogHandler) {
	r.Get("/", h.ListAll)
	r.Post("/", h.CreatePost)
	r.Route("/{postID}", func(r chi.Router) {
		r.Get("/", h.GetPost)
		r.Put("/", h.UpdatePost)
		r.Delete("/", h.DeletePost)
	})
}

func (h *BlogHandler) ListPublished(w http.ResponseWriter, r *http.Request) {
	posts, err := h.blog.ListPublished(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(posts))
}

// GetPublished returns a visible post with its rendered content.
func (h *BlogHandler) GetPublished(w http.ResponseWriter, r *http.Request) {
	post, err := h.blog.GetPublished(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

func (h *BlogHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	posts, err := h.blog.ListAll(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(posts))
}

func (h *BlogHandler) GetPost(w http.ResponseWriter, r *http.Request) {
	post, err := h.blog.Get(r.Context(), chi.URLParam(r, "postID"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

func (h *BlogHandler) CreatePost(w http.ResponseWriter, r *http.Request) {
	var in services.BlogInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	authorID := ""
	if user := stateOf(r).User; user != nil {
		authorID = user.ID
	}
	post, err := h.blog.Create(r.Context(), in, authorID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, post)
}

func (h *BlogHandler) UpdatePost(w http.ResponseWriter, r *http.Request) {
	var in services.BlogInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	post, err := h.blog.Update(r.Context(), chi.URLParam(r, "postID"), in)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

func (h *BlogHandler) DeletePost(w http.ResponseWriter, r *http.Request) {
	if err := h.blog.Delete(r.Context(), chi.URLParam(r, "postID")); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
