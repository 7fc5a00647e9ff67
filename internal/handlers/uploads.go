package handlers

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/brazeiro63/vovo-achados-portal/internal/storage"
	"github.com/go-chi/chi/v5"
)

const formFieldFile = "file"

// UploadHandler stores images for product and blog forms.
type UploadHandler struct {
	storage *storage.Storage
	logger  *slog.Logger
}

func NewUploadHandler(store *storage.Storage, logger *slog.Logger) *UploadHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &UploadHandler{storage: store, logger: logger}
}

// UploadRouter registers the admin upload routes. The caller guards them.
func UploadRouter(r chi.Router, h *UploadHandler) {
	r.Post("/", h.UploadImage)
	r.Delete("/*", h.DeleteImage)
}

// UploadImage accepts one multipart "file" part and answers with the public
// URL to put in an image field.
func (h *UploadHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, storage.MaxImageSize+(1<<20))
	if err := r.ParseMultipartForm(storage.MaxImageSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Imagem muito grande (máximo 5MB)")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	file, header, err := r.FormFile(formFieldFile)
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file")
		return
	}
	defer file.Close()

	if header.Size > storage.MaxImageSize {
		writeError(w, http.StatusRequestEntityTooLarge, "Imagem muito grande (máximo 5MB)")
		return
	}

	// The stored type comes from the bytes, not from the client's header.
	contentType, body, err := sniffImage(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid file")
		return
	}
	image, err := h.storage.PutImage(r.Context(), body, header.Size, contentType)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, image)
}

// sniffImage detects the type of file from its first 512 bytes and returns
// a reader that still yields the whole file.
func sniffImage(file io.Reader) (string, io.Reader, error) {
	head := make([]byte, 512)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", nil, err
	}
	head = head[:n]
	return http.DetectContentType(head), io.MultiReader(bytes.NewReader(head), file), nil
}

func (h *UploadHandler) DeleteImage(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if key == "" {
		writeError(w, http.StatusBadRequest, "missing key")
		return
	}
	if err := h.storage.DeleteImage(r.Context(), key); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
