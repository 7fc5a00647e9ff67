package handlers

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/brazeiro63/vovo-achados-portal/internal/services"
	"github.com/brazeiro63/vovo-achados-portal/types"
	"github.com/go-chi/chi/v5"
)

const (
	maxImportBytes        = 5 << 20
	importTooLargeMessage = "Arquivo muito grande (máximo 5MB)"
)

// ProductHandler provides HTTP handlers for the catalog.
type ProductHandler struct {
	products *services.ProductService
	logger   *slog.Logger
}

func NewProductHandler(products *services.ProductService, logger *slog.Logger) *ProductHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProductHandler{products: products, logger: logger}
}

// ProductRouter registers the public catalog read.
func ProductRouter(r chi.Router, h *ProductHandler) {
	r.Get("/", h.ListProducts)
}

// AdminProductRouter registers the back-office product routes. The caller
// guards them.
func AdminProductRouter(r chi.Router, h *ProductHandler) {
	r.Get("/", h.ListAdminProducts)
	r.Post("/", h.CreateProduct)
	r.Post("/import", h.ImportProducts)
	r.Route("/{productID}", func(r chi.Router) {
		r.Get("/", h.GetProduct)
		r.Put("/", h.UpdateProduct)
		r.Delete("/", h.DeleteProduct)
	})
}

type ImportResponse struct {
	Imported int    `json:"imported"`
	Message  string `json:"message"`
}

// ListProducts filters by category, color and store_id. Omitted parameters
// do not constrain the result.
func (h *ProductHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := types.ProductFilter{
		Category: query.Get("category"),
		Color:    query.Get("color"),
		StoreID:  query.Get("store_id"),
	}
	products, err := h.products.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(products))
}

func (h *ProductHandler) ListAdminProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.ListAdmin(r.Context(), r.URL.Query().Get("store_id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(products))
}

func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.products.Get(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (h *ProductHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var product types.Product
	if err := decodeJSON(r, &product); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	created, err := h.products.Create(r.Context(), product)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *ProductHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var product types.Product
	if err := decodeJSON(r, &product); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	product.ID = chi.URLParam(r, "productID")
	updated, err := h.products.Update(r.Context(), product)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *ProductHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.products.Delete(r.Context(), chi.URLParam(r, "productID")); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ImportProducts takes the raw JSON array as the request body. The batch is
// inserted whole or not at all.
func (h *ProductHandler) ImportProducts(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, importTooLargeMessage)
			return
		}
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	products, err := services.ParseImportJSON(body)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	n, err := h.products.Import(r.Context(), products)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, ImportResponse{Imported: n, Message: importMessage(n)})
}

func importMessage(n int) string {
	return fmt.Sprintf("%d produtos importados com sucesso!", n)
}

// nonNil makes empty lists encode as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
