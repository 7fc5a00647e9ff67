package handlers

import (
	"log/slog"
	"net/http"

	"github.com/brazeiro63/vovo-achados-portal/internal/services"
	"github.com/brazeiro63/vovo-achados-portal/types"
	"github.com/go-chi/chi/v5"
)

// StoreHandler serves the marketplace pages of the back-office.
type StoreHandler struct {
	catalog *services.StoreCatalog
	logger  *slog.Logger
}

func NewStoreHandler(catalog *services.StoreCatalog, logger *slog.Logger) *StoreHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StoreHandler{catalog: catalog, logger: logger}
}

// StoreRouter registers the admin store routes. The caller guards them.
func StoreRouter(r chi.Router, h *StoreHandler) {
	r.Get("/", h.ListStores)
	r.Route("/{storeID}", func(r chi.Router) {
		r.Get("/products", h.ListStoreProducts)
		r.Post("/sync", h.SyncStore)
		r.Put("/", h.SyncStore)
	})
}

type StoreProductsResponse struct {
	Store    services.Store  `json:"store"`
	Products []types.Product `json:"products"`
}

func (h *StoreHandler) ListStores(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, services.Stores)
}

func (h *StoreHandler) ListStoreProducts(w http.ResponseWriter, r *http.Request) {
	st, products, err := h.catalog.Products(r.Context(), chi.URLParam(r, "storeID"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, StoreProductsResponse{Store: st, Products: nonNil(products)})
}

// SyncStore answers 501 for every supported store: marketplace APIs are not
// integrated.
func (h *StoreHandler) SyncStore(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.Sync(r.Context(), chi.URLParam(r, "storeID")); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
