package services

import (
	"context"
	"net/url"
	"strings"

	"github.com/brazeiro63/vovo-achados-portal/internal/cache"
	"github.com/brazeiro63/vovo-achados-portal/internal/metrics"
	"github.com/brazeiro63/vovo-achados-portal/types"
)

// ProductRepository defines persistence operations for products.
type ProductRepository interface {
	List(ctx context.Context, filter types.ProductFilter) ([]types.Product, error)
	Get(ctx context.Context, id string) (types.Product, error)
	Create(ctx context.Context, product types.Product) (types.Product, error)
	InsertBatch(ctx context.Context, products []types.Product) (int, error)
	Update(ctx context.Context, product types.Product) (types.Product, error)
	Delete(ctx context.Context, id string) error
}

// ProductService encapsulates catalog use-cases.
type ProductService struct {
	repo    ProductRepository
	queries *cache.Query
	metrics metrics.Recorder
}

func NewProductService(repo ProductRepository, queries *cache.Query, recorder metrics.Recorder) *ProductService {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &ProductService{repo: repo, queries: queries, metrics: recorder}
}

// List returns the public catalog. Every non-empty filter field is an
// equality constraint.
func (s *ProductService) List(ctx context.Context, filter types.ProductFilter) ([]types.Product, error) {
	filter = trimFilter(filter)
	return cache.Fetch(ctx, s.queries, cache.Key(KeyProducts, filter.CacheKey()), func(ctx context.Context) ([]types.Product, error) {
		return s.repo.List(ctx, filter)
	})
}

// ListAdmin returns every product, newest first, optionally for one store.
func (s *ProductService) ListAdmin(ctx context.Context, storeID string) ([]types.Product, error) {
	storeID = strings.TrimSpace(storeID)
	return cache.Fetch(ctx, s.queries, cache.Key(KeyAdminProducts, storeID), func(ctx context.Context) ([]types.Product, error) {
		return s.repo.List(ctx, types.ProductFilter{StoreID: storeID})
	})
}

func (s *ProductService) Get(ctx context.Context, id string) (types.Product, error) {
	return s.repo.Get(ctx, id)
}

func (s *ProductService) Create(ctx context.Context, product types.Product) (types.Product, error) {
	product = trimProduct(product)
	if err := validateProduct(product); err != nil {
		return types.Product{}, err
	}
	created, err := s.repo.Create(ctx, product)
	if err != nil {
		return types.Product{}, err
	}
	s.invalidate(ctx)
	return created, nil
}

func (s *ProductService) Update(ctx context.Context, product types.Product) (types.Product, error) {
	product = trimProduct(product)
	if strings.TrimSpace(product.ID) == "" {
		return types.Product{}, invalid("Produto não informado")
	}
	if err := validateProduct(product); err != nil {
		return types.Product{}, err
	}
	updated, err := s.repo.Update(ctx, product)
	if err != nil {
		return types.Product{}, err
	}
	s.invalidate(ctx)
	return updated, nil
}

func (s *ProductService) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return invalid("Produto não informado")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *ProductService) invalidate(ctx context.Context) {
	s.queries.Invalidate(ctx, KeyProducts, KeyAdminProducts)
}

func validateProduct(p types.Product) error {
	if missing := p.MissingFields(); len(missing) > 0 {
		return invalid("Preencha os campos obrigatórios: %s", strings.Join(missing, ", "))
	}
	if !isSection(p.Color) {
		return invalid("Seção inválida: %s", p.Color)
	}
	if !isAbsoluteURL(p.URL) {
		return invalid("URL do produto inválida")
	}
	if p.Price != nil && *p.Price < 0 {
		return invalid("Preço inválido")
	}
	if p.ListPrice != nil && *p.ListPrice < 0 {
		return invalid("Preço de referência inválido")
	}
	return nil
}

func isSection(color string) bool {
	for _, s := range types.Sections {
		if s == color {
			return true
		}
	}
	return false
}

func isAbsoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func trimFilter(f types.ProductFilter) types.ProductFilter {
	f.Category = strings.TrimSpace(f.Category)
	f.Color = strings.TrimSpace(f.Color)
	f.StoreID = strings.TrimSpace(f.StoreID)
	return f
}

func trimProduct(p types.Product) types.Product {
	p.Title = strings.TrimSpace(p.Title)
	p.Image = strings.TrimSpace(p.Image)
	p.Store = strings.TrimSpace(p.Store)
	p.StoreID = strings.TrimSpace(p.StoreID)
	p.URL = strings.TrimSpace(p.URL)
	p.Category = strings.TrimSpace(p.Category)
	p.Color = strings.TrimSpace(p.Color)
	return p
}
