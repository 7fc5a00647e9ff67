package services

import (
	"context"

	"github.com/brazeiro63/vovo-achados-portal/internal/store"
	"github.com/brazeiro63/vovo-achados-portal/types"
)

// Store is a marketplace the catalog links to.
type Store struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Stores are the marketplaces with a back-office page.
var Stores = []Store{
	{ID: "amazon", Name: "Amazon"},
	{ID: "mercado-livre", Name: "Mercado Livre"},
	{ID: "shopee", Name: "Shopee"},
	{ID: "hotmart", Name: "Hotmart"},
}

func LookupStore(id string) (Store, bool) {
	for _, s := range Stores {
		if s.ID == id {
			return s, true
		}
	}
	return Store{}, false
}

// StoreCatalog lists the products of one marketplace. Talking to the
// marketplace APIs is not supported.
type StoreCatalog struct {
	products *ProductService
}

func NewStoreCatalog(products *ProductService) *StoreCatalog {
	return &StoreCatalog{products: products}
}

func (c *StoreCatalog) Products(ctx context.Context, storeID string) (Store, []types.Product, error) {
	st, ok := LookupStore(storeID)
	if !ok {
		return Store{}, nil, store.ErrNotFound
	}
	products, err := c.products.ListAdmin(ctx, st.ID)
	if err != nil {
		return Store{}, nil, err
	}
	return st, products, nil
}

// Sync would pull offers from the marketplace API.
func (c *StoreCatalog) Sync(_ context.Context, storeID string) error {
	if _, ok := LookupStore(storeID); !ok {
		return store.ErrNotFound
	}
	return ErrNotImplemented
}
