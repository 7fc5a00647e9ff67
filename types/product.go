package types

import (
	"strings"
	"time"
)

// Section values are stored in Product.Color and select the themed
// landing page a product appears on.
const (
	SectionInfantil         = "infantil"
	SectionEmpreendedorismo = "empreendedorismo"
	SectionCasa             = "casa"
)

// Sections lists the themed catalog sections in display order.
var Sections = []string{SectionInfantil, SectionEmpreendedorismo, SectionCasa}

// Product is a curated affiliate offer shown in the public catalog.
type Product struct {
	// ID is the unique identifier of the product (uuid).
	ID string `json:"id" db:"id"`

	// Title is the display name of the offer.
	Title string `json:"title" db:"title"`

	// Image is an absolute URL to the product picture.
	Image string `json:"image" db:"image"`

	// Store is the human-readable marketplace name ("Amazon", "Shopee").
	Store string `json:"store" db:"store"`

	// StoreID is the marketplace slug ("amazon", "mercado-livre").
	// Optional for manually curated products.
	StoreID string `json:"store_id,omitempty" db:"store_id"`

	// URL is the affiliate link the visitor is sent to.
	URL string `json:"url" db:"url"`

	// Category is a free-form label inside a section ("Brinquedos").
	Category string `json:"category" db:"category"`

	// Color is the catalog section, one of the Section constants.
	Color string `json:"color" db:"color"`

	// Price is the current price, when known.
	Price *float64 `json:"price,omitempty" db:"price"`

	// ListPrice is the "de" price shown struck through, when known.
	ListPrice *float64 `json:"preco_de,omitempty" db:"preco_de"`

	// CreatedAt is the timestamp at which the product was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the product.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// MissingFields returns the names of required fields left blank.
func (p Product) MissingFields() []string {
	var missing []string
	for _, f := range []struct {
		name  string
		value string
	}{
		{"title", p.Title},
		{"image", p.Image},
		{"store", p.Store},
		{"url", p.URL},
		{"category", p.Category},
		{"color", p.Color},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}

// ProductFilter constrains catalog reads. An empty field is unconstrained.
type ProductFilter struct {
	Category string `json:"category,omitempty"`
	Color    string `json:"color,omitempty"`
	StoreID  string `json:"store_id,omitempty"`
}

// CacheKey renders the filter as a stable cache key suffix.
func (f ProductFilter) CacheKey() string {
	return f.Category + "|" + f.Color + "|" + f.StoreID
}
