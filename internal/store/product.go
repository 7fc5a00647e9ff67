package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/brazeiro63/vovo-achados-portal/types"
	"github.com/google/uuid"
)

// ProductRepository handles persistence for products.
type ProductRepository struct {
	db *sql.DB
}

func NewProductRepository(db *sql.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

const productColumns = `id, title, image, store, COALESCE(store_id, ''), url, category, color, price, preco_de, created_at, updated_at`

func scanProduct(row interface{ Scan(...any) error }) (types.Product, error) {
	var product types.Product
	var price, listPrice sql.NullFloat64
	err := row.Scan(
		&product.ID,
		&product.Title,
		&product.Image,
		&product.Store,
		&product.StoreID,
		&product.URL,
		&product.Category,
		&product.Color,
		&price,
		&listPrice,
		&product.CreatedAt,
		&product.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Product{}, ErrNotFound
		}
		return types.Product{}, err
	}
	if price.Valid {
		product.Price = &price.Float64
	}
	if listPrice.Valid {
		product.ListPrice = &listPrice.Float64
	}
	return product, nil
}

// List returns products matching every non-empty filter field, newest first.
func (r *ProductRepository) List(ctx context.Context, filter types.ProductFilter) ([]types.Product, error) {
	var (
		conds []string
		args  []any
	)
	for _, f := range []struct {
		column string
		value  string
	}{
		{"category", filter.Category},
		{"color", filter.Color},
		{"store_id", filter.StoreID},
	} {
		if f.value == "" {
			continue
		}
		args = append(args, f.value)
		conds = append(conds, fmt.Sprintf("%s = $%d", f.column, len(args)))
	}

	query := `SELECT ` + productColumns + ` FROM products`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := []types.Product{}
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, product)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (r *ProductRepository) Get(ctx context.Context, id string) (types.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	return scanProduct(r.db.QueryRowContext(ctx, query, id))
}

func (r *ProductRepository) Create(ctx context.Context, product types.Product) (types.Product, error) {
	batch := []types.Product{product}
	if _, err := r.InsertBatch(ctx, batch); err != nil {
		return types.Product{}, err
	}
	return batch[0], nil
}

// InsertBatch writes all products with one multi-row INSERT statement, so the
// batch is stored entirely or not at all. It returns the number of rows written.
func (r *ProductRepository) InsertBatch(ctx context.Context, products []types.Product) (int, error) {
	if len(products) == 0 {
		return 0, nil
	}

	const columnsPerRow = 12
	now := time.Now()
	values := make([]string, 0, len(products))
	args := make([]any, 0, len(products)*columnsPerRow)
	for i := range products {
		p := &products[i]
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		p.CreatedAt = now
		p.UpdatedAt = now

		base := i * columnsPerRow
		placeholders := make([]string, columnsPerRow)
		for j := range placeholders {
			placeholders[j] = fmt.Sprintf("$%d", base+j+1)
		}
		values = append(values, "("+strings.Join(placeholders, ", ")+")")
		args = append(args,
			p.ID,
			p.Title,
			p.Image,
			p.Store,
			nullString(p.StoreID),
			p.URL,
			p.Category,
			p.Color,
			p.Price,
			p.ListPrice,
			p.CreatedAt,
			p.UpdatedAt,
		)
	}

	query := `
		INSERT INTO products (id, title, image, store, store_id, url, category, color, price, preco_de, created_at, updated_at)
		VALUES ` + strings.Join(values, ", ")
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, mapWriteError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (r *ProductRepository) Update(ctx context.Context, product types.Product) (types.Product, error) {
	product.UpdatedAt = time.Now()

	const query = `
		UPDATE products
		SET title = $1,
			image = $2,
			store = $3,
			store_id = $4,
			url = $5,
			category = $6,
			color = $7,
			price = $8,
			preco_de = $9,
			updated_at = $10
		WHERE id = $11
		RETURNING created_at`
	err := r.db.QueryRowContext(ctx, query,
		product.Title,
		product.Image,
		product.Store,
		nullString(product.StoreID),
		product.URL,
		product.Category,
		product.Color,
		product.Price,
		product.ListPrice,
		product.UpdatedAt,
		product.ID,
	).Scan(&product.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Product{}, ErrNotFound
		}
		return types.Product{}, err
	}
	return product, nil
}

func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	return execOne(ctx, r.db, `DELETE FROM products WHERE id = $1`, id)
}
