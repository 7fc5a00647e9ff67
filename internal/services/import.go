package services

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"

	"github.com/brazeiro63/vovo-achados-portal/types"
)

// MaxImportBatch bounds one import. Each row binds 12 parameters and
// PostgreSQL allows 65535 per statement.
const MaxImportBatch = 5000

// ParseImportJSON decodes the pasted import payload. Only a JSON array of
// products is accepted.
func ParseImportJSON(data []byte) ([]types.Product, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, invalid("JSON inválido. Por favor, verifique o formato")
	}
	if _, ok := raw.([]any); !ok {
		return nil, invalid("O formato JSON deve ser um array de produtos")
	}

	var products []types.Product
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&products); err != nil {
		// Elements that are not objects, or fields of the wrong type.
		return nil, invalid("JSON inválido. Por favor, verifique o formato")
	}
	return products, nil
}

// Import inserts the whole batch with one statement or nothing at all. It
// returns the number of rows written.
func (s *ProductService) Import(ctx context.Context, products []types.Product) (int, error) {
	if len(products) == 0 {
		return 0, invalid("Nenhum produto para importar")
	}
	if len(products) > MaxImportBatch {
		return 0, invalid("Importe no máximo %d produtos por vez (recebidos %d)", MaxImportBatch, len(products))
	}

	batch := make([]types.Product, len(products))
	incomplete := 0
	for i, p := range products {
		batch[i] = trimProduct(p)
		if len(batch[i].MissingFields()) > 0 {
			incomplete++
		}
	}
	if incomplete > 0 {
		return 0, invalid("%d produtos não possuem todos os campos obrigatórios", incomplete)
	}

	count, err := s.repo.InsertBatch(ctx, batch)
	if err != nil {
		return 0, err
	}
	s.invalidate(ctx)
	s.metrics.RecordProductsImported(count)
	slog.InfoContext(ctx, "products imported", slog.Int("count", count))
	return count, nil
}
