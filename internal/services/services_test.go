package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/brazeiro63/vovo-achados-portal/internal/cache"
	"github.com/brazeiro63/vovo-achados-portal/internal/logger"
	"github.com/brazeiro63/vovo-achados-portal/internal/store"
	"github.com/brazeiro63/vovo-achados-portal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newQuery(t *testing.T) *cache.Query {
	t.Helper()
	q := cache.NewQuery(cache.NewMemoryCache(time.Minute, time.Minute), time.Minute, logger.Discard())
	t.Cleanup(func() { _ = q.Close() })
	return q
}

type fakeProducts struct {
	mu       sync.Mutex
	rows     []types.Product
	filters  []types.ProductFilter
	batches  [][]types.Product
	creates  int
	listErr  error
	writeErr error
}

func (f *fakeProducts) List(_ context.Context, filter types.ProductFilter) ([]types.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filters = append(f.filters, filter)
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []types.Product
	for _, p := range f.rows {
		if filter.Category != "" && p.Category != filter.Category {
			continue
		}
		if filter.Color != "" && p.Color != filter.Color {
			continue
		}
		if filter.StoreID != "" && p.StoreID != filter.StoreID {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeProducts) Get(_ context.Context, id string) (types.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.rows {
		if p.ID == id {
			return p, nil
		}
	}
	return types.Product{}, store.ErrNotFound
}

func (f *fakeProducts) Create(_ context.Context, p types.Product) (types.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return types.Product{}, f.writeErr
	}
	f.creates++
	p.ID = "new"
	f.rows = append(f.rows, p)
	return p, nil
}

func (f *fakeProducts) InsertBatch(_ context.Context, products []types.Product) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	f.batches = append(f.batches, products)
	f.rows = append(f.rows, products...)
	return len(products), nil
}

func (f *fakeProducts) Update(_ context.Context, p types.Product) (types.Product, error) {
	return p, f.writeErr
}

func (f *fakeProducts) Delete(_ context.Context, id string) error {
	return f.writeErr
}

func (f *fakeProducts) listCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.filters)
}

func validProduct(title string) types.Product {
	return types.Product{
		Title:    title,
		Image:    "https://img.example.com/" + title + ".jpg",
		Store:    "Amazon",
		StoreID:  "amazon",
		URL:      "https://amazon.com.br/dp/" + title,
		Category: "Brinquedos",
		Color:    types.SectionInfantil,
	}
}

func TestProductService_ListCategoryOnlyFilter(t *testing.T) {
	repo := &fakeProducts{rows: []types.Product{
		{ID: "1", Category: "Brinquedos", Color: "infantil"},
		{ID: "2", Category: "Brinquedos", Color: "casa"},
		{ID: "3", Category: "Cozinha", Color: "casa"},
	}}
	svc := NewProductService(repo, nil, nil)

	got, err := svc.List(context.Background(), types.ProductFilter{Category: "Brinquedos"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, p := range got {
		assert.Equal(t, "Brinquedos", p.Category)
	}
	assert.Equal(t, types.ProductFilter{Category: "Brinquedos"}, repo.filters[0])
}

func TestProductService_ListIsCachedUntilMutation(t *testing.T) {
	repo := &fakeProducts{rows: []types.Product{validProduct("a")}}
	svc := NewProductService(repo, newQuery(t), nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.List(ctx, types.ProductFilter{Color: "infantil"})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, repo.listCalls())

	_, err := svc.Create(ctx, validProduct("b"))
	require.NoError(t, err)

	got, err := svc.List(ctx, types.ProductFilter{Color: "infantil"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, 2, repo.listCalls())
}

func TestProductService_FailedMutationKeepsCache(t *testing.T) {
	repo := &fakeProducts{rows: []types.Product{validProduct("a")}}
	svc := NewProductService(repo, newQuery(t), nil)
	ctx := context.Background()

	_, err := svc.ListAdmin(ctx, "")
	require.NoError(t, err)

	repo.writeErr = errors.New("insert failed")
	_, err = svc.Create(ctx, validProduct("b"))
	require.Error(t, err)

	_, err = svc.ListAdmin(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, repo.listCalls())
}

func TestProductService_CreateValidatesBeforeCalling(t *testing.T) {
	repo := &fakeProducts{}
	svc := NewProductService(repo, nil, nil)

	p := validProduct("a")
	p.Store = ""
	_, err := svc.Create(context.Background(), p)
	assert.True(t, IsValidation(err))

	p = validProduct("a")
	p.Color = "jardim"
	_, err = svc.Create(context.Background(), p)
	assert.True(t, IsValidation(err))

	assert.Equal(t, 0, repo.creates)
}

func TestProductService_ImportRejectsWholeBatch(t *testing.T) {
	repo := &fakeProducts{}
	svc := NewProductService(repo, nil, nil)

	incomplete := validProduct("c")
	incomplete.URL = ""
	batch := []types.Product{validProduct("a"), validProduct("b"), incomplete}

	n, err := svc.Import(context.Background(), batch)
	require.Error(t, err)
	assert.Equal(t, "1 produtos não possuem todos os campos obrigatórios", err.Error())
	assert.Zero(t, n)
	assert.Empty(t, repo.batches)
}

func TestProductService_ImportSingleInsert(t *testing.T) {
	repo := &fakeProducts{}
	q := newQuery(t)
	var invalidated []string
	q.OnInvalidate(func(prefix string) { invalidated = append(invalidated, prefix) })
	svc := NewProductService(repo, q, nil)

	n, err := svc.Import(context.Background(), []types.Product{validProduct("a"), validProduct("b")})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, repo.batches, 1)
	assert.Len(t, repo.batches[0], 2)
	assert.Equal(t, []string{KeyProducts, KeyAdminProducts}, invalidated)
}

func TestProductService_ImportEmpty(t *testing.T) {
	svc := NewProductService(&fakeProducts{}, nil, nil)
	_, err := svc.Import(context.Background(), nil)
	assert.EqualError(t, err, "Nenhum produto para importar")
}

func TestProductService_ImportRejectsOversizedBatch(t *testing.T) {
	repo := &fakeProducts{}
	svc := NewProductService(repo, nil, nil)

	batch := make([]types.Product, MaxImportBatch+1)
	for i := range batch {
		batch[i] = validProduct("p")
	}
	_, err := svc.Import(context.Background(), batch)
	require.True(t, IsValidation(err))
	assert.Equal(t, "Importe no máximo 5000 produtos por vez (recebidos 5001)", err.Error())
	assert.Empty(t, repo.batches)

	n, err := svc.Import(context.Background(), batch[:MaxImportBatch])
	require.NoError(t, err)
	assert.Equal(t, MaxImportBatch, n)
}

func TestParseImportJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int
		wantErr string
	}{
		{"array", `[{"title":"a"},{"title":"b"}]`, 2, ""},
		{"empty array", `[]`, 0, ""},
		{"not json", `{title: a`, 0, "JSON inválido. Por favor, verifique o formato"},
		{"object", `{"title":"a"}`, 0, "O formato JSON deve ser um array de produtos"},
		{"string", `"a"`, 0, "O formato JSON deve ser um array de produtos"},
		{"array of numbers", `[1,2]`, 0, "JSON inválido. Por favor, verifique o formato"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseImportJSON([]byte(tt.input))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.True(t, IsValidation(err))
				assert.Equal(t, tt.wantErr, err.Error())
				return
			}
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}
}

func TestParseImportJSON_PreservesPrices(t *testing.T) {
	got, err := ParseImportJSON([]byte(`[{"title":"a","price":19.9,"preco_de":29.9}]`))
	require.NoError(t, err)
	require.NotNil(t, got[0].Price)
	require.NotNil(t, got[0].ListPrice)
	assert.Equal(t, 19.9, *got[0].Price)
	assert.Equal(t, 29.9, *got[0].ListPrice)
}

func TestSlugify(t *testing.T) {
	tests := map[string]string{
		"Presentes para a Vovó":     "presentes-para-a-vovo",
		"  Crochê & Tricô  ":        "croche-trico",
		"Dicas -- de   Organização": "dicas-de-organizacao",
		"Ação!":                     "acao",
	}
	for in, want := range tests {
		assert.Equal(t, want, Slugify(in), in)
	}
}

func TestRenderer_SanitizesMarkdown(t *testing.T) {
	r := NewRenderer()
	html, err := r.Render("# Olá\n\n<script>alert(1)</script>\n\n[link](https://example.com)")
	require.NoError(t, err)
	assert.Contains(t, html, "<h1")
	assert.NotContains(t, html, "<script>")
	assert.Contains(t, html, `href="https://example.com"`)
}

func TestStoreCatalog(t *testing.T) {
	repo := &fakeProducts{rows: []types.Product{validProduct("a"), {ID: "x", StoreID: "shopee"}}}
	catalog := NewStoreCatalog(NewProductService(repo, nil, nil))
	ctx := context.Background()

	st, products, err := catalog.Products(ctx, "amazon")
	require.NoError(t, err)
	assert.Equal(t, "Amazon", st.Name)
	assert.Len(t, products, 1)

	_, _, err = catalog.Products(ctx, "aliexpress")
	assert.ErrorIs(t, err, store.ErrNotFound)

	assert.ErrorIs(t, catalog.Sync(ctx, "hotmart"), ErrNotImplemented)
}
