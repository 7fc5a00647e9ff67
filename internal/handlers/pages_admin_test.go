package handlers

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/brazeiro63/vovo-achados-portal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func adminBrowser(t *testing.T, f *siteFixture) (*browser, types.Session) {
	t.Helper()
	admin := f.register(t, "admin@example.com", types.RoleAdmin)
	b := f.browser()
	b.login(t, "admin@example.com")
	return b, admin
}

func TestRequireAdmin(t *testing.T) {
	f := newSiteFixture(t)
	f.register(t, "user@example.com", types.RoleUser)

	rec := f.browser().get("/admin")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	user := f.browser()
	user.login(t, "user@example.com")
	rec = user.get("/admin/configuracoes")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/dashboard", rec.Header().Get("Location"))

	admin, _ := adminBrowser(t, f)
	rec = admin.get("/admin")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Gerenciar Produtos")
}

func TestAdminCreateProduct(t *testing.T) {
	f := newSiteFixture(t)
	b, _ := adminBrowser(t, f)

	form := url.Values{
		"title":    {"Boneca de pano"},
		"image":    {"https://example.com/boneca.jpg"},
		"store":    {"Amazon"},
		"store_id": {"amazon"},
		"url":      {"https://example.com/boneca"},
		"category": {"Brinquedos"},
		"color":    {types.SectionInfantil},
		"price":    {"abc"},
	}
	rec := b.post("/admin/produtos", form)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), invalidPriceMessage)
	assert.Contains(t, rec.Body.String(), `value="Boneca de pano"`)
	assert.Empty(t, f.products.rows)

	form.Set("price", "R$ 1.234,50")
	form.Set("preco_de", "1500.00")
	rec = b.post("/admin/produtos", form)
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
	assert.Equal(t, "/admin", rec.Header().Get("Location"))

	require.Len(t, f.products.rows, 1)
	product := f.products.rows[0]
	require.NotNil(t, product.Price)
	assert.InDelta(t, 1234.50, *product.Price, 0.001)
	require.NotNil(t, product.ListPrice)
	assert.InDelta(t, 1500.00, *product.ListPrice, 0.001)
	assert.Contains(t, b.get("/admin").Body.String(), "Produto adicionado com sucesso!")
}

func TestAdminImportSubmit(t *testing.T) {
	f := newSiteFixture(t)
	b, _ := adminBrowser(t, f)

	raw := `[
		{"title":"A","image":"https://example.com/a.jpg","store":"Amazon","url":"https://example.com/a","category":"Brinquedos","color":"infantil"},
		{"title":"B","image":"https://example.com/b.jpg","store":"Shopee","url":"https://example.com/b","category":"Cozinha","color":"casa","price":19.9}
	]`
	rec := b.post("/admin/importar-produtos", url.Values{"json": {raw}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "2 produtos importados com sucesso!")
	assert.Len(t, f.products.rows, 2)

	rec = b.post("/admin/importar-produtos", url.Values{"json": {`{"title":"A"}`}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "O formato JSON deve ser um array de produtos")
	assert.Len(t, f.products.rows, 2)
}

func TestAdminImportSubmit_TooLarge(t *testing.T) {
	f := newSiteFixture(t)
	b, _ := adminBrowser(t, f)

	huge := url.Values{"json": {strings.Repeat("a", maxImportBytes+(1<<20))}}
	rec := b.post("/admin/importar-produtos", huge)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, rec.Body.String(), importTooLargeMessage)
	assert.Empty(t, f.products.rows)
}

func TestAdminUpdateUser(t *testing.T) {
	f := newSiteFixture(t)
	b, _ := adminBrowser(t, f)
	user := f.register(t, "user@example.com", types.RoleUser)
	profile, err := f.profiles.GetByID(context.Background(), user.User.ID)
	require.NoError(t, err)
	profile.FullName = "Maria"
	f.profiles.put(profile)

	rec := b.post("/admin/usuarios/"+user.User.ID, url.Values{"role": {"dono"}})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Contains(t, b.get("/admin/usuarios").Body.String(), "Papel inválido: dono")
	stored, err := f.profiles.GetByID(context.Background(), user.User.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RoleUser, stored.Role)

	rec = b.post("/admin/usuarios/"+user.User.ID, url.Values{"role": {types.RoleAdmin}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/admin/usuarios", rec.Header().Get("Location"))
	stored, err = f.profiles.GetByID(context.Background(), user.User.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RoleAdmin, stored.Role)
	assert.Equal(t, "Maria", stored.FullName, "fields missing from the form keep their value")
}

func TestAdminDeleteUser(t *testing.T) {
	f := newSiteFixture(t)
	b, admin := adminBrowser(t, f)
	user := f.register(t, "user@example.com", types.RoleUser)

	rec := b.post("/admin/usuarios/"+admin.User.ID+"/delete", nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.True(t, f.repo.hasUser(admin.User.ID))
	assert.Contains(t, b.get("/admin/usuarios").Body.String(), selfDeleteMessage)

	rec = b.post("/admin/usuarios/"+user.User.ID+"/delete", nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/admin/usuarios", rec.Header().Get("Location"))
	assert.False(t, f.repo.hasUser(user.User.ID))
	_, err := f.profiles.GetByID(context.Background(), user.User.ID)
	assert.Error(t, err)
}

func TestAdminSaveSettings(t *testing.T) {
	f := newSiteFixture(t)
	b, _ := adminBrowser(t, f)

	rec := b.post("/admin/configuracoes", url.Values{"site_name": {" "}, "contact_email": {"contato@example.com"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "O nome do site é obrigatório")
	assert.Equal(t, types.DefaultSettings(), f.settings.settings)

	rec = b.post("/admin/configuracoes", url.Values{
		"site_name":        {"Achados"},
		"contact_email":    {"contato@example.com"},
		"maintenance_mode": {"on"},
	})
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
	assert.Equal(t, "/admin/configuracoes", rec.Header().Get("Location"))

	saved := f.settings.settings
	assert.Equal(t, "Achados", saved.SiteName)
	assert.True(t, saved.MaintenanceMode)
	assert.False(t, saved.EnableUserRegistration, "unchecked boxes turn the flag off")
	assert.False(t, saved.RequireEmailVerification)

	rec = b.get("/admin/configuracoes")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Configurações salvas com sucesso!")
	assert.Contains(t, body, "<dd>test</dd>")
	assert.Contains(t, body, "<dd>ok</dd>")
}

func TestAdminCreatePost(t *testing.T) {
	f := newSiteFixture(t)
	b, admin := adminBrowser(t, f)

	form := url.Values{
		"title":   {"Oi"},
		"excerpt": {"Um resumo curto"},
		"content": {strings.Repeat("conteúdo ", 10)},
		"image":   {"https://example.com/post.jpg"},
		"publish": {"on"},
	}
	rec := b.post("/admin/blog/new", form)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "O título deve ter pelo menos 3 caracteres")

	form.Set("title", "Receitas da Vovó")
	rec = b.post("/admin/blog/new", form)
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
	assert.Equal(t, "/admin/blog", rec.Header().Get("Location"))

	post, ok := f.posts.bySlug("receitas-da-vovo")
	require.True(t, ok)
	assert.Equal(t, admin.User.ID, post.AuthorID)
	assert.NotNil(t, post.PublishedAt)
}

func TestAdminSyncStore(t *testing.T) {
	f := newSiteFixture(t)
	b, _ := adminBrowser(t, f)

	rec := b.post("/admin/loja/amazon/sync", nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/admin/loja/amazon", rec.Header().Get("Location"))
	assert.Contains(t, b.get("/admin/loja/amazon").Body.String(), "Função não implementada")

	rec = b.post("/admin/loja/nenhuma/sync", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
