package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/brazeiro63/vovo-achados-portal/internal/services"
	"github.com/brazeiro63/vovo-achados-portal/types"
	"github.com/go-chi/chi/v5"
)

const invalidPriceMessage = "Preço inválido"

// AdminPageRouter registers the back-office pages. The caller guards them
// with RequireAdmin.
func AdminPageRouter(r chi.Router, p *Pages) {
	r.Get("/", p.AdminProducts)
	r.Post("/produtos", p.AdminCreateProduct)
	r.Get("/produtos/{productID}", p.AdminEditProduct)
	r.Post("/produtos/{productID}", p.AdminUpdateProduct)
	r.Post("/produtos/{productID}/delete", p.AdminDeleteProduct)

	r.Get("/importar-produtos", p.AdminImportPage)
	r.Post("/importar-produtos", p.AdminImportSubmit)

	r.Get("/usuarios", p.AdminUsers)
	r.Post("/usuarios/{userID}", p.AdminUpdateUser)
	r.Post("/usuarios/{userID}/delete", p.AdminDeleteUser)

	r.Get("/loja/{storeID}", p.AdminStore)
	r.Post("/loja/{storeID}/sync", p.AdminSyncStore)

	r.Get("/configuracoes", p.AdminSettings)
	r.Post("/configuracoes", p.AdminSaveSettings)

	r.Get("/blog", p.AdminBlog)
	r.Get("/blog/new", p.AdminNewPost)
	r.Post("/blog/new", p.AdminCreatePost)
	r.Get("/blog/edit/{postID}", p.AdminEditPost)
	r.Post("/blog/edit/{postID}", p.AdminUpdatePost)
	r.Post("/blog/{postID}/delete", p.AdminDeletePost)
}

type adminProductsPage struct {
	Query    string
	Products []types.Product
}

// AdminProducts lists the catalog, narrowed by ?q= over title, store and
// category.
func (p *Pages) AdminProducts(w http.ResponseWriter, r *http.Request) {
	p.renderAdminProducts(w, r, http.StatusOK, "", nil)
}

func (p *Pages) renderAdminProducts(w http.ResponseWriter, r *http.Request, status int, message string, form map[string]string) {
	products, err := p.products.ListAdmin(r.Context(), "")
	if err != nil {
		p.renderError(w, r, err)
		return
	}
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	td := p.data(r, "Gerenciar Produtos")
	td.Data = adminProductsPage{Query: query, Products: searchProducts(products, query)}
	td.Error = message
	td.Form = form
	p.render(w, r, status, "admin/products", td)
}

func searchProducts(products []types.Product, query string) []types.Product {
	query = strings.ToLower(query)
	if query == "" {
		return products
	}
	var matched []types.Product
	for _, product := range products {
		if strings.Contains(strings.ToLower(product.Title), query) ||
			strings.Contains(strings.ToLower(product.Store), query) ||
			strings.Contains(strings.ToLower(product.Category), query) {
			matched = append(matched, product)
		}
	}
	return matched
}

var productFields = []string{"title", "image", "store", "store_id", "url", "category", "color", "price", "preco_de"}

func productForm(r *http.Request) map[string]string {
	form := make(map[string]string, len(productFields))
	for _, field := range productFields {
		form[field] = strings.TrimSpace(r.PostForm.Get(field))
	}
	return form
}

// productFromForm builds a product from the submitted fields. Prices accept
// both "1.234,50" and "1234.50".
func productFromForm(form map[string]string) (types.Product, error) {
	product := types.Product{
		Title:    form["title"],
		Image:    form["image"],
		Store:    form["store"],
		StoreID:  form["store_id"],
		URL:      form["url"],
		Category: form["category"],
		Color:    form["color"],
	}
	var err error
	if product.Price, err = parsePrice(form["price"]); err != nil {
		return types.Product{}, err
	}
	if product.ListPrice, err = parsePrice(form["preco_de"]); err != nil {
		return types.Product{}, err
	}
	return product, nil
}

func parsePrice(raw string) (*float64, error) {
	raw = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "R$"))
	if raw == "" {
		return nil, nil
	}
	if strings.Contains(raw, ",") {
		raw = strings.ReplaceAll(raw, ".", "")
		raw = strings.ReplaceAll(raw, ",", ".")
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || value < 0 {
		return nil, errors.New(invalidPriceMessage)
	}
	return &value, nil
}

func priceField(value *float64) string {
	if value == nil {
		return ""
	}
	return strconv.FormatFloat(*value, 'f', 2, 64)
}

func formFromProduct(product types.Product) map[string]string {
	return map[string]string{
		"id":       product.ID,
		"title":    product.Title,
		"image":    product.Image,
		"store":    product.Store,
		"store_id": product.StoreID,
		"url":      product.URL,
		"category": product.Category,
		"color":    product.Color,
		"price":    priceField(product.Price),
		"preco_de": priceField(product.ListPrice),
	}
}

func (p *Pages) AdminCreateProduct(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	form := productForm(r)
	product, err := productFromForm(form)
	if err != nil {
		p.renderAdminProducts(w, r, http.StatusBadRequest, err.Error(), form)
		return
	}
	if _, err := p.products.Create(r.Context(), product); err != nil {
		status, message := errorStatus(err)
		if status >= http.StatusInternalServerError {
			p.renderError(w, r, err)
			return
		}
		p.renderAdminProducts(w, r, status, message, form)
		return
	}
	p.flash(r, "Produto adicionado com sucesso!", flashSuccess)
	http.Redirect(w, r, "/admin", http.StatusSeeOther)
}

func (p *Pages) AdminEditProduct(w http.ResponseWriter, r *http.Request) {
	product, err := p.products.Get(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		p.renderError(w, r, err)
		return
	}
	td := p.data(r, "Editar produto")
	td.Form = formFromProduct(product)
	p.render(w, r, http.StatusOK, "admin/product_form", td)
}

func (p *Pages) AdminUpdateProduct(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	id := chi.URLParam(r, "productID")
	form := productForm(r)
	form["id"] = id

	fail := func(status int, message string) {
		td := p.data(r, "Editar produto")
		td.Error = message
		td.Form = form
		p.render(w, r, status, "admin/product_form", td)
	}

	product, err := productFromForm(form)
	if err != nil {
		fail(http.StatusBadRequest, err.Error())
		return
	}
	product.ID = id
	if _, err := p.products.Update(r.Context(), product); err != nil {
		status, message := errorStatus(err)
		if status >= http.StatusInternalServerError {
			p.renderError(w, r, err)
			return
		}
		fail(status, message)
		return
	}
	p.flash(r, "Produto atualizado com sucesso!", flashSuccess)
	http.Redirect(w, r, "/admin", http.StatusSeeOther)
}

func (p *Pages) AdminDeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := p.products.Delete(r.Context(), chi.URLParam(r, "productID")); err != nil {
		p.renderError(w, r, err)
		return
	}
	p.flash(r, "Produto removido com sucesso!", flashSuccess)
	http.Redirect(w, r, "/admin", http.StatusSeeOther)
}

func (p *Pages) AdminImportPage(w http.ResponseWriter, r *http.Request) {
	p.render(w, r, http.StatusOK, "admin/import", p.data(r, "Importar produtos"))
}

// AdminImportSubmit takes the JSON array from the uploaded file, or from the
// textarea when no file was sent.
func (p *Pages) AdminImportSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes+(1<<20))
	// ParseMultipartForm hides ParseForm errors behind ErrNotMultipart.
	err := r.ParseForm()
	if err == nil {
		if err = r.ParseMultipartForm(maxImportBytes); errors.Is(err, http.ErrNotMultipart) {
			err = nil
		}
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, importTooLargeMessage, http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	if r.MultipartForm != nil {
		defer func() {
			_ = r.MultipartForm.RemoveAll()
		}()
	}

	raw := r.FormValue("json")
	if file, _, err := r.FormFile("file"); err == nil {
		data, readErr := io.ReadAll(io.LimitReader(file, maxImportBytes))
		_ = file.Close()
		if readErr != nil {
			http.Error(w, "invalid file", http.StatusBadRequest)
			return
		}
		raw = string(data)
	}

	fail := func(err error) {
		status, message := errorStatus(err)
		if status >= http.StatusInternalServerError {
			p.renderError(w, r, err)
			return
		}
		td := p.data(r, "Importar produtos")
		td.Error = message
		td.Form = map[string]string{"json": raw}
		p.render(w, r, status, "admin/import", td)
	}

	products, err := services.ParseImportJSON([]byte(raw))
	if err != nil {
		fail(err)
		return
	}
	n, err := p.products.Import(r.Context(), products)
	if err != nil {
		fail(err)
		return
	}
	td := p.data(r, "Importar produtos")
	td.Data = n
	p.render(w, r, http.StatusOK, "admin/import", td)
}

func (p *Pages) AdminUsers(w http.ResponseWriter, r *http.Request) {
	profiles, err := p.users.List(r.Context())
	if err != nil {
		p.renderError(w, r, err)
		return
	}
	td := p.data(r, "Usuários")
	td.Data = profiles
	p.render(w, r, http.StatusOK, "admin/users", td)
}

// AdminUpdateUser saves the row form of the users table. Fields the form
// does not carry keep their stored values.
func (p *Pages) AdminUpdateUser(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	id := chi.URLParam(r, "userID")
	current, err := p.users.Get(r.Context(), id)
	if err != nil {
		p.renderError(w, r, err)
		return
	}

	in := services.ProfileUpdate{
		Username:  current.Username,
		FullName:  current.FullName,
		AvatarURL: current.AvatarURL,
		Phone:     current.Phone,
		Role:      r.PostForm.Get("role"),
	}
	if _, ok := r.PostForm["username"]; ok {
		in.Username = r.PostForm.Get("username")
	}
	if _, ok := r.PostForm["full_name"]; ok {
		in.FullName = r.PostForm.Get("full_name")
	}
	if _, ok := r.PostForm["avatar_url"]; ok {
		in.AvatarURL = r.PostForm.Get("avatar_url")
	}

	if _, err := p.users.Update(r.Context(), id, in); err != nil {
		if !services.IsValidation(err) {
			p.renderError(w, r, err)
			return
		}
		p.flash(r, err.Error(), flashError)
		http.Redirect(w, r, "/admin/usuarios", http.StatusSeeOther)
		return
	}
	p.flash(r, "Usuário atualizado com sucesso!", flashSuccess)
	http.Redirect(w, r, "/admin/usuarios", http.StatusSeeOther)
}

func (p *Pages) AdminDeleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "userID")
	if user := stateOf(r).User; user != nil && user.ID == id {
		p.flash(r, selfDeleteMessage, flashError)
		http.Redirect(w, r, "/admin/usuarios", http.StatusSeeOther)
		return
	}
	if err := p.users.Delete(r.Context(), id); err != nil {
		p.renderError(w, r, err)
		return
	}
	p.flash(r, "Usuário excluído com sucesso!", flashSuccess)
	http.Redirect(w, r, "/admin/usuarios", http.StatusSeeOther)
}

type adminStorePage struct {
	Store    services.Store
	Products []types.Product
}

func (p *Pages) AdminStore(w http.ResponseWriter, r *http.Request) {
	st, products, err := p.catalog.Products(r.Context(), chi.URLParam(r, "storeID"))
	if err != nil {
		p.renderError(w, r, err)
		return
	}
	td := p.data(r, st.Name)
	td.Data = adminStorePage{Store: st, Products: products}
	p.render(w, r, http.StatusOK, "admin/store", td)
}

// AdminSyncStore reports that marketplace synchronization is unavailable.
func (p *Pages) AdminSyncStore(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "storeID")
	err := p.catalog.Sync(r.Context(), storeID)
	switch {
	case err == nil:
		p.flash(r, "Produtos sincronizados com sucesso!", flashSuccess)
	case errors.Is(err, services.ErrNotImplemented):
		p.flash(r, err.Error(), flashError)
	default:
		p.renderError(w, r, err)
		return
	}
	http.Redirect(w, r, "/admin/loja/"+storeID, http.StatusSeeOther)
}

type adminSettingsPage struct {
	Settings types.Settings
	System   types.SystemInfo
}

func (p *Pages) AdminSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := p.settings.Get(r.Context())
	if err != nil {
		p.renderError(w, r, err)
		return
	}
	p.renderSettings(w, r, http.StatusOK, settings, "")
}

func (p *Pages) renderSettings(w http.ResponseWriter, r *http.Request, status int, settings types.Settings, message string) {
	td := p.data(r, "Configurações")
	td.Data = adminSettingsPage{Settings: settings, System: p.settings.SystemInfo(r.Context())}
	td.Error = message
	p.render(w, r, status, "admin/settings", td)
}

// AdminSaveSettings stores the settings form. Unchecked boxes are absent
// from the form and turn the flag off.
func (p *Pages) AdminSaveSettings(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	settings := types.Settings{
		SiteName:                 r.PostForm.Get("site_name"),
		ContactEmail:             r.PostForm.Get("contact_email"),
		EnableUserRegistration:   checkbox(r, "enable_user_registration"),
		RequireEmailVerification: checkbox(r, "require_email_verification"),
		MaintenanceMode:          checkbox(r, "maintenance_mode"),
	}
	if _, err := p.settings.Save(r.Context(), settings); err != nil {
		if !services.IsValidation(err) {
			p.renderError(w, r, err)
			return
		}
		p.renderSettings(w, r, http.StatusBadRequest, settings, err.Error())
		return
	}
	p.flash(r, "Configurações salvas com sucesso!", flashSuccess)
	http.Redirect(w, r, "/admin/configuracoes", http.StatusSeeOther)
}

func checkbox(r *http.Request, name string) bool {
	_, ok := r.PostForm[name]
	return ok
}

func (p *Pages) AdminBlog(w http.ResponseWriter, r *http.Request) {
	posts, err := p.blog.ListAll(r.Context())
	if err != nil {
		p.renderError(w, r, err)
		return
	}
	td := p.data(r, "Blog")
	td.Data = posts
	p.render(w, r, http.StatusOK, "admin/blog", td)
}

func blogForm(r *http.Request) (services.BlogInput, map[string]string) {
	in := services.BlogInput{
		Title:   r.PostForm.Get("title"),
		Slug:    r.PostForm.Get("slug"),
		Excerpt: r.PostForm.Get("excerpt"),
		Content: r.PostForm.Get("content"),
		Image:   r.PostForm.Get("image"),
		Publish: checkbox(r, "publish"),
	}
	form := map[string]string{
		"title":   in.Title,
		"slug":    in.Slug,
		"excerpt": in.Excerpt,
		"content": in.Content,
		"image":   in.Image,
	}
	if in.Publish {
		form["publish"] = "on"
	}
	return in, form
}

func (p *Pages) renderPostForm(w http.ResponseWriter, r *http.Request, status int, form map[string]string, message string) {
	title := "Novo post"
	if form["id"] != "" {
		title = "Editar post"
	}
	td := p.data(r, title)
	td.Form = form
	td.Error = message
	p.render(w, r, status, "admin/blog_form", td)
}

func (p *Pages) AdminNewPost(w http.ResponseWriter, r *http.Request) {
	p.renderPostForm(w, r, http.StatusOK, map[string]string{}, "")
}

func (p *Pages) AdminCreatePost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	in, form := blogForm(r)
	authorID := ""
	if user := stateOf(r).User; user != nil {
		authorID = user.ID
	}
	if _, err := p.blog.Create(r.Context(), in, authorID); err != nil {
		p.postFormFailed(w, r, form, err)
		return
	}
	p.flash(r, "Post criado com sucesso!", flashSuccess)
	http.Redirect(w, r, "/admin/blog", http.StatusSeeOther)
}

func (p *Pages) AdminEditPost(w http.ResponseWriter, r *http.Request) {
	post, err := p.blog.Get(r.Context(), chi.URLParam(r, "postID"))
	if err != nil {
		p.renderError(w, r, err)
		return
	}
	form := map[string]string{
		"id":      post.ID,
		"title":   post.Title,
		"slug":    post.Slug,
		"excerpt": post.Excerpt,
		"content": post.Content,
		"image":   post.Image,
	}
	if post.PublishedAt != nil {
		form["publish"] = "on"
	}
	p.renderPostForm(w, r, http.StatusOK, form, "")
}

func (p *Pages) AdminUpdatePost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	id := chi.URLParam(r, "postID")
	in, form := blogForm(r)
	form["id"] = id
	if _, err := p.blog.Update(r.Context(), id, in); err != nil {
		p.postFormFailed(w, r, form, err)
		return
	}
	p.flash(r, "Post atualizado com sucesso!", flashSuccess)
	http.Redirect(w, r, "/admin/blog", http.StatusSeeOther)
}

func (p *Pages) postFormFailed(w http.ResponseWriter, r *http.Request, form map[string]string, err error) {
	status, message := errorStatus(err)
	if status >= http.StatusInternalServerError || status == http.StatusNotFound {
		p.renderError(w, r, err)
		return
	}
	p.renderPostForm(w, r, status, form, message)
}

func (p *Pages) AdminDeletePost(w http.ResponseWriter, r *http.Request) {
	if err := p.blog.Delete(r.Context(), chi.URLParam(r, "postID")); err != nil {
		p.renderError(w, r, err)
		return
	}
	p.flash(r, "Post excluído com sucesso!", flashSuccess)
	http.Redirect(w, r, "/admin/blog", http.StatusSeeOther)
}

