package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/brazeiro63/vovo-achados-portal/internal/render"
	"github.com/brazeiro63/vovo-achados-portal/internal/services"
	"github.com/brazeiro63/vovo-achados-portal/internal/store"
	"github.com/brazeiro63/vovo-achados-portal/types"
	"github.com/go-chi/chi/v5"
)

const homePostCount = 3

// Pages serves the server-rendered site and back-office.
type Pages struct {
	renderer *render.Renderer
	auth     *Auth
	products *services.ProductService
	blog     *services.BlogService
	users    *services.UserService
	settings *services.SettingsService
	account  *services.AccountService
	catalog  *services.StoreCatalog
	baseURL  string
	logger   *slog.Logger
}

type PagesDeps struct {
	Renderer *render.Renderer
	Auth     *Auth
	Products *services.ProductService
	Blog     *services.BlogService
	Users    *services.UserService
	Settings *services.SettingsService
	Account  *services.AccountService
	Catalog  *services.StoreCatalog
	BaseURL  string
	Logger   *slog.Logger
}

func NewPages(deps PagesDeps) *Pages {
	p := &Pages{
		renderer: deps.Renderer,
		auth:     deps.Auth,
		products: deps.Products,
		blog:     deps.Blog,
		users:    deps.Users,
		settings: deps.Settings,
		account:  deps.Account,
		catalog:  deps.Catalog,
		baseURL:  strings.TrimRight(deps.BaseURL, "/"),
		logger:   deps.Logger,
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// PageRouter registers the public site and the account pages. limit
// throttles the forms that take credentials.
func PageRouter(r chi.Router, p *Pages, limit func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		r.Use(p.Maintenance)
		r.Get("/", p.Home)
		r.Get("/mundo-magico-infantil", p.Section(types.SectionInfantil))
		r.Get("/oficina-criativa", p.Section(types.SectionEmpreendedorismo))
		r.Get("/lar-doce-lar", p.Section(types.SectionCasa))
		r.Get("/blog", p.BlogIndex)
		r.Get("/blog/{slug}", p.BlogPost)
		r.Get("/register", p.RegisterPage)
		r.With(limit).Post("/register", p.RegisterSubmit)
	})

	r.Get("/login", p.LoginPage)
	r.With(limit).Post("/login", p.LoginSubmit)
	r.Post("/logout", p.Logout)
	r.Get("/forgot-password", p.ForgotPasswordPage)
	r.With(limit).Post("/forgot-password", p.ForgotPasswordSubmit)
	r.Get("/reset-password", p.ResetPasswordPage)
	r.With(limit).Post("/reset-password", p.ResetPasswordSubmit)
	r.Get("/auth/confirm", p.Confirm)

	r.Group(func(r chi.Router) {
		r.Use(p.auth.RequireSession)
		r.Get("/dashboard", p.Dashboard)
		r.Get("/change-password", p.ChangePasswordPage)
		r.With(limit).Post("/change-password", p.ChangePasswordSubmit)
	})
}

// data fills the fields every layout needs.
func (p *Pages) data(r *http.Request, title string) render.TemplateData {
	td := render.TemplateData{Title: title}
	if settings, err := p.settings.Get(r.Context()); err == nil {
		td.SiteName = settings.SiteName
	} else {
		p.logger.WarnContext(r.Context(), "load settings", slog.String("error", err.Error()))
	}
	state := stateOf(r)
	td.User = state.User
	td.IsAdmin = state.IsAdmin
	return td
}

func (p *Pages) render(w http.ResponseWriter, r *http.Request, status int, name string, td render.TemplateData) {
	if err := p.renderer.Render(w, r, status, name, td); err != nil {
		p.logger.ErrorContext(r.Context(), "render page",
			slog.String("template", name),
			slog.String("error", err.Error()),
		)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// renderError shows the error page with the mapped status of err.
func (p *Pages) renderError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := errorStatus(err)
	if status >= http.StatusInternalServerError && status != http.StatusNotImplemented {
		p.logger.ErrorContext(r.Context(), "page failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
	td := p.data(r, http.StatusText(status))
	td.Error = message
	p.render(w, r, status, "pages/error", td)
}

func (p *Pages) flash(r *http.Request, message, kind string) {
	p.renderer.SetFlash(r, message, kind)
}

// Maintenance answers public pages with the maintenance page while
// maintenance mode is on. Administrators still see the site.
func (p *Pages) Maintenance(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		settings, err := p.settings.Get(r.Context())
		if err != nil || !settings.MaintenanceMode || stateOf(r).IsAdmin {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Retry-After", "3600")
		p.render(w, r, http.StatusServiceUnavailable, "pages/maintenance", p.data(r, "Em manutenção"))
	})
}

type homePage struct {
	Posts []types.BlogPost
}

func (p *Pages) Home(w http.ResponseWriter, r *http.Request) {
	posts, err := p.blog.ListPublished(r.Context())
	if err != nil {
		p.logger.WarnContext(r.Context(), "load latest posts", slog.String("error", err.Error()))
	}
	if len(posts) > homePostCount {
		posts = posts[:homePostCount]
	}
	td := p.data(r, "")
	td.Data = homePage{Posts: posts}
	p.render(w, r, http.StatusOK, "pages/home", td)
}

type sectionPage struct {
	Section    string
	Category   string
	Categories []string
	Products   []types.Product
}

// Section lists the products of one themed section, optionally narrowed to
// the ?categoria= category.
func (p *Pages) Section(color string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		all, err := p.products.List(r.Context(), types.ProductFilter{Color: color})
		if err != nil {
			p.renderError(w, r, err)
			return
		}

		category := strings.TrimSpace(r.URL.Query().Get("categoria"))
		products := all
		if category != "" {
			products, err = p.products.List(r.Context(), types.ProductFilter{Color: color, Category: category})
			if err != nil {
				p.renderError(w, r, err)
				return
			}
		}

		td := p.data(r, render.SectionName(color))
		td.Data = sectionPage{
			Section:    color,
			Category:   category,
			Categories: categoriesOf(all),
			Products:   products,
		}
		p.render(w, r, http.StatusOK, "pages/section", td)
	}
}

func categoriesOf(products []types.Product) []string {
	seen := make(map[string]struct{})
	var categories []string
	for _, product := range products {
		if _, ok := seen[product.Category]; ok || product.Category == "" {
			continue
		}
		seen[product.Category] = struct{}{}
		categories = append(categories, product.Category)
	}
	sort.Strings(categories)
	return categories
}

func (p *Pages) BlogIndex(w http.ResponseWriter, r *http.Request) {
	posts, err := p.blog.ListPublished(r.Context())
	if err != nil {
		p.renderError(w, r, err)
		return
	}
	td := p.data(r, "Blog")
	td.Data = posts
	p.render(w, r, http.StatusOK, "pages/blog", td)
}

func (p *Pages) BlogPost(w http.ResponseWriter, r *http.Request) {
	post, err := p.blog.GetPublished(r.Context(), chi.URLParam(r, "slug"))
	if errors.Is(err, store.ErrNotFound) {
		td := p.data(r, "Post não encontrado")
		td.Error = "O post que você procura não existe ou ainda não foi publicado."
		p.render(w, r, http.StatusNotFound, "pages/error", td)
		return
	}
	if err != nil {
		p.renderError(w, r, err)
		return
	}
	td := p.data(r, post.Title)
	td.Data = post
	p.render(w, r, http.StatusOK, "pages/post", td)
}

func (p *Pages) Dashboard(w http.ResponseWriter, r *http.Request) {
	state := stateOf(r)
	profile, err := p.users.Get(r.Context(), state.User.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		p.renderError(w, r, err)
		return
	}
	td := p.data(r, "Minha conta")
	td.Data = profile
	p.render(w, r, http.StatusOK, "pages/dashboard", td)
}

// NotFound renders the error page for unknown paths.
func (p *Pages) NotFound(w http.ResponseWriter, r *http.Request) {
	td := p.data(r, "Página não encontrada")
	td.Error = "A página que você procura não existe."
	p.render(w, r, http.StatusNotFound, "pages/error", td)
}
