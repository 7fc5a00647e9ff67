package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/brazeiro63/vovo-achados-portal/config"
	"github.com/brazeiro63/vovo-achados-portal/internal/cache"
	"github.com/brazeiro63/vovo-achados-portal/internal/db"
	"github.com/brazeiro63/vovo-achados-portal/internal/handlers"
	"github.com/brazeiro63/vovo-achados-portal/internal/identity"
	"github.com/brazeiro63/vovo-achados-portal/internal/metrics"
	appmw "github.com/brazeiro63/vovo-achados-portal/internal/middleware"
	"github.com/brazeiro63/vovo-achados-portal/internal/mq"
	"github.com/brazeiro63/vovo-achados-portal/internal/notify"
	"github.com/brazeiro63/vovo-achados-portal/internal/render"
	"github.com/brazeiro63/vovo-achados-portal/internal/services"
	"github.com/brazeiro63/vovo-achados-portal/internal/session"
	"github.com/brazeiro63/vovo-achados-portal/internal/storage"
	"github.com/brazeiro63/vovo-achados-portal/internal/store"
	"github.com/brazeiro63/vovo-achados-portal/internal/worker"
	"github.com/brazeiro63/vovo-achados-portal/web"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const requestTimeout = 60 * time.Second

// Options carries build information and the process logger.
type Options struct {
	Version string
	Logger  *slog.Logger
}

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	logger     *slog.Logger

	// stop cancels background work started by New.
	stop    context.CancelFunc
	closers []func() error
}

// Components are the wired services behind the router.
type Components struct {
	Config   config.Config
	Logger   *slog.Logger
	Registry *prometheus.Registry
	Metrics  metrics.Recorder
	Sessions *scs.SessionManager
	Renderer *render.Renderer
	Provider *identity.Provider
	Products *services.ProductService
	Blog     *services.BlogService
	Users    *services.UserService
	Settings *services.SettingsService
	Account  *services.AccountService
	Catalog  *services.StoreCatalog
	Storage  *storage.Storage
}

// New connects every backend selected by cfg and builds the router.
func New(ctx context.Context, cfg config.Config, opts Options) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dbConn, err := db.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	bgCtx, stop := context.WithCancel(context.Background())
	s := &Server{db: dbConn, logger: logger, stop: stop}

	backend, err := cache.Open(cfg.Cache)
	if err != nil {
		s.close()
		return nil, err
	}
	queries := cache.NewQuery(backend, cfg.Cache.TTL, logger)
	s.closers = append(s.closers, queries.Close)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)
	queries.OnInvalidate(collector.RecordCacheInvalidation)

	bus, err := mq.Open(ctx, cfg)
	if err != nil {
		s.close()
		return nil, err
	}
	s.closers = append(s.closers, bus.Close)

	userRepo := store.NewUserRepository(dbConn)
	if bus.Name() == "memory" {
		// Nothing outside this process can drain an in-memory queue.
		w := worker.New(bus, notify.LogMailer{Logger: logger}, userRepo, "", logger)
		go func() {
			if err := w.Run(bgCtx); err != nil {
				logger.Error("in-process worker stopped", slog.String("error", err.Error()))
			}
		}()
	}

	provider := identity.NewProvider(userRepo, notify.NewOutbox(bus, logger), identity.Options{
		Secret:     cfg.Auth.JWTSecret,
		SessionTTL: cfg.Auth.SessionTTL,
		LinkTTL:    cfg.Auth.RecoveryTTL,
		BaseURL:    cfg.BaseURL,
		Logger:     logger,
		Metrics:    collector,
	})

	images, err := storage.Open(ctx, cfg)
	if err != nil {
		s.close()
		return nil, err
	}
	s.closers = append(s.closers, images.Close)
	if err := images.EnsureBucket(ctx); err != nil {
		s.close()
		return nil, fmt.Errorf("ensure bucket: %w", err)
	}

	products := services.NewProductService(store.NewProductRepository(dbConn), queries, collector)
	sessions := session.New(backend, cfg.Auth.SessionTTL, cfg.Auth.CookieSecure && !cfg.IsDev())
	renderer, err := render.New(render.Config{TemplatesFS: web.Templates, Sessions: sessions})
	if err != nil {
		s.close()
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	c := Components{
		Config:   cfg,
		Logger:   logger,
		Registry: registry,
		Metrics:  collector,
		Sessions: sessions,
		Renderer: renderer,
		Provider: provider,
		Products: products,
		Blog:     services.NewBlogService(store.NewBlogRepository(dbConn), queries),
		Users:    services.NewUserService(store.NewProfileRepository(dbConn), provider, queries),
		Settings: services.NewSettingsService(store.NewSettingsRepository(dbConn), queries, opts.Version, cfg.Cache.Backend),
		Account:  services.NewAccountService(provider, logger),
		Catalog:  services.NewStoreCatalog(products),
		Storage:  images,
	}
	s.router = NewRouter(c)

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      requestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
	return s, nil
}

// NewRouter mounts the site, the JSON API and the operational endpoints.
func NewRouter(c Components) *chi.Mux {
	logger := c.Logger
	auth := handlers.NewAuth(c.Provider, c.Users, handlers.AuthOptions{
		Sessions:       c.Sessions,
		Renderer:       c.Renderer,
		ResolveTimeout: c.Config.Auth.ResolveTimeout,
		Logger:         logger,
		Metrics:        c.Metrics,
	})
	pages := handlers.NewPages(handlers.PagesDeps{
		Renderer: c.Renderer,
		Auth:     auth,
		Products: c.Products,
		Blog:     c.Blog,
		Users:    c.Users,
		Settings: c.Settings,
		Account:  c.Account,
		Catalog:  c.Catalog,
		BaseURL:  c.Config.BaseURL,
		Logger:   logger,
	})
	authHandler := handlers.NewAuthHandler(auth, c.Account, c.Settings, c.Users, c.Config.BaseURL, logger)
	productHandler := handlers.NewProductHandler(c.Products, logger)
	blogHandler := handlers.NewBlogHandler(c.Blog, logger)
	userHandler := handlers.NewUserHandler(c.Users, logger)
	settingsHandler := handlers.NewSettingsHandler(c.Settings, logger)
	storeHandler := handlers.NewStoreHandler(c.Catalog, logger)
	uploadHandler := handlers.NewUploadHandler(c.Storage, logger)
	limiter := appmw.NewRateLimiter(c.Config.RateLimit.AuthPerMinute, c.Config.RateLimit.AuthBurst, logger)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		appmw.RequestLogger(logger, c.Metrics),
	)
	router.Get("/healthz", handlers.Healthz)
	if c.Registry != nil {
		router.Handle("/metrics", metrics.Handler(c.Registry))
	}

	router.Group(func(r chi.Router) {
		r.Use(
			c.Sessions.LoadAndSave,
			appmw.SkipCSRFPrefix("/api/"),
			appmw.CSRF(appmw.DefaultCSRFConfig(c.Config.CSRFKey(), c.Config.IsDev())),
			auth.Resolve,
		)

		// The event stream is long-lived and stays outside the timeout.
		r.Route("/api/auth", func(r chi.Router) {
			handlers.AuthRouter(r, authHandler, limiter.Middleware)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(requestTimeout))

			r.Route("/api/products", func(r chi.Router) {
				handlers.ProductRouter(r, productHandler)
			})
			r.Route("/api/blog", func(r chi.Router) {
				handlers.BlogRouter(r, blogHandler)
			})
			r.Route("/api/admin", func(r chi.Router) {
				r.Use(auth.APIRequireAdmin)
				r.Route("/products", func(r chi.Router) {
					handlers.AdminProductRouter(r, productHandler)
				})
				r.Route("/blog", func(r chi.Router) {
					handlers.AdminBlogRouter(r, blogHandler)
				})
				r.Route("/users", func(r chi.Router) {
					handlers.UserRouter(r, userHandler)
				})
				r.Route("/stores", func(r chi.Router) {
					handlers.StoreRouter(r, storeHandler)
				})
				r.Route("/uploads", func(r chi.Router) {
					handlers.UploadRouter(r, uploadHandler)
				})
				handlers.SettingsRouter(r, settingsHandler)
			})

			handlers.PageRouter(r, pages, limiter.Middleware)
			r.Route("/admin", func(r chi.Router) {
				r.Use(auth.RequireAdmin)
				handlers.AdminPageRouter(r, pages)
			})
		})
	})
	router.NotFound(c.Sessions.LoadAndSave(http.HandlerFunc(pages.NotFound)).ServeHTTP)

	return router
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("starting server", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, then releases every backend.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	s.close()
	return err
}

func (s *Server) close() {
	s.stop()
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.logger.Warn("close backend", slog.String("error", err.Error()))
		}
	}
	s.closers = nil
	if s.db != nil {
		_ = s.db.Close()
		s.db = nil
	}
}
