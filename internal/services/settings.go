package services

import (
	"context"
	"net/mail"
	"runtime"
	"strings"
	"time"

	"github.com/brazeiro63/vovo-achados-portal/internal/cache"
	"github.com/brazeiro63/vovo-achados-portal/types"
)

type SettingsRepository interface {
	Load(ctx context.Context) (types.Settings, error)
	Save(ctx context.Context, settings types.Settings) error
	Ping(ctx context.Context) error
}

type SettingsService struct {
	repo         SettingsRepository
	queries      *cache.Query
	version      string
	cacheBackend string
	startedAt    time.Time
}

func NewSettingsService(repo SettingsRepository, queries *cache.Query, version, cacheBackend string) *SettingsService {
	return &SettingsService{
		repo:         repo,
		queries:      queries,
		version:      version,
		cacheBackend: cacheBackend,
		startedAt:    time.Now(),
	}
}

func (s *SettingsService) Get(ctx context.Context) (types.Settings, error) {
	return cache.Fetch(ctx, s.queries, KeySettings, s.repo.Load)
}

func (s *SettingsService) Save(ctx context.Context, settings types.Settings) (types.Settings, error) {
	settings.SiteName = strings.TrimSpace(settings.SiteName)
	settings.ContactEmail = strings.TrimSpace(settings.ContactEmail)
	if settings.SiteName == "" {
		return types.Settings{}, invalid("O nome do site é obrigatório")
	}
	if _, err := mail.ParseAddress(settings.ContactEmail); err != nil {
		return types.Settings{}, invalid("Email de contato inválido")
	}

	if err := s.repo.Save(ctx, settings); err != nil {
		return types.Settings{}, err
	}
	s.queries.Invalidate(ctx, KeySettings)
	return settings, nil
}

// SystemInfo reports build and runtime status for the settings page.
func (s *SettingsService) SystemInfo(ctx context.Context) types.SystemInfo {
	status := "ok"
	if err := s.repo.Ping(ctx); err != nil {
		status = "unavailable"
	}
	return types.SystemInfo{
		Version:        s.version,
		GoVersion:      runtime.Version(),
		StartedAt:      s.startedAt,
		Uptime:         time.Since(s.startedAt).Round(time.Second),
		DatabaseStatus: status,
		CacheBackend:   s.cacheBackend,
	}
}
