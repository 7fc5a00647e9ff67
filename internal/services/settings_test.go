package services

import (
	"context"
	"errors"
	"runtime"
	"testing"

	"github.com/brazeiro63/vovo-achados-portal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSettings struct {
	stored  types.Settings
	loads   int
	saves   int
	pingErr error
}

func (f *fakeSettings) Load(context.Context) (types.Settings, error) {
	f.loads++
	return f.stored, nil
}

func (f *fakeSettings) Save(_ context.Context, s types.Settings) error {
	f.saves++
	f.stored = s
	return nil
}

func (f *fakeSettings) Ping(context.Context) error { return f.pingErr }

func TestSettingsService_GetIsCachedUntilSave(t *testing.T) {
	repo := &fakeSettings{stored: types.DefaultSettings()}
	svc := NewSettingsService(repo, newQuery(t), "v1.2.3", "memory")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		got, err := svc.Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, "Achados da Vovó", got.SiteName)
	}
	assert.Equal(t, 1, repo.loads)

	next := types.DefaultSettings()
	next.SiteName = "  Achados  "
	next.MaintenanceMode = true
	saved, err := svc.Save(ctx, next)
	require.NoError(t, err)
	assert.Equal(t, "Achados", saved.SiteName)

	got, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.loads)
	assert.Equal(t, "Achados", got.SiteName)
	assert.True(t, got.MaintenanceMode)
}

func TestSettingsService_SaveValidation(t *testing.T) {
	repo := &fakeSettings{stored: types.DefaultSettings()}
	svc := NewSettingsService(repo, nil, "dev", "memory")

	tests := []struct {
		name     string
		settings types.Settings
		message  string
	}{
		{"blank site name", types.Settings{SiteName: " ", ContactEmail: "a@b.com"}, "O nome do site é obrigatório"},
		{"bad email", types.Settings{SiteName: "Vovó", ContactEmail: "nao-e-email"}, "Email de contato inválido"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Save(context.Background(), tt.settings)
			require.True(t, IsValidation(err))
			assert.Equal(t, tt.message, err.Error())
		})
	}
	assert.Zero(t, repo.saves)
}

func TestSettingsService_SystemInfo(t *testing.T) {
	repo := &fakeSettings{}
	svc := NewSettingsService(repo, nil, "v1.2.3", "redis")

	info := svc.SystemInfo(context.Background())
	assert.Equal(t, "v1.2.3", info.Version)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, "ok", info.DatabaseStatus)
	assert.Equal(t, "redis", info.CacheBackend)
	assert.False(t, info.StartedAt.IsZero())
	assert.GreaterOrEqual(t, int64(info.Uptime), int64(0))

	repo.pingErr = errors.New("connection refused")
	assert.Equal(t, "unavailable", svc.SystemInfo(context.Background()).DatabaseStatus)
}
