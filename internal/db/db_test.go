package db

import (
	"io/fs"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/brazeiro63/vovo-achados-portal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestURL(t *testing.T) {
	cfg := config.DatabaseConfig{
		Host:     "db",
		Port:     5433,
		User:     "vovo",
		Password: "p@ss word",
		DBName:   "achados",
	}

	u, err := url.Parse(URL(cfg))
	require.NoError(t, err)
	assert.Equal(t, "postgres", u.Scheme)
	assert.Equal(t, "db:5433", u.Host)
	assert.Equal(t, "/achados", u.Path)
	assert.Equal(t, "disable", u.Query().Get("sslmode"))
	pass, _ := u.User.Password()
	assert.Equal(t, "p@ss word", pass)

	assert.Equal(t, "vovo-achados", u.Query().Get("application_name"))
	assert.Empty(t, u.Query().Get("connect_timeout"))

	cfg.UseSSL = true
	cfg.ConnectTimeout = 3 * time.Second
	u, err = url.Parse(URL(cfg))
	require.NoError(t, err)
	assert.Equal(t, "require", u.Query().Get("sslmode"))
	assert.Equal(t, "3", u.Query().Get("connect_timeout"))
}

func TestMigrations_ArePaired(t *testing.T) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	require.NoError(t, err)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}
	require.NotEmpty(t, ups)
	assert.Equal(t, ups, downs)
}

func TestMigrateDown_RejectsNonPositiveSteps(t *testing.T) {
	assert.Error(t, MigrateDown("postgres://unused", 0))
}

func TestMigrateForce_RejectsInvalidVersion(t *testing.T) {
	assert.Error(t, MigrateForce("postgres://unused", -2))
}
