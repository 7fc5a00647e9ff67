package types

import "time"

// Settings are the platform-wide options edited in the back-office.
type Settings struct {
	SiteName                 string `json:"site_name"`
	ContactEmail             string `json:"contact_email"`
	EnableUserRegistration   bool   `json:"enable_user_registration"`
	RequireEmailVerification bool   `json:"require_email_verification"`
	MaintenanceMode          bool   `json:"maintenance_mode"`
}

// DefaultSettings are used until an administrator saves the form once.
func DefaultSettings() Settings {
	return Settings{
		SiteName:               "Achados da Vovó",
		ContactEmail:           "contato@achadosdavovo.com.br",
		EnableUserRegistration: true,
	}
}

// SystemInfo is the read-only status card of the settings page.
type SystemInfo struct {
	Version        string        `json:"version"`
	GoVersion      string        `json:"go_version"`
	StartedAt      time.Time     `json:"started_at"`
	Uptime         time.Duration `json:"uptime_ns"`
	DatabaseStatus string        `json:"database_status"`
	CacheBackend   string        `json:"cache_backend"`
}
