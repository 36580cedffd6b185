package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	t.Setenv("CELESTIA_TEST_SECRET", "a-very-long-test-secret")

	yamlContent := `
app:
  name: celestia-test
database:
  path: "test.db"
api:
  auth:
    jwt_secret: "${CELESTIA_TEST_SECRET}"
telegram:
  role_chats:
    "Head Cook": 1001
    Supervisor: 1002
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0o644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "a-very-long-test-secret", cfg.API.Auth.JWTSecret)
	assert.Equal(t, "celestia-test", cfg.API.Auth.Issuer)
	assert.Equal(t, int64(1001), cfg.Telegram.RoleChats["Head Cook"])
	assert.Equal(t, 8080, cfg.API.HTTP.Port)
	assert.Equal(t, 24*time.Hour, cfg.Payments.IdempotencyTTL)
	assert.Equal(t, "Bookings", cfg.Google.BookingSheetName)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidateConfig(t *testing.T) {
	valid := func() Config {
		c := Config{
			Database: DatabaseConfig{Path: "path"},
			API:      APIConfig{Auth: APIAuthConfig{JWTSecret: "0123456789abcdef"}},
		}
		c.applyDefaults()
		return c
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(c *Config) {}},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "placeholder secret", mutate: func(c *Config) { c.API.Auth.JWTSecret = "CHANGE_ME" }, wantErr: true},
		{name: "short secret", mutate: func(c *Config) { c.API.Auth.JWTSecret = "short" }, wantErr: true},
		{name: "negative rate limit", mutate: func(c *Config) { c.API.RateLimit.RPS = -1 }, wantErr: true},
		{name: "kafka without topic", mutate: func(c *Config) { c.Kafka.Brokers = []string{"localhost:9092"} }, wantErr: true},
		{name: "sheet without credentials", mutate: func(c *Config) { c.Google.BookingSpreadsheetID = "sheet" }, wantErr: true},
		{
			name: "inverted retry delays",
			mutate: func(c *Config) {
				c.Worker.BaseDelay = time.Minute
				c.Worker.MaxDelay = time.Second
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{Monitoring: MonitoringConfig{PrometheusEnabled: true}}
	cfg.applyDefaults()

	assert.Equal(t, "celestia", cfg.App.Name)
	assert.Equal(t, 9090, cfg.Monitoring.PrometheusPort)
	assert.Equal(t, "celestia:outbox", cfg.Worker.QueueKey)
	assert.Equal(t, 5, cfg.Worker.MaxRetries)
	assert.Equal(t, 15*time.Second, cfg.API.HTTP.ReadTimeout)
}
