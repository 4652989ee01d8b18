package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir()) // 避免读取仓库中的 .env

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "shopfront", cfg.App.Name)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "https://fakestoreapi.com", cfg.Remote.BaseURL)
	assert.NotEmpty(t, cfg.Session.Secret, "dev secret should be filled in")
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("APP_PORT", "9090")
	t.Setenv("CACHE_TYPE", "redis")
	t.Setenv("REMOTE_TIMEOUT", "3s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("MQ_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.App.Port)
	assert.Equal(t, "redis", cfg.Cache.Type)
	assert.Equal(t, 3*time.Second, cfg.Remote.Timeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
	assert.True(t, cfg.MQ.Enabled)
}

func TestLoad_InvalidEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("APP_PORT", "not-a-number")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "APP_PORT")
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := filepath.Join(dir, "shop.yaml")
	content := `
app:
  port: 7070
  env: test
database:
  driver: mysql
  host: db.internal
  db_name: shop
cache:
  ttl: 90s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv(EnvConfigFile, path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.App.Port)
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 90*time.Second, cfg.Cache.TTL)
	// 未在文件中出现的字段保持默认值
	assert.Equal(t, "shopfront", cfg.App.Name)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{name: "bad port", mutate: func(c *Config) { c.App.Port = 0 }, wantErr: true},
		{name: "unknown driver", mutate: func(c *Config) { c.Database.Driver = "oracle" }, wantErr: true},
		{name: "sqlite without path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "prod without secret", mutate: func(c *Config) { c.App.Env = "prod" }, wantErr: true},
		{name: "rate limit window too small", mutate: func(c *Config) { c.RateLimit.Window = time.Millisecond }, wantErr: true},
		{name: "mq without exchange", mutate: func(c *Config) { c.MQ.Enabled = true; c.MQ.Exchange = "" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
