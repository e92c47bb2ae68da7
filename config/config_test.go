package config_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modestbitboard/breadbox"
	"github.com/modestbitboard/breadbox/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "Breadbox", cfg.App.Name)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.True(t, cfg.RateLimits.Enabled)
	assert.Equal(t, []string{"3/second", "20/minute"}, cfg.RateLimits.Rules)
	assert.True(t, cfg.SignedURLs.Enabled)
	assert.Equal(t, 720, cfg.SignedURLs.Duration)
	assert.Equal(t, 12*time.Hour, cfg.SignedURLs.Lifetime())
	assert.Equal(t, "users", cfg.Permissions.Read)
	assert.Equal(t, "contributors", cfg.Permissions.Write)
	assert.Equal(t, "admin", cfg.Permissions.Delete)
	assert.Equal(t, "everyone", cfg.Permissions.Other)
	assert.False(t, cfg.Advanced.ReadOnly)
	assert.Equal(t, []string{"/archive"}, cfg.Advanced.ProtectedPrefixes)
	assert.Equal(t, "X-API-KEY", cfg.Advanced.AuthHeader)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_ConfigFile(t *testing.T) {
	path := writeConfig(t, `
server:
  host: 127.0.0.1
  port: 9090
rate_limits:
  enabled: false
signed_urls:
  enabled: true
  duration: 60
  secret: super-secret
permissions:
  read: everyone
  write: admin
  delete: nobody
  other: nobody
archives:
  games:
    path: /srv/archive/games
    schema:
      title: string
      external: object
    browse: media
    files:
      - path: thumbnail
        branch: images
        filename: thumbnail.jpg
      - path: files/{filename}
        branch: media
        overwrite_protection: true
users:
  type: sqlite
  dsn: users.db
advanced:
  read_only: true
  auth_cookie: api_key
log:
  level: debug
`)

	cfg, err := config.Load([]string{path}, nil)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.False(t, cfg.RateLimits.Enabled)
	assert.Equal(t, "super-secret", cfg.SignedURLs.Secret)
	assert.Equal(t, time.Hour, cfg.SignedURLs.Lifetime())

	groups, err := cfg.Permissions.Groups()
	require.NoError(t, err)
	assert.Equal(t, breadbox.GroupEveryone, groups.Read)
	assert.Equal(t, breadbox.GroupAdmin, groups.Write)
	assert.Equal(t, breadbox.GroupNobody, groups.Delete)

	require.Contains(t, cfg.Archives, "games")
	games := cfg.Archives["games"]
	assert.Equal(t, "/srv/archive/games", games.Path)
	assert.Equal(t, "media", games.Browse)
	require.Len(t, games.Files, 2)
	assert.Equal(t, "thumbnail.jpg", games.Files[0].Filename)
	assert.True(t, games.Files[1].OverwriteProtection)

	assert.Equal(t, "sqlite", cfg.Users.Type)
	assert.True(t, cfg.Advanced.ReadOnly)
	assert.Equal(t, "api_key", cfg.Advanced.AuthCookie)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_ConfigFileMerge(t *testing.T) {
	base := writeConfig(t, `
server:
  port: 8080
permissions:
  read: users
`)
	override := writeConfig(t, `
server:
  port: 9000
`)

	cfg, err := config.Load([]string{base, override}, nil)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "users", cfg.Permissions.Read)
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	t.Setenv("BREADBOX_SERVER_PORT", "9090")
	t.Setenv("BREADBOX_ADVANCED_READ_ONLY", "true")

	cfg, err := config.Load(nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.True(t, cfg.Advanced.ReadOnly)
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "invalid port",
			content: `
server:
  port: 99999
`,
		},
		{
			name: "unknown permission group",
			content: `
permissions:
  read: wizards
`,
		},
		{
			name: "bad rate rule",
			content: `
rate_limits:
  enabled: true
  rules:
    - 3/fortnight
`,
		},
		{
			name: "bad schema kind",
			content: `
archives:
  games:
    path: /srv/archive/games
    schema:
      title: varchar
`,
		},
		{
			name: "file route without filename",
			content: `
archives:
  games:
    path: /srv/archive/games
    files:
      - path: thumbnail
        branch: images
`,
		},
		{
			name: "signed urls with zero duration",
			content: `
signed_urls:
  enabled: true
  duration: 0
`,
		},
		{
			name: "unsupported user db",
			content: `
users:
  type: mongodb
  dsn: something
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			_, err := config.Load([]string{path}, nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "validate config")
		})
	}
}

func TestLoad_DisabledRulesNotValidated(t *testing.T) {
	// Broken rules are tolerated while rate limiting is off.
	path := writeConfig(t, `
rate_limits:
  enabled: false
  rules:
    - bogus
`)

	_, err := config.Load([]string{path}, nil)
	assert.NoError(t, err)
}

func TestWriteDefault_RoundTrips(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, config.WriteDefault(&buf))

	assert.Contains(t, buf.String(), "# Breadbox configuration.")

	// The generated file must load cleanly.
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	cfg, err := config.Load([]string{path}, nil)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Users.Type)
}
