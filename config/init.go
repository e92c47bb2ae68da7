package config

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors Config with yaml tags for rendering the stock file.
// It only carries the keys an operator usually edits.
type fileConfig struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
		Summary string `yaml:"summary"`
	} `yaml:"app"`
	Server struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"server"`
	RateLimits struct {
		Enabled bool     `yaml:"enabled"`
		Rules   []string `yaml:"rules"`
	} `yaml:"rate_limits"`
	SignedURLs struct {
		Enabled  bool   `yaml:"enabled"`
		Duration int    `yaml:"duration"`
		Secret   string `yaml:"secret"`
	} `yaml:"signed_urls"`
	Permissions struct {
		Read   string `yaml:"read"`
		Write  string `yaml:"write"`
		Delete string `yaml:"delete"`
		Other  string `yaml:"other"`
	} `yaml:"permissions"`
	Archives map[string]struct {
		Path string `yaml:"path"`
	} `yaml:"archives"`
	Users struct {
		Type string `yaml:"type"`
		DSN  string `yaml:"dsn"`
	} `yaml:"users"`
	Advanced struct {
		ReadOnly          bool     `yaml:"read_only"`
		ProtectedPrefixes []string `yaml:"protected_prefixes"`
		AuthHeader        string   `yaml:"auth_header"`
	} `yaml:"advanced"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

const fileHeader = `# Breadbox configuration.
#
# Permission groups: everyone, users, contributors, admin, nobody.
# Rate-limit rules are "N/period" where period is second, minute, hour,
# or day. signed_urls.duration is in minutes; an empty secret means a
# fresh random key on every start, which invalidates outstanding URLs.

`

// WriteDefault renders the stock configuration file.
func WriteDefault(w io.Writer) error {
	var f fileConfig

	f.App.Name = "Breadbox"
	f.App.Version = "1.0"
	f.App.Summary = "An archive of anime, games, and Linux ISOs."
	f.Server.Host = "0.0.0.0"
	f.Server.Port = 8080
	f.RateLimits.Enabled = true
	f.RateLimits.Rules = []string{"3/second", "20/minute"}
	f.SignedURLs.Enabled = true
	f.SignedURLs.Duration = 720
	f.Permissions.Read = "users"
	f.Permissions.Write = "contributors"
	f.Permissions.Delete = "admin"
	f.Permissions.Other = "everyone"
	f.Users.Type = "sqlite"
	f.Users.DSN = "users.db"
	f.Advanced.ProtectedPrefixes = []string{"/archive"}
	f.Advanced.AuthHeader = "X-API-KEY"
	f.Log.Level = "info"

	if _, err := io.WriteString(w, fileHeader); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&f); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	return enc.Close()
}
