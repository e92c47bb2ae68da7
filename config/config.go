package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/modestbitboard/breadbox"
	"github.com/modestbitboard/breadbox/archive"
	"github.com/modestbitboard/breadbox/ratelimit"
	"github.com/modestbitboard/breadbox/userdb"
)

// configKey is the context key for storing the loaded configuration.
type configKey struct{}

// WithContext returns a new context with the config stored.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// FromContext retrieves the config from context.
// Returns an error if config is not found.
func FromContext(ctx context.Context) (*Config, error) {
	cfg, ok := ctx.Value(configKey{}).(*Config)
	if !ok || cfg == nil {
		return nil, errors.New("config not found in context")
	}
	return cfg, nil
}

// Config is the root configuration struct for breadbox.
type Config struct {
	App         AppConfig                `mapstructure:"app"`
	Server      ServerConfig             `mapstructure:"server"`
	RateLimits  RateLimitConfig          `mapstructure:"rate_limits"`
	SignedURLs  SignedURLConfig          `mapstructure:"signed_urls"`
	Permissions PermissionsConfig        `mapstructure:"permissions"`
	Archives    map[string]ArchiveConfig `mapstructure:"archives"`
	Users       userdb.Config            `mapstructure:"users"`
	CORS        CORSConfig               `mapstructure:"cors"`
	Advanced    AdvancedConfig           `mapstructure:"advanced"`
	Log         LogConfig                `mapstructure:"log"`
}

// AppConfig describes the archive for banners and logs.
type AppConfig struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
	Summary string `mapstructure:"summary"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port" validate:"required,min=1,max=65535"`
}

// RateLimitConfig holds request quota configuration.
type RateLimitConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Rules   []string `mapstructure:"rules"`
	// Exempt routes bypass all rules; "{segment}" matches any one path
	// segment.
	Exempt []string `mapstructure:"exempt"`
}

// SignedURLConfig holds signed-URL grant configuration.
type SignedURLConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Duration is the grant lifetime in minutes.
	Duration int `mapstructure:"duration"`
	// Secret is the signing key. Empty means a random key per process,
	// which invalidates outstanding grants on restart.
	Secret string `mapstructure:"secret"`
}

// Lifetime returns the grant duration.
func (s SignedURLConfig) Lifetime() time.Duration {
	return time.Duration(s.Duration) * time.Minute
}

// PermissionsConfig names the group required per action.
type PermissionsConfig struct {
	Read   string `mapstructure:"read" validate:"required,oneof=everyone users contributors admin nobody"`
	Write  string `mapstructure:"write" validate:"required,oneof=everyone users contributors admin nobody"`
	Delete string `mapstructure:"delete" validate:"required,oneof=everyone users contributors admin nobody"`
	Other  string `mapstructure:"other" validate:"required,oneof=everyone users contributors admin nobody"`
}

// Groups parses the configured group names.
func (p PermissionsConfig) Groups() (breadbox.ActionGroups, error) {
	var groups breadbox.ActionGroups
	var err error

	if groups.Read, err = breadbox.ParseGroup(p.Read); err != nil {
		return breadbox.ActionGroups{}, fmt.Errorf("permissions.read: %w", err)
	}
	if groups.Write, err = breadbox.ParseGroup(p.Write); err != nil {
		return breadbox.ActionGroups{}, fmt.Errorf("permissions.write: %w", err)
	}
	if groups.Delete, err = breadbox.ParseGroup(p.Delete); err != nil {
		return breadbox.ActionGroups{}, fmt.Errorf("permissions.delete: %w", err)
	}
	if groups.Other, err = breadbox.ParseGroup(p.Other); err != nil {
		return breadbox.ActionGroups{}, fmt.Errorf("permissions.other: %w", err)
	}

	return groups, nil
}

// ArchiveConfig describes one collection.
type ArchiveConfig struct {
	Path string `mapstructure:"path" validate:"required"`
	// Schema maps metadata field names to kinds (string, integer, number,
	// boolean, list, object). Empty accepts any metadata.
	Schema map[string]string `mapstructure:"schema"`
	Files  []FileRouteConfig `mapstructure:"files"`
	// Browse enables GET /{id}/files over this branch when set.
	Browse string `mapstructure:"browse"`
}

// FileRouteConfig exposes one branch file per item over GET and PUT.
type FileRouteConfig struct {
	// Path below /{id}/, e.g. "thumbnail" or "files/{filename}".
	Path   string `mapstructure:"path" validate:"required"`
	Branch string `mapstructure:"branch" validate:"required"`
	// Filename pins the stored name. Empty requires a {filename} wildcard
	// in Path.
	Filename            string `mapstructure:"filename"`
	OverwriteProtection bool   `mapstructure:"overwrite_protection"`
}

// CORSConfig holds the cross-origin settings applied to the whole server.
type CORSConfig struct {
	Enabled          bool     `mapstructure:"enabled"`
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

// AdvancedConfig holds the gate's knobs.
type AdvancedConfig struct {
	ReadOnly          bool     `mapstructure:"read_only"`
	ProtectedPrefixes []string `mapstructure:"protected_prefixes"`
	AuthHeader        string   `mapstructure:"auth_header"`
	AuthCookie        string   `mapstructure:"auth_cookie"`
	// AuthQuery is the deprecated query-parameter credential source.
	AuthQuery string `mapstructure:"auth_query"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
}

// flagToViperKey maps CLI flag names to viper configuration keys.
var flagToViperKey = map[string]string{
	"port":       "server.port",
	"host":       "server.host",
	"read-only":  "advanced.read_only",
	"users-type": "users.type",
	"users-dsn":  "users.dsn",
	"log-level":  "log.level",
}

// bindFlags binds CLI flags to viper keys with custom name mapping.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) {
	flags.VisitAll(func(f *pflag.Flag) {
		viperKey := f.Name
		if mapped, ok := flagToViperKey[viperKey]; ok {
			viperKey = mapped
		}

		// Only bind if the flag was explicitly set
		if f.Changed {
			_ = v.BindPFlag(viperKey, f)
		}
	})
}

// setDefaults configures default values on the viper instance.
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "Breadbox")
	v.SetDefault("app.version", "1.0")
	v.SetDefault("app.summary", "An archive of anime, games, and Linux ISOs.")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)

	v.SetDefault("rate_limits.enabled", true)
	v.SetDefault("rate_limits.rules", []string{"3/second", "20/minute"})

	v.SetDefault("signed_urls.enabled", true)
	v.SetDefault("signed_urls.duration", 720) // minutes

	v.SetDefault("permissions.read", "users")
	v.SetDefault("permissions.write", "contributors")
	v.SetDefault("permissions.delete", "admin")
	v.SetDefault("permissions.other", "everyone")

	v.SetDefault("advanced.read_only", false)
	v.SetDefault("advanced.protected_prefixes", []string{"/archive"})
	v.SetDefault("advanced.auth_header", "X-API-KEY")

	v.SetDefault("log.level", "info")
}

// Load reads configuration and returns a validated Config struct.
// Order of precedence (highest to lowest): flags > env > config files > defaults
//
// Parameters:
//   - configFiles: list of config file paths (later files override earlier ones)
//   - flags: cobra flag set for flag binding (can be nil)
func Load(configFiles []string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	// 1. Set defaults
	setDefaults(v)

	// 2. Read config files
	if len(configFiles) > 0 {
		v.SetConfigFile(configFiles[0])
		if err := v.ReadInConfig(); err != nil {
			slog.Warn("error reading config file", "file", configFiles[0], "err", err)
		}

		for _, cf := range configFiles[1:] {
			v.SetConfigFile(cf)
			if err := v.MergeInConfig(); err != nil {
				slog.Warn("error merging config file", "file", cf, "err", err)
			}
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")

		if err := v.ReadInConfig(); err != nil {
			var configNotFound viper.ConfigFileNotFoundError
			if !errors.As(err, &configNotFound) {
				slog.Warn("error reading config file", "err", err)
			}
		}
	}

	// 3. Bind environment variables
	v.SetEnvPrefix("BREADBOX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 4. Bind flags (if provided)
	if flags != nil {
		bindFlags(v, flags)
	}

	// 5. Unmarshal into Config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// 6. Validate using go-playground/validator
	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	// 7. Semantic checks that must fail at startup, not at request time
	if err := cfg.check(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// check performs the semantic validation the struct tags cannot express.
func (cfg *Config) check() error {
	if _, err := cfg.Permissions.Groups(); err != nil {
		return err
	}

	if cfg.RateLimits.Enabled {
		if _, err := ratelimit.ParseRules(cfg.RateLimits.Rules); err != nil {
			return err
		}
	}

	if cfg.SignedURLs.Enabled && cfg.SignedURLs.Duration < 1 {
		return fmt.Errorf("signed_urls.duration must be at least 1 minute, got %d", cfg.SignedURLs.Duration)
	}

	for name, arc := range cfg.Archives {
		if !breadbox.IsValidName(name) {
			return fmt.Errorf("archive name %q contains invalid characters", name)
		}
		if _, err := archive.ParseSchema(arc.Schema); err != nil {
			return fmt.Errorf("archive %q: %w", name, err)
		}
		for _, route := range arc.Files {
			if !breadbox.IsValidName(route.Branch) {
				return fmt.Errorf("archive %q: branch %q contains invalid characters", name, route.Branch)
			}
			if route.Filename == "" && !strings.Contains(route.Path, "{filename}") {
				return fmt.Errorf("archive %q: file route %q needs a filename or a {filename} wildcard", name, route.Path)
			}
		}
		if arc.Browse != "" && !breadbox.IsValidName(arc.Browse) {
			return fmt.Errorf("archive %q: browse branch %q contains invalid characters", name, arc.Browse)
		}
	}

	return nil
}
