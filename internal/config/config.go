package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/alexjbarnes/content-mirror/internal/remote"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all environment-based configuration for content-mirror.
type Config struct {
	// Remote content store endpoint (required).
	APIBaseURL string `env:"CONTENT_API_URL"`

	// Bearer token for authenticated entity kinds. Content sync works
	// anonymously; email templates and settings require a token.
	APIToken string `env:"CONTENT_API_TOKEN"`

	// WebSocket change-feed endpoint. Required for watch mode only.
	FeedURL string `env:"CONTENT_FEED_URL"`

	// Directory the mirror tree is written into (required).
	MirrorDir string `env:"CONTENT_MIRROR_DIR"`

	// Language whose records live at the mirror root rather than under
	// a language-code subfolder.
	DefaultLanguage string `env:"CONTENT_DEFAULT_LANGUAGE" envDefault:"en"`

	// Entity kind toggles. At least one must be true.
	SyncContent        bool `env:"SYNC_CONTENT" envDefault:"true"`
	SyncEmailTemplates bool `env:"SYNC_EMAIL_TEMPLATES" envDefault:"false"`
	SyncComments       bool `env:"SYNC_COMMENTS" envDefault:"false"`
	SyncSettings       bool `env:"SYNC_SETTINGS" envDefault:"false"`

	// Page size sent with every changes request.
	PageLimit int `env:"SYNC_PAGE_LIMIT" envDefault:"100"`

	// Per-request timeout for the API client.
	RequestTimeout time.Duration `env:"SYNC_REQUEST_TIMEOUT" envDefault:"30s"`

	// Environment controls log format.
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. On Unix systems, group or world
// readable files risk exposing the API token to other users.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return // file does not exist, nothing to check
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	// Resolve MirrorDir to an absolute path at startup. Downstream code
	// uses it for path traversal checks (ensuring computed record paths
	// stay within the mirror), which rely on string prefix comparison
	// and only work reliably with absolute paths.
	absDir, err := filepath.Abs(cfg.MirrorDir)
	if err != nil {
		return nil, fmt.Errorf("resolving mirror dir to absolute path: %w", err)
	}

	cfg.MirrorDir = absDir

	return cfg, nil
}

func (c *Config) validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("CONTENT_API_URL is required")
	}

	if c.MirrorDir == "" {
		return fmt.Errorf("CONTENT_MIRROR_DIR is required")
	}

	if !c.SyncContent && !c.SyncEmailTemplates && !c.SyncComments && !c.SyncSettings {
		return fmt.Errorf("at least one entity kind must be enabled")
	}

	// Authenticated kinds cannot run anonymously; fail at startup rather
	// than on the first 401.
	if c.APIToken == "" {
		if c.SyncEmailTemplates {
			return fmt.Errorf("CONTENT_API_TOKEN is required when SYNC_EMAIL_TEMPLATES is enabled")
		}

		if c.SyncSettings {
			return fmt.Errorf("CONTENT_API_TOKEN is required when SYNC_SETTINGS is enabled")
		}
	}

	if c.PageLimit < 1 {
		return fmt.Errorf("SYNC_PAGE_LIMIT must be at least 1")
	}

	return nil
}

// EnabledKinds returns the entity kinds switched on by configuration,
// in a stable order.
func (c *Config) EnabledKinds() []remote.Kind {
	var kinds []remote.Kind

	if c.SyncContent {
		kinds = append(kinds, remote.KindContent)
	}

	if c.SyncEmailTemplates {
		kinds = append(kinds, remote.KindEmailTemplate)
	}

	if c.SyncComments {
		kinds = append(kinds, remote.KindComment)
	}

	if c.SyncSettings {
		kinds = append(kinds, remote.KindSetting)
	}

	return kinds
}

// KindEnabled reports whether the given kind is switched on.
func (c *Config) KindEnabled(kind remote.Kind) bool {
	for _, k := range c.EnabledKinds() {
		if k == kind {
			return true
		}
	}

	return false
}

// KindDir returns the absolute mirror subtree for an entity kind.
func (c *Config) KindDir(kind remote.Kind) string {
	return filepath.Join(c.MirrorDir, kind.DirName())
}

// StatePath returns the location of the base-snapshot database. It lives
// inside the mirror directory so tests and parallel deployments get
// isolated state per configuration.
func (c *Config) StatePath() string {
	return filepath.Join(c.MirrorDir, ".content-mirror.db")
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
