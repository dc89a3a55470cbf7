package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration. Components receive the
// sub-struct they need at construction; nothing reads the process environment
// after Load returns.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Apify      ApifyConfig      `yaml:"apify" mapstructure:"apify"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Screenshot ScreenshotConfig `yaml:"screenshot" mapstructure:"screenshot"`
	Website    WebsiteConfig    `yaml:"website" mapstructure:"website"`
	Audit      AuditConfig      `yaml:"audit" mapstructure:"audit"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ApifyConfig holds Apify scraping provider settings.
type ApifyConfig struct {
	Token string `yaml:"token" mapstructure:"token"`

	// ProfileActor is keyed by username and returns profile metadata plus
	// latest posts. DetailActor is keyed by direct URL and accepts session
	// cookies; it is the fallback strategy.
	ProfileActor string `yaml:"profile_actor" mapstructure:"profile_actor"`
	DetailActor  string `yaml:"detail_actor" mapstructure:"detail_actor"`

	// SessionID, when set, is attached as an instagram.com sessionid cookie
	// on detail-mode runs for authenticated access.
	SessionID string `yaml:"session_id" mapstructure:"session_id"`

	BaseURL  string  `yaml:"base_url" mapstructure:"base_url"`
	MaxPosts int     `yaml:"max_posts" mapstructure:"max_posts"`
	RPS      float64 `yaml:"rps" mapstructure:"rps"`
	Burst    int     `yaml:"burst" mapstructure:"burst"`
}

// AnthropicConfig holds the analysis service settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// ScreenshotConfig holds the screenshot URL builder settings.
type ScreenshotConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// WebsiteConfig configures the website text fetcher.
type WebsiteConfig struct {
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxChars    int    `yaml:"max_chars" mapstructure:"max_chars"`
}

// AuditConfig configures the acquisition orchestrator and the cache window.
type AuditConfig struct {
	InstagramBudgetSecs  int `yaml:"instagram_budget_secs" mapstructure:"instagram_budget_secs"`
	WebsiteBudgetSecs    int `yaml:"website_budget_secs" mapstructure:"website_budget_secs"`
	ScreenshotBudgetSecs int `yaml:"screenshot_budget_secs" mapstructure:"screenshot_budget_secs"`
	CacheWindowDays      int `yaml:"cache_window_days" mapstructure:"cache_window_days"`
}

// InstagramBudget returns the Instagram branch budget as a duration.
func (a AuditConfig) InstagramBudget() time.Duration {
	return time.Duration(a.InstagramBudgetSecs) * time.Second
}

// WebsiteBudget returns the website branch budget as a duration.
func (a AuditConfig) WebsiteBudget() time.Duration {
	return time.Duration(a.WebsiteBudgetSecs) * time.Second
}

// ScreenshotBudget returns the screenshot branch budget as a duration.
func (a AuditConfig) ScreenshotBudget() time.Duration {
	return time.Duration(a.ScreenshotBudgetSecs) * time.Second
}

// CacheWindow returns the rolling cache lookback as a duration.
func (a AuditConfig) CacheWindow() time.Duration {
	return time.Duration(a.CacheWindowDays) * 24 * time.Hour
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("AUDIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Secrets have no defaults, so viper will not see them during Unmarshal
	// unless the keys are bound explicitly.
	for _, key := range []string{"apify.token", "apify.session_id", "anthropic.key", "screenshot.key"} {
		_ = v.BindEnv(key)
	}

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "audits.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("apify.base_url", "https://api.apify.com/v2")
	v.SetDefault("apify.profile_actor", "apify~instagram-profile-scraper")
	v.SetDefault("apify.detail_actor", "apify~instagram-scraper")
	v.SetDefault("apify.max_posts", 12)
	v.SetDefault("apify.rps", 1.0)
	v.SetDefault("apify.burst", 2)
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("screenshot.base_url", "https://shot.screenshotapi.net/v3/screenshot")
	v.SetDefault("website.user_agent", "Mozilla/5.0 (compatible; CoollaboraBot/1.0)")
	v.SetDefault("website.timeout_secs", 10)
	v.SetDefault("website.max_chars", 3000)
	v.SetDefault("audit.instagram_budget_secs", 60)
	v.SetDefault("audit.website_budget_secs", 30)
	v.SetDefault("audit.screenshot_budget_secs", 10)
	v.SetDefault("audit.cache_window_days", 30)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
