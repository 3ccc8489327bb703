package common

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/joseph-ayodele/skills-audit/constants"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Browser  BrowserConfig  `yaml:"browser"`
	Audit    AuditConfig    `yaml:"audit"`
	Levels   LevelsConfig   `yaml:"levels"`
	Report   ReportConfig   `yaml:"report"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr        string        `yaml:"http_addr"        env:"HTTP_ADDR"        env-default:":8080"`
	GRPCAddr        string        `yaml:"grpc_addr"        env:"GRPC_ADDR"        env-default:":9090"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" env-default:"15s"`
}

// DatabaseConfig holds job-store configuration. A postgres:// DSN selects pgx, any other
// non-empty DSN is a sqlite file, empty keeps jobs in memory.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"                env:"DB_URL"`
	MaxConns        int32         `yaml:"max_conns"          env:"DB_MAX_CONNS"          env-default:"10"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"  env:"DB_MAX_CONN_LIFETIME"  env-default:"30m"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" env:"DB_MAX_CONN_IDLE_TIME" env-default:"5m"`
	DialTimeout     time.Duration `yaml:"dial_timeout"       env:"DB_DIAL_TIMEOUT"       env-default:"3s"`
}

// BrowserConfig holds the headless browser and platform endpoints.
type BrowserConfig struct {
	ControlURL   string   `yaml:"control_url"   env:"BROWSER_CONTROL_URL"`
	Bin          string   `yaml:"bin"           env:"BROWSER_BIN"`
	Headless     bool     `yaml:"headless"      env:"BROWSER_HEADLESS"      env-default:"true"`
	LoginURL     string   `yaml:"login_url"     env:"PLATFORM_LOGIN_URL"    env-default:"https://uzem.msu.edu.tr/login/index.php"`
	DashboardURL string   `yaml:"dashboard_url" env:"PLATFORM_DASHBOARD_URL" env-default:"https://uzem.msu.edu.tr/"`
	BlockedURLs  []string `yaml:"blocked_urls"  env:"BROWSER_BLOCKED_URLS"  env-separator:","`
	UserAgent    string   `yaml:"user_agent"    env:"BROWSER_USER_AGENT"`
}

// AuditConfig holds pipeline tuning.
type AuditConfig struct {
	Concurrency       int           `yaml:"concurrency"        env:"AUDIT_CONCURRENCY"        env-default:"6"`
	DefaultMinimum    int           `yaml:"default_minimum"    env:"AUDIT_DEFAULT_MINIMUM"    env-default:"42"`
	Workers           int           `yaml:"workers"            env:"AUDIT_WORKERS"            env-default:"2"`
	QueueSize         int           `yaml:"queue_size"         env:"AUDIT_QUEUE_SIZE"         env-default:"32"`
	JobTimeout        time.Duration `yaml:"job_timeout"        env:"AUDIT_JOB_TIMEOUT"        env-default:"2h"`
	SessionTimeout    time.Duration `yaml:"session_timeout"    env:"AUDIT_SESSION_TIMEOUT"    env-default:"60s"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout" env:"AUDIT_NAVIGATION_TIMEOUT" env-default:"60s"`
	BatchTimeout      time.Duration `yaml:"batch_timeout"      env:"AUDIT_BATCH_TIMEOUT"      env-default:"180s"`
	ProgressInterval  time.Duration `yaml:"progress_interval"  env:"AUDIT_PROGRESS_INTERVAL"  env-default:"1s"`
	ProgressMinDelta  int           `yaml:"progress_min_delta" env:"AUDIT_PROGRESS_MIN_DELTA" env-default:"5"`
	IncludeVideo      bool          `yaml:"include_video"      env:"AUDIT_INCLUDE_VIDEO"      env-default:"true"`
}

// LevelsConfig is the level policy: which proficiency levels are audited per language.
type LevelsConfig struct {
	Default     []string            `yaml:"default"      env:"LEVELS_DEFAULT" env-separator:","`
	PerLanguage map[string][]string `yaml:"per_language"`
}

// ReportConfig holds report output settings.
type ReportConfig struct {
	OutputDir string `yaml:"output_dir" env:"REPORT_OUTPUT_DIR" env-default:"./output"`
	Naming    string `yaml:"naming"     env:"REPORT_NAMING"     env-default:"job_id"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"text"`
}

// LoadConfig reads configuration from a YAML file and environment variables.
// Priority: ENV > YAML > defaults. The file path comes from CONFIG_PATH (fallback
// "./config.yaml"); a missing fallback file means ENV + defaults only.
func LoadConfig() (*Config, error) {
	var cfg Config

	path := os.Getenv("CONFIG_PATH")
	explicitPath := path != ""
	if !explicitPath {
		path = "./config.yaml"
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else if explicitPath {
		return nil, fmt.Errorf("config: file %s: %w", path, err)
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: read env: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if len(c.Levels.Default) == 0 {
		for _, lv := range constants.DefaultAllowedLevels {
			c.Levels.Default = append(c.Levels.Default, string(lv))
		}
	}
	if c.Levels.PerLanguage == nil {
		c.Levels.PerLanguage = map[string][]string{
			"İngilizce": {"A1", "A2", "B1", "B2", "C1"},
		}
	}
	if len(c.Browser.BlockedURLs) == 0 {
		c.Browser.BlockedURLs = DefaultBlockedURLs()
	}
}

// DefaultBlockedURLs strips images, media, fonts, styles and trackers from the session.
func DefaultBlockedURLs() []string {
	return []string{
		"*.png", "*.jpg", "*.jpeg", "*.gif", "*.webp", "*.svg", "*.ico",
		"*.mp4", "*.webm", "*.mp3", "*.wav", "*.ogg",
		"*.woff", "*.woff2", "*.ttf", "*.otf",
		"*.css",
		"*googletagmanager*", "*google-analytics*", "*doubleclick*",
		"*facebook*", "*hotjar*", "*sentry*", "*clarity*", "*newrelic*", "*datadoghq*",
		"*gravatar*", "*youtube*", "*vimeo*",
	}
}

// Validate enforces the business rules cleanenv tags cannot express.
func (c *Config) Validate() error {
	v := NewValidator().
		Field("audit.concurrency", c.Audit.Concurrency, Positive).
		Field("audit.workers", c.Audit.Workers, Positive).
		Field("audit.default_minimum", c.Audit.DefaultMinimum, NonNegative).
		Field("browser.login_url", c.Browser.LoginURL, Required).
		Field("levels.default", c.Levels.Default, LevelCodes).
		Field("report.naming", c.Report.Naming, OneOf("job_id", "timestamp"))
	for lang, raw := range c.Levels.PerLanguage {
		v.Field("levels.per_language["+lang+"]", raw, LevelCodes)
	}
	return v.Err()
}
