package config

import (
	"context"
	"os"
	"path/filepath"
	"time"
)

// Config is the complete configuration snapshot for the collector.
type Config struct {
	Drops   DropsConfig   `koanf:"drops"`
	Limits  LimitsConfig  `koanf:"limits"`
	Storage StorageConfig `koanf:"storage"`
	Runtime RuntimeConfig `koanf:"runtime"`
}

// DropsConfig holds the user-facing switches that change how drops are ingested.
type DropsConfig struct {
	DownloadImages      bool   `koanf:"download_images"       env:"COLLECTOR_DOWNLOAD_IMAGES"`
	GoogleImagesSupport bool   `koanf:"google_images_support" env:"COLLECTOR_GOOGLE_IMAGES_SUPPORT"`
	CollectTextToCSV    bool   `koanf:"collect_text_to_csv"   env:"COLLECTOR_COLLECT_TEXT_TO_CSV"`
	SizeDisplay         string `koanf:"size_display"          env:"COLLECTOR_SIZE_DISPLAY"          validate:"oneof=total per-item hidden"`
}

// LimitsConfig contains size and time ceilings for previews and remote links.
type LimitsConfig struct {
	PreviewMaxBytes  int64         `koanf:"preview_max_bytes"  env:"COLLECTOR_PREVIEW_MAX_BYTES"  validate:"min=1"`
	PreviewSide      int           `koanf:"preview_side"       env:"COLLECTOR_PREVIEW_SIDE"       validate:"min=16,max=1024"`
	LinkMaxBytes     int64         `koanf:"link_max_bytes"     env:"COLLECTOR_LINK_MAX_BYTES"     validate:"min=1"`
	DownloadMaxBytes int64         `koanf:"download_max_bytes" env:"COLLECTOR_DOWNLOAD_MAX_BYTES" validate:"min=1"`
	FetchTimeout     time.Duration `koanf:"fetch_timeout"      env:"COLLECTOR_FETCH_TIMEOUT"`
	VerdictTTL       time.Duration `koanf:"verdict_ttl"        env:"COLLECTOR_VERDICT_TTL"`
}

// StorageConfig locates the scratch area.
type StorageConfig struct {
	CacheDir string `koanf:"cache_dir" env:"COLLECTOR_CACHE_DIR" validate:"required"`
}

// RuntimeConfig contains process-level settings.
type RuntimeConfig struct {
	LogLevel  string `koanf:"log_level"  env:"COLLECTOR_LOG_LEVEL"  validate:"oneof=debug info warn error disabled"`
	LogJSON   bool   `koanf:"log_json"   env:"COLLECTOR_LOG_JSON"`
	LogSource bool   `koanf:"log_source" env:"COLLECTOR_LOG_SOURCE"`
}

// Service defines the configuration management service interface.
type Service interface {
	// Load loads configuration from the specified sources with precedence order.
	Load(ctx context.Context, sources ...Source) (*Config, error)
	// Validate checks if the configuration meets all validation requirements.
	Validate(config *Config) error
	// GetSource returns the source type that provided a configuration key.
	GetSource(key string) SourceType
}

// Source defines the interface for configuration sources.
type Source interface {
	// Load reads configuration from the source.
	Load() (map[string]any, error)
	// Watch monitors the source for changes.
	Watch(ctx context.Context, callback func()) error
	// Type returns the source type identifier.
	Type() SourceType
	// Close releases any resources held by the source.
	Close() error
}

// SourceType identifies the type of configuration source.
type SourceType string

const (
	SourceCLI     SourceType = "cli"
	SourceYAML    SourceType = "yaml"
	SourceEnv     SourceType = "env"
	SourceDefault SourceType = "default"
)

// Metadata contains metadata about configuration sources.
type Metadata struct {
	Sources  map[string]SourceType `json:"sources"`
	LoadedAt time.Time             `json:"loaded_at"`
}

const (
	defaultPreviewMaxBytes  = 50 * 1024 * 1024
	defaultLinkMaxBytes     = 25 * 1024 * 1024
	defaultDownloadMaxBytes = 100 * 1024 * 1024
	defaultPreviewSide      = 200
	defaultFetchTimeout     = 30 * time.Second
	defaultVerdictTTL       = 10 * time.Minute
)

// Default returns a Config populated with built-in defaults.
func Default() *Config {
	return &Config{
		Drops: DropsConfig{
			DownloadImages:      true,
			GoogleImagesSupport: false,
			CollectTextToCSV:    false,
			SizeDisplay:         "total",
		},
		Limits: LimitsConfig{
			PreviewMaxBytes:  defaultPreviewMaxBytes,
			PreviewSide:      defaultPreviewSide,
			LinkMaxBytes:     defaultLinkMaxBytes,
			DownloadMaxBytes: defaultDownloadMaxBytes,
			FetchTimeout:     defaultFetchTimeout,
			VerdictTTL:       defaultVerdictTTL,
		},
		Storage: StorageConfig{
			CacheDir: defaultCacheDir(),
		},
		Runtime: RuntimeConfig{
			LogLevel: "info",
		},
	}
}

func defaultCacheDir() string {
	base, err := os.UserCacheDir()
	if err != nil || base == "" {
		base = os.TempDir()
	}
	return filepath.Join(base, "collector")
}

// Load loads configuration using the default service and no extra sources.
func Load() (*Config, error) {
	return NewService().Load(context.Background())
}
