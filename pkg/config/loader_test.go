package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSource struct {
	data       map[string]any
	sourceType SourceType
}

func (m *mockSource) Load() (map[string]any, error)          { return m.data, nil }
func (m *mockSource) Watch(_ context.Context, _ func()) error { return nil }
func (m *mockSource) Type() SourceType                        { return m.sourceType }
func (m *mockSource) Close() error                            { return nil }

func environ(vars ...string) func() []string {
	return func() []string { return vars }
}

func TestLoader_Load(t *testing.T) {
	t.Run("Should load default configuration when no sources provided", func(t *testing.T) {
		cfg, err := newLoader(environ()).Load(t.Context())

		require.NoError(t, err)
		assert.True(t, cfg.Drops.DownloadImages)
		assert.False(t, cfg.Drops.GoogleImagesSupport)
		assert.False(t, cfg.Drops.CollectTextToCSV)
		assert.Equal(t, "total", cfg.Drops.SizeDisplay)
		assert.Equal(t, int64(50*1024*1024), cfg.Limits.PreviewMaxBytes)
		assert.Equal(t, int64(25*1024*1024), cfg.Limits.LinkMaxBytes)
		assert.Equal(t, int64(100*1024*1024), cfg.Limits.DownloadMaxBytes)
		assert.Equal(t, 200, cfg.Limits.PreviewSide)
		assert.Equal(t, 30*time.Second, cfg.Limits.FetchTimeout)
		assert.True(t, filepath.IsAbs(cfg.Storage.CacheDir))
	})

	t.Run("Should apply mapped environment variables", func(t *testing.T) {
		l := newLoader(environ(
			"COLLECTOR_COLLECT_TEXT_TO_CSV=true",
			"COLLECTOR_FETCH_TIMEOUT=5s",
			"COLLECTOR_UNKNOWN_KEY=ignored",
		))

		cfg, err := l.Load(t.Context())

		require.NoError(t, err)
		assert.True(t, cfg.Drops.CollectTextToCSV)
		assert.Equal(t, 5*time.Second, cfg.Limits.FetchTimeout)
		assert.Equal(t, SourceEnv, l.GetSource("drops.collect_text_to_csv"))
		assert.Equal(t, SourceDefault, l.GetSource("drops.download_images"))
	})

	t.Run("Should let environment override YAML and CLI override environment", func(t *testing.T) {
		yamlSource := &mockSource{
			sourceType: SourceYAML,
			data: map[string]any{
				"drops": map[string]any{"size_display": "per-item", "google_images_support": true},
			},
		}
		cliSource := &mockSource{
			sourceType: SourceCLI,
			data:       map[string]any{"drops": map[string]any{"size_display": "hidden"}},
		}
		l := newLoader(environ("COLLECTOR_SIZE_DISPLAY=total"))

		cfg, err := l.Load(t.Context(), cliSource, yamlSource)

		require.NoError(t, err)
		assert.Equal(t, "hidden", cfg.Drops.SizeDisplay)
		assert.True(t, cfg.Drops.GoogleImagesSupport)
		assert.Equal(t, SourceCLI, l.GetSource("drops.size_display"))
		assert.Equal(t, SourceYAML, l.GetSource("drops.google_images_support"))
	})

	t.Run("Should parse durations with day units", func(t *testing.T) {
		cfg, err := newLoader(environ("COLLECTOR_VERDICT_TTL=1d12h")).Load(t.Context())

		require.NoError(t, err)
		assert.Equal(t, 36*time.Hour, cfg.Limits.VerdictTTL)
	})

	t.Run("Should reject values outside the allowed set", func(t *testing.T) {
		_, err := newLoader(environ("COLLECTOR_SIZE_DISPLAY=huge")).Load(t.Context())

		require.Error(t, err)
		assert.Contains(t, err.Error(), "validation failed")
	})

	t.Run("Should reject a relative cache directory", func(t *testing.T) {
		_, err := newLoader(environ("COLLECTOR_CACHE_DIR=relative/dir")).Load(t.Context())

		require.ErrorContains(t, err, "must be absolute")
	})

	t.Run("Should reject a download ceiling below the link ceiling", func(t *testing.T) {
		_, err := newLoader(environ("COLLECTOR_DOWNLOAD_MAX_BYTES=1024")).Load(t.Context())

		require.ErrorContains(t, err, "download_max_bytes")
	})
}

func TestYAMLProvider(t *testing.T) {
	t.Run("Should return an empty layer when the file is missing", func(t *testing.T) {
		data, err := NewYAMLProvider(filepath.Join(t.TempDir(), "missing.yaml")).Load()

		require.NoError(t, err)
		assert.Empty(t, data)
	})

	t.Run("Should drop null values", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "collector.yaml")
		require.NoError(t, os.WriteFile(path, []byte("drops:\n  download_images: false\n  size_display: ~\n"), 0o600))

		data, err := NewYAMLProvider(path).Load()

		require.NoError(t, err)
		assert.Equal(t, map[string]any{"drops": map[string]any{"download_images": false}}, data)
	})
}

func TestCLIProvider(t *testing.T) {
	t.Run("Should map known flags and ignore the rest", func(t *testing.T) {
		data, err := NewCLIProvider(map[string]any{
			"collect-text": true,
			"export":       "/tmp/out",
		}).Load()

		require.NoError(t, err)
		assert.Equal(t, map[string]any{"drops": map[string]any{"collect_text_to_csv": true}}, data)
	})
}

func TestGenerateEnvMappings(t *testing.T) {
	t.Run("Should derive paths from nested struct tags", func(t *testing.T) {
		mappings := GenerateEnvMappings()
		byEnv := make(map[string]string)
		for _, m := range mappings {
			byEnv[m.EnvVar] = m.ConfigPath
		}

		assert.Equal(t, "drops.download_images", byEnv["COLLECTOR_DOWNLOAD_IMAGES"])
		assert.Equal(t, "storage.cache_dir", byEnv["COLLECTOR_CACHE_DIR"])
		assert.Equal(t, "limits.fetch_timeout", byEnv["COLLECTOR_FETCH_TIMEOUT"])
	})
}
