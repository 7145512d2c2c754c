package window

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mijorus/collector/engine/drop"
	"github.com/mijorus/collector/engine/remote"
	"github.com/mijorus/collector/engine/scratch"
	"github.com/mijorus/collector/pkg/config"
)

type fakeResolver struct {
	mu     sync.Mutex
	images map[string][]byte
	calls  int
}

func (f *fakeResolver) IsImageLink(_ context.Context, url string) (bool, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	_, ok := f.images[url]
	return ok, url, nil
}

func (f *fakeResolver) Fetch(_ context.Context, url string, dir *scratch.Dir) (*remote.Download, error) {
	f.mu.Lock()
	body, ok := f.images[url]
	f.mu.Unlock()
	if !ok {
		return nil, errors.New("not found")
	}
	path := dir.Join(uuid.NewString() + ".download")
	if err := afero.WriteFile(dir.Fs(), path, body, 0o644); err != nil {
		return nil, err
	}
	return &remote.Download{TempPath: path, Filename: filepath.Base(url), Size: int64(len(body))}, nil
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{R: uint8(x * 3), G: uint8(y * 5), B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newWindow(t *testing.T, s Settings, r remote.Resolver) *Window {
	t.Helper()
	w, err := New(t.Context(), Options{
		Index:    1,
		CacheDir: t.TempDir(),
		Fs:       afero.NewOsFs(),
		Settings: s,
		Resolver: r,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close(context.Background()) })
	return w
}

func TestSettingsFromConfig(t *testing.T) {
	t.Run("Should copy drop switches from config", func(t *testing.T) {
		cfg := config.Default()
		cfg.Drops.CollectTextToCSV = true
		cfg.Drops.DownloadImages = false
		s := SettingsFromConfig(cfg)
		assert.True(t, s.CollectTextToCSV)
		assert.False(t, s.DownloadImages)
		assert.Equal(t, cfg.Drops.GoogleImagesSupport, s.GoogleImagesSupport)
	})
	t.Run("Should fall back to defaults for nil config", func(t *testing.T) {
		s := SettingsFromConfig(nil)
		assert.Equal(t, config.Default().Drops.DownloadImages, s.DownloadImages)
	})
}

func TestWindow_New(t *testing.T) {
	t.Run("Should create a scratch dir named after the index", func(t *testing.T) {
		w := newWindow(t, Settings{}, nil)
		assert.Equal(t, "window_1", filepath.Base(w.Scratch().Path()))
		info, err := os.Stat(w.Scratch().Path())
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})
}

func TestWindow_Add(t *testing.T) {
	t.Run("Should keep going when one payload fails", func(t *testing.T) {
		w := newWindow(t, Settings{}, nil)
		src := filepath.Join(t.TempDir(), "notes.md")
		require.NoError(t, os.WriteFile(src, []byte("# notes"), 0o644))

		res, err := w.Add(t.Context(),
			drop.FromText("first"),
			drop.FromFile(filepath.Join(t.TempDir(), "missing.txt")),
			drop.FromFile(src),
		)
		require.NoError(t, err)
		assert.Len(t, res.Added, 2)
		require.Len(t, res.Failed, 1)
		assert.Equal(t, 1, res.Failed[0].Index)
		assert.Len(t, w.Items(), 2)
		assert.Equal(t, src, w.Items()[1].Path())
	})

	t.Run("Should aggregate plain text into a single collector entry", func(t *testing.T) {
		w := newWindow(t, Settings{CollectTextToCSV: true}, nil)
		res, err := w.Add(t.Context(), drop.FromText("hello world"), drop.FromText("hello world"))
		require.NoError(t, err)
		assert.Equal(t, 2, res.Collected)
		require.Len(t, w.Items(), 1)

		entry := w.Items()[0]
		assert.True(t, entry.IsCollectorEntry())
		assert.Equal(t, drop.PreviewSymbolic{Name: drop.IconNotepad}, entry.Preview())
		rows, err := w.Collector().Rows()
		require.NoError(t, err)
		assert.Equal(t, []string{"hello world", "hello world"}, rows)
	})

	t.Run("Should not collect links", func(t *testing.T) {
		w := newWindow(t, Settings{CollectTextToCSV: true}, nil)
		_, err := w.Add(t.Context(), drop.FromText("https://example.com/page"))
		require.NoError(t, err)
		require.Len(t, w.Items(), 1)
		assert.False(t, w.Items()[0].IsCollectorEntry())
		assert.Nil(t, w.Collector())
	})

	t.Run("Should grow total size as text is collected", func(t *testing.T) {
		w := newWindow(t, Settings{CollectTextToCSV: true}, nil)
		_, err := w.Add(t.Context(), drop.FromText("one"))
		require.NoError(t, err)
		before := w.TotalSize()
		_, err = w.Add(t.Context(), drop.FromText("two"))
		require.NoError(t, err)
		assert.Greater(t, w.TotalSize(), before)
	})

	t.Run("Should apply updated settings to later drops", func(t *testing.T) {
		w := newWindow(t, Settings{}, nil)
		_, err := w.Add(t.Context(), drop.FromText("kept as file"))
		require.NoError(t, err)
		w.UpdateSettings(Settings{CollectTextToCSV: true})
		res, err := w.Add(t.Context(), drop.FromText("collected"))
		require.NoError(t, err)
		assert.Equal(t, 1, res.Collected)
		assert.Len(t, w.Items(), 2)
	})

	t.Run("Should fail once closed", func(t *testing.T) {
		w := newWindow(t, Settings{}, nil)
		require.NoError(t, w.Close(t.Context()))
		_, err := w.Add(t.Context(), drop.FromText("late"))
		assert.Error(t, err)
	})
}

func TestWindow_ResolvePending(t *testing.T) {
	t.Run("Should resolve links concurrently and report transitions", func(t *testing.T) {
		r := &fakeResolver{images: map[string][]byte{
			"https://img.example/a.png": pngBytes(t, 40, 30),
			"https://img.example/b.png": pngBytes(t, 20, 20),
		}}
		w := newWindow(t, Settings{Settings: drop.Settings{DownloadImages: true}}, r)

		res, err := w.Add(t.Context(),
			drop.FromText("https://img.example/a.png"),
			drop.FromText("https://img.example/b.png"),
			drop.FromText("https://example.com/article"),
		)
		require.NoError(t, err)
		require.Len(t, res.Events, 3)
		assert.Equal(t, 3, r.calls)

		states := map[string]drop.State{}
		for _, ev := range res.Events {
			assert.Equal(t, drop.StatePending, ev.From)
			states[ev.ItemID] = ev.To
		}
		items := w.Items()
		assert.Equal(t, drop.StateResolved, states[items[0].ID()])
		assert.Equal(t, drop.StateResolved, states[items[1].ID()])
		assert.Equal(t, drop.StateUnresolved, states[items[2].ID()])
		assert.Equal(t, "a.png", filepath.Base(items[0].Path()))
		assert.Equal(t, "b.png", filepath.Base(items[1].Path()))

		for range 3 {
			ev := <-w.Events()
			assert.NotEmpty(t, ev.ItemID)
		}
	})

	t.Run("Should give distinct names to same-named downloads", func(t *testing.T) {
		r := &fakeResolver{images: map[string][]byte{
			"https://one.example/cat.png": pngBytes(t, 10, 10),
			"https://two.example/cat.png": pngBytes(t, 12, 12),
		}}
		w := newWindow(t, Settings{Settings: drop.Settings{DownloadImages: true}}, r)
		_, err := w.Add(t.Context(),
			drop.FromText("https://one.example/cat.png"),
			drop.FromText("https://two.example/cat.png"),
		)
		require.NoError(t, err)
		items := w.Items()
		require.Len(t, items, 2)
		assert.NotEqual(t, items[0].Path(), items[1].Path())
		for _, it := range items {
			assert.Equal(t, drop.StateResolved, it.State())
			assert.True(t, strings.HasPrefix(filepath.Base(it.Path()), "cat"))
		}
	})

	t.Run("Should leave links unresolved without a resolver", func(t *testing.T) {
		w := newWindow(t, Settings{Settings: drop.Settings{DownloadImages: true}}, nil)
		res, err := w.Add(t.Context(), drop.FromText("https://img.example/a.png"))
		require.NoError(t, err)
		require.Len(t, res.Events, 1)
		assert.Equal(t, drop.StateUnresolved, res.Events[0].To)
	})

	t.Run("Should do nothing when no item is pending", func(t *testing.T) {
		w := newWindow(t, Settings{}, nil)
		events, err := w.ResolvePending(t.Context())
		require.NoError(t, err)
		assert.Empty(t, events)
	})
}

func TestWindow_Remove(t *testing.T) {
	t.Run("Should delete scratch files but keep referenced files", func(t *testing.T) {
		w := newWindow(t, Settings{}, nil)
		src := filepath.Join(t.TempDir(), "keep.txt")
		require.NoError(t, os.WriteFile(src, []byte("keep"), 0o644))
		_, err := w.Add(t.Context(), drop.FromText("scratch"), drop.FromFile(src))
		require.NoError(t, err)
		items := w.Items()

		require.NoError(t, w.Remove(t.Context(), items[0].ID()))
		require.NoError(t, w.Remove(t.Context(), items[1].ID()))
		assert.Empty(t, w.Items())
		assert.NoFileExists(t, items[0].Path())
		assert.FileExists(t, src)
	})

	t.Run("Should clear the collector with its entry", func(t *testing.T) {
		w := newWindow(t, Settings{CollectTextToCSV: true}, nil)
		_, err := w.Add(t.Context(), drop.FromText("row"))
		require.NoError(t, err)
		csvPath := w.Collector().Path()
		require.NoError(t, w.Remove(t.Context(), w.Items()[0].ID()))
		assert.Nil(t, w.Collector())
		assert.NoFileExists(t, csvPath)
	})

	t.Run("Should report unknown IDs", func(t *testing.T) {
		w := newWindow(t, Settings{}, nil)
		err := w.Remove(t.Context(), "nope")
		assert.ErrorIs(t, err, ErrItemNotFound)
	})
}

func TestWindow_ResetAndClose(t *testing.T) {
	t.Run("Should purge scratch on reset", func(t *testing.T) {
		w := newWindow(t, Settings{}, nil)
		_, err := w.Add(t.Context(), drop.FromText("temp"))
		require.NoError(t, err)
		path := w.Items()[0].Path()
		require.NoError(t, w.Reset(t.Context()))
		assert.Empty(t, w.Items())
		assert.NoFileExists(t, path)
		assert.DirExists(t, w.Scratch().Path())
	})

	t.Run("Should remove scratch and close events on close", func(t *testing.T) {
		w := newWindow(t, Settings{}, nil)
		require.NoError(t, w.Close(t.Context()))
		assert.NoDirExists(t, w.Scratch().Path())
		_, open := <-w.Events()
		assert.False(t, open)
		require.NoError(t, w.Close(t.Context()))
	})
}

func TestWindow_Export(t *testing.T) {
	t.Run("Should copy every item and avoid collisions", func(t *testing.T) {
		w := newWindow(t, Settings{}, nil)
		src := filepath.Join(t.TempDir(), "report.txt")
		require.NoError(t, os.WriteFile(src, []byte("report"), 0o644))
		_, err := w.Add(t.Context(), drop.FromText("note"), drop.FromFile(src))
		require.NoError(t, err)

		dest := filepath.Join(t.TempDir(), "out")
		require.NoError(t, os.MkdirAll(dest, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dest, "report.txt"), []byte("old"), 0o644))

		written, err := w.Export(t.Context(), dest)
		require.NoError(t, err)
		require.Len(t, written, 2)
		assert.Equal(t, filepath.Join(dest, "collected_text_1.txt"), written[0])
		assert.Equal(t, filepath.Join(dest, "report_1.txt"), written[1])

		data, err := os.ReadFile(written[1])
		require.NoError(t, err)
		assert.Equal(t, "report", string(data))
		old, err := os.ReadFile(filepath.Join(dest, "report.txt"))
		require.NoError(t, err)
		assert.Equal(t, "old", string(old))
	})

	t.Run("Should refuse in-memory scratch", func(t *testing.T) {
		w, err := New(t.Context(), Options{Index: 2, CacheDir: "/cache", Fs: afero.NewMemMapFs()})
		require.NoError(t, err)
		_, err = w.Export(t.Context(), t.TempDir())
		assert.Error(t, err)
	})
}
