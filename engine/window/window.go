// Package window holds the collection of items dropped into one window and the
// scratch directory backing it.
package window

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/spf13/afero"

	"github.com/mijorus/collector/engine/collector"
	"github.com/mijorus/collector/engine/drop"
	"github.com/mijorus/collector/engine/preview"
	"github.com/mijorus/collector/engine/remote"
	"github.com/mijorus/collector/engine/scratch"
	"github.com/mijorus/collector/pkg/config"
	"github.com/mijorus/collector/pkg/logger"
)

const eventBuffer = 256

// ErrItemNotFound is returned by Remove for unknown item IDs.
var ErrItemNotFound = errors.New("item not found")

// Settings is the snapshot of switches a window applies to new drops.
type Settings struct {
	drop.Settings
	CollectTextToCSV bool
}

// SettingsFromConfig extracts the drop switches from a configuration.
func SettingsFromConfig(cfg *config.Config) Settings {
	if cfg == nil {
		cfg = config.Default()
	}
	return Settings{
		Settings: drop.Settings{
			DownloadImages:      cfg.Drops.DownloadImages,
			GoogleImagesSupport: cfg.Drops.GoogleImagesSupport,
		},
		CollectTextToCSV: cfg.Drops.CollectTextToCSV,
	}
}

// Options configures a Window.
type Options struct {
	Index    int
	CacheDir string
	Fs       afero.Fs
	Settings Settings
	// Previewer defaults to a preview.Generator over the window scratch dir.
	Previewer drop.Previewer
	Preview   preview.Options
	// Resolver may be nil, in which case links are never resolved.
	Resolver remote.Resolver
	// MaxResolvers bounds concurrent link resolution. Zero means one task per
	// pending item.
	MaxResolvers int
}

// Event reports a state change of an item.
type Event struct {
	ItemID string
	From   drop.State
	To     drop.State
}

// Failure is a payload that could not be added.
type Failure struct {
	Index int
	Err   error
}

// BatchResult summarizes one Add call.
type BatchResult struct {
	Added     []*drop.Item
	Collected int
	Failed    []Failure
	Events    []Event
}

// Window owns the items of one window. Its methods are meant to be called
// from a single goroutine; only UpdateSettings may be called concurrently.
type Window struct {
	index        int
	scratch      *scratch.Dir
	previewer    drop.Previewer
	resolver     remote.Resolver
	maxResolvers int
	settings     atomic.Pointer[Settings]
	items        []*drop.Item
	collector    *collector.Collector
	events       chan Event
	closeOnce    sync.Once
	closed       bool
}

// New opens a window, purging any scratch content left by a previous window
// with the same index.
func New(ctx context.Context, opts Options) (*Window, error) {
	dir, err := scratch.New(opts.Fs, opts.CacheDir, opts.Index)
	if err != nil {
		return nil, err
	}
	previewer := opts.Previewer
	if previewer == nil {
		g, err := preview.New(dir, opts.Preview)
		if err != nil {
			return nil, err
		}
		previewer = g
	}
	w := &Window{
		index:        opts.Index,
		scratch:      dir,
		previewer:    previewer,
		resolver:     opts.Resolver,
		maxResolvers: opts.MaxResolvers,
		events:       make(chan Event, eventBuffer),
	}
	settings := opts.Settings
	w.settings.Store(&settings)
	logger.FromContext(ctx).Info("Window opened", "index", opts.Index, "scratch", dir.Path())
	return w, nil
}

// Index returns the window number.
func (w *Window) Index() int { return w.index }

// Scratch returns the scratch directory of the window.
func (w *Window) Scratch() *scratch.Dir { return w.scratch }

// Events delivers item state changes. The channel is closed by Close.
func (w *Window) Events() <-chan Event { return w.events }

// Settings returns the current settings snapshot.
func (w *Window) Settings() Settings { return *w.settings.Load() }

// UpdateSettings replaces the settings applied to subsequent drops.
func (w *Window) UpdateSettings(s Settings) {
	w.settings.Store(&s)
}

// Items returns the items in drop order.
func (w *Window) Items() []*drop.Item {
	out := make([]*drop.Item, len(w.items))
	copy(out, w.items)
	return out
}

// Collector returns the active text collector, if any.
func (w *Window) Collector() *collector.Collector { return w.collector }

// Add ingests payloads one by one. A payload that fails is recorded in the
// result and the rest of the batch continues. Pending links are resolved
// before returning. The error is non-nil only when ctx ends.
func (w *Window) Add(ctx context.Context, payloads ...drop.Payload) (BatchResult, error) {
	var result BatchResult
	if w.closed {
		return result, fmt.Errorf("window %d is closed", w.index)
	}
	log := logger.FromContext(ctx)
	settings := w.Settings()
	for i, payload := range payloads {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if settings.CollectTextToCSV && payload.IsPlainText() {
			text, _ := payload.Text()
			entry, err := w.collect(ctx, text, settings)
			if err != nil {
				log.Error("Failed to collect text", "index", i, "error", err)
				result.Failed = append(result.Failed, Failure{Index: i, Err: err})
				continue
			}
			if entry != nil {
				result.Added = append(result.Added, entry)
			}
			result.Collected++
			continue
		}
		item, err := drop.New(ctx, payload, w.itemOptions(settings))
		if err != nil {
			log.Error("Failed to add item", "index", i, "error", err)
			result.Failed = append(result.Failed, Failure{Index: i, Err: err})
			continue
		}
		w.items = append(w.items, item)
		result.Added = append(result.Added, item)
	}
	events, err := w.ResolvePending(ctx)
	result.Events = events
	return result, err
}

func (w *Window) itemOptions(settings Settings) drop.Options {
	return drop.Options{
		Scratch:   w.scratch,
		Previewer: w.previewer,
		Resolver:  w.resolver,
		Settings:  settings.Settings,
	}
}

// collect appends text to the collector, creating the collector and its
// aggregate item on first use. The aggregate item is returned when created.
func (w *Window) collect(ctx context.Context, text string, settings Settings) (*drop.Item, error) {
	if w.collector != nil {
		return nil, w.collector.Append(text)
	}
	c, err := collector.New(w.scratch)
	if err != nil {
		return nil, &drop.StorageError{Op: "collect", Path: w.scratch.Path(), Cause: err}
	}
	if err := c.Append(text); err != nil {
		_ = c.Clear()
		return nil, &drop.StorageError{Op: "collect", Path: c.Path(), Cause: err}
	}
	opts := w.itemOptions(settings)
	opts.ClipboardEntry = true
	opts.DynamicSize = true
	opts.CollectorEntry = true
	entry, err := drop.New(ctx, drop.FromFile(c.Path()), opts)
	if err != nil {
		_ = c.Clear()
		return nil, err
	}
	w.collector = c
	w.items = append(w.items, entry)
	return entry, nil
}

// TotalSize sums item sizes, re-reading the ones whose size can change.
func (w *Window) TotalSize() int64 {
	var total int64
	for _, it := range w.items {
		total += it.Size(it.IsCollectorEntry())
	}
	return total
}

// Remove deletes an item and its scratch file. Removing the aggregate entry
// clears the text collector.
func (w *Window) Remove(ctx context.Context, id string) error {
	for i, it := range w.items {
		if it.ID() != id {
			continue
		}
		if it.IsCollectorEntry() && w.collector != nil {
			if err := w.collector.Clear(); err != nil {
				return err
			}
			w.collector = nil
		} else if err := it.Remove(); err != nil {
			return err
		}
		w.items = append(w.items[:i], w.items[i+1:]...)
		logger.FromContext(ctx).Debug("Removed item", "id", id)
		return nil
	}
	return fmt.Errorf("%w: %s", ErrItemNotFound, id)
}

// Reset drops every item and purges the scratch directory.
func (w *Window) Reset(ctx context.Context) error {
	w.items = nil
	w.collector = nil
	if err := w.scratch.Purge(); err != nil {
		return err
	}
	logger.FromContext(ctx).Info("Window reset", "index", w.index)
	return nil
}

// Close removes the scratch directory and closes the event channel.
func (w *Window) Close(ctx context.Context) error {
	var err error
	w.closeOnce.Do(func() {
		w.closed = true
		w.items = nil
		w.collector = nil
		err = w.scratch.Remove()
		close(w.events)
		logger.FromContext(ctx).Info("Window closed", "index", w.index)
	})
	return err
}

func (w *Window) emit(ctx context.Context, ev Event) {
	if w.closed {
		return
	}
	select {
	case w.events <- ev:
	default:
		logger.FromContext(ctx).Warn("Event buffer full, dropping event", "id", ev.ItemID, "to", ev.To)
	}
}
