// Package drop normalizes dropped payloads into items stored in the window's
// scratch directory.
package drop

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/mijorus/collector/engine/classify"
	"github.com/mijorus/collector/engine/remote"
	"github.com/mijorus/collector/engine/scratch"
	"github.com/mijorus/collector/pkg/logger"
)

const (
	textPrefix  = "collected_text_"
	linkPrefix  = "collected_link_"
	imagePrefix = "collected_image_"
	textExt     = "txt"
	imageExt    = "png"
	filePerm    = 0o644

	// LabelMaxRunes is the longest text label shown before truncation.
	LabelMaxRunes = 25
	labelEllipsis = "..."

	directoryType = "inode/directory"

	maxPlaceAttempts = 16
)

// Kind is the payload variant an item was built from.
type Kind int

const (
	KindFile Kind = iota + 1
	KindText
	KindImageBuffer
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindText:
		return "text"
	case KindImageBuffer:
		return "image"
	}
	return "unknown"
}

// State is the resolution state of an item.
type State int

const (
	StateCreated State = iota
	StatePending
	StateResolved
	StateUnresolved
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StatePending:
		return "pending"
	case StateResolved:
		return "resolved"
	case StateUnresolved:
		return "unresolved"
	}
	return "unknown"
}

// Transition is the outcome of CompleteLoad.
type Transition struct {
	From    State
	To      State
	Changed bool
}

// Settings is the snapshot of user switches an item consults.
type Settings struct {
	DownloadImages      bool
	GoogleImagesSupport bool
}

// Previewer renders thumbnails for image files.
type Previewer interface {
	Generate(ctx context.Context, path string) (string, error)
}

// Options carries the collaborators and flags of one item.
type Options struct {
	Scratch        *scratch.Dir
	Previewer      Previewer
	Resolver       remote.Resolver
	Settings       Settings
	DynamicSize    bool
	ClipboardEntry bool
	CollectorEntry bool
}

// Item is one normalized drop. An Item is owned by a single goroutine at a
// time and is not safe for concurrent use.
type Item struct {
	id             string
	kind           Kind
	path           string
	label          string
	contentType    string
	preview        Preview
	state          State
	text           bool
	size           int64
	dynamicSize    bool
	clipboard      bool
	collectorEntry bool
	scratch        *scratch.Dir
	fs             afero.Fs
	previewer      Previewer
	resolver       remote.Resolver
	settings       Settings
}

// New builds an item from payload. Text and image buffers are written into
// the scratch directory; file references are used in place.
func New(ctx context.Context, payload Payload, opts Options) (*Item, error) {
	if opts.Scratch == nil {
		return nil, fmt.Errorf("drop: scratch dir is required")
	}
	it := &Item{
		id:             uuid.NewString(),
		state:          StateCreated,
		dynamicSize:    opts.DynamicSize,
		clipboard:      opts.ClipboardEntry,
		collectorEntry: opts.CollectorEntry,
		scratch:        opts.Scratch,
		fs:             opts.Scratch.Fs(),
		previewer:      opts.Previewer,
		resolver:       opts.Resolver,
		settings:       opts.Settings,
	}
	var err error
	switch payload.kind {
	case payloadFile:
		it.kind = KindFile
		err = it.loadFile(ctx, payload.path)
	case payloadURI, payloadText:
		it.kind = KindText
		s, _ := payload.Text()
		err = it.loadText(s)
	case payloadImage, payloadImageBytes:
		it.kind = KindImageBuffer
		err = it.loadImage(ctx, payload)
	default:
		err = &UnsupportedItemError{Payload: payload.describe(), Reason: "empty payload"}
	}
	if err != nil {
		return nil, err
	}
	if it.clipboard {
		it.preview = PreviewSymbolic{Name: IconNotepad}
	}
	logger.FromContext(ctx).Debug("Created item",
		"id", it.id, "kind", it.kind, "path", it.path, "state", it.state)
	return it, nil
}

func (it *Item) loadFile(ctx context.Context, path string) error {
	if path == "" {
		return &UnsupportedItemError{Payload: "file", Reason: "no local path"}
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return &UnsupportedItemError{Payload: "file", Reason: err.Error()}
	}
	info, err := it.fs.Stat(abs)
	if err != nil {
		return &UnsupportedItemError{Payload: "file", Reason: err.Error()}
	}
	it.path = abs
	it.label = filepath.Base(abs)
	it.size = info.Size()
	if info.IsDir() {
		it.contentType = directoryType
		it.preview = PreviewGenericIcon{ContentType: directoryType}
		it.state = StateResolved
		return nil
	}
	it.contentType, err = classify.FileFS(it.fs, abs)
	if err != nil {
		return &UnsupportedItemError{Payload: "file", Reason: err.Error()}
	}
	it.text = classify.IsText(it.contentType)
	it.preview = it.previewFor(ctx, abs, it.contentType)
	it.state = StateResolved
	return nil
}

// previewFor returns a thumbnail for supported images and the generic icon of
// the content type otherwise.
func (it *Item) previewFor(ctx context.Context, path, contentType string) Preview {
	if it.previewer == nil || !classify.IsImage(contentType) {
		return PreviewGenericIcon{ContentType: contentType}
	}
	thumb, err := it.previewer.Generate(ctx, path)
	if err != nil {
		logger.FromContext(ctx).Debug("Preview unavailable", "path", path, "error", err)
		return PreviewGenericIcon{ContentType: contentType}
	}
	return PreviewThumbnail{Path: thumb}
}

func (it *Item) loadText(s string) error {
	link := IsLink(s)
	prefix := textPrefix
	if link {
		prefix = linkPrefix
	}
	path, err := it.writeScratch(prefix, textExt, []byte(s))
	if err != nil {
		return err
	}
	it.path = path
	it.label = Label(s)
	it.size = int64(len(s))
	it.text = true
	it.contentType = "text/plain"
	if link {
		it.preview = PreviewSymbolic{Name: IconLink}
		it.state = StatePending
		return nil
	}
	it.preview = PreviewSymbolic{Name: IconText}
	it.state = StateResolved
	return nil
}

func (it *Item) loadImage(ctx context.Context, payload Payload) error {
	img := payload.img
	if payload.kind == payloadImageBytes {
		if len(payload.bytes) == 0 {
			return &UnsupportedItemError{Payload: "image", Reason: "empty buffer"}
		}
		decoded, _, err := image.Decode(bytes.NewReader(payload.bytes))
		if err != nil {
			return &UnsupportedItemError{Payload: "image", Reason: err.Error()}
		}
		img = decoded
	}
	if img == nil || img.Bounds().Empty() {
		return &UnsupportedItemError{Payload: "image", Reason: "empty image"}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return &UnsupportedItemError{Payload: "image", Reason: err.Error()}
	}
	path, err := it.writeScratch(imagePrefix, imageExt, buf.Bytes())
	if err != nil {
		return err
	}
	return it.loadFile(ctx, path)
}

// writeScratch allocates {prefix}N.{ext} and writes data to it.
func (it *Item) writeScratch(prefix, ext string, data []byte) (string, error) {
	path, err := it.scratch.Allocate(prefix, ext)
	if err != nil {
		return "", &StorageError{Op: "allocate", Path: it.scratch.Path(), Cause: err}
	}
	f, err := it.fs.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, filePerm)
	if err != nil {
		return "", &StorageError{Op: "create", Path: path, Cause: err}
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		_ = it.fs.Remove(path)
		return "", &StorageError{Op: "write", Path: path, Cause: err}
	}
	if err := f.Close(); err != nil {
		_ = it.fs.Remove(path)
		return "", &StorageError{Op: "write", Path: path, Cause: err}
	}
	return path, nil
}

// Label shortens s to LabelMaxRunes runes followed by an ellipsis.
func Label(s string) string {
	if utf8.RuneCountInString(s) <= LabelMaxRunes {
		return s
	}
	return string([]rune(s)[:LabelMaxRunes]) + labelEllipsis
}

func (it *Item) ID() string          { return it.id }
func (it *Item) Kind() Kind          { return it.kind }
func (it *Item) Path() string        { return it.path }
func (it *Item) Label() string       { return it.label }
func (it *Item) ContentType() string { return it.contentType }
func (it *Item) Preview() Preview    { return it.preview }
func (it *Item) State() State        { return it.state }

// Pending reports whether the item is a link awaiting CompleteLoad.
func (it *Item) Pending() bool { return it.state == StatePending }

// IsText reports whether the stored file holds text.
func (it *Item) IsText() bool { return it.text }

// IsCollectorEntry reports whether the item is the aggregate of collected text.
func (it *Item) IsCollectorEntry() bool { return it.collectorEntry }

// Size returns the cached size, re-reading it from the filesystem when the
// item has a dynamic size or force is set.
func (it *Item) Size(force bool) int64 {
	if !it.dynamicSize && !force {
		return it.size
	}
	info, err := it.fs.Stat(it.path)
	if err != nil {
		return it.size
	}
	it.size = info.Size()
	return it.size
}

// Remove deletes the backing file when it lives in the scratch directory.
// Referenced files are never deleted.
func (it *Item) Remove() error {
	if !it.scratch.Contains(it.path) {
		return nil
	}
	if err := it.fs.Remove(it.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &StorageError{Op: "remove", Path: it.path, Cause: err}
	}
	return nil
}

// CompleteLoad resolves a pending link. When the link is a downloadable image
// the item becomes that image; otherwise it stays a plain link. Resolution
// failures are logged and leave the item unresolved; only context errors are
// returned. Items that are not pending are left untouched.
func (it *Item) CompleteLoad(ctx context.Context) (Transition, error) {
	if it.state != StatePending {
		return Transition{From: it.state, To: it.state}, nil
	}
	log := logger.FromContext(ctx).With("id", it.id)
	unresolved := func(reason string, err error) (Transition, error) {
		it.state = StateUnresolved
		if err != nil {
			log.Warn("Link left unresolved", "reason", reason, "error", err)
		} else {
			log.Debug("Link left unresolved", "reason", reason)
		}
		return Transition{From: StatePending, To: StateUnresolved, Changed: true}, ctx.Err()
	}
	data, err := afero.ReadFile(it.fs, it.path)
	if err != nil {
		return unresolved("read", &StorageError{Op: "read", Path: it.path, Cause: err})
	}
	url := strings.TrimSpace(string(data))
	if it.settings.GoogleImagesSupport {
		url = remote.UnwrapImageSearch(url)
	}
	if it.resolver == nil {
		return unresolved("no resolver", nil)
	}
	isImage, resolved, err := it.resolver.IsImageLink(ctx, url)
	if err != nil {
		return unresolved("check", err)
	}
	if !isImage {
		return unresolved("not an image", nil)
	}
	if !it.settings.DownloadImages {
		return unresolved("downloads disabled", nil)
	}
	dl, err := it.resolver.Fetch(ctx, resolved, it.scratch)
	if err != nil {
		return unresolved("fetch", err)
	}
	contentType, err := classify.FileFS(it.fs, dl.TempPath)
	if err != nil || !classify.IsImage(contentType) {
		_ = it.fs.Remove(dl.TempPath)
		if err == nil {
			err = fmt.Errorf("downloaded content is %s", contentType)
		}
		return unresolved("content", err)
	}
	final, err := it.placeDownload(dl, contentType)
	if err != nil {
		_ = it.fs.Remove(dl.TempPath)
		return unresolved("store", err)
	}
	linkFile := it.path
	it.path = final
	it.label = filepath.Base(final)
	it.contentType = contentType
	it.text = false
	it.size = dl.Size
	if info, err := it.fs.Stat(final); err == nil {
		it.size = info.Size()
	}
	it.preview = it.previewFor(ctx, final, contentType)
	if it.clipboard {
		it.preview = PreviewSymbolic{Name: IconNotepad}
	}
	it.state = StateResolved
	if err := it.fs.Remove(linkFile); err != nil {
		log.Debug("Failed to remove link file", "path", linkFile, "error", err)
	}
	log.Info("Link resolved to image", "url", resolved, "path", final)
	return Transition{From: StatePending, To: StateResolved, Changed: true}, nil
}

// placeDownload moves a download to a collision-free name derived from its
// filename. The extension follows the sniffed content type.
func (it *Item) placeDownload(dl *remote.Download, contentType string) (string, error) {
	name := dl.Filename
	if name == "" {
		name = remote.DefaultFilename
	}
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	if sniffed, ok := classify.ImageExtension(contentType); ok && !sameImageExt(ext, sniffed) {
		ext = sniffed
	}
	target := it.scratch.Join(stem + "." + ext)
	for attempt := 0; ; attempt++ {
		err := reserve(it.fs, target)
		if err == nil {
			break
		}
		if !errors.Is(err, os.ErrExist) || attempt == maxPlaceAttempts {
			return "", &StorageError{Op: "create", Path: target, Cause: err}
		}
		target, err = it.scratch.Allocate(stem+"_", ext)
		if err != nil {
			return "", &StorageError{Op: "allocate", Path: it.scratch.Path(), Cause: err}
		}
	}
	if err := it.fs.Rename(dl.TempPath, target); err != nil {
		_ = it.fs.Remove(target)
		return "", &StorageError{Op: "rename", Path: target, Cause: err}
	}
	return target, nil
}

// reserve creates an empty placeholder so concurrent downloads never pick
// the same name.
func reserve(fs afero.Fs, path string) error {
	f, err := fs.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, filePerm)
	if err != nil {
		return err
	}
	return f.Close()
}

func sameImageExt(ext, sniffed string) bool {
	if ext == sniffed {
		return true
	}
	return sniffed == "jpg" && ext == "jpeg"
}
