// Package remote decides whether a dropped link points at an image and
// downloads it into the scratch directory.
package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/mijorus/collector/engine/classify"
	"github.com/mijorus/collector/engine/scratch"
	"github.com/mijorus/collector/pkg/logger"
)

const (
	DefaultTimeout          = 30 * time.Second
	DefaultLinkMaxBytes     = 25 * 1024 * 1024
	DefaultDownloadMaxBytes = 100 * 1024 * 1024
	DefaultVerdictTTL       = 10 * time.Minute
	maxRedirects            = 5
	downloadExt             = ".download"
	filePerm                = 0o644
)

// Resolver checks links and downloads confirmed images.
type Resolver interface {
	// IsImageLink reports whether url serves a supported image, along with the
	// URL the check ended on after redirects.
	IsImageLink(ctx context.Context, url string) (bool, string, error)
	// Fetch downloads url into a temporary file inside dir.
	Fetch(ctx context.Context, url string, dir *scratch.Dir) (*Download, error)
}

// Download describes a fetched body stored under a random temporary name.
type Download struct {
	TempPath    string
	Filename    string
	ContentType string
	Size        int64
}

// Options configures an HTTPResolver. Zero values select the defaults.
// LinkMaxBytes bounds the advertised length of octet-stream links still trusted
// as images; DownloadMaxBytes bounds the body of a confirmed image.
type Options struct {
	Timeout          time.Duration
	LinkMaxBytes     int64
	DownloadMaxBytes int64
	VerdictTTL       time.Duration
	UserAgent        string
}

type verdict struct {
	image    bool
	resolved string
}

// HTTPResolver is the Resolver backed by resty.
type HTTPResolver struct {
	client      *resty.Client
	verdicts    *ristretto.Cache[string, verdict]
	timeout     time.Duration
	linkMax     int64
	downloadMax int64
	ttl         time.Duration
}

// NewHTTPResolver creates an HTTPResolver. Close releases its verdict cache.
func NewHTTPResolver(opts Options) (*HTTPResolver, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.LinkMaxBytes <= 0 {
		opts.LinkMaxBytes = DefaultLinkMaxBytes
	}
	if opts.DownloadMaxBytes <= 0 {
		opts.DownloadMaxBytes = DefaultDownloadMaxBytes
	}
	if opts.VerdictTTL <= 0 {
		opts.VerdictTTL = DefaultVerdictTTL
	}
	verdicts, err := ristretto.NewCache(&ristretto.Config[string, verdict]{
		NumCounters:        10_000,
		MaxCost:            1_000,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create verdict cache: %w", err)
	}
	client := resty.New().
		SetTimeout(opts.Timeout).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(maxRedirects))
	if opts.UserAgent != "" {
		client.SetHeader("User-Agent", opts.UserAgent)
	}
	return &HTTPResolver{
		client:      client,
		verdicts:    verdicts,
		timeout:     opts.Timeout,
		linkMax:     opts.LinkMaxBytes,
		downloadMax: opts.DownloadMaxBytes,
		ttl:         opts.VerdictTTL,
	}, nil
}

// Close releases the verdict cache.
func (r *HTTPResolver) Close() {
	r.verdicts.Close()
}

// IsImageLink issues a HEAD request and accepts supported image content types.
// Servers that answer application/octet-stream are trusted when the URL has an
// image extension and the advertised length is under the link ceiling.
func (r *HTTPResolver) IsImageLink(ctx context.Context, rawURL string) (bool, string, error) {
	if v, ok := r.verdicts.Get(rawURL); ok {
		return v.image, v.resolved, nil
	}
	resp, err := r.client.R().SetContext(ctx).Head(rawURL)
	if err != nil {
		return false, rawURL, newResolutionError("head", rawURL, err)
	}
	if !resp.IsSuccess() {
		return false, rawURL, newResolutionError("head", rawURL,
			fmt.Errorf("%w: %s", ErrUnexpectedStatus, statusText(resp.StatusCode())))
	}
	resolved := finalURL(resp, rawURL)
	contentType := classify.Normalize(resp.Header().Get("Content-Type"))
	isImage := classify.IsImage(contentType)
	if !isImage && contentType == classify.TypeOctetStream && hasImageExtension(resolved) {
		length, err := strconv.ParseInt(resp.Header().Get("Content-Length"), 10, 64)
		isImage = err == nil && length > 0 && length < r.linkMax
	}
	r.verdicts.SetWithTTL(rawURL, verdict{image: isImage, resolved: resolved}, 1, r.ttl)
	r.verdicts.Wait()
	logger.FromContext(ctx).Debug("Checked link", "url", rawURL, "content_type", contentType, "image", isImage)
	return isImage, resolved, nil
}

// Fetch streams the body of rawURL into {dir}/{uuid}.download, enforcing the
// download ceiling and timeout.
func (r *HTTPResolver) Fetch(ctx context.Context, rawURL string, dir *scratch.Dir) (*Download, error) {
	if dir == nil {
		return nil, newResolutionError("fetch", rawURL, fmt.Errorf("scratch dir is required"))
	}
	rctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	resp, err := r.client.R().SetContext(rctx).SetDoNotParseResponse(true).Get(rawURL)
	if err != nil {
		return nil, newResolutionError("fetch", rawURL, err)
	}
	body := resp.RawBody()
	if body == nil {
		return nil, newResolutionError("fetch", rawURL, fmt.Errorf("empty response body"))
	}
	defer body.Close()
	if !resp.IsSuccess() {
		return nil, newResolutionError("fetch", rawURL,
			fmt.Errorf("%w: %s", ErrUnexpectedStatus, statusText(resp.StatusCode())))
	}
	tempPath := dir.Join(uuid.NewString() + downloadExt)
	written, err := streamToFile(dir, tempPath, r.downloadMax, body)
	if err != nil {
		return nil, newResolutionError("fetch", rawURL, err)
	}
	download := &Download{
		TempPath:    tempPath,
		Filename:    filenameFor(resp.Header().Get("Content-Disposition"), finalURL(resp, rawURL)),
		ContentType: classify.Normalize(resp.Header().Get("Content-Type")),
		Size:        written,
	}
	logger.FromContext(ctx).Debug("Downloaded link", "url", rawURL, "bytes", written, "filename", download.Filename)
	return download, nil
}

func finalURL(resp *resty.Response, fallback string) string {
	if raw := resp.RawResponse; raw != nil && raw.Request != nil && raw.Request.URL != nil {
		return raw.Request.URL.String()
	}
	return fallback
}

func streamToFile(dir *scratch.Dir, path string, limit int64, r io.Reader) (int64, error) {
	fs := dir.Fs()
	f, err := fs.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, filePerm)
	if err != nil {
		return 0, fmt.Errorf("temp file create failed: %w", err)
	}
	lr := &io.LimitedReader{R: r, N: limit + 1}
	written, cErr := io.Copy(f, lr)
	if cErr != nil {
		f.Close()
		_ = fs.Remove(path)
		return 0, fmt.Errorf("copy failed: %w", cErr)
	}
	if written > limit {
		f.Close()
		_ = fs.Remove(path)
		return 0, fmt.Errorf("%w: %d bytes", ErrMaxSizeExceeded, limit)
	}
	if err := f.Close(); err != nil {
		_ = fs.Remove(path)
		return 0, fmt.Errorf("close failed: %w", err)
	}
	return written, nil
}

var _ Resolver = (*HTTPResolver)(nil)

func statusText(code int) string {
	return strconv.Itoa(code) + " " + http.StatusText(code)
}
