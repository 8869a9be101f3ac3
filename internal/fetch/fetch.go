package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	appLog "rehabcal/internal/log"
)

const defaultMaxBytes = 5 << 20

// Source represents a single calendar export, remote or local.
type Source struct {
	// ID is an internal identifier (e.g., config source ID).
	ID string
	// URL is the export endpoint. Ignored when Path is set.
	URL string
	// Path is a local export file.
	Path string
}

// Result contains the outcome of fetching a single source.
type Result struct {
	Source    Source
	Body      []byte // export payload (either freshly fetched or from cache)
	FromCache bool   // true if we reused cached body due to 304 or an upstream failure
}

// cacheEntry holds HTTP cache metadata for a single URL.
type cacheEntry struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Fetcher reads calendar exports. Remote ones are fetched with HTTP caching
// (ETag / Last-Modified) backed by a disk cache; local ones are read from
// disk.
type Fetcher struct {
	client   *http.Client
	cacheDir string
	maxBytes int64
}

// NewFetcher creates a new Fetcher.
//
// cacheDir is the base directory where per-URL cache subdirectories and
// metadata will be stored. maxBytes bounds a single body; zero means 5 MiB.
func NewFetcher(cacheDir string, maxBytes int64) *Fetcher {
	if cacheDir == "" {
		cacheDir = "./var/export-cache"
	}
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
		cacheDir: cacheDir,
		maxBytes: maxBytes,
	}
}

// FetchAll fetches all given sources and returns individual results.
// Errors for individual sources are logged and returned in the error map,
// keyed by source ID.
func (f *Fetcher) FetchAll(ctx context.Context, sources []Source) ([]Result, map[string]error) {
	results := make([]Result, 0, len(sources))
	errs := make(map[string]error)

	for _, src := range sources {
		res, err := f.FetchOne(ctx, src)
		if err != nil {
			errs[src.ID] = err
			appLog.Error("export fetch failed", err, "id", src.ID, "url", RedactURL(src.URL))
			continue
		}
		results = append(results, res)
	}

	return results, errs
}

// FetchOne reads a single source. For URLs it honors ETag and
// Last-Modified, using a disk cache under f.cacheDir keyed by a hash of the
// URL, and falls back to the cached body when the upstream is unreachable.
func (f *Fetcher) FetchOne(ctx context.Context, src Source) (Result, error) {
	if src.Path != "" {
		body, err := f.readFile(src.Path)
		if err != nil {
			return Result{}, err
		}
		return Result{Source: src, Body: body}, nil
	}
	if src.URL == "" {
		return Result{}, errors.New("source has neither URL nor path")
	}

	cachePath := f.cachePathForURL(src.URL)
	if err := os.MkdirAll(cachePath, 0o700); err != nil {
		return Result{}, err
	}

	meta, _ := f.loadCacheMeta(cachePath)
	cachedBody, _ := f.loadCacheBody(cachePath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return Result{}, err
	}

	// Conditional headers from cache metadata, only if the body survived.
	if len(cachedBody) > 0 {
		if meta.ETag != "" {
			req.Header.Set("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.Header.Set("If-Modified-Since", meta.LastModified)
		}
	}

	appLog.Debug("export fetch start", "id", src.ID, "url", RedactURL(src.URL))

	resp, err := f.client.Do(req)
	if err != nil {
		if len(cachedBody) > 0 {
			appLog.Error("export fetch network error, using cached body", err, "id", src.ID, "url", RedactURL(src.URL))
			return Result{Source: src, Body: cachedBody, FromCache: true}, nil
		}
		return Result{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, readErr := f.readLimited(resp.Body)
		if readErr != nil {
			return Result{}, readErr
		}

		newMeta := cacheEntry{
			URL:          src.URL,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
		}
		if err := f.saveCache(cachePath, newMeta, body); err != nil {
			// Log but still return the freshly fetched body.
			appLog.Error("export cache save failed", err, "id", src.ID, "url", RedactURL(src.URL))
		}

		appLog.Info("export fetch success", "id", src.ID, "url", RedactURL(src.URL), "bytes", len(body))
		return Result{Source: src, Body: body}, nil

	case http.StatusNotModified:
		if len(cachedBody) == 0 {
			return Result{}, errors.New("received 304 Not Modified but no cached body available")
		}
		appLog.Debug("export not modified; using cache", "id", src.ID, "url", RedactURL(src.URL))
		return Result{Source: src, Body: cachedBody, FromCache: true}, nil

	default:
		if len(cachedBody) > 0 {
			appLog.Error("export fetch non-OK, using cached body", errors.New(resp.Status), "id", src.ID, "url", RedactURL(src.URL), "status", resp.StatusCode)
			return Result{Source: src, Body: cachedBody, FromCache: true}, nil
		}
		return Result{}, fmt.Errorf("fetch %s: %s", RedactURL(src.URL), resp.Status)
	}
}

func (f *Fetcher) readFile(path string) ([]byte, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	return f.readLimited(fh)
}

func (f *Fetcher) readLimited(r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, f.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > f.maxBytes {
		return nil, fmt.Errorf("export exceeds %d bytes", f.maxBytes)
	}
	return body, nil
}

func (f *Fetcher) cachePathForURL(url string) string {
	sum := sha256.Sum256([]byte(url))
	// Use first 16 hex chars as directory name.
	return filepath.Join(f.cacheDir, hex.EncodeToString(sum[:8]))
}

func (f *Fetcher) loadCacheMeta(cachePath string) (cacheEntry, error) {
	var meta cacheEntry
	data, err := os.ReadFile(filepath.Join(cachePath, "meta.json"))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return cacheEntry{}, err
	}
	return meta, nil
}

func (f *Fetcher) loadCacheBody(cachePath string) ([]byte, error) {
	return os.ReadFile(filepath.Join(cachePath, "body"))
}

func (f *Fetcher) saveCache(cachePath string, meta cacheEntry, body []byte) error {
	// Write body first so meta never points at missing body.
	if err := os.WriteFile(filepath.Join(cachePath, "body"), body, 0o600); err != nil {
		return err
	}

	meta.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(cachePath, "meta.json"), data, 0o600)
}

// RedactURL hides everything after the host of an export URL, since
// calendar export links usually embed access tokens.
//
//	https://example.com/path/to/private.ics?token=abcd
//	-> https://example.com/...(redacted)
func RedactURL(u string) string {
	if u == "" {
		return ""
	}
	const redactedSuffix = "/...(redacted)"

	i := -1
	for idx := 0; idx+2 < len(u); idx++ {
		if u[idx:idx+3] == "://" {
			i = idx + 3
			break
		}
	}
	if i == -1 {
		return "export://...(redacted)"
	}

	j := i
	for j < len(u) && u[j] != '/' && u[j] != '?' {
		j++
	}
	return u[:j] + redactedSuffix
}
