package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

const body = "BEGIN:VEVENT\nSUMMARY:Walk\nEND:VEVENT\n"

func TestFetchOneCachesWithETag(t *testing.T) {
	var hits, conditional int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if r.Header.Get("If-None-Match") == `"v1"` {
			atomic.AddInt32(&conditional, 1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), 0)
	src := Source{ID: "clinic", URL: srv.URL + "/cal.ics?token=abc"}

	first, err := f.FetchOne(context.Background(), src)
	require.NoError(t, err)
	require.False(t, first.FromCache)
	require.Equal(t, body, string(first.Body))

	second, err := f.FetchOne(context.Background(), src)
	require.NoError(t, err)
	require.True(t, second.FromCache)
	require.Equal(t, body, string(second.Body))

	require.EqualValues(t, 2, atomic.LoadInt32(&hits))
	require.EqualValues(t, 1, atomic.LoadInt32(&conditional))
}

func TestFetchOneFallsBackToCacheOnUpstreamError(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "down", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), 0)
	src := Source{ID: "clinic", URL: srv.URL + "/cal.ics"}

	_, err := f.FetchOne(context.Background(), src)
	require.NoError(t, err)

	fail.Store(true)
	res, err := f.FetchOne(context.Background(), src)
	require.NoError(t, err)
	require.True(t, res.FromCache)
	require.Equal(t, body, string(res.Body))

	_, err = f.FetchOne(context.Background(), Source{ID: "other", URL: srv.URL + "/other.ics"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "502")
}

func TestFetchOneRejectsOversizedBodies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 64)))
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), 16)
	_, err := f.FetchOne(context.Background(), Source{ID: "big", URL: srv.URL})
	require.Error(t, err)
}

func TestFetchOneReadsLocalPath(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "therapy.csv")
	require.NoError(t, os.WriteFile(p, []byte("title,start,end\n"), 0o600))

	f := NewFetcher(dir, 0)
	res, err := f.FetchOne(context.Background(), Source{ID: "therapy", Path: p})
	require.NoError(t, err)
	require.Equal(t, "title,start,end\n", string(res.Body))

	_, err = f.FetchOne(context.Background(), Source{ID: "missing", Path: filepath.Join(dir, "nope.csv")})
	require.Error(t, err)

	_, err = f.FetchOne(context.Background(), Source{ID: "empty"})
	require.Error(t, err)
}

func TestFetchAllCollectsErrorsByID(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "ok.ics")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))

	f := NewFetcher(dir, 0)
	results, errs := f.FetchAll(context.Background(), []Source{
		{ID: "ok", Path: p},
		{ID: "bad", Path: filepath.Join(dir, "missing.ics")},
	})
	require.Len(t, results, 1)
	require.Equal(t, "ok", results[0].Source.ID)
	require.Len(t, errs, 1)
	require.Error(t, errs["bad"])
}

func TestRedactURL(t *testing.T) {
	require.Equal(t, "https://example.com/...(redacted)", RedactURL("https://example.com/path/private.ics?token=abcd"))
	require.Equal(t, "https://example.com/...(redacted)", RedactURL("https://example.com?token=abcd"))
	require.Equal(t, "export://...(redacted)", RedactURL("not a url"))
	require.Equal(t, "", RedactURL(""))
}
