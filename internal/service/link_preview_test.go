package service

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"just_us/internal/config"
	"just_us/internal/repository"
	apperrors "just_us/pkg/errors"
	"just_us/pkg/logger"
)

const previewPage = `<!doctype html>
<html><head>
<meta charset="UTF-8">
<title>Plain title</title>
<meta property="og:title" content="OG Title">
<meta name="description" content="Plain description">
<meta property="og:site_name" content="Example Site">
<meta property="og:type" content="article">
<meta property="og:image" content="/img/cover.jpg">
<link rel="icon" href="/favicon.png">
</head><body>hello</body></html>`

func TestParseHTMLPreview(t *testing.T) {
	base, _ := url.Parse("https://example.com/post/1")
	p, err := ParseHTMLPreview(strings.NewReader(previewPage), base)
	require.NoError(t, err)

	assert.Equal(t, "OG Title", p.Title)
	assert.Equal(t, "Plain description", p.Description)
	assert.Equal(t, "Example Site", p.SiteName)
	assert.Equal(t, "article", p.MediaType)
	assert.Equal(t, []string{"https://example.com/img/cover.jpg"}, p.Images)
	assert.Equal(t, []string{"https://example.com/favicon.png"}, p.Favicons)
	assert.Equal(t, "utf-8", p.Charset)
}

func TestParseHTMLPreview_Defaults(t *testing.T) {
	base, _ := url.Parse("https://blog.example.org/x")
	p, err := ParseHTMLPreview(strings.NewReader(`<html><head><title>Only title</title></head></html>`), base)
	require.NoError(t, err)

	assert.Equal(t, "Only title", p.Title)
	assert.Equal(t, "blog.example.org", p.SiteName)
	assert.Equal(t, "website", p.MediaType)
	assert.Equal(t, []string{"https://blog.example.org/favicon.ico"}, p.Favicons)
	assert.NotNil(t, p.Images)
}

func newPreviewService(t *testing.T) LinkPreviewService {
	t.Helper()
	_, rdb := newTestRedis(t)
	cfg := config.LinkPreviewConfig{Timeout: 2 * time.Second, TTL: 15 * time.Minute, FallbackTTL: 5 * time.Minute, MaxBody: 1 << 20}
	return NewLinkPreviewService(repository.NewLinkPreviewCache(rdb, logger.NewNop()), cfg, logger.NewNop())
}

func TestLinkPreviewService_FetchAndCache(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, previewPage)
	}))
	defer srv.Close()

	svc := newPreviewService(t)
	ctx := context.Background()

	p, err := svc.Preview(ctx, srv.URL+"/post")
	require.NoError(t, err)
	assert.Equal(t, "OG Title", p.Title)
	assert.Equal(t, "text/html", p.ContentType)
	assert.False(t, p.Fallback)

	p, err = svc.Preview(ctx, srv.URL+"/post")
	require.NoError(t, err)
	assert.Equal(t, "OG Title", p.Title)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestLinkPreviewService_Fallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	svc := newPreviewService(t)
	target, _ := url.Parse(srv.URL)

	p, err := svc.Preview(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.True(t, p.Fallback)
	assert.Equal(t, target.Hostname(), p.Title)
	assert.Equal(t, target.Hostname(), p.SiteName)
	assert.Equal(t, "website", p.MediaType)
	assert.Equal(t, []string{"https://www.google.com/s2/favicons?domain=" + target.Hostname()}, p.Favicons)

	// fallback приходит из кеша с тем же флагом
	p, err = svc.Preview(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.True(t, p.Fallback)
}

func TestLinkPreviewService_NonHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte{0x89, 'P', 'N', 'G'})
	}))
	defer srv.Close()

	p, err := newPreviewService(t).Preview(context.Background(), srv.URL+"/pic.png")
	require.NoError(t, err)
	assert.Equal(t, "image", p.MediaType)
	assert.Equal(t, "image/png", p.ContentType)
	assert.Equal(t, []string{srv.URL + "/pic.png"}, p.Images)
}

func TestLinkPreviewService_InvalidInput(t *testing.T) {
	svc := newPreviewService(t)

	_, err := svc.Preview(context.Background(), "  ")
	assert.ErrorIs(t, err, apperrors.ErrMissingURL)

	for _, raw := range []string{"ftp://example.com", "javascript:alert(1)", "http://"} {
		_, err = svc.Preview(context.Background(), raw)
		assert.ErrorIs(t, err, apperrors.ErrInvalidURL, raw)
	}
}
