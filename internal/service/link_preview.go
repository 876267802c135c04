package service

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"just_us/internal/config"
	"just_us/internal/domain"
	"just_us/internal/repository"
	apperrors "just_us/pkg/errors"
	"just_us/pkg/logger"
)

const previewUserAgent = "Mozilla/5.0 (compatible; just-us-link-preview/1.0)"

type LinkPreviewService interface {
	// Preview никогда не падает из-за недоступной страницы: в этом случае
	// возвращается заглушка с Fallback=true.
	Preview(ctx context.Context, rawURL string) (*domain.LinkPreview, error)
}

type linkPreviewService struct {
	cache  repository.LinkPreviewCache
	client *http.Client
	cfg    config.LinkPreviewConfig
	log    logger.Logger
}

func NewLinkPreviewService(cache repository.LinkPreviewCache, cfg config.LinkPreviewConfig, log logger.Logger) LinkPreviewService {
	return &linkPreviewService{
		cache:  cache,
		client: &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
		log:    log,
	}
}

func (s *linkPreviewService) Preview(ctx context.Context, rawURL string) (*domain.LinkPreview, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, apperrors.ErrMissingURL
	}
	target, err := url.Parse(rawURL)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Hostname() == "" {
		return nil, apperrors.ErrInvalidURL
	}

	if cached, ok, _ := s.cache.Get(ctx, rawURL); ok {
		return cached, nil
	}

	preview, err := s.fetch(ctx, target)
	ttl := s.cfg.TTL
	if err != nil {
		s.log.Debug("Link preview fetch failed, using fallback", "error", err, "host", target.Hostname())
		preview = FallbackPreview(target)
		ttl = s.cfg.FallbackTTL
	}

	_ = s.cache.Set(ctx, rawURL, preview, ttl)
	return preview, nil
}

// FallbackPreview - заглушка из одного только имени хоста.
func FallbackPreview(target *url.URL) *domain.LinkPreview {
	host := target.Hostname()
	return &domain.LinkPreview{
		URL:       target.String(),
		Title:     host,
		SiteName:  host,
		MediaType: "website",
		Images:    []string{},
		Videos:    []string{},
		Favicons:  []string{"https://www.google.com/s2/favicons?domain=" + host},
		Fallback:  true,
	}
}

func (s *linkPreviewService) fetch(ctx context.Context, target *url.URL) (*domain.LinkPreview, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", previewUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	final := resp.Request.URL
	contentType, params, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))

	if contentType != "" && contentType != "text/html" && contentType != "application/xhtml+xml" {
		return &domain.LinkPreview{
			URL:         final.String(),
			Title:       final.Hostname(),
			SiteName:    final.Hostname(),
			MediaType:   mediaTypeOf(contentType),
			ContentType: contentType,
			Images:      imagesFor(contentType, final),
			Videos:      []string{},
			Favicons:    []string{final.Scheme + "://" + final.Host + "/favicon.ico"},
			Charset:     params["charset"],
		}, nil
	}

	preview, err := ParseHTMLPreview(io.LimitReader(resp.Body, s.cfg.MaxBody), final)
	if err != nil {
		return nil, err
	}
	preview.ContentType = "text/html"
	if preview.Charset == "" {
		preview.Charset = params["charset"]
	}
	return preview, nil
}

// ParseHTMLPreview извлекает open graph и обычные meta-теги из документа.
func ParseHTMLPreview(r io.Reader, base *url.URL) (*domain.LinkPreview, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	p := &domain.LinkPreview{
		URL:       base.String(),
		MediaType: "website",
		Images:    []string{},
		Videos:    []string{},
		Favicons:  []string{},
	}
	var docTitle, metaDescription string

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Title:
				if docTitle == "" && n.FirstChild != nil {
					docTitle = strings.TrimSpace(n.FirstChild.Data)
				}
			case atom.Meta:
				key := strings.ToLower(attr(n, "property"))
				if key == "" {
					key = strings.ToLower(attr(n, "name"))
				}
				content := strings.TrimSpace(attr(n, "content"))
				if cs := attr(n, "charset"); cs != "" && p.Charset == "" {
					p.Charset = strings.ToLower(cs)
				}
				switch key {
				case "og:title":
					p.Title = content
				case "og:description":
					p.Description = content
				case "description":
					metaDescription = content
				case "og:site_name":
					p.SiteName = content
				case "og:type":
					if content != "" {
						p.MediaType = content
					}
				case "og:image", "og:image:url", "og:image:secure_url", "twitter:image":
					p.Images = appendUnique(p.Images, resolve(base, content))
				case "og:video", "og:video:url", "og:video:secure_url":
					p.Videos = appendUnique(p.Videos, resolve(base, content))
				}
			case atom.Link:
				rel := strings.ToLower(attr(n, "rel"))
				if strings.Contains(rel, "icon") {
					p.Favicons = appendUnique(p.Favicons, resolve(base, attr(n, "href")))
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if p.Title == "" {
		p.Title = docTitle
	}
	if p.Description == "" {
		p.Description = metaDescription
	}
	if p.SiteName == "" {
		p.SiteName = base.Hostname()
	}
	if len(p.Favicons) == 0 {
		p.Favicons = append(p.Favicons, base.Scheme+"://"+base.Host+"/favicon.ico")
	}
	return p, nil
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			return a.Val
		}
	}
	return ""
}

func resolve(base *url.URL, ref string) string {
	if ref == "" {
		return ""
	}
	u, err := base.Parse(ref)
	if err != nil {
		return ""
	}
	return u.String()
}

func appendUnique(list []string, v string) []string {
	if v == "" {
		return list
	}
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

func mediaTypeOf(contentType string) string {
	kind, _, _ := strings.Cut(contentType, "/")
	switch kind {
	case "image", "audio", "video":
		return kind
	case "application":
		return "application"
	default:
		return "website"
	}
}

func imagesFor(contentType string, u *url.URL) []string {
	if strings.HasPrefix(contentType, "image/") {
		return []string{u.String()}
	}
	return []string{}
}
