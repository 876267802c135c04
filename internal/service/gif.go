package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"just_us/internal/config"
	"just_us/internal/domain"
	apperrors "just_us/pkg/errors"
	"just_us/pkg/logger"
)

const defaultGifLimit = 24

type GifService interface {
	Search(ctx context.Context, query, pos string, limit int) (*domain.GifPage, error)
	Featured(ctx context.Context, pos string, limit int) (*domain.GifPage, error)
}

// gifService ходит в Tenor v2 с серверным ключом, клиент ключа не видит.
type gifService struct {
	cfg        config.TenorConfig
	httpClient *http.Client
	log        logger.Logger
}

func NewGifService(cfg config.TenorConfig, log logger.Logger) GifService {
	return &gifService{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log,
	}
}

type tenorMedia struct {
	URL  string `json:"url"`
	Dims []int  `json:"dims"`
}

type tenorResult struct {
	ID                 string                `json:"id"`
	Created            float64               `json:"created"`
	ContentDescription string                `json:"content_description"`
	ItemURL            string                `json:"itemurl"`
	URL                string                `json:"url"`
	Tags               []string              `json:"tags"`
	MediaFormats       map[string]tenorMedia `json:"media_formats"`
}

type tenorResponse struct {
	Results []tenorResult `json:"results"`
	Next    string        `json:"next"`
}

func (s *gifService) Search(ctx context.Context, query, pos string, limit int) (*domain.GifPage, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return s.Featured(ctx, pos, limit)
	}
	params := url.Values{}
	params.Set("q", query)
	return s.call(ctx, "search", params, pos, limit)
}

func (s *gifService) Featured(ctx context.Context, pos string, limit int) (*domain.GifPage, error) {
	return s.call(ctx, "featured", url.Values{}, pos, limit)
}

func (s *gifService) call(ctx context.Context, endpoint string, params url.Values, pos string, limit int) (*domain.GifPage, error) {
	if s.cfg.APIKey == "" {
		return nil, apperrors.ErrGifSearchDisabled
	}
	if limit <= 0 || limit > 50 {
		limit = defaultGifLimit
	}
	params.Set("key", s.cfg.APIKey)
	params.Set("client_key", s.cfg.ClientKey)
	params.Set("limit", strconv.Itoa(limit))
	params.Set("media_filter", "gif,tinygif")
	if pos != "" {
		params.Set("pos", pos)
	}

	reqURL := strings.TrimRight(s.cfg.BaseURL, "/") + "/" + endpoint + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.log.Error("Tenor request failed", "error", err, "endpoint", endpoint)
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.log.Error("Tenor returned error", "status", resp.StatusCode, "endpoint", endpoint)
		return nil, fmt.Errorf("tenor returned status %d", resp.StatusCode)
	}

	var body tenorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	page := &domain.GifPage{Results: make([]*domain.Gif, 0, len(body.Results)), Next: body.Next}
	for _, r := range body.Results {
		if gif := mapTenorResult(r); gif != nil {
			page.Results = append(page.Results, gif)
		}
	}
	return page, nil
}

func mapTenorResult(r tenorResult) *domain.Gif {
	full, ok := r.MediaFormats["gif"]
	if !ok || full.URL == "" {
		return nil
	}
	preview := full
	if tiny, ok := r.MediaFormats["tinygif"]; ok && tiny.URL != "" {
		preview = tiny
	}

	gif := &domain.Gif{
		ID:            r.ID,
		URL:           full.URL,
		PreviewURL:    preview.URL,
		TenorURL:      r.ItemURL,
		ShortTenorURL: r.URL,
		Description:   r.ContentDescription,
		Tags:          r.Tags,
	}
	if len(full.Dims) == 2 {
		gif.Width, gif.Height = full.Dims[0], full.Dims[1]
	}
	if r.Created > 0 {
		sec, frac := math.Modf(r.Created)
		gif.CreatedAt = time.Unix(int64(sec), int64(frac*1e9)).UTC()
	}
	return gif
}
