package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"just_us/internal/domain"
	apperrors "just_us/pkg/errors"
)

// API - HTTP-клиент чата. Ответы не 2xx превращаются в *apperrors.APIError.
type API struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewAPI(baseURL, token string) *API {
	return &API{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (a *API) BaseURL() string { return a.baseURL }

func (a *API) Token() string { return a.token }

// AllowedResponse - решение гейта по списку разрешенных адресов.
type AllowedResponse struct {
	Allowed  bool         `json:"allowed"`
	User     domain.Actor `json:"user"`
	Redirect string       `json:"redirect,omitempty"`
}

// Peer - собеседник с его статусом.
type Peer struct {
	ID       string          `json:"id"`
	Username string          `json:"username"`
	Typing   bool            `json:"typing"`
	Presence domain.Presence `json:"presence"`
}

type ServerInfo struct {
	Environment string `json:"environment"`
	LiveWindow  int    `json:"live_window"`
	APIBase     string `json:"api_base"`
	WSPath      string `json:"ws_path"`
}

func (a *API) Allowed(ctx context.Context) (*AllowedResponse, error) {
	var out AllowedResponse
	if err := a.do(ctx, http.MethodGet, "/api/v1/auth/allowed", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) Latest(ctx context.Context, limit int) (*domain.MessagePage, error) {
	var out domain.MessagePage
	if err := a.do(ctx, http.MethodGet, "/api/v1/messages", limitQuery(nil, limit), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Older реализует liveview.OlderFetcher.
func (a *API) Older(ctx context.Context, cursor string, limit int) (*domain.MessagePage, error) {
	q := url.Values{"cursor": {cursor}}
	var out domain.MessagePage
	if err := a.do(ctx, http.MethodGet, "/api/v1/messages/older", limitQuery(q, limit), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) Send(ctx context.Context, in domain.NewMessage) (*domain.Message, error) {
	var out domain.Message
	if err := a.do(ctx, http.MethodPost, "/api/v1/messages", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) Edit(ctx context.Context, id uuid.UUID, text string) (*domain.Message, error) {
	return a.messageCall(ctx, http.MethodPatch, id, "", domain.EditMessageRequest{Message: text})
}

func (a *API) Unsend(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	return a.messageCall(ctx, http.MethodPost, id, "/unsend", nil)
}

func (a *API) UndoUnsend(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	return a.messageCall(ctx, http.MethodPost, id, "/undo-unsend", nil)
}

func (a *API) SetReaction(ctx context.Context, id uuid.UUID, glyph string) (*domain.Message, error) {
	return a.messageCall(ctx, http.MethodPut, id, "/reaction", domain.ReactionRequest{Reaction: glyph})
}

func (a *API) ClearReaction(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	return a.messageCall(ctx, http.MethodDelete, id, "/reaction", nil)
}

func (a *API) messageCall(ctx context.Context, method string, id uuid.UUID, suffix string, body interface{}) (*domain.Message, error) {
	var out domain.Message
	if err := a.do(ctx, method, "/api/v1/messages/"+id.String()+suffix, nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MarkSeen реализует liveview.SeenMarker.
func (a *API) MarkSeen(ctx context.Context) (int64, error) {
	var out struct {
		Updated int64 `json:"updated"`
	}
	if err := a.do(ctx, http.MethodPost, "/api/v1/messages/seen", nil, nil, &out); err != nil {
		return 0, err
	}
	return out.Updated, nil
}

func (a *API) Me(ctx context.Context) (*domain.User, error) {
	var out domain.User
	if err := a.do(ctx, http.MethodGet, "/api/v1/users/me", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) Peer(ctx context.Context) (*Peer, error) {
	var out Peer
	if err := a.do(ctx, http.MethodGet, "/api/v1/users/peer", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetTyping реализует typing.Writer.
func (a *API) SetTyping(ctx context.Context, typing bool) error {
	body := map[string]bool{"typing": typing}
	return a.do(ctx, http.MethodPut, "/api/v1/users/me/typing", nil, body, nil)
}

func (a *API) SavePushSubscription(ctx context.Context, sub domain.PushSubscription) error {
	return a.do(ctx, http.MethodPut, "/api/v1/users/me/subscription", nil, sub, nil)
}

// RemovePushSubscription с пустым endpoint сбрасывает все устройства.
func (a *API) RemovePushSubscription(ctx context.Context, endpoint string) error {
	var q url.Values
	if endpoint != "" {
		q = url.Values{"endpoint": {endpoint}}
	}
	return a.do(ctx, http.MethodDelete, "/api/v1/users/me/subscription", q, nil, nil)
}

func (a *API) Subscriptions(ctx context.Context, userID string) (*domain.SubscriptionsView, error) {
	var out domain.SubscriptionsView
	if err := a.do(ctx, http.MethodGet, "/api/v1/users/"+url.PathEscape(userID)+"/subscriptions", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) UploadImage(ctx context.Context, dataURL string) (*domain.Upload, error) {
	return a.upload(ctx, "/api/v1/uploads/image", dataURL)
}

func (a *API) UploadAudio(ctx context.Context, dataURL string) (*domain.Upload, error) {
	return a.upload(ctx, "/api/v1/uploads/audio", dataURL)
}

func (a *API) upload(ctx context.Context, path, dataURL string) (*domain.Upload, error) {
	var out domain.Upload
	if err := a.do(ctx, http.MethodPost, path, nil, domain.UploadRequest{Data: dataURL}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) Gallery(ctx context.Context, cursor string, limit int) (*domain.GalleryPage, error) {
	q := url.Values{}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	var out domain.GalleryPage
	if err := a.do(ctx, http.MethodGet, "/api/v1/gallery", limitQuery(q, limit), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) LinkPreview(ctx context.Context, target string) (*domain.LinkPreview, error) {
	var out domain.LinkPreview
	if err := a.do(ctx, http.MethodGet, "/api/v1/link-preview", url.Values{"url": {target}}, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) SearchGifs(ctx context.Context, query, pos string, limit int) (*domain.GifPage, error) {
	q := url.Values{"q": {query}}
	if pos != "" {
		q.Set("pos", pos)
	}
	var out domain.GifPage
	if err := a.do(ctx, http.MethodGet, "/api/v1/gifs/search", limitQuery(q, limit), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) FeaturedGifs(ctx context.Context, pos string, limit int) (*domain.GifPage, error) {
	q := url.Values{}
	if pos != "" {
		q.Set("pos", pos)
	}
	var out domain.GifPage
	if err := a.do(ctx, http.MethodGet, "/api/v1/gifs/featured", limitQuery(q, limit), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) ServerInfo(ctx context.Context) (*ServerInfo, error) {
	var out ServerInfo
	if err := a.do(ctx, http.MethodGet, "/server-info", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func limitQuery(q url.Values, limit int) url.Values {
	if limit <= 0 {
		return q
	}
	if q == nil {
		q = url.Values{}
	}
	q.Set("limit", strconv.Itoa(limit))
	return q
}

func (a *API) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	endpoint := a.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var payload struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(raw))
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Error != "" {
		msg = payload.Error
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return apperrors.NewAPIError(msg, resp.StatusCode)
}
