package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"just_us/internal/domain"
	apperrors "just_us/pkg/errors"
)

// TokenVerifier проверяет токен, который не удалось разобрать локально.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (*domain.Actor, error)
}

// IdentityClient - клиент внешнего сервиса аутентификации.
type IdentityClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewIdentityClient(baseURL string) *IdentityClient {
	return &IdentityClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type verifyTokenRequest struct {
	Token string `json:"token"`
}

type verifyTokenResponse struct {
	Valid       bool    `json:"valid"`
	UserID      *string `json:"user_id,omitempty"`
	Email       *string `json:"email,omitempty"`
	DisplayName *string `json:"display_name,omitempty"`
}

// VerifyToken проверяет токен на сервисе аутентификации
func (c *IdentityClient) VerifyToken(ctx context.Context, token string) (*domain.Actor, error) {
	body, err := json.Marshal(verifyTokenRequest{Token: token})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/verify", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, apperrors.ErrInvalidToken
	}
	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("auth service returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var response verifyTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if !response.Valid || response.UserID == nil || *response.UserID == "" {
		return nil, apperrors.ErrInvalidToken
	}

	actor := &domain.Actor{ID: *response.UserID}
	if response.Email != nil {
		actor.Email = *response.Email
	}
	if response.DisplayName != nil {
		actor.Username = *response.DisplayName
	}
	return actor, nil
}
