package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"just_us/internal/domain"
	"just_us/internal/repository"
	"just_us/internal/service"
	apperrors "just_us/pkg/errors"
	"just_us/pkg/logger"
)

const testSecret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

type mockUserService struct {
	mock.Mock
}

func (m *mockUserService) EnsureUser(ctx context.Context, actor domain.Actor) (*domain.User, error) {
	args := m.Called(ctx, actor)
	if u, ok := args.Get(0).(*domain.User); ok {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockUserService) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return nil, apperrors.ErrUserNotFound
}

func (m *mockUserService) GetPeer(ctx context.Context, me string) (*domain.User, error) {
	return nil, apperrors.ErrPeerNotFound
}

func (m *mockUserService) SavePushSubscription(context.Context, string, domain.PushSubscription) error {
	return nil
}

func (m *mockUserService) RemovePushSubscription(context.Context, string, string) error { return nil }
func (m *mockUserService) ResetSubscriptions(context.Context, string) error             { return nil }

func (m *mockUserService) GetSubscriptions(context.Context, string) (*domain.SubscriptionsView, error) {
	return nil, nil
}

type stubVerifier struct {
	actor *domain.Actor
}

func (v stubVerifier) VerifyToken(context.Context, string) (*domain.Actor, error) {
	if v.actor == nil {
		return nil, apperrors.ErrInvalidToken
	}
	return v.actor, nil
}

func signToken(t *testing.T, claims jwt.MapClaims, secret string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func newAuthRouter(users service.UserService, verifier service.TokenVerifier, allowed []string) *gin.Engine {
	auth := NewExternalAuthMiddleware(testSecret, "", allowed, verifier, users, logger.NewNop())
	r := gin.New()
	r.GET("/private", auth.RequireAuth(), func(c *gin.Context) {
		actor, _ := ActorFromContext(c)
		c.JSON(http.StatusOK, actor)
	})
	r.GET("/allowed", auth.Identify(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"allowed": AllowedFromContext(c)})
	})
	return r
}

var defaultAllowed = []string{"ann@example.com", "bob@example.com"}

func TestRequireAuth(t *testing.T) {
	valid := jwt.MapClaims{"sub": "u1", "email": "Ann@Example.com", "display_name": "ann", "exp": time.Now().Add(time.Hour).Unix()}

	tests := []struct {
		name       string
		header     string
		query      string
		allowed    []string
		wantStatus int
	}{
		{"missing token", "", "", defaultAllowed, http.StatusUnauthorized},
		{"bad scheme", "Basic abc", "", defaultAllowed, http.StatusUnauthorized},
		{"wrong secret", "Bearer " + signToken(t, valid, "other"), "", defaultAllowed, http.StatusUnauthorized},
		{"expired", "Bearer " + signToken(t, jwt.MapClaims{"sub": "u1", "exp": time.Now().Add(-time.Hour).Unix()}, testSecret), "", defaultAllowed, http.StatusUnauthorized},
		{"not allowed", "Bearer " + signToken(t, jwt.MapClaims{"sub": "u3", "email": "eve@example.com"}, testSecret), "", defaultAllowed, http.StatusForbidden},
		{"empty allowlist", "Bearer " + signToken(t, valid, testSecret), "", nil, http.StatusForbidden},
		{"blank allowlist entries", "Bearer " + signToken(t, jwt.MapClaims{"sub": "u4"}, testSecret), "", []string{" ", ""}, http.StatusForbidden},
		{"header ok", "Bearer " + signToken(t, valid, testSecret), "", defaultAllowed, http.StatusOK},
		{"query ok", "", signToken(t, valid, testSecret), defaultAllowed, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := &mockUserService{}
			users.On("EnsureUser", mock.Anything, mock.Anything).Return(&domain.User{ID: "u1"}, nil)
			r := newAuthRouter(users, nil, tt.allowed)

			url := "/private"
			if tt.query != "" {
				url += "?token=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, url, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusForbidden {
				var body map[string]string
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.Equal(t, "/not-allowed", body["redirect"])
				users.AssertNotCalled(t, "EnsureUser", mock.Anything, mock.Anything)
			}
			if tt.wantStatus == http.StatusOK {
				var actor domain.Actor
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &actor))
				assert.Equal(t, "u1", actor.ID)
				assert.Equal(t, "ann", actor.Username)
				users.AssertCalled(t, "EnsureUser", mock.Anything, actor)
			}
		})
	}
}

func TestIdentifyReportsAllowlistDecision(t *testing.T) {
	users := &mockUserService{}
	users.On("EnsureUser", mock.Anything, mock.Anything).Return(&domain.User{}, nil)
	r := newAuthRouter(users, nil, []string{"ann@example.com"})

	req := httptest.NewRequest(http.MethodGet, "/allowed", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, jwt.MapClaims{"user_id": "u9", "email": "eve@example.com"}, testSecret))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"allowed":false}`, rec.Body.String())
}

func TestVerifierFallback(t *testing.T) {
	users := &mockUserService{}
	users.On("EnsureUser", mock.Anything, mock.Anything).Return(&domain.User{}, nil)
	verifier := stubVerifier{actor: &domain.Actor{ID: "remote", Username: "rem", Email: "ann@example.com"}}
	r := newAuthRouter(users, verifier, []string{"ann@example.com"})

	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	req.Header.Set("Authorization", "Bearer opaque-token")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"remote"`)
}

func TestRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	limiter := NewRateLimitMiddleware(
		service.NewRateLimitService(repository.NewRateLimitRepository(rdb, logger.NewNop()), logger.NewNop()),
		2, time.Minute, logger.NewNop(),
	)
	r := gin.New()
	r.POST("/send", limiter.Limit("send"), func(c *gin.Context) { c.Status(http.StatusCreated) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/send", nil))
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusCreated, http.StatusCreated, http.StatusTooManyRequests}, codes)
}

func TestErrorHandler(t *testing.T) {
	r := gin.New()
	r.Use(ErrorHandler(logger.NewNop()))
	r.GET("/boom", func(c *gin.Context) { _ = c.Error(apperrors.ErrMessageDeleted) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"error":"message is deleted"}`, rec.Body.String())
}
