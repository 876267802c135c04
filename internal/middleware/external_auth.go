package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"just_us/internal/domain"
	"just_us/internal/service"
	apperrors "just_us/pkg/errors"
	"just_us/pkg/logger"
)

const (
	actorKey      = "actor"
	allowedKey    = "allowed"
	notAllowedURL = "/not-allowed"
)

// ExternalAuthMiddleware валидирует JWT токены внешнего провайдера
// и пускает только адреса из списка разрешенных.
type ExternalAuthMiddleware struct {
	jwtSecret []byte
	issuer    string
	verifier  service.TokenVerifier
	users     service.UserService
	allowed   map[string]struct{}
	log       logger.Logger
}

// ExternalJWTClaims - claims от провайдера. user_id может отсутствовать, тогда берется sub.
type ExternalJWTClaims struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Name        string `json:"name"`
	jwt.RegisteredClaims
}

func NewExternalAuthMiddleware(
	jwtSecret, issuer string,
	allowedEmails []string,
	verifier service.TokenVerifier,
	users service.UserService,
	log logger.Logger,
) *ExternalAuthMiddleware {
	allowed := make(map[string]struct{}, len(allowedEmails))
	for _, email := range allowedEmails {
		if email = strings.ToLower(strings.TrimSpace(email)); email != "" {
			allowed[email] = struct{}{}
		}
	}
	if len(allowed) == 0 {
		log.Warn("ALLOWED_EMAIL_ADDRESS is empty, every user will be rejected")
	}
	return &ExternalAuthMiddleware{
		jwtSecret: []byte(jwtSecret),
		issuer:    issuer,
		verifier:  verifier,
		users:     users,
		allowed:   allowed,
		log:       log,
	}
}

// RequireAuth требует валидный токен и адрес из списка разрешенных.
func (m *ExternalAuthMiddleware) RequireAuth() gin.HandlerFunc {
	return m.handle(true)
}

// Identify аутентифицирует, но решение списка только записывает в контекст.
func (m *ExternalAuthMiddleware) Identify() gin.HandlerFunc {
	return m.handle(false)
}

func (m *ExternalAuthMiddleware) handle(enforce bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization required"})
			return
		}

		actor, err := m.authenticate(c.Request.Context(), token)
		if err != nil {
			m.log.Warn("Token validation failed", "error", err.Error())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		allowed := m.IsAllowed(actor.Email)
		if !allowed && enforce {
			m.log.Warn("Email is not on the allowlist", "user_id", actor.ID)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": apperrors.ErrNotAllowed.Error(), "redirect": notAllowedURL})
			return
		}

		if allowed {
			// Auto-provisioning только для разрешенных
			if _, err := m.users.EnsureUser(c.Request.Context(), *actor); err != nil {
				m.log.Error("Failed to ensure user exists", "user_id", actor.ID, "error", err)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to provision user"})
				return
			}
		}

		c.Set(actorKey, *actor)
		c.Set(allowedKey, allowed)
		c.Next()
	}
}

// IsAllowed: пустой список не пускает никого.
func (m *ExternalAuthMiddleware) IsAllowed(email string) bool {
	_, ok := m.allowed[strings.ToLower(strings.TrimSpace(email))]
	return ok
}

func (m *ExternalAuthMiddleware) authenticate(ctx context.Context, token string) (*domain.Actor, error) {
	var actor *domain.Actor
	var err error
	if len(m.jwtSecret) > 0 {
		actor, err = m.parseToken(token)
		if err == nil {
			return actor, nil
		}
	}
	if m.verifier != nil {
		return m.verifier.VerifyToken(ctx, token)
	}
	if err == nil {
		err = apperrors.ErrInvalidToken
	}
	return nil, err
}

// parseToken парсит и валидирует JWT токен
func (m *ExternalAuthMiddleware) parseToken(tokenString string) (*domain.Actor, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &ExternalJWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.jwtSecret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*ExternalJWTClaims)
	if !ok || !token.Valid {
		return nil, apperrors.ErrInvalidToken
	}

	id := claims.UserID
	if id == "" {
		id = claims.Subject
	}
	if id == "" {
		return nil, fmt.Errorf("%w: no subject", apperrors.ErrInvalidToken)
	}

	name := claims.DisplayName
	if name == "" {
		name = claims.Name
	}
	if name == "" {
		name, _, _ = strings.Cut(claims.Email, "@")
	}

	return &domain.Actor{ID: id, Username: name, Email: claims.Email}, nil
}

// extractToken: заголовок Authorization, для websocket - параметр ?token=.
func extractToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return c.Query("token")
}

// ActorFromContext возвращает пользователя, установленного RequireAuth/Identify.
func ActorFromContext(c *gin.Context) (domain.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return domain.Actor{}, false
	}
	actor, ok := v.(domain.Actor)
	return actor, ok
}

func AllowedFromContext(c *gin.Context) bool {
	return c.GetBool(allowedKey)
}
