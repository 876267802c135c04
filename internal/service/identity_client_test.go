package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "just_us/pkg/errors"
)

func TestIdentityClient_VerifyToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/verify", r.URL.Path)
		var req verifyTokenRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		switch req.Token {
		case "good":
			_, _ = w.Write([]byte(`{"valid":true,"user_id":"user-a","email":"alice@example.com","display_name":"alice"}`))
		case "revoked":
			_, _ = w.Write([]byte(`{"valid":false}`))
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	defer srv.Close()

	client := NewIdentityClient(srv.URL)

	actor, err := client.VerifyToken(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "user-a", actor.ID)
	assert.Equal(t, "alice@example.com", actor.Email)
	assert.Equal(t, "alice", actor.Username)

	_, err = client.VerifyToken(context.Background(), "revoked")
	assert.ErrorIs(t, err, apperrors.ErrInvalidToken)

	_, err = client.VerifyToken(context.Background(), "unknown")
	assert.ErrorIs(t, err, apperrors.ErrInvalidToken)
}
