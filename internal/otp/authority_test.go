package otp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"portal-auth/internal/config"
	"portal-auth/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newAuthority(t *testing.T, handler http.HandlerFunc) *AuthorityClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewAuthorityClient(config.OtpAuthorityConfig{BaseURL: srv.URL, APIKey: "k", Timeout: time.Second}, zap.NewNop())
}

func TestAuthorityIssue(t *testing.T) {
	expires := time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC)
	a := newAuthority(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/otp/send", r.URL.Path)
		assert.Equal(t, "k", r.Header.Get("X-Api-Key"))
		var req authoritySendRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "05321234567", req.Phone)
		_ = json.NewEncoder(w).Encode(authoritySendResponse{Success: true, DeliveryID: "d-9", ExpiresAt: expires})
	})

	issued, err := a.Issue(context.Background(), "X", "05321234567")
	require.NoError(t, err)
	assert.Equal(t, "d-9", issued.DeliveryID)
	assert.True(t, expires.Equal(issued.ExpiresAt))
	assert.Empty(t, issued.Code)
}

func TestAuthorityIssueRefused(t *testing.T) {
	a := newAuthority(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(authoritySendResponse{Success: false, Message: "blocked"})
	})

	_, err := a.Issue(context.Background(), "X", "05321234567")
	assert.ErrorIs(t, err, models.ErrUpstream)
}

func TestAuthorityVerifyStatuses(t *testing.T) {
	cases := map[string]error{
		"not_found": models.ErrNotFound,
		"expired":   models.ErrExpired,
		"mismatch":  models.ErrMismatch,
		"weird":     models.ErrUpstream,
	}
	for status, want := range cases {
		t.Run(status, func(t *testing.T) {
			a := newAuthority(t, func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(authorityVerifyResponse{Success: false, Status: status})
			})
			assert.ErrorIs(t, a.Verify(context.Background(), "X", "123456"), want)
		})
	}
}

func TestAuthorityVerifySuccessAndTransportFailure(t *testing.T) {
	a := newAuthority(t, func(w http.ResponseWriter, r *http.Request) {
		var req authorityVerifyRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Code == "500000" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(authorityVerifyResponse{Success: true})
	})

	assert.NoError(t, a.Verify(context.Background(), "X", "123456"))
	assert.ErrorIs(t, a.Verify(context.Background(), "X", "500000"), models.ErrUpstream)
	assert.NoError(t, a.Discard(context.Background(), "X"))
}
