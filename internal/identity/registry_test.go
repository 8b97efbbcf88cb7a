package identity

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

func newClient(t *testing.T, timeout time.Duration, h http.HandlerFunc) *RegistryClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewRegistryClient(config.IdentityConfig{BaseURL: srv.URL, APIKey: "reg-key", Timeout: timeout}, zap.NewNop())
}

func TestValidateSuccess(t *testing.T) {
	c := newClient(t, time.Second, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/identity/validate", r.URL.Path)
		assert.Equal(t, "reg-key", r.Header.Get("X-Api-Key"))

		var req validateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "10000000146", req.NationalID)
		assert.Equal(t, "05321234567", req.Phone)

		_ = json.NewEncoder(w).Encode(validateResponse{Success: true, CustomerID: "C-42"})
	})

	res := c.Validate(context.Background(), "10000000146", "05321234567")
	assert.True(t, res.Success)
	assert.Equal(t, "C-42", res.CustomerID)
	assert.Equal(t, models.KindNone, res.Kind)
}

func TestValidateNoMatchIsGeneric(t *testing.T) {
	c := newClient(t, time.Second, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(validateResponse{Success: false, Message: "phone does not belong to this ID"})
	})

	res := c.Validate(context.Background(), "10000000146", "05321234567")
	assert.False(t, res.Success)
	assert.Equal(t, models.KindMismatch, res.Kind)
	assert.NotContains(t, res.Message, "phone")
}

func TestValidateUpstreamFailures(t *testing.T) {
	t.Run("status", func(t *testing.T) {
		c := newClient(t, time.Second, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})
		res := c.Validate(context.Background(), "10000000146", "05321234567")
		assert.False(t, res.Success)
		assert.Equal(t, models.KindUpstream, res.Kind)
	})

	t.Run("timeout", func(t *testing.T) {
		c := newClient(t, 30*time.Millisecond, func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
		})
		res := c.Validate(context.Background(), "10000000146", "05321234567")
		assert.Equal(t, models.KindUpstream, res.Kind)
	})

	t.Run("unreachable", func(t *testing.T) {
		c := NewRegistryClient(config.IdentityConfig{BaseURL: "http://127.0.0.1:1", Timeout: time.Second}, zap.NewNop())
		res := c.Validate(context.Background(), "10000000146", "05321234567")
		assert.Equal(t, models.KindUpstream, res.Kind)
	})
}

func TestDevValidatorIsStable(t *testing.T) {
	a := DevValidator{}.Validate(context.Background(), "10000000146", "05321234567")
	b := DevValidator{}.Validate(context.Background(), "10000000146", "05551112233")
	assert.True(t, a.Success)
	assert.Equal(t, a.CustomerID, b.CustomerID)
}
