package sms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"portal-auth/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newGateway(t *testing.T, h http.HandlerFunc) *HTTPGateway {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewHTTPGateway(config.SMSConfig{
		Provider: "http",
		BaseURL:  srv.URL,
		Username: "portal",
		Password: "pw",
		SenderID: "PORTAL",
		Timeout:  time.Second,
	}, "90", zap.NewNop())
}

func TestHTTPGatewaySend(t *testing.T) {
	g := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/send", r.URL.Path)
		var req sendRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "+905321234567", req.Destination)
		assert.Equal(t, "PORTAL", req.SenderID)
		assert.Equal(t, "code 123456", req.Message)
		_, _ = w.Write([]byte(`{"status":"success","data":{"message_id":"m-1"}}`))
	})

	id, err := g.Send(context.Background(), "05321234567", "code 123456")
	require.NoError(t, err)
	assert.Equal(t, "m-1", id)
}

func TestHTTPGatewayRejected(t *testing.T) {
	g := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"failed","message":"insufficient credit"}`))
	})

	_, err := g.Send(context.Background(), "05321234567", "x")
	assert.ErrorIs(t, err, ErrDeliveryRejected)
}

func TestHTTPGatewayServerError(t *testing.T) {
	g := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := g.Send(context.Background(), "05321234567", "x")
	assert.Error(t, err)
}

func TestNewGatewaySelectsProvider(t *testing.T) {
	assert.IsType(t, &LogGateway{}, NewGateway(config.SMSConfig{Provider: "log"}, "90", zap.NewNop()))
	assert.IsType(t, &HTTPGateway{}, NewGateway(config.SMSConfig{Provider: "http"}, "90", zap.NewNop()))

	id, err := NewLogGateway(zap.NewNop()).Send(context.Background(), "05321234567", "x")
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}
