package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoJSONRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		_ = json.NewEncoder(w).Encode(map[string]string{"echo": in["name"]})
	}))
	defer srv.Close()

	c := NewJSONClient(srv.URL, time.Second, map[string]string{"X-Api-Key": "secret"})

	var out map[string]string
	status, err := c.DoJSON(context.Background(), http.MethodPost, "/x", map[string]string{"name": "ada"}, &out)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ada", out["echo"])
}

func TestDoJSONNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewJSONClient(srv.URL, time.Second, nil)
	status, err := c.DoJSON(context.Background(), http.MethodGet, "/", nil, nil)
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
	assert.Equal(t, http.StatusServiceUnavailable, status)
}

func TestDoJSONTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewJSONClient(srv.URL, 50*time.Millisecond, nil)
	start := time.Now()
	status, err := c.DoJSON(context.Background(), http.MethodGet, "/", nil, nil)
	assert.Error(t, err)
	assert.Zero(t, status)
	assert.Less(t, time.Since(start), 2*time.Second)
}
