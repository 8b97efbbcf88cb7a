package token

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueSetsFixedExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	i := NewIssuer(0)
	i.now = func() time.Time { return now }

	tok, err := i.Issue("X")
	require.NoError(t, err)
	assert.Equal(t, now.Add(24*time.Hour), tok.ExpiresAt)

	parsed, err := uuid.Parse(tok.Value)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(4), parsed.Version())
}

func TestTokensAreUnique(t *testing.T) {
	i := NewIssuer(time.Hour)
	seen := map[string]bool{}
	for range 1000 {
		tok, err := i.Issue("X")
		require.NoError(t, err)
		require.False(t, seen[tok.Value])
		seen[tok.Value] = true
	}
}

func TestIssueFailure(t *testing.T) {
	i := NewIssuer(time.Hour)
	i.newUUID = func() (uuid.UUID, error) { return uuid.Nil, errors.New("entropy exhausted") }

	_, err := i.Issue("X")
	assert.Error(t, err)
}
