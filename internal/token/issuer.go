package token

import (
	"fmt"
	"time"

	"portal-auth/internal/models"

	"github.com/google/uuid"
)

const DefaultTTL = 24 * time.Hour

// Issuer mints opaque bearer tokens. Tokens carry no claims; they are only
// meaningful together with the server-side session that stores them.
type Issuer struct {
	ttl     time.Duration
	now     func() time.Time
	newUUID func() (uuid.UUID, error)
}

func NewIssuer(ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{ttl: ttl, now: time.Now, newUUID: uuid.NewRandom}
}

func (i *Issuer) Issue(identifier string) (models.AuthToken, error) {
	id, err := i.newUUID()
	if err != nil {
		return models.AuthToken{}, fmt.Errorf("failed to mint token for %s: %w", identifier, err)
	}
	return models.AuthToken{Value: id.String(), ExpiresAt: i.now().Add(i.ttl)}, nil
}
