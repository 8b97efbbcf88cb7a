package identity

import (
	"context"

	"github.com/google/uuid"
)

var devNamespace = uuid.MustParse("6f1c2a8e-3d54-4b7a-9c1e-2f8b5d0a7c13")

// DevValidator accepts every pair and derives a stable customer ID from the
// national ID. It is wired only outside production when no registry is configured.
type DevValidator struct{}

func (DevValidator) Validate(_ context.Context, nationalID, _ string) Result {
	return Result{
		Success:    true,
		CustomerID: uuid.NewSHA1(devNamespace, []byte(nationalID)).String(),
		Message:    msgVerified,
	}
}
