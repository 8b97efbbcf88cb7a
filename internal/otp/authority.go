package otp

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"portal-auth/internal/client"
	"portal-auth/internal/config"
	"portal-auth/internal/models"

	"go.uber.org/zap"
)

// AuthorityClient delegates issuing and verification to an external OTP
// authority. The code never exists in this process.
type AuthorityClient struct {
	http   *client.JSONClient
	logger *zap.Logger
}

type authoritySendRequest struct {
	Identifier string `json:"identifier"`
	Phone      string `json:"phone"`
}

type authoritySendResponse struct {
	Success    bool      `json:"success"`
	DeliveryID string    `json:"deliveryId"`
	ExpiresAt  time.Time `json:"expiresAt"`
	Message    string    `json:"message"`
}

type authorityVerifyRequest struct {
	Identifier string `json:"identifier"`
	Code       string `json:"code"`
}

type authorityVerifyResponse struct {
	Success bool   `json:"success"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

func NewAuthorityClient(cfg config.OtpAuthorityConfig, logger *zap.Logger) *AuthorityClient {
	headers := map[string]string{}
	if cfg.APIKey != "" {
		headers["X-Api-Key"] = cfg.APIKey
	}
	return &AuthorityClient{
		http:   client.NewJSONClient(cfg.BaseURL, cfg.Timeout, headers),
		logger: logger,
	}
}

func (a *AuthorityClient) Issue(ctx context.Context, identifier, phone string) (Issued, error) {
	var resp authoritySendResponse
	if _, err := a.http.DoJSON(ctx, http.MethodPost, "/otp/send", authoritySendRequest{Identifier: identifier, Phone: phone}, &resp); err != nil {
		a.logger.Warn("OTP authority send failed", zap.Error(err))
		return Issued{}, fmt.Errorf("%w: otp authority: %v", models.ErrUpstream, err)
	}
	if !resp.Success {
		return Issued{}, fmt.Errorf("%w: otp authority refused: %s", models.ErrUpstream, resp.Message)
	}
	return Issued{DeliveryID: resp.DeliveryID, ExpiresAt: resp.ExpiresAt}, nil
}

func (a *AuthorityClient) Verify(ctx context.Context, identifier, code string) error {
	var resp authorityVerifyResponse
	if _, err := a.http.DoJSON(ctx, http.MethodPost, "/otp/verify", authorityVerifyRequest{Identifier: identifier, Code: code}, &resp); err != nil {
		a.logger.Warn("OTP authority verify failed", zap.Error(err))
		return fmt.Errorf("%w: otp authority: %v", models.ErrUpstream, err)
	}
	if resp.Success {
		return nil
	}

	switch resp.Status {
	case "not_found":
		return models.ErrNotFound
	case "expired":
		return models.ErrExpired
	case "mismatch", "":
		return models.ErrMismatch
	default:
		return fmt.Errorf("%w: otp authority status %q", models.ErrUpstream, resp.Status)
	}
}

// Discard is a no-op: the authority supersedes codes on its own.
func (a *AuthorityClient) Discard(ctx context.Context, identifier string) error {
	return nil
}
