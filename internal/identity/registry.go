// Package identity checks a national ID and phone pair against the customer registry.
package identity

import (
	"context"
	"net/http"

	"portal-auth/internal/client"
	"portal-auth/internal/config"
	"portal-auth/internal/models"
	"portal-auth/internal/util"

	"go.uber.org/zap"
)

const (
	msgVerified    = "Identity verified."
	msgNoMatch     = "The details you entered could not be verified."
	msgUnavailable = "Identity verification is temporarily unavailable. Please try again."
)

// Result is always returned, never an error.
type Result struct {
	Success    bool
	CustomerID string
	Message    string
	Kind       models.ErrorKind
}

type Validator interface {
	Validate(ctx context.Context, nationalID, phone string) Result
}

type RegistryClient struct {
	http   *client.JSONClient
	logger *zap.Logger
}

type validateRequest struct {
	NationalID string `json:"nationalId"`
	Phone      string `json:"phone"`
}

type validateResponse struct {
	Success    bool   `json:"success"`
	CustomerID string `json:"customerId"`
	Message    string `json:"message"`
}

func NewRegistryClient(cfg config.IdentityConfig, logger *zap.Logger) *RegistryClient {
	headers := map[string]string{}
	if cfg.APIKey != "" {
		headers["X-Api-Key"] = cfg.APIKey
	}
	return &RegistryClient{
		http:   client.NewJSONClient(cfg.BaseURL, cfg.Timeout, headers),
		logger: logger,
	}
}

func (c *RegistryClient) Validate(ctx context.Context, nationalID, phone string) Result {
	var resp validateResponse
	status, err := c.http.DoJSON(ctx, http.MethodPost, "/identity/validate",
		validateRequest{NationalID: nationalID, Phone: phone}, &resp)
	if err != nil {
		c.logger.Warn("Identity registry call failed",
			zap.Int("status", status), util.MaskedPhone("phone", phone), zap.Error(err))
		return Result{Message: msgUnavailable, Kind: models.KindUpstream}
	}

	if !resp.Success || resp.CustomerID == "" {
		// the registry's own message may say which field was wrong
		c.logger.Info("Identity registry rejected pair", zap.String("registry_message", resp.Message))
		return Result{Message: msgNoMatch, Kind: models.KindMismatch}
	}

	return Result{Success: true, CustomerID: resp.CustomerID, Message: msgVerified}
}
