// Package sms delivers text messages through an HTTP bulk-SMS provider.
package sms

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"portal-auth/internal/client"
	"portal-auth/internal/config"
	"portal-auth/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrDeliveryRejected = errors.New("sms provider rejected message")

// Gateway sends a message and returns the provider's delivery reference.
type Gateway interface {
	Send(ctx context.Context, phone, message string) (string, error)
}

// NewGateway picks the provider named in cfg. Unknown providers fall back to logging.
func NewGateway(cfg config.SMSConfig, countryCode string, logger *zap.Logger) Gateway {
	if cfg.Provider == "http" {
		return NewHTTPGateway(cfg, countryCode, logger)
	}
	return NewLogGateway(logger)
}

type HTTPGateway struct {
	http        *client.JSONClient
	username    string
	password    string
	senderID    string
	countryCode string
	logger      *zap.Logger
}

type sendRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	SenderID    string `json:"senderId"`
	Destination string `json:"destination"`
	Message     string `json:"message"`
}

type sendResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    struct {
		MessageID string `json:"message_id"`
	} `json:"data"`
}

func NewHTTPGateway(cfg config.SMSConfig, countryCode string, logger *zap.Logger) *HTTPGateway {
	return &HTTPGateway{
		http:        client.NewJSONClient(cfg.BaseURL, cfg.Timeout, map[string]string{"User-Agent": "portal-auth/1.0"}),
		username:    cfg.Username,
		password:    cfg.Password,
		senderID:    cfg.SenderID,
		countryCode: countryCode,
		logger:      logger,
	}
}

func (g *HTTPGateway) Send(ctx context.Context, phone, message string) (string, error) {
	req := sendRequest{
		Username:    g.username,
		Password:    g.password,
		SenderID:    g.senderID,
		Destination: g.international(phone),
		Message:     message,
	}

	var resp sendResponse
	status, err := g.http.DoJSON(ctx, http.MethodPost, "/send", req, &resp)
	if err != nil {
		g.logger.Warn("SMS request failed", util.MaskedPhone("phone", phone), zap.Int("status", status), zap.Error(err))
		return "", fmt.Errorf("sms send: %w", err)
	}

	switch strings.ToLower(resp.Status) {
	case "success", "sent", "queued":
	default:
		g.logger.Warn("SMS rejected", util.MaskedPhone("phone", phone), zap.String("provider_message", resp.Message))
		return "", fmt.Errorf("%w: %s", ErrDeliveryRejected, resp.Message)
	}

	g.logger.Info("SMS sent", util.MaskedPhone("phone", phone), zap.String("message_id", resp.Data.MessageID))
	return resp.Data.MessageID, nil
}

// international turns 05XXXXXXXXX into +905XXXXXXXXX.
func (g *HTTPGateway) international(phone string) string {
	return "+" + g.countryCode + strings.TrimPrefix(phone, "0")
}

// LogGateway only logs. The message body is logged at debug level so local
// runs can read the code.
type LogGateway struct {
	logger *zap.Logger
}

func NewLogGateway(logger *zap.Logger) *LogGateway {
	return &LogGateway{logger: logger}
}

func (g *LogGateway) Send(_ context.Context, phone, message string) (string, error) {
	id := uuid.NewString()
	g.logger.Info("SMS delivery simulated", util.MaskedPhone("phone", phone), zap.String("message_id", id))
	g.logger.Debug("SMS body", zap.String("message", message))
	return id, nil
}
