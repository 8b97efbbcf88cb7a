package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"portal-auth/internal/client"
	"portal-auth/internal/encryption"
	"portal-auth/internal/models"
	"portal-auth/internal/util"

	"go.uber.org/zap"
)

const sessionPrefix = "session:"

// sessionRecord is the stored form of a session. Identity fields are envelope
// encrypted so a Redis dump does not expose national IDs or phone numbers.
type sessionRecord struct {
	ID             string                    `json:"id"`
	NationalID     *encryption.EncryptedData `json:"nid,omitempty"`
	Phone          *encryption.EncryptedData `json:"phone,omitempty"`
	CustomerID     string                    `json:"customer_id,omitempty"`
	ConsentGranted bool                      `json:"consent"`
	Escalation     models.Escalation         `json:"escalation"`
	AuthToken      *models.AuthToken         `json:"auth_token,omitempty"`
	CreatedAt      time.Time                 `json:"created_at"`
	LastSeenAt     time.Time                 `json:"last_seen_at"`
}

// SessionStore keeps sessions with a sliding idle TTL.
type SessionStore struct {
	client    *client.RedisClient
	encryptor *encryption.EncryptionManager
	idleTTL   time.Duration
}

func NewSessionStore(client *client.RedisClient, encryptor *encryption.EncryptionManager, idleTTL time.Duration) *SessionStore {
	return &SessionStore{client: client, encryptor: encryptor, idleTTL: idleTTL}
}

func (s *SessionStore) Get(ctx context.Context, id string) (*models.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	raw, err := s.client.Get(ctx, sessionPrefix+id)
	if err != nil {
		if errors.Is(err, client.ErrKeyNotFound) {
			return nil, models.ErrSessionNotFound
		}
		util.Error("Failed to read session", util.SessionID(id), zap.Error(err))
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var rec sessionRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}

	sess := &models.Session{
		ID:             rec.ID,
		CustomerID:     rec.CustomerID,
		ConsentGranted: rec.ConsentGranted,
		Escalation:     rec.Escalation,
		AuthToken:      rec.AuthToken,
		CreatedAt:      rec.CreatedAt,
		LastSeenAt:     rec.LastSeenAt,
	}
	if sess.NationalID, err = s.decrypt(ctx, rec.NationalID); err != nil {
		return nil, err
	}
	if sess.Phone, err = s.decrypt(ctx, rec.Phone); err != nil {
		return nil, err
	}
	return sess, nil
}

// Save writes the session and restarts its idle TTL.
func (s *SessionStore) Save(ctx context.Context, sess *models.Session) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rec := sessionRecord{
		ID:             sess.ID,
		CustomerID:     sess.CustomerID,
		ConsentGranted: sess.ConsentGranted,
		Escalation:     sess.Escalation,
		AuthToken:      sess.AuthToken,
		CreatedAt:      sess.CreatedAt,
		LastSeenAt:     sess.LastSeenAt,
	}
	var err error
	if rec.NationalID, err = s.encrypt(ctx, sess.NationalID); err != nil {
		return err
	}
	if rec.Phone, err = s.encrypt(ctx, sess.Phone); err != nil {
		return err
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := s.client.Set(ctx, sessionPrefix+sess.ID, payload, s.idleTTL); err != nil {
		util.Error("Failed to save session", util.SessionID(sess.ID), zap.Error(err))
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := s.client.Del(ctx, sessionPrefix+id); err != nil {
		util.Error("Failed to delete session", util.SessionID(id), zap.Error(err))
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (s *SessionStore) encrypt(ctx context.Context, value string) (*encryption.EncryptedData, error) {
	if value == "" {
		return nil, nil
	}
	data, err := s.encryptor.EncryptField(ctx, value)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt session field: %w", err)
	}
	return data, nil
}

func (s *SessionStore) decrypt(ctx context.Context, data *encryption.EncryptedData) (string, error) {
	if data == nil {
		return "", nil
	}
	value, err := s.encryptor.DecryptField(ctx, data)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt session field: %w", err)
	}
	return value, nil
}
