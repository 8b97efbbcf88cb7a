package encryption

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"portal-auth/internal/config"
	"portal-auth/internal/util"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"go.uber.org/zap"
)

var (
	ErrEncryptionFailed = errors.New("encryption failed")
	ErrDecryptionFailed = errors.New("decryption failed")
)

// how long one data key is reused before a fresh one is requested
const dataKeyLifetime = time.Hour

// KMSAPI is the subset of the KMS client used for envelope encryption.
type KMSAPI interface {
	GenerateDataKey(ctx context.Context, params *kms.GenerateDataKeyInput, optFns ...func(*kms.Options)) (*kms.GenerateDataKeyOutput, error)
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

type EncryptedData struct {
	EncryptedValue string `json:"v"`
	EncryptedDEK   string `json:"k"`
	KeyID          string `json:"kid"`
	Version        string `json:"ver"`
}

type dataKey struct {
	plaintext  []byte
	ciphertext string
	keyID      string
	createdAt  time.Time
}

// EncryptionManager protects PII fields with AES-256-GCM envelope encryption.
// Data keys come from KMS when enabled; otherwise they are wrapped with a
// process-local master key.
type EncryptionManager struct {
	kmsClient KMSAPI
	cfg       config.KMSConfig
	masterKey []byte

	mu       sync.Mutex
	current  *dataKey
	keyCache sync.Map // encrypted DEK -> plaintext DEK
}

func NewEncryptionManager(cfg config.KMSConfig, kmsClient KMSAPI) (*EncryptionManager, error) {
	em := &EncryptionManager{
		kmsClient: kmsClient,
		cfg:       cfg,
	}
	if cfg.Enabled {
		if kmsClient == nil {
			return nil, errors.New("kms enabled but no client configured")
		}
		return em, nil
	}

	if cfg.LocalKey != "" {
		key, err := base64.StdEncoding.DecodeString(cfg.LocalKey)
		if err != nil || len(key) != 32 {
			return nil, errors.New("local master key must be 32 bytes, base64 encoded")
		}
		em.masterKey = key
		return em, nil
	}

	em.masterKey = make([]byte, 32)
	if _, err := rand.Read(em.masterKey); err != nil {
		return nil, fmt.Errorf("failed to generate local master key: %w", err)
	}
	util.Warn("KMS disabled, using process-local master key; encrypted sessions will not survive restarts")
	return em, nil
}

// EncryptField seals plaintext under the current data key.
func (em *EncryptionManager) EncryptField(ctx context.Context, plaintext string) (*EncryptedData, error) {
	dk, err := em.currentDataKey(ctx)
	if err != nil {
		return nil, err
	}

	sealed, err := seal(dk.plaintext, []byte(plaintext))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	return &EncryptedData{
		EncryptedValue: base64.StdEncoding.EncodeToString(sealed),
		EncryptedDEK:   dk.ciphertext,
		KeyID:          dk.keyID,
		Version:        "v1",
	}, nil
}

// DecryptField opens a value produced by EncryptField.
func (em *EncryptionManager) DecryptField(ctx context.Context, data *EncryptedData) (string, error) {
	if data == nil {
		return "", fmt.Errorf("%w: empty value", ErrDecryptionFailed)
	}

	key, err := em.unwrapDataKey(ctx, data.EncryptedDEK)
	if err != nil {
		return "", err
	}

	sealed, err := base64.StdEncoding.DecodeString(data.EncryptedValue)
	if err != nil {
		return "", fmt.Errorf("%w: invalid ciphertext format", ErrDecryptionFailed)
	}
	plaintext, err := open(key, sealed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return string(plaintext), nil
}

// ClearCache drops cached data keys.
func (em *EncryptionManager) ClearCache() {
	em.mu.Lock()
	em.current = nil
	em.mu.Unlock()

	em.keyCache.Range(func(key, _ interface{}) bool {
		em.keyCache.Delete(key)
		return true
	})
}

func (em *EncryptionManager) currentDataKey(ctx context.Context) (*dataKey, error) {
	em.mu.Lock()
	defer em.mu.Unlock()

	if em.current != nil && time.Since(em.current.createdAt) < dataKeyLifetime {
		return em.current, nil
	}

	dk, err := em.generateDataKey(ctx)
	if err != nil {
		return nil, err
	}
	em.current = dk
	em.keyCache.Store(dk.ciphertext, dk.plaintext)
	return dk, nil
}

func (em *EncryptionManager) generateDataKey(ctx context.Context) (*dataKey, error) {
	if em.cfg.Enabled {
		out, err := em.kmsClient.GenerateDataKey(ctx, &kms.GenerateDataKeyInput{
			KeyId:   aws.String(em.cfg.KeyID),
			KeySpec: types.DataKeySpecAes256,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: failed to generate data key: %v", ErrEncryptionFailed, err)
		}
		util.Debug("Generated KMS data key", zap.String("key_id", em.cfg.KeyID))
		return &dataKey{
			plaintext:  out.Plaintext,
			ciphertext: base64.StdEncoding.EncodeToString(out.CiphertextBlob),
			keyID:      em.cfg.KeyID,
			createdAt:  time.Now(),
		}, nil
	}

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	wrapped, err := seal(em.masterKey, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	return &dataKey{
		plaintext:  key,
		ciphertext: base64.StdEncoding.EncodeToString(wrapped),
		keyID:      "local",
		createdAt:  time.Now(),
	}, nil
}

func (em *EncryptionManager) unwrapDataKey(ctx context.Context, encryptedDEK string) ([]byte, error) {
	if cached, ok := em.keyCache.Load(encryptedDEK); ok {
		return cached.([]byte), nil
	}

	blob, err := base64.StdEncoding.DecodeString(encryptedDEK)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid DEK format", ErrDecryptionFailed)
	}

	var key []byte
	if em.cfg.Enabled {
		out, err := em.kmsClient.Decrypt(ctx, &kms.DecryptInput{CiphertextBlob: blob})
		if err != nil {
			return nil, fmt.Errorf("%w: failed to decrypt DEK: %v", ErrDecryptionFailed, err)
		}
		key = out.Plaintext
	} else {
		key, err = open(em.masterKey, blob)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to unwrap local DEK", ErrDecryptionFailed)
		}
	}

	em.keyCache.Store(encryptedDEK, key)
	return key, nil
}

func seal(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func open(key, sealed []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, nil)
}
