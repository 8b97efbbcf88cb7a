package hashing

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"portal-auth/internal/config"
	"portal-auth/internal/util"

	"go.uber.org/zap"
	"golang.org/x/crypto/argon2"
)

var (
	ErrInvalidHash     = errors.New("invalid hash format")
	ErrUnknownPepper   = errors.New("pepper version not found")
	ErrUnsupportedAlgo = errors.New("unsupported hash algorithm")
)

const algorithmArgon2id = "argon2id-v1"

// keep this many retired peppers so codes hashed just before a rotation still verify
const retiredPeppers = 2

type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

type Pepper struct {
	Value     []byte
	CreatedAt time.Time
	Version   int
}

// Hasher hashes one-time codes with argon2id, a per-hash salt and a
// rotating process-local pepper.
type Hasher struct {
	params   Argon2Params
	rotation time.Duration

	mu         sync.RWMutex
	current    *Pepper
	oldPeppers []*Pepper
}

type HashResult struct {
	Hash          string `json:"hash"`
	Salt          string `json:"salt"`
	PepperVersion int    `json:"pepper_version"`
	Algorithm     string `json:"algorithm"`
}

func NewHasher(cfg config.HashingConfig) *Hasher {
	h := &Hasher{
		params: Argon2Params{
			Memory:      uint32(cfg.Argon2MemoryCost),
			Iterations:  uint32(cfg.Argon2TimeCost),
			Parallelism: uint8(cfg.Argon2Parallelism),
			SaltLength:  16,
			KeyLength:   32,
		},
		rotation: time.Duration(cfg.PepperRotationDays) * 24 * time.Hour,
	}
	if cfg.Pepper != "" {
		h.current = &Pepper{Value: []byte(cfg.Pepper), CreatedAt: time.Now(), Version: 1}
		h.rotation = 0
		return h
	}
	h.rotatePepper()
	return h
}

func (h *Hasher) rotatePepper() {
	value := make([]byte, 32)
	if _, err := rand.Read(value); err != nil {
		util.Fatal("Failed to generate pepper", zap.Error(err))
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	version := 1
	if h.current != nil {
		version = h.current.Version + 1
		h.oldPeppers = append(h.oldPeppers, h.current)
		if len(h.oldPeppers) > retiredPeppers {
			h.oldPeppers = h.oldPeppers[len(h.oldPeppers)-retiredPeppers:]
		}
	}
	h.current = &Pepper{Value: value, CreatedAt: time.Now(), Version: version}

	util.Info("Pepper rotated", zap.Int("version", version))
}

// StartPepperRotation rotates the pepper on the configured interval until ctx is done.
func (h *Hasher) StartPepperRotation(ctx context.Context) {
	if h.rotation <= 0 {
		return
	}
	ticker := time.NewTicker(h.rotation)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.rotatePepper()
			}
		}
	}()
}

// HashOTP hashes a one-time code with the current pepper.
func (h *Hasher) HashOTP(code string) (HashResult, error) {
	h.mu.RLock()
	pepper := h.current
	h.mu.RUnlock()

	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return HashResult{}, fmt.Errorf("failed to generate salt: %w", err)
	}

	key := h.derive(code, pepper.Value, salt, h.params.KeyLength)

	return HashResult{
		Hash:          base64.RawURLEncoding.EncodeToString(key),
		Salt:          base64.RawURLEncoding.EncodeToString(salt),
		PepperVersion: pepper.Version,
		Algorithm:     algorithmArgon2id,
	}, nil
}

// VerifyOTP reports whether code hashes to stored, in constant time.
func (h *Hasher) VerifyOTP(code string, stored HashResult) (bool, error) {
	if stored.Algorithm != algorithmArgon2id {
		return false, ErrUnsupportedAlgo
	}

	pepper, err := h.pepper(stored.PepperVersion)
	if err != nil {
		return false, err
	}

	salt, err := base64.RawURLEncoding.DecodeString(stored.Salt)
	if err != nil {
		return false, ErrInvalidHash
	}
	expected, err := base64.RawURLEncoding.DecodeString(stored.Hash)
	if err != nil || len(expected) == 0 {
		return false, ErrInvalidHash
	}

	computed := h.derive(code, pepper, salt, uint32(len(expected)))
	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}

func (h *Hasher) derive(code string, pepper, salt []byte, keyLen uint32) []byte {
	// the "otp" suffix domain-separates these hashes from any other use of the pepper
	input := make([]byte, 0, len(code)+len(pepper)+3)
	input = append(input, code...)
	input = append(input, pepper...)
	input = append(input, "otp"...)

	return argon2.IDKey(input, salt, h.params.Iterations, h.params.Memory, h.params.Parallelism, keyLen)
}

func (h *Hasher) pepper(version int) ([]byte, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.current != nil && h.current.Version == version {
		return h.current.Value, nil
	}
	for _, p := range h.oldPeppers {
		if p.Version == version {
			return p.Value, nil
		}
	}
	return nil, ErrUnknownPepper
}
