package encryption

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"portal-auth/internal/config"

	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var wrapPrefix = []byte("wrapped:")

type fakeKMS struct {
	generated int
	decrypted int
	failNext  bool
}

func (f *fakeKMS) GenerateDataKey(_ context.Context, _ *kms.GenerateDataKeyInput, _ ...func(*kms.Options)) (*kms.GenerateDataKeyOutput, error) {
	if f.failNext {
		return nil, errors.New("kms unavailable")
	}
	f.generated++
	key := bytes.Repeat([]byte{byte(f.generated)}, 32)
	return &kms.GenerateDataKeyOutput{
		Plaintext:      key,
		CiphertextBlob: append(append([]byte{}, wrapPrefix...), key...),
	}, nil
}

func (f *fakeKMS) Decrypt(_ context.Context, in *kms.DecryptInput, _ ...func(*kms.Options)) (*kms.DecryptOutput, error) {
	f.decrypted++
	if !bytes.HasPrefix(in.CiphertextBlob, wrapPrefix) {
		return nil, errors.New("bad blob")
	}
	return &kms.DecryptOutput{Plaintext: in.CiphertextBlob[len(wrapPrefix):]}, nil
}

func TestLocalRoundTrip(t *testing.T) {
	em, err := NewEncryptionManager(config.KMSConfig{}, nil)
	require.NoError(t, err)
	ctx := context.Background()

	enc, err := em.EncryptField(ctx, "05321234567")
	require.NoError(t, err)
	assert.NotContains(t, enc.EncryptedValue, "05321234567")
	assert.Equal(t, "local", enc.KeyID)

	em.ClearCache()
	plain, err := em.DecryptField(ctx, enc)
	require.NoError(t, err)
	assert.Equal(t, "05321234567", plain)
}

func TestPinnedLocalKeyIsSharedAcrossInstances(t *testing.T) {
	cfg := config.KMSConfig{LocalKey: base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{7}, 32))}
	a, err := NewEncryptionManager(cfg, nil)
	require.NoError(t, err)
	b, err := NewEncryptionManager(cfg, nil)
	require.NoError(t, err)
	ctx := context.Background()

	enc, err := a.EncryptField(ctx, "12345678901")
	require.NoError(t, err)
	plain, err := b.DecryptField(ctx, enc)
	require.NoError(t, err)
	assert.Equal(t, "12345678901", plain)

	_, err = NewEncryptionManager(config.KMSConfig{LocalKey: "c2hvcnQ="}, nil)
	assert.Error(t, err)
}

func TestKMSDataKeyIsReused(t *testing.T) {
	kmsClient := &fakeKMS{}
	em, err := NewEncryptionManager(config.KMSConfig{Enabled: true, KeyID: "alias/portal"}, kmsClient)
	require.NoError(t, err)
	ctx := context.Background()

	a, err := em.EncryptField(ctx, "12345678901")
	require.NoError(t, err)
	b, err := em.EncryptField(ctx, "05321234567")
	require.NoError(t, err)
	assert.Equal(t, 1, kmsClient.generated)
	assert.Equal(t, a.EncryptedDEK, b.EncryptedDEK)

	em.ClearCache()
	plain, err := em.DecryptField(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, "05321234567", plain)
	assert.Equal(t, 1, kmsClient.decrypted)

	_, err = em.DecryptField(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, 1, kmsClient.decrypted, "unwrapped key should be cached")
}

func TestKMSFailureSurfaces(t *testing.T) {
	em, err := NewEncryptionManager(config.KMSConfig{Enabled: true, KeyID: "k"}, &fakeKMS{failNext: true})
	require.NoError(t, err)

	_, err = em.EncryptField(context.Background(), "x")
	assert.ErrorIs(t, err, ErrEncryptionFailed)
}

func TestTamperedCiphertextFails(t *testing.T) {
	em, err := NewEncryptionManager(config.KMSConfig{}, nil)
	require.NoError(t, err)
	ctx := context.Background()

	enc, err := em.EncryptField(ctx, "secret")
	require.NoError(t, err)
	enc.EncryptedValue = "AAAA" + enc.EncryptedValue[4:]

	_, err = em.DecryptField(ctx, enc)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestKMSEnabledRequiresClient(t *testing.T) {
	_, err := NewEncryptionManager(config.KMSConfig{Enabled: true, KeyID: "k"}, nil)
	assert.Error(t, err)
}
