package tls

import (
	"crypto/x509"
	"testing"

	"portal-auth/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDevCertIsGeneratedAndReused(t *testing.T) {
	dir := t.TempDir()
	gen := NewDevCertGenerator(dir)

	first, err := gen.GenerateCert([]string{"portal.local", "127.0.0.1"})
	require.NoError(t, err)

	leaf, err := x509.ParseCertificate(first.Certificate[0])
	require.NoError(t, err)
	assert.Contains(t, leaf.DNSNames, "portal.local")
	assert.Len(t, leaf.IPAddresses, 1)

	second, err := gen.GenerateCert([]string{"portal.local"})
	require.NoError(t, err)
	assert.Equal(t, first.Certificate[0], second.Certificate[0])
}

func TestManagerFallsBackToSelfSignedOutsideProduction(t *testing.T) {
	m := NewTLSManager(config.ServerConfig{Domain: "localhost", AutoCertDir: t.TempDir()}, false)

	cert, err := m.GetCertificate(nil)
	require.NoError(t, err)
	again, err := m.GetCertificate(nil)
	require.NoError(t, err)
	assert.Same(t, cert, again)
}

func TestManagerRefusesSelfSignedInProduction(t *testing.T) {
	m := NewTLSManager(config.ServerConfig{Domain: "portal.example", AutoCertDir: t.TempDir()}, true)

	_, err := m.GetCertificate(nil)
	assert.ErrorIs(t, err, ErrNoCertificate)
	assert.Nil(t, m.AutocertManager())
}
