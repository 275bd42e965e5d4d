package secrets

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"adichat/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvironmentFallbackWithoutVault(t *testing.T) {
	m, err := NewVaultManager(VaultConfig{}, logger.Nop())
	require.NoError(t, err)
	assert.False(t, m.Enabled())

	m.lookup = func(k string) (string, bool) {
		if k == "GROQ_API_KEY" {
			return "from-env", true
		}
		return "", false
	}

	v, err := m.GetSecret(context.Background(), KeyGroqAPIKey)
	require.NoError(t, err)
	assert.Equal(t, "from-env", v)

	_, err = m.GetSecret(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrSecretNotFound)
	assert.Equal(t, "dflt", m.GetSecretWithDefault(context.Background(), "missing", "dflt"))
}

func TestVaultKVv2Read(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/secret/data/adichat" {
			http.NotFound(w, r)
			return
		}
		assert.Equal(t, "root", r.Header.Get("X-Vault-Token"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"data":{"groq_api_key":"from-vault"},"metadata":{"created_time":"2024-01-01T00:00:00Z","deletion_time":"","destroyed":false,"version":1}}}`))
	}))
	defer srv.Close()

	m, err := NewVaultManager(VaultConfig{Address: srv.URL, Token: "root", Path: "adichat", MaxRetries: -1}, logger.Nop())
	require.NoError(t, err)
	m.lookup = func(string) (string, bool) { return "", false }

	v, err := m.GetSecret(context.Background(), KeyGroqAPIKey)
	require.NoError(t, err)
	assert.Equal(t, "from-vault", v)

	_, err = m.GetSecret(context.Background(), KeyJWTSecret)
	assert.ErrorIs(t, err, ErrSecretNotFound)
}

func TestVaultRequiresToken(t *testing.T) {
	_, err := NewVaultManager(VaultConfig{Address: "http://127.0.0.1:8200"}, logger.Nop())
	assert.ErrorIs(t, err, ErrNoVaultToken)
}
