package secretmanager

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProvideVaultWithoutAddr(t *testing.T) {
	// Setenv registers the restore; Unsetenv makes LookupEnv report it absent.
	t.Setenv("VAULT_ADDR", "")
	require.NoError(t, os.Unsetenv("VAULT_ADDR"))

	client, err := ProvideVault()
	require.NoError(t, err)
	require.Nil(t, client)
}

func TestProvideVaultWithToken(t *testing.T) {
	t.Setenv("VAULT_ADDR", "http://127.0.0.1:8200")
	t.Setenv("VAULT_TOKEN", "root")

	client, err := ProvideVault()
	require.NoError(t, err)
	require.NotNil(t, client)
}
