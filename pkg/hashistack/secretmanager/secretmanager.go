package secretmanager

import (
	"context"
	"fmt"
	"os"
	"time"

	vault "github.com/hashicorp/vault-client-go"
	"github.com/hashicorp/vault-client-go/schema"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("secretmanager", fx.Provide(ProvideVault))

const loginTimeout = 10 * time.Second

// ProvideVault returns a nil client when VAULT_ADDR is unset, and config loading then
// skips secrets. VAULT_TOKEN is picked up from the environment; otherwise an AppRole
// login is attempted with VAULT_ROLE_ID and VAULT_SECRET_ID.
func ProvideVault() (*vault.Client, error) {
	addr, ok := os.LookupEnv("VAULT_ADDR")
	if !ok {
		zap.L().Info("[Vault] VAULT_ADDR not set, secrets come from config only")
		return nil, nil
	}

	client, err := vault.New(vault.WithEnvironment())
	if err != nil {
		return nil, fmt.Errorf("vault client: %w", err)
	}

	roleID, secretID := os.Getenv("VAULT_ROLE_ID"), os.Getenv("VAULT_SECRET_ID")
	if os.Getenv("VAULT_TOKEN") == "" && roleID != "" {
		ctx, cancel := context.WithTimeout(context.Background(), loginTimeout)
		defer cancel()

		if err := approleLogin(ctx, client, roleID, secretID); err != nil {
			return nil, err
		}
	}

	zap.L().Info("[Vault] client ready", zap.String("addr", addr))
	return client, nil
}

func approleLogin(ctx context.Context, client *vault.Client, roleID, secretID string) error {
	resp, err := client.Auth.AppRoleLogin(ctx, schema.AppRoleLoginRequest{
		RoleId:   roleID,
		SecretId: secretID,
	})
	if err != nil {
		return fmt.Errorf("vault approle login: %w", err)
	}
	if resp.Auth == nil || resp.Auth.ClientToken == "" {
		return fmt.Errorf("vault approle login: empty client token")
	}
	return client.SetToken(resp.Auth.ClientToken)
}
