package protected

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/vault-client-go"
	"github.com/hashicorp/vault-client-go/schema"
)

// Vault is a client instance to Hashicorp Vault secure storage
// Token is a way to access to Vault secret's storage
type Vault struct {
	Token         string
	Client        *vault.Client
	LeaseDuration int
}

// NewVaultClient creates new instance of Vault client
func NewVaultClient() (*Vault, error) {
	v := Vault{}
	vaultAddr := os.Getenv("VAULT_ADDR")
	if vaultAddr == "" {
		vaultAddr = "http://vault:8200"
	}
	client, err := vault.New(
		vault.WithAddress(vaultAddr),
		vault.WithRequestTimeout(30*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("error while creating new vault client instance: %w", err)
	}
	v.Client = client
	if token := os.Getenv("VAULT_TOKEN"); token != "" {
		if err = v.Client.SetToken(token); err != nil {
			return nil, fmt.Errorf("error while setting token: %w", err)
		}
	}
	return &v, nil
}

// AuthAppRole authenticates the service as a Vault AppRole client.
func (v *Vault) AuthAppRole(ctx context.Context, roleID, secretID string) error {
	resp, err := v.Client.Auth.AppRoleLogin(
		ctx,
		schema.AppRoleLoginRequest{
			RoleId:   roleID,
			SecretId: secretID,
		})
	if err != nil {
		return err
	}
	if err = v.Client.SetToken(resp.Auth.ClientToken); err != nil {
		return err
	}
	return nil
}
