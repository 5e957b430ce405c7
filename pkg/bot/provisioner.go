package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/Mathih13/botharness/pkg/admin"
)

// Provisioner creates and promotes game accounts over the admin channel
// pool. Account creation is idempotent: an already-existing account is
// treated as success.
type Provisioner struct {
	pool     *admin.Pool
	password string
}

// NewProvisioner creates a provisioner using the fixed test account
// password.
func NewProvisioner(pool *admin.Pool, password string) *Provisioner {
	return &Provisioner{pool: pool, password: password}
}

// Password returns the fixed test account password.
func (p *Provisioner) Password() string { return p.password }

// EnsureAccount creates the account if it does not exist.
func (p *Provisioner) EnsureAccount(ctx context.Context, accountName string) error {
	return p.pool.WithConnection(ctx, func(ch admin.Channel) error {
		response, err := ch.SendCommand(ctx, fmt.Sprintf("account create %s %s", accountName, p.password))
		if err != nil {
			return fmt.Errorf("creating account %s: %w", accountName, err)
		}
		if strings.Contains(strings.ToLower(response), "already exist") {
			return nil
		}
		if strings.Contains(strings.ToLower(response), "error") {
			return fmt.Errorf("creating account %s: %s", accountName, response)
		}
		return nil
	})
}
