package commands

import (
	"context"

	"github.com/wolfeidau/ownerportal/internal/identity"
	"github.com/wolfeidau/ownerportal/internal/logger"
	"github.com/wolfeidau/ownerportal/internal/timeout"
)

type BootstrapAdminCmd struct {
	Email    string        `help:"email of the identity to promote" required:""`
	Postgres PostgresFlags `embed:"" prefix:"postgres-"`
}

func (c *BootstrapAdminCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Dev)
	ctx = log.WithContext(ctx)

	backends, err := openStores(ctx, log, "postgres", &c.Postgres, false)
	if err != nil {
		return err
	}
	defer backends.close()

	svc := identity.NewService(identity.Config{
		Identities: backends.identities,
		Sessions:   backends.sessions,
		Timeouts:   timeout.DefaultPolicy(),
	})

	admin, err := svc.BootstrapAdmin(ctx, c.Email)
	if err != nil {
		return err
	}

	log.Info().Str("user_id", admin.ID.String()).Str("email", admin.Email).Msg("Admin ready")
	return nil
}
