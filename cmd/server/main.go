package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/wolfeidau/ownerportal/cmd/server/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Dev            bool                      `help:"Enable development mode (console logs, debug level)." env:"OWNERPORTAL_DEV"`
		Version        kong.VersionFlag
		Serve          commands.ServeCmd          `cmd:"" default:"withargs" help:"Start the owner portal HTTP server"`
		Migrate        commands.MigrateCmd        `cmd:"" help:"Apply database migrations"`
		BootstrapAdmin commands.BootstrapAdminCmd `cmd:"" help:"Create or promote an admin identity"`
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("ownerportal"),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Dev: cli.Dev, Version: version})
	cmd.FatalIfErrorf(err)
}
