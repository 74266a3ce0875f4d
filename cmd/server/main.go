package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"spellcast/internal/app"
	"spellcast/internal/config"
)

const releaseVersion = "0.1.0"

func main() {
	log.SetFlags(0)

	cfg := &config.Config{}
	cmd := config.NewCommand(cfg, releaseVersion, func(cmd *cobra.Command, cfg *config.Config) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return app.Serve(ctx, cfg, releaseVersion)
	})

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		log.Fatal(err)
	}
}
