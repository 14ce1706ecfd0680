package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/finbot/finbot/internal/server"
	"github.com/spf13/cobra"
)

func init() {
	RootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the webhook and operations API server",
		RunE:  runServe,
	})
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := server.Build(ctx, cfg)
	if err != nil {
		return err
	}
	srv, err := server.New(cfg, deps)
	if err != nil {
		deps.Close()
		return fmt.Errorf("create server: %w", err)
	}
	return srv.Run(ctx)
}

// commandContext is the context for one-shot commands.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
