package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teemow/gmail-mcp/internal/config"
)

func newAuthCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize read-only Gmail access and store the token",
		Long: `Run the OAuth consent flow for read-only Gmail access.

A temporary listener on the loopback interface receives the redirect from
Google. The consent URL is printed to stderr and opened in the default
browser unless --no-browser is set. The resulting token is written to
--token-path with owner-only permissions.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadSettings(cmd.Flags(), authFlagBindings)
			if err != nil {
				return err
			}
			return runAuth(cmd, cfg, force)
		},
	}

	addAuthFlags(cmd.Flags())
	cmd.Flags().BoolVar(&force, "force", false, "Re-authorize even if a token is already stored")

	return cmd
}

func runAuth(cmd *cobra.Command, cfg config.Config, force bool) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	tokens, err := newTokenManager(cfg, logger, nil, true)
	if err != nil {
		return err
	}

	if tokens.HasToken() && !force {
		fmt.Fprintf(cmd.ErrOrStderr(), "A token is already stored at %s (use --force to re-authorize)\n", cfg.TokenPath)
		return nil
	}

	if err := tokens.Authorize(ctx); err != nil {
		return fmt.Errorf("authorization failed: %w", err)
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Token saved to %s\n", cfg.TokenPath)
	return nil
}
