package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sandeepkv93/secure-qr-auth-service/internal/config"
	"github.com/sandeepkv93/secure-qr-auth-service/internal/di"
	"github.com/sandeepkv93/secure-qr-auth-service/internal/observability"
	"github.com/sandeepkv93/secure-qr-auth-service/internal/repository"

	"github.com/spf13/cobra"
)

type options struct {
	envFile string
	out     io.Writer
}

func NewRootCommand() *cobra.Command {
	opts := &options{out: os.Stderr}
	cmd := &cobra.Command{
		Use:           "qrauth",
		Short:         "QR console login broker, invite registry and role bindings",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			opts.out = cmd.ErrOrStderr()
			return LoadEnvFile(opts.envFile)
		},
	}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file applied before reading configuration")
	cmd.AddCommand(newServeCommand(opts), newMigrateCommand(opts), newBootstrapAdminCommand(opts))
	return cmd
}

// Execute runs the root command with SIGINT and SIGTERM cancelling the
// command context.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}

func newServeCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger, lp, err := observability.NewLogger(ctx, cfg, opts.out)
			if err != nil {
				return err
			}
			application, err := di.InitializeApp(ctx, cfg, logger, lp)
			if err != nil {
				logger.Error("initialize app", "error", err)
				return err
			}
			return application.Run(ctx)
		},
	}
}

func newMigrateCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger, lp, err := observability.NewLogger(cmd.Context(), cfg, opts.out)
			if err != nil {
				return err
			}
			if lp != nil {
				defer func() { _ = lp.Shutdown(context.Background()) }()
			}
			db, err := repository.OpenDatabase(cfg.DBDriver, cfg.DatabaseURL, logger)
			if err != nil {
				return err
			}
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			defer func() { _ = sqlDB.Close() }()
			if err := repository.Migrate(db); err != nil {
				return err
			}
			logger.Info("database migrated", "driver", cfg.DBDriver)
			return nil
		},
	}
}

func newBootstrapAdminCommand(opts *options) *cobra.Command {
	var principal string
	cmd := &cobra.Command{
		Use:   "bootstrap-admin",
		Short: "Grant the admin role to a principal",
		RunE: func(cmd *cobra.Command, args []string) error {
			if principal == "" {
				return errors.New("--principal is required")
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger, lp, err := observability.NewLogger(cmd.Context(), cfg, opts.out)
			if err != nil {
				return err
			}
			if lp != nil {
				defer func() { _ = lp.Shutdown(context.Background()) }()
			}
			tools, err := di.InitializeAdminTools(cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = tools.Close() }()

			binding, err := tools.Bindings.BootstrapAdmin(cmd.Context(), principal)
			if err != nil {
				return err
			}
			logger.Info("admin role bound", "principal_id", binding.UserPrincipalID, "binding_id", binding.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&principal, "principal", "", "principal id to grant admin")
	return cmd
}
