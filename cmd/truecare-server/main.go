package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/medyassinekhlif/TrueCare/internal/config"
	"github.com/medyassinekhlif/TrueCare/internal/domain/registry"
	"github.com/medyassinekhlif/TrueCare/internal/domain/reimbursement"
	"github.com/medyassinekhlif/TrueCare/internal/platform/auth"
	"github.com/medyassinekhlif/TrueCare/internal/platform/db"
	"github.com/medyassinekhlif/TrueCare/internal/platform/predictor"
	"github.com/medyassinekhlif/TrueCare/internal/platform/progress"
	"github.com/medyassinekhlif/TrueCare/internal/platform/sandbox"
	"github.com/medyassinekhlif/TrueCare/migrations"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "truecare-server",
		Short: "TrueCare claims and reimbursement API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(backfillCmd())
	return rootCmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg)

	ctx := context.Background()
	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.StoreDriver, err)
	}
	defer st.close()

	p := predictor.NewClient(cfg.PredictorURL, cfg.PredictorTimeout)
	e, err := newServer(cfg, logger, st, p)
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}

	// Graceful shutdown
	serveErr := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("driver", cfg.StoreDriver).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serveErr:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run Postgres schema migrations",
	}

	openMigrator := func(ctx context.Context) (*db.Migrator, func(), error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, nil, err
		}
		if cfg.StoreDriver != config.DriverPostgres {
			return nil, nil, fmt.Errorf("migrations apply to the postgres store only (STORE_DRIVER=%q)", cfg.StoreDriver)
		}
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{MaxConns: 2})
		if err != nil {
			return nil, nil, err
		}
		return db.NewMigrator(pool, migrations.FS), pool.Close, nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			migrator, closeFn, err := openMigrator(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			migrator, closeFn, err := openMigrator(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Fprintln(out, "---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	})

	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a signed bearer token for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, _ := cmd.Flags().GetString("sub")
			roles, _ := cmd.Flags().GetStringSlice("role")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			key, err := cfg.SigningKey()
			if err != nil {
				return err
			}
			if key == nil {
				return fmt.Errorf("AUTH_SIGNING_KEY is required to mint tokens")
			}

			token, err := auth.IssueToken(key, auth.TokenRequest{
				Subject:  subject,
				Roles:    roles,
				Issuer:   cfg.AuthIssuer,
				Audience: cfg.AuthAudience,
				TTL:      ttl,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().String("sub", "", "User id to place in the token subject")
	cmd.Flags().StringSlice("role", nil, "Role to grant (admin, insurer, doctor, client); repeatable")
	cmd.Flags().Duration("ttl", time.Hour, "Token lifetime")
	return cmd
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Generate or load demo data",
	}

	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Write synthetic fixtures as NDJSON (.gz to compress)",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, _ := cmd.Flags().GetString("out")
			seedCfg := sandbox.DefaultSeedConfig()
			seedCfg.Insurers, _ = cmd.Flags().GetInt("insurers")
			seedCfg.Doctors, _ = cmd.Flags().GetInt("doctors")
			seedCfg.ClientsPerInsurer, _ = cmd.Flags().GetInt("clients")
			seedCfg.BulletinsPerClient, _ = cmd.Flags().GetInt("bulletins")
			seedCfg.Seed, _ = cmd.Flags().GetInt64("seed")

			records := sandbox.Generate(seedCfg)
			if err := sandbox.WriteFile(out, records); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d record(s) to %s\n", len(records), out)
			return nil
		},
	}
	defaults := sandbox.DefaultSeedConfig()
	generateCmd.Flags().String("out", "fixtures.ndjson.gz", "Output file")
	generateCmd.Flags().Int("insurers", defaults.Insurers, "Number of insurers")
	generateCmd.Flags().Int("doctors", defaults.Doctors, "Number of doctors")
	generateCmd.Flags().Int("clients", defaults.ClientsPerInsurer, "Clients per insurer")
	generateCmd.Flags().Int("bulletins", defaults.BulletinsPerClient, "Bulletins per client")
	generateCmd.Flags().Int64("seed", 0, "Random seed (0 picks one)")
	cmd.AddCommand(generateCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "load FILE",
		Short: "Load NDJSON fixtures into the configured store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := sandbox.ReadFile(args[0])
			if err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			ctx := cmd.Context()
			st, err := openStores(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer st.close()

			seeder := sandbox.NewSeeder(registry.NewService(st.registry), st.registry.Users, logger)
			res, err := seeder.Load(ctx, records)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Loaded %d insurer(s), %d doctor(s), %d client(s), %d bulletin(s); skipped %d.\n",
				res.Insurers, res.Doctors, res.Clients, res.Bulletins, res.Skipped)
			return nil
		},
	})

	return cmd
}

func backfillCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Estimate every bulletin of an insurer's clients",
		RunE: func(cmd *cobra.Command, args []string) error {
			insurer, _ := cmd.Flags().GetString("insurer")
			concurrency, _ := cmd.Flags().GetInt("concurrency")
			quiet, _ := cmd.Flags().GetBool("no-progress")
			if insurer == "" {
				return fmt.Errorf("--insurer is required")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			st, err := openStores(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer st.close()

			var pm progress.Manager = progress.NewMPBManager(cmd.OutOrStdout())
			if quiet {
				pm = &progress.NoopManager{Out: cmd.OutOrStdout()}
			}

			p := predictor.NewClient(cfg.PredictorURL, cfg.PredictorTimeout)
			estimator := reimbursement.NewService(st.registry, st.estimations, p, logger)
			report, err := estimator.Backfill(ctx, insurer, concurrency, pm)
			if report != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "%d client(s), %d bulletin(s): %d created, %d already estimated, %d failed\n",
					report.Clients, report.Bulletins, report.Created, report.Existed, report.Failed)
			}
			return err
		},
	}
	cmd.Flags().String("insurer", "", "Insurer user id")
	cmd.Flags().Int("concurrency", 4, "Clients processed in parallel")
	cmd.Flags().Bool("no-progress", false, "Print one line per client instead of progress bars")
	return cmd
}
