/*
main.go - Application entry point

PURPOSE:
  Starts the clinic practice engine API and hosts a few operator commands.
  Handles configuration, dependency injection, and graceful shutdown.

COMMANDS:
  serve                          Run the HTTP API
  balance <employee-id>          Print an employee's balances
  business-days <start> <end>    Count Sunday-Thursday days, inclusive
  policy validate <file>         Check a .json/.yaml leave policy file

CONFIGURATION:
  Flags, CLINIC_* environment variables and an optional .env file.
  See config/config.go for every key and its default.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the snapshot scheduler
  4. Close database connection

EXAMPLES:
  ./server serve --db=./data/clinic.db --log-level=debug
  CLINIC_DB=":memory:" ./server serve
  ./server balance emp-dana --as-of=2025-06-15
  ./server business-days 2024-01-07 2024-01-13
  ./server policy validate policies/nurse.yaml
*/
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

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vetclinic/practice-engine/api"
	"github.com/vetclinic/practice-engine/config"
	"github.com/vetclinic/practice-engine/factory"
	"github.com/vetclinic/practice-engine/generic"
	"github.com/vetclinic/practice-engine/leave"
	"github.com/vetclinic/practice-engine/store/sqlite"
)

var v = config.New()

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "server",
		Short:         "Veterinary clinic leave and treatment engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cobra.OnInitialize(initConfig)

	cmd.PersistentFlags().String(config.KeyDB, "clinic.db", "SQLite database path (:memory: for in-memory)")
	cmd.PersistentFlags().String(config.KeyTimezone, "Asia/Jerusalem", "clinic time zone")
	cmd.PersistentFlags().String(config.KeyLogLevel, "info", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().String(config.KeyEnv, "development", "development or production")
	_ = v.BindPFlags(cmd.PersistentFlags())

	cmd.AddCommand(serveCmd(), balanceCmd(), businessDaysCmd(), policyCmd())
	return cmd
}

func initConfig() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, "warning:", err)
	}
}

// setup loads config and opens the store shared by every command.
func setup() (*config.Config, *zap.Logger, *sqlite.Store, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return nil, nil, nil, err
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		return nil, nil, nil, err
	}
	store, err := sqlite.New(cfg.DB)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	return cfg, logger, store, nil
}

// =============================================================================
// SERVE
// =============================================================================

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, store, err := setup()
			if err != nil {
				return err
			}
			defer store.Close()
			defer logger.Sync()

			loc, err := cfg.Location()
			if err != nil {
				return err
			}

			handler := api.NewHandler(store, store.Leaves(), store.Executions(), api.Options{
				Clock:    generic.SystemClock{},
				Location: loc,
				Cooldown: cfg.Cooldown,
				Logger:   logger,
			})
			router := api.NewRouter(handler, api.RouterOptions{
				CORSOrigins: cfg.CORSOrigins,
				RateLimit:   cfg.RateLimit,
				RateBurst:   cfg.RateBurst,
			})

			scheduler := api.NewSnapshotScheduler(handler.Leave, store, cfg.SnapshotInterval, logger)
			scheduler.Start()
			defer scheduler.Stop()

			srv := &http.Server{
				Addr:         cfg.Addr,
				Handler:      router,
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 15 * time.Second,
				IdleTimeout:  60 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("server starting",
					zap.String("addr", cfg.Addr),
					zap.String("db", cfg.DB),
					zap.String("timezone", cfg.Timezone),
					zap.Duration("cooldown", cfg.Cooldown),
				)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("server failed: %w", err)
				}
				return nil
			case <-cmd.Context().Done():
			}

			logger.Info("shutting down server")
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				return fmt.Errorf("server forced to shutdown: %w", err)
			}
			logger.Info("server stopped")
			return nil
		},
	}
	cmd.Flags().String(config.KeyAddr, ":8080", "listen address")
	cmd.Flags().StringSlice(config.KeyCORSOrigins, []string{"http://localhost:5173", "http://localhost:8080"}, "allowed CORS origins")
	cmd.Flags().Float64(config.KeyRateLimit, 20, "requests per second per client IP")
	cmd.Flags().Int(config.KeyRateBurst, 40, "rate limiter burst per client IP")
	cmd.Flags().Duration(config.KeySnapshotInterval, 24*time.Hour, "balance snapshot interval (0 disables)")
	cmd.Flags().Duration(config.KeyCooldown, 4*time.Hour, "treatment re-execution cooldown")
	_ = v.BindPFlags(cmd.Flags())
	return cmd
}

// =============================================================================
// BALANCE
// =============================================================================

func balanceCmd() *cobra.Command {
	var asOf string
	cmd := &cobra.Command{
		Use:   "balance <employee-id>",
		Short: "Print an employee's vacation and sick-leave balances",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, store, err := setup()
			if err != nil {
				return err
			}
			defer store.Close()
			loc, err := cfg.Location()
			if err != nil {
				return err
			}

			svc := leave.NewService(store.Leaves(), generic.SystemClock{}, loc, nil, logger)
			day := svc.Today()
			if asOf != "" {
				if day, err = generic.ParseDate(asOf); err != nil {
					return fmt.Errorf("--as-of must be YYYY-MM-DD: %w", err)
				}
			}

			emp, err := svc.GetEmployee(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			b, err := svc.BalancesAsOf(cmd.Context(), emp.ID, day)
			if err != nil {
				return err
			}

			tw := table.NewWriter()
			tw.SetOutputMirror(cmd.OutOrStdout())
			tw.SetTitle("%s (%s) as of %s", emp.Name, emp.ID, b.AsOf)
			tw.AppendHeader(table.Row{"Kind", "Allowance", "Used", "Remaining"})
			tw.AppendRow(table.Row{"vacation", b.VacationAllowance, b.VacationUsed, b.VacationRemaining})
			tw.AppendRow(table.Row{"sick", b.SickAllowance, b.SickUsed, b.SickRemaining})
			tw.AppendFooter(table.Row{"tenure", b.TenureYears.StringFixed(2) + "y", "window", fmt.Sprintf("%dy", b.AccumulationWindowYears)})
			tw.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&asOf, "as-of", "", "compute balances for this day (YYYY-MM-DD)")
	return cmd
}

// =============================================================================
// BUSINESS DAYS
// =============================================================================

func businessDaysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "business-days <start> <end>",
		Short: "Count Sunday-Thursday business days in an inclusive range",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := generic.ParseDate(args[0])
			if err != nil {
				return fmt.Errorf("start must be YYYY-MM-DD: %w", err)
			}
			end, err := generic.ParseDate(args[1])
			if err != nil {
				return fmt.Errorf("end must be YYYY-MM-DD: %w", err)
			}
			p := generic.Period{Start: start, End: end}
			if err := p.Validate(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), generic.CountBusinessDays(start, end))
			return nil
		},
	}
}

// =============================================================================
// POLICY
// =============================================================================

func policyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Leave policy tools",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate <file>",
		Short: "Parse a .json or .yaml leave policy and print the resolved values",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := factory.NewPolicyFactory().ParsePolicyFile(args[0])
			if err != nil {
				return err
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(cmd.OutOrStdout())
			tw.AppendHeader(table.Row{"Hire date", "Vacation/year", "Sick/year", "Accumulation years"})
			tw.AppendRow(table.Row{p.HireDate, p.AnnualVacationDays, p.SickLeaveDays, p.VacationAccumulationYears})
			tw.Render()
			return nil
		},
	})
	return cmd
}
