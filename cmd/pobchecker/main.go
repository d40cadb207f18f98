// Package main is the pobchecker binary: an attendance service for offshore
// platforms that tracks who is on board from QR badge scans.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"pobchecker/internal/config"
	"pobchecker/internal/db"
	"pobchecker/internal/httpapi"
	"pobchecker/internal/pob/engine"
	"pobchecker/internal/pob/scan"
	"pobchecker/internal/pob/service"
	"pobchecker/internal/pob/store/sqlite"
)

const version = "1.0.0"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pobchecker",
		Short: "Personnel-on-board attendance service",
		Long: `Pobchecker tracks personnel presence on an offshore platform.

Badge scans toggle each person's on-platform flag, a reserved control
code switches the service into event mode for muster checks, and every
transition lands in an auditable SQLite ledger.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}

	cmd.AddCommand(seedCmd(), purgeCmd(), clearChecksCmd(), versionCmd())
	return cmd
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := log.New(os.Stdout, "pobchecker ", log.LstdFlags|log.LUTC)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := db.Open(ctx, db.Config{Path: cfg.DBPath, Env: cfg.Env})
	if err != nil {
		return err
	}
	defer conn.Close()

	writer := db.NewWorker(conn)
	defer writer.Close()

	roster := sqlite.NewRosterStore(conn, writer)
	ledger := sqlite.NewLedgerStore(conn, writer)

	pruner := service.NewRetentionPruner(ledger, service.PrunerConfig{
		RetentionDays: cfg.RetentionDays,
	}, logger)
	pruner.Start(ctx)
	defer pruner.Stop()

	eng, err := engine.New(ctx, engine.Config{
		Roster:       roster,
		Ledger:       ledger,
		Logger:       logger,
		Sentinel:     cfg.SentinelPayload,
		DefaultMode:  engine.Mode(cfg.DefaultMode),
		DefaultGroup: cfg.DefaultGroup,
		Sink: engine.SinkFunc(func(o engine.Outcome) {
			logger.Printf("outcome kind=%s id=%s mode=%s", o.Kind, o.Identifier, o.Mode)
		}),
	})
	if err != nil {
		return err
	}
	defer eng.Close()

	if cfg.FrameDir != "" {
		source, err := scan.NewDirSource(cfg.FrameDir)
		if err != nil {
			return err
		}
		detector := scan.NewDetector(scan.DetectorConfig{
			Source:        source,
			Decoder:       scan.NewQRDecoder(),
			Debounce:      scan.NewDebouncer(cfg.ScanCooldown()),
			FrameInterval: cfg.FrameInterval(),
			MaxFailures:   cfg.MaxAcquireFailures,
			Logger:        logger,
			Dispatch: func(ctx context.Context, payload string) error {
				_, err := eng.Dispatch(ctx, payload)
				return err
			},
			OnFatal: func(err error) {
				logger.Printf("detector stopped: %v", err)
			},
		})
		detector.Start(ctx)
		defer detector.Stop()
	}

	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger: logger,
		Addr:   cfg.HTTPAddr,
		Engine: eng,
		Roster: roster,
		Ledger: ledger,
	})

	go func() {
		logger.Printf("listening on %s", cfg.HTTPAddr)
		if err := srv.Start(); err != nil {
			logger.Printf("server error: %v", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	return nil
}

// openForMaintenance opens the configured database for a one-shot command.
func openForMaintenance(ctx context.Context) (*sql.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return db.Open(ctx, db.Config{Path: cfg.DBPath, Env: cfg.Env})
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert development fixture people",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			conn, err := openForMaintenance(ctx)
			if err != nil {
				return err
			}
			defer conn.Close()

			if err := db.SeedDev(ctx, conn); err != nil {
				return err
			}
			fmt.Println("seeded development roster")
			return nil
		},
	}
}

func purgeCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete check and movement records older than N days",
		RunE: func(cmd *cobra.Command, args []string) error {
			if days <= 0 {
				return fmt.Errorf("--days must be positive")
			}

			ctx := cmd.Context()
			conn, err := openForMaintenance(ctx)
			if err != nil {
				return err
			}
			defer conn.Close()

			writer := db.NewWorker(conn)
			defer writer.Close()

			ledger := sqlite.NewLedgerStore(conn, writer)
			cutoff := time.Now().UTC().AddDate(0, 0, -days)
			deleted, err := ledger.PurgeOlderThan(ctx, cutoff)
			if err != nil {
				return err
			}
			fmt.Printf("purged %d records older than %s\n", deleted, cutoff.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 180, "retention window in days")
	return cmd
}

func clearChecksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear-checks",
		Short: "Wipe all check and movement records and reset on-platform flags",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			conn, err := openForMaintenance(ctx)
			if err != nil {
				return err
			}
			defer conn.Close()

			if err := db.ClearChecks(ctx, conn); err != nil {
				return err
			}
			fmt.Println("cleared all check and movement records")
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("pobchecker version %s\n", version)
		},
	}
}
