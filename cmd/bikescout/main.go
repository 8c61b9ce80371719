package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/TobiSchelling/BikeScout/internal/config"
	"github.com/TobiSchelling/BikeScout/internal/database"
	"github.com/TobiSchelling/BikeScout/internal/export"
	"github.com/TobiSchelling/BikeScout/internal/history"
	"github.com/TobiSchelling/BikeScout/internal/server"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "bikescout",
	Short:   "Bike marketplace listing valuation",
	Long:    "BikeScout collects bike listings from marketplaces, normalizes and grades them, and flags listings priced well below fair market value.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		} else {
			log.SetFlags(log.LstdFlags)
		}

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		config.LoadEnv()
		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(serveCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("bikescout", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/bikescout/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure search targets and the model provider. API keys go in .env or the environment.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database and system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats(cfg.Ranking.HotnessThreshold)
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Printf("Database: %s\n", db.Path())
		if info, err := db.Schema(); err == nil {
			fmt.Printf("Schema: v%d of v%d (%d migrations recorded)\n", info.Version, info.Latest, len(info.Applied))
		}
		fmt.Println()
		fmt.Println("Listings:")
		fmt.Printf("  Total stored: %d\n", stats.TotalListings)
		fmt.Printf("  Active: %d\n", stats.ActiveListings)
		fmt.Printf("  Needing review: %d\n", stats.NeedsReview)
		fmt.Printf("  Hot (>= %d): %d\n", cfg.Ranking.HotnessThreshold, stats.HotListings)
		fmt.Printf("  Sniper hits: %d\n", stats.SniperHits)
		fmt.Println("\nFailed queue:")
		fmt.Printf("  Pending: %d\n", stats.PendingFailed)
		fmt.Printf("  Discarded: %d\n", stats.DiscardedFailed)
		fmt.Println("\nMarket history:")
		fmt.Printf("  Price samples: %d\n", stats.HistorySamples)
		fmt.Printf("\nEvents logged: %d\n", stats.Events)
		fmt.Printf("Targets configured: %d\n", len(cfg.Targets))
		return nil
	},
}

// --- run command ---

var (
	dryRun     bool
	targetName string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Collect listings from the configured targets and run them through the pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		sources, err := buildSources(targetName)
		if err != nil {
			return err
		}

		pipe, gw, err := buildPipeline(db, dryRun)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		if dryRun {
			fmt.Println("Dry run: filtering and fact extraction only, nothing is written.")
		}
		result := pipe.Run(ctx, sources)

		for _, t := range result.Targets {
			fmt.Printf("\n%s\n", t.Name)
			if t.Err != nil {
				fmt.Printf("  Error: %v\n", t.Err)
			}
			fmt.Printf("  %s\n", t.Stats)
			if verbose || dryRun {
				for _, o := range t.Outcomes {
					line := fmt.Sprintf("    %-28s %s", o.Key, o.State)
					if o.Reason != "" {
						line += " (" + o.Reason + ")"
					}
					fmt.Println(line)
				}
			}
		}

		fmt.Printf("\nRun %s: %s\n", result.RunID, result.Total)
		if gw != nil {
			u := gw.Usage()
			fmt.Printf("Model calls: %d this minute, %d of %d today; %d tokens available\n", u.MinuteCalls, u.DayCalls, u.Limits.CallsPerDay, u.TokensAvailable)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Filter and extract facts only; no model calls and no writes")
	runCmd.Flags().StringVarP(&targetName, "target", "t", "", "Run a single configured target")
}

// --- retry-failed command ---

var retryCmd = &cobra.Command{
	Use:   "retry-failed",
	Short: "Reprocess listings from the failed queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		pipe, _, err := buildPipeline(db, false)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		r, err := pipe.RetryFailed(ctx)
		if err != nil {
			return fmt.Errorf("retrying failed listings: %w", err)
		}
		fmt.Printf("Attempted: %d\n", r.Attempted)
		fmt.Printf("  Resolved: %d\n", r.Resolved)
		fmt.Printf("  Requeued: %d\n", r.Requeued)
		fmt.Printf("  Discarded: %d\n", r.Discarded)
		return nil
	},
}

// --- history command ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Manage market price history",
}

var (
	historyCSV      string
	historyXLSX     string
	historyPostgres bool
	historySince    string
)

var historyImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import sold prices from a CSV or XLSX file, or from the shared Postgres history",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx := context.Background()
		var res history.Result
		switch {
		case historyCSV != "":
			res, err = history.ImportFile(ctx, db, historyCSV)
		case historyXLSX != "":
			res, err = history.ImportFile(ctx, db, historyXLSX)
		case historyPostgres:
			res, err = importPostgres(ctx, db)
		default:
			return fmt.Errorf("choose one of --csv, --xlsx or --postgres")
		}
		if err != nil {
			return err
		}

		fmt.Printf("Read: %d\n", res.Read)
		fmt.Printf("Stored: %d\n", res.Stored)
		fmt.Printf("Skipped: %d\n", res.Skipped)
		return nil
	},
}

func importPostgres(ctx context.Context, db *database.DB) (history.Result, error) {
	dsn := os.Getenv(cfg.History.DSNEnv)
	if dsn == "" {
		return history.Result{}, fmt.Errorf("%s is not set", cfg.History.DSNEnv)
	}
	since := time.Now().AddDate(0, -6, 0)
	if historySince != "" {
		t, err := time.Parse("2006-01-02", historySince)
		if err != nil {
			return history.Result{}, fmt.Errorf("invalid --since date %q (want YYYY-MM-DD)", historySince)
		}
		since = t
	}

	src, err := history.OpenPostgres(ctx, dsn, cfg.History.Table)
	if err != nil {
		return history.Result{}, err
	}
	defer src.Close()
	return history.ImportPostgres(ctx, db, src, since)
}

func init() {
	historyImportCmd.Flags().StringVar(&historyCSV, "csv", "", "CSV file with brand, model, price and date columns")
	historyImportCmd.Flags().StringVar(&historyXLSX, "xlsx", "", "XLSX workbook with brand, model, price and date columns")
	historyImportCmd.Flags().BoolVar(&historyPostgres, "postgres", false, "Import from the Postgres database named by history.dsn_env")
	historyImportCmd.Flags().StringVar(&historySince, "since", "", "Only import Postgres samples after this date (YYYY-MM-DD, default 6 months ago)")
	historyImportCmd.MarkFlagsMutuallyExclusive("csv", "xlsx", "postgres")
	historyCmd.AddCommand(historyImportCmd)
}

// --- export command ---

var exportHotOnly bool

var exportCmd = &cobra.Command{
	Use:   "export FILE.xlsx",
	Short: "Export stored listings to an XLSX workbook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !strings.HasSuffix(strings.ToLower(args[0]), ".xlsx") {
			return fmt.Errorf("export file must end in .xlsx")
		}
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		opts := database.ListOptions{}
		if exportHotOnly {
			opts.MinHotness = cfg.Ranking.HotnessThreshold
		}
		data, n, err := export.ListingsXLSX(db, opts)
		if err != nil {
			return err
		}
		if err := os.WriteFile(args[0], data, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", args[0], err)
		}
		fmt.Printf("Exported %d listings to %s\n", n, args[0])
		return nil
	},
}

func init() {
	exportCmd.Flags().BoolVar(&exportHotOnly, "hot-only", false, "Only export listings at or above the hotness threshold")
}

// --- events command ---

var eventsLimit int

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show recent pipeline events",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		events, err := db.GetRecentEvents(eventsLimit)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			fmt.Println("No events recorded yet. Run 'bikescout run' first.")
			return nil
		}
		for _, e := range events {
			fmt.Printf("%s  %-18s %-14s %v\n", e.CreatedAt, e.Type, e.Source, e.Details)
		}
		return nil
	},
}

func init() {
	eventsCmd.Flags().IntVarP(&eventsLimit, "limit", "n", 50, "Number of events to show")
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local web dashboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port = servePort
		}
		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(db, port, cfg.Ranking.HotnessThreshold)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
}

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return database.Open(cfg.DBPath())
}
