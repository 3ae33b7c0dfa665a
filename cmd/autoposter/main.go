package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/TobiSchelling/AutoPoster/internal/config"
	"github.com/TobiSchelling/AutoPoster/internal/database"
	"github.com/TobiSchelling/AutoPoster/internal/dispatch"
	"github.com/TobiSchelling/AutoPoster/internal/generate"
	"github.com/TobiSchelling/AutoPoster/internal/llm"
	"github.com/TobiSchelling/AutoPoster/internal/logging"
	"github.com/TobiSchelling/AutoPoster/internal/publish"
	"github.com/TobiSchelling/AutoPoster/internal/report"
	"github.com/TobiSchelling/AutoPoster/internal/server"
	"github.com/TobiSchelling/AutoPoster/internal/slots"
	"github.com/TobiSchelling/AutoPoster/internal/trends"
	"github.com/TobiSchelling/AutoPoster/internal/trigger"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
	logCloser  io.Closer
)

func main() {
	err := rootCmd.Execute()
	if logCloser != nil {
		logCloser.Close()
	}
	if err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "autoposter",
	Short:   "Scheduled social posting",
	Long:    "AutoPoster publishes scheduled posts and generates recurring posts for connected social accounts.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			logrus.SetLevel(logrus.DebugLevel)
		}

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		logCloser, err = logging.Setup(cfg.Logging, verbose)
		if err != nil {
			return fmt.Errorf("configuring logging: %w", err)
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
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(accountsCmd)
	rootCmd.AddCommand(profilesCmd)
	rootCmd.AddCommand(postsCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("autoposter", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/autoposter/",
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
		fmt.Println("Edit it to configure the LLM provider, trend feeds, and publish endpoints.")
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

		stats, err := db.GetStats(cmd.Context())
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Printf("Database: %s\n\n", db.Path())
		fmt.Println("Accounts:")
		fmt.Printf("  Total: %d\n", stats.Accounts)
		fmt.Printf("  Active: %d\n", stats.ActiveAccounts)
		fmt.Printf("  Automation enabled: %d\n", stats.EnabledProfiles)
		fmt.Println("\nPosts:")
		fmt.Printf("  Scheduled: %d\n", stats.ScheduledPosts)
		fmt.Printf("  Posted: %d\n", stats.PostedPosts)
		fmt.Printf("  Failed: %d\n", stats.FailedPosts)
		fmt.Println("\nScheduler:")
		fmt.Printf("  Tolerance window: %s\n", cfg.Scheduler.ToleranceWindow)
		fmt.Printf("  Trigger interval: %s\n", cfg.Scheduler.Interval)
		fmt.Printf("  Publish mode: %s\n", cfg.Publish.Mode)
		return nil
	},
}

// --- run command ---

var (
	dryRun  bool
	jsonOut bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one dispatch tick: due one-off posts, then due recurring slots",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		d, err := newDispatcher(db)
		if err != nil {
			return err
		}
		ctx, stop := withSignals(cmd.Context())
		defer stop()

		if dryRun {
			plan, err := d.DryRun(ctx)
			if err != nil {
				return err
			}
			printPlan(plan)
			return nil
		}

		result, runErr := d.RunOnce(ctx)
		if jsonOut {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(report.NewEnvelope(result, runErr)); err != nil {
				return err
			}
			return runErr
		}
		printResult(result)
		return runErr
	},
}

func init() {
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be done without publishing")
	runCmd.Flags().BoolVar(&jsonOut, "json", false, "Print the run envelope as JSON")
}

func printPlan(plan *dispatch.Plan) {
	fmt.Printf("Dry run at %s\n", database.FormatTime(plan.Now))
	fmt.Printf("\nOne-off posts due: %d\n", len(plan.OneOff))
	for _, p := range plan.OneOff {
		fmt.Printf("  [%d] account %d (%s) scheduled %s\n", p.PostID, p.AccountID, p.Platform, database.FormatTime(p.ScheduledAt))
	}
	fmt.Printf("\nRecurring slots: %d\n", len(plan.Slots))
	for _, s := range plan.Slots {
		switch {
		case s.Note != "":
			fmt.Printf("  account %d: %s\n", s.AccountID, s.Note)
		case s.Processed:
			fmt.Printf("  account %d (%s) %s: already processed\n", s.AccountID, s.Platform, s.Local)
		default:
			fmt.Printf("  account %d (%s) %s: would publish\n", s.AccountID, s.Platform, s.Local)
		}
	}
}

func printResult(result *report.RunResult) {
	if result == nil {
		return
	}
	for _, o := range result.Outcomes {
		line := fmt.Sprintf("  %-8s %-9s account %d", o.Status, o.Kind, o.AccountID)
		if o.ScheduledAt != nil {
			line += " @ " + database.FormatTime(*o.ScheduledAt)
		}
		if o.Message != "" {
			line += ": " + o.Message
		}
		fmt.Println(line)
	}
	s := result.Summary()
	fmt.Printf("\nRun %s complete:\n", result.RunID)
	fmt.Printf("  Profiles: %d\n", s.TotalProfiles)
	fmt.Printf("  Successful: %d\n", s.Successful)
	fmt.Printf("  Failed: %d\n", s.Failed)
	fmt.Printf("  Skipped: %d\n", s.Skipped)
	fmt.Printf("  Duration: %dms\n", s.DurationMS)
}

// --- serve command ---

var (
	servePort int
	serveTick bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server (cron trigger, post scheduling, metrics)",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		d, err := newDispatcher(db)
		if err != nil {
			return err
		}

		secret := os.Getenv(cfg.Server.SecretEnv)
		if secret == "" {
			logrus.Warnf("%s is not set; /run and /posts will answer 503", cfg.Server.SecretEnv)
		}
		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port = servePort
		}

		ctx, stop := withSignals(cmd.Context())
		defer stop()

		if serveTick {
			t := &trigger.Ticker{Runner: d, Interval: cfg.Scheduler.Interval, RunImmediately: true}
			go t.Run(ctx)
		}

		srv := server.New(db, d, secret)
		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return srv.ListenAndServe(ctx, fmt.Sprintf(":%d", port))
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
	serveCmd.Flags().BoolVar(&serveTick, "tick", false, "Also run dispatch on the configured interval")
}

func newDispatcher(db *database.DB) (*dispatch.Dispatcher, error) {
	provider := llm.CreateProvider(llm.Options{
		Provider:        cfg.Generation.Provider,
		Model:           cfg.Generation.Model,
		OllamaURL:       cfg.Generation.OllamaURL,
		OpenAIModel:     cfg.Generation.OpenAIModel,
		APIKeyEnv:       cfg.Generation.APIKeyEnv,
		AnthropicModel:  cfg.Generation.AnthropicModel,
		AnthropicKeyEnv: cfg.Generation.AnthropicKeyEnv,
	})
	gen := generate.New(provider, cfg.Generation.MaxTokens)

	var ts dispatch.TrendSource
	if r := trends.NewResearcher(cfg.Trends); r != nil {
		ts = r
	}

	platforms := make([]string, 0, len(database.Platforms))
	for _, p := range database.Platforms {
		platforms = append(platforms, string(p))
	}
	pub, err := publish.NewFromConfig(cfg.Publish, platforms)
	if err != nil {
		return nil, err
	}

	return dispatch.New(db, gen, ts, pub, slots.SystemClock{}, dispatch.Options{
		ToleranceWindow: cfg.Scheduler.ToleranceWindow,
		DuePostLimit:    cfg.Scheduler.DuePostLimit,
		StaleClaimAfter: cfg.Scheduler.StaleClaimAfter,
		DefaultTimes:    cfg.Scheduler.DefaultTimes,
	}), nil
}

func openDB() (*database.DB, error) {
	dbPath := cfg.DatabasePath()
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return database.Open(dbPath)
}

func parseWhen(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q (want RFC 3339, e.g. 2026-03-01T08:00:00Z)", s)
	}
	return t.UTC(), nil
}

func withSignals(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
