package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"igprofiler/internal/server"
	"igprofiler/pkg/logger"
	"igprofiler/pkg/ratelimit"
	"igprofiler/pkg/ui"
)

var (
	serveAddr string
	serveDB   string
	serveDir  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP analysis service",
	Long: `Start the HTTP API. Clients submit a profile with POST /api/analyze, poll
GET /api/status/{id} and fetch the finished report from GET /api/report/{id}.
Generated collages are served under /collages/.`,
	Example: `  # Listen on the default address
  igprofiler serve

  # Custom address, no database
  igprofiler serve --addr :9000 --db none`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config, :5000)")
	serveCmd.Flags().StringVar(&serveDB, "db", "", "SQLite database path, or 'none' to disable")
	serveCmd.Flags().StringVarP(&serveDir, "output", "o", "", "directory for generated collages")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(map[string]interface{}{
		"addr":   serveAddr,
		"db":     serveDB,
		"output": serveDir,
	})
	if err != nil {
		return err
	}
	log := logger.GetLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		a.Close(shutdownCtx)
	}()

	sweeper := cron.New()
	if _, err := sweeper.AddFunc(cfg.Session.SweepSchedule, a.tracker.SweepNow); err != nil {
		return fmt.Errorf("invalid session sweep schedule %q: %w", cfg.Session.SweepSchedule, err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	if !cfg.ApifyConfigured() {
		ui.PrintWarning("Apify token not configured; analyses will fail until one is set (igprofiler auth set apify)")
	}

	srv := server.New(a.svc, a.store,
		server.WithLimiter(ratelimit.NewSlidingWindow(cfg.Server.AnalyzePerMinute, time.Minute)),
		server.WithLimits(cfg.Pipeline.DefaultLimit, cfg.Pipeline.MaxPostLimit),
		server.WithCredentials(cfg.ApifyConfigured(), cfg.AnthropicConfigured()),
		server.WithLogger(log),
	)

	if !quiet {
		ui.PrintInfo("Listening on", cfg.Server.Addr)
	}
	if err := srv.ListenAndServe(ctx, cfg.Server); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}
	if !quiet {
		ui.PrintSuccess("Server stopped")
	}
	return nil
}
