package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"igprofiler/pkg/logger"
	"igprofiler/pkg/report"
	"igprofiler/pkg/session"
	"igprofiler/pkg/ui"
	"igprofiler/pkg/ui/tui"
)

var (
	analyzeLimit      int
	analyzeOutput     string
	analyzeReport     string
	analyzeDB         string
	analyzeAnthropic  string
	analyzeApify      string
	analyzeConcurrent int
	analyzeTUI        bool
	analyzeNotify     bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <profile>",
	Short: "Analyze one Instagram profile from the terminal",
	Long: `Scrape the most recent posts of a public profile, build a collage or frame grid
for each of them and write the AI report as JSON.

The profile can be a username, @username or a full instagram.com URL.`,
	Example: `  # Analyze the last 10 posts
  igprofiler analyze natgeo

  # More posts, report written to a specific file
  igprofiler analyze https://www.instagram.com/natgeo/ --limit 25 --report natgeo.json

  # Plain progress lines instead of the interactive view
  igprofiler analyze natgeo --tui=false`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().IntVarP(&analyzeLimit, "limit", "l", 0, "number of posts to analyze (default from config, 10)")
	analyzeCmd.Flags().StringVarP(&analyzeOutput, "output", "o", "", "directory for generated collages")
	analyzeCmd.Flags().StringVarP(&analyzeReport, "report", "r", "", "report file (default <output>/<username>_report.json)")
	analyzeCmd.Flags().StringVar(&analyzeDB, "db", "", "SQLite database path, or 'none' to disable")
	analyzeCmd.Flags().StringVar(&analyzeApify, "apify-token", "", "Apify API token")
	analyzeCmd.Flags().StringVar(&analyzeAnthropic, "anthropic-key", "", "Anthropic API key")
	analyzeCmd.Flags().IntVar(&analyzeConcurrent, "concurrency", 0, "posts processed at once")
	analyzeCmd.Flags().BoolVar(&analyzeTUI, "tui", true, "show the interactive progress view when attached to a terminal")
	analyzeCmd.Flags().BoolVar(&analyzeNotify, "notify", false, "send a desktop notification when done")

	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	useTUI := analyzeTUI && !quiet && term.IsTerminal(int(os.Stdout.Fd()))

	flags := map[string]interface{}{
		"output":               analyzeOutput,
		"db":                   analyzeDB,
		"apify-token":          analyzeApify,
		"anthropic-key":        analyzeAnthropic,
		"pipeline-concurrency": analyzeConcurrent,
	}
	if useTUI && logLevel == "" {
		// Log lines would tear the alternate screen.
		flags["log-level"] = "error"
	}
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	if !cfg.ApifyConfigured() {
		return fmt.Errorf("apify token not configured; run 'igprofiler auth set apify' or set APIFY_API_TOKEN")
	}

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

	if !quiet && !useTUI {
		ui.PrintLogo()
	}

	id, username, err := a.svc.StartAnalysis(ctx, args[0], analyzeLimit)
	if err != nil {
		return err
	}
	updates, cancelSub, err := a.svc.Subscribe(id)
	if err != nil {
		return err
	}
	defer cancelSub()

	logger.GetLogger().InfoWithFields("Analysis started", map[string]interface{}{
		"session_id": id,
		"username":   username,
	})

	var final session.Session
	started := time.Now()
	if useTUI {
		view := tui.NewTUI(ctx, id, username, updates)
		final, err = view.Run()
		if err != nil {
			return fmt.Errorf("progress view failed: %w", err)
		}
		if view.Aborted() {
			ui.PrintWarning("Analysis aborted")
			return nil
		}
	} else {
		printer := ui.NewStatusPrinter()
		if quiet {
			for s := range updates {
				final = s
			}
		} else {
			final = printer.Follow(updates)
		}
	}

	if analyzeNotify {
		ui.NewNotifier().NotifySession(username, final)
	}

	if final.Status != session.StatusCompleted {
		if ctx.Err() != nil {
			return fmt.Errorf("analysis interrupted")
		}
		return fmt.Errorf("analysis failed: %s", final.Error)
	}

	rep, err := a.svc.GetReport(ctx, id)
	if err != nil {
		return err
	}

	path := analyzeReport
	if path == "" {
		dir := cfg.Storage.Dir
		if dir == "" {
			dir = "."
		}
		path = filepath.Join(dir, username+"_report.json")
	}
	if err := report.WriteJSON(path, rep); err != nil {
		return err
	}

	if !quiet {
		printSummary(rep, path, time.Since(started))
	}
	return nil
}

func printSummary(rep *report.Report, path string, elapsed time.Duration) {
	fmt.Println()
	ui.PrintSuccess(fmt.Sprintf("Analysis of @%s complete", rep.Username))
	ui.PrintInfo("Posts", strconv.Itoa(rep.Totals.Posts))
	ui.PrintInfo("Collages", strconv.Itoa(rep.Totals.Collages))
	ui.PrintInfo("Frame grids", strconv.Itoa(rep.Totals.FrameGrids))
	if rep.Totals.Failed > 0 {
		ui.PrintWarning(fmt.Sprintf("%d posts could not be processed", rep.Totals.Failed))
	}
	if rep.Analysis != nil {
		if rep.Analysis.Fallback {
			ui.PrintWarning("AI analysis skipped, basic summary used")
		}
		if s := rep.Analysis.Summary.OneSentence; s != "" {
			ui.PrintInfo("Summary", s)
		}
	}
	ui.PrintInfo("Report", path)
	ui.PrintInfo("Duration", elapsed.Round(time.Second).String())
}
