package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"igprofiler/internal/service"
	"igprofiler/pkg/database"
	errs "igprofiler/pkg/errors"
	"igprofiler/pkg/ui"
)

var (
	historyDB    string
	historyPosts int
)

var historyCmd = &cobra.Command{
	Use:   "history [profile]",
	Short: "Show what earlier analyses stored in the database",
	Long: `Without an argument, print table totals of the analysis database.
With a profile, print its most recent analysis and the stored posts.`,
	Example: `  igprofiler history
  igprofiler history natgeo --posts 5`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&historyDB, "db", "", "SQLite database path")
	historyCmd.Flags().IntVarP(&historyPosts, "posts", "n", 10, "number of stored posts to list")

	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(map[string]interface{}{"db": historyDB})
	if err != nil {
		return err
	}
	if cfg.Database.Path == "" {
		return fmt.Errorf("database disabled; set database.path or pass --db")
	}
	if _, err := os.Stat(cfg.Database.Path); err != nil {
		return fmt.Errorf("no database at %s", cfg.Database.Path)
	}

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()
	if len(args) == 0 {
		counts, err := db.Counts(ctx)
		if err != nil {
			return err
		}
		ui.PrintInfo("Database", cfg.Database.Path)
		ui.PrintInfo("Profiles", strconv.Itoa(counts.Users))
		ui.PrintInfo("Posts", strconv.Itoa(counts.Posts))
		ui.PrintInfo("Images", strconv.Itoa(counts.Images))
		ui.PrintInfo("Videos", strconv.Itoa(counts.Videos))
		return nil
	}

	username, err := service.ExtractUsername(args[0])
	if err != nil {
		return err
	}

	analysis, err := db.LatestAnalysis(ctx, username)
	switch {
	case errs.IsType(err, errs.ErrorTypeNotFound):
		ui.PrintWarning("No analysis stored for @" + username)
	case err != nil:
		return err
	default:
		ui.PrintInfo("Summary", analysis.Summary.OneSentence)
		if len(analysis.Summary.Keywords) > 0 {
			ui.PrintInfo("Keywords", strings.Join(analysis.Summary.Keywords, ", "))
		}
		if analysis.Fallback {
			ui.PrintWarning("Stored analysis was generated without AI")
		}
	}

	posts, err := db.GetUserPosts(ctx, username)
	if err != nil {
		return err
	}
	if len(posts) == 0 {
		ui.PrintWarning("No posts stored for @" + username)
		return nil
	}
	if historyPosts > 0 && len(posts) > historyPosts {
		posts = posts[:historyPosts]
	}

	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "POSTED\tTYPE\tLIKES\tCOMMENTS\tMEDIA\tURL")
	for _, p := range posts {
		posted := "-"
		if !p.Timestamp.IsZero() {
			posted = p.Timestamp.Format("2006-01-02")
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\n", posted, p.Type, p.Likes, p.Comments, len(p.Images)+len(p.Videos), p.URL)
	}
	return w.Flush()
}
