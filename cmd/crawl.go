package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/jobkb-crawler/internal/app"
)

func newCrawlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl",
		Short: "Crawl every configured category and commit the knowledge base",
		Long: `Fetches each configured category page, extracts and deduplicates job
records, writes the CSV exports, and atomically replaces the knowledge base
artifact. Mirroring, database upserts, and refresh notifications run after
the commit; their failures are reported but leave the artifact in place.`,
		Args: cobra.NoArgs,
		RunE: runCrawl,
	}
}

func runCrawl(cmd *cobra.Command, _ []string) error {
	rt, err := resolveState(cmd.Context())
	if err != nil {
		return err
	}

	a, err := app.New(cmd.Context(), rt.cfg, rt.logger)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	defer a.Close()

	summary, err := a.Run(cmd.Context())
	if err != nil && !app.IsPostCommit(err) {
		return fmt.Errorf("run crawl: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %s: %d jobs at %s\n", summary.RunID, summary.TotalJobs, summary.URI)
	for _, c := range summary.Categories {
		fmt.Fprintf(out, "  %-12s %d\n", c.Category, c.Records)
	}

	if err != nil {
		rt.logger.Warn("knowledge base committed with side-effect failures", zap.Error(err))
		return err
	}
	return nil
}
