package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/jobkb-crawler/internal/crawler"
	"github.com/JakeFAU/jobkb-crawler/internal/kb"
)

func newSearchCmd() *cobra.Command {
	var (
		category string
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "search [query...]",
		Short: "Query the committed knowledge base",
		Long: `Searches job titles, organizations, and qualifications in the committed
knowledge base. A query that names a category lists that category instead.
With --category the query is ignored and the category is listed directly.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := resolveState(cmd.Context())
			if err != nil {
				return err
			}
			ix, err := kb.Load(rt.cfg.Output.KnowledgeBase, rt.cfg.Search.Limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if category == "" && len(args) == 0 {
				fmt.Fprintf(out, "%d jobs across %s\n", ix.TotalJobCount(), strings.Join(ix.Categories(), ", "))
				return nil
			}

			var (
				heading string
				records []crawler.JobRecord
			)
			if category != "" {
				if !ix.HasCategory(category) {
					return fmt.Errorf("unknown category %q", category)
				}
				heading = category + " jobs"
				records = ix.RecordsByCategory(category)
			} else {
				heading = strings.Join(args, " ")
				records = ix.SearchRecords(args)
			}
			if records == nil {
				records = []crawler.JobRecord{}
			}

			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(records)
			}
			fmt.Fprintln(out, kb.FormatRecords(records, heading))
			return nil
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "list records for one category")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print matching records as JSON")
	return cmd
}
