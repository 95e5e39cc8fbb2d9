package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/compete-cli/internal/diff"
	"github.com/sells-group/compete-cli/internal/discovery"
	"github.com/sells-group/compete-cli/internal/model"
	"github.com/sells-group/compete-cli/internal/urlutil"
)

// discoverResult is the CLI output envelope for a discovery run.
type discoverResult struct {
	JobID   string              `json:"job_id" yaml:"job_id"`
	Status  model.JobStatus     `json:"status" yaml:"status"`
	Report  *model.MarketReport `json:"report,omitempty" yaml:"report,omitempty"`
	Notes   model.Notes         `json:"notes,omitempty" yaml:"notes,omitempty"`
	Changes []model.ChangeEvent `json:"changes,omitempty" yaml:"changes,omitempty"`
}

var discoverCmd = &cobra.Command{
	Use:   "discover <base-url>",
	Short: "Run market discovery for a company",
	Long:  "Analyzes the base company, discovers competitors, scrapes and extracts their data, and synthesizes a comparison report. The report is stored in history; when a previous report exists the two are diffed for change events.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("discover"); err != nil {
			return err
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		scope, _ := cmd.Flags().GetString("scope")
		region, _ := cmd.Flags().GetString("region")
		output, _ := cmd.Flags().GetString("output")

		baseURL := urlutil.EnsureScheme(args[0])

		job, err := env.Store.CreateJob(ctx, baseURL, scope, region)
		if err != nil {
			return err
		}

		progress := func(step, status string) {
			fmt.Fprintf(os.Stderr, "%s: %s\n", step, status)
		}

		res := env.Orchestrator.Run(ctx, discovery.Request{
			BaseURL: baseURL,
			Scope:   scope,
			Region:  region,
		}, progress)

		out := discoverResult{JobID: job.ID, Notes: res.Notes}

		if res.Report == nil {
			msg := res.Notes.String()
			if msg == "" {
				msg = "No report generated"
			}
			_ = env.Store.UpdateJobResult(ctx, job.ID, nil, msg)
			out.Status = model.JobStatusFailed
			return writeOut(os.Stdout, output, out)
		}

		if err := env.Store.UpdateJobResult(ctx, job.ID, res.Report, res.Notes.String()); err != nil {
			return err
		}

		// Diff against the previous report for this URL before recording the
		// new one.
		key := urlutil.NormalizeBaseURL(baseURL)
		prev, err := env.Store.LatestReport(ctx, key)
		if err != nil {
			return err
		}
		if prev != nil {
			events := diff.DetectChanges(&prev.Report, res.Report, key)
			if len(events) > 0 {
				if err := env.Store.AppendChanges(ctx, events); err != nil {
					return err
				}
			}
			out.Changes = events
		}
		if err := env.Store.AppendReport(ctx, key, model.ReportSnapshot{
			Timestamp: job.CreatedAt,
			Report:    *res.Report,
		}); err != nil {
			return err
		}

		out.Status = model.JobStatusReady
		out.Report = res.Report
		return writeOut(os.Stdout, output, out)
	},
}

func init() {
	discoverCmd.Flags().String("scope", "global", "competition scope (global, country, region, city)")
	discoverCmd.Flags().String("region", "", "geographic region for scoped analysis")
	discoverCmd.Flags().String("output", "json", "output format (json, yaml)")
	rootCmd.AddCommand(discoverCmd)
}
