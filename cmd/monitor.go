package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/compete-cli/internal/model"
	"github.com/sells-group/compete-cli/internal/monitor"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Track companies for competitive changes over time",
	Long:  "Commands for registering monitored companies, refreshing their analyses, and listing detected changes.",
}

// -- monitor start --

var monitorStartCmd = &cobra.Command{
	Use:   "start <base-url>",
	Short: "Register a company for monitoring",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("monitor"); err != nil {
			return err
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		name, _ := cmd.Flags().GetString("name")
		scope, _ := cmd.Flags().GetString("scope")
		region, _ := cmd.Flags().GetString("region")
		noRefresh, _ := cmd.Flags().GetBool("no-refresh")
		interval, _ := cmd.Flags().GetInt("interval")

		m, err := env.Monitor.Start(ctx, monitor.StartRequest{
			BaseURL:            args[0],
			CompanyName:        name,
			Scope:              scope,
			Region:             region,
			CheckIntervalHours: interval,
		})
		if err != nil {
			return err
		}

		fmt.Printf("Monitoring started for %s (%s)\n", m.CompanyName, m.ID)

		if !noRefresh {
			fmt.Fprintln(os.Stderr, "Running initial analysis...")
			if _, err := env.Monitor.Refresh(ctx, m.ID); err != nil {
				return err
			}
			fmt.Fprintln(os.Stderr, "Initial analysis complete.")
		}
		return nil
	},
}

// -- monitor list --

var monitorListCmd = &cobra.Command{
	Use:   "list",
	Short: "List monitored companies",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("monitor"); err != nil {
			return err
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		monitors, err := env.Store.ListMonitors(ctx)
		if err != nil {
			return err
		}
		if len(monitors) == 0 {
			fmt.Fprintln(os.Stderr, "No monitored companies.")
			return nil
		}

		formatMonitorList(os.Stdout, monitors, time.Now().UTC())
		return nil
	},
}

// -- monitor refresh --

var monitorRefreshCmd = &cobra.Command{
	Use:   "refresh <monitor-id>",
	Short: "Re-analyze a monitored company and detect changes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("monitor"); err != nil {
			return err
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		output, _ := cmd.Flags().GetString("output")

		events, err := env.Monitor.Refresh(ctx, args[0])
		if err != nil {
			return err
		}
		if len(events) == 0 {
			fmt.Fprintln(os.Stderr, "No changes detected.")
			return nil
		}
		return writeOut(os.Stdout, output, events)
	},
}

// -- monitor run --

var monitorRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Refresh every monitor whose check interval has elapsed",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("monitor"); err != nil {
			return err
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		watch, _ := cmd.Flags().GetBool("watch")
		every, _ := cmd.Flags().GetDuration("every")

		for {
			if err := refreshDue(ctx, env); err != nil {
				return err
			}
			if !watch {
				return nil
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(every):
			}
		}
	},
}

// refreshDue runs one sweep over the due monitors. Individual refresh
// failures are reported and skipped so one broken monitor cannot stall the
// rest.
func refreshDue(ctx context.Context, env *appEnv) error {
	due, err := env.Monitor.Due(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	if len(due) == 0 {
		fmt.Fprintln(os.Stderr, "No monitors due.")
		return nil
	}
	for _, m := range due {
		events, err := env.Monitor.Refresh(ctx, m.ID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "refresh %s (%s) failed: %v\n", m.CompanyName, m.ID, err)
			continue
		}
		fmt.Printf("%s: %d change(s) detected\n", m.CompanyName, len(events))
	}
	return nil
}

// -- monitor changes --

var monitorChangesCmd = &cobra.Command{
	Use:   "changes <monitor-id>",
	Short: "Show detected changes for a monitored company",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("monitor"); err != nil {
			return err
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		output, _ := cmd.Flags().GetString("output")
		limit, _ := cmd.Flags().GetInt("limit")

		m, events, err := env.Monitor.Changes(ctx, args[0], limit)
		if err != nil {
			return err
		}

		out := struct {
			MonitorID   string              `json:"monitor_id" yaml:"monitor_id"`
			CompanyName string              `json:"company_name" yaml:"company_name"`
			LastChecked *time.Time          `json:"last_checked,omitempty" yaml:"last_checked,omitempty"`
			Changes     []model.ChangeEvent `json:"changes" yaml:"changes"`
		}{
			MonitorID:   m.ID,
			CompanyName: m.CompanyName,
			LastChecked: m.LastChecked,
			Changes:     events,
		}
		return writeOut(os.Stdout, output, out)
	},
}

func init() {
	monitorStartCmd.Flags().String("name", "", "display name (default derived from the URL)")
	monitorStartCmd.Flags().String("scope", "global", "competition scope (global, country, region, city)")
	monitorStartCmd.Flags().String("region", "", "geographic region for scoped analysis")
	monitorStartCmd.Flags().Bool("no-refresh", false, "register without running the initial analysis")
	monitorStartCmd.Flags().Int("interval", 0, "refresh interval in hours (default 24)")

	monitorRefreshCmd.Flags().String("output", "json", "output format (json, yaml)")

	monitorRunCmd.Flags().Bool("watch", false, "keep running, sweeping for due monitors")
	monitorRunCmd.Flags().Duration("every", time.Hour, "sweep interval when watching")

	monitorChangesCmd.Flags().String("output", "json", "output format (json, yaml)")
	monitorChangesCmd.Flags().Int("limit", 50, "max number of changes to display")

	monitorCmd.AddCommand(monitorStartCmd)
	monitorCmd.AddCommand(monitorListCmd)
	monitorCmd.AddCommand(monitorRefreshCmd)
	monitorCmd.AddCommand(monitorRunCmd)
	monitorCmd.AddCommand(monitorChangesCmd)
	rootCmd.AddCommand(monitorCmd)
}

// formatMonitorList writes a tabular list of monitors to w.
func formatMonitorList(out io.Writer, monitors []model.MonitoredCompany, now time.Time) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tURL\tSCOPE\tLAST_CHECKED\tDUE")
	for _, m := range monitors {
		lastChecked := "never"
		if m.LastChecked != nil {
			lastChecked = m.LastChecked.Format(time.RFC3339)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%t\n",
			m.ID, m.CompanyName, m.BaseURL, m.Scope, lastChecked, m.Due(now))
	}
	_ = w.Flush()
}
