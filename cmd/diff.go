package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/compete-cli/internal/diff"
	"github.com/sells-group/compete-cli/internal/model"
	"github.com/sells-group/compete-cli/internal/urlutil"
)

var diffCmd = &cobra.Command{
	Use:   "diff <old-report.json> <new-report.json>",
	Short: "Detect changes between two market reports",
	Long:  "Compares two market report JSON files and prints the detected change events: pricing moves, feature additions and removals, SWOT shifts, news, and new competitors.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		oldReport, err := readReport(args[0])
		if err != nil {
			return err
		}
		newReport, err := readReport(args[1])
		if err != nil {
			return err
		}

		key := urlutil.NormalizeBaseURL(newReport.BaseCompanyData.CompanyURL)
		events := diff.DetectChanges(oldReport, newReport, key)
		return writeOut(os.Stdout, output, events)
	},
}

// readReport loads a MarketReport from a JSON file, accepting either a bare
// report or a history snapshot wrapping one.
func readReport(path string) (*model.MarketReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read report %s", path)
	}

	var snap model.ReportSnapshot
	if err := json.Unmarshal(data, &snap); err == nil && !snap.Timestamp.IsZero() {
		return &snap.Report, nil
	}

	var report model.MarketReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, eris.Wrapf(err, "parse report %s", path)
	}
	return &report, nil
}

func init() {
	diffCmd.Flags().String("output", "json", "output format (json, yaml)")
	rootCmd.AddCommand(diffCmd)
}
