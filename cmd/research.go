package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/compete-cli/internal/model"
	"github.com/sells-group/compete-cli/internal/research"
	"github.com/sells-group/compete-cli/internal/urlutil"
)

// researchResult is the CLI output envelope for a single-company profile.
type researchResult struct {
	CompanyName string            `json:"company_name" yaml:"company_name"`
	CompanyURL  string            `json:"company_url" yaml:"company_url"`
	Data        *model.Competitor `json:"data" yaml:"data"`
	Notes       model.Notes       `json:"notes,omitempty" yaml:"notes,omitempty"`
}

var researchCmd = &cobra.Command{
	Use:   "research <company-url>",
	Short: "Profile a single company",
	Long:  "Runs the search, scrape, and extract stages for one company URL and prints the structured profile without discovering competitors.",
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

		output, _ := cmd.Flags().GetString("output")

		companyURL := urlutil.EnsureScheme(args[0])
		res := env.Research.Run(ctx, companyURL)

		out := researchResult{
			CompanyName: research.DomainToName(urlutil.Domain(companyURL)),
			CompanyURL:  companyURL,
			Data:        res.Competitor,
			Notes:       res.Notes,
		}
		return writeOut(os.Stdout, output, out)
	},
}

func init() {
	researchCmd.Flags().String("output", "json", "output format (json, yaml)")
	rootCmd.AddCommand(researchCmd)
}
