package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rzzdr/credit-risk-pipeline/internal/risk"
	"github.com/rzzdr/credit-risk-pipeline/pkg/models"
	"github.com/rzzdr/credit-risk-pipeline/pkg/utils/logger"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "riskctl",
		Short:         "Credit risk analysis from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level, _ := cmd.Flags().GetString("log-level")
			logger.Init(logger.Config{Level: level, Environment: "development"})
		},
	}
	root.PersistentFlags().String("log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(newSampleCmd(), newAnalyzeCmd(), newScenariosCmd())
	return root
}

// --- Sample Command ---

func newSampleCmd() *cobra.Command {
	var (
		count int
		seed  int64
		id    string
	)
	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Print a synthetic loan book as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			if count <= 0 {
				return fmt.Errorf("count must be positive, got %d", count)
			}
			book := models.LoanBook{
				ID:    id,
				Name:  "Synthetic loan book",
				Loans: risk.GenerateSampleLoans(rand.New(rand.NewSource(seed)), count),
			}
			return writeJSON(cmd.OutOrStdout(), book)
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 20, "number of loans")
	cmd.Flags().Int64Var(&seed, "seed", 42, "random seed")
	cmd.Flags().StringVar(&id, "id", "sample", "loan book ID")
	return cmd
}

// --- Analyze Command ---

type analysisOutput struct {
	Report models.PortfolioReport `json:"report"`
	Stress *models.StressCampaign `json:"stress,omitempty"`
}

func newAnalyzeCmd() *cobra.Command {
	var (
		file      string
		scenarios []string
		allStress bool
		asOf      string
	)
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze a JSON loan book or loan array",
		RunE: func(cmd *cobra.Command, args []string) error {
			loans, err := readLoans(file, cmd.InOrStdin())
			if err != nil {
				return err
			}

			clock := time.Now().UTC()
			if asOf != "" {
				if clock, err = time.Parse("2006-01-02", asOf); err != nil {
					return fmt.Errorf("invalid --as-of date: %w", err)
				}
			}

			calc := risk.NewCalculator(risk.CalculatorConfig{}, nil, nil, nil)
			calc.SetClock(func() time.Time { return clock })
			out := analysisOutput{Report: calc.Report(loans)}

			selected, err := selectScenarios(scenarios, allStress)
			if err != nil {
				return err
			}
			if len(selected) > 0 {
				results, err := risk.RunScenarios(cmd.Context(), out.Report.Portfolio, selected, 0)
				if err != nil {
					return err
				}
				out.Stress = &models.StressCampaign{
					PortfolioID: "local",
					Timestamp:   clock,
					Results:     results,
					Comparison:  risk.CompareScenarios(results),
				}
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "loan file, - for stdin")
	cmd.Flags().StringSliceVarP(&scenarios, "scenario", "s", nil, "stress scenario name (repeatable)")
	cmd.Flags().BoolVar(&allStress, "stress", false, "run every standard scenario")
	cmd.Flags().StringVar(&asOf, "as-of", "", "reference date for the maturity profile (YYYY-MM-DD)")
	return cmd
}

// --- Scenarios Command ---

func newScenariosCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scenarios",
		Short: "List the standard stress scenarios",
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeJSON(cmd.OutOrStdout(), risk.StandardScenarios())
		},
	}
}

// readLoans accepts either a loan book object or a bare array of loans
func readLoans(path string, stdin io.Reader) ([]models.Loan, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read loans: %w", err)
	}

	data = bytes.TrimSpace(data)
	var loans []models.Loan
	if len(data) > 0 && data[0] == '[' {
		err = json.Unmarshal(data, &loans)
	} else {
		var book models.LoanBook
		err = json.Unmarshal(data, &book)
		loans = book.Loans
	}
	if err != nil {
		return nil, fmt.Errorf("decode loans: %w", err)
	}

	if err := models.ValidateLoans(loans); err != nil {
		return nil, err
	}
	return loans, nil
}

func selectScenarios(names []string, all bool) ([]models.StressScenario, error) {
	if all {
		return risk.StandardScenarios(), nil
	}
	selected := make([]models.StressScenario, 0, len(names))
	for _, name := range names {
		s, ok := risk.ScenarioByName(name)
		if !ok {
			return nil, fmt.Errorf("unknown scenario %q", name)
		}
		selected = append(selected, s)
	}
	return selected, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
