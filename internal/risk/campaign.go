package risk

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/rzzdr/credit-risk-pipeline/pkg/models"
)

// Recommendation thresholds
const (
	provisioningLossRateThreshold = 0.05
	sectorLossRateThreshold       = 0.08
	capitalBufferThreshold        = 1_000_000
)

// Recommendation codes
const (
	RecommendStrengthenProvisions = "strengthen_provisions"
	RecommendSectorConcentration  = "sector_concentration"
	RecommendCapitalBuffer        = "capital_buffer"
)

// RunScenarios stresses the same base portfolio under every scenario, at most
// workers at a time. Results keep the order of scenarios. The base portfolio is
// only read, so the scenarios share it without copying.
func RunScenarios(ctx context.Context, base models.Portfolio, scenarios []models.StressScenario, workers int) ([]models.StressTestResult, error) {
	if workers <= 0 {
		workers = 1
	}

	results := make([]models.StressTestResult, len(scenarios))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, scenario := range scenarios {
		i, scenario := i, scenario
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = PerformStressTest(base, scenario)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// CompareScenarios summarizes a stress campaign and derives recommendations
func CompareScenarios(results []models.StressTestResult) models.ScenarioComparison {
	comparison := models.ScenarioComparison{Recommendations: []models.Recommendation{}}
	if len(results) == 0 {
		return comparison
	}

	worst := 0
	for i, r := range results {
		if r.Impact.ExpectedLossIncrease > results[worst].Impact.ExpectedLossIncrease {
			worst = i
		}
		if r.Impact.CapitalRequirementIncrease > comparison.CapitalBufferRequired {
			comparison.CapitalBufferRequired = r.Impact.CapitalRequirementIncrease
		}
	}
	comparison.WorstScenario = results[worst].Scenario.Name
	comparison.MaxExpectedLossIncrease = results[worst].Impact.ExpectedLossIncrease

	for _, r := range results {
		lossRate := safeDiv(r.StressedCase.ExpectedLoss, r.StressedCase.TotalExposure)
		if lossRate > provisioningLossRateThreshold {
			comparison.Recommendations = append(comparison.Recommendations, models.Recommendation{
				Code:    RecommendStrengthenProvisions,
				Message: fmt.Sprintf("stressed loss rate %.2f%% under %q exceeds %.0f%%: strengthen provisions", lossRate*100, r.Scenario.Name, provisioningLossRateThreshold*100),
			})
		}
	}

	flagged := make(map[string]float64)
	for _, r := range results {
		for sector, rate := range sectorLossRates(r.StressedCase) {
			if rate > sectorLossRateThreshold && rate > flagged[sector] {
				flagged[sector] = rate
			}
		}
	}
	sectors := make([]string, 0, len(flagged))
	for sector := range flagged {
		sectors = append(sectors, sector)
	}
	sort.Strings(sectors)
	for _, sector := range sectors {
		comparison.Recommendations = append(comparison.Recommendations, models.Recommendation{
			Code:    RecommendSectorConcentration,
			Sector:  sector,
			Message: fmt.Sprintf("high stressed loss rate %.2f%% in sector %s", flagged[sector]*100, sector),
		})
	}

	if comparison.CapitalBufferRequired > capitalBufferThreshold {
		comparison.Recommendations = append(comparison.Recommendations, models.Recommendation{
			Code:    RecommendCapitalBuffer,
			Message: fmt.Sprintf("additional capital buffer of %.0f recommended", comparison.CapitalBufferRequired),
		})
	}

	return comparison
}

// sectorLossRates returns expected loss over exposure per sector
func sectorLossRates(p models.Portfolio) map[string]float64 {
	exposure := make(map[string]float64)
	loss := make(map[string]float64)
	for _, loan := range p.Loans {
		key := sectorKey(loan.Sector)
		exposure[key] += loan.OutstandingAmount
		loss[key] += loan.ProbabilityOfDefault() * loan.LossGivenDefault() * loan.OutstandingAmount
	}
	rates := make(map[string]float64, len(exposure))
	for sector, exp := range exposure {
		rates[sector] = safeDiv(loss[sector], exp)
	}
	return rates
}
