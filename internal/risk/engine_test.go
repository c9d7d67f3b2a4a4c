package risk

import (
	"context"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzzdr/credit-risk-pipeline/pkg/models"
)

const tolerance = 1e-9

var asOf = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// referenceLoans is a small mixed book with hand-checked figures
func referenceLoans() []models.Loan {
	return []models.Loan{
		{
			ID: "A", Rating: models.RatingBBB, Sector: "manufacturing", Status: models.StatusPerforming,
			Amount: 1_000_000, OutstandingAmount: 1_000_000, Collateral: 1_600_000,
			Duration: 24, StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			ID: "B", Rating: models.RatingB, Sector: "retail", Status: models.StatusNonPerforming,
			Amount: 500_000, OutstandingAmount: 500_000, Collateral: 100_000,
			Duration: 60, StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			ID: "C", Rating: models.RatingAA, Sector: "real_estate", Status: models.StatusPerforming,
			Amount: 2_000_000, OutstandingAmount: 2_000_000, Collateral: 2_500_000,
			Duration: 120, StartDate: time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
		},
	}
}

func TestEnrichLoanFromTables(t *testing.T) {
	tests := []struct {
		name    string
		loan    models.Loan
		wantPD  float64
		wantLGD float64
	}{
		{"secured BBB", models.Loan{Rating: models.RatingBBB, Amount: 100, Collateral: 150}, 0.0024, LGDSecured},
		{"partially secured A", models.Loan{Rating: models.RatingA, Amount: 100, Collateral: 50}, 0.0008, LGDPartiallySecured},
		{"unsecured CCC", models.Loan{Rating: models.RatingCCC, Amount: 100, Collateral: 49.99}, 0.2642, LGDUnsecured},
		{"defaulted", models.Loan{Rating: models.RatingD, Amount: 100}, 1.0, LGDUnsecured},
		{"unknown rating", models.Loan{Rating: "CC", Amount: 100, Collateral: 200}, FallbackPD, LGDSecured},
		{"zero amount", models.Loan{Rating: models.RatingAAA, Collateral: 1_000}, 0.0001, LGDUnsecured},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.loan.OutstandingAmount = 80
			got := EnrichLoan(tt.loan)

			assert.Equal(t, tt.wantPD, got.ProbabilityOfDefault())
			assert.Equal(t, tt.wantLGD, got.LossGivenDefault())
			assert.Equal(t, 80.0, got.ExposureAtDefault())
			assert.InDelta(t, tt.wantPD*tt.wantLGD*80, got.ProvisionAmount(), tolerance)
			assert.Nil(t, tt.loan.PD, "input must not be modified")
		})
	}
}

func TestEnrichLoanKeepsSuppliedValues(t *testing.T) {
	loan := models.Loan{
		Rating: models.RatingAAA, Amount: 100, OutstandingAmount: 100,
		PD: models.Float(1.5), LGD: models.Float(0), EAD: models.Float(40),
	}

	got := EnrichLoan(loan)

	assert.Equal(t, 1.5, got.ProbabilityOfDefault())
	assert.Equal(t, 0.0, got.LossGivenDefault())
	assert.Equal(t, 40.0, got.ExposureAtDefault())
	assert.Equal(t, 0.0, got.ProvisionAmount())
}

func TestRiskWeights(t *testing.T) {
	assert.Equal(t, 0.2, RiskWeight(models.RatingAAA))
	assert.Equal(t, 0.5, RiskWeight(models.RatingA))
	assert.Equal(t, 1.5, RiskWeight(models.RatingD))
	assert.Equal(t, FallbackRiskWeight, RiskWeight("unrated"))
}

func TestAnalyzePortfolioReferenceBook(t *testing.T) {
	p := AnalyzePortfolio(referenceLoans())

	require.Len(t, p.Loans, 3)
	assert.Equal(t, LGDPartiallySecured, p.Loans[2].LossGivenDefault())

	assert.InDelta(t, 3_500_000, p.TotalExposure, tolerance)
	assert.InDelta(t, 20_870, p.ExpectedLoss, 1e-6)
	assert.InDelta(t, 20_870, p.TotalProvisions, 1e-6)
	assert.InDelta(t, 1.0/7.0, p.NPLRatio, tolerance)
	assert.InDelta(t, 33_400.0/3_500_000, p.AveragePD, tolerance)
	assert.InDelta(t, math.Sqrt(12_477.84275), p.UnexpectedLoss, 1e-6)
	assert.InDelta(t, p.UnexpectedLoss*EconomicCapitalMultiplier, p.EconomicCapital, tolerance)
}

func TestAnalyzePortfolioIsAdditive(t *testing.T) {
	loans := referenceLoans()
	whole := AnalyzePortfolio(loans)

	var el, provisions, exposure float64
	for _, loan := range loans {
		part := AnalyzePortfolio([]models.Loan{loan})
		el += part.ExpectedLoss
		provisions += part.TotalProvisions
		exposure += part.TotalExposure
	}

	assert.InDelta(t, whole.ExpectedLoss, el, 1e-6)
	assert.InDelta(t, whole.TotalProvisions, provisions, 1e-6)
	assert.InDelta(t, whole.TotalExposure, exposure, 1e-6)
}

func TestEmptyPortfolio(t *testing.T) {
	p := AnalyzePortfolio(nil)
	assert.Empty(t, p.Loans)
	assert.Zero(t, p.TotalExposure)
	assert.Zero(t, p.NPLRatio)
	assert.Zero(t, p.AveragePD)
	assert.Zero(t, p.EconomicCapital)

	m := CalculateRiskMetrics(p, asOf)
	assert.Empty(t, m.SectorConcentration)
	assert.Empty(t, m.RatingDistribution)
	assert.Len(t, m.MaturityProfile, 4)
	assert.Zero(t, m.ConcentrationRisk)
	assert.Zero(t, m.VaR99)

	r := CalculateRegulatoryRatios(p)
	assert.Zero(t, r.RWA)
	assert.Zero(t, r.Tier1Ratio)
	assert.Zero(t, r.ProvisioningRatio)
	assert.Equal(t, 1.0, r.CoverageRatio)
}

func TestCalculateRiskMetricsReferenceBook(t *testing.T) {
	p := AnalyzePortfolio(referenceLoans())
	m := CalculateRiskMetrics(p, asOf)

	assert.Equal(t, asOf, m.AsOf)
	assert.InDelta(t, 1.0/3.5, m.SectorConcentration["manufacturing"], tolerance)
	assert.InDelta(t, 0.5/3.5, m.SectorConcentration["retail"], tolerance)
	assert.InDelta(t, 2.0/3.5, m.SectorConcentration["real_estate"], tolerance)
	assert.InDelta(t, 5.25/12.25, m.ConcentrationRisk, tolerance)

	assert.InDelta(t, 2.0/3.5, m.RatingDistribution["AA"], tolerance)

	// A: 24 - 12 months elapsed, B: 60 - 12, C: 120 - 6
	assert.InDelta(t, 1.0/3.5, m.MaturityProfile[models.Maturity0To1Y], tolerance)
	assert.Zero(t, m.MaturityProfile[models.Maturity1To3Y])
	assert.InDelta(t, 0.5/3.5, m.MaturityProfile[models.Maturity3To5Y], tolerance)
	assert.InDelta(t, 2.0/3.5, m.MaturityProfile[models.Maturity5YUp], tolerance)

	for _, dist := range []map[string]float64{m.SectorConcentration, m.RatingDistribution, m.MaturityProfile} {
		var sum float64
		for _, share := range dist {
			sum += share
		}
		assert.InDelta(t, 1.0, sum, tolerance)
	}

	assert.InDelta(t, p.ExpectedLoss+Z95*p.UnexpectedLoss, m.VaR95, tolerance)
	assert.InDelta(t, p.ExpectedLoss+Z99*p.UnexpectedLoss, m.VaR99, tolerance)
	assert.InDelta(t, m.VaR99*ExpectedShortfallFactor, m.ExpectedShortfall, tolerance)
	assert.InDelta(t, Z99*p.UnexpectedLoss, m.CreditVaR, 1e-6)
	assert.GreaterOrEqual(t, m.VaR99, m.VaR95)
}

func TestRiskMetricsGroupsMissingLabels(t *testing.T) {
	p := AnalyzePortfolio([]models.Loan{{ID: "x", Amount: 10, OutstandingAmount: 10}})
	m := CalculateRiskMetrics(p, asOf)

	assert.Equal(t, 1.0, m.SectorConcentration[UnclassifiedSector])
	assert.Equal(t, 1.0, m.RatingDistribution[NotRated])
	assert.Equal(t, 1.0, m.ConcentrationRisk)
}

func TestRemainingMonths(t *testing.T) {
	loan := models.Loan{Duration: 36, StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}

	assert.Equal(t, 36, RemainingMonths(loan, loan.StartDate.Add(29*24*time.Hour)))
	assert.Equal(t, 35, RemainingMonths(loan, loan.StartDate.Add(30*24*time.Hour)))
	assert.Equal(t, 24, RemainingMonths(loan, asOf))
}

func TestRegulatoryRatiosReferenceBook(t *testing.T) {
	p := AnalyzePortfolio(referenceLoans())
	r := CalculateRegulatoryRatios(p)

	assert.InDelta(t, 2_150_000, r.RWA, tolerance)
	assert.InDelta(t, 172_000, r.Tier1Capital, tolerance)
	assert.InDelta(t, p.EconomicCapital/2_150_000, r.Tier1Ratio, tolerance)
	assert.InDelta(t, 20_870.0/3_500_000, r.ProvisioningRatio, 1e-9)
	assert.InDelta(t, 0.04174, r.CoverageRatio, 1e-9)
}

func TestRegulatoryRatiosSingleAAA(t *testing.T) {
	p := AnalyzePortfolio([]models.Loan{{ID: "x", Rating: models.RatingAAA, Amount: 1_000_000, OutstandingAmount: 1_000_000}})
	r := CalculateRegulatoryRatios(p)

	assert.InDelta(t, 200_000, r.RWA, tolerance)
	assert.Equal(t, 1.0, r.CoverageRatio)
}

func TestPerformStressTestIsMonotone(t *testing.T) {
	base := AnalyzePortfolio(referenceLoans())

	for _, scenario := range StandardScenarios() {
		t.Run(scenario.Name, func(t *testing.T) {
			result := PerformStressTest(base, scenario)

			assert.Equal(t, scenario.Name, result.Scenario.Name)
			assert.GreaterOrEqual(t, result.StressedCase.ExpectedLoss, base.ExpectedLoss)
			assert.Greater(t, result.Impact.ExpectedLossIncrease, 0.0)
			assert.InDelta(t, base.TotalExposure, result.StressedCase.TotalExposure, tolerance)
			// status is not reclassified under stress
			assert.Zero(t, result.Impact.NPLRatioIncrease)
			// stressed provisions are recomputed from stressed PD and LGD
			assert.InDelta(t, 0, result.Impact.ProvisioningGap, 1e-6)

			for i, loan := range result.StressedCase.Loans {
				assert.LessOrEqual(t, loan.ProbabilityOfDefault(), 1.0)
				assert.LessOrEqual(t, loan.LossGivenDefault(), 1.0)
				assert.InDelta(t, base.Loans[i].Collateral*(1-scenario.CollateralHaircut), loan.Collateral, tolerance)
			}
		})
	}
}

func TestPerformStressTestClampsPD(t *testing.T) {
	base := AnalyzePortfolio([]models.Loan{{ID: "x", Amount: 100, OutstandingAmount: 100, PD: models.Float(0.9), LGD: models.Float(0.8)}})
	scenario := models.StressScenario{Name: "x3", PDMultiplier: 3, LGDMultiplier: 1.5}

	result := PerformStressTest(base, scenario)
	loan := result.StressedCase.Loans[0]

	assert.Equal(t, 1.0, loan.ProbabilityOfDefault())
	assert.Equal(t, 1.0, loan.LossGivenDefault())
	assert.InDelta(t, 100, result.StressedCase.ExpectedLoss, tolerance)
	assert.Equal(t, 0.9, *base.Loans[0].PD, "base must be untouched")
}

func TestPerformStressTestAppliesSectorImpact(t *testing.T) {
	base := AnalyzePortfolio([]models.Loan{
		{ID: "re", Sector: "real_estate", Amount: 100, OutstandingAmount: 100, PD: models.Float(0.01), LGD: models.Float(0.5)},
		{ID: "mi", Sector: "mining", Amount: 100, OutstandingAmount: 100, PD: models.Float(0.01), LGD: models.Float(0.5)},
	})
	scenario, ok := ScenarioByName("Real estate sector shock")
	require.True(t, ok)

	result := PerformStressTest(base, scenario)

	assert.InDelta(t, 0.01*1.2*5.0, result.StressedCase.Loans[0].ProbabilityOfDefault(), tolerance)
	assert.InDelta(t, 0.01*1.2, result.StressedCase.Loans[1].ProbabilityOfDefault(), tolerance)
}

func TestStandardScenarios(t *testing.T) {
	scenarios := StandardScenarios()
	require.Len(t, scenarios, 4)
	for _, s := range scenarios {
		assert.NoError(t, models.ValidateScenario(s))
	}

	scenarios[0].SectorImpacts["retail"] = 99
	assert.Equal(t, 1.3, StandardScenarios()[0].SectorImpacts["retail"])

	_, ok := ScenarioByName("does not exist")
	assert.False(t, ok)
}

func TestRunScenariosKeepsOrder(t *testing.T) {
	base := AnalyzePortfolio(referenceLoans())
	scenarios := StandardScenarios()

	results, err := RunScenarios(context.Background(), base, scenarios, 2)
	require.NoError(t, err)
	require.Len(t, results, len(scenarios))
	for i, r := range results {
		assert.Equal(t, scenarios[i].Name, r.Scenario.Name)
		assert.Equal(t, PerformStressTest(base, scenarios[i]).Impact, r.Impact)
	}
}

func TestRunScenariosCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := RunScenarios(ctx, AnalyzePortfolio(referenceLoans()), StandardScenarios(), 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCompareScenarios(t *testing.T) {
	result := func(name string, elIncrease, capIncrease, stressedEL, exposure float64, loans []models.Loan) models.StressTestResult {
		return models.StressTestResult{
			Scenario:     models.StressScenario{Name: name},
			StressedCase: models.Portfolio{ExpectedLoss: stressedEL, TotalExposure: exposure, Loans: loans},
			Impact:       models.StressImpact{ExpectedLossIncrease: elIncrease, CapitalRequirementIncrease: capIncrease},
		}
	}
	risky := []models.Loan{
		{Sector: "retail", OutstandingAmount: 100, PD: models.Float(0.2), LGD: models.Float(0.5)},
		{Sector: "services", OutstandingAmount: 100, PD: models.Float(0.01), LGD: models.Float(0.5)},
	}

	c := CompareScenarios([]models.StressTestResult{
		result("mild", 10, 500, 20, 1_000, nil),
		result("harsh", 900, 2_000_000, 100, 1_000, risky),
	})

	assert.Equal(t, "harsh", c.WorstScenario)
	assert.Equal(t, 900.0, c.MaxExpectedLossIncrease)
	assert.Equal(t, 2_000_000.0, c.CapitalBufferRequired)
	require.Len(t, c.Recommendations, 3)
	assert.Equal(t, RecommendStrengthenProvisions, c.Recommendations[0].Code)
	assert.Equal(t, RecommendSectorConcentration, c.Recommendations[1].Code)
	assert.Equal(t, "retail", c.Recommendations[1].Sector)
	assert.Equal(t, RecommendCapitalBuffer, c.Recommendations[2].Code)

	empty := CompareScenarios(nil)
	assert.Empty(t, empty.WorstScenario)
	assert.NotNil(t, empty.Recommendations)
}

func TestStagePortfolioReferenceBook(t *testing.T) {
	report := StagePortfolio(AnalyzePortfolio(referenceLoans()))

	require.Len(t, report.Assessments, 3)
	a, b, c := report.Assessments[0], report.Assessments[1], report.Assessments[2]

	assert.Equal(t, models.Stage1, a.Stage)
	assert.Equal(t, 840.0, a.ECL12Months)
	assert.Equal(t, 2520.0, a.ECLLifetime)
	assert.Equal(t, 0.00252, a.ProvisionRate)

	assert.Equal(t, models.Stage2, b.Stage)
	assert.Equal(t, 19760.0, b.ECL12Months)
	assert.Equal(t, 98800.0, b.ECLLifetime)

	assert.Equal(t, models.Stage1, c.Stage)
	assert.Equal(t, 810.0, c.ECLLifetime)

	assert.Equal(t, 102130.0, report.TotalECL)
	assert.Equal(t, 2, report.ByStage[models.Stage1].Count)
	assert.Equal(t, 3_000_000.0, report.ByStage[models.Stage1].Exposure)
	assert.Equal(t, 0, report.ByStage[models.Stage3].Count)
	assert.InDelta(t, 1.0/7.0, report.Stage2Ratio, tolerance)
	assert.Zero(t, report.Stage3Ratio)
}

func TestStageForPD(t *testing.T) {
	assert.Equal(t, models.Stage1, StageForPD(0.0099))
	assert.Equal(t, models.Stage2, StageForPD(0.01))
	assert.Equal(t, models.Stage2, StageForPD(0.1999))
	assert.Equal(t, models.Stage3, StageForPD(0.20))
	assert.Equal(t, models.Stage3, StageForPD(1))
}

func TestGenerateSampleLoansIsDeterministic(t *testing.T) {
	first := GenerateSampleLoans(rand.New(rand.NewSource(7)), 50)
	second := GenerateSampleLoans(rand.New(rand.NewSource(7)), 50)

	require.Len(t, first, 50)
	assert.Equal(t, first, second)
	assert.Empty(t, GenerateSampleLoans(rand.New(rand.NewSource(7)), -1))

	for _, loan := range first {
		assert.GreaterOrEqual(t, loan.Amount, 100_000.0)
		assert.Less(t, loan.Amount, 5_100_000.0)
		assert.LessOrEqual(t, loan.OutstandingAmount, loan.Amount)
		assert.True(t, loan.Rating.Known())
		assert.Nil(t, loan.PD)
		assert.NoError(t, models.ValidateLoans([]models.Loan{loan}))
	}
}
