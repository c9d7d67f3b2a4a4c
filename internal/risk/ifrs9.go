package risk

import (
	"github.com/shopspring/decimal"

	"github.com/rzzdr/credit-risk-pipeline/pkg/models"
)

// IFRS 9 staging thresholds on annual PD
const (
	stage2PDThreshold = 0.01
	stage3PDThreshold = 0.20
)

// lifetime ECL as a multiple of 12-month ECL; a flat simplification per stage
var lifetimeMultiplier = map[models.ECLStage]int64{
	models.Stage1: 3,
	models.Stage2: 5,
	models.Stage3: 1,
}

// StageForPD maps a PD to its IFRS 9 stage
func StageForPD(pd float64) models.ECLStage {
	switch {
	case pd < stage2PDThreshold:
		return models.Stage1
	case pd < stage3PDThreshold:
		return models.Stage2
	default:
		return models.Stage3
	}
}

// AssessECL stages an enriched loan and computes its 12-month and lifetime ECL,
// rounded to cents. The provision rate is lifetime ECL over EAD.
func AssessECL(loan models.Loan) models.ECLAssessment {
	enriched := EnrichLoan(loan)
	stage := StageForPD(enriched.ProbabilityOfDefault())

	ead := decimal.NewFromFloat(enriched.ExposureAtDefault())
	ecl := decimal.NewFromFloat(enriched.ProbabilityOfDefault()).
		Mul(decimal.NewFromFloat(enriched.LossGivenDefault())).
		Mul(ead)
	lifetime := ecl.Mul(decimal.NewFromInt(lifetimeMultiplier[stage]))

	rate := decimal.Zero
	if !ead.IsZero() {
		rate = lifetime.Div(ead)
	}

	return models.ECLAssessment{
		LoanID:        loan.ID,
		Stage:         stage,
		ECL12Months:   ecl.Round(2).InexactFloat64(),
		ECLLifetime:   lifetime.Round(2).InexactFloat64(),
		ProvisionRate: rate.Round(6).InexactFloat64(),
	}
}

// StagePortfolio assesses every loan and aggregates exposure and lifetime ECL by stage
func StagePortfolio(portfolio models.Portfolio) models.StagingReport {
	report := models.StagingReport{
		Assessments: make([]models.ECLAssessment, 0, len(portfolio.Loans)),
		ByStage: map[models.ECLStage]models.StageSummary{
			models.Stage1: {},
			models.Stage2: {},
			models.Stage3: {},
		},
	}

	exposure := map[models.ECLStage]decimal.Decimal{}
	ecl := map[models.ECLStage]decimal.Decimal{}
	total := decimal.Zero

	for _, loan := range portfolio.Loans {
		a := AssessECL(loan)
		report.Assessments = append(report.Assessments, a)

		out := decimal.NewFromFloat(loan.OutstandingAmount)
		exposure[a.Stage] = exposure[a.Stage].Add(out)
		ecl[a.Stage] = ecl[a.Stage].Add(decimal.NewFromFloat(a.ECLLifetime))
		total = total.Add(decimal.NewFromFloat(a.ECLLifetime))

		summary := report.ByStage[a.Stage]
		summary.Count++
		report.ByStage[a.Stage] = summary
	}

	for stage, summary := range report.ByStage {
		summary.Exposure = exposure[stage].Round(2).InexactFloat64()
		summary.ECL = ecl[stage].Round(2).InexactFloat64()
		report.ByStage[stage] = summary
	}

	report.TotalECL = total.Round(2).InexactFloat64()
	report.Stage2Ratio = safeDiv(report.ByStage[models.Stage2].Exposure, portfolio.TotalExposure)
	report.Stage3Ratio = safeDiv(report.ByStage[models.Stage3].Exposure, portfolio.TotalExposure)

	return report
}
