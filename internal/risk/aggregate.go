package risk

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/rzzdr/credit-risk-pipeline/pkg/models"
)

// AnalyzePortfolio enriches loans and aggregates them into a Portfolio.
// An empty collection yields a zero-valued portfolio.
func AnalyzePortfolio(loans []models.Loan) models.Portfolio {
	enriched := EnrichLoans(loans)
	n := len(enriched)

	outstanding := make([]float64, n)
	provisions := make([]float64, n)
	pds := make([]float64, n)
	var nplAmount, expectedLoss, variance float64

	for i, loan := range enriched {
		out := loan.OutstandingAmount
		pd := loan.ProbabilityOfDefault()
		lgd := loan.LossGivenDefault()

		outstanding[i] = out
		provisions[i] = loan.ProvisionAmount()
		pds[i] = pd

		if loan.Status.IsNonPerforming() {
			nplAmount += out
		}
		expectedLoss += pd * lgd * out
		// single-factor binomial loss variance
		variance += out * pd * (1 - pd) * lgd * lgd
	}

	totalExposure := floats.Sum(outstanding)

	var averagePD float64
	if totalExposure != 0 {
		averagePD = stat.Mean(pds, outstanding)
	}

	// variance can only go negative on garbage input (PD outside [0,1])
	unexpectedLoss := math.Sqrt(math.Max(variance, 0))

	return models.Portfolio{
		Loans:           enriched,
		TotalExposure:   totalExposure,
		TotalProvisions: floats.Sum(provisions),
		NPLRatio:        safeDiv(nplAmount, totalExposure),
		AveragePD:       averagePD,
		ExpectedLoss:    expectedLoss,
		UnexpectedLoss:  unexpectedLoss,
		EconomicCapital: unexpectedLoss * EconomicCapitalMultiplier,
	}
}
