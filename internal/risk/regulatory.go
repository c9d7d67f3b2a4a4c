package risk

import (
	"github.com/rzzdr/credit-risk-pipeline/pkg/models"
)

// CalculateRegulatoryRatios derives Basel-style ratios from a portfolio.
// Ratios with a zero denominator are 0, except coverage which is 1 when there
// is no NPL exposure to cover.
func CalculateRegulatoryRatios(portfolio models.Portfolio) models.RegulatoryRatios {
	var rwa float64
	for _, loan := range portfolio.Loans {
		rwa += loan.OutstandingAmount * RiskWeight(loan.Rating)
	}

	coverage := 1.0
	if npl := portfolio.NPLExposure(); npl > 0 {
		coverage = portfolio.TotalProvisions / npl
	}

	return models.RegulatoryRatios{
		RWA:               rwa,
		Tier1Capital:      rwa * Tier1CapitalRate,
		Tier1Ratio:        safeDiv(portfolio.EconomicCapital, rwa),
		ProvisioningRatio: safeDiv(portfolio.TotalProvisions, portfolio.TotalExposure),
		CoverageRatio:     coverage,
	}
}
