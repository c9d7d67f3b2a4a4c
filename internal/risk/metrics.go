package risk

import (
	"math"
	"time"

	"github.com/rzzdr/credit-risk-pipeline/pkg/models"
)

const (
	// UnclassifiedSector groups loans without a sector
	UnclassifiedSector = "unclassified"
	// NotRated groups loans without a rating
	NotRated = "NR"

	// months are counted as 30-day blocks
	monthLength = 30 * 24 * time.Hour
)

// CalculateRiskMetrics derives the distributional snapshot of a portfolio as of
// the given reference time. The maturity profile depends on asOf; nothing else does.
func CalculateRiskMetrics(portfolio models.Portfolio, asOf time.Time) models.RiskMetrics {
	metrics := models.RiskMetrics{
		AsOf:                asOf,
		SectorConcentration: make(map[string]float64),
		RatingDistribution:  make(map[string]float64),
		MaturityProfile:     make(map[string]float64, len(models.MaturityBuckets)),
	}
	for _, bucket := range models.MaturityBuckets {
		metrics.MaturityProfile[bucket] = 0
	}

	total := portfolio.TotalExposure
	if total != 0 {
		for _, loan := range portfolio.Loans {
			metrics.SectorConcentration[sectorKey(loan.Sector)] += loan.OutstandingAmount
			metrics.RatingDistribution[ratingKey(loan.Rating)] += loan.OutstandingAmount
			metrics.MaturityProfile[maturityBucket(RemainingMonths(loan, asOf))] += loan.OutstandingAmount
		}
		normalize(metrics.SectorConcentration, total)
		normalize(metrics.RatingDistribution, total)
		normalize(metrics.MaturityProfile, total)
	}

	metrics.ConcentrationRisk = HerfindahlIndex(metrics.SectorConcentration)

	el := portfolio.ExpectedLoss
	ul := portfolio.UnexpectedLoss
	metrics.VaR95 = el + Z95*ul
	metrics.VaR99 = el + Z99*ul
	// not a tail integral, a fixed uplift on VaR99
	metrics.ExpectedShortfall = metrics.VaR99 * ExpectedShortfallFactor
	metrics.CreditVaR = metrics.VaR99 - el

	return metrics
}

// RemainingMonths is the contractual duration minus whole 30-day months elapsed since start
func RemainingMonths(loan models.Loan, asOf time.Time) int {
	elapsed := asOf.Sub(loan.StartDate)
	monthsElapsed := int(math.Floor(float64(elapsed) / float64(monthLength)))
	return loan.Duration - monthsElapsed
}

// HerfindahlIndex is the sum of squared shares
func HerfindahlIndex(shares map[string]float64) float64 {
	var hhi float64
	for _, share := range shares {
		hhi += share * share
	}
	return hhi
}

func maturityBucket(remainingMonths int) string {
	switch {
	case remainingMonths <= 12:
		return models.Maturity0To1Y
	case remainingMonths <= 36:
		return models.Maturity1To3Y
	case remainingMonths <= 60:
		return models.Maturity3To5Y
	default:
		return models.Maturity5YUp
	}
}

func normalize(amounts map[string]float64, total float64) {
	for key, amount := range amounts {
		amounts[key] = amount / total
	}
}

func sectorKey(sector string) string {
	if sector == "" {
		return UnclassifiedSector
	}
	return sector
}

func ratingKey(rating models.Rating) string {
	if rating == "" {
		return NotRated
	}
	return string(rating)
}
