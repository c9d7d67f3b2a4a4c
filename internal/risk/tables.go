package risk

import (
	"github.com/rzzdr/credit-risk-pipeline/pkg/models"
)

// ratingParams holds the per-rating calibration
type ratingParams struct {
	pd         float64 // annual probability of default
	riskWeight float64 // Basel standardised risk weight
}

var ratingTable = map[models.Rating]ratingParams{
	models.RatingAAA: {pd: 0.0001, riskWeight: 0.20},
	models.RatingAA:  {pd: 0.0003, riskWeight: 0.20},
	models.RatingA:   {pd: 0.0008, riskWeight: 0.50},
	models.RatingBBB: {pd: 0.0024, riskWeight: 1.00},
	models.RatingBB:  {pd: 0.0136, riskWeight: 1.00},
	models.RatingB:   {pd: 0.0608, riskWeight: 1.50},
	models.RatingCCC: {pd: 0.2642, riskWeight: 1.50},
	models.RatingD:   {pd: 1.0000, riskWeight: 1.50},
}

const (
	// FallbackPD applies to ratings outside the scale
	FallbackPD = 0.05
	// FallbackRiskWeight applies to ratings outside the scale
	FallbackRiskWeight = 1.00

	// LGD by collateral coverage
	LGDSecured          = 0.35
	LGDPartiallySecured = 0.45
	LGDUnsecured        = 0.65

	securedCoverage          = 1.5
	partiallySecuredCoverage = 0.5
)

// Model constants. These are fixed simplifications, not calibrated outputs of
// a credit portfolio model.
const (
	// EconomicCapitalMultiplier scales unexpected loss into economic capital.
	// 2.33 is the one-sided normal quantile used as a stand-in for the 99.9%
	// confidence level.
	EconomicCapitalMultiplier = 2.33
	// Z95 and Z99 are the normal quantiles used for the VaR approximations
	Z95 = 1.65
	Z99 = 2.33
	// ExpectedShortfallFactor approximates the tail mean beyond VaR99
	ExpectedShortfallFactor = 1.2
	// Tier1CapitalRate is the minimum capital requirement on RWA
	Tier1CapitalRate = 0.08
)

// DefaultPD returns the annual PD for a rating; never fails
func DefaultPD(r models.Rating) float64 {
	if p, ok := ratingTable[r]; ok {
		return p.pd
	}
	return FallbackPD
}

// RiskWeight returns the Basel risk weight for a rating; never fails
func RiskWeight(r models.Rating) float64 {
	if p, ok := ratingTable[r]; ok {
		return p.riskWeight
	}
	return FallbackRiskWeight
}

// LGDForCollateral buckets a loan by collateral coverage of the original amount.
// A non-positive amount is treated as unsecured.
func LGDForCollateral(collateral, amount float64) float64 {
	if amount <= 0 {
		return LGDUnsecured
	}
	ratio := collateral / amount
	switch {
	case ratio >= securedCoverage:
		return LGDSecured
	case ratio >= partiallySecuredCoverage:
		return LGDPartiallySecured
	default:
		return LGDUnsecured
	}
}

// clamp01 bounds v to [0,1]
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// safeDiv returns num/den, or 0 when den is zero
func safeDiv(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}
