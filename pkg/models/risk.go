package models

import (
	"time"
)

// Maturity buckets of the maturity profile
const (
	Maturity0To1Y = "0-1Y"
	Maturity1To3Y = "1-3Y"
	Maturity3To5Y = "3-5Y"
	Maturity5YUp  = "5Y+"
)

// MaturityBuckets lists the buckets in ascending order
var MaturityBuckets = []string{Maturity0To1Y, Maturity1To3Y, Maturity3To5Y, Maturity5YUp}

// Portfolio is an aggregate over enriched loans
type Portfolio struct {
	Loans           []Loan  `json:"loans"`
	TotalExposure   float64 `json:"totalExposure"`
	TotalProvisions float64 `json:"totalProvisions"`
	NPLRatio        float64 `json:"nplRatio"`
	AveragePD       float64 `json:"averagePD"`
	ExpectedLoss    float64 `json:"expectedLoss"`
	UnexpectedLoss  float64 `json:"unexpectedLoss"`
	EconomicCapital float64 `json:"economicCapital"`
}

// NPLExposure sums the outstanding amount of non-performing and defaulted loans
func (p Portfolio) NPLExposure() float64 {
	var npl float64
	for _, loan := range p.Loans {
		if loan.Status.IsNonPerforming() {
			npl += loan.OutstandingAmount
		}
	}
	return npl
}

// RiskMetrics is a point-in-time distributional snapshot of a portfolio
type RiskMetrics struct {
	AsOf                time.Time          `json:"asOf"`
	VaR95               float64            `json:"var95"`
	VaR99               float64            `json:"var99"`
	ExpectedShortfall   float64            `json:"expectedShortfall"`
	CreditVaR           float64            `json:"creditVaR"`
	ConcentrationRisk   float64            `json:"concentrationRisk"`
	SectorConcentration map[string]float64 `json:"sectorConcentration"`
	RatingDistribution  map[string]float64 `json:"ratingDistribution"`
	MaturityProfile     map[string]float64 `json:"maturityProfile"`
}

// StressScenario is a named set of multiplicative shocks
type StressScenario struct {
	Name              string             `json:"name" validate:"required"`
	PDMultiplier      float64            `json:"pdMultiplier" validate:"gte=0"`
	LGDMultiplier     float64            `json:"lgdMultiplier" validate:"gte=0"`
	CollateralHaircut float64            `json:"collateralHaircut" validate:"gte=0,lte=1"`
	SectorImpacts     map[string]float64 `json:"sectorImpacts,omitempty"`
}

// SectorImpact returns the sector multiplier, 1 for sectors the scenario does not name
func (s StressScenario) SectorImpact(sector string) float64 {
	if impact, ok := s.SectorImpacts[sector]; ok {
		return impact
	}
	return 1
}

// StressImpact is the difference between the stressed and the base case
type StressImpact struct {
	ExpectedLossIncrease       float64 `json:"expectedLossIncrease"`
	CapitalRequirementIncrease float64 `json:"capitalRequirementIncrease"`
	NPLRatioIncrease           float64 `json:"nplRatioIncrease"`
	ProvisioningGap            float64 `json:"provisioningGap"`
}

// The result of applying one scenario to a portfolio
type StressTestResult struct {
	Scenario     StressScenario `json:"scenario"`
	BaseCase     Portfolio      `json:"baseCase"`
	StressedCase Portfolio      `json:"stressedCase"`
	Impact       StressImpact   `json:"impact"`
}

// Recommendation is an action suggested by a stress campaign
type Recommendation struct {
	Code    string `json:"code"`
	Sector  string `json:"sector,omitempty"`
	Message string `json:"message"`
}

// ScenarioComparison summarizes a set of stress results
type ScenarioComparison struct {
	WorstScenario           string           `json:"worstScenario"`
	MaxExpectedLossIncrease float64          `json:"maxExpectedLossIncrease"`
	CapitalBufferRequired   float64          `json:"capitalBufferRequired"`
	Recommendations         []Recommendation `json:"recommendations"`
}

// A stress campaign: several scenarios run against the same base portfolio
type StressCampaign struct {
	PortfolioID string             `json:"portfolioId"`
	Timestamp   time.Time          `json:"timestamp"`
	Results     []StressTestResult `json:"results"`
	Comparison  ScenarioComparison `json:"comparison"`
}

// RegulatoryRatios are Basel-style ratios for compliance reporting
type RegulatoryRatios struct {
	RWA               float64 `json:"rwa"`
	Tier1Capital      float64 `json:"tier1Capital"`
	Tier1Ratio        float64 `json:"tier1Ratio"`
	ProvisioningRatio float64 `json:"provisioningRatio"`
	CoverageRatio     float64 `json:"coverageRatio"`
}

// ECLStage is the IFRS 9 impairment stage
type ECLStage int

const (
	Stage1 ECLStage = iota + 1
	Stage2
	Stage3
)

// ECLAssessment is the IFRS 9 view of a single loan
type ECLAssessment struct {
	LoanID        string   `json:"loanId"`
	Stage         ECLStage `json:"stage"`
	ECL12Months   float64  `json:"ecl12Months"`
	ECLLifetime   float64  `json:"eclLifetime"`
	ProvisionRate float64  `json:"provisionRate"`
}

// StageSummary aggregates the loans of one IFRS 9 stage
type StageSummary struct {
	Count    int     `json:"count"`
	Exposure float64 `json:"exposure"`
	ECL      float64 `json:"ecl"`
}

// StagingReport is the IFRS 9 staging of a whole portfolio
type StagingReport struct {
	Assessments []ECLAssessment           `json:"assessments"`
	ByStage     map[ECLStage]StageSummary `json:"byStage"`
	TotalECL    float64                   `json:"totalEcl"`
	Stage2Ratio float64                   `json:"stage2Ratio"`
	Stage3Ratio float64                   `json:"stage3Ratio"`
}

// RiskSnapshot is what the service streams after each analysis
type RiskSnapshot struct {
	PortfolioID string           `json:"portfolioId"`
	Timestamp   time.Time        `json:"timestamp"`
	Portfolio   PortfolioSummary `json:"portfolio"`
	Metrics     RiskMetrics      `json:"metrics"`
	Regulatory  RegulatoryRatios `json:"regulatory"`
}

// PortfolioSummary is a Portfolio without its loans
type PortfolioSummary struct {
	LoanCount       int     `json:"loanCount"`
	TotalExposure   float64 `json:"totalExposure"`
	TotalProvisions float64 `json:"totalProvisions"`
	NPLRatio        float64 `json:"nplRatio"`
	AveragePD       float64 `json:"averagePD"`
	ExpectedLoss    float64 `json:"expectedLoss"`
	UnexpectedLoss  float64 `json:"unexpectedLoss"`
	EconomicCapital float64 `json:"economicCapital"`
}

// Summary drops the loans from a portfolio
func (p Portfolio) Summary() PortfolioSummary {
	return PortfolioSummary{
		LoanCount:       len(p.Loans),
		TotalExposure:   p.TotalExposure,
		TotalProvisions: p.TotalProvisions,
		NPLRatio:        p.NPLRatio,
		AveragePD:       p.AveragePD,
		ExpectedLoss:    p.ExpectedLoss,
		UnexpectedLoss:  p.UnexpectedLoss,
		EconomicCapital: p.EconomicCapital,
	}
}

// StressRun is the persisted outcome of one scenario of a stress campaign
type StressRun struct {
	ID                         string    `json:"id"`
	PortfolioID                string    `json:"portfolioId"`
	ScenarioName               string    `json:"scenarioName"`
	PDMultiplier               float64   `json:"pdMultiplier"`
	LGDMultiplier              float64   `json:"lgdMultiplier"`
	CollateralHaircut          float64   `json:"collateralHaircut"`
	BaseExpectedLoss           float64   `json:"baseExpectedLoss"`
	StressedExpectedLoss       float64   `json:"stressedExpectedLoss"`
	ExpectedLossIncrease       float64   `json:"expectedLossIncrease"`
	CapitalRequirementIncrease float64   `json:"capitalRequirementIncrease"`
	NPLRatioIncrease           float64   `json:"nplRatioIncrease"`
	ProvisioningGap            float64   `json:"provisioningGap"`
	CreatedAt                  time.Time `json:"createdAt"`
}

// PortfolioReport bundles every view of a portfolio
type PortfolioReport struct {
	Portfolio  Portfolio        `json:"portfolio"`
	Metrics    RiskMetrics      `json:"metrics"`
	Regulatory RegulatoryRatios `json:"regulatory"`
	Staging    StagingReport    `json:"staging"`
}
