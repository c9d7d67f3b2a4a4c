package risk

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/rzzdr/credit-risk-pipeline/pkg/models"
	"github.com/rzzdr/credit-risk-pipeline/pkg/utils/errors"
	"github.com/rzzdr/credit-risk-pipeline/pkg/utils/logger"
)

// Calculation types reported to the metrics recorder
const (
	CalcAnalysis   = "analysis"
	CalcMetrics    = "metrics"
	CalcRegulatory = "regulatory"
	CalcStaging    = "staging"
	CalcStress     = "stress"
	CalcSnapshot   = "snapshot"
)

// CalculatorConfig contains configuration for the risk calculator
type CalculatorConfig struct {
	StressWorkers       int
	DefaultHistoryLimit int
}

// LoanBookStore defines an interface for storing and retrieving loan books
type LoanBookStore interface {
	GetLoanBook(id string) (*models.LoanBook, error)
	ListLoanBooks() ([]*models.LoanBook, error)
	SaveLoanBook(book *models.LoanBook) error
	DeleteLoanBook(id string) error
}

// StressRunStore persists the outcome of stress campaigns
type StressRunStore interface {
	SaveRuns(ctx context.Context, runs []models.StressRun) error
	ListRuns(ctx context.Context, portfolioID string, limit int) ([]models.StressRun, error)
}

// SnapshotPublisher receives a snapshot after every analysis
type SnapshotPublisher interface {
	PublishSnapshot(ctx context.Context, snapshot models.RiskSnapshot) error
}

// MetricsRecorder records calculation telemetry
type MetricsRecorder interface {
	RecordRiskCalculation(portfolioID, calculationType string, duration time.Duration)
	RecordPortfolioSummary(portfolioID string, summary models.PortfolioSummary)
}

// Calculator runs the credit risk engine against stored loan books
type Calculator struct {
	config     CalculatorConfig
	books      LoanBookStore
	runs       StressRunStore
	recorder   MetricsRecorder
	publishers []SnapshotPublisher
	now        func() time.Time
	log        *logger.Logger
}

// NewCalculator creates a new risk calculator. runs and recorder may be nil.
func NewCalculator(config CalculatorConfig, books LoanBookStore, runs StressRunStore, recorder MetricsRecorder, publishers ...SnapshotPublisher) *Calculator {
	if config.StressWorkers <= 0 {
		config.StressWorkers = 4
	}
	if config.DefaultHistoryLimit <= 0 {
		config.DefaultHistoryLimit = 50
	}

	return &Calculator{
		config:     config,
		books:      books,
		runs:       runs,
		recorder:   recorder,
		publishers: publishers,
		now:        time.Now,
		log:        logger.GetLogger("risk.calculator"),
	}
}

// SetClock replaces the reference clock used for maturity profiles and timestamps
func (c *Calculator) SetClock(now func() time.Time) {
	c.now = now
}

// GetLoanBook retrieves a loan book by ID
func (c *Calculator) GetLoanBook(ctx context.Context, id string) (*models.LoanBook, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	book, err := c.books.GetLoanBook(id)
	if err != nil {
		c.log.Debugf("Failed to get loan book %s: %v", id, err)
		return nil, err
	}
	return book, nil
}

// AnalyzePortfolio enriches and aggregates a stored loan book
func (c *Calculator) AnalyzePortfolio(ctx context.Context, id string) (models.Portfolio, error) {
	defer c.observe(id, CalcAnalysis, time.Now())

	book, err := c.GetLoanBook(ctx, id)
	if err != nil {
		return models.Portfolio{}, err
	}
	return AnalyzePortfolio(book.Loans), nil
}

// CalculateRiskMetrics computes the risk metrics of a stored loan book as of now
func (c *Calculator) CalculateRiskMetrics(ctx context.Context, id string) (models.RiskMetrics, error) {
	defer c.observe(id, CalcMetrics, time.Now())

	portfolio, err := c.AnalyzePortfolio(ctx, id)
	if err != nil {
		return models.RiskMetrics{}, err
	}
	return CalculateRiskMetrics(portfolio, c.now()), nil
}

// CalculateRegulatoryRatios computes the regulatory ratios of a stored loan book
func (c *Calculator) CalculateRegulatoryRatios(ctx context.Context, id string) (models.RegulatoryRatios, error) {
	defer c.observe(id, CalcRegulatory, time.Now())

	portfolio, err := c.AnalyzePortfolio(ctx, id)
	if err != nil {
		return models.RegulatoryRatios{}, err
	}
	return CalculateRegulatoryRatios(portfolio), nil
}

// StageExposures produces the IFRS 9 staging of a stored loan book
func (c *Calculator) StageExposures(ctx context.Context, id string) (models.StagingReport, error) {
	defer c.observe(id, CalcStaging, time.Now())

	portfolio, err := c.AnalyzePortfolio(ctx, id)
	if err != nil {
		return models.StagingReport{}, err
	}
	return StagePortfolio(portfolio), nil
}

// Report computes every view of an ad-hoc loan collection without storing it
func (c *Calculator) Report(loans []models.Loan) models.PortfolioReport {
	portfolio := AnalyzePortfolio(loans)
	return models.PortfolioReport{
		Portfolio:  portfolio,
		Metrics:    CalculateRiskMetrics(portfolio, c.now()),
		Regulatory: CalculateRegulatoryRatios(portfolio),
		Staging:    StagePortfolio(portfolio),
	}
}

// RunStressTest runs a stress campaign on a stored loan book and records every run
func (c *Calculator) RunStressTest(ctx context.Context, id string, scenarios []models.StressScenario) (*models.StressCampaign, error) {
	defer c.observe(id, CalcStress, time.Now())
	log := c.log.WithPortfolio(id)

	if len(scenarios) == 0 {
		return nil, errors.InvalidArgument("at least one scenario is required")
	}
	for _, s := range scenarios {
		if err := models.ValidateScenario(s); err != nil {
			return nil, errors.InvalidArgumentf("scenario %q: %v", s.Name, err)
		}
	}

	base, err := c.AnalyzePortfolio(ctx, id)
	if err != nil {
		return nil, err
	}

	log.Infof("Running %d stress scenarios over %d loans", len(scenarios), len(base.Loans))
	results, err := RunScenarios(ctx, base, scenarios, c.config.StressWorkers)
	if err != nil {
		return nil, errors.Wrap(err, "stress campaign aborted")
	}

	campaign := &models.StressCampaign{
		PortfolioID: id,
		Timestamp:   c.now(),
		Results:     results,
		Comparison:  CompareScenarios(results),
	}

	if c.runs != nil {
		if err := c.runs.SaveRuns(ctx, c.toRuns(campaign)); err != nil {
			// history is best effort; the campaign result stands
			log.Errorf("Failed to persist stress runs: %v", err)
		}
	}

	log.Infof("Stress campaign done, worst scenario %q (+%.2f expected loss)",
		campaign.Comparison.WorstScenario, campaign.Comparison.MaxExpectedLossIncrease)
	return campaign, nil
}

// StressHistory lists the most recent stress runs of a loan book
func (c *Calculator) StressHistory(ctx context.Context, id string, limit int) ([]models.StressRun, error) {
	if c.runs == nil {
		return nil, errors.Unavailable("stress history is not configured")
	}
	if limit <= 0 {
		limit = c.config.DefaultHistoryLimit
	}
	runs, err := c.runs.ListRuns(ctx, id, limit)
	if err != nil {
		return nil, errors.Internal("list stress runs", err)
	}
	return runs, nil
}

// Snapshot computes the headline figures of a loan book and pushes them to every publisher
func (c *Calculator) Snapshot(ctx context.Context, id string) (models.RiskSnapshot, error) {
	defer c.observe(id, CalcSnapshot, time.Now())

	portfolio, err := c.AnalyzePortfolio(ctx, id)
	if err != nil {
		return models.RiskSnapshot{}, err
	}

	now := c.now()
	snapshot := models.RiskSnapshot{
		PortfolioID: id,
		Timestamp:   now,
		Portfolio:   portfolio.Summary(),
		Metrics:     CalculateRiskMetrics(portfolio, now),
		Regulatory:  CalculateRegulatoryRatios(portfolio),
	}

	if c.recorder != nil {
		c.recorder.RecordPortfolioSummary(id, snapshot.Portfolio)
	}
	for _, p := range c.publishers {
		if err := p.PublishSnapshot(ctx, snapshot); err != nil {
			c.log.WithPortfolio(id).Warnf("Failed to publish risk snapshot: %v", err)
		}
	}

	return snapshot, nil
}

// RefreshAll snapshots every stored loan book and returns how many succeeded
func (c *Calculator) RefreshAll(ctx context.Context) (int, error) {
	books, err := c.books.ListLoanBooks()
	if err != nil {
		return 0, errors.Wrap(err, "list loan books")
	}

	refreshed := 0
	for _, book := range books {
		if err := ctx.Err(); err != nil {
			return refreshed, err
		}
		if _, err := c.Snapshot(ctx, book.ID); err != nil {
			c.log.Errorf("Failed to refresh loan book %s: %v", book.ID, err)
			continue
		}
		refreshed++
	}
	return refreshed, nil
}

func (c *Calculator) toRuns(campaign *models.StressCampaign) []models.StressRun {
	runs := make([]models.StressRun, len(campaign.Results))
	for i, r := range campaign.Results {
		runs[i] = models.StressRun{
			ID:                         uuid.NewString(),
			PortfolioID:                campaign.PortfolioID,
			ScenarioName:               r.Scenario.Name,
			PDMultiplier:               r.Scenario.PDMultiplier,
			LGDMultiplier:              r.Scenario.LGDMultiplier,
			CollateralHaircut:          r.Scenario.CollateralHaircut,
			BaseExpectedLoss:           r.BaseCase.ExpectedLoss,
			StressedExpectedLoss:       r.StressedCase.ExpectedLoss,
			ExpectedLossIncrease:       r.Impact.ExpectedLossIncrease,
			CapitalRequirementIncrease: r.Impact.CapitalRequirementIncrease,
			NPLRatioIncrease:           r.Impact.NPLRatioIncrease,
			ProvisioningGap:            r.Impact.ProvisioningGap,
			CreatedAt:                  campaign.Timestamp,
		}
	}
	return runs
}

func (c *Calculator) observe(portfolioID, calculationType string, start time.Time) {
	if c.recorder != nil {
		c.recorder.RecordRiskCalculation(portfolioID, calculationType, time.Since(start))
	}
}
