package store

import (
	"context"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/rzzdr/credit-risk-pipeline/pkg/models"
	"github.com/rzzdr/credit-risk-pipeline/pkg/utils/errors"
	"github.com/rzzdr/credit-risk-pipeline/pkg/utils/logger"
)

// stressRunRecord is the stress_test_results row
type stressRunRecord struct {
	ID                         string `gorm:"primaryKey;size:36"`
	PortfolioID                string `gorm:"index:idx_stress_portfolio_created,priority:1;not null"`
	ScenarioName               string `gorm:"not null"`
	PDMultiplier               float64
	LGDMultiplier              float64
	CollateralHaircut          float64
	BaseExpectedLoss           float64
	StressedExpectedLoss       float64
	ExpectedLossIncrease       float64
	CapitalRequirementIncrease float64
	NPLRatioIncrease           float64
	ProvisioningGap            float64
	CreatedAt                  time.Time `gorm:"index:idx_stress_portfolio_created,priority:2"`
}

func (stressRunRecord) TableName() string { return "stress_test_results" }

// SQLStressRunStore keeps stress campaign history in a SQL database through gorm
type SQLStressRunStore struct {
	db  *gorm.DB
	log *logger.Logger
}

// OpenSQLiteStressRunStore opens (or creates) a sqlite database and migrates the history table
func OpenSQLiteStressRunStore(dsn string) (*SQLStressRunStore, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, "open stress history database")
	}
	return NewSQLStressRunStore(db)
}

// NewSQLStressRunStore wraps an open gorm handle and migrates the history table
func NewSQLStressRunStore(db *gorm.DB) (*SQLStressRunStore, error) {
	if err := db.AutoMigrate(&stressRunRecord{}); err != nil {
		return nil, errors.Internal("migrate stress history", err)
	}
	return &SQLStressRunStore{
		db:  db,
		log: logger.GetLogger("store.stressrun"),
	}, nil
}

// SaveRuns inserts every run in a single transaction
func (s *SQLStressRunStore) SaveRuns(ctx context.Context, runs []models.StressRun) error {
	if len(runs) == 0 {
		return nil
	}

	records := make([]stressRunRecord, len(runs))
	for i, r := range runs {
		if r.ID == "" || r.PortfolioID == "" {
			return errors.InvalidArgument("stress run requires an ID and a portfolio ID")
		}
		records[i] = toRecord(r)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&records).Error
	})
	if err != nil {
		return errors.Internal("save stress runs", err)
	}

	s.log.Debugf("Stored %d stress runs for %s", len(runs), runs[0].PortfolioID)
	return nil
}

// ListRuns returns the newest runs of a portfolio first
func (s *SQLStressRunStore) ListRuns(ctx context.Context, portfolioID string, limit int) ([]models.StressRun, error) {
	var records []stressRunRecord
	q := s.db.WithContext(ctx).
		Where("portfolio_id = ?", portfolioID).
		Order("created_at DESC").
		Order("scenario_name ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&records).Error; err != nil {
		return nil, errors.Internal("list stress runs", err)
	}

	runs := make([]models.StressRun, len(records))
	for i, rec := range records {
		runs[i] = fromRecord(rec)
	}
	return runs, nil
}

// Close releases the underlying connection pool
func (s *SQLStressRunStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toRecord(r models.StressRun) stressRunRecord {
	return stressRunRecord{
		ID:                         r.ID,
		PortfolioID:                r.PortfolioID,
		ScenarioName:               r.ScenarioName,
		PDMultiplier:               r.PDMultiplier,
		LGDMultiplier:              r.LGDMultiplier,
		CollateralHaircut:          r.CollateralHaircut,
		BaseExpectedLoss:           r.BaseExpectedLoss,
		StressedExpectedLoss:       r.StressedExpectedLoss,
		ExpectedLossIncrease:       r.ExpectedLossIncrease,
		CapitalRequirementIncrease: r.CapitalRequirementIncrease,
		NPLRatioIncrease:           r.NPLRatioIncrease,
		ProvisioningGap:            r.ProvisioningGap,
		CreatedAt:                  r.CreatedAt.UTC(),
	}
}

func fromRecord(rec stressRunRecord) models.StressRun {
	return models.StressRun{
		ID:                         rec.ID,
		PortfolioID:                rec.PortfolioID,
		ScenarioName:               rec.ScenarioName,
		PDMultiplier:               rec.PDMultiplier,
		LGDMultiplier:              rec.LGDMultiplier,
		CollateralHaircut:          rec.CollateralHaircut,
		BaseExpectedLoss:           rec.BaseExpectedLoss,
		StressedExpectedLoss:       rec.StressedExpectedLoss,
		ExpectedLossIncrease:       rec.ExpectedLossIncrease,
		CapitalRequirementIncrease: rec.CapitalRequirementIncrease,
		NPLRatioIncrease:           rec.NPLRatioIncrease,
		ProvisioningGap:            rec.ProvisioningGap,
		CreatedAt:                  rec.CreatedAt,
	}
}
