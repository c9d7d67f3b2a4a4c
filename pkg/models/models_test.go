package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzzdr/credit-risk-pipeline/pkg/utils/errors"
)

func TestLoanCloneDoesNotAlias(t *testing.T) {
	original := Loan{ID: "L-1", OutstandingAmount: 100, PD: Float(0.02)}
	clone := original.Clone()

	*clone.PD = 0.5

	assert.Equal(t, 0.02, *original.PD)
	assert.Nil(t, clone.LGD)
}

func TestLoanAccessorsFallBack(t *testing.T) {
	loan := Loan{OutstandingAmount: 250}

	assert.Equal(t, 0.0, loan.ProbabilityOfDefault())
	assert.Equal(t, 0.0, loan.LossGivenDefault())
	assert.Equal(t, 250.0, loan.ExposureAtDefault())
	assert.Equal(t, 0.0, loan.ProvisionAmount())
}

func TestStatusAndRating(t *testing.T) {
	assert.True(t, StatusDefault.IsNonPerforming())
	assert.True(t, StatusNonPerforming.IsNonPerforming())
	assert.False(t, StatusPerforming.IsNonPerforming())

	assert.True(t, RatingCCC.Known())
	assert.False(t, Rating("CC").Known())
}

func TestSectorImpactDefaultsToOne(t *testing.T) {
	s := StressScenario{Name: "x", SectorImpacts: map[string]float64{"retail": 1.3}}

	assert.Equal(t, 1.3, s.SectorImpact("retail"))
	assert.Equal(t, 1.0, s.SectorImpact("mining"))
}

func TestValidateLoanBook(t *testing.T) {
	tests := []struct {
		name    string
		book    LoanBook
		wantErr bool
	}{
		{
			name: "valid",
			book: LoanBook{ID: "lb", Loans: []Loan{{ID: "a", Amount: 10, OutstandingAmount: 5, Status: StatusPerforming, PD: Float(0.1)}}},
		},
		{
			name:    "pd above one",
			book:    LoanBook{ID: "lb", Loans: []Loan{{ID: "a", PD: Float(1.2)}}},
			wantErr: true,
		},
		{
			name:    "negative lgd",
			book:    LoanBook{ID: "lb", Loans: []Loan{{ID: "a", LGD: Float(-0.1)}}},
			wantErr: true,
		},
		{
			name:    "unknown status",
			book:    LoanBook{ID: "lb", Loans: []Loan{{ID: "a", Status: "restructured"}}},
			wantErr: true,
		},
		{
			name:    "duplicate ids",
			book:    LoanBook{ID: "lb", Loans: []Loan{{ID: "a"}, {ID: "a"}}},
			wantErr: true,
		},
		{
			name:    "missing book id",
			book:    LoanBook{Loans: []Loan{{ID: "a"}}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateLoanBook(tt.book)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateScenario(t *testing.T) {
	require.NoError(t, ValidateScenario(StressScenario{Name: "ok", PDMultiplier: 2, LGDMultiplier: 1, CollateralHaircut: 0.2}))
	assert.Error(t, ValidateScenario(StressScenario{Name: "bad haircut", PDMultiplier: 1, LGDMultiplier: 1, CollateralHaircut: 1.5}))
	assert.Error(t, ValidateScenario(StressScenario{PDMultiplier: 1, LGDMultiplier: 1}))
}

func TestPortfolioNPLExposureAndSummary(t *testing.T) {
	p := Portfolio{
		Loans: []Loan{
			{OutstandingAmount: 100, Status: StatusPerforming},
			{OutstandingAmount: 40, Status: StatusNonPerforming},
			{OutstandingAmount: 10, Status: StatusDefault},
		},
		TotalExposure: 150,
	}

	assert.Equal(t, 50.0, p.NPLExposure())
	assert.Equal(t, 3, p.Summary().LoanCount)
	assert.Equal(t, 150.0, p.Summary().TotalExposure)
}

func TestValidationErrorsAreInvalidArgument(t *testing.T) {
	err := ValidateLoans([]Loan{{ID: "a"}, {ID: "a"}})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidArgument))

	err = ValidateScenario(StressScenario{PDMultiplier: 1})
	assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidArgument))
	assert.Contains(t, err.Error(), "Name")
}
