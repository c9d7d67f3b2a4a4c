package risk

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/rzzdr/credit-risk-pipeline/pkg/models"
)

var (
	sampleSectors  = []string{"retail", "corporate", "real_estate", "manufacturing", "services", "construction"}
	sampleRatings  = []models.Rating{models.RatingAAA, models.RatingAA, models.RatingA, models.RatingBBB, models.RatingBB, models.RatingB, models.RatingCCC}
	sampleStatuses = []models.LoanStatus{
		models.StatusPerforming, models.StatusPerforming, models.StatusPerforming, models.StatusPerforming,
		models.StatusNonPerforming, models.StatusDefault,
	}
	sampleDurations = []int{12, 24, 36, 48, 60}
)

// GenerateSampleLoans builds a synthetic loan population for demos and tests.
// The same rng seed always yields the same loans. Risk fields are left unset.
func GenerateSampleLoans(rng *rand.Rand, count int) []models.Loan {
	if count < 0 {
		count = 0
	}

	loans := make([]models.Loan, count)
	for i := range loans {
		amount := math.Floor(rng.Float64()*5_000_000) + 100_000
		loans[i] = models.Loan{
			ID:                fmt.Sprintf("LOAN-%d", i+1),
			Borrower:          fmt.Sprintf("Company %d", i+1),
			Amount:            amount,
			InterestRate:      3 + rng.Float64()*5,
			Duration:          sampleDurations[rng.Intn(len(sampleDurations))],
			StartDate:         time.Date(2020+rng.Intn(4), time.Month(1+rng.Intn(12)), 1, 0, 0, 0, 0, time.UTC),
			Sector:            sampleSectors[rng.Intn(len(sampleSectors))],
			Rating:            sampleRatings[rng.Intn(len(sampleRatings))],
			Collateral:        amount * (0.2 + rng.Float64()*1.3),
			OutstandingAmount: amount * (0.3 + rng.Float64()*0.7),
			Status:            sampleStatuses[rng.Intn(len(sampleStatuses))],
		}
	}
	return loans
}
