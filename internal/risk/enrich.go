package risk

import (
	"github.com/rzzdr/credit-risk-pipeline/pkg/models"
)

// EnrichLoan returns a copy of loan with PD, LGD, EAD and provisions populated.
// Values already present on the loan are kept as supplied, including values
// outside [0,1]; only the stress path clamps.
func EnrichLoan(loan models.Loan) models.Loan {
	enriched := loan.Clone()

	if enriched.PD == nil {
		enriched.PD = models.Float(DefaultPD(loan.Rating))
	}
	if enriched.LGD == nil {
		enriched.LGD = models.Float(LGDForCollateral(loan.Collateral, loan.Amount))
	}
	if enriched.EAD == nil {
		enriched.EAD = models.Float(loan.OutstandingAmount)
	}
	if enriched.Provisions == nil {
		enriched.Provisions = models.Float(*enriched.PD * *enriched.LGD * *enriched.EAD)
	}

	return enriched
}

// EnrichLoans enriches every loan independently into a new slice
func EnrichLoans(loans []models.Loan) []models.Loan {
	enriched := make([]models.Loan, len(loans))
	for i, loan := range loans {
		enriched[i] = EnrichLoan(loan)
	}
	return enriched
}
