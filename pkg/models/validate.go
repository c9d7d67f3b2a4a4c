package models

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/rzzdr/credit-risk-pipeline/pkg/utils/errors"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateLoanBook checks a loan book at ingestion. PD and LGD must lie in [0,1],
// amounts must be non-negative and statuses must be known.
func ValidateLoanBook(book LoanBook) error {
	if err := validate.Struct(book); err != nil {
		return describe(err)
	}
	seen := make(map[string]struct{}, len(book.Loans))
	for _, loan := range book.Loans {
		if _, dup := seen[loan.ID]; dup {
			return errors.InvalidArgumentf("duplicate loan id %q", loan.ID)
		}
		seen[loan.ID] = struct{}{}
	}
	return nil
}

// ValidateLoans checks a bare loan collection with the same rules as ValidateLoanBook
func ValidateLoans(loans []Loan) error {
	return ValidateLoanBook(LoanBook{ID: "inline", Loans: loans})
}

// ValidateScenario checks a caller-defined stress scenario
func ValidateScenario(s StressScenario) error {
	if err := validate.Struct(s); err != nil {
		return describe(err)
	}
	return nil
}

func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errors.Wrap(err, "validation")
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return errors.InvalidArgumentf("validation: %s", strings.Join(msgs, "; "))
}
