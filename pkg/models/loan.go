package models

import (
	"time"
)

// Rating is a borrower credit rating on the ordinal scale AAA..D.
// Strings outside the scale are carried through and fall back to defaults.
type Rating string

const (
	RatingAAA Rating = "AAA"
	RatingAA  Rating = "AA"
	RatingA   Rating = "A"
	RatingBBB Rating = "BBB"
	RatingBB  Rating = "BB"
	RatingB   Rating = "B"
	RatingCCC Rating = "CCC"
	RatingD   Rating = "D"
)

// Ratings lists the known scale from best to worst
var Ratings = []Rating{RatingAAA, RatingAA, RatingA, RatingBBB, RatingBB, RatingB, RatingCCC, RatingD}

// Known reports whether r is on the rating scale
func (r Rating) Known() bool {
	for _, known := range Ratings {
		if r == known {
			return true
		}
	}
	return false
}

// LoanStatus is the performance status of a loan
type LoanStatus string

const (
	StatusPerforming    LoanStatus = "performing"
	StatusNonPerforming LoanStatus = "non-performing"
	StatusDefault       LoanStatus = "default"
)

// IsNonPerforming reports whether the status counts towards NPL exposure
func (s LoanStatus) IsNonPerforming() bool {
	return s == StatusNonPerforming || s == StatusDefault
}

// Loan is a single credit exposure. PD, LGD, EAD and Provisions are optional
// on input (nil means not supplied) and always set after enrichment.
type Loan struct {
	ID                string     `json:"id" validate:"required"`
	Borrower          string     `json:"borrower"`
	Amount            float64    `json:"amount" validate:"gte=0"`
	InterestRate      float64    `json:"interestRate"`
	Duration          int        `json:"duration" validate:"gte=0"` // months
	StartDate         time.Time  `json:"startDate"`
	Sector            string     `json:"sector"`
	Rating            Rating     `json:"rating"`
	Collateral        float64    `json:"collateral" validate:"gte=0"`
	OutstandingAmount float64    `json:"outstandingAmount" validate:"gte=0"`
	Status            LoanStatus `json:"status" validate:"omitempty,oneof=performing non-performing default"`
	PD                *float64   `json:"pd,omitempty" validate:"omitempty,gte=0,lte=1"`
	LGD               *float64   `json:"lgd,omitempty" validate:"omitempty,gte=0,lte=1"`
	EAD               *float64   `json:"ead,omitempty" validate:"omitempty,gte=0"`
	Provisions        *float64   `json:"provisions,omitempty" validate:"omitempty,gte=0"`
}

// Clone returns a copy of the loan that shares no memory with the original
func (l Loan) Clone() Loan {
	c := l
	c.PD = cloneFloat(l.PD)
	c.LGD = cloneFloat(l.LGD)
	c.EAD = cloneFloat(l.EAD)
	c.Provisions = cloneFloat(l.Provisions)
	return c
}

// ProbabilityOfDefault returns the PD, or 0 when not set
func (l Loan) ProbabilityOfDefault() float64 { return valueOr(l.PD, 0) }

// LossGivenDefault returns the LGD, or 0 when not set
func (l Loan) LossGivenDefault() float64 { return valueOr(l.LGD, 0) }

// ExposureAtDefault returns the EAD, or the outstanding amount when not set
func (l Loan) ExposureAtDefault() float64 { return valueOr(l.EAD, l.OutstandingAmount) }

// ProvisionAmount returns the provisions, or 0 when not set
func (l Loan) ProvisionAmount() float64 { return valueOr(l.Provisions, 0) }

// Float returns a pointer to a copy of v
func Float(v float64) *float64 {
	return &v
}

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	return Float(*p)
}

func valueOr(p *float64, fallback float64) float64 {
	if p == nil {
		return fallback
	}
	return *p
}

// LoanBook is a named loan collection held by the service
type LoanBook struct {
	ID      string    `json:"id" validate:"required"`
	Name    string    `json:"name"`
	Loans   []Loan    `json:"loans" validate:"dive"`
	Created time.Time `json:"created"`
	Updated time.Time `json:"updated"`
}
