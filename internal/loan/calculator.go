// Package loan computes annuity payments and amortization schedules.
package loan

import (
	"fmt"

	"portal-auth/internal/models"

	"github.com/shopspring/decimal"
)

const MaxMonths = 360

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// Request is a loan quote. MonthlyRate is a percentage, e.g. 2.5 for 2.5% per month.
type Request struct {
	Principal   decimal.Decimal `json:"principal"`
	Months      int             `json:"months"`
	MonthlyRate decimal.Decimal `json:"monthlyRate"`
}

type Installment struct {
	Month     int             `json:"month"`
	Payment   decimal.Decimal `json:"payment"`
	Principal decimal.Decimal `json:"principal"`
	Interest  decimal.Decimal `json:"interest"`
	Balance   decimal.Decimal `json:"balance"`
}

type Quote struct {
	MonthlyPayment decimal.Decimal `json:"monthlyPayment"`
	TotalPayment   decimal.Decimal `json:"totalPayment"`
	TotalInterest  decimal.Decimal `json:"totalInterest"`
	Schedule       []Installment   `json:"schedule"`
}

func (r Request) Validate() error {
	switch {
	case !r.Principal.IsPositive():
		return fmt.Errorf("%w: principal must be positive", models.ErrValidation)
	case r.Months < 1 || r.Months > MaxMonths:
		return fmt.Errorf("%w: months must be between 1 and %d", models.ErrValidation, MaxMonths)
	case r.MonthlyRate.IsNegative() || r.MonthlyRate.GreaterThan(hundred):
		return fmt.Errorf("%w: monthly rate must be between 0 and 100", models.ErrValidation)
	}
	return nil
}

// Calculate returns the fixed monthly payment and the full schedule. Amounts are
// rounded to cents for display only; the running balance keeps full precision
// and the last installment settles it to exactly zero.
func Calculate(req Request) (Quote, error) {
	if err := req.Validate(); err != nil {
		return Quote{}, err
	}

	n := decimal.NewFromInt(int64(req.Months))
	r := req.MonthlyRate.Div(hundred)

	var payment decimal.Decimal
	if r.IsZero() {
		payment = req.Principal.Div(n)
	} else {
		growth := one.Add(r).Pow(n)
		payment = req.Principal.Mul(r).Mul(growth).Div(growth.Sub(one))
	}

	schedule := make([]Installment, 0, req.Months)
	balance := req.Principal
	total := decimal.Zero
	for month := 1; month <= req.Months; month++ {
		interest := balance.Mul(r)
		principal := payment.Sub(interest)
		due := payment
		if month == req.Months {
			principal = balance
			due = balance.Add(interest)
		}
		balance = decimal.Max(balance.Sub(principal), decimal.Zero)
		if month == req.Months {
			balance = decimal.Zero
		}
		total = total.Add(due)

		schedule = append(schedule, Installment{
			Month:     month,
			Payment:   due.Round(2),
			Principal: principal.Round(2),
			Interest:  interest.Round(2),
			Balance:   balance.Round(2),
		})
	}

	return Quote{
		MonthlyPayment: payment.Round(2),
		TotalPayment:   total.Round(2),
		TotalInterest:  total.Sub(req.Principal).Round(2),
		Schedule:       schedule,
	}, nil
}
