package loan

import (
	"testing"

	"portal-auth/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestAnnuityPayment(t *testing.T) {
	q, err := Calculate(Request{Principal: dec("10000"), Months: 12, MonthlyRate: dec("1")})
	require.NoError(t, err)

	// 10000 * 0.01 * 1.01^12 / (1.01^12 - 1)
	assert.Equal(t, "888.49", q.MonthlyPayment.StringFixed(2))
	require.Len(t, q.Schedule, 12)
	assert.True(t, q.Schedule[11].Balance.IsZero())
	assert.Equal(t, "100.00", q.Schedule[0].Interest.StringFixed(2))
	assert.True(t, q.TotalInterest.IsPositive())
	assert.Equal(t, q.TotalPayment.Sub(dec("10000")).StringFixed(2), q.TotalInterest.StringFixed(2))
}

func TestZeroRateSplitsEvenly(t *testing.T) {
	q, err := Calculate(Request{Principal: dec("1200"), Months: 12, MonthlyRate: decimal.Zero})
	require.NoError(t, err)

	assert.Equal(t, "100.00", q.MonthlyPayment.StringFixed(2))
	assert.True(t, q.TotalInterest.IsZero())
	for _, row := range q.Schedule {
		assert.True(t, row.Interest.IsZero())
	}
	assert.True(t, q.Schedule[11].Balance.IsZero())
}

func TestPrincipalPortionsSumToPrincipal(t *testing.T) {
	q, err := Calculate(Request{Principal: dec("250000"), Months: 120, MonthlyRate: dec("2.79")})
	require.NoError(t, err)

	sum := decimal.Zero
	for _, row := range q.Schedule {
		sum = sum.Add(row.Principal)
	}
	assert.True(t, sum.Sub(dec("250000")).Abs().LessThan(dec("1")), "sum=%s", sum)
}

func TestValidation(t *testing.T) {
	cases := []Request{
		{Principal: decimal.Zero, Months: 12, MonthlyRate: dec("1")},
		{Principal: dec("1000"), Months: 0, MonthlyRate: dec("1")},
		{Principal: dec("1000"), Months: 361, MonthlyRate: dec("1")},
		{Principal: dec("1000"), Months: 12, MonthlyRate: dec("-1")},
		{Principal: dec("1000"), Months: 12, MonthlyRate: dec("101")},
	}
	for _, req := range cases {
		_, err := Calculate(req)
		assert.ErrorIs(t, err, models.ErrValidation)
	}
}
