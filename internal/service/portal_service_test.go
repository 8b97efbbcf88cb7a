package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"portal-auth/internal/customer"
	"portal-auth/internal/loan"
	"portal-auth/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeCustomers struct {
	CustomerAPI
	savedAddress customer.Address
	savedFinance customer.Finance
}

func (f *fakeCustomers) GetAddress(_ context.Context, id string) (*customer.Address, error) {
	return &customer.Address{CustomerID: id, Line: "Main St 1", CityID: 34, TownID: 1}, nil
}

func (f *fakeCustomers) SaveAddress(_ context.Context, a customer.Address) (*customer.Address, error) {
	f.savedAddress = a
	return &a, nil
}

func (f *fakeCustomers) SaveFinance(_ context.Context, fin customer.Finance) (*customer.Finance, error) {
	f.savedFinance = fin
	return &fin, nil
}

type consentFlag struct {
	granted bool
	err     error
}

func (c consentFlag) Granted(context.Context, string) (bool, error) { return c.granted, c.err }

func authedSession() *models.Session {
	return &models.Session{
		ID:         "sess-1",
		NationalID: testNationalID,
		Phone:      testNormalized,
		CustomerID: testCustomer,
		AuthToken:  &models.AuthToken{Value: "tok", ExpiresAt: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)},
	}
}

func TestDashboard(t *testing.T) {
	p := NewPortalService(&fakeCustomers{}, consentFlag{granted: true}, "", zap.NewNop())

	d := p.Dashboard(context.Background(), authedSession())
	assert.Equal(t, testCustomer, d.CustomerID)
	assert.Equal(t, "+90 532 *** ** 67", d.MaskedPhone)
	assert.True(t, d.ConsentGranted)
	assert.Equal(t, 2026, d.TokenExpiresAt.Year())
}

func TestDashboardFallsBackToSessionConsent(t *testing.T) {
	p := NewPortalService(&fakeCustomers{}, consentFlag{err: errors.New("scylla down")}, "", zap.NewNop())

	sess := authedSession()
	sess.ConsentGranted = true
	assert.True(t, p.Dashboard(context.Background(), sess).ConsentGranted)
}

func TestUpdateAddressBindsSessionCustomer(t *testing.T) {
	api := &fakeCustomers{}
	p := NewPortalService(api, consentFlag{}, "", zap.NewNop())

	_, err := p.UpdateAddress(context.Background(), authedSession(), customer.Address{
		CustomerID: "someone-else",
		Line:       "  Ataturk Cd. No:5 & 7 ",
		CityID:     6,
		TownID:     2,
	})
	require.NoError(t, err)
	assert.Equal(t, testCustomer, api.savedAddress.CustomerID)
	assert.Equal(t, "Ataturk Cd. No:5 &amp; 7", api.savedAddress.Line)
}

func TestUpdateRejectsMarkupAndNegativeSalary(t *testing.T) {
	p := NewPortalService(&fakeCustomers{}, consentFlag{}, "", zap.NewNop())

	_, err := p.UpdateAddress(context.Background(), authedSession(), customer.Address{Line: "<script>x</script>"})
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = p.UpdateFinance(context.Background(), authedSession(), customer.Finance{SalaryAmount: decimal.NewFromInt(-1)})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestQuoteLoan(t *testing.T) {
	p := NewPortalService(&fakeCustomers{}, consentFlag{}, "", zap.NewNop())

	q, err := p.QuoteLoan(loan.Request{
		Principal:   decimal.NewFromInt(10000),
		Months:      12,
		MonthlyRate: decimal.NewFromInt(1),
	})
	require.NoError(t, err)
	assert.Equal(t, "888.49", q.MonthlyPayment.StringFixed(2))
	assert.Len(t, q.Schedule, 12)
}
