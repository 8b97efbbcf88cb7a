package service

import (
	"context"
	"fmt"
	"time"

	"portal-auth/internal/customer"
	"portal-auth/internal/loan"
	"portal-auth/internal/models"
	"portal-auth/internal/util"

	"go.uber.org/zap"
)

// CustomerAPI is the subset of the customer REST client the portal needs.
type CustomerAPI interface {
	GetAddress(ctx context.Context, customerID string) (*customer.Address, error)
	SaveAddress(ctx context.Context, a customer.Address) (*customer.Address, error)
	GetJob(ctx context.Context, customerID string) (*customer.Job, error)
	SaveJob(ctx context.Context, j customer.Job) (*customer.Job, error)
	GetSpouse(ctx context.Context, customerID string) (*customer.Spouse, error)
	SaveSpouse(ctx context.Context, s customer.Spouse) (*customer.Spouse, error)
	GetFinance(ctx context.Context, customerID string) (*customer.Finance, error)
	SaveFinance(ctx context.Context, f customer.Finance) (*customer.Finance, error)
}

type ConsentChecker interface {
	Granted(ctx context.Context, customerID string) (bool, error)
}

type Dashboard struct {
	CustomerID     string    `json:"customer_id"`
	MaskedPhone    string    `json:"masked_phone"`
	ConsentGranted bool      `json:"consent_granted"`
	TokenExpiresAt time.Time `json:"token_expires_at"`
}

// PortalService serves the authenticated portal pages. The customer ID always
// comes from the session, never from the request.
type PortalService struct {
	customers CustomerAPI
	consent   ConsentChecker
	country   string
	logger    *zap.Logger
}

func NewPortalService(customers CustomerAPI, consent ConsentChecker, country string, logger *zap.Logger) *PortalService {
	if country == "" {
		country = util.DefaultCountryCode
	}
	return &PortalService{customers: customers, consent: consent, country: country, logger: logger}
}

func (p *PortalService) Dashboard(ctx context.Context, sess *models.Session) Dashboard {
	d := Dashboard{
		CustomerID:     sess.CustomerID,
		MaskedPhone:    util.MaskPhone(sess.Phone, p.country),
		ConsentGranted: sess.ConsentGranted,
	}
	if sess.AuthToken != nil {
		d.TokenExpiresAt = sess.AuthToken.ExpiresAt
	}
	if granted, err := p.consent.Granted(ctx, sess.CustomerID); err != nil {
		p.logger.Warn("Consent lookup failed, using session flag", util.SessionID(sess.ID), zap.Error(err))
	} else {
		d.ConsentGranted = granted
	}
	return d
}

func (p *PortalService) Address(ctx context.Context, sess *models.Session) (*customer.Address, error) {
	return p.customers.GetAddress(ctx, sess.CustomerID)
}

func (p *PortalService) UpdateAddress(ctx context.Context, sess *models.Session, a customer.Address) (*customer.Address, error) {
	line, err := cleanText(a.Line)
	if err != nil {
		return nil, err
	}
	a.Line = line
	a.CustomerID = sess.CustomerID
	return p.customers.SaveAddress(ctx, a)
}

func (p *PortalService) Job(ctx context.Context, sess *models.Session) (*customer.Job, error) {
	return p.customers.GetJob(ctx, sess.CustomerID)
}

func (p *PortalService) UpdateJob(ctx context.Context, sess *models.Session, j customer.Job) (*customer.Job, error) {
	var err error
	if j.CompanyTitle, err = cleanText(j.CompanyTitle); err != nil {
		return nil, err
	}
	if j.CompanyPosition, err = cleanText(j.CompanyPosition); err != nil {
		return nil, err
	}
	j.CustomerID = sess.CustomerID
	return p.customers.SaveJob(ctx, j)
}

func (p *PortalService) Spouse(ctx context.Context, sess *models.Session) (*customer.Spouse, error) {
	return p.customers.GetSpouse(ctx, sess.CustomerID)
}

func (p *PortalService) UpdateSpouse(ctx context.Context, sess *models.Session, s customer.Spouse) (*customer.Spouse, error) {
	if s.SalaryAmount.IsNegative() {
		return nil, fmt.Errorf("%w: salary must not be negative", models.ErrValidation)
	}
	s.CustomerID = sess.CustomerID
	return p.customers.SaveSpouse(ctx, s)
}

func (p *PortalService) Finance(ctx context.Context, sess *models.Session) (*customer.Finance, error) {
	return p.customers.GetFinance(ctx, sess.CustomerID)
}

func (p *PortalService) UpdateFinance(ctx context.Context, sess *models.Session, f customer.Finance) (*customer.Finance, error) {
	if f.SalaryAmount.IsNegative() {
		return nil, fmt.Errorf("%w: salary must not be negative", models.ErrValidation)
	}
	bank, err := cleanText(f.SalaryBank)
	if err != nil {
		return nil, err
	}
	f.SalaryBank = bank
	f.CustomerID = sess.CustomerID
	return p.customers.SaveFinance(ctx, f)
}

// QuoteLoan needs no session; the calculator is public.
func (p *PortalService) QuoteLoan(req loan.Request) (loan.Quote, error) {
	return loan.Calculate(req)
}

func cleanText(s string) (string, error) {
	if util.ContainsSuspicious(s) {
		return "", fmt.Errorf("%w: text contains markup", models.ErrValidation)
	}
	return util.SanitizeInput(s), nil
}
