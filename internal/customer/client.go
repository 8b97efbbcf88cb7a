// Package customer forwards profile reads and updates to the customer REST API.
package customer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"portal-auth/internal/client"
	"portal-auth/internal/config"
	"portal-auth/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Address is the customer's residential address.
type Address struct {
	CustomerID string `json:"customerId"`
	Line       string `json:"address" validate:"required,max=500"`
	CityID     int    `json:"cityId" validate:"required,gt=0"`
	TownID     int    `json:"townId" validate:"required,gt=0"`
	EmployeeID *int   `json:"employeeId,omitempty"`
	Source     int    `json:"source"`
}

// Job describes current employment.
type Job struct {
	CustomerID      string `json:"customerId"`
	WorkType        int    `json:"customerWork" validate:"gte=0"`
	JobGroupID      int    `json:"jobGroupId" validate:"gte=0"`
	WorkingYears    int    `json:"workingYears" validate:"gte=0,lte=70"`
	WorkingMonths   int    `json:"workingMonth" validate:"gte=0,lte=11"`
	CompanyTitle    string `json:"titleCompany" validate:"max=200"`
	CompanyPosition string `json:"companyPosition" validate:"max=200"`
}

type Spouse struct {
	CustomerID   string          `json:"customerId"`
	Married      bool            `json:"maritalStatus"`
	Working      bool            `json:"workWife"`
	SalaryAmount decimal.Decimal `json:"wifeSalaryAmount"`
}

type Finance struct {
	CustomerID   string          `json:"customerId"`
	WorkSector   int             `json:"workSector" validate:"gte=0"`
	SalaryBank   string          `json:"salaryBank" validate:"max=100"`
	SalaryAmount decimal.Decimal `json:"salaryAmount"`
	OwnsCar      bool            `json:"carStatus"`
	OwnsHouse    bool            `json:"houseStatus"`
}

// sourceSelfService marks records entered by the customer through the portal.
const sourceSelfService = 2

type envelope[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Value   *T     `json:"value"`
}

// Endpoint paths, also used as keys into CustomerAPIConfig.Codes.
const (
	pathAddressGet  = "addressfull"
	pathAddressSave = "address"
	pathJobGet      = "job-infonew"
	pathJobSave     = "job-profile"
	pathSpouse      = "wife-info"
	pathFinance     = "finance-assets"
)

type Client struct {
	http   *client.JSONClient
	codes  map[string]string
	logger *zap.Logger
}

func NewClient(cfg config.CustomerAPIConfig, logger *zap.Logger) *Client {
	return &Client{
		http:   client.NewJSONClient(cfg.BaseURL, cfg.Timeout, nil),
		codes:  cfg.Codes,
		logger: logger,
	}
}

func (c *Client) GetAddress(ctx context.Context, customerID string) (*Address, error) {
	return get[Address](ctx, c, pathAddressGet, customerID)
}

func (c *Client) SaveAddress(ctx context.Context, a Address) (*Address, error) {
	a.Source = sourceSelfService
	return save(ctx, c, pathAddressSave, &a)
}

func (c *Client) GetJob(ctx context.Context, customerID string) (*Job, error) {
	return get[Job](ctx, c, pathJobGet, customerID)
}

func (c *Client) SaveJob(ctx context.Context, j Job) (*Job, error) {
	return save(ctx, c, pathJobSave, &j)
}

func (c *Client) GetSpouse(ctx context.Context, customerID string) (*Spouse, error) {
	return get[Spouse](ctx, c, pathSpouse, customerID)
}

func (c *Client) SaveSpouse(ctx context.Context, s Spouse) (*Spouse, error) {
	if !s.Married || !s.Working {
		s.SalaryAmount = decimal.Zero
	}
	return save(ctx, c, pathSpouse, &s)
}

func (c *Client) GetFinance(ctx context.Context, customerID string) (*Finance, error) {
	return get[Finance](ctx, c, pathFinance, customerID)
}

func (c *Client) SaveFinance(ctx context.Context, f Finance) (*Finance, error) {
	return save(ctx, c, pathFinance, &f)
}

func (c *Client) url(path, customerID string) string {
	u := "/" + path
	if customerID != "" {
		u += "/" + url.PathEscape(customerID)
	}
	if code := c.codes[path]; code != "" {
		u += "?" + url.Values{"code": {code}}.Encode()
	}
	return u
}

func get[T any](ctx context.Context, c *Client, path, customerID string) (*T, error) {
	if customerID == "" {
		return nil, fmt.Errorf("%w: customer id is required", models.ErrValidation)
	}
	var env envelope[T]
	status, err := c.http.DoJSON(ctx, http.MethodGet, c.url(path, customerID), nil, &env)
	if err != nil {
		return nil, c.classify(path, status, err)
	}
	if !env.Success || env.Value == nil {
		return nil, fmt.Errorf("%w: %s: %s", models.ErrNotFound, path, env.Message)
	}
	return env.Value, nil
}

func save[T any](ctx context.Context, c *Client, path string, body *T) (*T, error) {
	var env envelope[T]
	status, err := c.http.DoJSON(ctx, http.MethodPost, c.url(path, ""), body, &env)
	if err != nil {
		return nil, c.classify(path, status, err)
	}
	if !env.Success {
		return nil, fmt.Errorf("%w: %s rejected: %s", models.ErrUpstream, path, env.Message)
	}
	if env.Value == nil {
		// some endpoints acknowledge without echoing the record
		return body, nil
	}
	return env.Value, nil
}

func (c *Client) classify(path string, status int, err error) error {
	c.logger.Warn("Customer API call failed", zap.String("endpoint", path), zap.Int("status", status), zap.Error(err))
	if status == http.StatusNotFound && errors.Is(err, client.ErrUnexpectedStatus) {
		return fmt.Errorf("%w: %s", models.ErrNotFound, path)
	}
	return fmt.Errorf("%w: %s: %v", models.ErrUpstream, path, err)
}
