// Package gateway implements the storekit platform against a remote commerce gateway:
// a REST API for store operations, a receipt cache addressed by URL and a NATS subject
// carrying transaction updates.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/viant/afs"

	"github.com/mihaimyh/gostorekit/pkg/storekit"
)

// Purchase result values returned by the gateway.
const (
	resultSuccess       = "success"
	resultUserCancelled = "userCancelled"
	resultPending       = "pending"
)

// Config holds gateway client configuration.
type Config struct {
	// BaseURL is the gateway root, e.g. https://store.example.com.
	BaseURL string

	// APIKey is sent as a bearer token on every request.
	APIKey string

	// Timeout bounds every call except Purchase. Default: 10s.
	Timeout time.Duration

	// PurchaseTimeout bounds a purchase submission, which waits on the user. Default: 5m.
	PurchaseTimeout time.Duration

	// ReceiptURL is where the cached receipt lives (any afs URL: file://, mem://, s3://, gs://).
	ReceiptURL string

	// FailureThreshold and ResetTimeout configure the circuit breaker. Defaults: 5 and 30s.
	FailureThreshold int
	ResetTimeout     time.Duration

	Logger  storekit.Logger
	Metrics storekit.Metrics
}

// DefaultConfig returns a config with default timeouts.
func DefaultConfig() Config {
	return Config{
		Timeout:          10 * time.Second,
		PurchaseTimeout:  5 * time.Minute,
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
	}
}

// APIError is a non-2xx answer from the gateway.
type APIError struct {
	Operation  string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s failed with status %d", e.Operation, e.StatusCode)
	}
	return fmt.Sprintf("%s failed with status %d: %s", e.Operation, e.StatusCode, e.Message)
}

// Client implements storekit.Store and storekit.ReceiptSource.
type Client struct {
	http       *resty.Client
	fs         afs.Service
	breaker    *storekit.CircuitBreaker
	receiptURL string
	timeout    time.Duration
	purchaseTO time.Duration
	logger     storekit.Logger
	metrics    storekit.Metrics
}

// New creates a gateway client.
func New(config Config) (*Client, error) {
	if strings.TrimSpace(config.BaseURL) == "" {
		return nil, errors.New("gateway base URL is required")
	}
	defaults := DefaultConfig()
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.PurchaseTimeout <= 0 {
		config.PurchaseTimeout = defaults.PurchaseTimeout
	}
	if config.Logger == nil {
		config.Logger = &storekit.NoopLogger{}
	}
	if config.Metrics == nil {
		config.Metrics = &storekit.NoopMetrics{}
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(config.BaseURL, "/")).
		SetHeader("Accept", "application/json")
	if config.APIKey != "" {
		client.SetAuthToken(config.APIKey)
	}

	c := &Client{
		http:       client,
		fs:         afs.New(),
		receiptURL: config.ReceiptURL,
		timeout:    config.Timeout,
		purchaseTO: config.PurchaseTimeout,
		logger:     config.Logger,
		metrics:    config.Metrics,
	}
	c.breaker = storekit.NewCircuitBreaker(config.FailureThreshold, config.ResetTimeout,
		func(state storekit.CircuitBreakerState) {
			c.metrics.RecordCircuitBreakerStateChange(string(state))
			c.logger.Warn("gateway circuit breaker state changed",
				storekit.Field{Key: "state", Value: string(state)})
		})
	return c, nil
}

// Breaker exposes the circuit breaker guarding gateway calls.
func (c *Client) Breaker() *storekit.CircuitBreaker {
	return c.breaker
}

type eligibilityResponse struct {
	CanMakePayments bool `json:"canMakePayments"`
}

type productDTO struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Price       string `json:"price"`
}

type productsResponse struct {
	Products []productDTO `json:"products"`
}

type purchaseRequest struct {
	ProductID       string `json:"productId"`
	AppAccountToken string `json:"appAccountToken"`
}

type purchaseResponse struct {
	Result      string                           `json:"result"`
	Verified    bool                             `json:"verified"`
	Reason      string                           `json:"reason,omitempty"`
	Transaction storekit.NotificationTransaction `json:"transaction"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// CanMakePayments reports false when the gateway cannot be reached.
func (c *Client) CanMakePayments(ctx context.Context) bool {
	var out eligibilityResponse
	err := c.call(ctx, "eligibility", c.timeout, func(req *resty.Request) (*resty.Response, error) {
		return req.SetResult(&out).Get("/v1/eligibility")
	})
	if err != nil {
		c.logger.Warn("failed to query purchase eligibility", storekit.Field{Key: "error", Value: err})
		return false
	}
	return out.CanMakePayments
}

func (c *Client) Products(ctx context.Context, ids []string) ([]storekit.Product, error) {
	var out productsResponse
	err := c.call(ctx, "products", c.timeout, func(req *resty.Request) (*resty.Response, error) {
		return req.
			SetQueryParam("ids", strings.Join(ids, ",")).
			SetResult(&out).
			Get("/v1/products")
	})
	if err != nil {
		return nil, err
	}

	products := make([]storekit.Product, 0, len(out.Products))
	for _, p := range out.Products {
		products = append(products, storekit.Product{ID: p.ID, DisplayName: p.DisplayName, Price: p.Price})
	}
	return products, nil
}

func (c *Client) Purchase(ctx context.Context, product storekit.Product, opts storekit.PurchaseOptions) (storekit.PurchaseResult, error) {
	var out purchaseResponse
	err := c.call(ctx, "purchase", c.purchaseTO, func(req *resty.Request) (*resty.Response, error) {
		return req.
			SetBody(purchaseRequest{ProductID: product.ID, AppAccountToken: opts.AppAccountToken.String()}).
			SetResult(&out).
			Post("/v1/purchases")
	})
	if err != nil {
		return nil, err
	}
	return out.toResult(), nil
}

func (r *purchaseResponse) toResult() storekit.PurchaseResult {
	switch r.Result {
	case resultSuccess:
		if strings.TrimSpace(r.Transaction.ID) == "" {
			return storekit.PurchaseUnknown{Kind: "success without transaction id"}
		}
		n := storekit.Notification{Verified: r.Verified, Reason: r.Reason, Transaction: r.Transaction}
		return storekit.PurchaseSucceeded{Verification: n.VerificationResult()}
	case resultUserCancelled:
		return storekit.PurchaseUserCancelled{}
	case resultPending:
		return storekit.PurchasePending{}
	default:
		return storekit.PurchaseUnknown{Kind: r.Result}
	}
}

func (c *Client) Sync(ctx context.Context) error {
	return c.call(ctx, "sync", c.timeout, func(req *resty.Request) (*resty.Response, error) {
		return req.Post("/v1/sync")
	})
}

func (c *Client) Finish(ctx context.Context, tx storekit.Transaction) error {
	return c.call(ctx, "finish", c.timeout, func(req *resty.Request) (*resty.Response, error) {
		return req.SetPathParam("id", tx.ID).Post("/v1/transactions/{id}/finish")
	})
}

// call runs one request through the circuit breaker and records it.
func (c *Client) call(ctx context.Context, operation string, timeout time.Duration,
	do func(req *resty.Request) (*resty.Response, error)) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := c.breaker.Execute(func() error {
		resp, err := do(c.http.R().SetContext(ctx).SetError(&errorResponse{}))
		if err != nil {
			return fmt.Errorf("%s request failed: %w", operation, err)
		}
		if resp.IsError() {
			apiErr := &APIError{Operation: operation, StatusCode: resp.StatusCode()}
			if e, ok := resp.Error().(*errorResponse); ok && e != nil {
				apiErr.Message = e.Error
			}
			return apiErr
		}
		return nil
	}, countsAsFailure)

	status := "ok"
	if err != nil {
		status = "error"
		if errors.Is(err, storekit.ErrCircuitOpen) {
			status = "rejected"
		}
	}
	c.metrics.RecordPlatformCall(operation, status, time.Since(start))
	return err
}

// countsAsFailure excludes client errors, which say nothing about gateway health.
func countsAsFailure(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= http.StatusInternalServerError
	}
	return true
}
