package mercadopago

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/lessslie/Pelu-PetShop/internal/config"
	"github.com/lessslie/Pelu-PetShop/internal/model"
	"github.com/lessslie/Pelu-PetShop/pkg/circuitbreaker"
	"github.com/lessslie/Pelu-PetShop/pkg/logger"
	"github.com/lessslie/Pelu-PetShop/pkg/metrics"
)

const (
	DefaultBaseURL = "https://api.mercadopago.com"

	opCreatePreference = "create_preference"
	opGetPayment       = "get_payment"
)

// APIError is a non-2xx answer from the provider.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mercadopago: status %d: %s", e.StatusCode, e.Message)
}

// Temporary reports whether retrying the call may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// URLs are the public addresses the provider redirects and calls back to.
type URLs struct {
	FrontendURL string
	BackendURL  string
}

type Client struct {
	baseURL     string
	accessToken string
	urls        URLs
	http        *http.Client
	breaker     *circuitbreaker.CircuitBreaker
	maxRetries  uint64
	metrics     *metrics.Metrics
	log         *logger.Logger
}

func NewClient(cfg config.MercadoPagoConfig, urls URLs, m *metrics.Metrics, log *logger.Logger) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		accessToken: cfg.AccessToken,
		urls: URLs{
			FrontendURL: strings.TrimRight(urls.FrontendURL, "/"),
			BackendURL:  strings.TrimRight(urls.BackendURL, "/"),
		},
		http: &http.Client{Timeout: timeout},
		breaker: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:                "mercadopago",
			MaxRequests:         1,
			Interval:            time.Minute,
			Timeout:             30 * time.Second,
			ConsecutiveFailures: 5,
			IsSuccessful:        isSuccessful,
		}),
		maxRetries: cfg.MaxRetries,
		metrics:    m,
		log:        log.Component("mercadopago"),
	}
}

// Client errors are the caller's fault and must not open the breaker.
func isSuccessful(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return !apiErr.Temporary()
	}
	return err == nil
}

type preferenceItem struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Quantity    int     `json:"quantity"`
	CurrencyID  string  `json:"currency_id"`
	UnitPrice   float64 `json:"unit_price"`
}

type preferenceBody struct {
	Items []preferenceItem `json:"items"`
	Payer struct {
		Email string `json:"email,omitempty"`
	} `json:"payer"`
	BackURLs struct {
		Success string `json:"success"`
		Failure string `json:"failure"`
		Pending string `json:"pending"`
	} `json:"back_urls"`
	AutoReturn        string `json:"auto_return"`
	ExternalReference string `json:"external_reference"`
	NotificationURL   string `json:"notification_url"`
}

type preferenceResponse struct {
	ID        string `json:"id"`
	InitPoint string `json:"init_point"`
}

// CreatePreference registers a one-item checkout and returns its URL.
// It is not retried: a retry after a lost response would create a second preference.
func (c *Client) CreatePreference(ctx context.Context, req *model.PreferenceRequest) (*model.Preference, error) {
	body := preferenceBody{
		Items: []preferenceItem{{
			ID:          req.Item.ID,
			Title:       req.Item.Title,
			Description: req.Item.Description,
			Quantity:    1,
			CurrencyID:  model.Currency,
			UnitPrice:   req.Item.UnitPrice,
		}},
		AutoReturn:        "approved",
		ExternalReference: req.ExternalReference,
		NotificationURL:   c.urls.BackendURL + "/api/v1/payments/webhook",
	}
	body.Payer.Email = req.PayerEmail
	body.BackURLs.Success = c.urls.FrontendURL + "/payment/success"
	body.BackURLs.Failure = c.urls.FrontendURL + "/payment/failure"
	body.BackURLs.Pending = c.urls.FrontendURL + "/payment/pending"

	var resp preferenceResponse
	err := c.observe(opCreatePreference, func() error {
		return c.breaker.Execute(func() error {
			return c.do(ctx, http.MethodPost, "/checkout/preferences", body, &resp)
		})
	})
	if err != nil {
		return nil, err
	}
	if resp.InitPoint == "" {
		return nil, errors.New("mercadopago: preference has no init_point")
	}

	return &model.Preference{ID: resp.ID, CheckoutURL: resp.InitPoint}, nil
}

type paymentResponse struct {
	ID                json.Number `json:"id"`
	Status            string      `json:"status"`
	StatusDetail      string      `json:"status_detail"`
	ExternalReference string      `json:"external_reference"`
	TransactionAmount float64     `json:"transaction_amount"`
	DateApproved      *time.Time  `json:"date_approved"`
}

// GetPayment fetches a payment, retrying transient failures with exponential backoff.
func (c *Client) GetPayment(ctx context.Context, paymentID string) (*model.ProviderPayment, error) {
	if _, err := strconv.ParseInt(paymentID, 10, 64); err != nil {
		return nil, &APIError{StatusCode: http.StatusBadRequest, Message: fmt.Sprintf("invalid payment id %q", paymentID)}
	}

	var resp paymentResponse
	policy := backoff.WithContext(backoff.WithMaxRetries(newBackOff(), c.maxRetries), ctx)

	err := c.observe(opGetPayment, func() error {
		return backoff.RetryNotify(func() error {
			err := c.breaker.Execute(func() error {
				return c.do(ctx, http.MethodGet, "/v1/payments/"+paymentID, nil, &resp)
			})
			if err != nil && !retryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}, policy, func(err error, next time.Duration) {
			c.log.Warn("Retrying payment lookup", "payment_id", paymentID, "error", err.Error(), "next", next.String())
		})
	})
	if err != nil {
		return nil, err
	}

	return &model.ProviderPayment{
		ID:                resp.ID.String(),
		Status:            resp.Status,
		StatusDetail:      resp.StatusDetail,
		ExternalReference: resp.ExternalReference,
		Amount:            resp.TransactionAmount,
		DateApproved:      resp.DateApproved,
	}, nil
}

func newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = 10 * time.Second
	return b
}

func retryable(err error) bool {
	if circuitbreaker.IsOpen(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return true
}

func (c *Client) observe(op string, fn func() error) error {
	start := time.Now()
	err := fn()
	c.metrics.ProviderLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	c.metrics.ProviderRequests.WithLabelValues(op, metrics.StatusLabel(err)).Inc()
	if err != nil {
		c.log.Error(err, "Provider call failed", "operation", op, "breaker", c.breaker.State())
	}
	return err
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("mercadopago request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiResp struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(raw, &apiResp)
		if apiResp.Message == "" {
			apiResp.Message = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: apiResp.Message}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
