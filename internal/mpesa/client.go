package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	tokenPath = "/oauth/v1/generate?grant_type=client_credentials"
	stkPath   = "/mpesa/stkpush/v1/processrequest"

	responseCodeAccepted = "0"
	timestampLayout      = "20060102150405"
	maxErrorBody         = 4 << 10
)

type Config struct {
	BaseURL         string
	ConsumerKey     string
	ConsumerSecret  string
	ShortCode       string
	PassKey         string
	CallbackURL     string
	TransactionType string
	CountryCode     string
	RequestTimeout  time.Duration
}

// Client talks to the Daraja API. It holds no token state; each push
// initiation authenticates afresh.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

func NewClient(config Config, logger *slog.Logger, opts ...Option) *Client {
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 30 * time.Second
	}
	if config.TransactionType == "" {
		config.TransactionType = "CustomerPayBillOnline"
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	c := &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.RequestTimeout},
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AcquireAccessToken exchanges the consumer credentials for a bearer token.
func (c *Client) AcquireAccessToken(ctx context.Context) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+tokenPath, nil)
	if err != nil {
		return "", &GatewayAuthError{Err: fmt.Errorf("failed to create token request: %w", err)}
	}
	httpReq.SetBasicAuth(c.config.ConsumerKey, c.config.ConsumerSecret)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", &GatewayAuthError{Err: fmt.Errorf("token request failed: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body := readBody(resp.Body)
		c.logger.Error("mpesa: token request rejected", "status", resp.StatusCode, "body", body)
		return "", &GatewayAuthError{StatusCode: resp.StatusCode, Body: body}
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", &GatewayAuthError{StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode token response: %w", err)}
	}
	if tr.AccessToken == "" {
		return "", &GatewayAuthError{StatusCode: resp.StatusCode, Body: "empty access_token"}
	}

	return tr.AccessToken, nil
}

// InitiatePushPayment asks the gateway to prompt the payer's handset. A nil
// error means the gateway accepted the request (ResponseCode "0") and the
// returned CorrelationID will appear on the asynchronous confirmation.
func (c *Client) InitiatePushPayment(ctx context.Context, phone string, amount decimal.Decimal, accountReference string) (*PushPaymentResult, error) {
	msisdn, err := NormalizePhone(phone, c.config.CountryCode)
	if err != nil {
		return nil, &GatewayRequestError{Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	token, err := c.AcquireAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	timestamp := c.now().Format(timestampLayout)
	payload := stkPushRequest{
		BusinessShortCode: c.config.ShortCode,
		Password:          c.password(timestamp),
		Timestamp:         timestamp,
		TransactionType:   c.config.TransactionType,
		Amount:            amount.Ceil().IntPart(),
		PartyA:            msisdn,
		PartyB:            c.config.ShortCode,
		PhoneNumber:       msisdn,
		CallBackURL:       c.config.CallbackURL,
		AccountReference:  accountReference,
		TransactionDesc:   "SACCO contribution",
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, &GatewayRequestError{Err: fmt.Errorf("failed to marshal push request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+stkPath, bytes.NewReader(jsonData))
	if err != nil {
		return nil, &GatewayRequestError{Err: fmt.Errorf("failed to create push request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	c.logger.Info("mpesa: initiating push payment",
		"account_reference", accountReference,
		"amount", payload.Amount)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &GatewayRequestError{Err: fmt.Errorf("push request failed: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body := readBody(resp.Body)
		c.logger.Error("mpesa: push request rejected", "status", resp.StatusCode, "body", body)
		return nil, &GatewayRequestError{StatusCode: resp.StatusCode, Body: body}
	}

	var sr stkPushResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, &GatewayRequestError{StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode push response: %w", err)}
	}

	if sr.ResponseCode != responseCodeAccepted {
		c.logger.Warn("mpesa: push request not accepted",
			"response_code", sr.ResponseCode,
			"response_description", sr.ResponseDescription)
		return nil, &GatewayRequestError{StatusCode: resp.StatusCode, ResponseCode: sr.ResponseCode, Body: sr.ResponseDescription}
	}
	if sr.CheckoutRequestID == "" {
		return nil, &GatewayRequestError{StatusCode: resp.StatusCode, Body: "accepted response without CheckoutRequestID"}
	}

	c.logger.Info("mpesa: push payment accepted",
		"correlation_id", sr.CheckoutRequestID,
		"merchant_request_id", sr.MerchantRequestID)

	return &PushPaymentResult{
		CorrelationID:       sr.CheckoutRequestID,
		MerchantRequestID:   sr.MerchantRequestID,
		ResponseCode:        sr.ResponseCode,
		ResponseDescription: sr.ResponseDescription,
		CustomerMessage:     sr.CustomerMessage,
		PhoneNumber:         msisdn,
	}, nil
}

func (c *Client) password(timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(c.config.ShortCode + c.config.PassKey + timestamp))
}

func readBody(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil {
		return ""
	}
	return string(b)
}
