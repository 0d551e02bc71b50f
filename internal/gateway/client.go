package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/payhub-ph/payhub-backend/internal/models"
	"github.com/payhub-ph/payhub-backend/internal/sign"
)

const (
	pathDeposit  = "/api/pay"
	pathTransfer = "/api/transfer"
	pathQuery    = "/api/query"

	maxAttempts = 3
	baseBackoff = 500 * time.Millisecond
)

// Config is injected; the client never reads process environment.
type Config struct {
	BaseURL     string
	MerchantID  string
	Secret      string
	CallbackURL string
	ReturnURL   string
	Timeout     time.Duration
}

// Client wraps the aggregator's HTTP API. It is stateless and never
// touches the ledger; callers persist snapshots and drive transitions.
type Client struct {
	cfg  Config
	http *http.Client
	log  *slog.Logger
}

func New(cfg Config, log *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  log,
	}
}

// CreateDeposit submits a cash-in order and returns the redirect the
// user must be sent to.
func (c *Client) CreateDeposit(ctx context.Context, channel models.PaymentChannel, req DepositRequest) (*DepositResponse, error) {
	spec, ok := channels[channel]
	if !ok {
		return nil, &Error{Code: "unsupported_channel", Message: string(channel)}
	}

	params := map[string]string{
		"merchant":     c.cfg.MerchantID,
		"payment_type": spec.PaymentType,
		"amount":       req.Amount.StringFixed(2),
		"order_id":     req.ReferenceID,
		"bank_code":    spec.BankCode,
		"callback_url": c.cfg.CallbackURL,
		"return_url":   c.cfg.ReturnURL,
	}
	params["sign"] = sign.Sign(params, c.cfg.Secret, spec.Deposit)

	var resp DepositResponse
	if _, err := c.postForm(ctx, pathDeposit, params, &resp); err != nil {
		return nil, err
	}
	if resp.RawStatus != "1" {
		return nil, &Error{Code: "rejected", Message: resp.Message}
	}
	if resp.RedirectURL == "" && resp.QRCodeURL == "" {
		return nil, &Error{Code: "bad_response", Message: "success without redirect or qrcode url"}
	}
	return &resp, nil
}

// CreateWithdrawal submits a payout order.
func (c *Client) CreateWithdrawal(ctx context.Context, channel models.PaymentChannel, req WithdrawalRequest) (*WithdrawalResponse, error) {
	spec, ok := channels[channel]
	if !ok {
		return nil, &Error{Code: "unsupported_channel", Message: string(channel)}
	}

	params := map[string]string{
		"merchant":          c.cfg.MerchantID,
		"total_amount":      req.Amount.StringFixed(2),
		"order_id":          req.ReferenceID,
		"bank":              spec.BankCode,
		"bank_card_account": req.AccountNo,
		"bank_card_name":    req.AccountName,
		"callback_url":      c.cfg.CallbackURL,
	}
	params["sign"] = sign.Sign(params, c.cfg.Secret, withdrawPolicy)

	var resp WithdrawalResponse
	if _, err := c.postForm(ctx, pathTransfer, params, &resp); err != nil {
		return nil, err
	}
	if resp.RawStatus != "1" {
		return nil, &Error{Code: "rejected", Message: resp.Message}
	}
	return &resp, nil
}

// QueryStatus is the idempotent probe the sweeper uses.
func (c *Client) QueryStatus(ctx context.Context, referenceID string) (*QueryStatusResponse, error) {
	params := map[string]string{
		"merchant": c.cfg.MerchantID,
		"order_id": referenceID,
	}
	params["sign"] = sign.Sign(params, c.cfg.Secret, queryPolicy)

	var resp QueryStatusResponse
	raw, err := c.postForm(ctx, pathQuery, params, &resp)
	if err != nil {
		return nil, err
	}
	resp.RawPayload = raw
	return &resp, nil
}

// postForm POSTs params form-encoded and decodes the JSON body into out.
// Transport errors retry with exponential backoff; HTTP status errors do
// not, per the reconciliation design (the sweeper re-probes later).
func (c *Client) postForm(ctx context.Context, path string, params map[string]string, out any) ([]byte, error) {
	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}
	body := form.Encode()

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := baseBackoff << (attempt - 1)
			c.log.Warn("gateway retry", "path", path, "attempt", attempt+1, "err", lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, strings.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		raw, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, &Error{
				Code:    fmt.Sprintf("http_%d", resp.StatusCode),
				Message: strings.TrimSpace(string(raw)),
			}
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return nil, &Error{Code: "bad_response", Message: "non-JSON body"}
		}
		return raw, nil
	}
	return nil, &Error{Code: "transport", Message: lastErr.Error()}
}
