package paymob

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/sakan-app/sakan-backend/internal/domain"
)

// Client talks to the Paymob Accept API. Checkout is a three-call chain:
// exchange the API key for a short-lived auth token, register an order
// under our merchant reference (the internal payment id), then exchange
// the order for a payment key scoped to amount and billing profile.
// Wallet payments add a fourth call that returns a redirect URL.
type Client struct {
	baseURL             string
	apiKey              string
	integrationID       string
	walletIntegrationID string
	hmacSecret          string
	http                *http.Client
}

type Config struct {
	BaseURL             string
	APIKey              string
	IntegrationID       string
	WalletIntegrationID string
	HMACSecret          string
}

func New(cfg Config) *Client {
	return &Client{
		baseURL:             strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:              cfg.APIKey,
		integrationID:       cfg.IntegrationID,
		walletIntegrationID: cfg.WalletIntegrationID,
		hmacSecret:          cfg.HMACSecret,
		http:                &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) Authenticate(ctx context.Context) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	err := c.post(ctx, "/api/auth/tokens", map[string]interface{}{"api_key": c.apiKey}, &resp)
	if err != nil {
		return "", errors.Wrap(err, "paymob auth token")
	}
	return resp.Token, nil
}

// CreateOrder registers a gateway order. merchantRef is the internal
// payment id and comes back on the webhook as merchant_order_id.
func (c *Client) CreateOrder(ctx context.Context, token, merchantRef string, amountCents int64) (int64, error) {
	var resp struct {
		ID int64 `json:"id"`
	}
	err := c.post(ctx, "/api/ecommerce/orders", map[string]interface{}{
		"auth_token":        token,
		"delivery_needed":   false,
		"merchant_order_id": merchantRef,
		"amount_cents":      amountCents,
		"currency":          "EGP",
		"items":             []interface{}{},
	}, &resp)
	if err != nil {
		return 0, errors.Wrap(err, "paymob create order")
	}
	return resp.ID, nil
}

func (c *Client) PaymentKey(ctx context.Context, token string, orderID, amountCents int64, bill domain.UserInfo, wallet bool) (string, error) {
	integration := c.integrationID
	if wallet {
		integration = c.walletIntegrationID
	}

	first, last := splitName(bill.Name)
	var resp struct {
		Token string `json:"token"`
	}
	err := c.post(ctx, "/api/acceptance/payment_keys", map[string]interface{}{
		"auth_token":     token,
		"amount_cents":   amountCents,
		"expiration":     3600,
		"order_id":       orderID,
		"currency":       "EGP",
		"integration_id": integration,
		"billing_data": map[string]interface{}{
			"first_name":      first,
			"last_name":       last,
			"email":           bill.Email,
			"phone_number":    NormalizePhone(bill.Phone),
			"apartment":       "NA",
			"floor":           "NA",
			"street":          "NA",
			"building":        "NA",
			"shipping_method": "NA",
			"postal_code":     "NA",
			"city":            "NA",
			"country":         "EG",
			"state":           "NA",
		},
	}, &resp)
	if err != nil {
		return "", errors.Wrap(err, "paymob payment key")
	}
	return resp.Token, nil
}

// WalletCharge starts a mobile-wallet payment and returns the redirect
// URL the client must open to approve the charge.
func (c *Client) WalletCharge(ctx context.Context, paymentKey, walletNumber string) (string, error) {
	var resp struct {
		RedirectURL string `json:"redirect_url"`
	}
	err := c.post(ctx, "/api/acceptance/payments/pay", map[string]interface{}{
		"payment_token": paymentKey,
		"source": map[string]string{
			"identifier": NormalizePhone(walletNumber),
			"subtype":    "WALLET",
		},
	}, &resp)
	if err != nil {
		return "", errors.Wrap(err, "paymob wallet charge")
	}
	if resp.RedirectURL == "" {
		return "", errors.New("paymob wallet charge: no redirect_url in response")
	}
	return resp.RedirectURL, nil
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return errors.Newf("gateway returned %d: %s", resp.StatusCode, detail)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

var nonDigit = regexp.MustCompile(`\D`)

// NormalizePhone reduces a phone number to digits and prefixes the Egypt
// country code when it is absent, so the gateway always receives the
// full international form.
func NormalizePhone(phone string) string {
	digits := nonDigit.ReplaceAllString(phone, "")
	if digits == "" {
		return digits
	}
	digits = strings.TrimLeft(digits, "0")
	if !strings.HasPrefix(digits, "20") {
		digits = "20" + digits
	}
	return "+" + digits
}

func splitName(name string) (first, last string) {
	parts := strings.Fields(name)
	switch len(parts) {
	case 0:
		return "NA", "NA"
	case 1:
		return parts[0], "NA"
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}
