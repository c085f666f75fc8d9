package paymob

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sakan-app/sakan-backend/internal/domain"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{
		BaseURL:             srv.URL,
		APIKey:              "key",
		IntegrationID:       "111",
		WalletIntegrationID: "222",
		HMACSecret:          "secret",
	})
}

func TestCheckoutChain(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/tokens", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		if body["api_key"] != "key" {
			t.Errorf("api_key = %v", body["api_key"])
		}
		json.NewEncoder(w).Encode(map[string]string{"token": "auth-tok"})
	})
	mux.HandleFunc("/api/ecommerce/orders", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		if body["merchant_order_id"] != "pay-1" {
			t.Errorf("merchant_order_id = %v", body["merchant_order_id"])
		}
		if body["amount_cents"] != float64(5000000) {
			t.Errorf("amount_cents = %v", body["amount_cents"])
		}
		json.NewEncoder(w).Encode(map[string]int64{"id": 777})
	})
	mux.HandleFunc("/api/acceptance/payment_keys", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			OrderID       int64  `json:"order_id"`
			IntegrationID string `json:"integration_id"`
			BillingData   struct {
				Phone string `json:"phone_number"`
				City  string `json:"city"`
			} `json:"billing_data"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if body.OrderID != 777 {
			t.Errorf("order_id = %d", body.OrderID)
		}
		if body.IntegrationID != "111" {
			t.Errorf("integration_id = %s", body.IntegrationID)
		}
		if body.BillingData.Phone != "+201234567890" {
			t.Errorf("phone_number = %s", body.BillingData.Phone)
		}
		if body.BillingData.City != "NA" {
			t.Errorf("city placeholder = %s", body.BillingData.City)
		}
		json.NewEncoder(w).Encode(map[string]string{"token": "pay-tok"})
	})

	c := testClient(t, mux)
	ctx := context.Background()

	token, err := c.Authenticate(ctx)
	if err != nil || token != "auth-tok" {
		t.Fatalf("Authenticate = %q, %v", token, err)
	}
	orderID, err := c.CreateOrder(ctx, token, "pay-1", 5000000)
	if err != nil || orderID != 777 {
		t.Fatalf("CreateOrder = %d, %v", orderID, err)
	}
	key, err := c.PaymentKey(ctx, token, orderID, 5000000, domain.UserInfo{
		Name: "Ahmed Hassan", Email: "a@example.com", Phone: "01234567890",
	}, false)
	if err != nil || key != "pay-tok" {
		t.Fatalf("PaymentKey = %q, %v", key, err)
	}
}

func TestWalletCharge(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/acceptance/payments/pay", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			PaymentToken string `json:"payment_token"`
			Source       struct {
				Identifier string `json:"identifier"`
				Subtype    string `json:"subtype"`
			} `json:"source"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if body.PaymentToken != "pay-tok" || body.Source.Subtype != "WALLET" {
			t.Errorf("bad wallet request: %+v", body)
		}
		json.NewEncoder(w).Encode(map[string]string{"redirect_url": "https://accept.example/redirect"})
	})

	c := testClient(t, mux)
	url, err := c.WalletCharge(context.Background(), "pay-tok", "01098765432")
	if err != nil || url != "https://accept.example/redirect" {
		t.Fatalf("WalletCharge = %q, %v", url, err)
	}
}

func TestHTTPErrorSurfaced(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"invalid key"}`, http.StatusUnauthorized)
	}))
	if _, err := c.Authenticate(context.Background()); err == nil {
		t.Fatal("expected error on 401 from gateway")
	}
}

func TestNormalizePhone(t *testing.T) {
	cases := map[string]string{
		"01234567890":      "+201234567890",
		"+20 123 456 7890": "+201234567890",
		"0020123456789":    "+20123456789",
		"1098765432":       "+201098765432",
		"":                 "",
	}
	for in, want := range cases {
		if got := NormalizePhone(in); got != want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestVerifyCallback(t *testing.T) {
	c := New(Config{HMACSecret: "secret"})
	cb := Callback{
		TransactionID: 123,
		OrderID:       777,
		AmountCents:   5000000,
		Currency:      "EGP",
		CreatedAt:     "2026-08-01T10:00:00",
		Success:       true,
		SourcePan:     "1234",
		SourceType:    "card",
		SourceSubType: "MasterCard",
	}

	sig := c.Sign(cb)
	if !c.VerifyCallback(cb, sig) {
		t.Fatal("valid signature rejected")
	}
	if !c.VerifyCallback(cb, strings.ToUpper(sig)) {
		t.Fatal("uppercase hex signature rejected")
	}
	if c.VerifyCallback(cb, "deadbeef") {
		t.Fatal("bad signature accepted")
	}

	tampered := cb
	tampered.AmountCents = 1
	if c.VerifyCallback(tampered, sig) {
		t.Fatal("signature accepted for tampered payload")
	}
}
