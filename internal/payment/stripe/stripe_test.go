package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/qingyi232/QuizMate1-sub002/internal/constants"
)

func TestParseAndValidateConfig(t *testing.T) {
	cfg, err := ParseConfig(map[string]interface{}{
		"secret_key":     " sk_test_123 ",
		"webhook_secret": " whsec_123 ",
		"success_url":    "https://example.com/payment/success?session_id={CHECKOUT_SESSION_ID}",
		"cancel_url":     "https://example.com/payment/cancel",
	})
	if err != nil {
		t.Fatalf("parse config failed: %v", err)
	}
	if cfg.SecretKey != "sk_test_123" {
		t.Fatalf("unexpected secret key: %s", cfg.SecretKey)
	}
	if cfg.APIBaseURL != defaultAPIBaseURL {
		t.Fatalf("unexpected default api base url: %s", cfg.APIBaseURL)
	}
	if len(cfg.PaymentMethodTypes) != 1 || cfg.PaymentMethodTypes[0] != "card" {
		t.Fatalf("unexpected payment method types: %v", cfg.PaymentMethodTypes)
	}
	if err := ValidateConfig(cfg); err != nil {
		t.Fatalf("validate config failed: %v", err)
	}
}

func TestCreateCheckoutSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/checkout/sessions" || r.Header.Get("Authorization") != "Bearer sk_test" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.PostForm.Get("client_reference_id") != "STR-1" ||
			r.PostForm.Get("line_items[0][price_data][unit_amount]") != "499" ||
			r.PostForm.Get("metadata[user_id]") != "u-1" {
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     "cs_test_1",
			"url":    "https://checkout.stripe.com/c/pay/cs_test_1",
			"status": "open",
		})
	}))
	defer server.Close()

	cfg := &Config{
		SecretKey:          "sk_test",
		WebhookSecret:      "whsec",
		SuccessURL:         "https://example.com/ok",
		CancelURL:          "https://example.com/cancel",
		APIBaseURL:         server.URL,
		PaymentMethodTypes: []string{"card"},
	}
	result, err := CreateCheckoutSession(context.Background(), cfg, CreateInput{
		OrderID:     "STR-1",
		AmountMinor: 499,
		Currency:    "usd",
		UserID:      "u-1",
		Plan:        constants.PlanProMonthly,
	})
	if err != nil {
		t.Fatalf("create checkout session failed: %v", err)
	}
	if result.SessionID != "cs_test_1" || result.URL == "" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestVerifyAndParseWebhookCheckoutCompleted(t *testing.T) {
	now := time.Unix(1760000000, 0)
	cfg := &Config{WebhookSecret: "whsec_test_abc", WebhookToleranceSeconds: 300}
	body, _ := json.Marshal(map[string]interface{}{
		"id":   "evt_test_1",
		"type": "checkout.session.completed",
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"object":              "checkout.session",
				"id":                  "cs_test_123",
				"client_reference_id": "STR-1001",
				"payment_intent":      "pi_123",
				"payment_status":      "paid",
				"currency":            "usd",
				"amount_total":        499,
				"created":             now.Unix(),
				"metadata": map[string]interface{}{
					"order_id": "STR-1001",
					"user_id":  "u-1",
					"plan":     "pro_monthly",
				},
			},
		},
	})
	headers := http.Header{}
	headers.Set("Stripe-Signature", SignPayload(cfg.WebhookSecret, now.Unix(), body))

	event, err := VerifyAndParseWebhook(cfg, headers, body, now)
	if err != nil {
		t.Fatalf("verify and parse webhook failed: %v", err)
	}
	if event.OrderID != "STR-1001" {
		t.Fatalf("unexpected order id: %s", event.OrderID)
	}
	if event.TransactionID() != "pi_123" {
		t.Fatalf("unexpected transaction id: %s", event.TransactionID())
	}
	if event.AmountMinor != 499 || event.Currency != "USD" {
		t.Fatalf("unexpected amount: %d %s", event.AmountMinor, event.Currency)
	}
	if event.Passback["user_id"] != "u-1" {
		t.Fatalf("unexpected passback: %v", event.Passback)
	}
	if ToOrderStatus(event.EventType, event.PaymentStatus) != constants.OrderStatusPaid {
		t.Fatalf("expected paid status")
	}
}

func TestVerifyAndParseWebhookRejectsStaleTimestamp(t *testing.T) {
	now := time.Unix(1760000000, 0)
	cfg := &Config{WebhookSecret: "whsec_test_abc", WebhookToleranceSeconds: 300}
	body := []byte(`{"id":"evt_1","type":"checkout.session.completed","data":{"object":{"object":"checkout.session"}}}`)
	headers := http.Header{}
	headers.Set("Stripe-Signature", SignPayload(cfg.WebhookSecret, now.Add(-10*time.Minute).Unix(), body))

	if _, err := VerifyAndParseWebhook(cfg, headers, body, now); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected signature invalid, got %v", err)
	}
}

func TestVerifyAndParseWebhookInvalidSignature(t *testing.T) {
	now := time.Unix(1760000000, 0)
	cfg := &Config{WebhookSecret: "whsec_test_abc"}
	body := []byte(`{"id":"evt_1","type":"checkout.session.completed","data":{"object":{"object":"checkout.session"}}}`)
	headers := http.Header{}
	headers.Set("Stripe-Signature", "t=1760000000,v1=invalid-signature")

	if _, err := VerifyAndParseWebhook(cfg, headers, body, now); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected signature invalid, got %v", err)
	}
}

func TestToOrderStatus(t *testing.T) {
	cases := []struct {
		eventType     string
		paymentStatus string
		want          string
	}{
		{"checkout.session.completed", "paid", constants.OrderStatusPaid},
		{"checkout.session.completed", "unpaid", ""},
		{"checkout.session.async_payment_succeeded", "", constants.OrderStatusPaid},
		{"checkout.session.expired", "", constants.OrderStatusCancelled},
		{"payment_intent.created", "", ""},
	}
	for _, tc := range cases {
		if got := ToOrderStatus(tc.eventType, tc.paymentStatus); got != tc.want {
			t.Fatalf("ToOrderStatus(%s,%s)=%q want %q", tc.eventType, tc.paymentStatus, got, tc.want)
		}
	}
}
