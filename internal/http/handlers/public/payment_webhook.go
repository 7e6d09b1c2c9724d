package public

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/qingyi232/QuizMate1-sub002/internal/constants"
	"github.com/qingyi232/QuizMate1-sub002/internal/service"

	"github.com/gin-gonic/gin"
)

type webhookVerifyFunc func(ctx context.Context, headers http.Header, body []byte) (*service.VerifiedEvent, error)

// PaypalWebhook PayPal webhook，签名由 PayPal 验签接口确认
func (h *Handler) PaypalWebhook(c *gin.Context) {
	h.handleWebhook(c, constants.PaymentMethodPaypal, h.CallbackVerifier.VerifyPaypal,
		"Paypal-Transmission-Id", "Paypal-Transmission-Time", "Paypal-Auth-Algo", "Paypal-Cert-Url")
}

// StripeWebhook Stripe webhook，本地校验 Stripe-Signature
func (h *Handler) StripeWebhook(c *gin.Context) {
	h.handleWebhook(c, constants.PaymentMethodStripe, h.CallbackVerifier.VerifyStripe, "Stripe-Signature")
}

// handleWebhook 读取原始 body 验签后入账，应答体固定为 success/fail
func (h *Handler) handleWebhook(c *gin.Context, provider string, verify webhookVerifyFunc, logHeaders ...string) {
	log := requestLog(c).With("provider", provider)
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		log.Warnw("webhook_body_read_failed", "error", err)
		c.String(http.StatusBadRequest, constants.WebhookAckFail)
		return
	}

	fields := []interface{}{"client_ip", c.ClientIP(), "body_size", len(body), "raw_body", callbackRawBodyForLog(body)}
	for _, name := range logHeaders {
		key := strings.ToLower(strings.ReplaceAll(name, "-", "_"))
		fields = append(fields, key, truncateCallbackLogValue(strings.TrimSpace(c.GetHeader(name))))
	}
	log.Infow("webhook_received", fields...)

	event, err := verify(c.Request.Context(), c.Request.Header, body)
	if err != nil {
		log.Warnw("payment_callback_signature_invalid", "error", err)
		c.String(callbackFailureStatus(err), constants.WebhookAckFail)
		return
	}
	if _, err := h.applyVerifiedEvent(c, log, event); err != nil {
		c.String(callbackFailureStatus(err), constants.WebhookAckFail)
		return
	}
	c.String(http.StatusOK, constants.WebhookAckSuccess)
}
