package public

import (
	"net/url"

	"github.com/qingyi232/QuizMate1-sub002/internal/constants"

	"github.com/gin-gonic/gin"
)

// AlipayCallback 支付宝异步通知，应答纯文本 success/fail
func (h *Handler) AlipayCallback(c *gin.Context) {
	log := requestLog(c)
	form, err := parseCallbackForm(c)
	if err != nil {
		log.Warnw("alipay_callback_form_parse_failed", "error", err)
		c.String(200, constants.AlipayCallbackFail)
		return
	}
	log.Infow("alipay_callback_received",
		"method", c.Request.Method,
		"client_ip", c.ClientIP(),
		"out_trade_no", form.Get("out_trade_no"),
		"trade_status", form.Get("trade_status"),
		"raw_form", callbackRawFormForLog(form),
	)

	event, err := h.CallbackVerifier.VerifyAlipay(c.Request.Context(), form)
	if err != nil {
		log.Warnw("payment_callback_signature_invalid",
			"provider", constants.PaymentMethodAlipay,
			"out_trade_no", form.Get("out_trade_no"),
			"error", err,
		)
		c.String(200, constants.AlipayCallbackFail)
		return
	}
	if _, err := h.applyVerifiedEvent(c, log, event); err != nil {
		c.String(200, constants.AlipayCallbackFail)
		return
	}
	c.String(200, constants.AlipayCallbackSuccess)
}

func parseCallbackForm(c *gin.Context) (url.Values, error) {
	if err := c.Request.ParseForm(); err != nil {
		return nil, err
	}
	if len(c.Request.PostForm) > 0 {
		return c.Request.PostForm, nil
	}
	return c.Request.Form, nil
}
