package public

import (
	"io"
	"net/http"
	"strings"

	"github.com/qingyi232/QuizMate1-sub002/internal/constants"

	"github.com/gin-gonic/gin"
)

// WechatCallback 微信支付 APIv3 通知，应答 {"code":"SUCCESS"} 或 {"code":"FAIL"}
func (h *Handler) WechatCallback(c *gin.Context) {
	log := requestLog(c)
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		log.Warnw("wechat_callback_body_read_failed", "error", err)
		respondWechatCallback(c, http.StatusBadRequest, "读取通知失败")
		return
	}
	log.Infow("wechat_callback_received",
		"client_ip", c.ClientIP(),
		"body_size", len(body),
		"wechatpay_signature", truncateCallbackLogValue(strings.TrimSpace(c.GetHeader("Wechatpay-Signature"))),
		"wechatpay_timestamp", strings.TrimSpace(c.GetHeader("Wechatpay-Timestamp")),
		"wechatpay_nonce", truncateCallbackLogValue(strings.TrimSpace(c.GetHeader("Wechatpay-Nonce"))),
		"wechatpay_serial", strings.TrimSpace(c.GetHeader("Wechatpay-Serial")),
		"raw_body", callbackRawBodyForLog(body),
	)

	event, err := h.CallbackVerifier.VerifyWechat(c.Request.Context(), c.Request.Header, body)
	if err != nil {
		log.Warnw("payment_callback_signature_invalid", "provider", constants.PaymentMethodWechat, "error", err)
		respondWechatCallback(c, callbackFailureStatus(err), "验签失败")
		return
	}
	if _, err := h.applyVerifiedEvent(c, log, event); err != nil {
		respondWechatCallback(c, callbackFailureStatus(err), "处理失败")
		return
	}
	respondWechatCallback(c, http.StatusOK, "成功")
}

func respondWechatCallback(c *gin.Context, status int, message string) {
	code := constants.WechatCallbackCodeSuccess
	if status != http.StatusOK {
		code = constants.WechatCallbackCodeFail
	}
	c.JSON(status, gin.H{
		"code":    code,
		"message": message,
	})
}
