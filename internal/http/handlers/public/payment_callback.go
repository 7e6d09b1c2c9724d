package public

import (
	"errors"
	"net/http"
	"strings"

	"github.com/qingyi232/QuizMate1-sub002/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const callbackLogValueLimit = 512

// applyVerifiedEvent 将已验签事件交给对账服务，出错时应向服务商返回失败应答
func (h *Handler) applyVerifiedEvent(c *gin.Context, log *zap.SugaredLogger, event *service.VerifiedEvent) (*service.ReconcileResult, error) {
	result, err := h.ReconcileService.Apply(c.Request.Context(), event)
	if err != nil {
		log.Warnw("payment_callback_apply_failed",
			"provider", event.Provider,
			"order_id", event.OrderID,
			"transaction_id", event.TransactionID,
			"event_type", event.EventType,
			"error", err,
		)
		return nil, err
	}
	log.Infow("payment_callback_processed",
		"provider", event.Provider,
		"order_id", result.OrderID,
		"transaction_id", event.TransactionID,
		"event_type", event.EventType,
		"outcome", result.Outcome,
	)
	return result, nil
}

// callbackFailureStatus 非 2xx 状态让服务商按自身策略重投
func callbackFailureStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrSignatureInvalid), errors.Is(err, service.ErrCallbackPayloadInvalid):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrAmountMismatch), errors.Is(err, service.ErrPassbackMismatch), errors.Is(err, service.ErrCallbackInProgress):
		return http.StatusConflict
	case errors.Is(err, service.ErrPaymentMethodUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func truncateCallbackLogValue(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if len(raw) <= callbackLogValueLimit {
		return raw
	}
	return raw[:callbackLogValueLimit] + "...(truncated)"
}

func callbackRawBodyForLog(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	return truncateCallbackLogValue(string(body))
}

func callbackRawFormForLog(form map[string][]string) map[string]interface{} {
	result := make(map[string]interface{}, len(form))
	for key, values := range form {
		if key == "sign" {
			continue
		}
		if len(values) == 0 {
			result[key] = ""
			continue
		}
		if len(values) == 1 {
			result[key] = truncateCallbackLogValue(values[0])
			continue
		}
		copied := make([]string, 0, len(values))
		for _, value := range values {
			copied = append(copied, truncateCallbackLogValue(value))
		}
		result[key] = copied
	}
	return result
}
