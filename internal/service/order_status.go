package service

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/qingyi232/QuizMate1-sub002/internal/constants"
)

// 订单状态只能前进，不允许回退
var allowedTransitions = map[string]map[string]bool{
	constants.OrderStatusPending: {
		constants.OrderStatusPaid:      true,
		constants.OrderStatusCancelled: true,
	},
	constants.OrderStatusPaid: {
		constants.OrderStatusRefunded: true,
	},
}

func isTransitionAllowed(current, target string) bool {
	nexts, ok := allowedTransitions[current]
	if !ok {
		return false
	}
	return nexts[target]
}

// generateOrderID 订单号：支付方式前缀 + 秒级时间戳 + 10 位随机数字
func generateOrderID(prefix string, now time.Time) (string, error) {
	return generateOrderIDFrom(rand.Reader, prefix, now)
}

func generateOrderIDFrom(entropy io.Reader, prefix string, now time.Time) (string, error) {
	digits, err := randNumeric(entropy, 10)
	if err != nil {
		return "", fmt.Errorf("generate order id: %w", err)
	}
	return prefix + now.Format("20060102150405") + digits, nil
}

func randNumeric(entropy io.Reader, length int) (string, error) {
	var b strings.Builder
	for i := 0; i < length; i++ {
		n, err := rand.Int(entropy, big.NewInt(10))
		if err != nil {
			return "", err
		}
		b.WriteString(strconv.FormatInt(n.Int64(), 10))
	}
	return b.String(), nil
}
