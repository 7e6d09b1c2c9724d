package admin

import "github.com/qingyi232/QuizMate1-sub002/internal/provider"

// Handler 后台管理接口处理器入口
// 说明：该处理器仅用于运营后台 API（订单、对账异常、用户订阅）。
type Handler struct {
	*provider.Container
}

// New 创建后台处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}
