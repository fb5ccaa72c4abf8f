package handler

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"

	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/pkg/cron"
	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/pkg/response"
)

// CronHandler 定时任务的外部触发入口，供外部调度器调用
type CronHandler struct {
	cronService *cron.Service
	secret      string
}

func NewCronHandler(cronService *cron.Service, secret string) *CronHandler {
	return &CronHandler{
		cronService: cronService,
		secret:      secret,
	}
}

// SweepTimeouts 立即执行一次超时任务清扫
// POST /api/v1/cron/sweep-timeouts?secret=xxx
func (h *CronHandler) SweepTimeouts(c *gin.Context) {
	secret := c.Query("secret")
	if h.secret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(h.secret)) != 1 {
		response.AuthError(c, "")
		return
	}

	swept, err := h.cronService.RunNow()
	if err != nil {
		response.ServerError(c, "")
		return
	}

	response.Success(c, gin.H{"swept": swept})
}
