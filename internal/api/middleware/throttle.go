package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/pkg/response"
	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/pkg/throttle"
)

// Throttle 请求限流中间件。同一调用方对同一资源的高频请求被拒绝，
// 记账键优先取认证后的用户 ID，未认证时退回客户端 IP。
// 带路径参数的路由按具体资源分别记账：轮询任务 A 不占用任务 B 的配额。
func Throttle(limiter *throttle.Limiter, resource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := throttleKey(c, resource)

		result := limiter.CheckAndRecord(key, time.Now())
		if !result.Allowed {
			retryAfterMs := result.RetryAfter.Milliseconds()
			c.Header("Retry-After", strconv.FormatInt((retryAfterMs+999)/1000, 10))
			response.RateLimited(c, retryAfterMs)
			c.Abort()
			return
		}

		c.Next()
	}
}

func throttleKey(c *gin.Context, resource string) string {
	if id := c.Param("id"); id != "" {
		resource = resource + ":" + id
	}
	if userID, ok := GetUserID(c); ok {
		return "u:" + strconv.FormatInt(userID, 10) + ":" + resource
	}
	return "ip:" + c.ClientIP() + ":" + resource
}
