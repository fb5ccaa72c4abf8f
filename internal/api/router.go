package api

import (
	"github.com/gin-gonic/gin"

	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/config"
	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/api/handler"
	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/api/middleware"
	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/pkg/throttle"
)

type Router struct {
	taskHandler      *handler.TaskHandler
	creditHandler    *handler.CreditHandler
	paymentHandler   *handler.PaymentHandler
	cronHandler      *handler.CronHandler
	websocketHandler *handler.WebSocketHandler
	limiter          *throttle.Limiter
	cfg              *config.Config
}

func NewRouter(
	taskHandler *handler.TaskHandler,
	creditHandler *handler.CreditHandler,
	paymentHandler *handler.PaymentHandler,
	cronHandler *handler.CronHandler,
	websocketHandler *handler.WebSocketHandler,
	limiter *throttle.Limiter,
	cfg *config.Config,
) *Router {
	return &Router{
		taskHandler:      taskHandler,
		creditHandler:    creditHandler,
		paymentHandler:   paymentHandler,
		cronHandler:      cronHandler,
		websocketHandler: websocketHandler,
		limiter:          limiter,
		cfg:              cfg,
	}
}

func (r *Router) Setup() *gin.Engine {
	if r.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS(r.cfg.CORS))

	api := engine.Group("/api/v1")
	{
		// WebSocket 进度推送
		api.GET("/ws", r.websocketHandler.Handle)

		// 公开接口 - 支付网关回调与套餐列表
		payment := api.Group("/payment")
		{
			payment.GET("/notify", r.paymentHandler.Notify)
			payment.GET("/packages", r.paymentHandler.Packages)
		}

		// 外部调度器触发入口
		api.POST("/cron/sweep-timeouts", r.cronHandler.SweepTimeouts)

		// 需要认证的接口
		authenticated := api.Group("")
		authenticated.Use(middleware.Auth(r.cfg.JWT.Secret))
		{
			// 生成任务。创建和轮询是高频入口，单独限流
			tasks := authenticated.Group("/tasks")
			{
				tasks.POST("", middleware.Throttle(r.limiter, "create_task"), r.taskHandler.Create)
				tasks.GET("", r.taskHandler.List)
				tasks.GET("/:id", middleware.Throttle(r.limiter, "poll_task"), r.taskHandler.Get)
				tasks.POST("/:id/cancel", r.taskHandler.Cancel)
			}

			// 积分
			credits := authenticated.Group("/credits")
			{
				credits.GET("/balance", r.creditHandler.Balance)
				credits.GET("/entries", r.creditHandler.Entries)
			}

			// 支付订单
			orders := authenticated.Group("/payment/orders")
			{
				orders.POST("", r.paymentHandler.CreateOrder)
				orders.GET("/:order_no", r.paymentHandler.GetOrder)
			}
		}
	}

	return engine
}
