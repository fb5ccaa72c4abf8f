package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/config"
	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/api"
	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/api/handler"
	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/database"
	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/pkg/cron"
	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/pkg/epay"
	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/pkg/pubsub"
	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/pkg/queue"
	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/pkg/throttle"
	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/pkg/ws"
	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/repository"
	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/service"
)

func main() {
	// 加载配置
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化数据库
	db, err := database.NewMySQL(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect database: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	log.Println("Database connected")

	// 初始化 Redis
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect redis: %v", err)
	}
	log.Println("Redis connected")

	// 初始化 Queue
	taskQueue := queue.NewQueue(rdb, cfg.Queue.TaskQueue)

	// 初始化 WebSocket Hub
	wsHub := ws.NewHub()
	log.Println("WebSocket hub started")

	// 订阅 worker 推送的进度消息并转发给在线用户
	subscriber := pubsub.NewSubscriber(rdb)
	go func() {
		err := subscriber.Run(context.Background(), func(msg *pubsub.ProgressMessage) {
			if !wsHub.IsOnline(msg.UserID) {
				return
			}
			wsHub.SendToUser(msg.UserID, &ws.Message{Type: msg.Type, Data: msg})
		})
		if err != nil {
			log.Printf("Progress subscriber stopped: %v", err)
		}
	}()

	// 初始化 Repository
	taskRepo := repository.NewTaskRepository(db)
	creditRepo := repository.NewCreditRepository(db)
	orderRepo := repository.NewOrderRepository(db)

	// 初始化 Service
	creditService := service.NewCreditService(db, creditRepo)
	taskService := service.NewTaskService(taskRepo, creditService, taskQueue, cfg)
	gateway := epay.NewClient(&cfg.Payment)
	paymentService := service.NewPaymentService(db, orderRepo, creditService, gateway, cfg)
	cronService := cron.NewService(taskService, cfg.Task.TimeoutHours, cfg.Task.SweepIntervalMinutes, cfg.Task.SweepBatch)
	cronService.Start()
	defer cronService.Stop()

	// 初始化限流器
	limiter := throttle.NewLimiter(
		time.Duration(cfg.Throttle.WindowMs)*time.Millisecond,
		cfg.Throttle.MaxRequests,
		time.Duration(cfg.Throttle.MinIntervalMs)*time.Millisecond,
		time.Duration(cfg.Throttle.IdleEvictSeconds)*time.Second,
	)
	limiter.StartEviction(time.Minute)
	defer limiter.Stop()

	// 初始化 Handler
	taskHandler := handler.NewTaskHandler(taskService)
	creditHandler := handler.NewCreditHandler(creditService)
	paymentHandler := handler.NewPaymentHandler(paymentService)
	cronHandler := handler.NewCronHandler(cronService, cfg.Cron.Secret)
	websocketHandler := handler.NewWebSocketHandler(wsHub, cfg.JWT.Secret)

	// 初始化 Router
	router := api.NewRouter(
		taskHandler,
		creditHandler,
		paymentHandler,
		cronHandler,
		websocketHandler,
		limiter,
		cfg,
	)
	engine := router.Setup()

	// 启动服务器
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("Server starting on %s", addr)
	if err := engine.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
