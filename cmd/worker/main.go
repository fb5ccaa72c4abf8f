package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/config"
	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/database"
	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/pkg/oss"
	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/pkg/provider"
	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/pkg/pubsub"
	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/pkg/queue"
	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/repository"
	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/service"
	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/worker"
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
	log.Println("Database connected")

	// 初始化 Redis
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect redis: %v", err)
	}
	log.Println("Redis connected")

	// 初始化 OSS（可选，未配置时保留服务商原始 URL）
	var ossClient *oss.Client
	if cfg.OSS.Endpoint != "" && cfg.OSS.AccessKeyID != "" {
		ossClient, err = oss.NewClient(&cfg.OSS)
		if err != nil {
			log.Printf("Warning: Failed to init OSS client: %v", err)
		} else {
			log.Println("OSS client initialized")
		}
	}

	// 初始化 Queue 和 Pub/Sub
	taskQueue := queue.NewQueue(rdb, cfg.Queue.TaskQueue)
	publisher := pubsub.NewPublisher(rdb)

	// 初始化 Service
	taskRepo := repository.NewTaskRepository(db)
	creditRepo := repository.NewCreditRepository(db)
	creditService := service.NewCreditService(db, creditRepo)
	taskService := service.NewTaskService(taskRepo, creditService, taskQueue, cfg)

	providerCli := provider.NewClient(&cfg.Provider)

	// 创建任务处理器
	processor := worker.NewProcessor(taskService, creditService, providerCli, ossClient, publisher, cfg)

	// 创建 context 用于优雅关闭
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 监听退出信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Println("Received shutdown signal")
		cancel()
	}()

	log.Printf("Worker started, max workers: %d", cfg.Queue.MaxWorkers)

	// 启动 worker 循环
	for i := 0; i < cfg.Queue.MaxWorkers; i++ {
		go func(workerID int) {
			for {
				select {
				case <-ctx.Done():
					log.Printf("Worker %d shutting down", workerID)
					return
				default:
					// 从队列获取任务
					msg, err := taskQueue.Pop(ctx, 5*time.Second)
					if err != nil {
						if ctx.Err() != nil {
							return
						}
						log.Printf("Worker %d: failed to pop task: %v", workerID, err)
						continue
					}

					if msg == nil {
						continue // 超时，继续等待
					}

					log.Printf("Worker %d: processing task %d", workerID, msg.TaskID)
					if err := processor.Process(ctx, msg); err != nil {
						log.Printf("Worker %d: task %d failed: %v", workerID, msg.TaskID, err)
					}
				}
			}
		}(i)
	}

	// 等待 context 取消
	<-ctx.Done()
	log.Println("Worker shutdown complete")
}
