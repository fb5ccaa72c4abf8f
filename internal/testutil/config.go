package testutil

import (
	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/config"
)

// TestConfig 返回服务层测试用的最小配置
func TestConfig() *config.Config {
	return &config.Config{
		JWT: config.JWTConfig{
			Secret:      "test-secret",
			ExpireHours: 24,
		},
		Provider: config.ProviderConfig{
			Name:           "test-provider",
			BaseURL:        "http://localhost:9999",
			Model:          "test-model",
			TimeoutSeconds: 5,
		},
		Payment: config.PaymentConfig{
			GatewayURL: "https://pay.example.com/submit.php",
			PID:        "1001",
			Key:        "test-pay-key",
			NotifyURL:  "http://localhost:8080/api/payment/notify",
			ReturnURL:  "http://localhost:8080/payment/return",
			Packages: []config.CreditPackage{
				{ID: "basic", Name: "基础包", Amount: 990, Credits: 100},
				{ID: "pro", Name: "进阶包", Amount: 2990, Credits: 350},
			},
		},
		Task: config.TaskConfig{
			CostPerImage:         1,
			TimeoutHours:         12,
			SweepBatch:           100,
			SweepIntervalMinutes: 10,
		},
		Throttle: config.ThrottleConfig{
			WindowMs:         10000,
			MaxRequests:      10,
			MinIntervalMs:    500,
			IdleEvictSeconds: 300,
		},
		Cron: config.CronConfig{
			Secret: "test-cron-secret",
		},
	}
}
