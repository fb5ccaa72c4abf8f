package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	OSS      OSSConfig      `mapstructure:"oss"`
	Queue    QueueConfig    `mapstructure:"queue"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Provider ProviderConfig `mapstructure:"provider"`
	Payment  PaymentConfig  `mapstructure:"payment"`
	Task     TaskConfig     `mapstructure:"task"`
	Throttle ThrottleConfig `mapstructure:"throttle"`
	Cron     CronConfig     `mapstructure:"cron"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

type OSSConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	BucketName      string `mapstructure:"bucket_name"`
	CDNDomain       string `mapstructure:"cdn_domain"`
}

type QueueConfig struct {
	TaskQueue  string `mapstructure:"task_queue"`
	MaxWorkers int    `mapstructure:"max_workers"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

// ProviderConfig 图像生成服务商配置
type ProviderConfig struct {
	Name           string `mapstructure:"name"`
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// PaymentConfig 支付网关（易支付协议）配置
type PaymentConfig struct {
	GatewayURL string          `mapstructure:"gateway_url"`
	PID        string          `mapstructure:"pid"`
	Key        string          `mapstructure:"key"`
	NotifyURL  string          `mapstructure:"notify_url"`
	ReturnURL  string          `mapstructure:"return_url"`
	Packages   []CreditPackage `mapstructure:"packages"`
}

type CreditPackage struct {
	ID      string `mapstructure:"id"`
	Name    string `mapstructure:"name"`
	Amount  int    `mapstructure:"amount"` // 分
	Credits int    `mapstructure:"credits"`
}

type TaskConfig struct {
	CostPerImage         int `mapstructure:"cost_per_image"`
	TimeoutHours         int `mapstructure:"timeout_hours"`
	SweepBatch           int `mapstructure:"sweep_batch"`
	SweepIntervalMinutes int `mapstructure:"sweep_interval_minutes"`
}

type ThrottleConfig struct {
	WindowMs         int `mapstructure:"window_ms"`
	MaxRequests      int `mapstructure:"max_requests"`
	MinIntervalMs    int `mapstructure:"min_interval_ms"`
	IdleEvictSeconds int `mapstructure:"idle_evict_seconds"`
}

type CronConfig struct {
	Secret string `mapstructure:"secret"`
}

func Load(configPath string) (*Config, error) {
	// 优先尝试读取 config.local.yaml（包含真实密钥，不提交到git）
	dir := filepath.Dir(configPath)
	localConfigPath := filepath.Join(dir, "config.local.yaml")

	// 检查 config.local.yaml 是否存在
	if _, err := os.Stat(localConfigPath); err == nil {
		configPath = localConfigPath
	}

	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	// 环境变量覆盖
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// 阈值和限流常量都是策略配置，缺省值与线上一致
func applyDefaults(cfg *Config) {
	if cfg.Task.CostPerImage <= 0 {
		cfg.Task.CostPerImage = 1
	}
	if cfg.Task.TimeoutHours <= 0 {
		cfg.Task.TimeoutHours = 12
	}
	if cfg.Task.SweepBatch <= 0 {
		cfg.Task.SweepBatch = 100
	}
	if cfg.Task.SweepIntervalMinutes <= 0 {
		cfg.Task.SweepIntervalMinutes = 30
	}
	if cfg.Throttle.WindowMs <= 0 {
		cfg.Throttle.WindowMs = 10000
	}
	if cfg.Throttle.MaxRequests <= 0 {
		cfg.Throttle.MaxRequests = 10
	}
	if cfg.Throttle.MinIntervalMs <= 0 {
		cfg.Throttle.MinIntervalMs = 500
	}
	if cfg.Throttle.IdleEvictSeconds <= 0 {
		cfg.Throttle.IdleEvictSeconds = 300
	}
	if cfg.Queue.TaskQueue == "" {
		cfg.Queue.TaskQueue = "image_task_queue"
	}
	if cfg.Queue.MaxWorkers <= 0 {
		cfg.Queue.MaxWorkers = 4
	}
	if cfg.Provider.TimeoutSeconds <= 0 {
		cfg.Provider.TimeoutSeconds = 120
	}
}
