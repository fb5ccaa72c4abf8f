package cron

import (
	"log"
	"time"

	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/service"
)

type Service struct {
	taskService   *service.TaskService
	timeoutHours  int
	sweepInterval time.Duration
	sweepBatch    int
	stopChan      chan struct{}
}

func NewService(
	taskService *service.TaskService,
	timeoutHours int,
	sweepIntervalMinutes int,
	sweepBatch int,
) *Service {
	if timeoutHours <= 0 {
		timeoutHours = 12
	}
	if sweepIntervalMinutes <= 0 {
		sweepIntervalMinutes = 10
	}
	if sweepBatch <= 0 {
		sweepBatch = 100
	}
	return &Service{
		taskService:   taskService,
		timeoutHours:  timeoutHours,
		sweepInterval: time.Duration(sweepIntervalMinutes) * time.Minute,
		sweepBatch:    sweepBatch,
		stopChan:      make(chan struct{}),
	}
}

// Start 启动定时任务
func (s *Service) Start() {
	go s.runTimeoutSweep()
	log.Println("Cron service started (task timeout sweep)")
}

// Stop 停止定时任务
func (s *Service) Stop() {
	close(s.stopChan)
	log.Println("Cron service stopped")
}

// runTimeoutSweep 周期扫描超时任务
func (s *Service) runTimeoutSweep() {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.sweepOnce()
		}
	}
}

func (s *Service) sweepOnce() {
	threshold := time.Duration(s.timeoutHours) * time.Hour
	swept, err := s.taskService.TimeoutSweep(threshold, s.sweepBatch)
	if err != nil {
		log.Printf("Timeout sweep failed: %v", err)
		return
	}
	if swept > 0 {
		log.Printf("Timeout sweep completed: %d tasks marked failed", swept)
	}
}

// RunNow 立即执行一次超时扫描（用于手动触发）
func (s *Service) RunNow() (int, error) {
	log.Println("Manual timeout sweep triggered...")
	return s.taskService.TimeoutSweep(time.Duration(s.timeoutHours)*time.Hour, s.sweepBatch)
}
