package service

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/config"
	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/model"
	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/pkg/queue"
	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/repository"
)

var (
	ErrTaskNotFound      = errors.New("任务不存在")
	ErrTaskPermission    = errors.New("无权操作此任务")
	ErrEmptyPrompt       = errors.New("提示词不能为空")
	ErrTaskConflict      = errors.New("任务版本冲突，请重试")
	ErrInvalidTransition = errors.New("非法的任务状态变更")
)

// 任务状态机：pending -> processing -> {completed, failed}，
// pending/processing 可被取消，sweeper 可把未完结任务直接置为 failed。
var taskTransitions = map[string][]string{
	model.TaskStatusPending:    {model.TaskStatusProcessing, model.TaskStatusFailed, model.TaskStatusCancelled},
	model.TaskStatusProcessing: {model.TaskStatusCompleted, model.TaskStatusFailed, model.TaskStatusCancelled},
}

// TransitionPatch 状态变更时一并落库的字段
type TransitionPatch struct {
	Progress         *int
	Stage            string
	ErrorMessage     string
	ImageURL         string
	IncrementAttempt bool
}

type TaskService struct {
	taskRepo      *repository.TaskRepository
	creditService *CreditService
	taskQueue     *queue.Queue
	cfg           *config.Config
}

func NewTaskService(
	taskRepo *repository.TaskRepository,
	creditService *CreditService,
	taskQueue *queue.Queue,
	cfg *config.Config,
) *TaskService {
	return &TaskService{
		taskRepo:      taskRepo,
		creditService: creditService,
		taskQueue:     taskQueue,
		cfg:           cfg,
	}
}

// CreateTask 创建生成任务。带 request_id 时同键重复提交返回已有任务。
// 余额只做前置提示性校验，真正的扣费约束在完成扣费时由账本保证。
func (s *TaskService) CreateTask(ctx context.Context, userID int64, prompt, style, aspectRatio, requestID string) (*model.ImageTask, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, ErrEmptyPrompt
	}

	if requestID != "" {
		existing, err := s.taskRepo.GetByRequestID(userID, requestID)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	balance, err := s.creditService.GetBalance(userID)
	if err != nil {
		return nil, err
	}
	if balance < s.cfg.Task.CostPerImage {
		return nil, ErrInsufficientCredits
	}

	task := &model.ImageTask{
		UserID:      userID,
		Prompt:      prompt,
		Style:       style,
		AspectRatio: aspectRatio,
		Status:      model.TaskStatusPending,
		Provider:    s.cfg.Provider.Name,
		Model:       s.cfg.Provider.Model,
		LockVersion: 0,
	}
	if requestID != "" {
		task.RequestID = &requestID
	}

	if err := s.taskRepo.Create(task); err != nil {
		// 同键并发创建撞唯一索引，回读已有任务
		if requestID != "" {
			if existing, getErr := s.taskRepo.GetByRequestID(userID, requestID); getErr == nil {
				return existing, nil
			}
		}
		return nil, err
	}

	if s.taskQueue != nil {
		msg := &queue.TaskMessage{
			TaskID:      task.ID,
			UserID:      task.UserID,
			Prompt:      task.Prompt,
			Style:       task.Style,
			AspectRatio: task.AspectRatio,
			Model:       task.Model,
		}
		// 入队失败不回滚任务：滞留的 pending 任务由超时清扫兜底置为 failed
		if err := s.taskQueue.Push(ctx, msg); err != nil {
			log.Printf("Task %d: failed to enqueue: %v", task.ID, err)
		}
	}

	return task, nil
}

// Poll 只读查询当前状态，轮询走这里，无副作用
func (s *TaskService) Poll(taskID int64) (*model.ImageTask, error) {
	task, err := s.taskRepo.GetByID(taskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	return task, nil
}

// Transition 乐观锁状态变更。lock_version 不匹配返回 ErrTaskConflict，
// 调用方需重读后重试；状态机不允许的边返回 ErrInvalidTransition。
func (s *TaskService) Transition(taskID int64, expectedVersion int, toStatus string, patch *TransitionPatch) (*model.ImageTask, error) {
	task, err := s.taskRepo.GetByID(taskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}

	if task.LockVersion != expectedVersion {
		return nil, ErrTaskConflict
	}
	if !transitionAllowed(task.Status, toStatus) {
		return nil, ErrInvalidTransition
	}

	updates := map[string]interface{}{
		"status":       toStatus,
		"lock_version": expectedVersion + 1,
	}
	if patch != nil {
		if patch.Progress != nil {
			updates["progress"] = *patch.Progress
		}
		if patch.Stage != "" {
			updates["stage"] = patch.Stage
		}
		if patch.ErrorMessage != "" {
			updates["error_message"] = patch.ErrorMessage
		}
		if patch.ImageURL != "" {
			updates["image_url"] = patch.ImageURL
		}
		if patch.IncrementAttempt {
			updates["attempt_count"] = gorm.Expr("attempt_count + 1")
		}
	}
	switch toStatus {
	case model.TaskStatusCompleted, model.TaskStatusFailed, model.TaskStatusCancelled:
		updates["completed_at"] = time.Now()
	}

	rows, err := s.taskRepo.UpdateWithVersion(taskID, expectedVersion, updates)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		// 读后写之间被其他写者抢先
		return nil, ErrTaskConflict
	}

	return s.taskRepo.GetByID(taskID)
}

// Cancel 取消任务。已取消的重复取消视为成功；已完结返回非法变更。
// 版本冲突时重读重试，避免与 worker 的状态推进互相干扰。
func (s *TaskService) Cancel(userID, taskID int64) (*model.ImageTask, error) {
	for attempt := 0; attempt < 3; attempt++ {
		task, err := s.taskRepo.GetByID(taskID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrTaskNotFound
			}
			return nil, err
		}
		if task.UserID != userID {
			return nil, ErrTaskPermission
		}
		if task.Status == model.TaskStatusCancelled {
			return task, nil
		}

		updated, err := s.Transition(taskID, task.LockVersion, model.TaskStatusCancelled, nil)
		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, ErrTaskConflict) {
			return nil, err
		}
	}
	return nil, ErrTaskConflict
}

// List 分页查询用户任务
func (s *TaskService) List(userID int64, page, pageSize int) ([]*model.ImageTask, int64, error) {
	return s.taskRepo.ListByUserID(userID, page, pageSize)
}

// UpdateProgress 处理中任务的进度回写，不改状态但同样走版本号
func (s *TaskService) UpdateProgress(taskID int64, progress int, stage string) error {
	task, err := s.taskRepo.GetByID(taskID)
	if err != nil {
		return err
	}
	if task.Status != model.TaskStatusProcessing {
		return ErrInvalidTransition
	}

	updates := map[string]interface{}{
		"progress":     progress,
		"stage":        stage,
		"lock_version": task.LockVersion + 1,
	}
	rows, err := s.taskRepo.UpdateWithVersion(taskID, task.LockVersion, updates)
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrTaskConflict
	}
	return nil
}

// TimeoutSweep 清扫超时未完结任务，逐条按当前观察到的版本置为 failed。
// 每条都是版本守护的条件更新，清扫并发或重复执行都安全：
// 已被其他执行者改过的任务版本不再匹配，直接跳过，不会二次标记。
func (s *TaskService) TimeoutSweep(threshold time.Duration, batchLimit int) (int, error) {
	before := time.Now().Add(-threshold)
	tasks, err := s.taskRepo.ListTimedOut(before, batchLimit)
	if err != nil {
		return 0, err
	}

	failed := 0
	for _, task := range tasks {
		_, err := s.Transition(task.ID, task.LockVersion, model.TaskStatusFailed, &TransitionPatch{
			ErrorMessage: "task timeout",
		})
		if err != nil {
			if errors.Is(err, ErrTaskConflict) || errors.Is(err, ErrInvalidTransition) {
				continue // 已被其他写者处理
			}
			return failed, err
		}
		failed++
	}

	if failed > 0 {
		log.Printf("Timeout sweep: marked %d tasks as failed (threshold %s)", failed, threshold)
	}
	return failed, nil
}

func transitionAllowed(from, to string) bool {
	for _, allowed := range taskTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
