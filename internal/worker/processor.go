package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path"
	"strings"

	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/config"
	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/model"
	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/pkg/oss"
	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/pkg/provider"
	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/pkg/pubsub"
	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/pkg/queue"
	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/service"
)

// Processor 生成任务处理器。状态推进全部走版本号守护的变更，
// 与用户取消、超时清扫并发时最多只有一方成功。
type Processor struct {
	taskService   *service.TaskService
	creditService *service.CreditService
	providerCli   *provider.Client
	ossClient     *oss.Client
	publisher     *pubsub.Publisher
	cfg           *config.Config
}

// NewProcessor 创建任务处理器
func NewProcessor(
	taskService *service.TaskService,
	creditService *service.CreditService,
	providerCli *provider.Client,
	ossClient *oss.Client,
	publisher *pubsub.Publisher,
	cfg *config.Config,
) *Processor {
	return &Processor{
		taskService:   taskService,
		creditService: creditService,
		providerCli:   providerCli,
		ossClient:     ossClient,
		publisher:     publisher,
		cfg:           cfg,
	}
}

// Process 处理生成任务。返回 nil 表示消息已消费完毕（含跳过），
// 返回错误仅用于日志，不触发重投递。
func (p *Processor) Process(ctx context.Context, msg *queue.TaskMessage) error {
	task, err := p.taskService.Poll(msg.TaskID)
	if err != nil {
		if errors.Is(err, service.ErrTaskNotFound) {
			log.Printf("Task %d: not found, dropping message", msg.TaskID)
			return nil
		}
		return fmt.Errorf("failed to load task: %w", err)
	}

	// 领取任务：pending -> processing。被取消或已被其他 worker
	// 领取的任务在这里被拒掉，直接丢弃消息
	progress := pubsub.StageProgress[pubsub.StageGenerating]
	claimed, err := p.taskService.Transition(task.ID, task.LockVersion, model.TaskStatusProcessing, &service.TransitionPatch{
		Progress:         &progress,
		Stage:            pubsub.StageGenerating,
		IncrementAttempt: true,
	})
	if err != nil {
		if errors.Is(err, service.ErrTaskConflict) || errors.Is(err, service.ErrInvalidTransition) {
			log.Printf("Task %d: skipped (status=%s): %v", msg.TaskID, task.Status, err)
			return nil
		}
		return fmt.Errorf("failed to claim task: %w", err)
	}
	task = claimed

	p.publishProgress(ctx, task, pubsub.StageGenerating, "")

	imageURL, err := p.providerCli.Generate(ctx, msg.Prompt, msg.Style, msg.AspectRatio, msg.Model)
	if err != nil {
		return p.fail(ctx, task.ID, fmt.Errorf("生成失败: %w", err))
	}

	// 生成的临时 URL 转存到自有存储，转存失败时保留原始 URL 兜底
	if p.ossClient != nil {
		p.updateProgress(ctx, task.ID, pubsub.StageUploading)
		if stored := p.reupload(ctx, task.ID, imageURL); stored != "" {
			imageURL = stored
		}
	}

	// 完成。处理期间被取消的任务版本已变，这里的条件更新不会命中，
	// 取消的任务不产生扣费
	current, err := p.taskService.Poll(task.ID)
	if err != nil {
		return fmt.Errorf("failed to reload task: %w", err)
	}
	done := pubsub.StageProgress[pubsub.StageDone]
	completed, err := p.taskService.Transition(current.ID, current.LockVersion, model.TaskStatusCompleted, &service.TransitionPatch{
		Progress: &done,
		Stage:    pubsub.StageDone,
		ImageURL: imageURL,
	})
	if err != nil {
		if errors.Is(err, service.ErrTaskConflict) || errors.Is(err, service.ErrInvalidTransition) {
			log.Printf("Task %d: completion rejected (cancelled or swept), no debit", task.ID)
			return nil
		}
		return fmt.Errorf("failed to complete task: %w", err)
	}

	// 完成后扣费。按任务号做幂等键，消息重复消费不会重复扣
	debitKey := fmt.Sprintf("task-%d", completed.ID)
	if _, err := p.creditService.Debit(completed.UserID, p.cfg.Task.CostPerImage, debitKey, "图片生成扣费"); err != nil {
		if errors.Is(err, service.ErrInsufficientCredits) {
			log.Printf("Task %d: debit skipped, insufficient credits (user %d)", completed.ID, completed.UserID)
		} else {
			log.Printf("Task %d: debit failed: %v", completed.ID, err)
		}
	}

	p.publishProgress(ctx, completed, pubsub.StageDone, "")
	log.Printf("Task %d: completed, image=%s", completed.ID, imageURL)
	return nil
}

// fail 把任务置为 failed 并推送失败消息
func (p *Processor) fail(ctx context.Context, taskID int64, cause error) error {
	task, err := p.taskService.Poll(taskID)
	if err != nil {
		return cause
	}

	failed, err := p.taskService.Transition(task.ID, task.LockVersion, model.TaskStatusFailed, &service.TransitionPatch{
		ErrorMessage: cause.Error(),
	})
	if err != nil {
		log.Printf("Task %d: failed to mark failed: %v", taskID, err)
		return cause
	}

	p.publishProgress(ctx, failed, failed.Stage, cause.Error())
	return cause
}

// updateProgress 回写进度并推送，失败只记日志不影响主流程
func (p *Processor) updateProgress(ctx context.Context, taskID int64, stage string) {
	if err := p.taskService.UpdateProgress(taskID, pubsub.StageProgress[stage], stage); err != nil {
		log.Printf("Task %d: failed to update progress: %v", taskID, err)
		return
	}
	if task, err := p.taskService.Poll(taskID); err == nil {
		p.publishProgress(ctx, task, stage, "")
	}
}

// reupload 下载生成的图片并转存 OSS，返回空串表示转存失败
func (p *Processor) reupload(ctx context.Context, taskID int64, imageURL string) string {
	data, err := p.providerCli.Download(ctx, imageURL)
	if err != nil {
		log.Printf("Task %d: failed to download image: %v", taskID, err)
		return ""
	}

	ext := path.Ext(imageURL)
	if idx := strings.IndexByte(ext, '?'); idx >= 0 {
		ext = ext[:idx]
	}
	if ext == "" {
		ext = ".png"
	}

	url, err := p.ossClient.UploadImage(taskID, data, ext)
	if err != nil {
		log.Printf("Task %d: failed to upload image to OSS: %v", taskID, err)
		return ""
	}
	return url
}

func (p *Processor) publishProgress(ctx context.Context, task *model.ImageTask, stage, errMsg string) {
	if p.publisher == nil {
		return
	}
	msg := &pubsub.ProgressMessage{
		Type:     "task_progress",
		UserID:   task.UserID,
		TaskID:   task.ID,
		Status:   task.Status,
		Stage:    stage,
		Progress: task.Progress,
		Message:  pubsub.StageMessages[stage],
		ImageURL: task.ImageURL,
		Error:    errMsg,
	}
	if err := p.publisher.PublishProgress(ctx, msg); err != nil {
		log.Printf("Task %d: failed to publish progress: %v", task.ID, err)
	}
}
