package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/go-redis/redis/v8"
)

const (
	ChannelTaskProgress = "task_progress"
)

// ProgressMessage 任务进度消息
type ProgressMessage struct {
	Type     string `json:"type"`
	UserID   int64  `json:"user_id"`
	TaskID   int64  `json:"task_id"`
	Status   string `json:"status"`
	Stage    string `json:"stage"`
	Progress int    `json:"progress"`
	Message  string `json:"message,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
	Error    string `json:"error,omitempty"`
}

// 生成阶段常量
const (
	StageQueued     = "queued"
	StageGenerating = "generating"
	StageUploading  = "uploading"
	StageDone       = "done"
)

// 阶段对应的进度百分比
var StageProgress = map[string]int{
	StageQueued:     10,
	StageGenerating: 40,
	StageUploading:  80,
	StageDone:       100,
}

// 阶段对应的消息
var StageMessages = map[string]string{
	StageQueued:     "任务已入队",
	StageGenerating: "正在生成图片",
	StageUploading:  "正在上传图片",
	StageDone:       "生成完成",
}

// Publisher Redis 发布者
type Publisher struct {
	client *redis.Client
}

// NewPublisher 创建发布者
func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// PublishProgress 发布进度消息
func (p *Publisher) PublishProgress(ctx context.Context, msg *ProgressMessage) error {
	msg.Type = "task_progress"

	// 自动填充进度和消息
	if msg.Progress == 0 && msg.Stage != "" {
		if progress, ok := StageProgress[msg.Stage]; ok {
			msg.Progress = progress
		}
	}
	if msg.Message == "" && msg.Stage != "" {
		if message, ok := StageMessages[msg.Stage]; ok {
			msg.Message = message
		}
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal progress message: %w", err)
	}

	return p.client.Publish(ctx, ChannelTaskProgress, data).Err()
}

// Subscriber Redis 订阅者，server 端消费进度消息转发给 WebSocket
type Subscriber struct {
	client *redis.Client
}

// NewSubscriber 创建订阅者
func NewSubscriber(client *redis.Client) *Subscriber {
	return &Subscriber{client: client}
}

// Run 阻塞消费进度消息，ctx 取消后退出
func (s *Subscriber) Run(ctx context.Context, handle func(*ProgressMessage)) error {
	sub := s.client.Subscribe(ctx, ChannelTaskProgress)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-ch:
			if !ok {
				return nil
			}
			var msg ProgressMessage
			if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
				log.Printf("Progress subscriber: bad payload: %v", err)
				continue
			}
			handle(&msg)
		}
	}
}
