package model

import (
	"time"
)

// 任务状态
const (
	TaskStatusPending    = "pending"
	TaskStatusProcessing = "processing"
	TaskStatusCompleted  = "completed"
	TaskStatusFailed     = "failed"
	TaskStatusCancelled  = "cancelled"
)

type ImageTask struct {
	ID           int64      `gorm:"primaryKey" json:"id"`
	UserID       int64      `gorm:"not null;index;uniqueIndex:uk_user_request" json:"user_id"`
	Prompt       string     `gorm:"type:text;not null" json:"prompt"`
	Style        string     `gorm:"size:50" json:"style,omitempty"`
	AspectRatio  string     `gorm:"size:20" json:"aspect_ratio,omitempty"`
	Status       string     `gorm:"size:20;default:pending;index" json:"status"` // pending, processing, completed, failed, cancelled
	Provider     string     `gorm:"size:50;not null" json:"provider"`
	Model        string     `gorm:"size:50" json:"model,omitempty"`
	RequestID    *string    `gorm:"size:64;uniqueIndex:uk_user_request" json:"request_id,omitempty"` // 客户端去重键
	AttemptCount int        `gorm:"default:0" json:"attempt_count"`
	Progress     int        `gorm:"default:0" json:"progress"`
	Stage        string     `gorm:"size:50" json:"stage,omitempty"`
	ErrorMessage string     `gorm:"type:text" json:"error_message,omitempty"`
	ImageURL     string     `gorm:"size:500" json:"image_url,omitempty"`
	LockVersion  int        `gorm:"not null;default:0" json:"lock_version"` // 每次成功更新 +1
	CreatedAt    time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

func (ImageTask) TableName() string {
	return "image_tasks"
}

// IsTerminal 是否已到终态
func (t *ImageTask) IsTerminal() bool {
	switch t.Status {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	}
	return false
}
