package dto

// CreateTaskRequest 创建生成任务请求
type CreateTaskRequest struct {
	Prompt      string `json:"prompt" binding:"required"`
	Style       string `json:"style"`
	AspectRatio string `json:"aspect_ratio"`
	RequestID   string `json:"request_id"` // 客户端幂等键，可选
}

type CreateTaskResponse struct {
	TaskID int64 `json:"task_id"`
}

// TaskStatusResponse 任务状态轮询响应
type TaskStatusResponse struct {
	TaskID       int64  `json:"task_id"`
	Status       string `json:"status"`
	Progress     int    `json:"progress"`
	Stage        string `json:"stage,omitempty"`
	ImageURL     string `json:"image_url,omitempty"`
	ErrorMessage string `json:"error,omitempty"`
	WaitSeconds  int    `json:"wait_seconds,omitempty"` // 已等待秒数
	CreatedAt    string `json:"created_at"`
	CompletedAt  string `json:"completed_at,omitempty"`
}

type TaskListItem struct {
	TaskID      int64  `json:"task_id"`
	Prompt      string `json:"prompt"`
	Style       string `json:"style,omitempty"`
	Status      string `json:"status"`
	ImageURL    string `json:"image_url,omitempty"`
	CreatedAt   string `json:"created_at"`
	CompletedAt string `json:"completed_at,omitempty"`
}
