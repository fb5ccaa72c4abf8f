package handler

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/api/middleware"
	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/model"
	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/model/dto"
	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/pkg/response"
	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/service"
)

type TaskHandler struct {
	taskService *service.TaskService
}

func NewTaskHandler(taskService *service.TaskService) *TaskHandler {
	return &TaskHandler{
		taskService: taskService,
	}
}

// Create 创建生成任务
// POST /api/v1/tasks
func (h *TaskHandler) Create(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	task, err := h.taskService.CreateTask(c.Request.Context(), userID, req.Prompt, req.Style, req.AspectRatio, req.RequestID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmptyPrompt):
			response.ParamError(c, err.Error())
		case errors.Is(err, service.ErrInsufficientCredits):
			response.CreditsError(c, err.Error())
		default:
			response.ServerError(c, "")
		}
		return
	}

	response.SuccessWithMessage(c, "任务已创建", dto.CreateTaskResponse{TaskID: task.ID})
}

// Get 轮询任务状态
// GET /api/v1/tasks/:id
func (h *TaskHandler) Get(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	taskID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "无效的任务ID")
		return
	}

	task, err := h.taskService.Poll(taskID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTaskNotFound):
			response.NotFoundError(c, err.Error())
		default:
			response.ServerError(c, "")
		}
		return
	}
	if task.UserID != userID {
		response.PermissionError(c, "")
		return
	}

	response.Success(c, toTaskStatus(task))
}

// Cancel 取消任务
// POST /api/v1/tasks/:id/cancel
func (h *TaskHandler) Cancel(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	taskID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "无效的任务ID")
		return
	}

	task, err := h.taskService.Cancel(userID, taskID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTaskNotFound):
			response.NotFoundError(c, err.Error())
		case errors.Is(err, service.ErrTaskPermission):
			response.PermissionError(c, err.Error())
		case errors.Is(err, service.ErrInvalidTransition):
			response.ConflictError(c, "任务已完结，无法取消")
		case errors.Is(err, service.ErrTaskConflict):
			response.ConflictError(c, err.Error())
		default:
			response.ServerError(c, "")
		}
		return
	}

	response.SuccessWithMessage(c, "已取消", toTaskStatus(task))
}

// List 获取任务列表
// GET /api/v1/tasks
func (h *TaskHandler) List(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	tasks, total, err := h.taskService.List(userID, page, pageSize)
	if err != nil {
		response.ServerError(c, "")
		return
	}

	items := make([]dto.TaskListItem, 0, len(tasks))
	for _, task := range tasks {
		item := dto.TaskListItem{
			TaskID:    task.ID,
			Prompt:    task.Prompt,
			Style:     task.Style,
			Status:    task.Status,
			ImageURL:  task.ImageURL,
			CreatedAt: task.CreatedAt.Format(time.RFC3339),
		}
		if task.CompletedAt != nil {
			item.CompletedAt = task.CompletedAt.Format(time.RFC3339)
		}
		items = append(items, item)
	}

	response.SuccessPage(c, total, page, pageSize, items)
}

func toTaskStatus(task *model.ImageTask) *dto.TaskStatusResponse {
	resp := &dto.TaskStatusResponse{
		TaskID:       task.ID,
		Status:       task.Status,
		Progress:     task.Progress,
		Stage:        task.Stage,
		ImageURL:     task.ImageURL,
		ErrorMessage: task.ErrorMessage,
		CreatedAt:    task.CreatedAt.Format(time.RFC3339),
	}
	if task.CompletedAt != nil {
		resp.CompletedAt = task.CompletedAt.Format(time.RFC3339)
	} else if !task.IsTerminal() {
		resp.WaitSeconds = int(time.Since(task.CreatedAt).Seconds())
	}
	return resp
}
