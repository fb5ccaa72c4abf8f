package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/model"
)

type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// WithTx 返回绑定到事务的仓库
func (r *TaskRepository) WithTx(tx *gorm.DB) *TaskRepository {
	return &TaskRepository{db: tx}
}

func (r *TaskRepository) Create(task *model.ImageTask) error {
	return r.db.Create(task).Error
}

func (r *TaskRepository) GetByID(id int64) (*model.ImageTask, error) {
	var task model.ImageTask
	err := r.db.Where("id = ?", id).First(&task).Error
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// GetByRequestID 按客户端幂等键查询
func (r *TaskRepository) GetByRequestID(userID int64, requestID string) (*model.ImageTask, error) {
	var task model.ImageTask
	err := r.db.Where("user_id = ? AND request_id = ?", userID, requestID).First(&task).Error
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// UpdateWithVersion 乐观锁更新：只有 lock_version 匹配才生效。
// 返回受影响行数，0 表示版本已过期。updates 由调用方携带 lock_version+1。
func (r *TaskRepository) UpdateWithVersion(id int64, expectedVersion int, updates map[string]interface{}) (int64, error) {
	res := r.db.Model(&model.ImageTask{}).
		Where("id = ? AND lock_version = ?", id, expectedVersion).
		Updates(updates)
	return res.RowsAffected, res.Error
}

// ListByUserID 分页查询用户任务
func (r *TaskRepository) ListByUserID(userID int64, page, pageSize int) ([]*model.ImageTask, int64, error) {
	var tasks []*model.ImageTask
	var total int64

	query := r.db.Model(&model.ImageTask{}).Where("user_id = ?", userID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&tasks).Error
	return tasks, total, err
}

// ListTimedOut 查询超时未完结的任务（pending/processing 且创建时间早于 before）
func (r *TaskRepository) ListTimedOut(before time.Time, limit int) ([]*model.ImageTask, error) {
	var tasks []*model.ImageTask
	err := r.db.Where("status IN ? AND created_at < ?",
		[]string{model.TaskStatusPending, model.TaskStatusProcessing}, before).
		Order("created_at ASC").
		Limit(limit).
		Find(&tasks).Error
	return tasks, err
}
