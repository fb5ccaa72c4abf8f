package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/model"
)

type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// WithTx 返回绑定到事务的仓库
func (r *OrderRepository) WithTx(tx *gorm.DB) *OrderRepository {
	return &OrderRepository{db: tx}
}

func (r *OrderRepository) Create(order *model.PaymentOrder) error {
	return r.db.Create(order).Error
}

func (r *OrderRepository) GetByOrderNo(orderNo string) (*model.PaymentOrder, error) {
	var order model.PaymentOrder
	err := r.db.Where("order_no = ?", orderNo).First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// MarkSuccess 条件更新 pending -> success，返回受影响行数。
// 0 行表示订单已不是 pending（重复通知或已被人工处理）。
func (r *OrderRepository) MarkSuccess(orderNo, tradeNo string, paidAt time.Time) (int64, error) {
	res := r.db.Model(&model.PaymentOrder{}).
		Where("order_no = ? AND status = ?", orderNo, model.OrderStatusPending).
		Updates(map[string]interface{}{
			"status":   model.OrderStatusSuccess,
			"trade_no": tradeNo,
			"paid_at":  paidAt,
		})
	return res.RowsAffected, res.Error
}

// MarkFailed 条件更新 pending -> failed
func (r *OrderRepository) MarkFailed(orderNo string) (int64, error) {
	res := r.db.Model(&model.PaymentOrder{}).
		Where("order_no = ? AND status = ?", orderNo, model.OrderStatusPending).
		Update("status", model.OrderStatusFailed)
	return res.RowsAffected, res.Error
}

// MarkRefunded 条件更新 success -> refunded
func (r *OrderRepository) MarkRefunded(orderNo string) (int64, error) {
	res := r.db.Model(&model.PaymentOrder{}).
		Where("order_no = ? AND status = ?", orderNo, model.OrderStatusSuccess).
		Update("status", model.OrderStatusRefunded)
	return res.RowsAffected, res.Error
}

// ListStuckPending 查询滞留超过给定时间的 pending 订单（人工对账用）
func (r *OrderRepository) ListStuckPending(before time.Time, limit int) ([]*model.PaymentOrder, error) {
	var orders []*model.PaymentOrder
	err := r.db.Where("status = ? AND created_at < ?", model.OrderStatusPending, before).
		Order("created_at ASC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}
