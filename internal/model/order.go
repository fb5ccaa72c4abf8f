package model

import (
	"time"
)

// 订单状态
const (
	OrderStatusPending  = "pending"
	OrderStatusSuccess  = "success"
	OrderStatusFailed   = "failed"
	OrderStatusRefunded = "refunded"
)

type PaymentOrder struct {
	ID          int64      `gorm:"primaryKey" json:"id"`
	OrderNo     string     `gorm:"size:64;uniqueIndex;not null" json:"order_no"`
	UserID      int64      `gorm:"not null;index" json:"user_id"`
	PackageID   string     `gorm:"size:50;not null" json:"package_id"`
	Amount      int        `gorm:"not null" json:"amount"` // 金额（分）
	Credits     int        `gorm:"not null" json:"credits"`
	Status      string     `gorm:"size:20;default:pending;index" json:"status"` // pending, success, failed, refunded
	PaymentType string     `gorm:"size:20;not null" json:"payment_type"`        // wechat, alipay
	TradeNo     string     `gorm:"size:100" json:"trade_no,omitempty"`          // 网关侧交易号
	CreatedAt   time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
}

func (PaymentOrder) TableName() string {
	return "payment_orders"
}
