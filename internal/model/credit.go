package model

import (
	"time"
)

// 流水操作类型
const (
	OperationRecharge = "recharge"
	OperationDebit    = "debit"
	OperationRefund   = "refund"
)

type CreditAccount struct {
	ID          int64     `gorm:"primaryKey" json:"id"`
	UserID      int64     `gorm:"uniqueIndex;not null" json:"user_id"`
	Credits     int       `gorm:"not null;default:0" json:"credits"` // 始终 >= 0
	LastOrderNo string    `gorm:"size:64" json:"last_order_no,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (CreditAccount) TableName() string {
	return "credit_accounts"
}

// CreditLedgerEntry 积分流水，只追加不修改
type CreditLedgerEntry struct {
	ID             int64     `gorm:"primaryKey" json:"id"`
	UserID         int64     `gorm:"not null;index" json:"user_id"`
	OperationType  string    `gorm:"size:20;not null;uniqueIndex:uk_op_key" json:"operation_type"` // recharge, debit, refund
	IdempotencyKey string    `gorm:"size:100;not null;uniqueIndex:uk_op_key" json:"idempotency_key"`
	OldValue       int       `json:"old_value"`
	ChangeValue    int       `json:"change_value"`
	NewValue       int       `json:"new_value"`
	Note           string    `gorm:"size:255" json:"note,omitempty"`
	CreatedAt      time.Time `gorm:"index" json:"created_at"`
}

func (CreditLedgerEntry) TableName() string {
	return "credit_ledger_entries"
}
