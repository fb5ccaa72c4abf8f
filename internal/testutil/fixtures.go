package testutil

import (
	"fmt"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/model"
)

// TestAccount 创建测试积分账户
func TestAccount(t *testing.T, db *gorm.DB, userID int64, opts ...func(*model.CreditAccount)) *model.CreditAccount {
	t.Helper()

	account := &model.CreditAccount{
		UserID:  userID,
		Credits: 0,
	}

	for _, opt := range opts {
		opt(account)
	}

	if err := db.Create(account).Error; err != nil {
		t.Fatalf("Failed to create test account: %v", err)
	}

	return account
}

// WithCredits 设置账户余额
func WithCredits(credits int) func(*model.CreditAccount) {
	return func(a *model.CreditAccount) {
		a.Credits = credits
	}
}

// TestTask 创建测试任务
func TestTask(t *testing.T, db *gorm.DB, userID int64, opts ...func(*model.ImageTask)) *model.ImageTask {
	t.Helper()

	task := &model.ImageTask{
		UserID:   userID,
		Prompt:   fmt.Sprintf("test prompt %d", time.Now().UnixNano()%10000),
		Status:   model.TaskStatusPending,
		Provider: "test-provider",
		Model:    "test-model",
	}

	for _, opt := range opts {
		opt(task)
	}

	if err := db.Create(task).Error; err != nil {
		t.Fatalf("Failed to create test task: %v", err)
	}

	return task
}

// WithStatus 设置任务状态
func WithStatus(status string) func(*model.ImageTask) {
	return func(tk *model.ImageTask) {
		tk.Status = status
	}
}

// WithPrompt 设置提示词
func WithPrompt(prompt string) func(*model.ImageTask) {
	return func(tk *model.ImageTask) {
		tk.Prompt = prompt
	}
}

// WithRequestID 设置去重键
func WithRequestID(requestID string) func(*model.ImageTask) {
	return func(tk *model.ImageTask) {
		tk.RequestID = &requestID
	}
}

// WithCreatedAt 设置创建时间（构造超时任务用）
func WithCreatedAt(createdAt time.Time) func(*model.ImageTask) {
	return func(tk *model.ImageTask) {
		tk.CreatedAt = createdAt
	}
}

// WithLockVersion 设置乐观锁版本号
func WithLockVersion(version int) func(*model.ImageTask) {
	return func(tk *model.ImageTask) {
		tk.LockVersion = version
	}
}

// TestOrder 创建测试订单
func TestOrder(t *testing.T, db *gorm.DB, userID int64, opts ...func(*model.PaymentOrder)) *model.PaymentOrder {
	t.Helper()

	order := &model.PaymentOrder{
		OrderNo:     fmt.Sprintf("ORD%d", time.Now().UnixNano()),
		UserID:      userID,
		PackageID:   "basic",
		Amount:      990,
		Credits:     100,
		Status:      model.OrderStatusPending,
		PaymentType: "alipay",
	}

	for _, opt := range opts {
		opt(order)
	}

	if err := db.Create(order).Error; err != nil {
		t.Fatalf("Failed to create test order: %v", err)
	}

	return order
}

// WithOrderNo 设置订单号
func WithOrderNo(orderNo string) func(*model.PaymentOrder) {
	return func(o *model.PaymentOrder) {
		o.OrderNo = orderNo
	}
}

// WithOrderStatus 设置订单状态
func WithOrderStatus(status string) func(*model.PaymentOrder) {
	return func(o *model.PaymentOrder) {
		o.Status = status
	}
}

// WithOrderCredits 设置订单金额与积分
func WithOrderCredits(amount, credits int) func(*model.PaymentOrder) {
	return func(o *model.PaymentOrder) {
		o.Amount = amount
		o.Credits = credits
	}
}

// TestLedgerEntry 创建测试流水
func TestLedgerEntry(t *testing.T, db *gorm.DB, userID int64, opType, key string, change int) *model.CreditLedgerEntry {
	t.Helper()

	entry := &model.CreditLedgerEntry{
		UserID:         userID,
		OperationType:  opType,
		IdempotencyKey: key,
		ChangeValue:    change,
	}

	if err := db.Create(entry).Error; err != nil {
		t.Fatalf("Failed to create test ledger entry: %v", err)
	}

	return entry
}
