package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/model"
)

type CreditRepository struct {
	db *gorm.DB
}

func NewCreditRepository(db *gorm.DB) *CreditRepository {
	return &CreditRepository{db: db}
}

// WithTx 返回绑定到事务的仓库
func (r *CreditRepository) WithTx(tx *gorm.DB) *CreditRepository {
	return &CreditRepository{db: tx}
}

func (r *CreditRepository) GetAccount(userID int64) (*model.CreditAccount, error) {
	var account model.CreditAccount
	err := r.db.Where("user_id = ?", userID).First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// EnsureAccount 不存在则创建零余额账户
func (r *CreditRepository) EnsureAccount(userID int64) (*model.CreditAccount, error) {
	account, err := r.GetAccount(userID)
	if err == nil {
		return account, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	account = &model.CreditAccount{UserID: userID, Credits: 0}
	if err := r.db.Create(account).Error; err != nil {
		// 并发创建撞唯一索引时回退到读
		if existing, getErr := r.GetAccount(userID); getErr == nil {
			return existing, nil
		}
		return nil, err
	}
	return account, nil
}

// AdjustCredits 原子余额变更。delta 为负且 requireBalance 时带
// credits >= -delta 谓词，返回 0 行即余额不足（或账户不存在）。
// 余额的串行化靠这条条件 UPDATE，不依赖显式行锁。
func (r *CreditRepository) AdjustCredits(userID int64, delta int, requireBalance bool) (int64, error) {
	query := r.db.Model(&model.CreditAccount{}).Where("user_id = ?", userID)
	if requireBalance && delta < 0 {
		query = query.Where("credits >= ?", -delta)
	}

	res := query.Updates(map[string]interface{}{
		"credits":    gorm.Expr("credits + ?", delta),
		"updated_at": time.Now(),
	})
	return res.RowsAffected, res.Error
}

// SetLastOrderNo 记录最近一次充值订单号
func (r *CreditRepository) SetLastOrderNo(userID int64, orderNo string) error {
	return r.db.Model(&model.CreditAccount{}).
		Where("user_id = ?", userID).
		Update("last_order_no", orderNo).Error
}

func (r *CreditRepository) CreateEntry(entry *model.CreditLedgerEntry) error {
	return r.db.Create(entry).Error
}

// GetEntryByKey 按 (操作类型, 幂等键) 查询流水
func (r *CreditRepository) GetEntryByKey(operationType, idempotencyKey string) (*model.CreditLedgerEntry, error) {
	var entry model.CreditLedgerEntry
	err := r.db.Where("operation_type = ? AND idempotency_key = ?", operationType, idempotencyKey).
		First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListEntriesByUserID 分页查询用户流水
func (r *CreditRepository) ListEntriesByUserID(userID int64, page, pageSize int) ([]*model.CreditLedgerEntry, int64, error) {
	var entries []*model.CreditLedgerEntry
	var total int64

	query := r.db.Model(&model.CreditLedgerEntry{}).Where("user_id = ?", userID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&entries).Error
	return entries, total, err
}

// SumChangeByUserID 流水净变动，用于对账校验
func (r *CreditRepository) SumChangeByUserID(userID int64) (int64, error) {
	var sum int64
	err := r.db.Model(&model.CreditLedgerEntry{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(change_value), 0)").
		Scan(&sum).Error
	return sum, err
}
