package service

import (
	"errors"

	"gorm.io/gorm"

	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/model"
	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/repository"
)

var (
	ErrInsufficientCredits = errors.New("积分不足")
	ErrInvalidAmount       = errors.New("积分变动数量必须为正数")
	ErrEmptyIdempotencyKey = errors.New("缺少幂等键")
)

// CreditService 积分账本。余额变更走单事务内的条件 UPDATE，
// 幂等靠流水表 (operation_type, idempotency_key) 唯一索引，
// 重复提交返回首笔流水，不产生二次变动。
type CreditService struct {
	db         *gorm.DB
	creditRepo *repository.CreditRepository
}

func NewCreditService(db *gorm.DB, creditRepo *repository.CreditRepository) *CreditService {
	return &CreditService{
		db:         db,
		creditRepo: creditRepo,
	}
}

// Debit 扣减积分。余额不足返回 ErrInsufficientCredits 且不产生任何变动。
func (s *CreditService) Debit(userID int64, amount int, idempotencyKey, note string) (*model.CreditLedgerEntry, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	return s.apply(s.db, model.OperationDebit, userID, -amount, idempotencyKey, note, true)
}

// Credit 增加积分（充值到账）。重复通知安全：同键只入账一次。
func (s *CreditService) Credit(userID int64, amount int, idempotencyKey, note string) (*model.CreditLedgerEntry, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	return s.apply(s.db, model.OperationRecharge, userID, amount, idempotencyKey, note, false)
}

// CreditTx 在调用方事务内入账，供支付回调把订单更新和积分入账
// 放进同一个事务。幂等契约与 Credit 一致。
func (s *CreditService) CreditTx(tx *gorm.DB, userID int64, amount int, idempotencyKey, note string) (*model.CreditLedgerEntry, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	return s.applyInTx(tx, model.OperationRecharge, userID, amount, idempotencyKey, note, false)
}

// Refund 退还积分（任务失败后返还扣费），契约同 Credit。
func (s *CreditService) Refund(userID int64, amount int, idempotencyKey, note string) (*model.CreditLedgerEntry, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	return s.apply(s.db, model.OperationRefund, userID, amount, idempotencyKey, note, false)
}

// DeductTx 在调用方事务内以 refund 流水扣回积分（订单退款时回收已发积分）。
func (s *CreditService) DeductTx(tx *gorm.DB, userID int64, amount int, idempotencyKey, note string) (*model.CreditLedgerEntry, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	return s.applyInTx(tx, model.OperationRefund, userID, -amount, idempotencyKey, note, true)
}

// GetBalance 查询余额，账户不存在视为 0
func (s *CreditService) GetBalance(userID int64) (int, error) {
	account, err := s.creditRepo.GetAccount(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return account.Credits, nil
}

// ListEntries 分页查询流水
func (s *CreditService) ListEntries(userID int64, page, pageSize int) ([]*model.CreditLedgerEntry, int64, error) {
	return s.creditRepo.ListEntriesByUserID(userID, page, pageSize)
}

func (s *CreditService) apply(db *gorm.DB, op string, userID int64, delta int, key, note string, requireBalance bool) (*model.CreditLedgerEntry, error) {
	var entry *model.CreditLedgerEntry
	err := db.Transaction(func(tx *gorm.DB) error {
		e, txErr := s.applyInTx(tx, op, userID, delta, key, note, requireBalance)
		if txErr != nil {
			return txErr
		}
		entry = e
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientCredits) || errors.Is(err, ErrEmptyIdempotencyKey) {
			return nil, err
		}
		// 并发同键写入撞唯一索引后整个事务回滚，回读首笔流水
		if existing, getErr := s.creditRepo.GetEntryByKey(op, key); getErr == nil {
			return existing, nil
		}
		return nil, err
	}
	return entry, nil
}

// applyInTx 读检写都在 tx 内完成：
//  1. 幂等命中直接返回已有流水
//  2. 条件 UPDATE 变更余额（扣减时带 credits >= amount 谓词）
//  3. 追加流水
func (s *CreditService) applyInTx(tx *gorm.DB, op string, userID int64, delta int, key, note string, requireBalance bool) (*model.CreditLedgerEntry, error) {
	if key == "" {
		return nil, ErrEmptyIdempotencyKey
	}

	repo := s.creditRepo.WithTx(tx)

	existing, err := repo.GetEntryByKey(op, key)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if delta > 0 {
		if _, err := repo.EnsureAccount(userID); err != nil {
			return nil, err
		}
	}

	rows, err := repo.AdjustCredits(userID, delta, requireBalance)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		// 账户不存在等价于零余额
		return nil, ErrInsufficientCredits
	}

	account, err := repo.GetAccount(userID)
	if err != nil {
		return nil, err
	}

	entry := &model.CreditLedgerEntry{
		UserID:         userID,
		OperationType:  op,
		IdempotencyKey: key,
		OldValue:       account.Credits - delta,
		ChangeValue:    delta,
		NewValue:       account.Credits,
		Note:           note,
	}
	if err := repo.CreateEntry(entry); err != nil {
		return nil, err
	}

	if op == model.OperationRecharge {
		if err := repo.SetLastOrderNo(userID, key); err != nil {
			return nil, err
		}
	}

	return entry, nil
}
