package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/model"
	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/testutil"
)

func TestCreditRepository_EnsureAccount(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)
	repo := NewCreditRepository(db)

	account, err := repo.EnsureAccount(1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), account.UserID)
	assert.Equal(t, 0, account.Credits)

	// 再次调用返回同一账户
	again, err := repo.EnsureAccount(1)
	require.NoError(t, err)
	assert.Equal(t, account.ID, again.ID)

	var count int64
	require.NoError(t, db.Model(&model.CreditAccount{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestCreditRepository_AdjustCredits(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)
	repo := NewCreditRepository(db)

	testutil.TestAccount(t, db, 1, testutil.WithCredits(10))

	rows, err := repo.AdjustCredits(1, 5, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	account, err := repo.GetAccount(1)
	require.NoError(t, err)
	assert.Equal(t, 15, account.Credits)
}

func TestCreditRepository_AdjustCredits_BalanceGuard(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)
	repo := NewCreditRepository(db)

	testutil.TestAccount(t, db, 1, testutil.WithCredits(2))

	// 余额不够时条件更新不命中
	rows, err := repo.AdjustCredits(1, -3, true)
	require.NoError(t, err)
	assert.Equal(t, int64(0), rows)

	account, err := repo.GetAccount(1)
	require.NoError(t, err)
	assert.Equal(t, 2, account.Credits)

	// 刚好够扣
	rows, err = repo.AdjustCredits(1, -2, true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	account, err = repo.GetAccount(1)
	require.NoError(t, err)
	assert.Equal(t, 0, account.Credits)
}

func TestCreditRepository_AdjustCredits_NoAccount(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)
	repo := NewCreditRepository(db)

	rows, err := repo.AdjustCredits(999, -1, true)
	require.NoError(t, err)
	assert.Equal(t, int64(0), rows)
}

func TestCreditRepository_EntryUniqueKey(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)
	repo := NewCreditRepository(db)

	entry := &model.CreditLedgerEntry{
		UserID:         1,
		OperationType:  model.OperationDebit,
		IdempotencyKey: "task-1",
		ChangeValue:    -1,
	}
	require.NoError(t, repo.CreateEntry(entry))

	// 同 (操作类型, 幂等键) 的第二条被唯一索引拒绝
	dup := &model.CreditLedgerEntry{
		UserID:         1,
		OperationType:  model.OperationDebit,
		IdempotencyKey: "task-1",
		ChangeValue:    -1,
	}
	assert.Error(t, repo.CreateEntry(dup))

	// 不同操作类型可以复用键
	refund := &model.CreditLedgerEntry{
		UserID:         1,
		OperationType:  model.OperationRefund,
		IdempotencyKey: "task-1",
		ChangeValue:    1,
	}
	assert.NoError(t, repo.CreateEntry(refund))
}

func TestCreditRepository_GetEntryByKey(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)
	repo := NewCreditRepository(db)

	created := testutil.TestLedgerEntry(t, db, 1, model.OperationRecharge, "ORD1", 100)

	got, err := repo.GetEntryByKey(model.OperationRecharge, "ORD1")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	_, err = repo.GetEntryByKey(model.OperationDebit, "ORD1")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestCreditRepository_SumChangeByUserID(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)
	repo := NewCreditRepository(db)

	testutil.TestLedgerEntry(t, db, 1, model.OperationRecharge, "ORD1", 100)
	testutil.TestLedgerEntry(t, db, 1, model.OperationDebit, "task-1", -3)
	testutil.TestLedgerEntry(t, db, 1, model.OperationDebit, "task-2", -3)
	testutil.TestLedgerEntry(t, db, 2, model.OperationRecharge, "ORD2", 50)

	sum, err := repo.SumChangeByUserID(1)
	require.NoError(t, err)
	assert.Equal(t, int64(94), sum)

	// 无流水用户返回 0
	sum, err = repo.SumChangeByUserID(99)
	require.NoError(t, err)
	assert.Equal(t, int64(0), sum)
}

func TestCreditRepository_SetLastOrderNo(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)
	repo := NewCreditRepository(db)

	testutil.TestAccount(t, db, 1)

	require.NoError(t, repo.SetLastOrderNo(1, "ORD1001"))

	account, err := repo.GetAccount(1)
	require.NoError(t, err)
	assert.Equal(t, "ORD1001", account.LastOrderNo)
}
