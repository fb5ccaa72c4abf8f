package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/model"
	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/repository"
	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/testutil"
)

func setupTaskService(t *testing.T) (*TaskService, *gorm.DB) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })

	creditService := NewCreditService(db, repository.NewCreditRepository(db))
	svc := NewTaskService(repository.NewTaskRepository(db), creditService, nil, testutil.TestConfig())
	return svc, db
}

func TestTaskService_CreateTask(t *testing.T) {
	svc, db := setupTaskService(t)
	testutil.TestAccount(t, db, 1, testutil.WithCredits(10))

	task, err := svc.CreateTask(context.Background(), 1, "a red fox in snow", "anime", "16:9", "")
	require.NoError(t, err)

	assert.Equal(t, model.TaskStatusPending, task.Status)
	assert.Equal(t, 0, task.LockVersion)
	assert.Equal(t, "test-provider", task.Provider)
	assert.Equal(t, "test-model", task.Model)
	assert.Nil(t, task.RequestID)
}

func TestTaskService_CreateTask_EmptyPrompt(t *testing.T) {
	svc, db := setupTaskService(t)
	testutil.TestAccount(t, db, 1, testutil.WithCredits(10))

	_, err := svc.CreateTask(context.Background(), 1, "   ", "", "", "")
	assert.ErrorIs(t, err, ErrEmptyPrompt)
}

func TestTaskService_CreateTask_InsufficientCredits(t *testing.T) {
	svc, db := setupTaskService(t)
	testutil.TestAccount(t, db, 1, testutil.WithCredits(0))

	_, err := svc.CreateTask(context.Background(), 1, "a red fox", "", "", "")
	assert.ErrorIs(t, err, ErrInsufficientCredits)
}

func TestTaskService_CreateTask_IdempotentRequestID(t *testing.T) {
	svc, db := setupTaskService(t)
	testutil.TestAccount(t, db, 1, testutil.WithCredits(10))

	first, err := svc.CreateTask(context.Background(), 1, "a red fox", "", "", "req-abc")
	require.NoError(t, err)

	// 同键重复提交返回已有任务，不新建
	second, err := svc.CreateTask(context.Background(), 1, "a red fox", "", "", "req-abc")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	var count int64
	require.NoError(t, db.Model(&model.ImageTask{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestTaskService_CreateTask_RequestIDScopedToUser(t *testing.T) {
	svc, db := setupTaskService(t)
	testutil.TestAccount(t, db, 1, testutil.WithCredits(10))
	testutil.TestAccount(t, db, 2, testutil.WithCredits(10))

	first, err := svc.CreateTask(context.Background(), 1, "a red fox", "", "", "req-abc")
	require.NoError(t, err)

	// 去重键按用户隔离
	second, err := svc.CreateTask(context.Background(), 2, "a red fox", "", "", "req-abc")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestTaskService_Transition(t *testing.T) {
	svc, db := setupTaskService(t)
	task := testutil.TestTask(t, db, 1)

	progress := 40
	updated, err := svc.Transition(task.ID, 0, model.TaskStatusProcessing, &TransitionPatch{
		Progress:         &progress,
		Stage:            "generating",
		IncrementAttempt: true,
	})
	require.NoError(t, err)

	assert.Equal(t, model.TaskStatusProcessing, updated.Status)
	assert.Equal(t, 1, updated.LockVersion)
	assert.Equal(t, 40, updated.Progress)
	assert.Equal(t, 1, updated.AttemptCount)
	assert.Nil(t, updated.CompletedAt)
}

func TestTaskService_Transition_StaleVersion(t *testing.T) {
	svc, db := setupTaskService(t)
	task := testutil.TestTask(t, db, 1)

	_, err := svc.Transition(task.ID, 0, model.TaskStatusProcessing, nil)
	require.NoError(t, err)

	// 旧版本号的写入被拒绝
	_, err = svc.Transition(task.ID, 0, model.TaskStatusCompleted, nil)
	assert.ErrorIs(t, err, ErrTaskConflict)
}

func TestTaskService_Transition_IllegalEdge(t *testing.T) {
	svc, db := setupTaskService(t)

	tests := []struct {
		name string
		from string
		to   string
	}{
		{"pending to completed", model.TaskStatusPending, model.TaskStatusCompleted},
		{"completed to processing", model.TaskStatusCompleted, model.TaskStatusProcessing},
		{"failed to completed", model.TaskStatusFailed, model.TaskStatusCompleted},
		{"cancelled to processing", model.TaskStatusCancelled, model.TaskStatusProcessing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := testutil.TestTask(t, db, 1, testutil.WithStatus(tt.from))
			_, err := svc.Transition(task.ID, 0, tt.to, nil)
			assert.ErrorIs(t, err, ErrInvalidTransition)
		})
	}
}

func TestTaskService_Transition_TerminalSetsCompletedAt(t *testing.T) {
	svc, db := setupTaskService(t)
	task := testutil.TestTask(t, db, 1, testutil.WithStatus(model.TaskStatusProcessing))

	updated, err := svc.Transition(task.ID, 0, model.TaskStatusCompleted, &TransitionPatch{
		ImageURL: "https://img.example.com/out.png",
	})
	require.NoError(t, err)

	assert.NotNil(t, updated.CompletedAt)
	assert.Equal(t, "https://img.example.com/out.png", updated.ImageURL)
	assert.True(t, updated.IsTerminal())
}

func TestTaskService_Transition_NotFound(t *testing.T) {
	svc, _ := setupTaskService(t)

	_, err := svc.Transition(99999, 0, model.TaskStatusProcessing, nil)
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestTaskService_Cancel(t *testing.T) {
	svc, db := setupTaskService(t)
	task := testutil.TestTask(t, db, 1)

	cancelled, err := svc.Cancel(1, task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusCancelled, cancelled.Status)

	// 重复取消幂等
	again, err := svc.Cancel(1, task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusCancelled, again.Status)
}

func TestTaskService_Cancel_WrongUser(t *testing.T) {
	svc, db := setupTaskService(t)
	task := testutil.TestTask(t, db, 1)

	_, err := svc.Cancel(2, task.ID)
	assert.ErrorIs(t, err, ErrTaskPermission)
}

func TestTaskService_Cancel_CompletedTask(t *testing.T) {
	svc, db := setupTaskService(t)
	task := testutil.TestTask(t, db, 1, testutil.WithStatus(model.TaskStatusCompleted))

	_, err := svc.Cancel(1, task.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTaskService_UpdateProgress(t *testing.T) {
	svc, db := setupTaskService(t)
	task := testutil.TestTask(t, db, 1, testutil.WithStatus(model.TaskStatusProcessing))

	require.NoError(t, svc.UpdateProgress(task.ID, 80, "uploading"))

	updated, err := svc.Poll(task.ID)
	require.NoError(t, err)
	assert.Equal(t, 80, updated.Progress)
	assert.Equal(t, "uploading", updated.Stage)
	assert.Equal(t, 1, updated.LockVersion)
}

func TestTaskService_UpdateProgress_NotProcessing(t *testing.T) {
	svc, db := setupTaskService(t)
	task := testutil.TestTask(t, db, 1)

	err := svc.UpdateProgress(task.ID, 40, "generating")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTaskService_TimeoutSweep(t *testing.T) {
	svc, db := setupTaskService(t)

	stalePending := testutil.TestTask(t, db, 1,
		testutil.WithCreatedAt(time.Now().Add(-24*time.Hour)))
	staleProcessing := testutil.TestTask(t, db, 1,
		testutil.WithStatus(model.TaskStatusProcessing),
		testutil.WithCreatedAt(time.Now().Add(-24*time.Hour)))
	fresh := testutil.TestTask(t, db, 1)
	staleDone := testutil.TestTask(t, db, 1,
		testutil.WithStatus(model.TaskStatusCompleted),
		testutil.WithCreatedAt(time.Now().Add(-24*time.Hour)))

	swept, err := svc.TimeoutSweep(12*time.Hour, 100)
	require.NoError(t, err)
	assert.Equal(t, 2, swept)

	for _, id := range []int64{stalePending.ID, staleProcessing.ID} {
		var updated model.ImageTask
		require.NoError(t, db.First(&updated, id).Error)
		assert.Equal(t, model.TaskStatusFailed, updated.Status)
		assert.Equal(t, "task timeout", updated.ErrorMessage)
		assert.NotNil(t, updated.CompletedAt)
	}

	var untouched model.ImageTask
	require.NoError(t, db.First(&untouched, fresh.ID).Error)
	assert.Equal(t, model.TaskStatusPending, untouched.Status)
	var untouchedDone model.ImageTask
	require.NoError(t, db.First(&untouchedDone, staleDone.ID).Error)
	assert.Equal(t, model.TaskStatusCompleted, untouchedDone.Status)
}

func TestTaskService_TimeoutSweep_RunTwice(t *testing.T) {
	svc, db := setupTaskService(t)

	testutil.TestTask(t, db, 1, testutil.WithCreatedAt(time.Now().Add(-24*time.Hour)))

	swept, err := svc.TimeoutSweep(12*time.Hour, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	swept, err = svc.TimeoutSweep(12*time.Hour, 100)
	require.NoError(t, err)
	assert.Equal(t, 0, swept)
}

func TestTaskService_TimeoutSweep_BatchLimit(t *testing.T) {
	svc, db := setupTaskService(t)

	for i := 0; i < 5; i++ {
		testutil.TestTask(t, db, 1, testutil.WithCreatedAt(time.Now().Add(-24*time.Hour)))
	}

	swept, err := svc.TimeoutSweep(12*time.Hour, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, swept)
}

func TestTaskService_List(t *testing.T) {
	svc, db := setupTaskService(t)

	for i := 0; i < 3; i++ {
		testutil.TestTask(t, db, 1)
	}
	testutil.TestTask(t, db, 2)

	tasks, total, err := svc.List(1, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, tasks, 3)
}
