package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/config"
	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/model"
	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/pkg/provider"
	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/pkg/queue"
	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/repository"
	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/service"
	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/testutil"
)

// fakeProvider 返回固定图片 URL 的服务商桩
func fakeProvider(t *testing.T, imageURL string, fail bool) (*provider.Client, func()) {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `{"error":{"message":"boom"}}`)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]string{{"url": imageURL}},
		})
	}))

	cli := provider.NewClient(&config.ProviderConfig{
		Name:           "test-provider",
		BaseURL:        srv.URL,
		APIKey:         "test-key",
		Model:          "test-model",
		TimeoutSeconds: 5,
	})
	return cli, srv.Close
}

func setupProcessor(t *testing.T, providerCli *provider.Client) (*Processor, *gorm.DB, *service.CreditService) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })

	taskRepo := repository.NewTaskRepository(db)
	creditRepo := repository.NewCreditRepository(db)
	creditService := service.NewCreditService(db, creditRepo)
	taskService := service.NewTaskService(taskRepo, creditService, nil, testutil.TestConfig())

	p := NewProcessor(taskService, creditService, providerCli, nil, nil, testutil.TestConfig())
	return p, db, creditService
}

func TestProcessor_Process_Success(t *testing.T) {
	providerCli, closeSrv := fakeProvider(t, "https://img.example.com/out.png", false)
	defer closeSrv()

	p, db, creditService := setupProcessor(t, providerCli)

	testutil.TestAccount(t, db, 1, testutil.WithCredits(10))
	task := testutil.TestTask(t, db, 1)

	err := p.Process(context.Background(), &queue.TaskMessage{
		TaskID: task.ID,
		UserID: 1,
		Prompt: task.Prompt,
	})
	require.NoError(t, err)

	var updated model.ImageTask
	require.NoError(t, db.First(&updated, task.ID).Error)
	assert.Equal(t, model.TaskStatusCompleted, updated.Status)
	assert.Equal(t, "https://img.example.com/out.png", updated.ImageURL)
	assert.Equal(t, 100, updated.Progress)
	assert.Equal(t, 1, updated.AttemptCount)
	assert.NotNil(t, updated.CompletedAt)

	// 完成后扣费
	balance, err := creditService.GetBalance(1)
	require.NoError(t, err)
	assert.Equal(t, 9, balance)
}

func TestProcessor_Process_DebitIdempotent(t *testing.T) {
	providerCli, closeSrv := fakeProvider(t, "https://img.example.com/out.png", false)
	defer closeSrv()

	p, db, creditService := setupProcessor(t, providerCli)

	testutil.TestAccount(t, db, 1, testutil.WithCredits(10))
	task := testutil.TestTask(t, db, 1)
	msg := &queue.TaskMessage{TaskID: task.ID, UserID: 1, Prompt: task.Prompt}

	require.NoError(t, p.Process(context.Background(), msg))
	// 消息重复消费：任务已完结，直接跳过，不会二次扣费
	require.NoError(t, p.Process(context.Background(), msg))

	balance, err := creditService.GetBalance(1)
	require.NoError(t, err)
	assert.Equal(t, 9, balance)
}

func TestProcessor_Process_ProviderFailure(t *testing.T) {
	providerCli, closeSrv := fakeProvider(t, "", true)
	defer closeSrv()

	p, db, creditService := setupProcessor(t, providerCli)

	testutil.TestAccount(t, db, 1, testutil.WithCredits(10))
	task := testutil.TestTask(t, db, 1)

	err := p.Process(context.Background(), &queue.TaskMessage{
		TaskID: task.ID,
		UserID: 1,
		Prompt: task.Prompt,
	})
	require.Error(t, err)

	var updated model.ImageTask
	require.NoError(t, db.First(&updated, task.ID).Error)
	assert.Equal(t, model.TaskStatusFailed, updated.Status)
	assert.NotEmpty(t, updated.ErrorMessage)

	// 失败不扣费
	balance, err := creditService.GetBalance(1)
	require.NoError(t, err)
	assert.Equal(t, 10, balance)
}

func TestProcessor_Process_SkipsCancelledTask(t *testing.T) {
	providerCli, closeSrv := fakeProvider(t, "https://img.example.com/out.png", false)
	defer closeSrv()

	p, db, creditService := setupProcessor(t, providerCli)

	testutil.TestAccount(t, db, 1, testutil.WithCredits(10))
	task := testutil.TestTask(t, db, 1, testutil.WithStatus(model.TaskStatusCancelled))

	err := p.Process(context.Background(), &queue.TaskMessage{
		TaskID: task.ID,
		UserID: 1,
		Prompt: task.Prompt,
	})
	require.NoError(t, err)

	var updated model.ImageTask
	require.NoError(t, db.First(&updated, task.ID).Error)
	assert.Equal(t, model.TaskStatusCancelled, updated.Status)

	balance, err := creditService.GetBalance(1)
	require.NoError(t, err)
	assert.Equal(t, 10, balance)
}

func TestProcessor_Process_UnknownTask(t *testing.T) {
	providerCli, closeSrv := fakeProvider(t, "https://img.example.com/out.png", false)
	defer closeSrv()

	p, _, _ := setupProcessor(t, providerCli)

	// 任务不存在时丢弃消息，不报错
	err := p.Process(context.Background(), &queue.TaskMessage{TaskID: 99999, UserID: 1})
	assert.NoError(t, err)
}
