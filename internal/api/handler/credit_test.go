package handler

import (
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/model"
	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/pkg/response"
	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/repository"
	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/service"
	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/testutil"
)

func setupCreditHandler(t *testing.T) (*CreditHandler, *testContext, func()) {
	t.Helper()

	db := testutil.SetupTestDB(t)

	creditService := service.NewCreditService(db, repository.NewCreditRepository(db))
	handler := NewCreditHandler(creditService)

	ctx := &testContext{
		DB: db,
	}

	cleanup := func() {
		testutil.CleanupTestDB(t, db)
	}

	return handler, ctx, cleanup
}

func TestCreditHandler_Balance(t *testing.T) {
	handler, ctx, cleanup := setupCreditHandler(t)
	defer cleanup()

	testutil.TestAccount(t, ctx.DB, 1, testutil.WithCredits(42))

	router := gin.New()
	router.Use(mockAuth(1))
	router.GET("/credits/balance", handler.Balance)

	w := performRequest(router, "GET", "/credits/balance", nil)

	resp := parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(42), data["credits"])
}

func TestCreditHandler_Balance_NoAccount(t *testing.T) {
	handler, _, cleanup := setupCreditHandler(t)
	defer cleanup()

	router := gin.New()
	router.Use(mockAuth(1))
	router.GET("/credits/balance", handler.Balance)

	w := performRequest(router, "GET", "/credits/balance", nil)

	resp := parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(0), data["credits"])
}

func TestCreditHandler_Entries(t *testing.T) {
	handler, ctx, cleanup := setupCreditHandler(t)
	defer cleanup()

	testutil.TestLedgerEntry(t, ctx.DB, 1, model.OperationRecharge, "order-1", 100)
	testutil.TestLedgerEntry(t, ctx.DB, 1, model.OperationDebit, "task-1", -1)
	testutil.TestLedgerEntry(t, ctx.DB, 2, model.OperationRecharge, "order-2", 50)

	router := gin.New()
	router.Use(mockAuth(1))
	router.GET("/credits/entries", handler.Entries)

	w := performRequest(router, "GET", "/credits/entries", nil)

	resp := parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(2), data["total"])
	items, ok := data["items"].([]interface{})
	require.True(t, ok)
	require.Len(t, items, 2)
}

func TestCreditHandler_Entries_Pagination(t *testing.T) {
	handler, ctx, cleanup := setupCreditHandler(t)
	defer cleanup()

	for i := 0; i < 5; i++ {
		testutil.TestLedgerEntry(t, ctx.DB, 1, model.OperationDebit, "task-"+string(rune('a'+i)), -1)
	}

	router := gin.New()
	router.Use(mockAuth(1))
	router.GET("/credits/entries", handler.Entries)

	w := performRequest(router, "GET", "/credits/entries?page=2&page_size=3", nil)

	resp := parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)

	data := resp.Data.(map[string]interface{})
	assert.Equal(t, float64(5), data["total"])
	items := data["items"].([]interface{})
	assert.Len(t, items, 2)
}
