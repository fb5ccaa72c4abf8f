package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/api/middleware"
	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/model/dto"
	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/pkg/response"
	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/service"
)

type CreditHandler struct {
	creditService *service.CreditService
}

func NewCreditHandler(creditService *service.CreditService) *CreditHandler {
	return &CreditHandler{
		creditService: creditService,
	}
}

// Balance 查询积分余额
// GET /api/v1/credits/balance
func (h *CreditHandler) Balance(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	credits, err := h.creditService.GetBalance(userID)
	if err != nil {
		response.ServerError(c, "")
		return
	}

	response.Success(c, dto.BalanceInfo{
		UserID:  userID,
		Credits: credits,
	})
}

// Entries 查询积分流水
// GET /api/v1/credits/entries
func (h *CreditHandler) Entries(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	entries, total, err := h.creditService.ListEntries(userID, page, pageSize)
	if err != nil {
		response.ServerError(c, "")
		return
	}

	items := make([]dto.LedgerEntryItem, 0, len(entries))
	for _, entry := range entries {
		items = append(items, dto.LedgerEntryItem{
			ID:             entry.ID,
			OperationType:  entry.OperationType,
			IdempotencyKey: entry.IdempotencyKey,
			OldValue:       entry.OldValue,
			ChangeValue:    entry.ChangeValue,
			NewValue:       entry.NewValue,
			Note:           entry.Note,
			CreatedAt:      entry.CreatedAt.Format(time.RFC3339),
		})
	}

	response.SuccessPage(c, total, page, pageSize, items)
}
