package handler

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/api/middleware"
	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/model/dto"
	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/pkg/epay"
	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/pkg/response"
	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/service"
)

type PaymentHandler struct {
	paymentService *service.PaymentService
}

func NewPaymentHandler(paymentService *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
	}
}

// Packages 获取积分套餐列表
// GET /api/v1/payment/packages
func (h *PaymentHandler) Packages(c *gin.Context) {
	response.Success(c, h.paymentService.Packages())
}

// CreateOrder 创建支付订单
// POST /api/v1/payment/orders
func (h *PaymentHandler) CreateOrder(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	resp, err := h.paymentService.CreateOrder(userID, req.PackageID, req.PaymentType)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrPackageNotFound):
			response.ParamError(c, err.Error())
		default:
			response.ServerError(c, "")
		}
		return
	}

	response.SuccessWithMessage(c, "订单已创建", resp)
}

// GetOrder 查询订单状态
// GET /api/v1/payment/orders/:order_no
func (h *PaymentHandler) GetOrder(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	order, err := h.paymentService.GetOrder(userID, c.Param("order_no"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrOrderNotFound):
			response.NotFoundError(c, err.Error())
		case errors.Is(err, service.ErrOrderPermission):
			response.PermissionError(c, err.Error())
		default:
			response.ServerError(c, "")
		}
		return
	}

	detail := dto.OrderDetail{
		OrderNo:     order.OrderNo,
		PackageID:   order.PackageID,
		Amount:      order.Amount,
		Credits:     order.Credits,
		Status:      order.Status,
		PaymentType: order.PaymentType,
		CreatedAt:   order.CreatedAt.Format(time.RFC3339),
	}
	if order.PaidAt != nil {
		detail.PaidAt = order.PaidAt.Format(time.RFC3339)
	}

	response.Success(c, detail)
}

// Notify 支付网关异步回调。响应是网关协议约定的字面量：
// 签名不可信回 "fail"；可信通知一律回 "success"，即使内部处理失败——
// 否则网关会无限重发，内部失败记录日志后走对账工具人工补单。
// GET /api/v1/payment/notify
func (h *PaymentHandler) Notify(c *gin.Context) {
	params := make(map[string]string)
	for key, values := range c.Request.URL.Query() {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}

	if err := h.paymentService.HandleNotification(params); err != nil {
		if errors.Is(err, service.ErrInvalidSignature) {
			log.Printf("Payment notify rejected, bad signature (order_no=%s)", params["out_trade_no"])
			c.String(http.StatusOK, epay.AckFail)
			return
		}
		log.Printf("Payment notify processing failed (order_no=%s): %v", params["out_trade_no"], err)
	}

	c.String(http.StatusOK, epay.AckSuccess)
}
