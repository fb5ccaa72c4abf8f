package dto

// CreateOrderRequest 创建支付订单请求
type CreateOrderRequest struct {
	PackageID   string `json:"package_id" binding:"required"`
	PaymentType string `json:"payment_type" binding:"required"` // wechat, alipay
}

// CreateOrderResponse 支付订单响应，form_data 由前端直接 POST 给网关
type CreateOrderResponse struct {
	OrderNo    string            `json:"order_no"`
	PaymentURL string            `json:"payment_url"`
	FormData   map[string]string `json:"form_data"`
}

type OrderDetail struct {
	OrderNo     string `json:"order_no"`
	PackageID   string `json:"package_id"`
	Amount      int    `json:"amount"`
	Credits     int    `json:"credits"`
	Status      string `json:"status"`
	PaymentType string `json:"payment_type"`
	CreatedAt   string `json:"created_at"`
	PaidAt      string `json:"paid_at,omitempty"`
}

type PackageInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Amount  int    `json:"amount"` // 分
	Credits int    `json:"credits"`
}
