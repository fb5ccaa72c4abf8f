package epay

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/config"
)

// 易支付协议常量
const (
	TradeStatusSuccess = "TRADE_SUCCESS"

	// 网关要求的回执原文，否则会持续重发通知
	AckSuccess = "success"
	AckFail    = "fail"
)

// Client 易支付网关客户端。签名算法：参数按键名排序，
// 跳过空值和 sign/sign_type，k=v 用 & 连接后拼接商户密钥，取 MD5。
type Client struct {
	gatewayURL string
	pid        string
	key        string
	notifyURL  string
	returnURL  string
}

func NewClient(cfg *config.PaymentConfig) *Client {
	return &Client{
		gatewayURL: cfg.GatewayURL,
		pid:        cfg.PID,
		key:        cfg.Key,
		notifyURL:  cfg.NotifyURL,
		returnURL:  cfg.ReturnURL,
	}
}

// BuildPaymentForm 组装前端直接 POST 给网关的表单参数
func (c *Client) BuildPaymentForm(orderNo, name, paymentType string, amountCents int) (string, map[string]string) {
	params := map[string]string{
		"pid":          c.pid,
		"type":         paymentType,
		"out_trade_no": orderNo,
		"notify_url":   c.notifyURL,
		"return_url":   c.returnURL,
		"name":         name,
		"money":        FormatMoney(amountCents),
	}
	params["sign"] = c.Sign(params)
	params["sign_type"] = "MD5"
	return c.gatewayURL, params
}

// FormatMoney 分转网关金额串，保留两位小数
func FormatMoney(amountCents int) string {
	return fmt.Sprintf("%.2f", float64(amountCents)/100)
}

// Sign 计算参数签名
func (c *Client) Sign(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if k == "sign" || k == "sign_type" || v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params[k])
	}

	sum := md5.Sum([]byte(strings.Join(pairs, "&") + c.key))
	return hex.EncodeToString(sum[:])
}

// VerifyNotification 校验异步通知签名
func (c *Client) VerifyNotification(params map[string]string) bool {
	sign, ok := params["sign"]
	if !ok || sign == "" {
		return false
	}
	return strings.EqualFold(sign, c.Sign(params))
}
