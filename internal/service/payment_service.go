package service

import (
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math/big"
	"time"

	"gorm.io/gorm"

	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/config"
	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/model"
	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/model/dto"
	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/pkg/epay"
	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/repository"
)

var (
	ErrOrderNotFound    = errors.New("订单不存在")
	ErrOrderPermission  = errors.New("无权查看此订单")
	ErrPackageNotFound  = errors.New("积分套餐不存在")
	ErrInvalidSignature = errors.New("通知签名校验失败")
	ErrAmountMismatch   = errors.New("通知金额与订单金额不符")
	ErrOrderState       = errors.New("订单状态不允许该操作")
)

// PaymentService 支付对账。网关通知可能重复、乱序、并发送达，
// 订单状态的条件更新和账本幂等键共同保证积分至多入账一次。
type PaymentService struct {
	db            *gorm.DB
	orderRepo     *repository.OrderRepository
	creditService *CreditService
	gateway       *epay.Client
	cfg           *config.Config
}

func NewPaymentService(
	db *gorm.DB,
	orderRepo *repository.OrderRepository,
	creditService *CreditService,
	gateway *epay.Client,
	cfg *config.Config,
) *PaymentService {
	return &PaymentService{
		db:            db,
		orderRepo:     orderRepo,
		creditService: creditService,
		gateway:       gateway,
		cfg:           cfg,
	}
}

// Packages 积分套餐列表
func (s *PaymentService) Packages() []dto.PackageInfo {
	items := make([]dto.PackageInfo, 0, len(s.cfg.Payment.Packages))
	for _, p := range s.cfg.Payment.Packages {
		items = append(items, dto.PackageInfo{
			ID:      p.ID,
			Name:    p.Name,
			Amount:  p.Amount,
			Credits: p.Credits,
		})
	}
	return items
}

// CreateOrder 创建支付订单并返回网关跳转参数
func (s *PaymentService) CreateOrder(userID int64, packageID, paymentType string) (*dto.CreateOrderResponse, error) {
	pkg := s.findPackage(packageID)
	if pkg == nil {
		return nil, ErrPackageNotFound
	}

	order := &model.PaymentOrder{
		OrderNo:     generateOrderNo(),
		UserID:      userID,
		PackageID:   pkg.ID,
		Amount:      pkg.Amount,
		Credits:     pkg.Credits,
		Status:      model.OrderStatusPending,
		PaymentType: paymentType,
	}
	if err := s.orderRepo.Create(order); err != nil {
		return nil, err
	}

	payURL, form := s.gateway.BuildPaymentForm(order.OrderNo, pkg.Name, paymentType, pkg.Amount)
	return &dto.CreateOrderResponse{
		OrderNo:    order.OrderNo,
		PaymentURL: payURL,
		FormData:   form,
	}, nil
}

// GetOrder 查询订单详情
func (s *PaymentService) GetOrder(userID int64, orderNo string) (*model.PaymentOrder, error) {
	order, err := s.orderRepo.GetByOrderNo(orderNo)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	if order.UserID != userID {
		return nil, ErrOrderPermission
	}
	return order, nil
}

// HandleNotification 处理网关异步通知。
// 签名不过直接拒绝且不落任何状态——伪造通知不代表订单失败。
// 通过校验后，重复通知是无副作用的 no-op。
func (s *PaymentService) HandleNotification(params map[string]string) error {
	if !s.gateway.VerifyNotification(params) {
		return ErrInvalidSignature
	}

	orderNo := params["out_trade_no"]
	tradeStatus := params["trade_status"]
	tradeNo := params["trade_no"]

	if tradeStatus != epay.TradeStatusSuccess {
		// 网关只对成功交易重发通知，其余状态记录后忽略
		log.Printf("Payment notify: order %s reported status %s, ignored", orderNo, tradeStatus)
		return nil
	}

	order, err := s.orderRepo.GetByOrderNo(orderNo)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrOrderNotFound
		}
		return err
	}

	// 金额必须与下单金额一致，对不上只记日志不落任何状态
	if params["money"] != epay.FormatMoney(order.Amount) {
		log.Printf("Payment notify: order %s amount mismatch, got %s want %s",
			orderNo, params["money"], epay.FormatMoney(order.Amount))
		return ErrAmountMismatch
	}

	if order.Status == model.OrderStatusSuccess || order.Status == model.OrderStatusRefunded {
		return nil // 重复通知
	}

	return s.applySuccess(order, tradeNo)
}

// ForceApply 人工补单。与自动路径完全相同的幂等契约，
// 已成功订单走到这里同样是 no-op，绝不二次发放。
func (s *PaymentService) ForceApply(orderNo string) error {
	order, err := s.orderRepo.GetByOrderNo(orderNo)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrOrderNotFound
		}
		return err
	}

	if order.Status == model.OrderStatusSuccess || order.Status == model.OrderStatusRefunded {
		return nil
	}

	tradeNo := order.TradeNo
	if tradeNo == "" {
		tradeNo = "manual-" + orderNo
	}
	return s.applySuccess(order, tradeNo)
}

// RefundOrder 订单退款：success -> refunded 并扣回已发积分，单事务。
func (s *PaymentService) RefundOrder(orderNo string) error {
	order, err := s.orderRepo.GetByOrderNo(orderNo)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrOrderNotFound
		}
		return err
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		rows, err := s.orderRepo.WithTx(tx).MarkRefunded(orderNo)
		if err != nil {
			return err
		}
		if rows == 0 {
			current, err := s.orderRepo.WithTx(tx).GetByOrderNo(orderNo)
			if err != nil {
				return err
			}
			if current.Status == model.OrderStatusRefunded {
				return nil // 已退款
			}
			return ErrOrderState
		}

		_, err = s.creditService.DeductTx(tx, order.UserID, order.Credits, orderNo+":refund", "订单退款扣回积分")
		return err
	})
}

// applySuccess 订单置为成功和积分入账必须同生共死：
// 条件更新 pending -> success 与账本 credit 在同一事务内提交。
func (s *PaymentService) applySuccess(order *model.PaymentOrder, tradeNo string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		rows, err := s.orderRepo.WithTx(tx).MarkSuccess(order.OrderNo, tradeNo, time.Now())
		if err != nil {
			return err
		}
		if rows == 0 {
			// 并发通知抢先，确认已成功即视为处理完成
			current, err := s.orderRepo.WithTx(tx).GetByOrderNo(order.OrderNo)
			if err != nil {
				return err
			}
			if current.Status == model.OrderStatusSuccess || current.Status == model.OrderStatusRefunded {
				return nil
			}
			return ErrOrderState
		}

		_, err = s.creditService.CreditTx(tx, order.UserID, order.Credits, order.OrderNo, "充值到账")
		return err
	})
}

func (s *PaymentService) findPackage(packageID string) *config.CreditPackage {
	for i := range s.cfg.Payment.Packages {
		if s.cfg.Payment.Packages[i].ID == packageID {
			return &s.cfg.Payment.Packages[i]
		}
	}
	return nil
}

// generateOrderNo 时间戳 + 随机数，订单号全局唯一
func generateOrderNo() string {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		n = big.NewInt(time.Now().UnixNano() % 1000000)
	}
	return fmt.Sprintf("ORD%s%06d", time.Now().Format("20060102150405"), n.Int64())
}
