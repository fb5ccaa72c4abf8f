package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/config"
	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/pkg/epay"
	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/repository"
	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/internal/service"
)

// 支付对账工具。网关通知丢失时订单会停在 pending，
// 人工核实网关侧已支付后用本工具补单；误收款用 -refund 退积分。
var (
	listStuck  = flag.Bool("list", false, "List pending orders older than -stuck-hours")
	stuckHours = flag.Int("stuck-hours", 1, "Hours after which a pending order counts as stuck")
	orderNo    = flag.String("order", "", "Order number to operate on")
	apply      = flag.Bool("apply", false, "Force-apply the order as paid (requires -order)")
	refund     = flag.Bool("refund", false, "Refund the order's credits (requires -order)")
	dryRun     = flag.Bool("dry-run", true, "Dry run mode, don't actually modify anything")
)

func main() {
	flag.Parse()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := connectDB(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	orderRepo := repository.NewOrderRepository(db)
	creditRepo := repository.NewCreditRepository(db)
	creditService := service.NewCreditService(db, creditRepo)
	gateway := epay.NewClient(&cfg.Payment)
	paymentService := service.NewPaymentService(db, orderRepo, creditService, gateway, cfg)

	switch {
	case *listStuck:
		runList(orderRepo)
	case *orderNo != "" && *apply:
		runApply(paymentService, *orderNo)
	case *orderNo != "" && *refund:
		runRefund(paymentService, *orderNo)
	default:
		flag.Usage()
		os.Exit(2)
	}
}

// runList 列出滞留的待支付订单
func runList(orderRepo *repository.OrderRepository) {
	before := time.Now().Add(-time.Duration(*stuckHours) * time.Hour)
	orders, err := orderRepo.ListStuckPending(before, 100)
	if err != nil {
		log.Fatalf("Failed to list stuck orders: %v", err)
	}

	log.Println(strings.Repeat("=", 60))
	log.Printf("Pending orders older than %d hour(s): %d", *stuckHours, len(orders))
	log.Println(strings.Repeat("=", 60))
	for _, o := range orders {
		log.Printf("  %s  user=%d  package=%s  amount=%d  credits=%d  created=%s",
			o.OrderNo, o.UserID, o.PackageID, o.Amount, o.Credits,
			o.CreatedAt.Format(time.RFC3339))
	}
}

// runApply 人工补单。与网关回调走同一条幂等路径，重复执行安全
func runApply(paymentService *service.PaymentService, orderNo string) {
	if *dryRun {
		log.Printf("[dry-run] would force-apply order %s", orderNo)
		log.Println("Run with -dry-run=false to actually apply")
		return
	}

	if err := paymentService.ForceApply(orderNo); err != nil {
		log.Fatalf("Failed to apply order %s: %v", orderNo, err)
	}
	log.Printf("Order %s applied, credits recharged", orderNo)
}

// runRefund 退积分。订单置为 refunded 并从账户扣回积分
func runRefund(paymentService *service.PaymentService, orderNo string) {
	if *dryRun {
		log.Printf("[dry-run] would refund order %s", orderNo)
		log.Println("Run with -dry-run=false to actually refund")
		return
	}

	if err := paymentService.RefundOrder(orderNo); err != nil {
		log.Fatalf("Failed to refund order %s: %v", orderNo, err)
	}
	log.Printf("Order %s refunded", orderNo)
}

func connectDB(cfg *config.Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.Database.Username,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Database,
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	return db, nil
}
