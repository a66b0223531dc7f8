package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"

	"github.com/IDiwizerI/seller-bot/internal/adapter/events"
	"github.com/IDiwizerI/seller-bot/internal/adapter/notifier"
	"github.com/IDiwizerI/seller-bot/internal/adapter/storage"
	"github.com/IDiwizerI/seller-bot/internal/core/domain"
	"github.com/IDiwizerI/seller-bot/internal/core/service"
)

const (
	redisAddr        = "localhost:6379"
	mysqlDSN         = "root:root@tcp(localhost:3306)/sellerbot?parseTime=true"
	totalOrders      = 10
	confirmsPerParty = 25
)

func main() {
	ctx := context.Background()

	// Initialize Redis
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer rdb.Close()

	// Initialize MySQL
	db, err := sql.Open("mysql", mysqlDSN)
	if err != nil {
		log.Fatalf("failed to open mysql: %v", err)
	}
	defer db.Close()
	if err := storage.Migrate(ctx, db); err != nil {
		log.Fatalf("failed to migrate: %v", err)
	}

	dir, err := os.MkdirTemp("", "stress-audit")
	if err != nil {
		log.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(dir)
	audit, err := storage.OpenSQLiteAuditLog(filepath.Join(dir, "audit.db"), 4, nil)
	if err != nil {
		log.Fatalf("failed to open audit log: %v", err)
	}
	defer audit.Close()

	// Initialize adapters and service
	mysqlAdapter := storage.NewMySQLAdapter(db)
	redisAdapter := storage.NewRedisAdapter(rdb, 5*time.Second, time.Hour)
	transactions := service.NewTransactionService(mysqlAdapter, redisAdapter, notifier.NewLogNotifier(nil),
		redisAdapter, audit, events.NopPublisher{}, nil)

	// Prepare one approved listing and one open order per pair
	base := time.Now().UnixNano() / 1000 * 1000
	type pair struct {
		seller, buyer int64
		listingID     int64
		orderID       int64
	}
	pairs := make([]pair, totalOrders)
	for i := range pairs {
		p := pair{seller: base + int64(i)*2 + 1, buyer: base + int64(i)*2 + 2}
		l, err := mysqlAdapter.CreateListing(ctx, domain.Listing{
			SellerID: p.seller, Name: fmt.Sprintf("Item %d", i), Description: "stress",
			Price: "1", Contact: "@stress", Kind: domain.ListingKindProduct,
		})
		if err != nil {
			log.Fatalf("failed to create listing: %v", err)
		}
		if err := mysqlAdapter.MarkApproved(ctx, l.ID, 0); err != nil {
			log.Fatalf("failed to approve listing: %v", err)
		}
		o, err := transactions.Initiate(ctx, p.buyer, l.ID)
		if err != nil {
			log.Fatalf("failed to open order: %v", err)
		}
		p.listingID, p.orderID = l.ID, o.ID
		pairs[i] = p
	}

	var (
		completedCount atomic.Int32
		acceptedCount  atomic.Int32
		rejectedCount  atomic.Int32
		errorCount     atomic.Int32
		wg             sync.WaitGroup
	)

	start := time.Now()
	for _, p := range pairs {
		for i := 0; i < confirmsPerParty; i++ {
			for _, c := range []struct {
				user int64
				role domain.Role
			}{{p.seller, domain.RoleSeller}, {p.buyer, domain.RoleBuyer}} {
				wg.Add(1)
				go func(orderID, user int64, role domain.Role) {
					defer wg.Done()
					res, err := transactions.Confirm(ctx, user, orderID, role)
					switch {
					case err == nil && res.Completed:
						completedCount.Add(1)
					case err == nil:
						acceptedCount.Add(1)
					case errors.Is(err, domain.ErrInvalidState):
						rejectedCount.Add(1)
					default:
						errorCount.Add(1)
						log.Printf("confirm order %d: %v", orderID, err)
					}
				}(p.orderID, c.user, c.role)
			}
		}
	}
	wg.Wait()
	elapsed := time.Since(start)

	soldCount := 0
	for _, p := range pairs {
		l, err := mysqlAdapter.GetListing(ctx, p.listingID)
		if err != nil {
			log.Fatalf("failed to reload listing: %v", err)
		}
		if l.Status == domain.ListingStatusSold {
			soldCount++
		}
	}

	fmt.Println("\n========== STRESS TEST RESULTS ==========")
	fmt.Printf("Orders:            %d\n", totalOrders)
	fmt.Printf("Confirm Calls:     %d\n", totalOrders*confirmsPerParty*2)
	fmt.Printf("Completions:       %d\n", completedCount.Load())
	fmt.Printf("Partial Confirms:  %d\n", acceptedCount.Load())
	fmt.Printf("Rejected:          %d\n", rejectedCount.Load())
	fmt.Printf("Errors:            %d\n", errorCount.Load())
	fmt.Printf("Listings Sold:     %d\n", soldCount)
	fmt.Printf("Elapsed:           %s\n", elapsed)
	fmt.Println("==========================================")

	if completedCount.Load() == totalOrders {
		fmt.Println("✅ PASS: Exactly one completion per order")
	} else {
		fmt.Printf("❌ FAIL: Expected %d completions, got %d\n", totalOrders, completedCount.Load())
	}

	if soldCount == totalOrders {
		fmt.Println("✅ PASS: Every listing marked sold")
	} else {
		fmt.Printf("❌ FAIL: Expected %d sold listings, got %d\n", totalOrders, soldCount)
	}

	if errorCount.Load() == 0 {
		fmt.Println("✅ PASS: No unexpected errors")
	} else {
		fmt.Printf("❌ FAIL: %d unexpected errors\n", errorCount.Load())
	}
}
