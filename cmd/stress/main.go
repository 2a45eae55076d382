package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog"

	"github.com/medilink/pharmacy/internal/adapter/storage"
	"github.com/medilink/pharmacy/internal/core/domain"
	"github.com/medilink/pharmacy/internal/core/service"
)

const (
	mysqlDSN      = "root:root@tcp(localhost:3306)/pharmacy?parseTime=true"
	initialStock  = 20
	totalRequests = 50
)

// Fires concurrent single-unit decrements at one medicine and checks that
// exactly initialStock of them succeed and the final quantity is zero.
func main() {
	ctx := context.Background()
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()

	db, err := sql.Open("mysql", mysqlDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect mysql")
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to ping mysql")
	}

	adapter := storage.NewMySQLAdapter(db)
	pharmacy := service.NewPharmacyService(adapter, adapter, adapter, nil, logger)

	med, err := pharmacy.RegisterMedicine(ctx, service.RegisterMedicineRequest{
		Name:  fmt.Sprintf("stress-med-%d", time.Now().UnixNano()),
		Stock: initialStock,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to register medicine")
	}

	var successCount atomic.Int32
	var failCount atomic.Int32

	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			delta := -1
			_, err := pharmacy.AdjustStock(ctx, med.ID, service.StockAdjustment{Delta: &delta})
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				failCount.Add(1)
			default:
				logger.Error().Err(err).Msg("unexpected adjust error")
				failCount.Add(1)
			}
		}()
	}

	wg.Wait()
	elapsed := time.Since(start)

	success := successCount.Load()
	fail := failCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Failed:           %d\n", fail)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	if success == int32(initialStock) && fail == int32(totalRequests-initialStock) {
		fmt.Printf("PASS: Exactly %d decrements succeeded, %d rejected\n", initialStock, totalRequests-initialStock)
	} else {
		fmt.Printf("FAIL: Expected %d success/%d fail, got %d/%d\n",
			initialStock, totalRequests-initialStock, success, fail)
	}

	final, err := pharmacy.GetMedicine(ctx, med.ID)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to reload medicine")
	}
	fmt.Printf("Final Stock: %d\n", final.Stock)

	if final.Stock == 0 {
		fmt.Println("PASS: Stock depleted to 0")
	} else {
		fmt.Printf("FAIL: Expected stock 0, got %d\n", final.Stock)
	}
}
