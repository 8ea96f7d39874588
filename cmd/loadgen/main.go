package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rl1809/storefront/internal/adapter/bus"
	"github.com/rl1809/storefront/internal/adapter/storage"
	"github.com/rl1809/storefront/internal/config"
	"github.com/rl1809/storefront/internal/core/service"
	"github.com/rl1809/storefront/internal/logger"
	"github.com/rl1809/storefront/internal/observability"
)

const (
	loadgenTopic   = "revenue:loadgen"
	loadgenFeedKey = "notifications:loadgen"
)

func main() {
	os.Exit(run())
}

// run completes orders against a live broker, each one twice, and checks that
// every order is announced once and the feed stays within capacity.
func run() int {
	orders := flag.Int("orders", 50, "distinct orders to complete")
	capacity := flag.Int("capacity", 10, "feed capacity")
	wait := flag.Duration("wait", 5*time.Second, "how long to wait for delivery")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		return 1
	}
	log, err := logger.New("development")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		return 1
	}
	log = log.WithOptions(zap.IncreaseLevel(zap.WarnLevel))

	ctx := context.Background()
	rdb := redis.NewClient(cfg.RedisOptions(20))
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Error("failed to connect broker", zap.Error(err))
		return 1
	}
	subscriber := redis.NewClient(cfg.RedisOptions(2))
	defer subscriber.Close()

	// Clear previous run
	rdb.Del(ctx, loadgenFeedKey)
	keys, _ := rdb.Keys(ctx, "order:completed:LOAD-*").Result()
	if len(keys) > 0 {
		rdb.Del(ctx, keys...)
	}

	metrics := observability.NewCollector("loadgen")
	eventBus := bus.NewRedisBus(rdb, subscriber, metrics, log)
	cache := storage.NewRedisCache(rdb, cfg.CacheTimeout, metrics, log)
	feed := storage.NewRedisFeedStore(rdb, loadgenFeedKey, cfg.StoreTimeout, log)

	consumer := service.NewNotificationConsumer(eventBus, feed, loadgenTopic, *capacity, log)
	if err := consumer.Start(ctx); err != nil {
		log.Error("consumer could not subscribe", zap.Error(err))
		return 1
	}
	defer consumer.Stop()

	producer := service.NewRevenueProducer(eventBus, loadgenTopic, cfg.PublishTimeout, log)
	orderService := service.NewOrderService(cache, producer, log)

	var completed, duplicates, failed atomic.Int32
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < *orders; i++ {
		for attempt := 0; attempt < 2; attempt++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				_, err := orderService.Complete(ctx, fmt.Sprintf("LOAD-%d", id), float64(id)+0.5, "loadgen")
				switch {
				case err == nil:
					completed.Add(1)
				case errors.Is(err, service.ErrDuplicateCompletion):
					duplicates.Add(1)
				default:
					failed.Add(1)
				}
			}(i)
		}
	}
	wg.Wait()
	elapsed := time.Since(start)

	expected := min(*orders, *capacity)
	deadline := time.Now().Add(*wait)
	var stored int64
	for time.Now().Before(deadline) {
		stored, _ = rdb.LLen(ctx, loadgenFeedKey).Result()
		if stored >= int64(expected) {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	// Late deliveries must not push the feed past capacity.
	time.Sleep(200 * time.Millisecond)
	stored, _ = rdb.LLen(ctx, loadgenFeedKey).Result()

	fmt.Println("========== LOADGEN RESULTS ==========")
	fmt.Printf("Orders:           %d (x2 attempts)\n", *orders)
	fmt.Printf("Completed:        %d\n", completed.Load())
	fmt.Printf("Duplicates:       %d\n", duplicates.Load())
	fmt.Printf("Failed:           %d\n", failed.Load())
	fmt.Printf("Feed length:      %d (capacity %d)\n", stored, *capacity)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("======================================")

	ok := true
	if completed.Load() != int32(*orders) || duplicates.Load() != int32(*orders) {
		fmt.Printf("FAIL: expected %d completions and %d duplicates\n", *orders, *orders)
		ok = false
	}
	if stored != int64(expected) {
		fmt.Printf("FAIL: expected feed length %d, got %d\n", expected, stored)
		ok = false
	}
	if !ok {
		return 1
	}
	fmt.Println("PASS")
	return 0
}
