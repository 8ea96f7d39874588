package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/rl1809/storefront/internal/adapter/bus"
	"github.com/rl1809/storefront/internal/adapter/handler"
	"github.com/rl1809/storefront/internal/adapter/storage"
	"github.com/rl1809/storefront/internal/config"
	"github.com/rl1809/storefront/internal/core/service"
	"github.com/rl1809/storefront/internal/logger"
	"github.com/rl1809/storefront/internal/observability"
	"github.com/rl1809/storefront/internal/port"
)

const healthSyncInterval = 2 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	metrics := observability.NewCollector("storefront")

	// Commands and the subscription never share a connection: a subscribed
	// connection only accepts (un)subscribe commands.
	rdb := redis.NewClient(cfg.RedisOptions(100))
	if err := rdb.Ping(ctx).Err(); err != nil {
		// The cache degrades to misses, so a missing broker is not fatal here.
		log.Warn("broker unreachable at startup", zap.String("addr", cfg.BrokerAddr()), zap.Error(err))
	} else {
		log.Info("connected to broker", zap.String("addr", cfg.BrokerAddr()))
	}
	subscriber := redis.NewClient(cfg.RedisOptions(2))

	catalogRepo, closeCatalog, err := openCatalog(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to open catalog store", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}

	eventBus, closeBus := openBus(cfg, rdb, subscriber, metrics, log)

	cache := storage.NewRedisCache(rdb, cfg.CacheTimeout, metrics, log)
	feedStore := storage.NewRedisFeedStore(rdb, cfg.FeedKey, cfg.StoreTimeout, log)

	cacheAside := service.NewCacheAside(cache, cfg.StoreTimeout, log)
	catalogService := service.NewCatalogService(catalogRepo, cacheAside, cfg.CollectionTTL, cfg.EntityTTL)
	producer := service.NewRevenueProducer(eventBus, cfg.RevenueTopic, cfg.PublishTimeout, log)
	orderService := service.NewOrderService(cache, producer, log)
	consumer := service.NewNotificationConsumer(eventBus, feedStore, cfg.RevenueTopic, cfg.FeedCapacity, log)

	if err := consumer.Start(ctx); err != nil {
		log.Fatal("revenue consumer could not subscribe", zap.Error(err))
	}

	// gRPC health
	grpcServer := grpc.NewServer()
	healthHandler := handler.NewGRPCHealthHandler(consumer, log)
	healthHandler.Register(grpcServer)
	go healthHandler.Run(ctx, healthSyncInterval)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatal("failed to listen", zap.String("addr", cfg.GRPCAddr), zap.Error(err))
	}
	go func() {
		log.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			log.Error("gRPC server error", zap.Error(err))
		}
	}()

	// HTTP
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), logger.RequestLogger(log), metrics.GinMiddleware())
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	handler.NewHTTPHandler(catalogService, orderService, consumer, log).Register(router)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", zap.Error(err))
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP shutdown failed", zap.Error(err))
	}
	log.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	log.Info("gRPC server stopped")

	if err := consumer.Stop(); err != nil {
		log.Error("consumer stop failed", zap.Error(err))
	}
	log.Info("consumer stopped")

	closeBus()
	if err := closeCatalog(shutdownCtx); err != nil {
		log.Error("catalog store close failed", zap.Error(err))
	}
	if err := subscriber.Close(); err != nil {
		log.Error("subscriber close failed", zap.Error(err))
	}
	if err := rdb.Close(); err != nil {
		log.Error("broker close failed", zap.Error(err))
	}
	log.Info("connections closed")
}

func openCatalog(ctx context.Context, cfg config.Config, log *zap.Logger) (port.CatalogRepository, func(context.Context) error, error) {
	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	switch cfg.StoreDriver {
	case config.StoreDriverMongo:
		client, err := mongo.Connect(initCtx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, nil, err
		}
		if err := client.Ping(initCtx, nil); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, fmt.Errorf("ping mongo: %w", err)
		}
		repo := storage.NewMongoAdapter(client.Database(cfg.MongoDB))
		if err := repo.EnsureIndexes(initCtx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, fmt.Errorf("ensure indexes: %w", err)
		}
		log.Info("connected to mongo", zap.String("database", cfg.MongoDB))
		return repo, client.Disconnect, nil

	default:
		db, err := sql.Open("mysql", cfg.MySQLDSN)
		if err != nil {
			return nil, nil, err
		}
		db.SetMaxOpenConns(50)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.PingContext(initCtx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("ping mysql: %w", err)
		}
		repo := storage.NewMySQLAdapter(db)
		if err := repo.EnsureSchema(initCtx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("ensure schema: %w", err)
		}
		log.Info("connected to mysql")
		return repo, func(context.Context) error { return db.Close() }, nil
	}
}

func openBus(cfg config.Config, rdb, subscriber *redis.Client, metrics *observability.Collector, log *zap.Logger) (port.EventBus, func()) {
	var closer io.Closer
	var eventBus port.EventBus

	switch cfg.BusDriver {
	case config.BusDriverKafka:
		kb := bus.NewKafkaBus(cfg.KafkaBrokers, metrics, log)
		eventBus, closer = kb, kb
		log.Info("using kafka event bus", zap.Strings("brokers", cfg.KafkaBrokers))
	default:
		eventBus = bus.NewRedisBus(rdb, subscriber, metrics, log)
		log.Info("using redis event bus")
	}

	return eventBus, func() {
		if closer == nil {
			return
		}
		if err := closer.Close(); err != nil {
			log.Error("event bus close failed", zap.Error(err))
		}
	}
}
