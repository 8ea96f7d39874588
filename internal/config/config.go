// Package config loads runtime configuration from the environment.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

const (
	StoreDriverMySQL = "mysql"
	StoreDriverMongo = "mongo"

	BusDriverRedis = "redis"
	BusDriverKafka = "kafka"
)

type Config struct {
	Env             string
	HTTPAddr        string
	GRPCAddr        string
	ShutdownTimeout time.Duration

	BrokerHost     string
	BrokerPort     string
	BrokerPassword string
	BrokerDB       int

	BusDriver    string
	KafkaBrokers []string
	RevenueTopic string

	FeedKey      string
	FeedCapacity int

	CollectionTTL  time.Duration
	EntityTTL      time.Duration
	CacheTimeout   time.Duration
	StoreTimeout   time.Duration
	PublishTimeout time.Duration

	StoreDriver string
	MySQLDSN    string
	MongoURI    string
	MongoDB     string
}

// BrokerAddr is the host:port of the cache and pub/sub broker.
func (c Config) BrokerAddr() string {
	return net.JoinHostPort(c.BrokerHost, c.BrokerPort)
}

// RedisOptions returns client options for the broker. Per-call context
// deadlines bound socket I/O, so the cache, store and publish timeouts hold
// against a broker that accepts connections but never answers.
func (c Config) RedisOptions(poolSize int) *redis.Options {
	return &redis.Options{
		Addr:                  c.BrokerAddr(),
		Password:              c.BrokerPassword,
		DB:                    c.BrokerDB,
		PoolSize:              poolSize,
		ContextTimeoutEnabled: true,
	}
}

// Load reads an optional .env file, then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Env:             getEnv("APP_ENV", "development"),
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		GRPCAddr:        getEnv("GRPC_ADDR", ":50051"),
		ShutdownTimeout: seconds("SHUTDOWN_TIMEOUT_SECONDS", 5),

		BrokerHost:     getEnv("BROKER_HOST", "localhost"),
		BrokerPort:     getEnv("BROKER_PORT", "6379"),
		BrokerPassword: os.Getenv("BROKER_PASSWORD"),
		BrokerDB:       atoi("BROKER_DB", 0),

		BusDriver:    getEnv("BUS_DRIVER", BusDriverRedis),
		KafkaBrokers: splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
		RevenueTopic: getEnv("REVENUE_TOPIC", "revenue:events"),

		FeedKey:      getEnv("FEED_KEY", "notifications:admin"),
		FeedCapacity: atoi("FEED_CAPACITY", 50),

		CollectionTTL:  seconds("COLLECTION_TTL_SECONDS", 300),
		EntityTTL:      seconds("ENTITY_TTL_SECONDS", 600),
		CacheTimeout:   millis("CACHE_TIMEOUT_MS", 200),
		StoreTimeout:   millis("STORE_TIMEOUT_MS", 2000),
		PublishTimeout: millis("PUBLISH_TIMEOUT_MS", 1000),

		StoreDriver: getEnv("STORE_DRIVER", StoreDriverMySQL),
		MySQLDSN:    getEnv("MYSQL_DSN", "root:root@tcp(localhost:3306)/storefront?parseTime=true"),
		MongoURI:    getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:     getEnv("MONGO_DB", "storefront"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.FeedCapacity <= 0 {
		return fmt.Errorf("FEED_CAPACITY must be positive, got %d", c.FeedCapacity)
	}
	if c.CollectionTTL <= 0 || c.EntityTTL <= 0 {
		return fmt.Errorf("cache TTLs must be positive")
	}
	if c.CacheTimeout <= 0 || c.StoreTimeout <= 0 || c.PublishTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	switch c.StoreDriver {
	case StoreDriverMySQL, StoreDriverMongo:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	switch c.BusDriver {
	case BusDriverRedis:
	case BusDriverKafka:
		if len(c.KafkaBrokers) == 0 {
			return fmt.Errorf("KAFKA_BROKERS is required for the kafka bus")
		}
	default:
		return fmt.Errorf("unknown BUS_DRIVER %q", c.BusDriver)
	}
	if c.RevenueTopic == "" {
		return fmt.Errorf("REVENUE_TOPIC is required")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func atoi(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func seconds(key string, fallback int) time.Duration {
	return time.Duration(atoi(key, fallback)) * time.Second
}

func millis(key string, fallback int) time.Duration {
	return time.Duration(atoi(key, fallback)) * time.Millisecond
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
