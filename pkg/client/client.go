package client

import (
	"context"
	"staybook/pkg/logger"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Client holds the shared connections of a process. Unused backends stay nil.
type Client struct {
	Mongo    *mongo.Client
	Postgres *pgxpool.Pool
	Redis    *redis.Client
}

func NewClient() *Client {
	return &Client{}
}

func (c *Client) SetMongo(log *logger.Logger, mongoURI string, mongoConnTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), mongoConnTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
	if err != nil {
		log.Fatal("Failed to connect to MongoDB", "error", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		log.Fatal("Failed to ping MongoDB", "error", err)
	}

	log.Info("Successfully connected to MongoDB")
	c.Mongo = client
}

func (c *Client) SetPostgres(log *logger.Logger, dsn string, maxConns int32, connTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), connTimeout)
	defer cancel()

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		log.Fatal("Invalid PostgreSQL DSN", "error", err)
	}
	poolCfg.MaxConns = maxConns

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		log.Fatal("Failed to create PostgreSQL pool", "error", err)
	}

	if err := pool.Ping(ctx); err != nil {
		log.Fatal("Failed to ping PostgreSQL", "error", err)
	}

	log.Info("Successfully connected to PostgreSQL", "max_conns", maxConns)
	c.Postgres = pool
}

func (c *Client) SetRedis(log *logger.Logger, redisURL string, connTimeout time.Duration) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Fatal("Invalid Redis URL", "error", err)
	}
	opts.DialTimeout = connTimeout

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), connTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal("Failed to ping Redis", "error", err)
	}

	log.Info("Successfully connected to Redis", "addr", opts.Addr)
	c.Redis = rdb
}

func (c *Client) GracefulShutdown(log *logger.Logger, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if c.Mongo != nil {
		if err := c.Mongo.Disconnect(ctx); err != nil {
			log.Error("Failed to disconnect from MongoDB", "error", err)
		} else {
			log.Info("Disconnected from MongoDB")
		}
	}
	if c.Postgres != nil {
		c.Postgres.Close()
		log.Info("Closed PostgreSQL pool")
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			log.Error("Failed to close Redis client", "error", err)
		} else {
			log.Info("Closed Redis client")
		}
	}
}
