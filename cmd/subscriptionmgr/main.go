package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/afoxnyc3/invoice-agent/internal/breaker"
	"github.com/afoxnyc3/invoice-agent/internal/config"
	"github.com/afoxnyc3/invoice-agent/internal/graphmail"
	"github.com/afoxnyc3/invoice-agent/internal/idgen"
	"github.com/afoxnyc3/invoice-agent/internal/pkg/distlock"
	"github.com/afoxnyc3/invoice-agent/internal/storage"
	"github.com/afoxnyc3/invoice-agent/internal/subscriptionmgr"
)

const watchedResource = "me/mailFolders/inbox/messages"

func main() {
	log.Println("Starting invoice-agent Subscription Manager...")

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}
	cfg, err := config.LoadFromEnv(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	lockFactory := func(key string, ttl time.Duration) distlock.DistLock {
		return distlock.NewLock(redisClient, nil, key, ttl)
	}

	awsClients, err := storage.NewClients(ctx, cfg.Storage.AWSRegion, cfg.Storage.GetAWSProfile())
	if err != nil {
		log.Fatalf("connect to AWS storage: %v", err)
	}
	registry := storage.NewDynamoSubscriptionRegistry(awsClients.DynamoDB, cfg.Storage.SubscriptionTable)

	graph := graphmail.New(cfg.Graph.BaseURL, cfg.Graph.ClientSecret, cfg.Graph.Timeout())
	breakers := breaker.NewRegistry(cfg.Breaker)
	ids := idgen.New()

	manager := subscriptionmgr.New(
		registry, graph, lockFactory, breakers, ids, cfg.Graph, cfg.Subscription, watchedResource,
	)

	go manager.Run(ctx)
	log.Println("Subscription Manager started")

	<-ctx.Done()
	log.Println("Subscription Manager stopped")
}
