package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/afoxnyc3/invoice-agent/internal/breaker"
	"github.com/afoxnyc3/invoice-agent/internal/config"
	"github.com/afoxnyc3/invoice-agent/internal/graphmail"
	"github.com/afoxnyc3/invoice-agent/internal/idgen"
	"github.com/afoxnyc3/invoice-agent/internal/ingest"
	"github.com/afoxnyc3/invoice-agent/internal/queue"
	"github.com/afoxnyc3/invoice-agent/internal/storage"
)

func main() {
	log.Println("Starting invoice-agent Notification Worker + Timer Poller...")

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

	sqsClient, err := queue.NewSQSClient(ctx, cfg.Queue.AWSRegion, cfg.Storage.GetAWSProfile())
	if err != nil {
		log.Fatalf("connect to SQS: %v", err)
	}
	maxDequeues := queue.WithMaxDequeues(cfg.Queue.MaxDequeues())
	notifications := queue.New(sqsClient, cfg.Queue.NotificationsURL, cfg.Queue.NotificationsURL+"-poison", maxDequeues)
	rawMail := queue.New(sqsClient, cfg.Queue.RawMailURL, cfg.Queue.RawMailURL+"-poison", maxDequeues)

	awsClients, err := storage.NewClients(ctx, cfg.Storage.AWSRegion, cfg.Storage.GetAWSProfile())
	if err != nil {
		log.Fatalf("connect to AWS storage: %v", err)
	}
	blobs := storage.NewS3BlobStore(awsClients.S3, cfg.Storage.AttachmentBucket)
	txlog := storage.NewDynamoTransactionLog(awsClients.DynamoDB, cfg.Storage.TransactionTable)

	graph := graphmail.New(cfg.Graph.BaseURL, cfg.Graph.ClientSecret, cfg.Graph.Timeout())
	breakers := breaker.NewRegistry(cfg.Breaker)
	ids := idgen.New()

	worker := ingest.NewNotificationWorker(
		notifications, rawMail, graph, blobs, txlog, breakers, ids, cfg.Mailbox, true,
	)
	go worker.Run(ctx)
	log.Println("Notification Worker started")

	if cfg.Polling.Enabled {
		poller := ingest.NewPoller(
			graph, rawMail, blobs, txlog, breakers, ids, cfg.Mailbox, cfg.Polling, true,
		)
		go poller.Run(ctx)
		log.Printf("Timer Poller started (interval %s)", cfg.Polling.Interval())
	} else {
		log.Println("Timer Poller disabled by configuration")
	}

	<-ctx.Done()
	log.Println("Notification Worker + Timer Poller stopped")
}
