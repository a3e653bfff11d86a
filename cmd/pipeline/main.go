package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/afoxnyc3/invoice-agent/internal/breaker"
	"github.com/afoxnyc3/invoice-agent/internal/chatnotify"
	"github.com/afoxnyc3/invoice-agent/internal/config"
	"github.com/afoxnyc3/invoice-agent/internal/graphmail"
	"github.com/afoxnyc3/invoice-agent/internal/idgen"
	"github.com/afoxnyc3/invoice-agent/internal/llmvendor"
	"github.com/afoxnyc3/invoice-agent/internal/pipeline"
	"github.com/afoxnyc3/invoice-agent/internal/queue"
	"github.com/afoxnyc3/invoice-agent/internal/storage"
	"github.com/afoxnyc3/invoice-agent/internal/vendormatch"

	bedrockconfig "github.com/aws/aws-sdk-go-v2/config"
)

func main() {
	log.Println("Starting invoice-agent Enrichment/Routing/Notification pipeline...")

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
	fabric := queue.NewFabric(sqsClient, queue.URLs{
		Notifications:       cfg.Queue.NotificationsURL,
		NotificationsPoison: cfg.Queue.NotificationsURL + "-poison",
		RawMail:             cfg.Queue.RawMailURL,
		RawMailPoison:       cfg.Queue.RawMailURL + "-poison",
		ToPost:              cfg.Queue.ToPostURL,
		ToPostPoison:        cfg.Queue.ToPostURL + "-poison",
		Notify:              cfg.Queue.NotifyURL,
		NotifyPoison:        cfg.Queue.NotifyURL + "-poison",
		MaxDequeues:         cfg.Queue.MaxDequeues(),
	})

	awsClients, err := storage.NewClients(ctx, cfg.Storage.AWSRegion, cfg.Storage.GetAWSProfile())
	if err != nil {
		log.Fatalf("connect to AWS storage: %v", err)
	}
	blobs := storage.NewS3BlobStore(awsClients.S3, cfg.Storage.AttachmentBucket)
	txlog := storage.NewDynamoTransactionLog(awsClients.DynamoDB, cfg.Storage.TransactionTable)
	vendorStore := storage.NewDynamoVendorStore(awsClients.DynamoDB, cfg.Storage.VendorTable, cfg.Storage.VendorShardThreshold)

	bedrockCfg, err := bedrockconfig.LoadDefaultConfig(ctx, bedrockconfig.WithRegion(cfg.Storage.AWSRegion))
	if err != nil {
		log.Fatalf("load bedrock AWS config: %v", err)
	}
	bedrockClient := bedrockruntime.NewFromConfig(bedrockCfg)

	breakers := breaker.NewRegistry(cfg.Breaker)
	ids := idgen.New()

	llm := pipeline.WrapLLMMatcher(llmvendor.New(bedrockClient, cfg.LLM.Model), breakers)
	matcher := vendormatch.NewMatcher(vendorStore, llm, cfg.Vendor.CacheTTL(), cfg.Vendor.Threshold())

	mail := graphmail.New(cfg.Graph.BaseURL, cfg.Graph.ClientSecret, cfg.Graph.Timeout())
	chat := chatnotify.New(cfg.Chat.WebhookURL, cfg.Chat.Timeout())

	enricher := pipeline.NewEnricher(
		fabric.RawMail, fabric.ToPost, fabric.Notify, blobs, txlog, matcher, breakers, ids, cfg.Mailbox,
	)
	router := pipeline.NewRouter(
		fabric.ToPost, fabric.Notify, blobs, txlog, mail, breakers, ids, cfg.Mailbox,
	)
	notifier := pipeline.NewNotifier(fabric.Notify, chat, breakers)

	go enricher.Run(ctx)
	log.Println("Enricher started")
	go router.Run(ctx)
	log.Println("Router started")
	go notifier.Run(ctx)
	log.Println("Notifier started")

	<-ctx.Done()
	log.Println("Pipeline stopped")
}
