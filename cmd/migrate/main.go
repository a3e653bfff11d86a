package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/afoxnyc3/invoice-agent/internal/config"
	"github.com/afoxnyc3/invoice-agent/internal/storage"
)

// table describes a DynamoDB table this tool can bring into existence.
// Every store in internal/storage keys its rows with the same pk/sk
// composite, so one shape covers all three tables.
type table struct {
	name string
}

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}
	cfg, err := config.LoadFromEnv(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	listOnly := false
	for _, a := range os.Args[1:] {
		if a == "--list" {
			listOnly = true
		}
	}

	ctx := context.Background()
	clients, err := storage.NewClients(ctx, cfg.Storage.AWSRegion, cfg.Storage.GetAWSProfile())
	if err != nil {
		log.Fatalf("connect to AWS: %v", err)
	}

	tables := []table{
		{name: cfg.Storage.TransactionTable},
		{name: cfg.Storage.VendorTable},
		{name: cfg.Storage.SubscriptionTable},
	}

	if listOnly {
		for _, t := range tables {
			fmt.Println(" ", t.name)
		}
		fmt.Println(" ", cfg.Storage.AttachmentBucket, "(s3 bucket)")
		return
	}

	var okCount, errCount int
	for _, t := range tables {
		fmt.Printf("  table %s ... ", t.name)
		if err := createTable(ctx, clients.DynamoDB, t.name); err != nil {
			fmt.Printf("ERROR: %v\n", err)
			errCount++
			continue
		}
		fmt.Println("OK")
		okCount++
	}

	fmt.Printf("  bucket %s ... ", cfg.Storage.AttachmentBucket)
	if err := createBucket(ctx, clients.S3, cfg.Storage.AttachmentBucket, cfg.Storage.AWSRegion); err != nil {
		fmt.Printf("ERROR: %v\n", err)
		errCount++
	} else {
		fmt.Println("OK")
		okCount++
	}

	log.Printf("Done: %d OK, %d errors", okCount, errCount)
	log.Println("Bootstrap complete")
}

func createTable(ctx context.Context, db *dynamodb.Client, name string) error {
	_, err := db.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: &name,
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: strPtr("pk"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: strPtr("sk"), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: strPtr("pk"), KeyType: types.KeyTypeHash},
			{AttributeName: strPtr("sk"), KeyType: types.KeyTypeRange},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	var inUse *types.ResourceInUseException
	if err != nil && !errors.As(err, &inUse) {
		return err
	}
	return nil
}

func createBucket(ctx context.Context, s3c *s3.Client, bucket, region string) error {
	input := &s3.CreateBucketInput{Bucket: &bucket}
	if region != "" && region != "us-east-1" {
		input.CreateBucketConfiguration = &s3types.CreateBucketConfiguration{
			LocationConstraint: s3types.BucketLocationConstraint(region),
		}
	}
	_, err := s3c.CreateBucket(ctx, input)
	var owned *s3types.BucketAlreadyOwnedByYou
	var exists *s3types.BucketAlreadyExists
	if err != nil && !errors.As(err, &owned) && !errors.As(err, &exists) {
		return err
	}
	return nil
}

func strPtr(s string) *string { return &s }
