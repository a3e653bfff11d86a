// Package storage holds the DynamoDB- and S3-backed persistence for the
// Vendor Store (C1), Transaction Log (C2), Subscription Registry (C3), and
// attachment blob storage. The AWS client bootstrap pattern (region +
// optional shared-profile config loading) follows a conventional AWS SDK v2
// constructor shape.
package storage

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// dynamoAPI is the subset of *dynamodb.Client every store in this package
// depends on. Narrowing to an interface (rather than threading the
// concrete client through) lets tests substitute an in-memory fake instead
// of talking to real DynamoDB, following the interface-over-concrete-client
// convention used throughout this codebase.
type dynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// s3API is the subset of *s3.Client the blob store depends on.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Clients bundles the AWS service clients every storage component needs.
type Clients struct {
	DynamoDB *dynamodb.Client
	S3       *s3.Client
}

// NewClients loads AWS config (optionally pinned to a named shared-config
// profile) and constructs the DynamoDB and S3 clients backing C1-C3 and the
// attachment blob store.
func NewClients(ctx context.Context, region, profile string) (*Clients, error) {
	var cfg aws.Config
	var err error

	if profile != "" {
		cfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(region),
			awsconfig.WithSharedConfigProfile(profile),
		)
	} else {
		cfg, err = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	}
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return &Clients{
		DynamoDB: dynamodb.NewFromConfig(cfg),
		S3:       s3.NewFromConfig(cfg),
	}, nil
}
