package queue

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// Fabric is the C4 queue fabric: the four logical queues, each
// wired to its own poison sibling.
type Fabric struct {
	Notifications *Queue
	RawMail       *Queue
	ToPost        *Queue
	Notify        *Queue
}

// URLs names the four logical queue URLs, each with its own poison-queue
// URL, and the dead-letter threshold a Fabric is built from.
type URLs struct {
	Notifications       string
	NotificationsPoison string
	RawMail              string
	RawMailPoison        string
	ToPost               string
	ToPostPoison         string
	Notify               string
	NotifyPoison         string
	MaxDequeues          int
}

// NewFabric wires the four logical queues over a single SQS client.
func NewFabric(client sqsAPI, u URLs) *Fabric {
	opt := WithMaxDequeues(u.MaxDequeues)
	return &Fabric{
		Notifications: New(client, u.Notifications, u.NotificationsPoison, opt),
		RawMail:       New(client, u.RawMail, u.RawMailPoison, opt),
		ToPost:        New(client, u.ToPost, u.ToPostPoison, opt),
		Notify:        New(client, u.Notify, u.NotifyPoison, opt),
	}
}

// NewSQSClient bootstraps the SQS client the same way
// internal/storage.NewClients bootstraps DynamoDB/S3: region-scoped
// default config, with an optional shared-config profile for local/dev use
// (IAM role assumed implicitly on ECS/Lambda, where profile is empty).
func NewSQSClient(ctx context.Context, region, profile string) (*sqs.Client, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(profile))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("queue: load aws config: %w", err)
	}
	return sqs.NewFromConfig(cfg), nil
}
