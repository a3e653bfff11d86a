// Package queue implements the C4 queue fabric: four logical SQS queues
// (notifications, raw-mail, to-post, notify), each with a poison/dead-letter
// sibling. Generalized from a tracking-events publisher/consumer pair that
// did the same send/long-poll/delete dance for a single queue.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// sqsAPI is the narrow surface this package needs, matching
// internal/storage's convention of interfacing over just the client
// methods actually called so tests can swap in an in-memory fake.
type sqsAPI interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, opts ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, opts ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, opts ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// DefaultMaxDequeues is the system-wide dead-letter threshold.
const DefaultMaxDequeues = 3

// Message is a received queue entry: the raw body plus the bookkeeping
// ("message id, dequeue count, insertion time, visibility timeout,
// pop receipt") a worker needs to ack or escalate it.
type Message struct {
	Body          string
	MessageID     string
	ReceiptHandle string
	DequeueCount  int
}

// Decode unmarshals the message body into v.
func (m Message) Decode(v any) error {
	if err := json.Unmarshal([]byte(m.Body), v); err != nil {
		return fmt.Errorf("queue: decode message %s: %w", m.MessageID, err)
	}
	return nil
}

// Queue wraps one logical queue and its poison-queue sibling.
type Queue struct {
	client      sqsAPI
	url         string
	poisonURL   string
	maxDequeues int
}

// Option configures a Queue's dead-letter threshold; with no Option, or
// WithMaxDequeues(n) for n <= 0, the Queue uses DefaultMaxDequeues.
type Option func(*Queue)

// WithMaxDequeues overrides the dead-letter threshold for this queue.
func WithMaxDequeues(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.maxDequeues = n
		}
	}
}

func New(client sqsAPI, url, poisonURL string, opts ...Option) *Queue {
	q := &Queue{client: client, url: url, poisonURL: poisonURL, maxDequeues: DefaultMaxDequeues}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Publish marshals v as JSON and sends it. Callers are expected to stamp
// a schema_version field on v themselves (domain types do this via their
// SchemaVersion field).
func (q *Queue) Publish(ctx context.Context, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("queue: marshal: %w", err)
	}
	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.url),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("queue: send to %s: %w", q.url, err)
	}
	return nil
}

// Poll long-polls for up to maxMessages (SQS caps this at 10), requesting
// the approximate receive count so callers can enforce the dead-letter
// threshold themselves without relying on a provider-side redrive policy.
func (q *Queue) Poll(ctx context.Context, maxMessages int) ([]Message, error) {
	if maxMessages <= 0 || maxMessages > 10 {
		maxMessages = 10
	}
	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:              aws.String(q.url),
		MaxNumberOfMessages:   int32(maxMessages),
		WaitTimeSeconds:       20,
		AttributeNames:        []types.QueueAttributeName{types.QueueAttributeNameApproximateReceiveCount},
		MessageAttributeNames: []string{"All"},
	})
	if err != nil {
		return nil, fmt.Errorf("queue: receive from %s: %w", q.url, err)
	}

	messages := make([]Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		count := 1
		if raw, ok := m.Attributes[string(types.QueueAttributeNameApproximateReceiveCount)]; ok {
			if n, err := strconv.Atoi(raw); err == nil {
				count = n
			}
		}
		messages = append(messages, Message{
			Body:          aws.ToString(m.Body),
			MessageID:     aws.ToString(m.MessageId),
			ReceiptHandle: aws.ToString(m.ReceiptHandle),
			DequeueCount:  count,
		})
	}
	return messages, nil
}

// Ack deletes a successfully processed message.
func (q *Queue) Ack(ctx context.Context, m Message) error {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.url),
		ReceiptHandle: aws.String(m.ReceiptHandle),
	})
	if err != nil {
		return fmt.Errorf("queue: delete from %s: %w", q.url, err)
	}
	return nil
}

// ExceedsDeadLetterThreshold reports whether m's dequeue count has crossed
// the configured threshold (default 3) and should be escalated to the
// poison sibling instead of redelivered again.
func (q *Queue) ExceedsDeadLetterThreshold(m Message) bool {
	return m.DequeueCount > q.maxDequeues
}

// Escalate republishes m's raw body onto the poison sibling queue and acks
// the original: the dead-letter sibling receives messages
// whose dequeue count exceeds 3" without depending on a provider redrive
// policy having been provisioned.
func (q *Queue) Escalate(ctx context.Context, m Message) error {
	if q.poisonURL == "" {
		return fmt.Errorf("queue: no poison sibling configured for %s", q.url)
	}
	_, err := q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.poisonURL),
		MessageBody: aws.String(m.Body),
	})
	if err != nil {
		return fmt.Errorf("queue: escalate to %s: %w", q.poisonURL, err)
	}
	return q.Ack(ctx, m)
}
