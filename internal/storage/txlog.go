package storage

import (
	"context"
	"crypto/md5"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/afoxnyc3/invoice-agent/internal/domain"
)

// DedupWindow is the lookback window both was_processed and
// find_candidate_duplicate search within.
const DedupWindow = 90 * 24 * time.Hour

// TransactionLog is the C2 contract. append never silently overwrites;
// was_processed is the deduplication oracle every ingestion and routing
// stage consults before doing anything that could duplicate work.
type TransactionLog interface {
	Append(ctx context.Context, row domain.InvoiceTransaction) error
	WasProcessed(ctx context.Context, originalMessageID string) (bool, error)
	FindCandidateDuplicate(ctx context.Context, vendorKey, sender string, date time.Time) (string, bool, error)
	StreamForMonth(ctx context.Context, yyyymm string) (<-chan domain.InvoiceTransaction, <-chan error)
}

// DynamoTransactionLog stores InvoiceTransaction rows partitioned by
// processed-month (PK) and keyed by event id (SK), exactly the PK/SK +
// attributevalue item pattern used throughout this package's stores.
// was_processed and find_candidate_duplicate both scan a bounded set of
// month partitions (the current month and every earlier month the 90-day
// window reaches, up to three prior) rather than a single-partition Query, since the oracle's key is
// original_message_id / a content hash, not the partition key.
type DynamoTransactionLog struct {
	db    dynamoAPI
	table string
}

func NewDynamoTransactionLog(db dynamoAPI, table string) *DynamoTransactionLog {
	return &DynamoTransactionLog{db: db, table: table}
}

func (l *DynamoTransactionLog) Append(ctx context.Context, row domain.InvoiceTransaction) error {
	if row.PartitionKey == "" {
		row.PartitionKey = domain.MonthPartition(row.ProcessedAt)
	}
	item, err := attributevalue.MarshalMap(row)
	if err != nil {
		return fmt.Errorf("txlog: marshal %s: %w", row.RowKey, err)
	}
	item["pk"] = &types.AttributeValueMemberS{Value: row.PartitionKey}
	item["sk"] = &types.AttributeValueMemberS{Value: row.RowKey}

	_, err = l.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(l.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(sk)"),
	})
	if err != nil {
		return fmt.Errorf("txlog: append %s: %w", row.RowKey, err)
	}
	return nil
}

// monthsInWindow returns the YYYYMM partitions spanning DedupWindow back
// from now, inclusive.
func monthsInWindow(now time.Time) []string {
	now = now.UTC()
	oldest := now.Add(-DedupWindow)
	first := time.Date(oldest.Year(), oldest.Month(), 1, 0, 0, 0, 0, time.UTC)
	var months []string
	for cursor := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC); !cursor.Before(first); cursor = cursor.AddDate(0, -1, 0) {
		months = append(months, domain.MonthPartition(cursor))
	}
	return months
}

func (l *DynamoTransactionLog) WasProcessed(ctx context.Context, originalMessageID string) (bool, error) {
	for _, month := range monthsInWindow(time.Now()) {
		out, err := l.db.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(l.table),
			KeyConditionExpression: aws.String("pk = :pk"),
			FilterExpression:       aws.String("original_message_id = :omid AND #status = :processed"),
			ExpressionAttributeNames: map[string]string{
				"#status": "status",
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk":        &types.AttributeValueMemberS{Value: month},
				":omid":      &types.AttributeValueMemberS{Value: originalMessageID},
				":processed": &types.AttributeValueMemberS{Value: string(domain.StatusProcessed)},
			},
		})
		if err != nil {
			return false, fmt.Errorf("txlog: was_processed query %s: %w", month, err)
		}
		if len(out.Items) > 0 {
			return true, nil
		}
	}
	return false, nil
}

// DuplicateHash derives the content hash find_candidate_duplicate keys on:
// (vendor_key, sender, date) — the same-invoice-different-message-id check.
func DuplicateHash(vendorKey, sender string, date time.Time) string {
	sum := md5.Sum([]byte(vendorKey + "|" + sender + "|" + date.UTC().Format("2006-01-02")))
	return fmt.Sprintf("%x", sum)
}

func (l *DynamoTransactionLog) FindCandidateDuplicate(ctx context.Context, vendorKey, sender string, date time.Time) (string, bool, error) {
	hash := DuplicateHash(vendorKey, sender, date)
	for _, month := range monthsInWindow(time.Now()) {
		out, err := l.db.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(l.table),
			KeyConditionExpression: aws.String("pk = :pk"),
			FilterExpression:       aws.String("duplicate_hash = :hash"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk":   &types.AttributeValueMemberS{Value: month},
				":hash": &types.AttributeValueMemberS{Value: hash},
			},
		})
		if err != nil {
			return "", false, fmt.Errorf("txlog: find_candidate_duplicate query %s: %w", month, err)
		}
		for _, item := range out.Items {
			var row domain.InvoiceTransaction
			if err := attributevalue.UnmarshalMap(item, &row); err != nil {
				continue
			}
			return row.RowKey, true, nil
		}
	}
	return "", false, nil
}

func (l *DynamoTransactionLog) StreamForMonth(ctx context.Context, yyyymm string) (<-chan domain.InvoiceTransaction, <-chan error) {
	rows := make(chan domain.InvoiceTransaction)
	errs := make(chan error, 1)

	go func() {
		defer close(rows)
		defer close(errs)

		var cursor map[string]types.AttributeValue
		for {
			out, err := l.db.Query(ctx, &dynamodb.QueryInput{
				TableName:              aws.String(l.table),
				KeyConditionExpression: aws.String("pk = :pk"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":pk": &types.AttributeValueMemberS{Value: yyyymm},
				},
				ExclusiveStartKey: cursor,
			})
			if err != nil {
				errs <- fmt.Errorf("txlog: stream_for_month %s: %w", yyyymm, err)
				return
			}
			for _, item := range out.Items {
				var row domain.InvoiceTransaction
				if err := attributevalue.UnmarshalMap(item, &row); err != nil {
					continue
				}
				select {
				case rows <- row:
				case <-ctx.Done():
					return
				}
			}
			if out.LastEvaluatedKey == nil {
				return
			}
			cursor = out.LastEvaluatedKey
		}
	}()

	return rows, errs
}
