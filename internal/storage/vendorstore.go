package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/afoxnyc3/invoice-agent/internal/domain"
)

// VendorStore is the C1 contract: a keyed read, a full active-vendor
// listing (the input to fuzzy matching), and an administrative create that
// rejects collisions. The precedence matching algorithm itself
// lives one layer up in internal/vendormatch, which composes this store
// with the fuzzy matcher and LLM client.
type VendorStore interface {
	Lookup(ctx context.Context, vendorKey string) (domain.VendorMaster, bool, error)
	ListActive(ctx context.Context) ([]domain.VendorMaster, error)
	Create(ctx context.Context, v domain.VendorMaster) error
	Update(ctx context.Context, v domain.VendorMaster) error
}

// DynamoVendorStore is a single-partition VendorMaster table: "VENDOR" as
// the sole PK, normalized vendor_key as SK. The store does not shard: every
// row lives in the one partition whatever the row count, and shardThreshold
// is kept on the struct but not read.
type DynamoVendorStore struct {
	db             dynamoAPI
	table          string
	shardThreshold int
}

func NewDynamoVendorStore(db dynamoAPI, table string, shardThreshold int) *DynamoVendorStore {
	return &DynamoVendorStore{db: db, table: table, shardThreshold: shardThreshold}
}

func vendorPK(vendorKey string) string {
	// Every vendor shares the single "VENDOR" partition, so Lookup is a
	// single-item GetItem on (VENDOR, vendorKey).
	return "VENDOR"
}

func (s *DynamoVendorStore) Lookup(ctx context.Context, vendorKey string) (domain.VendorMaster, bool, error) {
	out, err := s.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: vendorPK(vendorKey)},
			"sk": &types.AttributeValueMemberS{Value: vendorKey},
		},
	})
	if err != nil {
		return domain.VendorMaster{}, false, fmt.Errorf("vendorstore: get %s: %w", vendorKey, err)
	}
	if out.Item == nil {
		return domain.VendorMaster{}, false, nil
	}
	var v domain.VendorMaster
	if err := attributevalue.UnmarshalMap(out.Item, &v); err != nil {
		return domain.VendorMaster{}, false, fmt.Errorf("vendorstore: unmarshal %s: %w", vendorKey, err)
	}
	return v, true, nil
}

func (s *DynamoVendorStore) ListActive(ctx context.Context) ([]domain.VendorMaster, error) {
	out, err := s.db.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		KeyConditionExpression: aws.String("pk = :pk"),
		FilterExpression:       aws.String("active = :active"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: vendorPK("")},
			":active": &types.AttributeValueMemberBOOL{Value: true},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("vendorstore: list active: %w", err)
	}
	vendors := make([]domain.VendorMaster, 0, len(out.Items))
	for _, item := range out.Items {
		var v domain.VendorMaster
		if err := attributevalue.UnmarshalMap(item, &v); err != nil {
			continue
		}
		vendors = append(vendors, v)
	}
	return vendors, nil
}

func (s *DynamoVendorStore) Create(ctx context.Context, v domain.VendorMaster) error {
	now := time.Now().UTC()
	if v.CreatedAt.IsZero() {
		v.CreatedAt = now
	}
	v.UpdatedAt = now

	item, err := attributevalue.MarshalMap(v)
	if err != nil {
		return fmt.Errorf("vendorstore: marshal %s: %w", v.VendorKey, err)
	}
	item["pk"] = &types.AttributeValueMemberS{Value: vendorPK(v.VendorKey)}
	item["sk"] = &types.AttributeValueMemberS{Value: v.VendorKey}

	_, err = s.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(sk)"),
	})
	if err != nil {
		return fmt.Errorf("vendorstore: create %s: %w", v.VendorKey, err)
	}
	return nil
}

func (s *DynamoVendorStore) Update(ctx context.Context, v domain.VendorMaster) error {
	v.UpdatedAt = time.Now().UTC()

	item, err := attributevalue.MarshalMap(v)
	if err != nil {
		return fmt.Errorf("vendorstore: marshal %s: %w", v.VendorKey, err)
	}
	item["pk"] = &types.AttributeValueMemberS{Value: vendorPK(v.VendorKey)}
	item["sk"] = &types.AttributeValueMemberS{Value: v.VendorKey}

	_, err = s.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_exists(sk)"),
	})
	if err != nil {
		return fmt.Errorf("vendorstore: update %s: %w", v.VendorKey, err)
	}
	return nil
}
