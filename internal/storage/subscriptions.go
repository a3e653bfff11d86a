package storage

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/afoxnyc3/invoice-agent/internal/domain"
)

const subscriptionPK = "SUBSCRIPTION"

// SubscriptionRegistry is the Subscription Manager's storage contract. The
// single-active-row invariant is not enforced by the store's normal writes
// — Activate deactivates the row the caller names (if any) and activates
// the new one in a single DynamoDB transaction, so those two writes commit
// together. Activate does not look for other active rows; keeping a single
// active row relies on callers naming the current one and on the
// Subscription Manager serializing its runs.
type SubscriptionRegistry interface {
	GetActive(ctx context.Context) (domain.Subscription, bool, error)
	Upsert(ctx context.Context, s domain.Subscription) error
	Deactivate(ctx context.Context, subscriptionID string) error
	Activate(ctx context.Context, newSub domain.Subscription, deactivateID string) error
}

type DynamoSubscriptionRegistry struct {
	db    dynamoAPI
	table string
}

func NewDynamoSubscriptionRegistry(db dynamoAPI, table string) *DynamoSubscriptionRegistry {
	return &DynamoSubscriptionRegistry{db: db, table: table}
}

func (r *DynamoSubscriptionRegistry) GetActive(ctx context.Context) (domain.Subscription, bool, error) {
	out, err := r.db.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.table),
		KeyConditionExpression: aws.String("pk = :pk"),
		FilterExpression:       aws.String("is_active = :active"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: subscriptionPK},
			":active": &types.AttributeValueMemberBOOL{Value: true},
		},
	})
	if err != nil {
		return domain.Subscription{}, false, fmt.Errorf("subscriptions: get_active: %w", err)
	}
	if len(out.Items) == 0 {
		return domain.Subscription{}, false, nil
	}
	var s domain.Subscription
	if err := attributevalue.UnmarshalMap(out.Items[0], &s); err != nil {
		return domain.Subscription{}, false, fmt.Errorf("subscriptions: unmarshal active row: %w", err)
	}
	return s, true, nil
}

func (r *DynamoSubscriptionRegistry) item(s domain.Subscription) (map[string]types.AttributeValue, error) {
	item, err := attributevalue.MarshalMap(s)
	if err != nil {
		return nil, err
	}
	item["pk"] = &types.AttributeValueMemberS{Value: subscriptionPK}
	item["sk"] = &types.AttributeValueMemberS{Value: s.SubscriptionID}
	return item, nil
}

// Upsert writes s as-is, for the renewal path where is_active does not
// change and no other row needs deactivating.
func (r *DynamoSubscriptionRegistry) Upsert(ctx context.Context, s domain.Subscription) error {
	item, err := r.item(s)
	if err != nil {
		return fmt.Errorf("subscriptions: marshal %s: %w", s.SubscriptionID, err)
	}
	_, err = r.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("subscriptions: upsert %s: %w", s.SubscriptionID, err)
	}
	return nil
}

func (r *DynamoSubscriptionRegistry) Deactivate(ctx context.Context, subscriptionID string) error {
	_, err := r.db.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.table),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: subscriptionPK},
			"sk": &types.AttributeValueMemberS{Value: subscriptionID},
		},
		UpdateExpression: aws.String("SET is_active = :false"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":false": &types.AttributeValueMemberBOOL{Value: false},
		},
	})
	if err != nil {
		return fmt.Errorf("subscriptions: deactivate %s: %w", subscriptionID, err)
	}
	return nil
}

// Activate atomically creates/overwrites newSub (with IsActive forced true)
// and deactivates deactivateID in one transaction: "on
// any subscription change, update C3 atomically". deactivateID may be empty
// when there was no prior active subscription.
func (r *DynamoSubscriptionRegistry) Activate(ctx context.Context, newSub domain.Subscription, deactivateID string) error {
	newSub.IsActive = true
	newItem, err := r.item(newSub)
	if err != nil {
		return fmt.Errorf("subscriptions: marshal %s: %w", newSub.SubscriptionID, err)
	}

	writes := []types.TransactWriteItem{
		{Put: &types.Put{TableName: aws.String(r.table), Item: newItem}},
	}

	if deactivateID != "" && deactivateID != newSub.SubscriptionID {
		writes = append(writes, types.TransactWriteItem{
			Update: &types.Update{
				TableName: aws.String(r.table),
				Key: map[string]types.AttributeValue{
					"pk": &types.AttributeValueMemberS{Value: subscriptionPK},
					"sk": &types.AttributeValueMemberS{Value: deactivateID},
				},
				UpdateExpression: aws.String("SET is_active = :false"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":false": &types.AttributeValueMemberBOOL{Value: false},
				},
			},
		})
	}

	_, err = r.db.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: writes,
	})
	if err != nil {
		return fmt.Errorf("subscriptions: activate %s: %w", newSub.SubscriptionID, err)
	}
	return nil
}
