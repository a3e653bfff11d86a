package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// fakeDynamo is a minimal in-memory stand-in for *dynamodb.Client covering
// exactly the operations dynamoAPI declares. It supports ConditionExpression
// on PutItem ("attribute_not_exists(sk)" / "attribute_exists(sk)") and a
// naive FilterExpression evaluator sufficient for this package's queries.
type fakeDynamo struct {
	items map[string]map[string]types.AttributeValue // "pk|sk" -> item
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: make(map[string]map[string]types.AttributeValue)}
}

func itemKey(item map[string]types.AttributeValue) string {
	pk, _ := item["pk"].(*types.AttributeValueMemberS)
	sk, _ := item["sk"].(*types.AttributeValueMemberS)
	p, s := "", ""
	if pk != nil {
		p = pk.Value
	}
	if sk != nil {
		s = sk.Value
	}
	return p + "|" + s
}

func (f *fakeDynamo) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	key := itemKey(in.Item)
	_, exists := f.items[key]

	if in.ConditionExpression != nil {
		switch *in.ConditionExpression {
		case "attribute_not_exists(sk)":
			if exists {
				return nil, errors.New("ConditionalCheckFailedException")
			}
		case "attribute_exists(sk)":
			if !exists {
				return nil, errors.New("ConditionalCheckFailedException")
			}
		}
	}

	f.items[key] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	pk := in.Key["pk"].(*types.AttributeValueMemberS).Value
	sk := in.Key["sk"].(*types.AttributeValueMemberS).Value
	item, ok := f.items[pk+"|"+sk]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: item}, nil
}

func attrString(av types.AttributeValue) (string, bool) {
	s, ok := av.(*types.AttributeValueMemberS)
	if !ok {
		return "", false
	}
	return s.Value, true
}

func attrBool(av types.AttributeValue) (bool, bool) {
	b, ok := av.(*types.AttributeValueMemberBOOL)
	if !ok {
		return false, false
	}
	return b.Value, true
}

// matchesFilter supports the small set of filter shapes this package's
// queries actually issue: "field = :value" and "a = :x AND b = :y".
func matchesFilter(item map[string]types.AttributeValue, names map[string]string, values map[string]types.AttributeValue, expr string) bool {
	if expr == "" {
		return true
	}
	// Every FilterExpression this package writes is a conjunction of
	// "field = :placeholder" clauses.
	clauses := splitAnd(expr)
	for _, clause := range clauses {
		field, placeholder, ok := splitEquals(clause)
		if !ok {
			return false
		}
		if resolved, ok := names[field]; ok {
			field = resolved
		}
		want, ok := values[placeholder]
		if !ok {
			return false
		}
		got, ok := item[field]
		if !ok {
			return false
		}
		if ws, ok := attrString(want); ok {
			gs, ok := attrString(got)
			if !ok || gs != ws {
				return false
			}
			continue
		}
		if wb, ok := attrBool(want); ok {
			gb, ok := attrBool(got)
			if !ok || gb != wb {
				return false
			}
			continue
		}
	}
	return true
}

func splitAnd(expr string) []string {
	var parts []string
	cur := ""
	for i := 0; i < len(expr); i++ {
		if i+5 <= len(expr) && expr[i:i+5] == " AND " {
			parts = append(parts, cur)
			cur = ""
			i += 4
			continue
		}
		cur += string(expr[i])
	}
	parts = append(parts, cur)
	return parts
}

func splitEquals(clause string) (field, placeholder string, ok bool) {
	for i := 0; i < len(clause)-2; i++ {
		if clause[i] == ' ' && clause[i+1] == '=' && clause[i+2] == ' ' {
			field = trimSpace(clause[:i])
			placeholder = trimSpace(clause[i+3:])
			return field, placeholder, true
		}
	}
	return "", "", false
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && s[start] == ' ' {
		start++
	}
	for end > start && s[end-1] == ' ' {
		end--
	}
	return s[start:end]
}

func (f *fakeDynamo) Query(ctx context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	pk, _ := attrString(in.ExpressionAttributeValues[":pk"])

	var keys []string
	for k := range f.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []map[string]types.AttributeValue
	for _, k := range keys {
		item := f.items[k]
		itemPK, _ := attrString(item["pk"])
		if itemPK != pk {
			continue
		}
		filterExpr := ""
		if in.FilterExpression != nil {
			filterExpr = *in.FilterExpression
		}
		if !matchesFilter(item, in.ExpressionAttributeNames, in.ExpressionAttributeValues, filterExpr) {
			continue
		}
		out = append(out, item)
	}

	return &dynamodb.QueryOutput{Items: out, Count: int32(len(out))}, nil
}

func (f *fakeDynamo) UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	pk := in.Key["pk"].(*types.AttributeValueMemberS).Value
	sk := in.Key["sk"].(*types.AttributeValueMemberS).Value
	key := pk + "|" + sk
	item, ok := f.items[key]
	if !ok {
		return nil, errors.New("item not found")
	}
	// Only "SET is_active = :false" style updates are issued by this
	// package; apply them generically via the value map.
	for placeholder, val := range in.ExpressionAttributeValues {
		_ = placeholder
		item["is_active"] = val
	}
	f.items[key] = item
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *fakeDynamo) TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	for _, w := range in.TransactItems {
		if w.Put != nil {
			key := itemKey(w.Put.Item)
			f.items[key] = w.Put.Item
		}
		if w.Update != nil {
			pk := w.Update.Key["pk"].(*types.AttributeValueMemberS).Value
			sk := w.Update.Key["sk"].(*types.AttributeValueMemberS).Value
			key := pk + "|" + sk
			item, ok := f.items[key]
			if !ok {
				continue
			}
			for _, val := range w.Update.ExpressionAttributeValues {
				item["is_active"] = val
			}
			f.items[key] = item
		}
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

// fakeS3 is a minimal in-memory stand-in for *s3.Client.
type fakeS3 struct {
	objects map[string][]byte
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[*in.Key]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}
