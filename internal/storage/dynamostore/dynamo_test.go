package dynamostore

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vanishbin/internal/storage"
	"vanishbin/internal/storage/storetest"
)

// fakeTable understands exactly the expressions Store issues.
type fakeTable struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
	down  bool
}

func newFakeTable() *fakeTable {
	return &fakeTable{items: make(map[string]map[string]types.AttributeValue)}
}

func conditionFailed() error {
	return &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
}

func idOf(key map[string]types.AttributeValue) string {
	return key["id"].(*types.AttributeValueMemberS).Value
}

func numberOf(v types.AttributeValue) int64 {
	n, _ := strconv.ParseInt(v.(*types.AttributeValueMemberN).Value, 10, 64)
	return n
}

func (f *fakeTable) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := idOf(in.Item)
	if _, ok := f.items[id]; ok && aws.ToString(in.ConditionExpression) == "attribute_not_exists(id)" {
		return nil, conditionFailed()
	}
	cp := make(map[string]types.AttributeValue, len(in.Item))
	for k, v := range in.Item {
		cp[k] = v
	}
	f.items[id] = cp
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeTable) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[idOf(in.Key)]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	cp := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		cp[k] = v
	}
	return &dynamodb.GetItemOutput{Item: cp}, nil
}

func (f *fakeTable) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[idOf(in.Key)]
	if !ok {
		return nil, conditionFailed()
	}
	expr := aws.ToString(in.UpdateExpression)
	switch {
	case strings.HasPrefix(expr, "SET expires_at"):
		item["expires_at"] = in.ExpressionAttributeValues[":exp"]
		return &dynamodb.UpdateItemOutput{}, nil
	case strings.HasPrefix(expr, "ADD #views"):
		views := numberOf(item["views"])
		if limit, ok := in.ExpressionAttributeValues[":max"]; ok && views >= numberOf(limit) {
			return nil, conditionFailed()
		}
		views += numberOf(in.ExpressionAttributeValues[":one"])
		item["views"] = number(views)
		return &dynamodb.UpdateItemOutput{
			Attributes: map[string]types.AttributeValue{"views": number(views)},
		}, nil
	}
	return nil, errors.New("unsupported update expression " + expr)
}

func (f *fakeTable) DescribeTable(_ context.Context, in *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return nil, errors.New("service unavailable")
	}
	return &dynamodb.DescribeTableOutput{
		Table: &types.TableDescription{TableName: in.TableName},
	}, nil
}

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storage.Store {
		return New(newFakeTable(), "pastes")
	})
}

func TestItemOmitsAbsentAttributes(t *testing.T) {
	p := storetest.Sample("item")
	p.TTLSeconds = 0
	item := toItem(p)
	assert.NotContains(t, item, "ttl_seconds")
	assert.NotContains(t, item, "expires_at")
	assert.Contains(t, item, "max_views")

	back, err := fromItem(item)
	require.NoError(t, err)
	assert.Equal(t, p.ID, back.ID)
	assert.Equal(t, 3, back.MaxViews)
	assert.True(t, back.CreatedAt.Equal(p.CreatedAt))
}

func TestFromItemRejectsMalformedNumbers(t *testing.T) {
	item := toItem(storetest.Sample("bad"))
	item["views"] = &types.AttributeValueMemberS{Value: "three"}
	_, err := fromItem(item)
	assert.Error(t, err)
}

func TestPingSurfacesFailure(t *testing.T) {
	table := newFakeTable()
	store := New(table, "pastes")
	require.NoError(t, store.Ping(context.Background()))

	table.down = true
	assert.Error(t, store.Ping(context.Background()))
}

func TestConditionFailedByErrorCode(t *testing.T) {
	err := &smithy.GenericAPIError{Code: "ConditionalCheckFailedException", Message: "nope"}
	assert.True(t, isConditionFailed(err))
	assert.False(t, isConditionFailed(&smithy.GenericAPIError{Code: "ThrottlingException"}))
}
