package dynamostore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"vanishbin/internal/storage"
)

var _ storage.Store = (*Store)(nil)

// API is the subset of the DynamoDB client used by Store.
type API interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// Store implements storage.Store on a DynamoDB table keyed by "id".
// Timestamps are stored as unix milliseconds.
type Store struct {
	client    API
	tableName string
}

// Open builds a client from the default AWS configuration chain. endpoint
// overrides the service URL (useful for DynamoDB Local) when non-empty.
func Open(ctx context.Context, tableName, region, endpoint string) (*Store, error) {
	opts := []func(*config.LoadOptions) error{}
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return New(client, tableName), nil
}

// New wraps an existing client.
func New(client API, tableName string) *Store {
	return &Store{client: client, tableName: tableName}
}

// Create puts a new item, refusing to replace an existing id.
func (s *Store) Create(ctx context.Context, paste *storage.Paste) error {
	if paste == nil {
		return errors.New("paste is nil")
	}
	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                toItem(paste),
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return storage.ErrDuplicateID
		}
		return fmt.Errorf("put paste: %w", err)
	}
	return nil
}

// Get performs a strongly consistent read of one paste.
func (s *Store) Get(ctx context.Context, id string) (*storage.Paste, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            key(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get paste: %w", err)
	}
	if out.Item == nil {
		return nil, storage.ErrNotFound
	}
	return fromItem(out.Item)
}

// UpdateDeadline overwrites expires_at on an existing item.
func (s *Store) UpdateDeadline(ctx context.Context, id string, expiresAt time.Time) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.tableName),
		Key:                 key(id),
		UpdateExpression:    aws.String("SET expires_at = :exp"),
		ConditionExpression: aws.String("attribute_exists(id)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":exp": number(storage.ToMillis(expiresAt)),
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("update deadline: %w", err)
	}
	return nil
}

// IncrementViews adds one view under a condition that rejects the update
// once views has reached maxViews.
func (s *Store) IncrementViews(ctx context.Context, id string, maxViews int) (int, error) {
	in := &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.tableName),
		Key:                 key(id),
		UpdateExpression:    aws.String("ADD #views :one"),
		ConditionExpression: aws.String("attribute_exists(id)"),
		ExpressionAttributeNames: map[string]string{
			"#views": "views",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": number(1),
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	}
	if maxViews > 0 {
		in.ConditionExpression = aws.String("attribute_exists(id) AND #views < :max")
		in.ExpressionAttributeValues[":max"] = number(int64(maxViews))
	}

	out, err := s.client.UpdateItem(ctx, in)
	if err != nil {
		if !isConditionFailed(err) {
			return 0, fmt.Errorf("increment views: %w", err)
		}
		current, getErr := s.Get(ctx, id)
		if getErr != nil {
			return 0, getErr
		}
		return current.Views, storage.ErrViewLimitReached
	}
	views, err := intAttr(out.Attributes, "views")
	if err != nil {
		return 0, err
	}
	return int(views), nil
}

// Ping describes the table.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.tableName),
	})
	if err != nil {
		return fmt.Errorf("describe table: %w", err)
	}
	return nil
}

// Close is a no-op for DynamoDB.
func (s *Store) Close() error {
	return nil
}

func key(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"id": &types.AttributeValueMemberS{Value: id},
	}
}

func number(n int64) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(n, 10)}
}

// isConditionFailed matches the typed exception or, for errors that have
// lost their concrete type, its error code.
func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "ConditionalCheckFailedException"
}

func toItem(p *storage.Paste) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		"id":         &types.AttributeValueMemberS{Value: p.ID},
		"content":    &types.AttributeValueMemberS{Value: p.Content},
		"created_at": number(storage.ToMillis(p.CreatedAt)),
		"views":      number(int64(p.Views)),
	}
	if p.HasTTL() {
		item["ttl_seconds"] = number(int64(p.TTLSeconds))
	}
	if p.HasViewLimit() {
		item["max_views"] = number(int64(p.MaxViews))
	}
	if p.HasExpiration() {
		item["expires_at"] = number(storage.ToMillis(p.ExpiresAt))
	}
	return item
}

func fromItem(item map[string]types.AttributeValue) (*storage.Paste, error) {
	p := &storage.Paste{}
	if v, ok := item["id"].(*types.AttributeValueMemberS); ok {
		p.ID = v.Value
	}
	if v, ok := item["content"].(*types.AttributeValueMemberS); ok {
		p.Content = v.Value
	}

	fields := []struct {
		name string
		set  func(int64)
	}{
		{"ttl_seconds", func(n int64) { p.TTLSeconds = int(n) }},
		{"max_views", func(n int64) { p.MaxViews = int(n) }},
		{"created_at", func(n int64) { p.CreatedAt = storage.FromMillis(n) }},
		{"expires_at", func(n int64) { p.ExpiresAt = storage.FromMillis(n) }},
		{"views", func(n int64) { p.Views = int(n) }},
	}
	for _, f := range fields {
		if _, ok := item[f.name]; !ok {
			continue
		}
		n, err := intAttr(item, f.name)
		if err != nil {
			return nil, err
		}
		f.set(n)
	}
	return p, nil
}

func intAttr(item map[string]types.AttributeValue, name string) (int64, error) {
	v, ok := item[name].(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("attribute %s is not a number", name)
	}
	n, err := strconv.ParseInt(v.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", name, err)
	}
	return n, nil
}
