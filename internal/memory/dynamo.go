package memory

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/fpang/video-summarizer/internal/chat"
	"github.com/rs/zerolog/log"
)

// DynamoDB key layout: one item per thread.
const (
	pkPrefix   = "THREAD#"
	skMessages = "MESSAGES"
)

// DynamoAPI is the subset of the DynamoDB client used by DynamoStore.
type DynamoAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

type threadRecord struct {
	ThreadID  string         `dynamodbav:"threadId"`
	Messages  []chat.Message `dynamodbav:"messages"`
	UpdatedAt string         `dynamodbav:"updatedAt"`
}

// DynamoStore persists thread history in DynamoDB. Items expire through the
// table's TTL attribute "expiresAt".
type DynamoStore struct {
	client    DynamoAPI
	tableName string
	ttl       time.Duration
	now       func() time.Time
}

var _ Store = (*DynamoStore)(nil)

// NewDynamoStore creates a DynamoStore for the given table. ttl <= 0 keeps
// items forever.
func NewDynamoStore(client DynamoAPI, tableName string, ttl time.Duration) *DynamoStore {
	return &DynamoStore{client: client, tableName: tableName, ttl: ttl, now: time.Now}
}

func threadKey(threadID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pkPrefix + threadID},
		"SK": &types.AttributeValueMemberS{Value: skMessages},
	}
}

func (s *DynamoStore) Load(ctx context.Context, threadID string) ([]chat.Message, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &s.tableName,
		Key:            threadKey(threadID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("GetItem thread=%s: %w", threadID, err)
	}
	if result.Item == nil {
		return nil, nil
	}

	var rec threadRecord
	if err := attributevalue.UnmarshalMap(result.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal thread=%s: %w", threadID, err)
	}
	return rec.Messages, nil
}

func (s *DynamoStore) Save(ctx context.Context, threadID string, messages []chat.Message) error {
	now := s.now()
	item, err := attributevalue.MarshalMap(threadRecord{
		ThreadID:  threadID,
		Messages:  messages,
		UpdatedAt: now.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshal thread=%s: %w", threadID, err)
	}
	for k, v := range threadKey(threadID) {
		item[k] = v
	}
	if s.ttl > 0 {
		item["expiresAt"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Add(s.ttl).Unix(), 10)}
	}

	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	}); err != nil {
		return fmt.Errorf("PutItem thread=%s: %w", threadID, err)
	}
	log.Debug().Str("thread", threadID).Int("messages", len(messages)).Msg("Thread saved")
	return nil
}

func (s *DynamoStore) Delete(ctx context.Context, threadID string) error {
	if _, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: &s.tableName,
		Key:       threadKey(threadID),
	}); err != nil {
		return fmt.Errorf("DeleteItem thread=%s: %w", threadID, err)
	}
	return nil
}
