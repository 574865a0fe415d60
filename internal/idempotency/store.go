package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/imrishuroy/go-storefront/internal/aws"
)

// ErrConditionFailed indicates a conditional write lost (the record is not in
// the state the caller expected).
var ErrConditionFailed = errors.New("conditional check failed")

// Store encapsulates idempotency operations against DynamoDB.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	ttlWindow time.Duration // default TTL window when creating entries
	nowFunc   func() time.Time
}

// NewStore returns a configured Store.
// ttlWindow: how long a key is remembered (e.g. 48*time.Hour).
func NewStore(client aws.DynamoDBAPI, tableName string, ttlWindow time.Duration) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		ttlWindow: ttlWindow,
		nowFunc:   time.Now,
	}
}

// ScopedKey namespaces a client key by operation and user so two users, or
// two endpoints, never collide on the same header value.
func ScopedKey(operation, userID, key string) string {
	return operation + "#" + userID + "#" + key
}

func recordKey(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"idempotency_key": &types.AttributeValueMemberS{Value: key},
	}
}

// CreateIfNotExists creates a record with status IN_PROGRESS if the key does not exist.
// Returns (true, nil) if created, (false, nil) if the key already exists.
func (s *Store) CreateIfNotExists(ctx context.Context, key string) (bool, error) {
	now := s.nowFunc().UTC()
	rec := Record{
		Key:       key,
		Status:    StatusInProgress,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(s.ttlWindow).Unix(),
	}

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return false, fmt.Errorf("marshal record: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(idempotency_key)"),
	})
	if err != nil {
		var sc smithy.APIError
		if errors.As(err, &sc) && sc.ErrorCode() == "ConditionalCheckFailedException" {
			return false, nil
		}
		return false, fmt.Errorf("put item: %w", err)
	}
	return true, nil
}

// Get retrieves a record by key. If not found, returns (nil, nil).
func (s *Store) Get(ctx context.Context, key string) (*Record, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            recordKey(key),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var rec Record
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	return &rec, nil
}

// Reclaim moves a FAILED record back to IN_PROGRESS so a retry can run.
// Returns ErrConditionFailed if someone else reclaimed it first.
func (s *Store) Reclaim(ctx context.Context, key string) error {
	return s.transition(ctx, key, StatusFailed, "SET #s = :to, updated_at = :ua", map[string]types.AttributeValue{
		":to": &types.AttributeValueMemberS{Value: StatusInProgress},
	})
}

// MarkDone stores the response for replay. Only an IN_PROGRESS record can
// become DONE.
func (s *Store) MarkDone(ctx context.Context, key, responseBody string, responseStatus int) error {
	return s.transition(ctx, key, StatusInProgress, "SET #s = :to, response_body = :rb, response_status = :rs, updated_at = :ua", map[string]types.AttributeValue{
		":to": &types.AttributeValueMemberS{Value: StatusDone},
		":rb": &types.AttributeValueMemberS{Value: responseBody},
		":rs": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", responseStatus)},
	})
}

// MarkFailed marks an IN_PROGRESS record FAILED with a note.
func (s *Store) MarkFailed(ctx context.Context, key, note string) error {
	return s.transition(ctx, key, StatusInProgress, "SET #s = :to, note = :n, updated_at = :ua", map[string]types.AttributeValue{
		":to": &types.AttributeValueMemberS{Value: StatusFailed},
		":n":  &types.AttributeValueMemberS{Value: note},
	})
}

func (s *Store) transition(ctx context.Context, key, from, update string, values map[string]types.AttributeValue) error {
	values[":from"] = &types.AttributeValueMemberS{Value: from}
	values[":ua"] = &types.AttributeValueMemberS{Value: s.nowFunc().UTC().Format(time.RFC3339Nano)}
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                 &s.tableName,
		Key:                       recordKey(key),
		UpdateExpression:          &update,
		ConditionExpression:       awsString("#s = :from"),
		ExpressionAttributeNames:  map[string]string{"#s": "status"},
		ExpressionAttributeValues: values,
	})
	if err != nil {
		var cce *types.ConditionalCheckFailedException
		if errors.As(err, &cce) {
			return ErrConditionFailed
		}
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

// BindResource returns the transactional update that ties resourceID to an
// IN_PROGRESS key. It fails the surrounding transaction if the key already
// produced a resource, so one key can never create two orders.
func (s *Store) BindResource(key, resourceID string, now time.Time) types.TransactWriteItem {
	return types.TransactWriteItem{
		Update: &types.Update{
			TableName:                &s.tableName,
			Key:                      recordKey(key),
			UpdateExpression:         awsString("SET resource_id = :rid, updated_at = :ua"),
			ConditionExpression:      awsString("#s = :inprogress AND attribute_not_exists(resource_id)"),
			ExpressionAttributeNames: map[string]string{"#s": "status"},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":rid":        &types.AttributeValueMemberS{Value: resourceID},
				":ua":         &types.AttributeValueMemberS{Value: now.UTC().Format(time.RFC3339Nano)},
				":inprogress": &types.AttributeValueMemberS{Value: StatusInProgress},
			},
		},
	}
}

// PaymentKey is the record key that marks a gateway payment as spent.
func PaymentKey(paymentID string) string { return "payment#" + paymentID }

// ClaimPayment returns the transactional put recording that paymentID backs
// resourceID. It fails the surrounding transaction if the payment already
// backs anything. Claims never expire.
func (s *Store) ClaimPayment(paymentID, resourceID string, now time.Time) types.TransactWriteItem {
	ts := &types.AttributeValueMemberS{Value: now.UTC().Format(time.RFC3339Nano)}
	return types.TransactWriteItem{
		Put: &types.Put{
			TableName: &s.tableName,
			Item: map[string]types.AttributeValue{
				"idempotency_key": &types.AttributeValueMemberS{Value: PaymentKey(paymentID)},
				"status":          &types.AttributeValueMemberS{Value: StatusDone},
				"resource_id":     &types.AttributeValueMemberS{Value: resourceID},
				"created_at":      ts,
				"updated_at":      ts,
			},
			ConditionExpression: awsString("attribute_not_exists(idempotency_key)"),
		},
	}
}

// PaymentOwner returns the resource a gateway payment backs, or "" if the
// payment is unclaimed.
func (s *Store) PaymentOwner(ctx context.Context, paymentID string) (string, error) {
	rec, err := s.Get(ctx, PaymentKey(paymentID))
	if err != nil || rec == nil {
		return "", err
	}
	return rec.ResourceID, nil
}

// Helper
func awsString(s string) *string { return &s }
func awsBool(b bool) *bool       { return &b }
