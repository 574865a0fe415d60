package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-storefront/internal/aws"
	"github.com/imrishuroy/go-storefront/internal/schema"
)

// ErrStatusMismatch is returned by UpdateStatus when the order no longer has
// the expected status.
var ErrStatusMismatch = errors.New("status mismatch/conditional failed")

// Store encapsulates operations on the orders table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewStore creates a new orders Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

func orderKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"order_id": &types.AttributeValueMemberS{Value: id},
	}
}

// Create writes the order together with the caller's writes (stock
// decrements, idempotency binding) in one TransactWriteItems. The caller's
// writes come first, the order put is last. A cancelled transaction is
// returned wrapped so callers can inspect the cancellation reasons.
func (s *Store) Create(ctx context.Context, o *Order, writes ...types.TransactWriteItem) error {
	item, err := attributevalue.MarshalMap(o)
	if err != nil {
		return fmt.Errorf("marshal order item: %w", err)
	}
	transactItems := make([]types.TransactWriteItem, 0, len(writes)+1)
	transactItems = append(transactItems, writes...)
	transactItems = append(transactItems, types.TransactWriteItem{
		Put: &types.Put{
			TableName:           &s.tableName,
			Item:                item,
			ConditionExpression: awsString("attribute_not_exists(order_id)"),
		},
	})
	_, err = s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{
		TransactItems: transactItems,
	})
	if err != nil {
		return fmt.Errorf("transact write: %w", err)
	}
	return nil
}

// Get fetches an order by order_id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, orderID string) (*Order, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            orderKey(orderID),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Item, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

// ListByUser returns a user's orders, newest first.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	in := &dyn.QueryInput{
		TableName:              &s.tableName,
		IndexName:              awsString(schema.OrdersByUserIndex),
		KeyConditionExpression: awsString("user_id = :u"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":u": &types.AttributeValueMemberS{Value: userID},
		},
		ScanIndexForward: awsBool(false),
	}
	out := []Order{}
	for {
		page, err := s.client.Query(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("query orders by user: %w", err)
		}
		var batch []Order
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("unmarshal orders: %w", err)
		}
		out = append(out, batch...)
		if len(page.LastEvaluatedKey) == 0 {
			break
		}
		in.ExclusiveStartKey = page.LastEvaluatedKey
	}
	newestFirst(out)
	return out, nil
}

// List scans every order, optionally filtered by status, newest first.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]Order, error) {
	in := &dyn.ScanInput{TableName: &s.tableName}
	if filter.Status != "" {
		in.FilterExpression = awsString("#s = :s")
		in.ExpressionAttributeNames = map[string]string{"#s": "status"}
		in.ExpressionAttributeValues = map[string]types.AttributeValue{
			":s": &types.AttributeValueMemberS{Value: string(filter.Status)},
		}
	}
	out := []Order{}
	for {
		page, err := s.client.Scan(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("scan orders: %w", err)
		}
		var batch []Order
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("unmarshal orders: %w", err)
		}
		out = append(out, batch...)
		if len(page.LastEvaluatedKey) == 0 {
			break
		}
		in.ExclusiveStartKey = page.LastEvaluatedKey
	}
	newestFirst(out)
	return out, nil
}

// UpdateStatus conditionally moves an order from expected -> newStatus,
// optionally replacing its payment details, and commits extra (the audit
// entry) in the same transaction. Returns ErrStatusMismatch if the status
// condition failed.
func (s *Store) UpdateStatus(ctx context.Context, orderID string, expected, newStatus Status, payment *PaymentDetails, extra ...types.TransactWriteItem) error {
	now := s.nowFunc().UTC()
	updateExpr := "SET #s = :new, updated_at = :ua"
	values := map[string]types.AttributeValue{
		":new":      &types.AttributeValueMemberS{Value: string(newStatus)},
		":expected": &types.AttributeValueMemberS{Value: string(expected)},
		":ua":       &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
	}
	if payment != nil {
		pd, err := attributevalue.Marshal(payment)
		if err != nil {
			return fmt.Errorf("marshal payment details: %w", err)
		}
		updateExpr += ", payment_details = :pd"
		values[":pd"] = pd
	}

	items := []types.TransactWriteItem{{
		Update: &types.Update{
			TableName:                 &s.tableName,
			Key:                       orderKey(orderID),
			UpdateExpression:          &updateExpr,
			ConditionExpression:       awsString("#s = :expected"),
			ExpressionAttributeNames:  map[string]string{"#s": "status"},
			ExpressionAttributeValues: values,
		},
	}}
	_, err := s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{
		TransactItems: append(items, extra...),
	})
	if err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) && len(tce.CancellationReasons) > 0 &&
			tce.CancellationReasons[0].Code != nil && *tce.CancellationReasons[0].Code == "ConditionalCheckFailed" {
			return ErrStatusMismatch
		}
		return fmt.Errorf("update status: %w", err)
	}
	return nil
}

func newestFirst(list []Order) {
	sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
}

func awsString(s string) *string { return &s }
func awsBool(b bool) *bool       { return &b }
