package applications

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-storefront/internal/aws"
	"github.com/imrishuroy/go-storefront/internal/schema"
)

// ErrStatusMismatch is returned when the application is no longer in the
// expected status.
var ErrStatusMismatch = errors.New("status mismatch/conditional failed")

// Store encapsulates operations on the applications table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{client: client, tableName: tableName, nowFunc: time.Now}
}

func appKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"application_id": &types.AttributeValueMemberS{Value: id},
	}
}

func (s *Store) Create(ctx context.Context, a *Application) error {
	item, err := attributevalue.MarshalMap(a)
	if err != nil {
		return fmt.Errorf("marshal application: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(application_id)"),
	})
	if err != nil {
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

// Get returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, id string) (*Application, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            appKey(id),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var a Application
	if err := attributevalue.UnmarshalMap(out.Item, &a); err != nil {
		return nil, fmt.Errorf("unmarshal application: %w", err)
	}
	return &a, nil
}

func (s *Store) ListByUser(ctx context.Context, userID string) ([]Application, error) {
	in := &dyn.QueryInput{
		TableName:              &s.tableName,
		IndexName:              awsString(schema.ApplicationsByUserIndex),
		KeyConditionExpression: awsString("user_id = :u"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":u": &types.AttributeValueMemberS{Value: userID},
		},
		ScanIndexForward: awsBool(false),
	}
	out := []Application{}
	for {
		page, err := s.client.Query(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("query applications by user: %w", err)
		}
		var batch []Application
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("unmarshal applications: %w", err)
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

func (s *Store) List(ctx context.Context, filter ListFilter) ([]Application, error) {
	var (
		clauses []string
		names   = map[string]string{}
		values  = map[string]types.AttributeValue{}
	)
	if filter.Status != "" {
		clauses = append(clauses, "#s = :s")
		names["#s"] = "status"
		values[":s"] = &types.AttributeValueMemberS{Value: string(filter.Status)}
	}
	if filter.Type != "" {
		clauses = append(clauses, "#t = :t")
		names["#t"] = "type"
		values[":t"] = &types.AttributeValueMemberS{Value: string(filter.Type)}
	}
	in := &dyn.ScanInput{TableName: &s.tableName}
	if len(clauses) > 0 {
		in.FilterExpression = awsString(strings.Join(clauses, " AND "))
		in.ExpressionAttributeNames = names
		in.ExpressionAttributeValues = values
	}

	out := []Application{}
	for {
		page, err := s.client.Scan(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("scan applications: %w", err)
		}
		var batch []Application
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("unmarshal applications: %w", err)
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

// UpdateStatus moves an application from expected -> newStatus and replaces
// its admin notes, committing extra in the same transaction.
func (s *Store) UpdateStatus(ctx context.Context, id string, expected, newStatus Status, notes string, extra ...types.TransactWriteItem) error {
	items := []types.TransactWriteItem{{
		Update: &types.Update{
			TableName:                &s.tableName,
			Key:                      appKey(id),
			UpdateExpression:         awsString("SET #s = :new, admin_notes = :notes, updated_at = :ua"),
			ConditionExpression:      awsString("#s = :expected"),
			ExpressionAttributeNames: map[string]string{"#s": "status"},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":new":      &types.AttributeValueMemberS{Value: string(newStatus)},
				":expected": &types.AttributeValueMemberS{Value: string(expected)},
				":notes":    &types.AttributeValueMemberS{Value: notes},
				":ua":       &types.AttributeValueMemberS{Value: s.nowFunc().UTC().Format(time.RFC3339Nano)},
			},
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

func newestFirst(list []Application) {
	sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
}

func awsString(s string) *string { return &s }
func awsBool(b bool) *bool       { return &b }
