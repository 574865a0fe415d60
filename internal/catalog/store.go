package catalog

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
)

var (
	// ErrNotFound is returned by writes that require an existing product.
	ErrNotFound = errors.New("product not found")
	// ErrExists is returned when creating a product whose id is taken.
	ErrExists = errors.New("product already exists")
	// ErrModified is returned when a replace loses an optimistic check.
	ErrModified = errors.New("product modified concurrently")
)

// Store encapsulates operations on the products table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
}

// NewStore creates a new products Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{client: client, tableName: tableName}
}

// TableName returns the physical table name.
func (s *Store) TableName() string { return s.tableName }

func productKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"product_id": &types.AttributeValueMemberS{Value: id},
	}
}

// Get fetches a product with a strongly consistent read. Returns (nil, nil)
// if not found.
func (s *Store) Get(ctx context.Context, id string) (*Product, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            productKey(id),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var p Product
	if err := attributevalue.UnmarshalMap(out.Item, &p); err != nil {
		return nil, fmt.Errorf("unmarshal product: %w", err)
	}
	return &p, nil
}

// Create stores a new product. ErrExists if the id is taken.
func (s *Store) Create(ctx context.Context, p *Product) error {
	item, err := attributevalue.MarshalMap(p)
	if err != nil {
		return fmt.Errorf("marshal product: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(product_id)"),
	})
	if err != nil {
		var cce *types.ConditionalCheckFailedException
		if errors.As(err, &cce) {
			return ErrExists
		}
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

// Replace overwrites a product only if it still carries prevUpdatedAt, so an
// order decrement landing between read and write is not silently undone.
func (s *Store) Replace(ctx context.Context, p *Product, prevUpdatedAt time.Time) error {
	item, err := attributevalue.MarshalMap(p)
	if err != nil {
		return fmt.Errorf("marshal product: %w", err)
	}
	prev, err := attributevalue.Marshal(prevUpdatedAt)
	if err != nil {
		return fmt.Errorf("marshal updated_at: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:                 &s.tableName,
		Item:                      item,
		ConditionExpression:       awsString("attribute_exists(product_id) AND updated_at = :prev"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":prev": prev},
	})
	if err != nil {
		var cce *types.ConditionalCheckFailedException
		if errors.As(err, &cce) {
			return ErrModified
		}
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

// Delete removes a product. ErrNotFound if it does not exist.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.client.DeleteItem(ctx, &dyn.DeleteItemInput{
		TableName:           &s.tableName,
		Key:                 productKey(id),
		ConditionExpression: awsString("attribute_exists(product_id)"),
	})
	if err != nil {
		var cce *types.ConditionalCheckFailedException
		if errors.As(err, &cce) {
			return ErrNotFound
		}
		return fmt.Errorf("delete item: %w", err)
	}
	return nil
}

// List scans the table applying filter, newest first.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]Product, error) {
	var (
		clauses []string
		values  = map[string]types.AttributeValue{}
	)
	if filter.Category != "" {
		clauses = append(clauses, "category = :cat")
		values[":cat"] = &types.AttributeValueMemberS{Value: string(filter.Category)}
	}
	if filter.ActiveOnly {
		clauses = append(clauses, "is_active = :true")
		values[":true"] = &types.AttributeValueMemberBOOL{Value: true}
	}
	if filter.OffersOnly {
		clauses = append(clauses, "has_offer = :true")
		values[":true"] = &types.AttributeValueMemberBOOL{Value: true}
	}

	in := &dyn.ScanInput{TableName: &s.tableName}
	if len(clauses) > 0 {
		in.FilterExpression = awsString(strings.Join(clauses, " AND "))
		in.ExpressionAttributeValues = values
	}

	out := []Product{}
	for {
		page, err := s.client.Scan(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		var batch []Product
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("unmarshal products: %w", err)
		}
		out = append(out, batch...)
		if len(page.LastEvaluatedKey) == 0 {
			break
		}
		in.ExclusiveStartKey = page.LastEvaluatedKey
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Count returns the number of products.
func (s *Store) Count(ctx context.Context) (int, error) {
	return countItems(ctx, s.client, s.tableName)
}

// DecrementStock builds the transactional stock decrement for one order line.
// The write only applies while stock covers qty and the price still equals
// the price the line was priced at.
func (s *Store) DecrementStock(id string, qty int, price float64, now time.Time) (types.TransactWriteItem, error) {
	priceAV, err := attributevalue.Marshal(price)
	if err != nil {
		return types.TransactWriteItem{}, fmt.Errorf("marshal price: %w", err)
	}
	nowAV, err := attributevalue.Marshal(now)
	if err != nil {
		return types.TransactWriteItem{}, fmt.Errorf("marshal time: %w", err)
	}
	return types.TransactWriteItem{
		Update: &types.Update{
			TableName:           &s.tableName,
			Key:                 productKey(id),
			UpdateExpression:    awsString("SET stock = stock - :qty, updated_at = :now"),
			ConditionExpression: awsString("attribute_exists(product_id) AND stock >= :qty AND price = :price"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":qty":   &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", qty)},
				":price": priceAV,
				":now":   nowAV,
			},
		},
	}, nil
}

func countItems(ctx context.Context, client aws.DynamoDBAPI, tableName string) (int, error) {
	in := &dyn.ScanInput{TableName: &tableName, Select: types.SelectCount}
	total := 0
	for {
		out, err := client.Scan(ctx, in)
		if err != nil {
			return 0, fmt.Errorf("scan count: %w", err)
		}
		total += int(out.Count)
		if len(out.LastEvaluatedKey) == 0 {
			return total, nil
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

func awsString(s string) *string { return &s }
func awsBool(b bool) *bool       { return &b }
