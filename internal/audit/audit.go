// Package audit records who changed the status of an order or application.
// Entries are written inside the same transaction as the status change.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/imrishuroy/go-storefront/internal/aws"
)

// Entity types that carry an audit trail.
const (
	EntityOrder       = "order"
	EntityApplication = "application"
)

// Roles an actor can hold.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// entryKeyLayout is fixed width so entry keys sort chronologically.
const entryKeyLayout = "2006-01-02T15:04:05.000000000Z"

// Actor identifies who performed a change.
type Actor struct {
	ID   string
	Role string
}

// Entry is one status change.
type Entry struct {
	EntityKey      string    `json:"-" dynamodbav:"entity_key"`
	EntryKey       string    `json:"id" dynamodbav:"entry_key"`
	EntityType     string    `json:"entityType" dynamodbav:"entity_type"`
	EntityID       string    `json:"entityId" dynamodbav:"entity_id"`
	ActorID        string    `json:"actorId" dynamodbav:"actor_id"`
	ActorRole      string    `json:"actorRole" dynamodbav:"actor_role"`
	PreviousStatus string    `json:"previousStatus" dynamodbav:"previous_status"`
	NewStatus      string    `json:"newStatus" dynamodbav:"new_status"`
	Notes          string    `json:"notes,omitempty" dynamodbav:"notes,omitempty"`
	CreatedAt      time.Time `json:"createdAt" dynamodbav:"created_at"`
}

// EntityKey is the partition key for an entity's trail.
func EntityKey(entityType, id string) string { return entityType + "#" + id }

// NewEntry builds an entry for a status change at now.
func NewEntry(entityType, id string, actor Actor, prev, next, notes string, now time.Time) Entry {
	now = now.UTC()
	return Entry{
		EntityKey:      EntityKey(entityType, id),
		EntryKey:       now.Format(entryKeyLayout) + "#" + uuid.NewString(),
		EntityType:     entityType,
		EntityID:       id,
		ActorID:        actor.ID,
		ActorRole:      actor.Role,
		PreviousStatus: prev,
		NewStatus:      next,
		Notes:          notes,
		CreatedAt:      now,
	}
}

// Store reads and builds writes for the audit table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
}

func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{client: client, tableName: tableName}
}

// PutItem returns the transactional put for e.
func (s *Store) PutItem(e Entry) (types.TransactWriteItem, error) {
	item, err := attributevalue.MarshalMap(e)
	if err != nil {
		return types.TransactWriteItem{}, fmt.Errorf("marshal audit entry: %w", err)
	}
	cond := "attribute_not_exists(entry_key)"
	return types.TransactWriteItem{
		Put: &types.Put{
			TableName:           &s.tableName,
			Item:                item,
			ConditionExpression: &cond,
		},
	}, nil
}

// List returns an entity's trail, oldest first.
func (s *Store) List(ctx context.Context, entityType, id string) ([]Entry, error) {
	keyCond := "entity_key = :k"
	in := &dyn.QueryInput{
		TableName:              &s.tableName,
		KeyConditionExpression: &keyCond,
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":k": &types.AttributeValueMemberS{Value: EntityKey(entityType, id)},
		},
	}
	out := []Entry{}
	for {
		page, err := s.client.Query(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("query audit: %w", err)
		}
		var batch []Entry
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("unmarshal audit entries: %w", err)
		}
		out = append(out, batch...)
		if len(page.LastEvaluatedKey) == 0 {
			return out, nil
		}
		in.ExclusiveStartKey = page.LastEvaluatedKey
	}
}
