// Package schema describes the DynamoDB table layout of the storefront.
package schema

import (
	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Secondary index names.
const (
	OrdersByUserIndex       = "user_id-created_at-index"
	ApplicationsByUserIndex = "user_id-created_at-index"
	UsersByIDIndex          = "user_id-index"
)

// TableNames holds the configured physical table names.
type TableNames struct {
	Products     string
	Orders       string
	Applications string
	Users        string
	Audit        string
	Idempotency  string
}

// Index is a global secondary index with string keys.
type Index struct {
	Name string
	PK   string
	SK   string
}

// Definition is a table with string partition (and optional sort) keys.
type Definition struct {
	Name    string
	PK      string
	SK      string
	Indexes []Index
	TTLAttr string
}

// Definitions returns every table the service uses.
func Definitions(n TableNames) []Definition {
	return []Definition{
		{Name: n.Products, PK: "product_id"},
		{
			Name:    n.Orders,
			PK:      "order_id",
			Indexes: []Index{{Name: OrdersByUserIndex, PK: "user_id", SK: "created_at"}},
		},
		{
			Name:    n.Applications,
			PK:      "application_id",
			Indexes: []Index{{Name: ApplicationsByUserIndex, PK: "user_id", SK: "created_at"}},
		},
		{
			Name:    n.Users,
			PK:      "email",
			Indexes: []Index{{Name: UsersByIDIndex, PK: "user_id"}},
		},
		{Name: n.Audit, PK: "entity_key", SK: "entry_key"},
		{Name: n.Idempotency, PK: "idempotency_key", TTLAttr: "expires_at"},
	}
}

// CreateTableInput builds an on-demand CreateTable request for d.
func (d Definition) CreateTableInput() *dynamodb.CreateTableInput {
	attrs := map[string]struct{}{}
	var defs []types.AttributeDefinition
	addAttr := func(name string) {
		if name == "" {
			return
		}
		if _, ok := attrs[name]; ok {
			return
		}
		attrs[name] = struct{}{}
		defs = append(defs, types.AttributeDefinition{
			AttributeName: sdkaws.String(name),
			AttributeType: types.ScalarAttributeTypeS,
		})
	}

	addAttr(d.PK)
	addAttr(d.SK)
	in := &dynamodb.CreateTableInput{
		TableName:   sdkaws.String(d.Name),
		BillingMode: types.BillingModePayPerRequest,
		KeySchema:   keySchema(d.PK, d.SK),
	}
	for _, idx := range d.Indexes {
		addAttr(idx.PK)
		addAttr(idx.SK)
		in.GlobalSecondaryIndexes = append(in.GlobalSecondaryIndexes, types.GlobalSecondaryIndex{
			IndexName:  sdkaws.String(idx.Name),
			KeySchema:  keySchema(idx.PK, idx.SK),
			Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
		})
	}
	in.AttributeDefinitions = defs
	return in
}

func keySchema(pk, sk string) []types.KeySchemaElement {
	ks := []types.KeySchemaElement{{AttributeName: sdkaws.String(pk), KeyType: types.KeyTypeHash}}
	if sk != "" {
		ks = append(ks, types.KeySchemaElement{AttributeName: sdkaws.String(sk), KeyType: types.KeyTypeRange})
	}
	return ks
}
