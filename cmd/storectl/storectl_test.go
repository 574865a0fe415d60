package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/imrishuroy/go-storefront/internal/aws"
	"github.com/imrishuroy/go-storefront/internal/config"
	"github.com/imrishuroy/go-storefront/internal/dynamotest"
)

type fakeAdmin struct {
	existing map[string]bool
	created  []string
}

func (f *fakeAdmin) CreateTable(_ context.Context, in *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	if f.existing[*in.TableName] {
		return nil, &types.ResourceInUseException{}
	}
	f.created = append(f.created, *in.TableName)
	return &dynamodb.CreateTableOutput{}, nil
}

func testEnv(db *dynamotest.Fake, admin *fakeAdmin) *env {
	storage := &config.Storage{
		ProductsTable: "products", OrdersTable: "orders", ApplicationsTable: "applications",
		UsersTable: "users", AuditTable: "audit", IdempotencyTable: "idempotency",
	}
	return &env{
		storage: func() (*config.Storage, error) { return storage, nil },
		clients: func(context.Context, *config.Storage) (aws.DynamoDBAPI, TableAdmin, error) {
			return db, admin, nil
		},
		logger: zap.NewNop(),
	}
}

func run(t *testing.T, e *env, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(e)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestTablesCreate(t *testing.T) {
	admin := &fakeAdmin{existing: map[string]bool{"users": true}}
	out, err := run(t, testEnv(nil, admin), "", "tables", "create")
	require.NoError(t, err)

	assert.Len(t, admin.created, 5)
	assert.NotContains(t, admin.created, "users")
	assert.Contains(t, out, "exists   users")
	assert.Contains(t, out, "created  orders")
}

const seedYAML = `products:
  - name: ThinkPad X1
    price: 1499.99
    stock: 5
    category: laptop
    specifications:
      ram: 16GB
  - name: USB-C Dock
    price: 89
    stock: 0
    category: accessories
    hasOffer: true
    offer:
      discountPercent: 10
`

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestProductsSeed(t *testing.T) {
	db := dynamotest.NewStorefront(dynamotest.DefaultTables)
	path := writeFile(t, seedYAML)

	out, err := run(t, testEnv(db, nil), "", "products", "seed", "--dry-run", "-f", path)
	require.NoError(t, err)
	assert.Equal(t, "2 products valid\n", out)
	assert.Equal(t, 0, db.Len("products"))

	out, err = run(t, testEnv(db, nil), "", "products", "seed", "-f", path)
	require.NoError(t, err)
	assert.Contains(t, out, "ThinkPad X1")
	assert.Equal(t, 2, db.Len("products"))
}

func TestProductsSeed_RejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"empty":            "products: []\n",
		"unknown category": "products:\n  - name: X\n    price: 1\n    stock: 1\n    category: toys\n",
		"missing stock":    "products:\n  - name: X\n    price: 1\n    category: laptop\n",
		"offer missing":    "products:\n  - name: X\n    price: 1\n    stock: 1\n    category: laptop\n    hasOffer: true\n",
		"not yaml":         "products: [",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := run(t, testEnv(nil, nil), "", "products", "seed", "--dry-run", "-f", writeFile(t, content))
			assert.Error(t, err)
		})
	}
}

func TestHashPassword(t *testing.T) {
	out, err := run(t, testEnv(nil, nil), "", "admin", "hash-password", "--cost", "4", "s3cret-pass")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(strings.TrimSpace(out)), []byte("s3cret-pass")))

	out, err = run(t, testEnv(nil, nil), "from-stdin\n", "admin", "hash-password", "--cost", "4")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(strings.TrimSpace(out)), []byte("from-stdin")))

	_, err = run(t, testEnv(nil, nil), "\n", "admin", "hash-password")
	assert.Error(t, err)
}
