// Package dynamotest provides an in-memory DynamoDB for unit tests.
//
// It understands the expression subset the stores issue: conditions joined
// by AND built from attribute_exists, attribute_not_exists and binary
// comparisons, and SET update expressions with optional "+"/"-" arithmetic.
package dynamotest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-storefront/internal/schema"
)

type item = map[string]types.AttributeValue

type table struct {
	def   schema.Definition
	items map[string]item
	seq   map[string]int
	next  int
}

// Fake is a mutex-guarded in-memory DynamoDB. Every operation, including
// TransactWriteItems, is atomic with respect to the others.
type Fake struct {
	mu       sync.Mutex
	tables   map[string]*table
	calls    map[string]int
	failNext map[string]error
}

// New returns an empty Fake with the given tables created.
func New(defs ...schema.Definition) *Fake {
	f := &Fake{
		tables:   map[string]*table{},
		calls:    map[string]int{},
		failNext: map[string]error{},
	}
	for _, d := range defs {
		f.CreateTable(d)
	}
	return f
}

// NewStorefront returns a Fake with every storefront table created.
func NewStorefront(names schema.TableNames) *Fake {
	return New(schema.Definitions(names)...)
}

// DefaultTables uses the default table names from configuration.
var DefaultTables = schema.TableNames{
	Products:     "products",
	Orders:       "orders",
	Applications: "applications",
	Users:        "users",
	Audit:        "audit",
	Idempotency:  "idempotency",
}

// CreateTable registers a table.
func (f *Fake) CreateTable(d schema.Definition) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tables[d.Name] = &table{def: d, items: map[string]item{}, seq: map[string]int{}}
}

// FailNext makes the next call of op ("PutItem", "TransactWriteItems", ...)
// return err.
func (f *Fake) FailNext(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext[op] = err
}

// Calls returns how many times op has been invoked.
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// Len returns the number of items stored in tableName.
func (f *Fake) Len(tableName string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.tables[tableName]; ok {
		return len(t.items)
	}
	return 0
}

// Item returns a copy of the stored item with the given key, or nil.
func (f *Fake) Item(tableName string, key map[string]types.AttributeValue) map[string]types.AttributeValue {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tables[tableName]
	if !ok {
		return nil
	}
	k, err := t.key(key)
	if err != nil {
		return nil
	}
	return clone(t.items[k])
}

func (f *Fake) begin(op string) error {
	f.calls[op]++
	if err, ok := f.failNext[op]; ok {
		delete(f.failNext, op)
		return err
	}
	return nil
}

func (f *Fake) table(name *string) (*table, error) {
	if name == nil {
		return nil, errors.New("missing table name")
	}
	t, ok := f.tables[*name]
	if !ok {
		return nil, &types.ResourceNotFoundException{Message: sdkaws.String("table not found: " + *name)}
	}
	return t, nil
}

func (f *Fake) GetItem(ctx context.Context, in *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("GetItem"); err != nil {
		return nil, err
	}
	t, err := f.table(in.TableName)
	if err != nil {
		return nil, err
	}
	k, err := t.key(in.Key)
	if err != nil {
		return nil, err
	}
	it, ok := t.items[k]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: clone(it)}, nil
}

func (f *Fake) PutItem(ctx context.Context, in *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("PutItem"); err != nil {
		return nil, err
	}
	t, err := f.table(in.TableName)
	if err != nil {
		return nil, err
	}
	k, err := t.key(in.Item)
	if err != nil {
		return nil, err
	}
	ok, err := evalCondition(in.ConditionExpression, t.items[k], in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, conditionFailed()
	}
	t.store(k, clone(in.Item))
	return &dyn.PutItemOutput{}, nil
}

func (f *Fake) UpdateItem(ctx context.Context, in *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("UpdateItem"); err != nil {
		return nil, err
	}
	t, err := f.table(in.TableName)
	if err != nil {
		return nil, err
	}
	updated, k, err := t.prepareUpdate(in.Key, in.UpdateExpression, in.ConditionExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	t.store(k, updated)
	out := &dyn.UpdateItemOutput{}
	if in.ReturnValues == types.ReturnValueAllNew || in.ReturnValues == types.ReturnValueUpdatedNew {
		out.Attributes = clone(updated)
	}
	return out, nil
}

func (f *Fake) DeleteItem(ctx context.Context, in *dyn.DeleteItemInput, optFns ...func(*dyn.Options)) (*dyn.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("DeleteItem"); err != nil {
		return nil, err
	}
	t, err := f.table(in.TableName)
	if err != nil {
		return nil, err
	}
	k, err := t.key(in.Key)
	if err != nil {
		return nil, err
	}
	ok, err := evalCondition(in.ConditionExpression, t.items[k], in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, conditionFailed()
	}
	old := t.items[k]
	delete(t.items, k)
	delete(t.seq, k)
	out := &dyn.DeleteItemOutput{}
	if in.ReturnValues == types.ReturnValueAllOld {
		out.Attributes = clone(old)
	}
	return out, nil
}

func (f *Fake) Query(ctx context.Context, in *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("Query"); err != nil {
		return nil, err
	}
	t, err := f.table(in.TableName)
	if err != nil {
		return nil, err
	}
	if in.KeyConditionExpression == nil {
		return nil, errors.New("query requires a key condition")
	}
	pk, sk := t.def.PK, t.def.SK
	if in.IndexName != nil {
		found := false
		for _, idx := range t.def.Indexes {
			if idx.Name == *in.IndexName {
				pk, sk, found = idx.PK, idx.SK, true
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown index %s", *in.IndexName)
		}
	}

	var matched []item
	for _, k := range t.ordered() {
		it := t.items[k]
		if _, ok := it[pk]; !ok {
			continue
		}
		ok, err := evalCondition(in.KeyConditionExpression, it, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		ok, err = evalCondition(in.FilterExpression, it, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, it)
		}
	}

	if sk != "" {
		sort.SliceStable(matched, func(i, j int) bool {
			return compareForSort(matched[i][sk], matched[j][sk]) < 0
		})
	}
	if in.ScanIndexForward != nil && !*in.ScanIndexForward {
		for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
			matched[i], matched[j] = matched[j], matched[i]
		}
	}
	if in.Limit != nil && int(*in.Limit) < len(matched) {
		matched = matched[:*in.Limit]
	}
	return &dyn.QueryOutput{Items: project(matched, in.Select), Count: int32(len(matched))}, nil
}

func (f *Fake) Scan(ctx context.Context, in *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("Scan"); err != nil {
		return nil, err
	}
	t, err := f.table(in.TableName)
	if err != nil {
		return nil, err
	}
	var matched []item
	for _, k := range t.ordered() {
		it := t.items[k]
		ok, err := evalCondition(in.FilterExpression, it, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, it)
		}
	}
	return &dyn.ScanOutput{Items: project(matched, in.Select), Count: int32(len(matched))}, nil
}

func (f *Fake) TransactWriteItems(ctx context.Context, in *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("TransactWriteItems"); err != nil {
		return nil, err
	}
	if len(in.TransactItems) == 0 || len(in.TransactItems) > 100 {
		return nil, fmt.Errorf("transaction must contain 1..100 items, got %d", len(in.TransactItems))
	}

	type write struct {
		t      *table
		key    string
		item   item
		delete bool
	}
	var (
		writes  []write
		reasons = make([]types.CancellationReason, len(in.TransactItems))
		failed  bool
		touched = map[string]bool{}
	)
	mark := func(t *table, k string) error {
		id := t.def.Name + "/" + k
		if touched[id] {
			return errors.New("transaction cannot include multiple operations on one item")
		}
		touched[id] = true
		return nil
	}

	for i, ti := range in.TransactItems {
		reasons[i] = types.CancellationReason{Code: sdkaws.String("None")}
		var (
			ok  bool
			err error
		)
		switch {
		case ti.Put != nil:
			p := ti.Put
			t, terr := f.table(p.TableName)
			if terr != nil {
				return nil, terr
			}
			k, kerr := t.key(p.Item)
			if kerr != nil {
				return nil, kerr
			}
			if err := mark(t, k); err != nil {
				return nil, err
			}
			ok, err = evalCondition(p.ConditionExpression, t.items[k], p.ExpressionAttributeNames, p.ExpressionAttributeValues)
			writes = append(writes, write{t: t, key: k, item: clone(p.Item)})
		case ti.Update != nil:
			u := ti.Update
			t, terr := f.table(u.TableName)
			if terr != nil {
				return nil, terr
			}
			updated, k, uerr := t.prepareUpdate(u.Key, u.UpdateExpression, u.ConditionExpression, u.ExpressionAttributeNames, u.ExpressionAttributeValues)
			if k != "" {
				if err := mark(t, k); err != nil {
					return nil, err
				}
			}
			var cce *types.ConditionalCheckFailedException
			switch {
			case errors.As(uerr, &cce):
				ok = false
			case uerr != nil:
				return nil, uerr
			default:
				ok = true
			}
			writes = append(writes, write{t: t, key: k, item: updated})
		case ti.Delete != nil:
			d := ti.Delete
			t, terr := f.table(d.TableName)
			if terr != nil {
				return nil, terr
			}
			k, kerr := t.key(d.Key)
			if kerr != nil {
				return nil, kerr
			}
			if err := mark(t, k); err != nil {
				return nil, err
			}
			ok, err = evalCondition(d.ConditionExpression, t.items[k], d.ExpressionAttributeNames, d.ExpressionAttributeValues)
			writes = append(writes, write{t: t, key: k, delete: true})
		case ti.ConditionCheck != nil:
			c := ti.ConditionCheck
			t, terr := f.table(c.TableName)
			if terr != nil {
				return nil, terr
			}
			k, kerr := t.key(c.Key)
			if kerr != nil {
				return nil, kerr
			}
			if err := mark(t, k); err != nil {
				return nil, err
			}
			ok, err = evalCondition(c.ConditionExpression, t.items[k], c.ExpressionAttributeNames, c.ExpressionAttributeValues)
		default:
			return nil, errors.New("empty transact item")
		}
		if err != nil {
			return nil, err
		}
		if !ok {
			failed = true
			reasons[i] = types.CancellationReason{
				Code:    sdkaws.String("ConditionalCheckFailed"),
				Message: sdkaws.String("The conditional request failed"),
			}
		}
	}

	if failed {
		return nil, &types.TransactionCanceledException{
			Message:             sdkaws.String("Transaction cancelled, please refer cancellation reasons for specific reasons"),
			CancellationReasons: reasons,
		}
	}
	for _, w := range writes {
		if w.delete {
			delete(w.t.items, w.key)
			delete(w.t.seq, w.key)
			continue
		}
		w.t.store(w.key, w.item)
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}

func (t *table) key(av map[string]types.AttributeValue) (string, error) {
	pk, ok := av[t.def.PK]
	if !ok {
		return "", fmt.Errorf("missing key attribute %s for table %s", t.def.PK, t.def.Name)
	}
	k := encode(pk)
	if t.def.SK != "" {
		sk, ok := av[t.def.SK]
		if !ok {
			return "", fmt.Errorf("missing key attribute %s for table %s", t.def.SK, t.def.Name)
		}
		k += "|" + encode(sk)
	}
	return k, nil
}

func (t *table) store(k string, it item) {
	if _, ok := t.seq[k]; !ok {
		t.seq[k] = t.next
		t.next++
	}
	t.items[k] = it
}

func (t *table) ordered() []string {
	keys := make([]string, 0, len(t.items))
	for k := range t.items {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return t.seq[keys[i]] < t.seq[keys[j]] })
	return keys
}

// prepareUpdate evaluates the condition and returns the updated item without
// storing it. Missing items are upserted from their key, as DynamoDB does.
func (t *table) prepareUpdate(key map[string]types.AttributeValue, update, cond *string, names map[string]string, values map[string]types.AttributeValue) (item, string, error) {
	k, err := t.key(key)
	if err != nil {
		return nil, "", err
	}
	existing := t.items[k]
	ok, err := evalCondition(cond, existing, names, values)
	if err != nil {
		return nil, k, err
	}
	if !ok {
		return nil, k, conditionFailed()
	}
	updated := clone(existing)
	if updated == nil {
		updated = clone(key)
	}
	if update != nil {
		if err := applyUpdate(*update, updated, names, values); err != nil {
			return nil, k, err
		}
	}
	return updated, k, nil
}

func conditionFailed() error {
	return &types.ConditionalCheckFailedException{Message: sdkaws.String("The conditional request failed")}
}

func project(items []item, sel types.Select) []item {
	if sel == types.SelectCount {
		return nil
	}
	out := make([]item, 0, len(items))
	for _, it := range items {
		out = append(out, clone(it))
	}
	return out
}

func clone(it item) item {
	if it == nil {
		return nil
	}
	out := make(item, len(it))
	for k, v := range it {
		out[k] = v
	}
	return out
}

func encode(av types.AttributeValue) string {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return "S:" + v.Value
	case *types.AttributeValueMemberN:
		return "N:" + v.Value
	default:
		return fmt.Sprintf("%T:%v", av, av)
	}
}

func trimAll(s string) string { return strings.TrimSpace(s) }
