package dynamotest

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

var comparators = []string{">=", "<=", "<>", "=", ">", "<"}

// evalCondition evaluates expr against it. A nil or empty expression is true.
// A nil item behaves as an item with no attributes.
func evalCondition(expr *string, it item, names map[string]string, values map[string]types.AttributeValue) (bool, error) {
	if expr == nil || trimAll(*expr) == "" {
		return true, nil
	}
	for _, clause := range strings.Split(*expr, " AND ") {
		ok, err := evalClause(trimAll(clause), it, names, values)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func evalClause(clause string, it item, names map[string]string, values map[string]types.AttributeValue) (bool, error) {
	if arg, ok := call(clause, "attribute_exists"); ok {
		_, present := it[resolveName(arg, names)]
		return present, nil
	}
	if arg, ok := call(clause, "attribute_not_exists"); ok {
		_, present := it[resolveName(arg, names)]
		return !present, nil
	}
	if arg, ok := call(clause, "begins_with"); ok {
		parts := strings.SplitN(arg, ",", 2)
		if len(parts) != 2 {
			return false, fmt.Errorf("bad begins_with: %s", clause)
		}
		a, aok := operand(trimAll(parts[0]), it, names, values)
		b, bok := operand(trimAll(parts[1]), it, names, values)
		as, _ := a.(*types.AttributeValueMemberS)
		bs, _ := b.(*types.AttributeValueMemberS)
		return aok && bok && as != nil && bs != nil && strings.HasPrefix(as.Value, bs.Value), nil
	}

	for _, op := range comparators {
		idx := strings.Index(clause, " "+op+" ")
		if idx < 0 {
			continue
		}
		lhs := trimAll(clause[:idx])
		rhs := trimAll(clause[idx+len(op)+2:])
		a, aok := operand(lhs, it, names, values)
		b, bok := operand(rhs, it, names, values)
		if !aok || !bok {
			return false, nil
		}
		return compare(a, b, op)
	}
	return false, fmt.Errorf("unsupported condition clause: %q", clause)
}

func call(clause, fn string) (string, bool) {
	if !strings.HasPrefix(clause, fn+"(") || !strings.HasSuffix(clause, ")") {
		return "", false
	}
	return trimAll(clause[len(fn)+1 : len(clause)-1]), true
}

func resolveName(tok string, names map[string]string) string {
	if strings.HasPrefix(tok, "#") {
		if n, ok := names[tok]; ok {
			return n
		}
	}
	return tok
}

func operand(tok string, it item, names map[string]string, values map[string]types.AttributeValue) (types.AttributeValue, bool) {
	if strings.HasPrefix(tok, ":") {
		v, ok := values[tok]
		return v, ok
	}
	v, ok := it[resolveName(tok, names)]
	return v, ok
}

func compare(a, b types.AttributeValue, op string) (bool, error) {
	an, aNum := a.(*types.AttributeValueMemberN)
	bn, bNum := b.(*types.AttributeValueMemberN)
	if aNum && bNum {
		x, err := strconv.ParseFloat(an.Value, 64)
		if err != nil {
			return false, err
		}
		y, err := strconv.ParseFloat(bn.Value, 64)
		if err != nil {
			return false, err
		}
		return ordered(cmpFloat(x, y), op), nil
	}
	as, aStr := a.(*types.AttributeValueMemberS)
	bs, bStr := b.(*types.AttributeValueMemberS)
	if aStr && bStr {
		return ordered(strings.Compare(as.Value, bs.Value), op), nil
	}
	switch op {
	case "=":
		return reflect.DeepEqual(a, b), nil
	case "<>":
		return !reflect.DeepEqual(a, b), nil
	}
	return false, nil
}

func cmpFloat(x, y float64) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

func ordered(c int, op string) bool {
	switch op {
	case "=":
		return c == 0
	case "<>":
		return c != 0
	case ">=":
		return c >= 0
	case "<=":
		return c <= 0
	case ">":
		return c > 0
	case "<":
		return c < 0
	}
	return false
}

func compareForSort(a, b types.AttributeValue) int {
	if an, ok := a.(*types.AttributeValueMemberN); ok {
		if bn, ok := b.(*types.AttributeValueMemberN); ok {
			x, _ := strconv.ParseFloat(an.Value, 64)
			y, _ := strconv.ParseFloat(bn.Value, 64)
			return cmpFloat(x, y)
		}
	}
	return strings.Compare(encode(a), encode(b))
}

// applyUpdate applies a "SET a = :v, b = b - :n" expression in place.
func applyUpdate(expr string, it item, names map[string]string, values map[string]types.AttributeValue) error {
	expr = trimAll(expr)
	if !strings.HasPrefix(strings.ToUpper(expr), "SET ") {
		return fmt.Errorf("unsupported update expression: %q", expr)
	}
	for _, assign := range strings.Split(expr[4:], ",") {
		parts := strings.SplitN(assign, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("bad assignment: %q", assign)
		}
		target := resolveName(trimAll(parts[0]), names)
		rhs := trimAll(parts[1])

		var (
			v   types.AttributeValue
			err error
		)
		switch {
		case strings.Contains(rhs, " - "):
			v, err = arith(rhs, " - ", it, names, values)
		case strings.Contains(rhs, " + "):
			v, err = arith(rhs, " + ", it, names, values)
		default:
			var ok bool
			v, ok = operand(rhs, it, names, values)
			if !ok {
				err = fmt.Errorf("unresolved operand %q", rhs)
			}
		}
		if err != nil {
			return err
		}
		it[target] = v
	}
	return nil
}

func arith(rhs, op string, it item, names map[string]string, values map[string]types.AttributeValue) (types.AttributeValue, error) {
	parts := strings.SplitN(rhs, op, 2)
	a, aok := operand(trimAll(parts[0]), it, names, values)
	b, bok := operand(trimAll(parts[1]), it, names, values)
	if !aok || !bok {
		return nil, fmt.Errorf("unresolved operand in %q", rhs)
	}
	an, aNum := a.(*types.AttributeValueMemberN)
	bn, bNum := b.(*types.AttributeValueMemberN)
	if !aNum || !bNum {
		return nil, fmt.Errorf("arithmetic on non-number in %q", rhs)
	}
	x, err := strconv.ParseFloat(an.Value, 64)
	if err != nil {
		return nil, err
	}
	y, err := strconv.ParseFloat(bn.Value, 64)
	if err != nil {
		return nil, err
	}
	if trimAll(op) == "-" {
		x -= y
	} else {
		x += y
	}
	return &types.AttributeValueMemberN{Value: strconv.FormatFloat(x, 'f', -1, 64)}, nil
}
