package recordstore

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/chronostore/chronostore/internal/errors"
)

// Op is a comparison operator usable in a predicate condition.
type Op string

const (
	OpEq  Op = "="
	OpNe  Op = "!="
	OpGt  Op = ">"
	OpGte Op = ">="
	OpLt  Op = "<"
	OpLte Op = "<="
	OpIn  Op = "in"
)

// Cond is a single field comparison.
type Cond struct {
	Field string
	Op    Op
	Value any
}

// Predicate is a conjunction of field comparisons. A nil or empty predicate
// matches every record. The same predicate value is translated once per
// backing-store family: to a SQL WHERE clause for relational stores and to
// an in-memory matcher for the document store.
type Predicate []Cond

// Where starts a predicate with a single equality condition.
func Where(field string, value any) Predicate {
	return Predicate{{Field: field, Op: OpEq, Value: value}}
}

// WhereOp starts a predicate with a single condition using the given operator.
func WhereOp(field string, op Op, value any) Predicate {
	return Predicate{{Field: field, Op: op, Value: value}}
}

// And appends an equality condition.
func (p Predicate) And(field string, value any) Predicate {
	return append(p, Cond{Field: field, Op: OpEq, Value: value})
}

// AndOp appends a condition using the given operator.
func (p Predicate) AndOp(field string, op Op, value any) Predicate {
	return append(p, Cond{Field: field, Op: op, Value: value})
}

// without returns a copy of p with every condition on the named fields removed.
func (p Predicate) without(fields ...string) Predicate {
	drop := make(map[string]bool, len(fields))
	for _, f := range fields {
		drop[f] = true
	}
	var out Predicate
	for _, c := range p {
		if !drop[c.Field] {
			out = append(out, c)
		}
	}
	return out
}

// ParseCond converts a raw query value into a condition, interpreting a
// leading comparison sign (">=", ">", "<=", "<", "!=") when present.
func ParseCond(field, raw string) Cond {
	for _, op := range []Op{OpGte, OpLte, OpNe, OpGt, OpLt} {
		if strings.HasPrefix(raw, string(op)) {
			return Cond{Field: field, Op: op, Value: strings.TrimPrefix(raw, string(op))}
		}
	}
	return Cond{Field: field, Op: OpEq, Value: raw}
}

// ParseFilter converts a "field=value" expression into a condition scoped to
// the collection, coercing the value to the field's declared type. The value
// may carry a leading comparison sign, e.g. "count=>=10". Interval and audit
// metadata fields are accepted alongside declared fields.
func ParseFilter(def *CollectionDef, expr string) (Cond, error) {
	field, raw, ok := strings.Cut(expr, "=")
	if !ok || field == "" {
		return Cond{}, errors.ValidationError(
			fmt.Sprintf("filter %q is not of the form field=value", expr))
	}
	cond := ParseCond(field, raw)
	if f, found := def.FieldByName(field); found {
		cond.Value = coerceValue(f.Type, cond.Value)
		return cond, nil
	}
	switch field {
	case FieldValidSince, FieldValidUntil, FieldRevision:
		cond.Value = coerceValue(FieldInt, cond.Value)
	case FieldAuditUser, FieldAuditAction, FieldTableName:
		// string already
	case FieldAuditDate:
		cond.Value = coerceValue(FieldTime, cond.Value)
	default:
		return Cond{}, errors.ValidationError(
			fmt.Sprintf("collection %s has no field %s", def.Name, field))
	}
	return cond, nil
}

// match evaluates the predicate against a record. Used by the document
// backend; the relational backend translates predicates to SQL instead.
func (p Predicate) match(rec Record) bool {
	for _, c := range p {
		if !c.matches(rec[c.Field]) {
			return false
		}
	}
	return true
}

func (c Cond) matches(value any) bool {
	if c.Op == OpIn {
		rv := reflect.ValueOf(c.Value)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return equalValues(value, c.Value)
		}
		for i := range rv.Len() {
			if equalValues(value, rv.Index(i).Interface()) {
				return true
			}
		}
		return false
	}

	cmp, comparable := compareValues(value, c.Value)
	switch c.Op {
	case OpEq:
		return comparable && cmp == 0
	case OpNe:
		return !comparable || cmp != 0
	case OpGt:
		return comparable && cmp > 0
	case OpGte:
		return comparable && cmp >= 0
	case OpLt:
		return comparable && cmp < 0
	case OpLte:
		return comparable && cmp <= 0
	}
	return false
}

func equalValues(a, b any) bool {
	cmp, ok := compareValues(a, b)
	return ok && cmp == 0
}

// compareValues orders two values of compatible types. The boolean result is
// false when the values cannot be compared.
func compareValues(a, b any) (int, bool) {
	if a == nil || b == nil {
		if a == nil && b == nil {
			return 0, true
		}
		return 0, false
	}

	if af, aok := toFloat64(numericOnly(a)); aok {
		if bf, bok := toFloat64(numericOnly(b)); bok {
			switch {
			case af < bf:
				return -1, true
			case af > bf:
				return 1, true
			default:
				return 0, true
			}
		}
	}

	switch av := a.(type) {
	case string:
		if bv, ok := asString(b); ok {
			return strings.Compare(av, bv), true
		}
	case []byte:
		if bv, ok := asString(b); ok {
			return strings.Compare(string(av), bv), true
		}
	case bool:
		if bv, ok := b.(bool); ok {
			if av == bv {
				return 0, true
			}
			return 1, true
		}
	case time.Time:
		if bv, ok := asTime(b); ok {
			switch {
			case av.Before(bv):
				return -1, true
			case av.After(bv):
				return 1, true
			default:
				return 0, true
			}
		}
	}
	return 0, false
}

// numericOnly blocks string-to-number coercion so that "10" does not compare
// numerically against 10 while genuine numeric types still do.
func numericOnly(v any) any {
	switch v.(type) {
	case string, []byte, bool, time.Time:
		return struct{}{}
	}
	return v
}

func asString(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case []byte:
		return string(val), true
	}
	return "", false
}

func asTime(v any) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		return val, true
	case string:
		return parseTime(val)
	}
	return time.Time{}, false
}

// String renders the predicate for logs.
func (p Predicate) String() string {
	if len(p) == 0 {
		return "all"
	}
	parts := make([]string, 0, len(p))
	for _, c := range p {
		parts = append(parts, fmt.Sprintf("%s %s %v", c.Field, c.Op, c.Value))
	}
	return strings.Join(parts, " AND ")
}
