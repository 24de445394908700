package store

import "fmt"

// Op identifies a predicate comparison.
type Op string

const (
	// OpEq matches records whose field equals the value.
	OpEq Op = "eq"
	// OpArrayContains matches records whose array field contains the value.
	OpArrayContains Op = "array-contains"
	// OpGte matches records whose field is >= the value. For timestamp
	// fields both sides are RFC3339 strings, which order lexically.
	OpGte Op = "gte"
)

// Predicate is a single field comparison applied server-side to a partition.
type Predicate struct {
	Field string `json:"field"`
	Op    Op     `json:"op"`
	Value any    `json:"value"`
}

// Eq builds an equality predicate.
func Eq(field string, value any) Predicate {
	return Predicate{Field: field, Op: OpEq, Value: value}
}

// ArrayContains builds an array-membership predicate.
func ArrayContains(field string, value any) Predicate {
	return Predicate{Field: field, Op: OpArrayContains, Value: value}
}

// Gte builds a greater-or-equal predicate.
func Gte(field string, value any) Predicate {
	return Predicate{Field: field, Op: OpGte, Value: value}
}

// Validate reports whether the predicate is well formed.
func (p Predicate) Validate() error {
	if p.Field == "" {
		return fmt.Errorf("predicate field is required")
	}
	switch p.Op {
	case OpEq, OpArrayContains, OpGte:
		return nil
	default:
		return fmt.Errorf("unsupported predicate op %q", p.Op)
	}
}

// Match reports whether a record's fields satisfy every predicate.
func Match(fields map[string]any, predicates []Predicate) bool {
	for _, predicate := range predicates {
		if !matchOne(fields, predicate) {
			return false
		}
	}
	return true
}

func matchOne(fields map[string]any, predicate Predicate) bool {
	value, ok := fields[predicate.Field]
	if !ok {
		return false
	}
	switch predicate.Op {
	case OpEq:
		return equalValues(value, predicate.Value)
	case OpArrayContains:
		list, ok := value.([]any)
		if !ok {
			return false
		}
		for _, element := range list {
			if equalValues(element, predicate.Value) {
				return true
			}
		}
		return false
	case OpGte:
		left, leftOK := value.(string)
		right, rightOK := predicate.Value.(string)
		if leftOK && rightOK {
			return left >= right
		}
		leftNum, leftOK := asFloat(value)
		rightNum, rightOK := asFloat(predicate.Value)
		return leftOK && rightOK && leftNum >= rightNum
	default:
		return false
	}
}

// equalValues compares scalars, folding numeric types so values that round
// tripped through JSON (where every number is float64) still match.
func equalValues(a, b any) bool {
	if a == b {
		return true
	}
	aNum, aOK := asFloat(a)
	bNum, bOK := asFloat(b)
	return aOK && bOK && aNum == bNum
}

func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}
