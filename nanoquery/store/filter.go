package store

import (
	"github.com/arthur-debert/nanoquery/types"
)

// matchesPredicate checks if a row matches the community scope, the
// soft-delete rule and every condition of pred
func matchesPredicate(row types.Row, pred types.Predicate) bool {
	if pred.Community != nil && !types.Equal(row[types.ColCommunity], types.Normalize(pred.Community)) {
		return false
	}
	if !pred.IncludeDeleted && row[types.ColDeleted] != nil {
		return false
	}
	for _, c := range pred.Conditions {
		if !matchesCondition(row[c.Column], c) {
			return false
		}
	}
	return true
}

// matchesCondition follows SQL semantics: a comparison against NULL never
// holds, except for the explicit IS NULL / IS NOT NULL forms
func matchesCondition(value interface{}, c types.Condition) bool {
	want := types.Normalize(c.Value)

	switch c.Op {
	case types.OpEq:
		if want == nil {
			return value == nil
		}
		return value != nil && types.Equal(value, want)
	case types.OpNe:
		if items, ok := c.Value.([]interface{}); ok {
			// not in: null never qualifies, null items are ignored
			if value == nil {
				return false
			}
			for _, item := range items {
				if item != nil && types.Equal(value, types.Normalize(item)) {
					return false
				}
			}
			return true
		}
		if want == nil {
			return value != nil
		}
		if value == nil {
			return false
		}
		cmp, ok := types.Compare(value, want)
		return ok && cmp != 0
	case types.OpIn:
		items, _ := c.Value.([]interface{})
		for _, item := range items {
			if value != nil && types.Equal(value, types.Normalize(item)) {
				return true
			}
		}
		return false
	}

	if value == nil || want == nil {
		return false
	}
	cmp, ok := types.Compare(value, want)
	if !ok {
		return false
	}
	switch c.Op {
	case types.OpGt:
		return cmp > 0
	case types.OpGte:
		return cmp >= 0
	case types.OpLt:
		return cmp < 0
	case types.OpLte:
		return cmp <= 0
	default:
		return false
	}
}
