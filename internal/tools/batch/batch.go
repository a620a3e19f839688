package batch

import (
	"context"
	"fmt"
)

// Failure records one item of a batch that could not be processed.
type Failure struct {
	ID  string
	Err error
}

// Result holds the outcome of a batch run. Succeeded keeps input order.
type Result[T any] struct {
	Succeeded []T
	Failed    []Failure
}

// FirstError returns the error of the first failed item, or nil.
func (r Result[T]) FirstError() error {
	if len(r.Failed) == 0 {
		return nil
	}
	return r.Failed[0].Err
}

// ParseStringList parses a parameter that must be an array of non-empty
// strings with between 1 and maxItems elements. maxItems <= 0 means no
// upper bound.
func ParseStringList(param any, paramName string, maxItems int) ([]string, error) {
	if param == nil {
		return nil, fmt.Errorf("%s is required", paramName)
	}

	var items []any
	switch v := param.(type) {
	case []any:
		items = v
	case []string:
		items = make([]any, len(v))
		for i, s := range v {
			items[i] = s
		}
	default:
		return nil, fmt.Errorf("%s must be an array of strings", paramName)
	}

	if len(items) == 0 {
		return nil, fmt.Errorf("%s cannot be empty", paramName)
	}
	if maxItems > 0 && len(items) > maxItems {
		return nil, fmt.Errorf("%s accepts at most %d items, got %d", paramName, maxItems, len(items))
	}

	result := make([]string, 0, len(items))
	for i, item := range items {
		str, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("%s[%d] must be a string", paramName, i)
		}
		if str == "" {
			return nil, fmt.Errorf("%s[%d] cannot be empty", paramName, i)
		}
		result = append(result, str)
	}

	return result, nil
}

// Process runs fn on each id in order and collects the outcomes. It stops
// early only when ctx is done; the remaining ids are recorded as failed
// with the context error.
func Process[T any](ctx context.Context, ids []string, fn func(ctx context.Context, id string) (T, error)) Result[T] {
	res := Result[T]{Succeeded: make([]T, 0, len(ids))}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			res.Failed = append(res.Failed, Failure{ID: id, Err: err})
			continue
		}
		v, err := fn(ctx, id)
		if err != nil {
			res.Failed = append(res.Failed, Failure{ID: id, Err: err})
			continue
		}
		res.Succeeded = append(res.Succeeded, v)
	}

	return res
}
