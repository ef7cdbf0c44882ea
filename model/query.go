package model

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/okvist/vogels/ddbsdk"
	"github.com/okvist/vogels/expr"
)

type queryOpts struct {
	filter     expr.Condition
	sort       expr.Condition
	limit      int
	descending bool
}

type QueryOption func(*queryOpts)

// WithFilter applies a post-read filter expression to query and scan results.
func WithFilter(c expr.Condition) QueryOption {
	return func(o *queryOpts) { o.filter = o.filter.And(c) }
}

// WithLimit caps the total number of items returned.
func WithLimit(n int) QueryOption {
	return func(o *queryOpts) { o.limit = n }
}

// WithDescending reverses the sort-key order.
func WithDescending() QueryOption {
	return func(o *queryOpts) { o.descending = true }
}

// WithSortBeginsWith narrows the query to sort keys with the given prefix.
func (m *Mapper) WithSortBeginsWith(prefix string) QueryOption {
	sk := m.table.KeyDefinitions.SortKey.Name
	return func(o *queryOpts) {
		o.sort = expr.BeginsWith(expr.Name(sk), prefix)
	}
}

// WithSortBetween narrows the query to an inclusive sort-key range.
func (m *Mapper) WithSortBetween(lo, hi any) QueryOption {
	sk := m.table.KeyDefinitions.SortKey.Name
	return func(o *queryOpts) {
		o.sort = expr.Between(expr.Name(sk), lo, hi)
	}
}

// Query returns every item in the given partition, paging through the store
// as needed. The raw documents are returned; callers unmarshal what they
// need, or pass each through Materialize for typed, tracked results.
func (m *Mapper) Query(ctx context.Context, partition any, opts ...QueryOption) ([]ddbsdk.Item, error) {
	var o queryOpts
	for _, opt := range opts {
		opt(&o)
	}
	keyCond := expr.Equal(expr.Name(m.table.KeyDefinitions.PartitionKey.Name), partition).And(o.sort)

	refs := expr.NewReferenceTracker()
	keyStr, err := keyCond.RenderWith(refs, m.codec)
	if err != nil {
		return nil, fmt.Errorf("key condition: %w", err)
	}
	var filterStr *string
	if !o.filter.IsEmpty() {
		s, err := o.filter.RenderWith(refs, m.codec)
		if err != nil {
			return nil, fmt.Errorf("filter: %w", err)
		}
		filterStr = &s
	}
	names, values := refs.Names(), refs.Values()

	var items []ddbsdk.Item
	var startKey map[string]types.AttributeValue
	for {
		input := &dynamodb.QueryInput{
			TableName:                 &m.table.Name,
			KeyConditionExpression:    &keyStr,
			FilterExpression:          filterStr,
			ExpressionAttributeNames:  names,
			ExpressionAttributeValues: values,
			ExclusiveStartKey:         startKey,
		}
		if o.descending {
			input.ScanIndexForward = aws.Bool(false)
		}
		if o.limit > 0 {
			input.Limit = aws.Int32(int32(o.limit - len(items)))
		}
		resp, err := ddbsdk.Do(ctx, m.caller, "Query", func(ctx context.Context) (*dynamodb.QueryOutput, error) {
			return m.api.Query(ctx, input)
		})
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", m.table.Name, err)
		}
		items = append(items, resp.Items...)
		if o.limit > 0 && len(items) >= o.limit {
			return items[:o.limit], nil
		}
		if resp.LastEvaluatedKey == nil {
			return items, nil
		}
		startKey = resp.LastEvaluatedKey
	}
}

// Scan returns every item in the table that passes the filter.
func (m *Mapper) Scan(ctx context.Context, opts ...QueryOption) ([]ddbsdk.Item, error) {
	var o queryOpts
	for _, opt := range opts {
		opt(&o)
	}
	var filterStr *string
	var names map[string]string
	var values map[string]types.AttributeValue
	if !o.filter.IsEmpty() {
		refs := expr.NewReferenceTracker()
		s, err := o.filter.RenderWith(refs, m.codec)
		if err != nil {
			return nil, fmt.Errorf("filter: %w", err)
		}
		filterStr, names, values = &s, refs.Names(), refs.Values()
	}

	var items []ddbsdk.Item
	var startKey map[string]types.AttributeValue
	for {
		input := &dynamodb.ScanInput{
			TableName:                 &m.table.Name,
			FilterExpression:          filterStr,
			ExpressionAttributeNames:  names,
			ExpressionAttributeValues: values,
			ExclusiveStartKey:         startKey,
		}
		if o.limit > 0 {
			input.Limit = aws.Int32(int32(o.limit - len(items)))
		}
		resp, err := ddbsdk.Do(ctx, m.caller, "Scan", func(ctx context.Context) (*dynamodb.ScanOutput, error) {
			return m.api.Scan(ctx, input)
		})
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", m.table.Name, err)
		}
		items = append(items, resp.Items...)
		if o.limit > 0 && len(items) >= o.limit {
			return items[:o.limit], nil
		}
		if resp.LastEvaluatedKey == nil {
			return items, nil
		}
		startKey = resp.LastEvaluatedKey
	}
}
