package model

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/okvist/vogels/ddbsdk"
	"github.com/okvist/vogels/expr"
	"github.com/okvist/vogels/table"
	"github.com/okvist/vogels/track"
)

// Entity is anything the mapper can persist. The primary key must be
// derivable from the value itself.
type Entity interface {
	PrimaryKey() table.PrimaryKey
}

// Mapper moves entities between Go values and one table. Every successful
// load, save and delete is reported to the tracker, so a later Atomic() write
// can require that nothing changed in between.
type Mapper struct {
	table   table.TableDefinition
	api     ddbsdk.AWSDynamoClientV2
	caller  *ddbsdk.Caller
	tracker *track.Tracker
	codec   expr.Codec
	logger  *slog.Logger
}

type MapperOption func(*Mapper)

// WithLogger overrides the default slog logger.
func WithLogger(l *slog.Logger) MapperOption {
	return func(m *Mapper) { m.logger = l }
}

// WithCodec overrides the value codec used when rendering conditions.
func WithCodec(c expr.Codec) MapperOption {
	return func(m *Mapper) { m.codec = c }
}

// WithCaller overrides the retry policy for store calls.
func WithCaller(c *ddbsdk.Caller) MapperOption {
	return func(m *Mapper) { m.caller = c }
}

func NewMapper(t table.TableDefinition, api ddbsdk.AWSDynamoClientV2, opts ...MapperOption) *Mapper {
	m := &Mapper{
		table:   t,
		api:     api,
		caller:  ddbsdk.NewCaller(),
		tracker: track.NewTracker(),
		codec:   expr.DefaultCodec,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Tracker exposes the mapper's tracker, e.g. to Forget an instance or to
// derive a condition by hand.
func (m *Mapper) Tracker() *track.Tracker { return m.tracker }

type writeOpts struct {
	atomic    bool
	condition expr.Condition
	ttl       *time.Time
}

type WriteOption func(*writeOpts)

// Atomic makes the write conditional on the instance's tracked state: the
// store rejects it with ddbsdk.ErrConditionFailed when someone else changed
// the item since this instance last observed it.
func Atomic() WriteOption {
	return func(o *writeOpts) { o.atomic = true }
}

// WithCondition adds a caller-supplied condition, ANDed with any atomic one.
func WithCondition(c expr.Condition) WriteOption {
	return func(o *writeOpts) { o.condition = o.condition.And(c) }
}

// WithTTL sets the table's time-to-live attribute to the given expiry.
func WithTTL(expiry time.Time) WriteOption {
	return func(o *writeOpts) { o.ttl = &expiry }
}

type readOpts struct {
	consistent bool
}

type ReadOption func(*readOpts)

// WithConsistentRead requests a strongly consistent read.
func WithConsistentRead() ReadOption {
	return func(o *readOpts) { o.consistent = true }
}

// Load fetches the item for key and unmarshals it into out, then records the
// observed state against out's identity. out must be a pointer.
func (m *Mapper) Load(ctx context.Context, key table.PrimaryKey, out any, opts ...ReadOption) error {
	var o readOpts
	for _, opt := range opts {
		opt(&o)
	}
	k, err := key.DDB()
	if err != nil {
		return fmt.Errorf("load key: %w", err)
	}
	resp, err := ddbsdk.Do(ctx, m.caller, "GetItem", func(ctx context.Context) (*dynamodb.GetItemOutput, error) {
		return m.api.GetItem(ctx, &dynamodb.GetItemInput{
			TableName:      &m.table.Name,
			Key:            k,
			ConsistentRead: aws.Bool(o.consistent),
		})
	})
	if err != nil {
		return fmt.Errorf("get item from %s: %w", m.table.Name, err)
	}
	if len(resp.Item) == 0 {
		return fmt.Errorf("%w: table %s", ErrNotFound, m.table.Name)
	}
	if err := attributevalue.UnmarshalMap(resp.Item, out); err != nil {
		return fmt.Errorf("unmarshal item: %w", err)
	}
	m.tracker.Observe(out, attrNames(resp.Item), resp.Item)
	return nil
}

// Materialize turns a raw document, as returned by Query or Scan, into a
// typed value and records the observed state against out's identity, the same
// as a Load would. The document must carry the table's primary key attributes;
// a document with a missing or mistyped key is rejected before unmarshaling.
func (m *Mapper) Materialize(doc ddbsdk.Item, out any) error {
	if _, err := m.table.ExtractPrimaryKey(doc); err != nil {
		return fmt.Errorf("materialize from %s: %w", m.table.Name, err)
	}
	if err := attributevalue.UnmarshalMap(doc, out); err != nil {
		return fmt.Errorf("unmarshal item: %w", err)
	}
	m.tracker.Observe(out, attrNames(doc), doc)
	return nil
}

// Save writes the entity wholesale. With Atomic() the write carries the
// tracked-state condition; either way a successful save becomes the new
// tracked state, so consecutive atomic saves pass absent external writes.
func (m *Mapper) Save(ctx context.Context, e Entity, opts ...WriteOption) error {
	var o writeOpts
	for _, opt := range opts {
		opt(&o)
	}
	item, err := attributevalue.MarshalMap(e)
	if err != nil {
		return fmt.Errorf("marshal entity: %w", err)
	}
	keyAttrs, err := e.PrimaryKey().DDB()
	if err != nil {
		return fmt.Errorf("entity key: %w", err)
	}
	for k, v := range keyAttrs {
		item[k] = v
	}

	// Attributes that encode to nothing (NULL, empty set) cannot be stored;
	// they are written as absent and tracked as expected-absent.
	expected := attrNames(item)
	for k, v := range item {
		if expr.IsNoValue(v) {
			delete(item, k)
		}
	}

	cond := o.condition
	if o.atomic {
		cond = cond.And(m.tracker.CurrentCondition(e, item))
	}
	if o.ttl != nil && m.table.TimeToLiveKey != "" {
		item[m.table.TimeToLiveKey] = ttlAttr(*o.ttl)
	}

	condStr, names, values, err := renderCondition(cond, m.codec)
	if err != nil {
		return fmt.Errorf("save condition: %w", err)
	}
	_, err = ddbsdk.Do(ctx, m.caller, "PutItem", func(ctx context.Context) (*dynamodb.PutItemOutput, error) {
		return m.api.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:                 &m.table.Name,
			Item:                      item,
			ConditionExpression:       condStr,
			ExpressionAttributeNames:  names,
			ExpressionAttributeValues: values,
		})
	})
	if err != nil {
		return fmt.Errorf("put item to %s: %w", m.table.Name, err)
	}
	m.tracker.Observe(e, expected, item)
	m.logger.Debug("saved item", "table", m.table.Name)
	return nil
}

// Delete removes the entity's item. With Atomic() the delete carries the
// tracked-state condition. A successful delete records every entity attribute
// as expected-absent, so a following atomic save requires the item to still
// be gone.
func (m *Mapper) Delete(ctx context.Context, e Entity, opts ...WriteOption) error {
	var o writeOpts
	for _, opt := range opts {
		opt(&o)
	}
	item, err := attributevalue.MarshalMap(e)
	if err != nil {
		return fmt.Errorf("marshal entity: %w", err)
	}
	keyAttrs, err := e.PrimaryKey().DDB()
	if err != nil {
		return fmt.Errorf("entity key: %w", err)
	}
	for k, v := range keyAttrs {
		item[k] = v
	}
	expected := attrNames(item)
	for k, v := range item {
		if expr.IsNoValue(v) {
			delete(item, k)
		}
	}

	cond := o.condition
	if o.atomic {
		cond = cond.And(m.tracker.CurrentCondition(e, item))
	}
	condStr, names, values, err := renderCondition(cond, m.codec)
	if err != nil {
		return fmt.Errorf("delete condition: %w", err)
	}
	_, err = ddbsdk.Do(ctx, m.caller, "DeleteItem", func(ctx context.Context) (*dynamodb.DeleteItemOutput, error) {
		return m.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName:                 &m.table.Name,
			Key:                       keyAttrs,
			ConditionExpression:       condStr,
			ExpressionAttributeNames:  names,
			ExpressionAttributeValues: values,
		})
	})
	if err != nil {
		return fmt.Errorf("delete item from %s: %w", m.table.Name, err)
	}
	m.tracker.ObserveDelete(e, expected)
	m.logger.Debug("deleted item", "table", m.table.Name)
	return nil
}

func renderCondition(cond expr.Condition, codec expr.Codec) (*string, map[string]string, map[string]types.AttributeValue, error) {
	if cond.IsEmpty() {
		return nil, nil, nil, nil
	}
	refs := expr.NewReferenceTracker()
	s, err := cond.RenderWith(refs, codec)
	if err != nil {
		return nil, nil, nil, err
	}
	names, values := refs.Names(), refs.Values()
	if len(names) == 0 {
		names = nil
	}
	if len(values) == 0 {
		values = nil
	}
	return &s, names, values, nil
}

func attrNames(item map[string]types.AttributeValue) []string {
	out := make([]string, 0, len(item))
	for k := range item {
		out = append(out, k)
	}
	return out
}

func ttlAttr(expiry time.Time) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(expiry.Unix(), 10)}
}
