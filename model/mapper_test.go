package model

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"

	"github.com/okvist/vogels/ddbsdk"
	"github.com/okvist/vogels/table"
)

var docTable = table.TableDefinition{
	Name: "docs",
	KeyDefinitions: table.PrimaryKeyDefinition{
		PartitionKey: table.KeyDef{Name: "id", Kind: table.KeyKindS},
	},
	TimeToLiveKey: "expiry",
}

type doc struct {
	ID   string `dynamodbav:"id"`
	Name string `dynamodbav:"name"`
	Size *int   `dynamodbav:"size"`
}

func (d *doc) PrimaryKey() table.PrimaryKey {
	return table.PrimaryKey{
		Definition: docTable.KeyDefinitions,
		Values:     table.PrimaryKeyValues{PartitionKey: d.ID},
	}
}

type mockDynamo struct {
	items map[string]ddbsdk.Item

	putErr     error
	lastPut    *dynamodb.PutItemInput
	lastDelete *dynamodb.DeleteItemInput

	queryPages []*dynamodb.QueryOutput
	queryCalls []*dynamodb.QueryInput
	scanPages  []*dynamodb.ScanOutput
}

func (m *mockDynamo) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	id := params.Key["id"].(*types.AttributeValueMemberS).Value
	return &dynamodb.GetItemOutput{Item: m.items[id]}, nil
}

func (m *mockDynamo) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.lastPut = params
	if m.putErr != nil {
		return nil, m.putErr
	}
	if m.items == nil {
		m.items = make(map[string]ddbsdk.Item)
	}
	id := params.Item["id"].(*types.AttributeValueMemberS).Value
	m.items[id] = params.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (m *mockDynamo) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	m.lastDelete = params
	id := params.Key["id"].(*types.AttributeValueMemberS).Value
	delete(m.items, id)
	return &dynamodb.DeleteItemOutput{}, nil
}

func (m *mockDynamo) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	m.queryCalls = append(m.queryCalls, params)
	page := m.queryPages[0]
	m.queryPages = m.queryPages[1:]
	return page, nil
}

func (m *mockDynamo) Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	page := m.scanPages[0]
	m.scanPages = m.scanPages[1:]
	return page, nil
}

func intp(v int) *int { return &v }

func TestAtomicSaveOfNewInstanceRequiresAbsence(t *testing.T) {
	mock := &mockDynamo{}
	m := NewMapper(docTable, mock)

	d := &doc{ID: "a", Name: "first"}
	require.NoError(t, m.Save(context.Background(), d, Atomic()))

	put := mock.lastPut
	require.Equal(t, "attribute_not_exists(#n0) AND attribute_not_exists(#n1)", *put.ConditionExpression)
	require.Equal(t, map[string]string{"#n0": "id", "#n1": "name"}, put.ExpressionAttributeNames)
	require.NotContains(t, put.Item, "size", "a nil attribute is written as absent")
}

func TestConsecutiveAtomicSavesPass(t *testing.T) {
	mock := &mockDynamo{}
	m := NewMapper(docTable, mock)
	ctx := context.Background()

	d := &doc{ID: "a", Name: "first"}
	require.NoError(t, m.Save(ctx, d, Atomic()))

	// The second save must require exactly the state the first one wrote,
	// including the still-absent attribute.
	d.Name = "second"
	require.NoError(t, m.Save(ctx, d, Atomic()))

	put := mock.lastPut
	require.Equal(t, "(#n0 = :v0 AND #n1 = :v1) AND attribute_not_exists(#n2)", *put.ConditionExpression)
	require.Equal(t, map[string]string{"#n0": "id", "#n1": "name", "#n2": "size"}, put.ExpressionAttributeNames)
	require.Equal(t, &types.AttributeValueMemberS{Value: "first"}, put.ExpressionAttributeValues[":v1"])
}

func TestAtomicSaveConflictSurfacesConditionFailed(t *testing.T) {
	mock := &mockDynamo{putErr: &types.ConditionalCheckFailedException{}}
	m := NewMapper(docTable, mock)

	d := &doc{ID: "a"}
	err := m.Save(context.Background(), d, Atomic())
	require.ErrorIs(t, err, ddbsdk.ErrConditionFailed)
	require.False(t, m.Tracker().Tracked(d), "a failed save must not become tracked state")
}

func TestLoadThenAtomicSave(t *testing.T) {
	mock := &mockDynamo{items: map[string]ddbsdk.Item{
		"a": {
			"id":   &types.AttributeValueMemberS{Value: "a"},
			"name": &types.AttributeValueMemberS{Value: "stored"},
			"size": &types.AttributeValueMemberN{Value: "5"},
		},
	}}
	m := NewMapper(docTable, mock)
	ctx := context.Background()

	var d doc
	key := (&doc{ID: "a"}).PrimaryKey()
	require.NoError(t, m.Load(ctx, key, &d))
	require.Equal(t, "stored", d.Name)
	require.Equal(t, 5, *d.Size)

	d.Name = "changed"
	require.NoError(t, m.Save(ctx, &d, Atomic()))

	put := mock.lastPut
	require.Equal(t, "(#n0 = :v0 AND #n1 = :v1) AND #n2 = :v2", *put.ConditionExpression)
	require.Equal(t, &types.AttributeValueMemberS{Value: "stored"}, put.ExpressionAttributeValues[":v1"])
	require.Equal(t, &types.AttributeValueMemberN{Value: "5"}, put.ExpressionAttributeValues[":v2"])
}

func TestLoadMissingItem(t *testing.T) {
	m := NewMapper(docTable, &mockDynamo{})
	var d doc
	err := m.Load(context.Background(), (&doc{ID: "nope"}).PrimaryKey(), &d)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAtomicDeleteThenSaveRequiresAbsence(t *testing.T) {
	mock := &mockDynamo{}
	m := NewMapper(docTable, mock)
	ctx := context.Background()

	d := &doc{ID: "a", Name: "x", Size: intp(3)}
	require.NoError(t, m.Save(ctx, d))
	require.NoError(t, m.Delete(ctx, d, Atomic()))
	require.Equal(t, "(#n0 = :v0 AND #n1 = :v1) AND #n2 = :v2", *mock.lastDelete.ConditionExpression)

	// After the delete the tracked state is "gone": a new atomic save
	// requires the item to still be absent.
	require.NoError(t, m.Save(ctx, d, Atomic()))
	require.Equal(t,
		"(attribute_not_exists(#n0) AND attribute_not_exists(#n1)) AND attribute_not_exists(#n2)",
		*mock.lastPut.ConditionExpression)
}

func TestSaveWithTTL(t *testing.T) {
	mock := &mockDynamo{}
	m := NewMapper(docTable, mock)

	expiry := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, m.Save(context.Background(), &doc{ID: "a"}, WithTTL(expiry)))
	require.Equal(t,
		&types.AttributeValueMemberN{Value: "1780272000"},
		mock.lastPut.Item["expiry"])
}

func TestQueryPaginatesAndFilters(t *testing.T) {
	item := func(id string) ddbsdk.Item {
		return ddbsdk.Item{"id": &types.AttributeValueMemberS{Value: id}}
	}
	mock := &mockDynamo{queryPages: []*dynamodb.QueryOutput{
		{
			Items:            []map[string]types.AttributeValue{item("a")},
			LastEvaluatedKey: item("a"),
		},
		{
			Items: []map[string]types.AttributeValue{item("b")},
		},
	}}
	m := NewMapper(docTable, mock)

	items, err := m.Query(context.Background(), "a", WithFilter(Number[int]("size").GreaterThan(1)))
	require.NoError(t, err)
	require.Len(t, items, 2)

	require.Len(t, mock.queryCalls, 2)
	first := mock.queryCalls[0]
	require.Equal(t, "#n0 = :v0", *first.KeyConditionExpression)
	require.Equal(t, "#n1 > :v1", *first.FilterExpression)
	require.Equal(t, map[string]string{"#n0": "id", "#n1": "size"}, first.ExpressionAttributeNames)
	require.Nil(t, first.ExclusiveStartKey)
	require.NotNil(t, mock.queryCalls[1].ExclusiveStartKey)
}

func TestQueryLimitStopsPaging(t *testing.T) {
	item := ddbsdk.Item{"id": &types.AttributeValueMemberS{Value: "a"}}
	mock := &mockDynamo{queryPages: []*dynamodb.QueryOutput{
		{
			Items:            []map[string]types.AttributeValue{item},
			LastEvaluatedKey: item,
		},
	}}
	m := NewMapper(docTable, mock)

	items, err := m.Query(context.Background(), "a", WithLimit(1))
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Len(t, mock.queryCalls, 1, "the limit was met, no further pages")
}

func TestQuerySortKeyPrefix(t *testing.T) {
	sorted := table.TableDefinition{
		Name: "events",
		KeyDefinitions: table.PrimaryKeyDefinition{
			PartitionKey: table.KeyDef{Name: "pk", Kind: table.KeyKindS},
			SortKey:      table.KeyDef{Name: "sk", Kind: table.KeyKindS},
		},
	}
	mock := &mockDynamo{queryPages: []*dynamodb.QueryOutput{{}}}
	m := NewMapper(sorted, mock)

	_, err := m.Query(context.Background(), "a", m.WithSortBeginsWith("2026-"))
	require.NoError(t, err)
	require.Equal(t,
		"#n0 = :v0 AND begins_with(#n1, :v1)",
		*mock.queryCalls[0].KeyConditionExpression)
}

func TestMaterializeTracksQueryResults(t *testing.T) {
	mock := &mockDynamo{queryPages: []*dynamodb.QueryOutput{{
		Items: []map[string]types.AttributeValue{
			{
				"id":   &types.AttributeValueMemberS{Value: "a"},
				"name": &types.AttributeValueMemberS{Value: "queried"},
			},
		},
	}}}
	m := NewMapper(docTable, mock)
	ctx := context.Background()

	items, err := m.Query(ctx, "a")
	require.NoError(t, err)
	require.Len(t, items, 1)

	var d doc
	require.NoError(t, m.Materialize(items[0], &d))
	require.Equal(t, "queried", d.Name)
	require.True(t, m.Tracker().Tracked(&d))

	// A following atomic save must require exactly the queried state. The
	// size attribute was never in the document, so it gets no clause.
	d.Name = "changed"
	require.NoError(t, m.Save(ctx, &d, Atomic()))
	require.Equal(t, "#n0 = :v0 AND #n1 = :v1", *mock.lastPut.ConditionExpression)
	require.Equal(t, map[string]string{"#n0": "id", "#n1": "name"}, mock.lastPut.ExpressionAttributeNames)
	require.Equal(t, &types.AttributeValueMemberS{Value: "queried"}, mock.lastPut.ExpressionAttributeValues[":v1"])
}

func TestMaterializeRejectsBadKey(t *testing.T) {
	m := NewMapper(docTable, &mockDynamo{})

	var d doc
	err := m.Materialize(ddbsdk.Item{
		"name": &types.AttributeValueMemberS{Value: "orphan"},
	}, &d)
	require.ErrorContains(t, err, `partition key "id" not found`)
	require.False(t, m.Tracker().Tracked(&d))

	err = m.Materialize(ddbsdk.Item{
		"id": &types.AttributeValueMemberN{Value: "7"},
	}, &d)
	require.ErrorContains(t, err, "does not match definition")
}

func TestScanWithFilter(t *testing.T) {
	mock := &mockDynamo{scanPages: []*dynamodb.ScanOutput{{
		Items: []map[string]types.AttributeValue{
			{"id": &types.AttributeValueMemberS{Value: "a"}},
		},
	}}}
	m := NewMapper(docTable, mock)

	items, err := m.Scan(context.Background(), WithFilter(String("name").BeginsWith("x")))
	require.NoError(t, err)
	require.Len(t, items, 1)
}
