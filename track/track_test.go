package track

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"

	"github.com/okvist/vogels/expr"
)

type doc struct {
	ID   int
	Size int
}

func num(v string) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: v}
}

func TestNewInstanceRequiresAbsence(t *testing.T) {
	tr := NewTracker()
	d := &doc{ID: 5}

	cond := tr.CurrentCondition(d, map[string]types.AttributeValue{"id": num("5")})
	require.True(t, cond.Equal(expr.AttributeNotExists(expr.Name("id"))),
		"brand-new instance with only a hash key must require attribute_not_exists(id) and nothing else")
}

func TestNewInstanceWithNoAttributesIsUnconditional(t *testing.T) {
	tr := NewTracker()
	d := &doc{}

	cond := tr.CurrentCondition(d, nil)
	require.True(t, cond.IsEmpty(), "zero populated attributes must degenerate to no condition")
}

func TestSyncedConditionMatchesObservedState(t *testing.T) {
	tr := NewTracker()
	d := &doc{ID: 10, Size: 3}

	tr.Observe(d, []string{"id", "size"}, map[string]types.AttributeValue{
		"id":   num("10"),
		"size": num("3"),
	})

	cond := tr.CurrentCondition(d, nil)
	want := expr.Equal(expr.Name("id"), num("10")).And(expr.Equal(expr.Name("size"), num("3")))
	require.True(t, cond.Equal(want))
}

func TestExpectedButAbsentRendersNotExists(t *testing.T) {
	// Doc{id, size} saved with only id set: the save marks size as expected
	// absent, so the follow-up condition is id == 10 AND attribute_not_exists(size).
	tr := NewTracker()
	d := &doc{ID: 10}

	tr.Observe(d, []string{"id", "size"}, map[string]types.AttributeValue{"id": num("10")})

	cond := tr.CurrentCondition(d, nil)
	want := expr.Equal(expr.Name("id"), num("10")).And(expr.AttributeNotExists(expr.Name("size")))
	require.True(t, cond.Equal(want))
}

func TestNeverExpectedAttributesAreOmitted(t *testing.T) {
	// A partial projection only expects what it projected; unprojected
	// attributes must not appear in the condition at all.
	tr := NewTracker()
	d := &doc{ID: 10}

	tr.Observe(d, []string{"id"}, map[string]types.AttributeValue{"id": num("10")})

	cond := tr.CurrentCondition(d, nil)
	require.True(t, cond.Equal(expr.Equal(expr.Name("id"), num("10"))))
}

func TestSnapshotReplacedAfterEachSave(t *testing.T) {
	tr := NewTracker()
	d := &doc{ID: 10, Size: 1}

	tr.Observe(d, []string{"id", "size"}, map[string]types.AttributeValue{
		"id": num("10"), "size": num("1"),
	})
	first := tr.CurrentCondition(d, nil)

	// Second save writes size=2; the condition must reflect the just-saved
	// state, not the pre-save state.
	tr.Observe(d, []string{"id", "size"}, map[string]types.AttributeValue{
		"id": num("10"), "size": num("2"),
	})
	second := tr.CurrentCondition(d, nil)

	require.False(t, first.Equal(second))
	want := expr.Equal(expr.Name("id"), num("10")).And(expr.Equal(expr.Name("size"), num("2")))
	require.True(t, second.Equal(want))
}

func TestDeleteExpectsAbsence(t *testing.T) {
	tr := NewTracker()
	d := &doc{ID: 10}

	tr.Observe(d, []string{"id"}, map[string]types.AttributeValue{"id": num("10")})
	tr.ObserveDelete(d, []string{"id"})

	cond := tr.CurrentCondition(d, nil)
	require.True(t, cond.Equal(expr.AttributeNotExists(expr.Name("id"))))
}

func TestForgetDropsTracking(t *testing.T) {
	tr := NewTracker()
	d := &doc{ID: 10}

	tr.Observe(d, []string{"id"}, map[string]types.AttributeValue{"id": num("10")})
	require.True(t, tr.Tracked(d))

	tr.Forget(d)
	require.False(t, tr.Tracked(d))
}

func TestInstancesTrackedIndependently(t *testing.T) {
	tr := NewTracker()
	d1 := &doc{ID: 1}
	d2 := &doc{ID: 2}

	tr.Observe(d1, []string{"id"}, map[string]types.AttributeValue{"id": num("1")})
	tr.Observe(d2, []string{"id"}, map[string]types.AttributeValue{"id": num("2")})

	require.True(t, tr.CurrentCondition(d1, nil).Equal(expr.Equal(expr.Name("id"), num("1"))))
	require.True(t, tr.CurrentCondition(d2, nil).Equal(expr.Equal(expr.Name("id"), num("2"))))
}

func TestConditionRendersThroughTracker(t *testing.T) {
	tr := NewTracker()
	d := &doc{ID: 10}

	tr.Observe(d, []string{"id", "size"}, map[string]types.AttributeValue{"id": num("10")})

	rt := expr.NewReferenceTracker()
	s, err := tr.CurrentCondition(d, nil).Render(rt)
	require.NoError(t, err)
	require.Equal(t, "#n0 = :v0 AND attribute_not_exists(#n1)", s)
	require.Equal(t, map[string]string{"#n0": "id", "#n1": "size"}, rt.Names())
	require.Equal(t, map[string]types.AttributeValue{":v0": num("10")}, rt.Values())
}
