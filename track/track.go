// Package track records, per object instance, which attributes were observed
// during loads and saves and with what values, and derives the minimal
// "nothing changed since I looked" condition for optimistic-concurrency
// writes.
//
// Tracking state lives in an explicit side table keyed by instance identity,
// never inside the instance itself. The persistence layer reports
// load/save/delete outcomes through the Observe methods; it asks for the
// write condition through CurrentCondition. The tracker itself never fails on
// conflicting state: a conflict only surfaces when the store rejects the
// transmitted condition.
package track

import (
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/okvist/vogels/expr"
)

// Snapshot is the last-observed server-side state for one instance. A nil
// value marks an attribute that was expected but observed absent, which is
// different from an attribute that was never expected at all (e.g. excluded
// by a projection): the latter has no entry and is omitted from derived
// conditions entirely.
type Snapshot struct {
	values map[string]types.AttributeValue
}

// Tracker is the side table. Instances are keyed by identity, so callers
// must pass the same pointer they loaded or saved. Entries are held until
// Forget is called; the tracker takes no ownership of instance lifetime.
type Tracker struct {
	mu        sync.Mutex
	snapshots map[any]*Snapshot
}

func NewTracker() *Tracker {
	return &Tracker{snapshots: make(map[any]*Snapshot)}
}

// Observe replaces the instance's snapshot wholesale after a successful
// load, query materialization or save. expected lists every attribute the
// operation was expected to populate; values carries the ones actually
// observed. Expected attributes missing from values are recorded as
// observed-absent.
//
// Snapshots are never merged: each successful operation reflects exactly the
// state it saw or wrote, so a stale condition can never leak into the next
// operation.
func (t *Tracker) Observe(instance any, expected []string, values map[string]types.AttributeValue) {
	snap := &Snapshot{values: make(map[string]types.AttributeValue, len(expected))}
	for _, attr := range expected {
		snap.values[attr] = values[attr]
	}
	for attr, av := range values {
		snap.values[attr] = av
	}
	t.mu.Lock()
	t.snapshots[instance] = snap
	t.mu.Unlock()
}

// ObserveDelete records a successful delete: every given attribute is now
// expected to be absent server-side.
func (t *Tracker) ObserveDelete(instance any, expected []string) {
	t.Observe(instance, expected, nil)
}

// Forget drops the tracking slot for an instance.
func (t *Tracker) Forget(instance any) {
	t.mu.Lock()
	delete(t.snapshots, instance)
	t.mu.Unlock()
}

// Tracked reports whether the instance has ever been synced.
func (t *Tracker) Tracked(instance any) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.snapshots[instance]
	return ok
}

// CurrentCondition derives the optimistic-concurrency condition for an
// instance about to be saved or deleted. local is the instance's marshaled
// document (used only for never-synced instances).
//
// A never-synced instance yields "this never existed": attribute_not_exists
// for every locally populated attribute. A synced instance yields equality
// checks for every observed attribute and attribute_not_exists for every
// expected-but-absent one; attributes that were never expected are omitted.
//
// The empty condition is returned when there is nothing to require; callers
// must treat that as "no condition", not as always-false.
func (t *Tracker) CurrentCondition(instance any, local map[string]types.AttributeValue) expr.Condition {
	t.mu.Lock()
	snap, ok := t.snapshots[instance]
	t.mu.Unlock()

	cond := expr.Empty()
	if !ok {
		for _, attr := range sortedKeys(local) {
			cond = cond.And(expr.AttributeNotExists(expr.Name(attr)))
		}
		return cond
	}
	for _, attr := range sortedKeys(snap.values) {
		if av := snap.values[attr]; av != nil {
			cond = cond.And(expr.Equal(expr.Name(attr), av))
		} else {
			cond = cond.And(expr.AttributeNotExists(expr.Name(attr)))
		}
	}
	return cond
}

// sortedKeys keeps derived conditions deterministic across runs.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
