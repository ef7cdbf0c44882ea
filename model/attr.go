// Package model is the declaration layer: typed attribute descriptors that
// build conditions, and a Mapper that moves documents between Go values and
// the store while feeding the optimistic-concurrency tracker.
package model

import (
	"time"

	"golang.org/x/exp/constraints"

	"github.com/okvist/vogels/expr"
)

// Numeric covers everything stored as a DynamoDB number.
type Numeric interface {
	constraints.Integer | constraints.Float
}

// attr is the shared core of every descriptor: a document path plus the
// comparisons that are valid for any attribute type.
type attr struct {
	path expr.Path
}

func (a attr) Path() expr.Path           { return a.path }
func (a attr) Exists() expr.Condition    { return expr.AttributeExists(a.path) }
func (a attr) NotExists() expr.Condition { return expr.AttributeNotExists(a.path) }

// String declares a string attribute.
func String(name string) StringAttr {
	return StringAttr{attr{expr.Name(name)}}
}

// StringAt declares a string attribute at a nested path.
func StringAt(p expr.Path) StringAttr {
	return StringAttr{attr{p}}
}

type StringAttr struct{ attr }

func (a StringAttr) Equal(v string) expr.Condition          { return expr.Equal(a.path, v) }
func (a StringAttr) NotEqual(v string) expr.Condition       { return expr.NotEqual(a.path, v) }
func (a StringAttr) LessThan(v string) expr.Condition       { return expr.LessThan(a.path, v) }
func (a StringAttr) LessOrEqual(v string) expr.Condition    { return expr.LessOrEqual(a.path, v) }
func (a StringAttr) GreaterThan(v string) expr.Condition    { return expr.GreaterThan(a.path, v) }
func (a StringAttr) GreaterOrEqual(v string) expr.Condition { return expr.GreaterOrEqual(a.path, v) }
func (a StringAttr) BeginsWith(v string) expr.Condition     { return expr.BeginsWith(a.path, v) }
func (a StringAttr) Contains(v string) expr.Condition       { return expr.Contains(a.path, v) }
func (a StringAttr) Between(lo, hi string) expr.Condition   { return expr.Between(a.path, lo, hi) }

func (a StringAttr) In(vs ...string) expr.Condition {
	return expr.In(a.path, anySlice(vs)...)
}

// Number declares a numeric attribute of a concrete Go type.
func Number[T Numeric](name string) NumberAttr[T] {
	return NumberAttr[T]{attr{expr.Name(name)}}
}

// NumberAt declares a numeric attribute at a nested path.
func NumberAt[T Numeric](p expr.Path) NumberAttr[T] {
	return NumberAttr[T]{attr{p}}
}

type NumberAttr[T Numeric] struct{ attr }

func (a NumberAttr[T]) Equal(v T) expr.Condition          { return expr.Equal(a.path, v) }
func (a NumberAttr[T]) NotEqual(v T) expr.Condition       { return expr.NotEqual(a.path, v) }
func (a NumberAttr[T]) LessThan(v T) expr.Condition       { return expr.LessThan(a.path, v) }
func (a NumberAttr[T]) LessOrEqual(v T) expr.Condition    { return expr.LessOrEqual(a.path, v) }
func (a NumberAttr[T]) GreaterThan(v T) expr.Condition    { return expr.GreaterThan(a.path, v) }
func (a NumberAttr[T]) GreaterOrEqual(v T) expr.Condition { return expr.GreaterOrEqual(a.path, v) }
func (a NumberAttr[T]) Between(lo, hi T) expr.Condition   { return expr.Between(a.path, lo, hi) }

func (a NumberAttr[T]) In(vs ...T) expr.Condition {
	return expr.In(a.path, anySlice(vs)...)
}

// Bool declares a boolean attribute.
func Bool(name string) BoolAttr {
	return BoolAttr{attr{expr.Name(name)}}
}

type BoolAttr struct{ attr }

func (a BoolAttr) Equal(v bool) expr.Condition { return expr.Equal(a.path, v) }
func (a BoolAttr) IsTrue() expr.Condition      { return expr.Equal(a.path, true) }
func (a BoolAttr) IsFalse() expr.Condition     { return expr.Equal(a.path, false) }

// Time declares a timestamp attribute stored as an RFC3339Nano string, which
// compares correctly as a plain string range.
func Time(name string) TimeAttr {
	return TimeAttr{attr{expr.Name(name)}}
}

type TimeAttr struct{ attr }

func (a TimeAttr) Equal(v time.Time) expr.Condition {
	return expr.Equal(a.path, v.Format(time.RFC3339Nano))
}

func (a TimeAttr) Before(v time.Time) expr.Condition {
	return expr.LessThan(a.path, v.Format(time.RFC3339Nano))
}

func (a TimeAttr) After(v time.Time) expr.Condition {
	return expr.GreaterThan(a.path, v.Format(time.RFC3339Nano))
}

func (a TimeAttr) Between(lo, hi time.Time) expr.Condition {
	return expr.Between(a.path, lo.Format(time.RFC3339Nano), hi.Format(time.RFC3339Nano))
}

// StringSet declares a string-set attribute. Contains probes with a scalar
// string member, never a set.
func StringSet(name string) StringSetAttr {
	return StringSetAttr{attr{expr.Name(name)}}
}

type StringSetAttr struct{ attr }

func (a StringSetAttr) Contains(member string) expr.Condition {
	return expr.Contains(a.path, member)
}

// NumberSet declares a number-set attribute.
func NumberSet[T Numeric](name string) NumberSetAttr[T] {
	return NumberSetAttr[T]{attr{expr.Name(name)}}
}

type NumberSetAttr[T Numeric] struct{ attr }

func (a NumberSetAttr[T]) Contains(member T) expr.Condition {
	return expr.Contains(a.path, member)
}

// List declares a list attribute. Element access goes through Index.
func List(name string) ListAttr {
	return ListAttr{attr{expr.Name(name)}}
}

type ListAttr struct{ attr }

func (a ListAttr) Contains(member any) expr.Condition {
	return expr.Contains(a.path, member)
}

func (a ListAttr) Index(i int) expr.Path {
	return a.path.Index(i)
}

// Map declares a map attribute. Typed access to its entries goes through the
// *At constructors, e.g. StringAt(meta.Key("updated")).
func Map(name string) MapAttr {
	return MapAttr{attr{expr.Name(name)}}
}

type MapAttr struct{ attr }

func (a MapAttr) Key(k string) expr.Path {
	return a.path.Key(k)
}

func anySlice[T any](vs []T) []any {
	out := make([]any, len(vs))
	for i, v := range vs {
		out[i] = v
	}
	return out
}
