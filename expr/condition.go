package expr

import "reflect"

// Operator is a comparison operator understood by the renderer.
type Operator string

const (
	OpEqual          Operator = "="
	OpNotEqual       Operator = "<>"
	OpLessThan       Operator = "<"
	OpLessOrEqual    Operator = "<="
	OpGreaterThan    Operator = ">"
	OpGreaterOrEqual Operator = ">="
	OpBeginsWith     Operator = "begins_with"
	OpBetween        Operator = "BETWEEN"
	OpContains       Operator = "contains"
	OpIn             Operator = "IN"
	OpExists         Operator = "attribute_exists"
	OpNotExists      Operator = "attribute_not_exists"
)

// Condition is an immutable boolean expression tree over document attributes.
// The zero value is the empty condition: it renders to no expression text and
// is the identity element for And and Or. Combinators always return new
// trees; a Condition is never mutated after construction.
type Condition struct {
	kind condKind
	cmp  *comparison
	lhs  *Condition
	rhs  *Condition
}

type condKind int

const (
	kindEmpty condKind = iota
	kindCompare
	kindAnd
	kindOr
	kindNot
)

type comparison struct {
	path     Path
	op       Operator
	operands []Operand
}

// Operand is a comparison operand: either a literal value (encoded through
// the codec at render time) or a reference to another attribute path.
type Operand struct {
	path   Path
	isPath bool
	value  any
}

// Value wraps a literal operand value.
func Value(v any) Operand {
	return Operand{value: v}
}

// PathOperand references another attribute instead of a literal value.
func PathOperand(p Path) Operand {
	return Operand{path: p, isPath: true}
}

func (o Operand) equal(other Operand) bool {
	if o.isPath != other.isPath {
		return false
	}
	if o.isPath {
		return o.path.Equal(other.path)
	}
	return reflect.DeepEqual(o.value, other.value)
}

// Empty returns the empty condition.
func Empty() Condition {
	return Condition{}
}

func (c Condition) IsEmpty() bool {
	return c.kind == kindEmpty
}

// Compare builds a comparison condition. Construction is permissive; operand
// count and types are validated when the condition is rendered.
func Compare(p Path, op Operator, operands ...Operand) Condition {
	return Condition{kind: kindCompare, cmp: &comparison{path: p, op: op, operands: operands}}
}

func Equal(p Path, v any) Condition          { return Compare(p, OpEqual, Value(v)) }
func NotEqual(p Path, v any) Condition       { return Compare(p, OpNotEqual, Value(v)) }
func LessThan(p Path, v any) Condition       { return Compare(p, OpLessThan, Value(v)) }
func LessOrEqual(p Path, v any) Condition    { return Compare(p, OpLessOrEqual, Value(v)) }
func GreaterThan(p Path, v any) Condition    { return Compare(p, OpGreaterThan, Value(v)) }
func GreaterOrEqual(p Path, v any) Condition { return Compare(p, OpGreaterOrEqual, Value(v)) }
func BeginsWith(p Path, v any) Condition     { return Compare(p, OpBeginsWith, Value(v)) }
func Contains(p Path, v any) Condition       { return Compare(p, OpContains, Value(v)) }

func Between(p Path, lo, hi any) Condition {
	return Compare(p, OpBetween, Value(lo), Value(hi))
}

func In(p Path, vs ...any) Condition {
	ops := make([]Operand, len(vs))
	for i, v := range vs {
		ops[i] = Value(v)
	}
	return Compare(p, OpIn, ops...)
}

func AttributeExists(p Path) Condition    { return Compare(p, OpExists) }
func AttributeNotExists(p Path) Condition { return Compare(p, OpNotExists) }

// And combines two conditions. The empty condition is the identity:
// Empty().And(x) == x. This makes Empty() the natural accumulator for
// conjunctions built in a loop.
func (c Condition) And(o Condition) Condition {
	if c.IsEmpty() {
		return o
	}
	if o.IsEmpty() {
		return c
	}
	return Condition{kind: kindAnd, lhs: &c, rhs: &o}
}

// Or combines two conditions. As with And, the empty condition is treated as
// the identity element: Empty().Or(x) == x. Strictly "no constraint OR x"
// would absorb to "no constraint"; identity is chosen instead for symmetry
// with And, so that Empty() behaves as a neutral accumulator for both.
func (c Condition) Or(o Condition) Condition {
	if c.IsEmpty() {
		return o
	}
	if o.IsEmpty() {
		return c
	}
	return Condition{kind: kindOr, lhs: &c, rhs: &o}
}

// Not negates a condition. Negating the empty condition is still the empty
// condition (there is no constraint to negate).
func Not(c Condition) Condition {
	if c.IsEmpty() {
		return c
	}
	inner := c
	return Condition{kind: kindNot, lhs: &inner}
}

// Equal reports structural equality, independent of how the trees were
// built. And/Or are commutative: a.And(b) equals b.And(a), so callers can
// deduplicate logically identical conditions built via different code paths.
func (c Condition) Equal(o Condition) bool {
	if c.kind != o.kind {
		return false
	}
	switch c.kind {
	case kindEmpty:
		return true
	case kindCompare:
		return c.cmp.equal(o.cmp)
	case kindAnd, kindOr:
		if c.lhs.Equal(*o.lhs) && c.rhs.Equal(*o.rhs) {
			return true
		}
		return c.lhs.Equal(*o.rhs) && c.rhs.Equal(*o.lhs)
	case kindNot:
		return c.lhs.Equal(*o.lhs)
	}
	return false
}

func (c *comparison) equal(o *comparison) bool {
	if c.op != o.op || !c.path.Equal(o.path) || len(c.operands) != len(o.operands) {
		return false
	}
	for i := range c.operands {
		if !c.operands[i].equal(o.operands[i]) {
			return false
		}
	}
	return true
}

// atomic reports whether the condition renders without needing surrounding
// parentheses inside a compound expression.
func (c Condition) atomic() bool {
	return c.kind == kindCompare
}
