package expr

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Render walks the condition tree and emits DynamoDB expression syntax,
// allocating placeholders through the tracker. The final name and value maps
// are read from the tracker afterwards via Names() and Values().
//
// The empty condition renders to "" and no allocations.
func (c Condition) Render(t *ReferenceTracker) (string, error) {
	return c.RenderWith(t, DefaultCodec)
}

// RenderWith renders with an explicit codec for value operands.
func (c Condition) RenderWith(t *ReferenceTracker, codec Codec) (string, error) {
	switch c.kind {
	case kindEmpty:
		return "", nil
	case kindCompare:
		return c.cmp.render(t, codec)
	case kindAnd:
		return renderCompound(t, codec, *c.lhs, *c.rhs, "AND")
	case kindOr:
		return renderCompound(t, codec, *c.lhs, *c.rhs, "OR")
	case kindNot:
		inner, err := c.lhs.RenderWith(t, codec)
		if err != nil {
			return "", err
		}
		// NOT binds tighter than AND/OR; a compound inner needs its own parens.
		if !c.lhs.atomic() {
			inner = "(" + inner + ")"
		}
		return "(NOT " + inner + ")", nil
	default:
		return "", fmt.Errorf("%w: unknown condition kind %d", ErrInvalidCondition, c.kind)
	}
}

// Each side is parenthesized unless it is a bare comparison, so operator
// precedence is correct at any nesting depth.
func renderCompound(t *ReferenceTracker, codec Codec, l, r Condition, joiner string) (string, error) {
	if l.IsEmpty() || r.IsEmpty() {
		return "", fmt.Errorf("%w: empty operand in %s", ErrInvalidCondition, joiner)
	}
	ls, err := l.RenderWith(t, codec)
	if err != nil {
		return "", err
	}
	rs, err := r.RenderWith(t, codec)
	if err != nil {
		return "", err
	}
	if !l.atomic() {
		ls = "(" + ls + ")"
	}
	if !r.atomic() {
		rs = "(" + rs + ")"
	}
	return ls + " " + joiner + " " + rs, nil
}

func (c *comparison) render(t *ReferenceTracker, codec Codec) (string, error) {
	name, err := renderPath(t, c.path)
	if err != nil {
		return "", err
	}

	switch c.op {
	case OpExists, OpNotExists:
		if len(c.operands) != 0 {
			return "", fmt.Errorf("%w: %s takes no operand", ErrInvalidCondition, c.op)
		}
		return fmt.Sprintf("%s(%s)", c.op, name), nil

	case OpEqual, OpNotEqual:
		token, av, err := c.renderOperand(t, codec, 1)
		if err != nil {
			return "", err
		}
		// Equality against a value that has no wire representation (NULL,
		// empty set) is substituted with an existence check: the store has
		// no literal null-equality that behaves usefully for absence.
		if av != nil && isNoValue(av) {
			t.PopRefs(token)
			if c.op == OpEqual {
				return fmt.Sprintf("attribute_not_exists(%s)", name), nil
			}
			return fmt.Sprintf("attribute_exists(%s)", name), nil
		}
		return fmt.Sprintf("%s %s %s", name, c.op, token), nil

	case OpLessThan, OpLessOrEqual, OpGreaterThan, OpGreaterOrEqual:
		token, _, err := c.renderOperand(t, codec, 1)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s %s", name, c.op, token), nil

	case OpBeginsWith:
		token, av, err := c.renderOperand(t, codec, 1)
		if err != nil {
			return "", err
		}
		if av != nil {
			if k := WireKind(av); k != "S" && k != "B" {
				t.PopRefs(token)
				return "", fmt.Errorf("%w: begins_with operand must be a string or binary, got %s", ErrInvalidCondition, k)
			}
		}
		return fmt.Sprintf("begins_with(%s, %s)", name, token), nil

	case OpContains:
		token, av, err := c.renderOperand(t, codec, 1)
		if err != nil {
			return "", err
		}
		// The probe must carry the member type of the container attribute:
		// checking a string set for "foo" sends {"S":"foo"}, never the
		// container's own wire type. A container-typed probe is always a
		// construction mistake.
		if av != nil {
			switch WireKind(av) {
			case "SS", "NS", "BS", "L", "M":
				t.PopRefs(token)
				return "", fmt.Errorf("%w: contains operand must be the container's member type, got %s", ErrInvalidCondition, WireKind(av))
			}
		}
		return fmt.Sprintf("contains(%s, %s)", name, token), nil

	case OpBetween:
		if len(c.operands) != 2 {
			return "", fmt.Errorf("%w: BETWEEN takes exactly two operands, got %d", ErrInvalidCondition, len(c.operands))
		}
		lo, _, err := c.operand(t, codec, c.operands[0])
		if err != nil {
			return "", err
		}
		hi, _, err := c.operand(t, codec, c.operands[1])
		if err != nil {
			t.PopRefs(lo)
			return "", err
		}
		return fmt.Sprintf("%s BETWEEN %s AND %s", name, lo, hi), nil

	case OpIn:
		if len(c.operands) == 0 {
			return "", fmt.Errorf("%w: IN requires at least one operand", ErrInvalidCondition)
		}
		tokens := make([]string, 0, len(c.operands))
		for _, o := range c.operands {
			token, _, err := c.operand(t, codec, o)
			if err != nil {
				// Roll back the refs this comparison already claimed.
				t.PopRefs(tokens...)
				return "", err
			}
			tokens = append(tokens, token)
		}
		return fmt.Sprintf("%s IN (%s)", name, strings.Join(tokens, ", ")), nil

	default:
		return "", fmt.Errorf("%w: unsupported operator %q", ErrInvalidCondition, c.op)
	}
}

// renderOperand renders the single expected operand for unary-value
// operators, enforcing the operand count.
func (c *comparison) renderOperand(t *ReferenceTracker, codec Codec, want int) (string, types.AttributeValue, error) {
	if len(c.operands) != want {
		return "", nil, fmt.Errorf("%w: %s takes exactly %d operand(s), got %d", ErrInvalidCondition, c.op, want, len(c.operands))
	}
	return c.operand(t, codec, c.operands[0])
}

// operand resolves one operand to a placeholder token. Path operands become
// name references; literal operands are encoded and become value references.
// The returned AttributeValue is nil for path operands.
func (c *comparison) operand(t *ReferenceTracker, codec Codec, o Operand) (string, types.AttributeValue, error) {
	if o.isPath {
		ref, err := renderPath(t, o.path)
		if err != nil {
			return "", nil, err
		}
		return ref, nil, nil
	}
	av, err := codec.Encode(o.value)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidCondition, err)
	}
	return t.ValueRef(av), av, nil
}

// renderPath walks the path segments into wire syntax, e.g. "#n0.#n1[2]".
func renderPath(t *ReferenceTracker, p Path) (string, error) {
	if p.root == "" {
		return "", fmt.Errorf("%w: empty attribute path", ErrInvalidCondition)
	}
	var b strings.Builder
	b.WriteString(t.NameRef(p.root))
	for _, s := range p.segs {
		if s.isIndex {
			if s.index < 0 {
				return "", fmt.Errorf("%w: negative list index %d in path %s", ErrInvalidCondition, s.index, p)
			}
			fmt.Fprintf(&b, "[%d]", s.index)
		} else {
			if s.key == "" {
				return "", fmt.Errorf("%w: empty map key in path %s", ErrInvalidCondition, p)
			}
			b.WriteByte('.')
			b.WriteString(t.NameRef(s.key))
		}
	}
	return b.String(), nil
}
