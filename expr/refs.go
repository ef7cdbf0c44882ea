package expr

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// ReferenceTracker allocates the expression attribute name ("#n0") and value
// (":v0") placeholders used while rendering a condition. One tracker serves
// exactly one render pass (one save/delete/query/scan call) and is discarded
// once the wire request is built.
//
// Names are deduplicated per distinct name string. Values are deduplicated
// only when both the value and its wire type match; a number "1" and a string
// "1" get separate placeholders.
//
// Allocations are recorded in an undo log so a renderer can speculatively
// allocate a reference while probing how to treat an operand, then roll it
// back with PopRefs if the probe fails.
type ReferenceTracker struct {
	names  map[string]string // attribute name -> placeholder
	values map[string]string // wire key -> placeholder

	nameByToken  map[string]string
	valueByToken map[string]types.AttributeValue

	undo      []allocation
	finalized bool

	// Monotonic counters: popped placeholders never get reissued, so a
	// rolled-back allocation cannot collide with a live one.
	nextName  int
	nextValue int
}

type allocation struct {
	token string
	key   string // map key the allocation claimed, empty for dedup hits
	name  bool
}

func NewReferenceTracker() *ReferenceTracker {
	return &ReferenceTracker{
		names:        make(map[string]string),
		values:       make(map[string]string),
		nameByToken:  make(map[string]string),
		valueByToken: make(map[string]types.AttributeValue),
	}
}

// NameRef returns the placeholder for an attribute name, allocating one on
// first use and reusing it on every subsequent use of the same name string.
func (t *ReferenceTracker) NameRef(name string) string {
	t.mustBeOpen()
	if token, ok := t.names[name]; ok {
		t.undo = append(t.undo, allocation{token: token, name: true})
		return token
	}
	token := fmt.Sprintf("#n%d", t.nextName)
	t.nextName++
	t.names[name] = token
	t.nameByToken[token] = name
	t.undo = append(t.undo, allocation{token: token, key: name, name: true})
	return token
}

// ValueRef returns the placeholder for a wire value. A previously allocated
// placeholder is reused only when the value and its wire type are identical.
func (t *ReferenceTracker) ValueRef(av types.AttributeValue) string {
	t.mustBeOpen()
	key := wireKey(av)
	if token, ok := t.values[key]; ok {
		t.undo = append(t.undo, allocation{token: token})
		return token
	}
	token := fmt.Sprintf(":v%d", t.nextValue)
	t.nextValue++
	t.values[key] = token
	t.valueByToken[token] = av
	t.undo = append(t.undo, allocation{token: token, key: key})
	return token
}

// PopRefs releases the most recent allocations for the given tokens. It is
// the backtracking half of a speculative allocation: a renderer that
// allocated a reference while probing an operand calls PopRefs when the
// probe fails. Pops may happen out of order relative to each other, but
// popping a reference that was never allocated, or one already consumed into
// a finalized render, is a programming error and panics.
func (t *ReferenceTracker) PopRefs(tokens ...string) {
	if t.finalized {
		panic("vogels: PopRefs after render was finalized")
	}
	for _, token := range tokens {
		t.popRef(token)
	}
}

func (t *ReferenceTracker) popRef(token string) {
	for i := len(t.undo) - 1; i >= 0; i-- {
		a := t.undo[i]
		if a.token != token {
			continue
		}
		t.undo = append(t.undo[:i], t.undo[i+1:]...)
		if a.key == "" {
			// Dedup hit: the original allocation still holds the binding.
			return
		}
		if a.name {
			delete(t.names, a.key)
			delete(t.nameByToken, a.token)
		} else {
			delete(t.values, a.key)
			delete(t.valueByToken, a.token)
		}
		return
	}
	panic(fmt.Sprintf("vogels: PopRefs(%s): reference not allocated by this tracker", token))
}

// Names finalizes the tracker and returns the placeholder-to-name map for
// the wire request.
func (t *ReferenceTracker) Names() map[string]string {
	t.finalize()
	if len(t.nameByToken) == 0 {
		return nil
	}
	out := make(map[string]string, len(t.nameByToken))
	for k, v := range t.nameByToken {
		out[k] = v
	}
	return out
}

// Values finalizes the tracker and returns the placeholder-to-value map for
// the wire request.
func (t *ReferenceTracker) Values() map[string]types.AttributeValue {
	t.finalize()
	if len(t.valueByToken) == 0 {
		return nil
	}
	out := make(map[string]types.AttributeValue, len(t.valueByToken))
	for k, v := range t.valueByToken {
		out[k] = v
	}
	return out
}

// NameCount reports how many distinct attribute names have been allocated.
func (t *ReferenceTracker) NameCount() int {
	return len(t.names)
}

func (t *ReferenceTracker) finalize() {
	t.finalized = true
	t.undo = nil
}

func (t *ReferenceTracker) mustBeOpen() {
	if t.finalized {
		panic("vogels: reference tracker reused after render was finalized")
	}
}

// wireKey builds a canonical key for value deduplication: the wire type tag
// plus a canonical encoding of the value. Two values share a placeholder only
// if their keys are identical.
func wireKey(av types.AttributeValue) string {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return "S\x00" + v.Value
	case *types.AttributeValueMemberN:
		return "N\x00" + v.Value
	case *types.AttributeValueMemberB:
		return "B\x00" + string(v.Value)
	case *types.AttributeValueMemberBOOL:
		return fmt.Sprintf("BOOL\x00%t", v.Value)
	case *types.AttributeValueMemberNULL:
		return "NULL\x00"
	case *types.AttributeValueMemberSS:
		return "SS\x00" + strings.Join(v.Value, "\x1f")
	case *types.AttributeValueMemberNS:
		return "NS\x00" + strings.Join(v.Value, "\x1f")
	case *types.AttributeValueMemberBS:
		parts := make([]string, len(v.Value))
		for i, b := range v.Value {
			parts[i] = string(b)
		}
		return "BS\x00" + strings.Join(parts, "\x1f")
	case *types.AttributeValueMemberL:
		parts := make([]string, len(v.Value))
		for i, e := range v.Value {
			parts[i] = wireKey(e)
		}
		return "L\x00" + strings.Join(parts, "\x1f")
	case *types.AttributeValueMemberM:
		keys := make([]string, 0, len(v.Value))
		for k := range v.Value {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + "\x1e" + wireKey(v.Value[k])
		}
		return "M\x00" + strings.Join(parts, "\x1f")
	default:
		panic(fmt.Sprintf("vogels: unsupported attribute value %T", av))
	}
}
