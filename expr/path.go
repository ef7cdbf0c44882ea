package expr

import (
	"fmt"
	"strings"
)

// Path locates a (possibly nested) attribute on a document: a root attribute
// name followed by map-key and list-index segments. Paths are immutable;
// Key and Index return copies.
type Path struct {
	root string
	segs []segment
}

type segment struct {
	key     string
	index   int
	isIndex bool
}

// Name starts a path at a top-level attribute.
func Name(name string) Path {
	return Path{root: name}
}

// Key descends into a map attribute.
func (p Path) Key(k string) Path {
	segs := make([]segment, len(p.segs), len(p.segs)+1)
	copy(segs, p.segs)
	return Path{root: p.root, segs: append(segs, segment{key: k})}
}

// Index descends into a list attribute.
func (p Path) Index(i int) Path {
	segs := make([]segment, len(p.segs), len(p.segs)+1)
	copy(segs, p.segs)
	return Path{root: p.root, segs: append(segs, segment{index: i, isIndex: true})}
}

// Root returns the top-level attribute name.
func (p Path) Root() string {
	return p.root
}

func (p Path) IsZero() bool {
	return p.root == "" && len(p.segs) == 0
}

// Equal reports whether two paths have identical segment sequences.
func (p Path) Equal(o Path) bool {
	if p.root != o.root || len(p.segs) != len(o.segs) {
		return false
	}
	for i, s := range p.segs {
		if s != o.segs[i] {
			return false
		}
	}
	return true
}

// String renders the path in document notation, e.g. "meta.tags[2]".
// For diagnostics only; wire rendering goes through the ReferenceTracker.
func (p Path) String() string {
	var b strings.Builder
	b.WriteString(p.root)
	for _, s := range p.segs {
		if s.isIndex {
			fmt.Fprintf(&b, "[%d]", s.index)
		} else {
			b.WriteByte('.')
			b.WriteString(s.key)
		}
	}
	return b.String()
}
