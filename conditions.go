package segsim

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Kind tags what a Conditions entry holds.
type Kind uint8

const (
	// ArrayKind entries hold a rows×columns array, rows being the collocation points.
	ArrayKind Kind = iota + 1
	// ScalarKind entries hold metadata without a row dimension.
	ScalarKind
	// TreeKind entries hold a nested Conditions.
	TreeKind
)

func (k Kind) String() string {
	switch k {
	case ArrayKind:
		return "array"
	case ScalarKind:
		return "scalar"
	case TreeKind:
		return "tree"
	}
	panic("cannot stringify unknown entry kind")
}

// Names of the distinguished subtrees of a segment state.
const (
	Unknowns       = "unknowns"
	Residuals      = "residuals"
	ConditionsTree = "conditions"
	Numerics       = "numerics"
	Initials       = "initials"
)

// Entry is one named value of a Conditions tree: an array, a scalar or a subtree.
type Entry struct {
	Kind   Kind
	Array  *mat.Dense
	Scalar float64
	Tree   *Conditions
}

// Conditions is a nested, insertion ordered, named container of numeric arrays.
// Frozen trees panic on any structural write; arrays they return must be treated as read only.
type Conditions struct {
	keys    []string
	entries map[string]*Entry
	frozen  bool
}

// NewConditions returns an empty tree.
func NewConditions() *Conditions {
	return &Conditions{entries: make(map[string]*Entry)}
}

// NewState returns the root tree of a segment with its required subtrees.
func NewState() *Conditions {
	s := NewConditions()
	for _, k := range []string{Unknowns, Residuals, ConditionsTree, Numerics, Initials} {
		s.Sub(k)
	}
	conds := s.Sub(ConditionsTree)
	for _, k := range []string{"frames", "freestream", "weights", "energy", "noise", "emissions", "aerodynamics", "propulsion"} {
		conds.Sub(k)
	}
	return s
}

// Fill returns a rows×cols array where every element is v.
func Fill(rows, cols int, v float64) *mat.Dense {
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = v
	}
	return mat.NewDense(rows, cols, data)
}

func (c *Conditions) mustWritable() {
	if c.frozen {
		panic("conditions: write to a frozen tree")
	}
}

// Keys returns the keys of this level in insertion order.
func (c *Conditions) Keys() []string {
	return append([]string(nil), c.keys...)
}

// Len returns the number of entries at this level.
func (c *Conditions) Len() int {
	return len(c.keys)
}

// Frozen returns whether this tree is read only.
func (c *Conditions) Frozen() bool {
	return c.frozen
}

func (c *Conditions) put(key string, e *Entry) {
	c.mustWritable()
	if _, exists := c.entries[key]; !exists {
		c.keys = append(c.keys, key)
	}
	c.entries[key] = e
}

// parent walks (and creates) the subtrees of a dotted path, returning the last level and key.
func (c *Conditions) parent(path string) (*Conditions, string) {
	parts := strings.Split(path, ".")
	cur := c
	for _, p := range parts[:len(parts)-1] {
		cur = cur.Sub(p)
	}
	return cur, parts[len(parts)-1]
}

// Set stores an array at the given dotted path, creating intermediate subtrees.
func (c *Conditions) Set(path string, m *mat.Dense) {
	p, key := c.parent(path)
	p.put(key, &Entry{Kind: ArrayKind, Array: m})
}

// SetScalar stores a scalar at the given dotted path, creating intermediate subtrees.
func (c *Conditions) SetScalar(path string, v float64) {
	p, key := c.parent(path)
	p.put(key, &Entry{Kind: ScalarKind, Scalar: v})
}

// Sub returns the subtree at the dotted path, creating it if needed.
func (c *Conditions) Sub(path string) *Conditions {
	cur := c
	for _, key := range strings.Split(path, ".") {
		e, ok := cur.entries[key]
		if !ok {
			e = &Entry{Kind: TreeKind, Tree: NewConditions()}
			e.Tree.frozen = cur.frozen
			cur.put(key, e)
		} else if e.Kind != TreeKind {
			panic(fmt.Sprintf("conditions: `%s` holds a %s, not a tree", path, e.Kind))
		}
		cur = e.Tree
	}
	return cur
}

// Lookup returns the entry at the dotted path.
func (c *Conditions) Lookup(path string) (*Entry, bool) {
	cur := c
	parts := strings.Split(path, ".")
	for i, key := range parts {
		e, ok := cur.entries[key]
		if !ok {
			return nil, false
		}
		if i == len(parts)-1 {
			return e, true
		}
		if e.Kind != TreeKind {
			return nil, false
		}
		cur = e.Tree
	}
	return nil, false
}

// Tree returns the existing subtree at the dotted path.
func (c *Conditions) Tree(path string) (*Conditions, bool) {
	e, ok := c.Lookup(path)
	if !ok || e.Kind != TreeKind {
		return nil, false
	}
	return e.Tree, true
}

// Array returns the array at the dotted path.
func (c *Conditions) Array(path string) (*mat.Dense, bool) {
	e, ok := c.Lookup(path)
	if !ok || e.Kind != ArrayKind {
		return nil, false
	}
	return e.Array, true
}

// Scalar returns the scalar at the dotted path.
func (c *Conditions) Scalar(path string) (float64, bool) {
	e, ok := c.Lookup(path)
	if !ok || e.Kind != ScalarKind {
		return 0, false
	}
	return e.Scalar, true
}

// Delete removes the entry at this level.
func (c *Conditions) Delete(key string) {
	c.mustWritable()
	if _, ok := c.entries[key]; !ok {
		return
	}
	delete(c.entries, key)
	for i, k := range c.keys {
		if k == key {
			c.keys = append(c.keys[:i], c.keys[i+1:]...)
			break
		}
	}
}

// Walk calls fn on every array and scalar leaf, depth first in key order.
func (c *Conditions) Walk(fn func(path string, e *Entry) error) error {
	return c.walk("", fn)
}

func (c *Conditions) walk(prefix string, fn func(path string, e *Entry) error) error {
	for _, k := range c.keys {
		e := c.entries[k]
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		if e.Kind == TreeKind {
			if err := e.Tree.walk(path, fn); err != nil {
				return err
			}
			continue
		}
		if err := fn(path, e); err != nil {
			return err
		}
	}
	return nil
}

// resizable returns whether the key is subject to row resizing.
func resizable(key string) bool {
	return key != Initials && key != Numerics
}

// ExpandRows resizes every array leaf outside `initials` and `numerics` to n rows.
// Without override, leaves which already have n rows are kept and other leaves
// are filled cyclically from their existing rows. With override every leaf is
// rebuilt from its first row. Scalars are left untouched.
func (c *Conditions) ExpandRows(n int, override bool) {
	c.mustWritable()
	for _, k := range c.keys {
		if !resizable(k) {
			continue
		}
		e := c.entries[k]
		switch e.Kind {
		case TreeKind:
			e.Tree.ExpandRows(n, override)
		case ArrayKind:
			e.Array = resizeRows(e.Array, n, override)
		}
	}
}

func resizeRows(m *mat.Dense, n int, override bool) *mat.Dense {
	r, cols := m.Dims()
	if r == n && !override {
		return m
	}
	out := mat.NewDense(n, cols, nil)
	for i := 0; i < n; i++ {
		src := i % r
		if override {
			src = 0
		}
		for j := 0; j < cols; j++ {
			out.Set(i, j, m.At(src, j))
		}
	}
	return out
}

// Rows returns the common row count of every resizable array leaf, or an error naming
// the first leaf breaking the row consistency. An empty tree has zero rows.
func (c *Conditions) Rows() (int, error) {
	rows := 0
	err := c.rows("", &rows)
	return rows, err
}

func (c *Conditions) rows(prefix string, rows *int) error {
	for _, k := range c.keys {
		if !resizable(k) {
			continue
		}
		e := c.entries[k]
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		switch e.Kind {
		case TreeKind:
			if err := e.Tree.rows(path, rows); err != nil {
				return err
			}
		case ArrayKind:
			r, _ := e.Array.Dims()
			if *rows == 0 {
				*rows = r
			} else if r != *rows {
				return &StructuralMismatchError{Path: path, Reason: fmt.Sprintf("has %d rows, expected %d", r, *rows)}
			}
		}
	}
	return nil
}

// Clone returns a deep, writable copy.
func (c *Conditions) Clone() *Conditions {
	return c.copyWith(func(m *mat.Dense) *mat.Dense { return mat.DenseCopyOf(m) })
}

// FinalRow returns a deep, writable copy where every array only keeps its last row.
func (c *Conditions) FinalRow() *Conditions {
	return c.copyWith(func(m *mat.Dense) *mat.Dense {
		r, cols := m.Dims()
		return mat.DenseCopyOf(m.Slice(r-1, r, 0, cols))
	})
}

func (c *Conditions) copyWith(arr func(*mat.Dense) *mat.Dense) *Conditions {
	out := NewConditions()
	for _, k := range c.keys {
		e := c.entries[k]
		switch e.Kind {
		case TreeKind:
			out.put(k, &Entry{Kind: TreeKind, Tree: e.Tree.copyWith(arr)})
		case ArrayKind:
			out.put(k, &Entry{Kind: ArrayKind, Array: arr(e.Array)})
		case ScalarKind:
			out.put(k, &Entry{Kind: ScalarKind, Scalar: e.Scalar})
		}
	}
	return out
}

// Freeze makes this tree and all its subtrees read only.
func (c *Conditions) Freeze() {
	c.frozen = true
	for _, e := range c.entries {
		if e.Kind == TreeKind {
			e.Tree.Freeze()
		}
	}
}

// String lists every leaf with its shape.
func (c *Conditions) String() string {
	var b strings.Builder
	c.Walk(func(path string, e *Entry) error {
		if e.Kind == ScalarKind {
			fmt.Fprintf(&b, "%s = %g\n", path, e.Scalar)
			return nil
		}
		r, cols := e.Array.Dims()
		fmt.Fprintf(&b, "%s [%dx%d]\n", path, r, cols)
		return nil
	})
	return b.String()
}

// SetTree stores a subtree at the given dotted path, creating intermediate subtrees.
func (c *Conditions) SetTree(path string, t *Conditions) {
	p, key := c.parent(path)
	p.put(key, &Entry{Kind: TreeKind, Tree: t})
}
