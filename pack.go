package segsim

import "fmt"

/* Packs the named leaves of `unknowns` and `residuals` into flat vectors for the solver. */

// Size returns the length of the packed vector.
func (c *Conditions) Size() int {
	size := 0
	c.Walk(func(_ string, e *Entry) error {
		if e.Kind == ScalarKind {
			size++
		} else {
			r, cols := e.Array.Dims()
			size += r * cols
		}
		return nil
	})
	return size
}

// PackArray concatenates every leaf in key order, arrays in row-major order and
// scalars as a single element.
func (c *Conditions) PackArray() []float64 {
	v := make([]float64, 0, c.Size())
	c.Walk(func(_ string, e *Entry) error {
		if e.Kind == ScalarKind {
			v = append(v, e.Scalar)
			return nil
		}
		r, cols := e.Array.Dims()
		for i := 0; i < r; i++ {
			for j := 0; j < cols; j++ {
				v = append(v, e.Array.At(i, j))
			}
		}
		return nil
	})
	return v
}

// UnpackArray writes v back into the leaves, in the same order as PackArray.
// The tree is left untouched if the length of v does not match.
func (c *Conditions) UnpackArray(v []float64) error {
	c.mustWritable()
	if size := c.Size(); size != len(v) {
		return &StructuralMismatchError{Path: "*", Reason: fmt.Sprintf("cannot unpack %d values into %d leaves", len(v), size)}
	}
	idx := 0
	return c.Walk(func(_ string, e *Entry) error {
		if e.Kind == ScalarKind {
			e.Scalar = v[idx]
			idx++
			return nil
		}
		r, cols := e.Array.Dims()
		for i := 0; i < r; i++ {
			for j := 0; j < cols; j++ {
				e.Array.Set(i, j, v[idx])
				idx++
			}
		}
		return nil
	})
}

// Labels returns the name of every packed element, as `path[row,col]` for arrays.
func (c *Conditions) Labels() []string {
	labels := make([]string, 0, c.Size())
	c.Walk(func(path string, e *Entry) error {
		if e.Kind == ScalarKind {
			labels = append(labels, path)
			return nil
		}
		r, cols := e.Array.Dims()
		for i := 0; i < r; i++ {
			for j := 0; j < cols; j++ {
				labels = append(labels, fmt.Sprintf("%s[%d,%d]", path, i, j))
			}
		}
		return nil
	})
	return labels
}
