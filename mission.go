package segsim

import (
	"fmt"
	"os"
	"time"

	kitlog "github.com/go-kit/log"
	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"
)

/* Handles the sequencing of the segments of a mission. */

// Mission defines an ordered sequence of segments, each starting where the previous one ended.
type Mission struct {
	Tag      string
	ID       uuid.UUID
	Segments []*Segment
	// ContinueOnFailure evaluates the remaining segments after a segment fails to converge.
	ContinueOnFailure bool
	Metrics           *Metrics
	logger            kitlog.Logger
}

// SegmentResult is the outcome of one segment of a mission.
type SegmentResult struct {
	Index  int
	Tag    string
	Status SegmentStatus
	Solver SolverResult
}

// Results is the outcome of a mission evaluation.
type Results struct {
	Mission   string
	ID        uuid.UUID
	Converged bool
	Segments  []SegmentResult
	Failed    *SegmentResult // first segment which failed, if any
}

// NewMission returns a new mission made of the provided segments.
func NewMission(tag string, segments ...*Segment) *Mission {
	klog := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stdout))
	m := &Mission{Tag: tag, ID: uuid.New(), logger: kitlog.With(klog, "mission", tag)}
	for _, seg := range segments {
		m.Append(seg)
	}
	return m
}

// SetLogger sets the logger of the mission and of all its segments.
func (m *Mission) SetLogger(l kitlog.Logger) {
	m.logger = kitlog.With(l, "mission", m.Tag)
	for _, seg := range m.Segments {
		seg.SetLogger(m.logger)
	}
}

// Append adds a segment at the end of the mission.
func (m *Mission) Append(seg *Segment) {
	seg.SetLogger(m.logger)
	m.Segments = append(m.Segments, seg)
}

// Segment returns the segment with the provided tag.
func (m *Mission) Segment(tag string) (*Segment, bool) {
	for _, seg := range m.Segments {
		if seg.Tag == tag {
			return seg, true
		}
	}
	return nil, false
}

// Evaluate solves every segment in order. The mission halts at the first segment
// which fails to converge, unless ContinueOnFailure is set; in that case the
// returned error wraps the ConvergenceFailure. Configuration, structural and
// stage errors always halt the mission.
func (m *Mission) Evaluate() (*Results, error) {
	start := time.Now()
	res := &Results{Mission: m.Tag, ID: m.ID, Segments: make([]SegmentResult, 0, len(m.Segments))}
	m.logger.Log("level", "info", "subsys", "mission", "id", m.ID, "segments", len(m.Segments))
	var failure error
	for i, seg := range m.Segments {
		if seg.Driver != nil && seg.Driver.Metrics == nil {
			seg.Driver.Metrics = m.Metrics
		}
		if i > 0 {
			seg.SetInitials(m.Segments[i-1].State)
		}
		solved, err := seg.Evaluate()
		sr := SegmentResult{Index: i, Tag: seg.Tag, Status: seg.Status, Solver: solved}
		res.Segments = append(res.Segments, sr)
		m.Metrics.segment(seg.Status)
		if err != nil {
			m.logger.Log("level", "critical", "subsys", "mission", "segment", seg.Tag, "index", i, "err", err)
			res.Failed = &res.Segments[len(res.Segments)-1]
			return res, fmt.Errorf("segment %d (%s): %w", i, seg.Tag, err)
		}
		if seg.Status == SegmentFailed {
			m.logger.Log("level", "critical", "subsys", "mission", "segment", seg.Tag, "index", i, "evaluations", solved.Evaluations, "message", solved.Message)
			if res.Failed == nil {
				res.Failed = &res.Segments[len(res.Segments)-1]
				failure = fmt.Errorf("segment %d (%s) failed at evaluation %d: %w", i, seg.Tag, solved.Evaluations, solved.Err)
			}
			if !m.ContinueOnFailure {
				return res, failure
			}
			continue
		}
		m.logger.Log("level", "info", "subsys", "mission", "segment", seg.Tag, "index", i, "evaluations", solved.Evaluations, "|R|", solved.ResidualNorm)
	}
	res.Converged = res.Failed == nil
	m.logger.Log("level", "notice", "subsys", "mission", "status", "finished", "converged", res.Converged, "duration", time.Since(start))
	return res, failure
}

// Merged stacks the rows of the unknowns, conditions and residuals of every segment,
// in mission order. The first segment defines the expected keys and columns.
func (m *Mission) Merged() (*Conditions, error) {
	merged := NewConditions()
	if len(m.Segments) == 0 {
		return merged, nil
	}
	for _, k := range []string{Unknowns, ConditionsTree, Residuals} {
		trees := make([]*Conditions, len(m.Segments))
		for i, seg := range m.Segments {
			t, ok := seg.State.Tree(k)
			if !ok {
				t = NewConditions()
			}
			trees[i] = t
		}
		stacked, err := stack(k, trees)
		if err != nil {
			return nil, err
		}
		merged.SetTree(k, stacked)
	}
	return merged, nil
}

// stack vertically stacks congruent trees.
func stack(prefix string, trees []*Conditions) (*Conditions, error) {
	first := trees[0]
	for i, t := range trees[1:] {
		if err := sameKeys(prefix, first, t); err != nil {
			err.Reason += fmt.Sprintf(" in segment %d", i+1)
			return nil, err
		}
	}
	out := NewConditions()
	for _, k := range first.keys {
		path := prefix + "." + k
		e := first.entries[k]
		switch e.Kind {
		case TreeKind:
			subs := make([]*Conditions, len(trees))
			for i, t := range trees {
				if t.entries[k].Kind != TreeKind {
					return nil, &StructuralMismatchError{Path: path, Reason: fmt.Sprintf("is a %s in segment %d", t.entries[k].Kind, i)}
				}
				subs[i] = t.entries[k].Tree
			}
			sub, err := stack(path, subs)
			if err != nil {
				return nil, err
			}
			out.SetTree(k, sub)
		case ScalarKind:
			// Metadata does not stack, the first segment's value is kept.
			out.SetScalar(k, e.Scalar)
		case ArrayKind:
			_, cols := e.Array.Dims()
			rows := 0
			for i, t := range trees {
				te := t.entries[k]
				if te.Kind != ArrayKind {
					return nil, &StructuralMismatchError{Path: path, Reason: fmt.Sprintf("is a %s in segment %d", te.Kind, i)}
				}
				r, c := te.Array.Dims()
				if c != cols {
					return nil, &StructuralMismatchError{Path: path, Reason: fmt.Sprintf("has %d columns in segment %d, expected %d", c, i, cols)}
				}
				rows += r
			}
			data := mat.NewDense(rows, cols, nil)
			row := 0
			for _, t := range trees {
				a := t.entries[k].Array
				r, _ := a.Dims()
				data.Slice(row, row+r, 0, cols).(*mat.Dense).Copy(a)
				row += r
			}
			out.Set(k, data)
		}
	}
	return out, nil
}

func sameKeys(prefix string, a, b *Conditions) *StructuralMismatchError {
	for _, k := range a.keys {
		if _, ok := b.entries[k]; !ok {
			return &StructuralMismatchError{Path: prefix + "." + k, Reason: "missing"}
		}
	}
	for _, k := range b.keys {
		if _, ok := a.entries[k]; !ok {
			return &StructuralMismatchError{Path: prefix + "." + k, Reason: "unexpected"}
		}
	}
	return nil
}
