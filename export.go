package segsim

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/soniakeys/meeus/v3/julian"
	"gopkg.in/yaml.v3"
)

const timePath = "frames.inertial.time"

// ExportConfig configures the exporting of a mission.
type ExportConfig struct {
	Filename  string
	Epoch     time.Time // date of the mission start, i.e. time zero
	AsCSV     bool      // one CSV per segment
	Merged    bool      // one CSV of the merged mission, if segments are congruent
	Summary   bool      // YAML summary of the solves
	Timestamp bool      // add the creation date to the file names
}

// IsUseless returns whether this config doesn't actually do anything.
func (c ExportConfig) IsUseless() bool {
	return !c.AsCSV && !c.Merged && !c.Summary
}

// columns returns the CSV header of a conditions tree, one column per array column.
func columns(conds *Conditions) []string {
	var hdr []string
	conds.Walk(func(path string, e *Entry) error {
		if e.Kind == ScalarKind {
			hdr = append(hdr, path)
			return nil
		}
		_, cols := e.Array.Dims()
		if cols == 1 {
			hdr = append(hdr, path)
			return nil
		}
		for j := 0; j < cols; j++ {
			hdr = append(hdr, fmt.Sprintf("%s[%d]", path, j))
		}
		return nil
	})
	return hdr
}

// ExportCSV writes every leaf of the `conditions` subtree of state as a time series,
// one row per collocation point. The first column is the Julian date of the point, from
// the epoch and the time leaf (in seconds) if present.
func ExportCSV(w io.Writer, state *Conditions, epoch time.Time) error {
	conds, ok := state.Tree(ConditionsTree)
	if !ok {
		return &StructuralMismatchError{Path: ConditionsTree, Reason: "missing"}
	}
	rows, err := conds.Rows()
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{"jd"}, columns(conds)...)); err != nil {
		return err
	}
	t, hasTime := conds.Array(timePath)
	for r := 0; r < rows; r++ {
		dt := epoch
		if hasTime {
			dt = epoch.Add(time.Duration(t.At(r, 0) * float64(time.Second)))
		}
		record := []string{strconv.FormatFloat(julian.TimeToJD(dt), 'f', 8, 64)}
		conds.Walk(func(_ string, e *Entry) error {
			if e.Kind == ScalarKind {
				record = append(record, strconv.FormatFloat(e.Scalar, 'g', -1, 64))
				return nil
			}
			_, cols := e.Array.Dims()
			for j := 0; j < cols; j++ {
				record = append(record, strconv.FormatFloat(e.Array.At(r, j), 'g', -1, 64))
			}
			return nil
		})
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// summary is the YAML report of a mission evaluation.
type summary struct {
	Mission   string           `yaml:"mission"`
	ID        string           `yaml:"id"`
	Epoch     string           `yaml:"epoch,omitempty"`
	JD        float64          `yaml:"jd,omitempty"`
	Converged bool             `yaml:"converged"`
	Segments  []segmentSummary `yaml:"segments"`
}

type segmentSummary struct {
	Tag          string  `yaml:"tag"`
	Status       string  `yaml:"status"`
	Solver       string  `yaml:"solver"`
	Evaluations  int     `yaml:"evaluations"`
	Iterations   int     `yaml:"iterations"`
	ResidualNorm float64 `yaml:"residual_norm"`
	Message      string  `yaml:"message,omitempty"`
	Failure      string  `yaml:"failure,omitempty"`
}

// WriteSummary writes the outcome of every evaluated segment as YAML.
func WriteSummary(w io.Writer, res *Results, epoch time.Time) error {
	s := summary{Mission: res.Mission, ID: res.ID.String(), Converged: res.Converged}
	if !epoch.IsZero() {
		s.Epoch = epoch.UTC().Format(time.RFC3339)
		s.JD = julian.TimeToJD(epoch)
	}
	for _, sr := range res.Segments {
		ss := segmentSummary{
			Tag:          sr.Tag,
			Status:       sr.Status.String(),
			Solver:       sr.Solver.Status.String(),
			Evaluations:  sr.Solver.Evaluations,
			Iterations:   sr.Solver.Iterations,
			ResidualNorm: sr.Solver.ResidualNorm,
			Message:      sr.Solver.Message,
		}
		if sr.Solver.Err != nil {
			ss.Failure = sr.Solver.Err.Error()
		}
		s.Segments = append(s.Segments, ss)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return err
	}
	return enc.Close()
}

// createFile returns a file in the output directory which requires a defer close statement!
func createFile(name, ext string, stamped bool) (*os.File, error) {
	if stamped {
		t := time.Now()
		name = fmt.Sprintf("%s-%d-%02d-%02dT%02d.%02d.%02d", name, t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second())
	}
	return os.Create(filepath.Join(OutputDir(), name+"."+ext))
}

// Export writes the files requested by conf for an evaluated mission, and returns their names.
// A merged export of incongruent segments is skipped with a warning, not an error.
func Export(conf ExportConfig, m *Mission, res *Results) ([]string, error) {
	var written []string
	write := func(name, ext string, fn func(io.Writer) error) error {
		f, err := createFile(name, ext, conf.Timestamp)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := fn(f); err != nil {
			return fmt.Errorf("%s: %w", f.Name(), err)
		}
		written = append(written, f.Name())
		return nil
	}
	if conf.AsCSV {
		for i, seg := range m.Segments {
			if i >= len(res.Segments) {
				break
			}
			state := seg.State
			if err := write(fmt.Sprintf("%s-%02d-%s", conf.Filename, i, seg.Tag), "csv", func(w io.Writer) error {
				return ExportCSV(w, state, conf.Epoch)
			}); err != nil {
				return written, err
			}
		}
	}
	if conf.Merged {
		merged, err := m.Merged()
		if err != nil {
			m.logger.Log("level", "warning", "subsys", "export", "merged", "skipped", "err", err)
		} else if err := write(conf.Filename+"-merged", "csv", func(w io.Writer) error {
			return ExportCSV(w, merged, conf.Epoch)
		}); err != nil {
			return written, err
		}
	}
	if conf.Summary {
		if err := write(conf.Filename+"-summary", "yaml", func(w io.Writer) error {
			return WriteSummary(w, res, conf.Epoch)
		}); err != nil {
			return written, err
		}
	}
	return written, nil
}
