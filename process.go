package segsim

import (
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Stage is one step of a segment pipeline. A stage reads and writes the segment state
// and returns an error to abort the pipeline.
type Stage interface {
	Run(seg *Segment) error
}

// StageFunc adapts a function to the Stage interface.
type StageFunc func(seg *Segment) error

// Run implements the Stage interface.
func (f StageFunc) Run(seg *Segment) error {
	return f(seg)
}

// Process is an ordered, named sequence of stages. A Process is itself a Stage,
// so processes nest.
type Process struct {
	names  []string
	stages map[string]Stage
}

// NewProcess returns an empty process.
func NewProcess() *Process {
	return &Process{stages: make(map[string]Stage)}
}

// Append adds a stage at the end. Stage names are unique within a process.
func (p *Process) Append(name string, s Stage) *Process {
	if _, exists := p.stages[name]; exists {
		panic(fmt.Sprintf("process: stage `%s` already exists", name))
	}
	p.names = append(p.names, name)
	p.stages[name] = s
	return p
}

// AppendFunc is Append for a plain function.
func (p *Process) AppendFunc(name string, f func(seg *Segment) error) *Process {
	return p.Append(name, StageFunc(f))
}

// Set replaces the stage of the given name in place, or appends it.
func (p *Process) Set(name string, s Stage) *Process {
	if _, exists := p.stages[name]; !exists {
		return p.Append(name, s)
	}
	p.stages[name] = s
	return p
}

// InsertAfter adds a stage right after an existing one.
func (p *Process) InsertAfter(after, name string, s Stage) error {
	if _, exists := p.stages[name]; exists {
		return fmt.Errorf("process: stage `%s` already exists", name)
	}
	for i, n := range p.names {
		if n == after {
			p.names = append(p.names[:i+1], append([]string{name}, p.names[i+1:]...)...)
			p.stages[name] = s
			return nil
		}
	}
	return fmt.Errorf("process: no stage `%s` to insert `%s` after", after, name)
}

// Delete removes a stage.
func (p *Process) Delete(name string) {
	if _, exists := p.stages[name]; !exists {
		return
	}
	delete(p.stages, name)
	for i, n := range p.names {
		if n == name {
			p.names = append(p.names[:i], p.names[i+1:]...)
			return
		}
	}
}

// Get returns the stage of the given name.
func (p *Process) Get(name string) (Stage, bool) {
	s, ok := p.stages[name]
	return s, ok
}

// Names returns the stage names in execution order.
func (p *Process) Names() []string {
	return append([]string(nil), p.names...)
}

// Len returns the number of stages.
func (p *Process) Len() int {
	return len(p.names)
}

// Run runs every stage in order and stops at the first error.
func (p *Process) Run(seg *Segment) error {
	for _, name := range p.names {
		if err := p.stages[name].Run(seg); err != nil {
			return stageError(name, err)
		}
	}
	return nil
}

// stageError prefixes the stage path of err, or wraps err if it does not come from a nested process.
func stageError(name string, err error) error {
	if se, ok := err.(*StageError); ok {
		return &StageError{Stage: name + "." + se.Stage, Err: se.Err}
	}
	return &StageError{Stage: name, Err: err}
}

// Concurrent runs its stages in parallel. Its stages must write to disjoint,
// already existing subtrees of the segment state.
type Concurrent struct {
	Process
}

// NewConcurrent returns an empty concurrent process.
func NewConcurrent() *Concurrent {
	return &Concurrent{*NewProcess()}
}

// Run runs every stage in its own goroutine and returns the first error.
func (c *Concurrent) Run(seg *Segment) error {
	var g errgroup.Group
	for _, name := range c.names {
		name := name
		stage := c.stages[name]
		g.Go(func() error {
			if err := stage.Run(seg); err != nil {
				return stageError(name, err)
			}
			return nil
		})
	}
	return g.Wait()
}
