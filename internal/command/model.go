// Package command holds the declarative description of one ffmpeg invocation
// and turns it into an argument vector.
package command

import (
	"errors"
	"fmt"
)

// Validation errors returned by Model.Validate.
var (
	ErrNoInputs         = errors.New("no inputs")
	ErrEmptyInput       = errors.New("empty input locator")
	ErrNoOutputs        = errors.New("no outputs")
	ErrEmptyDestination = errors.New("empty output destination")
	ErrNoSuchOutput     = errors.New("no such output")
)

// Option is a single command-line option. A flag carries no value and
// HasValue is false.
type Option struct {
	Name     string
	Value    string
	HasValue bool
}

// Options is an insertion-ordered set of options.
type Options struct {
	items []Option
}

// Set sets name to value. An existing option keeps its position.
func (o *Options) Set(name, value string) {
	o.put(Option{Name: name, Value: value, HasValue: true})
}

// SetFlag sets name as a flag without a value.
func (o *Options) SetFlag(name string) {
	o.put(Option{Name: name})
}

// Append adds an option even if one with the same name exists.
// Used for options ffmpeg accepts repeatedly, such as -map.
func (o *Options) Append(opt Option) {
	o.items = append(o.items, opt)
}

// Unset removes every option called name and reports whether any existed.
func (o *Options) Unset(name string) bool {
	kept := o.items[:0]
	for _, opt := range o.items {
		if opt.Name != name {
			kept = append(kept, opt)
		}
	}
	removed := len(kept) != len(o.items)
	clear(o.items[len(kept):])
	o.items = kept
	return removed
}

// Get returns the first option called name.
func (o *Options) Get(name string) (Option, bool) {
	for _, opt := range o.items {
		if opt.Name == name {
			return opt, true
		}
	}
	return Option{}, false
}

// All returns a copy of the options in order.
func (o *Options) All() []Option {
	out := make([]Option, len(o.items))
	copy(out, o.items)
	return out
}

// Len returns the number of options.
func (o *Options) Len() int {
	return len(o.items)
}

// Clear removes all options.
func (o *Options) Clear() {
	o.items = nil
}

func (o *Options) put(opt Option) {
	for i := range o.items {
		if o.items[i].Name == opt.Name {
			o.items[i] = opt
			return
		}
	}
	o.items = append(o.items, opt)
}

func (o *Options) clone() Options {
	if o.items == nil {
		return Options{}
	}
	return Options{items: o.All()}
}

// Output is one output destination with the options that precede it.
type Output struct {
	Destination string
	Options     Options
}

// Model describes one ffmpeg invocation. It is not safe for concurrent
// mutation; the owner serializes edits.
type Model struct {
	inputs  []string
	global  Options
	outputs []*Output
}

// New returns an empty model.
func New() *Model {
	return &Model{}
}

// AddInput appends an input locator.
func (m *Model) AddInput(locator string) {
	m.inputs = append(m.inputs, locator)
}

// ClearInputs removes all inputs.
func (m *Model) ClearInputs() {
	m.inputs = nil
}

// Inputs returns a copy of the input locators.
func (m *Model) Inputs() []string {
	out := make([]string, len(m.inputs))
	copy(out, m.inputs)
	return out
}

// Global returns the global options for editing.
func (m *Model) Global() *Options {
	return &m.global
}

// SetGlobal sets a global option with a value.
func (m *Model) SetGlobal(name, value string) {
	m.global.Set(name, value)
}

// SetGlobalFlag sets a global option without a value.
func (m *Model) SetGlobalFlag(name string) {
	m.global.SetFlag(name)
}

// UnsetGlobal removes a global option.
func (m *Model) UnsetGlobal(name string) bool {
	return m.global.Unset(name)
}

// ClearGlobal removes all global options.
func (m *Model) ClearGlobal() {
	m.global.Clear()
}

// AddOutput appends an output and returns its index.
func (m *Model) AddOutput(destination string) int {
	m.outputs = append(m.outputs, &Output{Destination: destination})
	return len(m.outputs) - 1
}

// Output returns the output at index i.
func (m *Model) Output(i int) (*Output, error) {
	if i < 0 || i >= len(m.outputs) {
		return nil, fmt.Errorf("%w: index %d of %d", ErrNoSuchOutput, i, len(m.outputs))
	}
	return m.outputs[i], nil
}

// Outputs returns the number of outputs.
func (m *Model) Outputs() int {
	return len(m.outputs)
}

// SetDestination changes the destination of output i.
func (m *Model) SetDestination(i int, destination string) error {
	out, err := m.Output(i)
	if err != nil {
		return err
	}
	out.Destination = destination
	return nil
}

// SetOutputOption sets an option with a value on output i.
func (m *Model) SetOutputOption(i int, name, value string) error {
	out, err := m.Output(i)
	if err != nil {
		return err
	}
	out.Options.Set(name, value)
	return nil
}

// SetOutputFlag sets an option without a value on output i.
func (m *Model) SetOutputFlag(i int, name string) error {
	out, err := m.Output(i)
	if err != nil {
		return err
	}
	out.Options.SetFlag(name)
	return nil
}

// UnsetOutputOption removes an option from output i.
func (m *Model) UnsetOutputOption(i int, name string) error {
	out, err := m.Output(i)
	if err != nil {
		return err
	}
	out.Options.Unset(name)
	return nil
}

// ClearOutputs removes all outputs.
func (m *Model) ClearOutputs() {
	m.outputs = nil
}

// Clone returns a deep copy of the model.
func (m *Model) Clone() *Model {
	c := &Model{
		inputs: m.Inputs(),
		global: m.global.clone(),
	}
	if m.outputs != nil {
		c.outputs = make([]*Output, len(m.outputs))
		for i, out := range m.outputs {
			c.outputs[i] = &Output{Destination: out.Destination, Options: out.Options.clone()}
		}
	}
	return c
}

// Validate reports every reason the model cannot be executed.
func (m *Model) Validate() error {
	var errs []error
	if len(m.inputs) == 0 {
		errs = append(errs, ErrNoInputs)
	}
	for i, in := range m.inputs {
		if in == "" {
			errs = append(errs, fmt.Errorf("input %d: %w", i, ErrEmptyInput))
		}
	}
	if len(m.outputs) == 0 {
		errs = append(errs, ErrNoOutputs)
	}
	for i, out := range m.outputs {
		if out.Destination == "" {
			errs = append(errs, fmt.Errorf("output %d: %w", i, ErrEmptyDestination))
		}
	}
	return errors.Join(errs...)
}
