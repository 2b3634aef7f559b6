package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/smazurov/protoframe/internal/command"
)

// Invocation holds the repeatable flags that describe one ffmpeg command.
type Invocation struct {
	Inputs        []string
	Outputs       []string
	GlobalOptions []string
	OutputOptions []string
}

// parsedOption is NAME[=VALUE] with a dash added to bare names.
type parsedOption struct {
	name     string
	value    string
	hasValue bool
}

func parseOption(s string) (parsedOption, error) {
	name, value, hasValue := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	if name == "" || name == "-" {
		return parsedOption{}, fmt.Errorf("option %q: empty name", s)
	}
	if !strings.HasPrefix(name, "-") {
		name = "-" + name
	}
	return parsedOption{name: name, value: value, hasValue: hasValue}, nil
}

// parseOutputOption splits an optional "N:" output index off s. The index
// defaults to last, so "-O" without one applies to the last output.
func parseOutputOption(s string, last int) (int, parsedOption, error) {
	index := last
	if prefix, rest, ok := strings.Cut(s, ":"); ok && prefix != "" && isDigits(prefix) {
		n, err := strconv.Atoi(prefix)
		if err != nil {
			return 0, parsedOption{}, fmt.Errorf("output option %q: %w", s, err)
		}
		index = n
		s = rest
	}
	opt, err := parseOption(s)
	return index, opt, err
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// BuildModel turns the invocation flags into a command model. It does not
// validate the result.
func (inv Invocation) BuildModel() (*command.Model, error) {
	m := command.New()
	for _, in := range inv.Inputs {
		m.AddInput(in)
	}

	for _, g := range inv.GlobalOptions {
		opt, err := parseOption(g)
		if err != nil {
			return nil, err
		}
		addOption(m.Global(), opt)
	}

	for _, out := range inv.Outputs {
		m.AddOutput(out)
	}

	last := m.Outputs() - 1
	for _, o := range inv.OutputOptions {
		index, opt, err := parseOutputOption(o, last)
		if err != nil {
			return nil, err
		}
		target, err := m.Output(index)
		if err != nil {
			return nil, fmt.Errorf("output option %q: %w", o, err)
		}
		addOption(&target.Options, opt)
	}

	return m, nil
}

// addOption appends opt to opts. BuildModel starts from an empty model, so
// a name given more than once on the command line is repeated in order, as
// ffmpeg expects for "-O map=0:v -O map=0:a".
func addOption(opts *command.Options, opt parsedOption) {
	opts.Append(command.Option{Name: opt.name, Value: opt.value, HasValue: opt.hasValue})
}

// quoteArgv renders argv for display, quoting arguments a shell would split.
func quoteArgv(argv []string) string {
	parts := make([]string, len(argv))
	for i, a := range argv {
		if a == "" || strings.ContainsAny(a, " \t\n'\"\\$`*?;&|<>()") {
			parts[i] = strconv.Quote(a)
		} else {
			parts[i] = a
		}
	}
	return strings.Join(parts, " ")
}
