package command

// InputMarker precedes every input locator.
const InputMarker = "-i"

// ToArgv linearizes the model into the argument vector ffmpeg expects,
// without the executable. Inputs come first, then global options, then each
// output's options followed by its destination.
func ToArgv(m *Model) []string {
	if m == nil {
		return []string{}
	}

	args := make([]string, 0, argvLen(m))

	for _, in := range m.inputs {
		args = append(args, InputMarker, in)
	}

	args = appendOptions(args, m.global.items)

	for _, out := range m.outputs {
		args = appendOptions(args, out.Options.items)
		args = append(args, out.Destination)
	}

	return args
}

func appendOptions(args []string, opts []Option) []string {
	for _, opt := range opts {
		args = append(args, opt.Name)
		if opt.HasValue {
			args = append(args, opt.Value)
		}
	}
	return args
}

func argvLen(m *Model) int {
	n := 2*len(m.inputs) + 2*m.global.Len()
	for _, out := range m.outputs {
		n += 1 + 2*out.Options.Len()
	}
	return n
}
