// Package console renders supervisor events for a person watching a terminal.
package console

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"github.com/smazurov/protoframe/internal/events"
	"github.com/smazurov/protoframe/internal/ffmpeg"
)

// Outcome kinds.
const (
	KindCompleted  = "completed"
	KindFailed     = "failed"
	KindTerminated = "terminated"
)

// Outcome summarizes how a run ended.
type Outcome struct {
	RunID    string
	Kind     string
	ExitCode int
	Reason   string
	Elapsed  time.Duration
}

// ExitStatus maps the outcome to a process exit status: 0 when completed,
// the child's code when it failed (1 if it never ran or was signalled),
// 130 when terminated.
func (o Outcome) ExitStatus() int {
	switch o.Kind {
	case KindCompleted:
		return 0
	case KindTerminated:
		return 130
	}
	if o.ExitCode > 0 && o.ExitCode < 128 {
		return o.ExitCode
	}
	return 1
}

// Options controls what the Printer writes.
type Options struct {
	Verbose bool // echo every diagnostic line
	Quiet   bool // no progress and no summary table, only failures
}

// Printer writes progress and a run summary. It handles one run.
type Printer struct {
	w       io.Writer
	opts    Options
	inPlace bool

	mu       sync.Mutex
	pending  bool // an unterminated progress line is on screen
	started  time.Time
	last     *ffmpeg.Progress
	outcome  Outcome
	finished bool
	done     chan struct{}
}

// NewPrinter creates a Printer writing to w. Progress overwrites itself in
// place when w is a terminal.
func NewPrinter(w io.Writer, opts Options) *Printer {
	return &Printer{
		w:       w,
		opts:    opts,
		inPlace: isTerminal(w),
		done:    make(chan struct{}),
	}
}

// Done is closed once the terminal event has been rendered.
func (p *Printer) Done() <-chan struct{} {
	return p.done
}

// Outcome returns the run outcome once Done is closed.
func (p *Printer) Outcome() (Outcome, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outcome, p.finished
}

// Handle renders one event.
func (p *Printer) Handle(ev events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.finished {
		return
	}

	switch e := ev.(type) {
	case events.Started:
		p.started = e.At
		if p.opts.Verbose {
			p.println(fmt.Sprintf("Started pid %d: %s", e.PID, strings.Join(e.Argv, " ")))
		}
	case events.DiagnosticLine:
		if p.opts.Verbose {
			p.println(e.Text)
		}
	case events.Progress:
		if e.Sample.Progress == nil {
			return
		}
		p.last = e.Sample.Progress
		if !p.opts.Quiet {
			p.printProgress(FormatProgress(e.Sample.Progress))
		}
	case events.Completed:
		p.finish(Outcome{RunID: e.RunID, Kind: KindCompleted, Elapsed: e.Elapsed})
	case events.Failed:
		p.finish(Outcome{RunID: e.RunID, Kind: KindFailed, ExitCode: e.ExitCode, Reason: e.Reason(), Elapsed: p.elapsed(e.At)})
	case events.Terminated:
		p.finish(Outcome{RunID: e.RunID, Kind: KindTerminated, ExitCode: e.ExitCode, Elapsed: p.elapsed(e.At)})
	}
}

func (p *Printer) elapsed(at time.Time) time.Duration {
	if p.started.IsZero() {
		return 0
	}
	return at.Sub(p.started)
}

func (p *Printer) finish(o Outcome) {
	p.endProgress()
	p.outcome = o
	p.finished = true

	switch {
	case !p.opts.Quiet:
		fmt.Fprintln(p.w, p.summary())
	case o.Kind == KindFailed:
		fmt.Fprintf(p.w, "Failed: %s\n", o.Reason)
	}
	close(p.done)
}

func (p *Printer) printProgress(line string) {
	if p.inPlace {
		fmt.Fprintf(p.w, "\r%s\x1b[K", line)
		p.pending = true
		return
	}
	fmt.Fprintln(p.w, line)
}

func (p *Printer) println(line string) {
	p.endProgress()
	fmt.Fprintln(p.w, line)
}

func (p *Printer) endProgress() {
	if p.pending {
		fmt.Fprintln(p.w)
		p.pending = false
	}
}

func (p *Printer) summary() string {
	o := p.outcome
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendRow(table.Row{"Run", o.RunID})
	tw.AppendRow(table.Row{"Outcome", o.Kind})
	if o.Kind != KindCompleted {
		tw.AppendRow(table.Row{"Exit code", o.ExitCode})
	}
	if o.Reason != "" {
		tw.AppendRow(table.Row{"Reason", o.Reason})
	}
	tw.AppendRow(table.Row{"Elapsed", o.Elapsed.Round(time.Millisecond).String()})
	if last := p.last; last != nil {
		if last.Frame != nil {
			tw.AppendRow(table.Row{"Frames", humanize.Comma(*last.Frame)})
		}
		if last.Size != nil && *last.Size >= 0 {
			tw.AppendRow(table.Row{"Size", humanize.IBytes(uint64(*last.Size))})
		}
		if last.Time != nil {
			tw.AppendRow(table.Row{"Media time", formatClock(*last.Time)})
		}
		if last.Speed != nil {
			tw.AppendRow(table.Row{"Speed", humanize.FtoaWithDigits(*last.Speed, 2) + "x"})
		}
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft},
		{Number: 2, Align: text.AlignRight},
	})
	return tw.Render()
}

// FormatProgress renders the fields present in pr on one line.
func FormatProgress(pr *ffmpeg.Progress) string {
	var parts []string
	if pr.Frame != nil {
		parts = append(parts, "frame="+humanize.Comma(*pr.Frame))
	}
	if pr.FPS != nil {
		parts = append(parts, "fps="+humanize.FtoaWithDigits(*pr.FPS, 2))
	}
	if pr.Size != nil && *pr.Size >= 0 {
		parts = append(parts, "size="+humanize.IBytes(uint64(*pr.Size)))
	}
	if pr.Time != nil {
		parts = append(parts, "time="+formatClock(*pr.Time))
	}
	if pr.Bitrate != nil {
		parts = append(parts, fmt.Sprintf("bitrate=%.1fkbits/s", *pr.Bitrate))
	}
	if pr.Speed != nil {
		parts = append(parts, "speed="+humanize.FtoaWithDigits(*pr.Speed, 2)+"x")
	}
	return strings.Join(parts, " ")
}

// formatClock renders d as [-]HH:MM:SS.cc.
func formatClock(d time.Duration) string {
	sign := ""
	if d < 0 {
		sign = "-"
		d = -d
	}
	d = d.Round(10 * time.Millisecond)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	d -= s * time.Second
	cs := d / (10 * time.Millisecond)
	return fmt.Sprintf("%s%02d:%02d:%02d.%02d", sign, h, m, s, cs)
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
