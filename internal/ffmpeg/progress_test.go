package ffmpeg

import (
	"bufio"
	"math"
	"slices"
	"strings"
	"testing"
	"time"
)

func TestParseLineStatsLine(t *testing.T) {
	line := "frame=  120 fps=30 q=-1.0 size=   512kB time=00:00:04.00 bitrate= 1049.6kbits/s speed=1.2x"
	s := ParseLine(line)

	if !s.Structured() {
		t.Fatalf("expected structured sample for %q", line)
	}
	if s.Text != line {
		t.Errorf("Text = %q, want original line", s.Text)
	}

	p := s.Progress
	if p.Frame == nil || *p.Frame != 120 {
		t.Errorf("Frame = %v, want 120", p.Frame)
	}
	if p.FPS == nil || *p.FPS != 30 {
		t.Errorf("FPS = %v, want 30", p.FPS)
	}
	if p.Size == nil || *p.Size != 512*1024 {
		t.Errorf("Size = %v, want %d", p.Size, 512*1024)
	}
	if p.Time == nil || *p.Time != 4*time.Second {
		t.Errorf("Time = %v, want 4s", p.Time)
	}
	if p.Bitrate == nil || math.Abs(*p.Bitrate-1049.6) > 1e-9 {
		t.Errorf("Bitrate = %v, want 1049.6", p.Bitrate)
	}
	if p.Speed == nil || math.Abs(*p.Speed-1.2) > 1e-9 {
		t.Errorf("Speed = %v, want 1.2", p.Speed)
	}
}

func TestParseLineUnstructured(t *testing.T) {
	lines := []string{
		"Unknown encoder 'xyz'",
		"",
		"   ",
		"Input #0, mov,mp4,m4a,3gp,3g2,mj2, from 'in.mp4':",
		"  Duration: 00:00:10.00, start: 0.000000, bitrate: 1205 kb/s",
		"[libx264 @ 0x5581] using cpu capabilities: MMX2 SSE2Fast",
		"Past duration 0.603 too large",
		"title=foo",
		"=value",
		"frame=12 and some words",
	}
	for _, line := range lines {
		s := ParseLine(line)
		if s.Structured() {
			t.Errorf("ParseLine(%q) structured, want unstructured", line)
		}
		if s.Text != line {
			t.Errorf("ParseLine(%q).Text = %q", line, s.Text)
		}
	}
}

func TestParseLinePartialFields(t *testing.T) {
	s := ParseLine("size=    1024kB time=00:01:02.50 bitrate= 135.0kbits/s speed=N/A")
	if !s.Structured() {
		t.Fatal("expected structured sample for audio-only stats line")
	}
	p := s.Progress
	if p.Frame != nil || p.FPS != nil {
		t.Errorf("frame/fps should be absent, got %v %v", p.Frame, p.FPS)
	}
	if p.Speed != nil {
		t.Errorf("Speed = %v, want absent for N/A", *p.Speed)
	}
	if want := time.Minute + 2500*time.Millisecond; p.Time == nil || *p.Time != want {
		t.Errorf("Time = %v, want %v", p.Time, want)
	}
	if p.Size == nil || *p.Size != 1024*1024 {
		t.Errorf("Size = %v, want 1MiB", p.Size)
	}
}

func TestParseLineBadFieldDegrades(t *testing.T) {
	s := ParseLine("frame=abc fps=25 time=xx:00:01.00 size=N/A bitrate=N/A")
	if !s.Structured() {
		t.Fatal("expected structured sample")
	}
	p := s.Progress
	if p.Frame != nil {
		t.Errorf("Frame = %v, want absent", *p.Frame)
	}
	if p.Time != nil {
		t.Errorf("Time = %v, want absent", *p.Time)
	}
	if p.Size != nil || p.Bitrate != nil {
		t.Errorf("Size/Bitrate should be absent for N/A")
	}
	if p.FPS == nil || *p.FPS != 25 {
		t.Errorf("FPS = %v, want 25", p.FPS)
	}
}

func TestParseLineOutOfRangeFieldsDegrade(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"nan seconds", "frame=1 time=00:00:NaN"},
		{"huge hours", "frame=1 time=99999999:00:00.00"},
		{"huge size", "frame=1 size=1e300kB"},
		{"inf size", "frame=1 size=+InfkB"},
		{"nan fps", "frame=1 fps=NaN"},
		{"inf speed", "frame=1 speed=Infx"},
		{"nan bitrate", "frame=1 bitrate=NaNkbits/s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := ParseLine(tt.line)
			if !s.Structured() {
				t.Fatal("expected structured sample")
			}
			p := s.Progress
			if p.Time != nil || p.Size != nil || p.FPS != nil || p.Speed != nil || p.Bitrate != nil {
				t.Errorf("got %+v, want only Frame", p)
			}
			if p.Frame == nil || *p.Frame != 1 {
				t.Errorf("Frame = %v, want 1", p.Frame)
			}
		})
	}
}

func TestParseLineLargeClock(t *testing.T) {
	s := ParseLine("frame=1 time=100000:00:00.00")
	if p := s.Progress; p.Time == nil || *p.Time != 100000*time.Hour {
		t.Errorf("Time = %v, want 100000h", p.Time)
	}
}

func TestParseLineFinalStats(t *testing.T) {
	s := ParseLine("frame=  300 fps=0.0 q=-1.0 Lsize=    2048KiB time=00:00:10.00 bitrate=1677.7kbits/s dup=0 drop=3 speed=35.2x")
	if !s.Structured() {
		t.Fatal("expected structured sample")
	}
	if p := s.Progress; p.Size == nil || *p.Size != 2048*1024 {
		t.Errorf("Size = %v, want 2MiB", p.Size)
	}
}

func TestParseLineNegativeTime(t *testing.T) {
	s := ParseLine("frame=    0 fps=0.0 q=0.0 size=       0kB time=-00:00:00.02 bitrate=N/A speed=N/A")
	if !s.Structured() {
		t.Fatal("expected structured sample")
	}
	if p := s.Progress; p.Time == nil || *p.Time != -20*time.Millisecond {
		t.Errorf("Time = %v, want -20ms", p.Time)
	}
}

func TestParseLineProgressPipe(t *testing.T) {
	s := ParseLine("out_time=00:00:02.000000")
	if !s.Structured() {
		t.Fatal("expected structured sample for -progress line")
	}
	if p := s.Progress; p.Time == nil || *p.Time != 2*time.Second {
		t.Errorf("Time = %v, want 2s", p.Time)
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"512kB", 512 * 1024, true},
		{"512KiB", 512 * 1024, true},
		{"3MiB", 3 << 20, true},
		{"1.5mB", 3 << 19, true},
		{"100B", 100, true},
		{"4096", 4096, true},
		{"N/A", 0, false},
		{"-1kB", 0, false},
	}
	for _, tt := range tests {
		got := parseSize(tt.in)
		if (got != nil) != tt.ok {
			t.Errorf("parseSize(%q) ok = %v, want %v", tt.in, got != nil, tt.ok)
			continue
		}
		if got != nil && *got != tt.want {
			t.Errorf("parseSize(%q) = %d, want %d", tt.in, *got, tt.want)
		}
	}
}

func TestParseBitrate(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"1049.6kbits/s", 1049.6},
		{"2.5Mbits/s", 2500},
		{"64000bits/s", 64},
		{"128", 128},
	}
	for _, tt := range tests {
		got := parseBitrate(tt.in)
		if got == nil || math.Abs(*got-tt.want) > 1e-9 {
			t.Errorf("parseBitrate(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		line, level, msg string
	}{
		{"[info] frame=1 fps=1", "info", "frame=1 fps=1"},
		{"[error] Conversion failed!", "error", "Conversion failed!"},
		{"[libx264 @ 0x55d] [warning] bad thing", "warning", "[libx264 @ 0x55d] bad thing"},
		{"[libx264 @ 0x55d] no level here", "info", "[libx264 @ 0x55d] no level here"},
		{"plain message", "info", "plain message"},
		{"[x", "info", "[x"},
	}
	for _, tt := range tests {
		level, msg := ParseLogLevel(tt.line)
		if level != tt.level || msg != tt.msg {
			t.Errorf("ParseLogLevel(%q) = (%q, %q), want (%q, %q)", tt.line, level, msg, tt.level, tt.msg)
		}
	}
}

func TestScanLines(t *testing.T) {
	input := "banner\nframe=1 fps=1\rframe=2 fps=1\rframe=3 fps=1\r\nvideo:1kB\r\n\nlast"
	sc := bufio.NewScanner(strings.NewReader(input))
	sc.Split(ScanLines)

	var got []string
	for sc.Scan() {
		got = append(got, sc.Text())
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}

	want := []string{"banner", "frame=1 fps=1", "frame=2 fps=1", "frame=3 fps=1", "video:1kB", "last"}
	if !slices.Equal(got, want) {
		t.Errorf("lines = %q, want %q", got, want)
	}
}
