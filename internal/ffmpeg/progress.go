// Package ffmpeg parses the diagnostic output ffmpeg writes to stderr.
package ffmpeg

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Progress holds the encode-progress fields of one stats line.
// A nil field was absent from the line or could not be parsed.
type Progress struct {
	Frame   *int64
	FPS     *float64
	Size    *int64         // bytes
	Time    *time.Duration // elapsed media time
	Bitrate *float64       // kbit/s
	Speed   *float64       // multiple of realtime
}

// Sample is the result of parsing one diagnostic line.
// Progress is nil for lines that are not encode-progress lines.
type Sample struct {
	Text     string
	Progress *Progress
}

// Structured reports whether the line was an encode-progress line.
func (s Sample) Structured() bool {
	return s.Progress != nil
}

// ParseLine classifies a diagnostic line. It never fails: anything that is
// not a progress line comes back with a nil Progress.
//
// Progress lines look like
//
//	frame=  120 fps=30 q=-1.0 size=   512kB time=00:00:04.00 bitrate=1049.6kbits/s speed=1.2x
//
// Every token must be key=value and at least one progress key must be present.
// Unknown keys are ignored.
func ParseLine(text string) Sample {
	sample := Sample{Text: text}

	pairs, ok := splitPairs(text)
	if !ok {
		return sample
	}

	var p Progress
	known := false
	for _, kv := range pairs {
		switch kv.key {
		case "frame":
			known = true
			p.Frame = parseInt(kv.value)
		case "fps":
			known = true
			p.FPS = parseFloat(kv.value)
		case "size", "Lsize", "total_size":
			known = true
			p.Size = parseSize(kv.value)
		case "time", "out_time":
			known = true
			p.Time = parseClock(kv.value)
		case "bitrate":
			known = true
			p.Bitrate = parseBitrate(kv.value)
		case "speed":
			known = true
			p.Speed = parseSpeed(kv.value)
		}
	}

	if known {
		sample.Progress = &p
	}
	return sample
}

type pair struct {
	key, value string
}

// splitPairs splits a line into key=value pairs. ffmpeg pads values with
// spaces ("frame=  120"), so a bare "key=" token takes the next token as its
// value when that token has no '='.
func splitPairs(line string) ([]pair, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, false
	}

	pairs := make([]pair, 0, len(fields))
	for i := 0; i < len(fields); i++ {
		key, value, found := strings.Cut(fields[i], "=")
		if !found || key == "" {
			return nil, false
		}
		if value == "" && i+1 < len(fields) && !strings.Contains(fields[i+1], "=") {
			value = fields[i+1]
			i++
		}
		pairs = append(pairs, pair{key: key, value: value})
	}
	return pairs, true
}

func parseInt(s string) *int64 {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	return &v
}

func parseFloat(s string) *float64 {
	v, ok := finite(s)
	if !ok {
		return nil
	}
	return &v
}

// finite parses s as a float, rejecting NaN and infinities.
func finite(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

var sizeUnits = []struct {
	suffix string
	scale  float64
}{
	{"KiB", 1 << 10},
	{"MiB", 1 << 20},
	{"GiB", 1 << 30},
	{"kB", 1 << 10},
	{"mB", 1 << 20},
	{"MB", 1 << 20},
	{"GB", 1 << 30},
	{"B", 1},
}

// parseSize parses "512kB", "1.5MiB" or a bare byte count into bytes.
func parseSize(s string) *int64 {
	scale := 1.0
	for _, u := range sizeUnits {
		if strings.HasSuffix(s, u.suffix) {
			s = strings.TrimSuffix(s, u.suffix)
			scale = u.scale
			break
		}
	}
	v, ok := finite(s)
	if !ok || v < 0 || v*scale >= math.MaxInt64 {
		return nil
	}
	n := int64(v * scale)
	return &n
}

// maxClockHours keeps HH:59:59.99 within a time.Duration.
const maxClockHours = math.MaxInt64/int64(time.Hour) - 1

// parseClock parses "[-]HH:MM:SS.fraction".
func parseClock(s string) *time.Duration {
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return nil
	}
	h, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || h < 0 || h > maxClockHours {
		return nil
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return nil
	}
	sec, ok := finite(parts[2])
	if !ok || sec < 0 || sec >= 60 {
		return nil
	}

	d := time.Duration(h)*time.Hour + time.Duration(m)*time.Minute +
		time.Duration(sec*float64(time.Second)+0.5)
	if neg {
		d = -d
	}
	return &d
}

var bitrateUnits = []struct {
	suffix string
	scale  float64
}{
	{"kbits/s", 1},
	{"Mbits/s", 1000},
	{"bits/s", 0.001},
}

// parseBitrate parses "1049.6kbits/s" into kbit/s.
func parseBitrate(s string) *float64 {
	scale := 1.0
	for _, u := range bitrateUnits {
		if strings.HasSuffix(s, u.suffix) {
			s = strings.TrimSuffix(s, u.suffix)
			scale = u.scale
			break
		}
	}
	v, ok := finite(s)
	if !ok {
		return nil
	}
	v *= scale
	return &v
}

// parseSpeed parses "1.2x" into 1.2.
func parseSpeed(s string) *float64 {
	return parseFloat(strings.TrimSuffix(s, "x"))
}
