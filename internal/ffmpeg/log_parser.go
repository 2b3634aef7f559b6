package ffmpeg

import (
	"bytes"
	"strings"
)

// LevelInfo is reported for lines that carry no level prefix.
const LevelInfo = "info"

// ParseLogLevel extracts the log level from ffmpeg output.
// With -loglevel level+info ffmpeg writes "[info] message" or
// "[component @ 0x...] [level] message". The level is stripped and a
// component prefix is kept.
func ParseLogLevel(line string) (level, msg string) {
	if len(line) < 3 || line[0] != '[' {
		return LevelInfo, line
	}

	end := strings.Index(line, "] ")
	if end == -1 {
		return LevelInfo, line
	}

	if bracket := line[1:end]; isLogLevel(bracket) {
		return bracket, line[end+2:]
	}

	component := line[:end+2]
	rest := line[end+2:]
	if len(rest) > 2 && rest[0] == '[' {
		if next := strings.Index(rest, "] "); next != -1 && isLogLevel(rest[1:next]) {
			return rest[1:next], component + rest[next+2:]
		}
	}

	return LevelInfo, line
}

func isLogLevel(s string) bool {
	switch s {
	case "quiet", "panic", "fatal", "error", "warning", "info", "verbose", "debug", "trace":
		return true
	}
	return false
}

// ScanLines is a bufio.SplitFunc for ffmpeg stderr. Stats lines are
// rewritten in place with a bare '\r', so either '\r' or '\n' ends a line.
// Empty lines, including the one between "\r\n", are dropped.
func ScanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := 0
	for start < len(data) && (data[start] == '\r' || data[start] == '\n') {
		start++
	}
	if start == len(data) {
		return start, nil, nil
	}

	if i := bytes.IndexAny(data[start:], "\r\n"); i >= 0 {
		end := start + i
		return end + 1, data[start:end], nil
	}

	if atEOF {
		return len(data), data[start:], nil
	}
	return start, nil, nil
}
