package logging

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/coreos/go-systemd/v22/journal"
)

// SyslogIdentifier tags every journal entry.
const SyslogIdentifier = "protoframe"

// FieldPrefix starts every field protoframe adds to a journal entry, so runs
// can be selected with e.g. journalctl PROTOFRAME_RUN_ID=<id>.
const FieldPrefix = "PROTOFRAME_"

// Attributes with dedicated journal fields. The child pid must not land in
// _PID, which journald reserves for the sender.
var journalFields = map[string]string{
	"run_id":    FieldPrefix + "RUN_ID",
	"module":    FieldPrefix + "MODULE",
	"pid":       FieldPrefix + "CHILD_PID",
	"exit_code": FieldPrefix + "EXIT_CODE",
	"error":     FieldPrefix + "ERROR",
}

// sendJournal is replaced in tests.
var sendJournal = journal.Send

// JournalHandler is a slog.Handler that writes records to the systemd journal
// as structured entries.
type JournalHandler struct {
	level  slog.Leveler
	fields map[string]string // resolved from WithAttrs
	prefix string            // open groups, joined and upper-cased
}

// NewJournalHandler creates a journal handler gated by level.
func NewJournalHandler(level slog.Leveler) *JournalHandler {
	return &JournalHandler{level: level, fields: map[string]string{}}
}

func (h *JournalHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle sends r with its attributes as journal fields.
func (h *JournalHandler) Handle(_ context.Context, r slog.Record) error {
	fields := make(map[string]string, len(h.fields)+r.NumAttrs()+1)
	for k, v := range h.fields {
		fields[k] = v
	}
	fields["SYSLOG_IDENTIFIER"] = SyslogIdentifier

	r.Attrs(func(attr slog.Attr) bool {
		addAttrToFields(fields, attr, h.prefix)
		return true
	})

	return sendJournal(r.Message, priority(r.Level), fields)
}

func (h *JournalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	fields := make(map[string]string, len(h.fields)+len(attrs))
	for k, v := range h.fields {
		fields[k] = v
	}
	for _, attr := range attrs {
		addAttrToFields(fields, attr, h.prefix)
	}
	return &JournalHandler{level: h.level, fields: fields, prefix: h.prefix}
}

func (h *JournalHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &JournalHandler{level: h.level, fields: h.fields, prefix: h.prefix + fieldName(name) + "_"}
}

func priority(level slog.Level) journal.Priority {
	switch {
	case level >= slog.LevelError:
		return journal.PriErr
	case level >= slog.LevelWarn:
		return journal.PriWarning
	case level >= slog.LevelInfo:
		return journal.PriInfo
	default:
		return journal.PriDebug
	}
}

// addAttrToFields stores attr under its journal field name. Top-level
// attributes listed in journalFields get their dedicated name; everything
// else is prefixed with FieldPrefix and any open groups.
func addAttrToFields(fields map[string]string, attr slog.Attr, prefix string) {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return
	}

	if attr.Value.Kind() == slog.KindGroup {
		inner := prefix
		if attr.Key != "" {
			inner += fieldName(attr.Key) + "_"
		}
		for _, a := range attr.Value.Group() {
			addAttrToFields(fields, a, inner)
		}
		return
	}

	key, ok := journalFields[attr.Key]
	if !ok || prefix != "" {
		key = FieldPrefix + prefix + fieldName(attr.Key)
	}

	switch attr.Value.Kind() {
	case slog.KindDuration:
		fields[key] = attr.Value.Duration().String()
	case slog.KindTime:
		fields[key] = attr.Value.Time().Format("2006-01-02T15:04:05.000Z07:00")
	case slog.KindFloat64:
		fields[key] = strconv.FormatFloat(attr.Value.Float64(), 'f', -1, 64)
	default:
		fields[key] = attr.Value.String()
	}
}

// fieldName maps an attribute key onto journald's field alphabet: upper-case
// letters, digits and underscores.
func fieldName(key string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, key)
}

// IsJournalAvailable checks if systemd journal is available.
func IsJournalAvailable() bool {
	return journal.Enabled()
}
