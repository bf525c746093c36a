package log

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
	"unicode/utf8"
)

// LogObjMarshaler is implemented by types that know how to write themselves
// into a log event as a nested object.
type LogObjMarshaler interface {
	MarshalLogObj(e *LogEvent)
}

// LogEvent accumulates the fields of a single JSON log line.
// All methods are safe to call on a nil event, which is what the logger
// returns for disabled levels.
type LogEvent struct {
	buf    *bytes.Buffer
	level  Level
	logger Logger
	nested int
}

func newEvent(logger Logger) *LogEvent {
	return &LogEvent{
		buf:    bytes.NewBuffer(make([]byte, 0, 256)),
		logger: logger,
	}
}

// Reset clears the event for reuse.
func (e *LogEvent) Reset() {
	e.buf.Reset()
	e.buf.WriteByte('{')
	e.nested = 0
}

func (e *LogEvent) key(k string) {
	b := e.buf.Bytes()
	if last := b[len(b)-1]; last != '{' {
		e.buf.WriteByte(',')
	}
	writeString(e.buf, k)
	e.buf.WriteByte(':')
}

// Str adds a string field.
func (e *LogEvent) Str(k, v string) *LogEvent {
	if e == nil {
		return e
	}
	e.key(k)
	writeString(e.buf, v)
	return e
}

// Int adds an int field.
func (e *LogEvent) Int(k string, v int) *LogEvent {
	if e == nil {
		return e
	}
	e.key(k)
	e.buf.WriteString(strconv.Itoa(v))
	return e
}

// Int64 adds an int64 field.
func (e *LogEvent) Int64(k string, v int64) *LogEvent {
	if e == nil {
		return e
	}
	e.key(k)
	e.buf.WriteString(strconv.FormatInt(v, 10))
	return e
}

// Uint32 adds a uint32 field.
func (e *LogEvent) Uint32(k string, v uint32) *LogEvent {
	if e == nil {
		return e
	}
	e.key(k)
	e.buf.WriteString(strconv.FormatUint(uint64(v), 10))
	return e
}

// Uint64 adds a uint64 field.
func (e *LogEvent) Uint64(k string, v uint64) *LogEvent {
	if e == nil {
		return e
	}
	e.key(k)
	e.buf.WriteString(strconv.FormatUint(v, 10))
	return e
}

// Bool adds a bool field.
func (e *LogEvent) Bool(k string, v bool) *LogEvent {
	if e == nil {
		return e
	}
	e.key(k)
	e.buf.WriteString(strconv.FormatBool(v))
	return e
}

// Bytes adds a byte slice as a hex string.
func (e *LogEvent) Bytes(k string, v []byte) *LogEvent {
	if e == nil {
		return e
	}
	e.key(k)
	e.buf.WriteByte('"')
	e.buf.WriteString(hex.EncodeToString(v))
	e.buf.WriteByte('"')
	return e
}

// Time adds a timestamp in RFC3339 with milliseconds.
func (e *LogEvent) Time(k string, t *time.Time) *LogEvent {
	if e == nil || t == nil {
		return e
	}
	e.key(k)
	e.buf.WriteByte('"')
	e.buf.WriteString(t.Format("2006-01-02T15:04:05.000Z07:00"))
	e.buf.WriteByte('"')
	return e
}

// Dur adds a duration in milliseconds.
func (e *LogEvent) Dur(k string, d time.Duration) *LogEvent {
	if e == nil {
		return e
	}
	e.key(k)
	e.buf.WriteString(strconv.FormatInt(d.Milliseconds(), 10))
	return e
}

// Err adds the error under the "error" key. A nil error is skipped.
func (e *LogEvent) Err(err error) *LogEvent {
	if e == nil || err == nil {
		return e
	}
	return e.Str("error", err.Error())
}

// Any adds a value using its default fmt representation.
func (e *LogEvent) Any(k string, v any) *LogEvent {
	if e == nil {
		return e
	}
	if m, ok := v.(LogObjMarshaler); ok {
		return e.Obj(k, m)
	}
	return e.Str(k, fmt.Sprint(v))
}

// Obj adds a nested object written by the marshaler.
func (e *LogEvent) Obj(k string, m LogObjMarshaler) *LogEvent {
	if e == nil || m == nil {
		return e
	}
	e.key(k)
	e.buf.WriteByte('{')
	e.nested++
	m.MarshalLogObj(e)
	e.nested--
	e.buf.WriteByte('}')
	return e
}

// Msg adds the message, terminates the line and hands it to the logger.
func (e *LogEvent) Msg(msg string) {
	if e == nil {
		return
	}
	e.Str("msg", msg)
	e.buf.WriteString("}\n")
	e.logger.OnEventEnd(e)
}

// Msgf is Msg with fmt formatting.
func (e *LogEvent) Msgf(format string, args ...any) {
	if e == nil {
		return
	}
	e.Msg(fmt.Sprintf(format, args...))
}

const _hexDigits = "0123456789abcdef"

func writeString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for i := 0; i < len(s); {
		c := s[i]
		if c < utf8.RuneSelf {
			switch {
			case c == '"' || c == '\\':
				buf.WriteByte('\\')
				buf.WriteByte(c)
			case c == '\n':
				buf.WriteString(`\n`)
			case c == '\r':
				buf.WriteString(`\r`)
			case c == '\t':
				buf.WriteString(`\t`)
			case c < 0x20:
				buf.WriteString(`\u00`)
				buf.WriteByte(_hexDigits[c>>4])
				buf.WriteByte(_hexDigits[c&0xf])
			default:
				buf.WriteByte(c)
			}
			i++
			continue
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			buf.WriteString("\ufffd")
		} else {
			buf.WriteString(s[i : i+size])
		}
		i += size
	}
	buf.WriteByte('"')
}
