package osc

import (
	"net"
	"strings"

	"github.com/hypebeast/go-osc/osc"
)

// Message is one decoded OSC message together with the address it came from.
type Message struct {
	Address string
	Args    []interface{}
	Source  net.Addr
}

// String returns argument i as a string.
func (m *Message) String(i int) (string, bool) {
	if i < 0 || i >= len(m.Args) {
		return "", false
	}
	s, ok := m.Args[i].(string)
	return s, ok
}

// Int32 returns argument i as an int32.
func (m *Message) Int32(i int) (int32, bool) {
	if i < 0 || i >= len(m.Args) {
		return 0, false
	}
	v, ok := m.Args[i].(int32)
	return v, ok
}

// TypeTags returns the OSC type tag string of the arguments, without the
// leading comma. Unknown Go types are reported as '?'.
func (m *Message) TypeTags() string {
	var b strings.Builder
	for _, arg := range m.Args {
		b.WriteByte(typeTag(arg))
	}
	return b.String()
}

func typeTag(arg interface{}) byte {
	switch v := arg.(type) {
	case string:
		return 's'
	case int32:
		return 'i'
	case int64:
		return 'h'
	case float32:
		return 'f'
	case float64:
		return 'd'
	case []byte:
		return 'b'
	case bool:
		if v {
			return 'T'
		}
		return 'F'
	case nil:
		return 'N'
	case osc.Timetag:
		return 't'
	default:
		return '?'
	}
}
