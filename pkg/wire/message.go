package wire

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Parsing errors.
var (
	// ErrEmptyLine indicates an empty or all-whitespace line.
	ErrEmptyLine = errors.New("empty line")

	// ErrMalformedLine indicates a line that does not follow the
	// TYPE[,unit]:PAYLOAD grammar.
	ErrMalformedLine = errors.New("malformed line")

	// ErrBadUnit indicates an unparseable unit number.
	ErrBadUnit = errors.New("bad unit number")
)

// GatewayTarget is the Unit value of a message addressed to the gateway
// itself rather than to one of its units.
const GatewayTarget = -1

// Message is one parsed protocol line.
type Message struct {
	// Type is the recognized message type (TypeUnknown for foreign tokens).
	Type MessageType

	// RawType is the original type token, kept for logging unknown types.
	RawType string

	// Unit is the target unit number, or GatewayTarget when the line
	// carried no unit (single-unit gateways omit it).
	Unit int

	// Payload is the raw text after the first ':', empty for bare lines
	// like ACK.
	Payload string
}

// Parse parses one protocol line (without its CR/LF terminator).
func Parse(line string) (Message, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Message{}, ErrEmptyLine
	}

	header := line
	payload := ""
	if i := strings.IndexByte(line, ':'); i >= 0 {
		header = line[:i]
		payload = line[i+1:]
	}

	msg := Message{Unit: GatewayTarget, Payload: payload}

	token := header
	if i := strings.IndexByte(header, ','); i >= 0 {
		token = header[:i]
		unitStr := header[i+1:]
		unit, err := strconv.Atoi(unitStr)
		if err != nil || unit < 0 {
			return Message{}, fmt.Errorf("%w: %q", ErrBadUnit, unitStr)
		}
		msg.Unit = unit
	}

	if token == "" {
		return Message{}, ErrMalformedLine
	}
	msg.RawType = token
	msg.Type = ParseMessageType(upper(token))

	return msg, nil
}

// Segments splits the payload on ':'. A message without payload has no
// segments.
func (m Message) Segments() []string {
	if m.Payload == "" {
		return nil
	}
	return strings.Split(m.Payload, ":")
}

// Fields splits the payload on ','.
func (m Message) Fields() []string {
	if m.Payload == "" {
		return nil
	}
	return strings.Split(m.Payload, ",")
}

// Change is the decoded payload of a CHN message: one function and its
// new value.
type Change struct {
	Function Function
	RawName  string
	Value    string
}

// ParseChange decodes a CHN payload of the form "NAME,VALUE".
func (m Message) ParseChange() (Change, error) {
	fields := m.Fields()
	if len(fields) < 2 {
		return Change{}, fmt.Errorf("%w: CHN payload %q", ErrMalformedLine, m.Payload)
	}
	name := strings.TrimSpace(fields[0])
	// Values may legitimately contain commas only for ERRCODE payloads;
	// keep everything after the first comma as the value.
	value := strings.TrimSpace(strings.Join(fields[1:], ","))

	return Change{
		Function: ParseFunction(name),
		RawName:  name,
		Value:    upper(value),
	}, nil
}

// LimitsReport is the decoded payload of a LIMITS message: a function and
// its advertised legal values. Values are uppercase tokens; for numeric
// ranges the values are the numeric members (e.g. ["160","320"]).
type LimitsReport struct {
	Function Function
	RawName  string
	Values   []string
}

// ParseLimitsReport decodes a LIMITS payload of the form
// "NAME,[v1,v2,...]". The bracketed list may be empty.
func (m Message) ParseLimitsReport() (LimitsReport, error) {
	payload := strings.TrimSpace(m.Payload)
	i := strings.IndexByte(payload, ',')
	if i < 0 {
		return LimitsReport{}, fmt.Errorf("%w: LIMITS payload %q", ErrMalformedLine, m.Payload)
	}

	name := strings.TrimSpace(payload[:i])
	list := strings.TrimSpace(payload[i+1:])
	if !strings.HasPrefix(list, "[") || !strings.HasSuffix(list, "]") {
		return LimitsReport{}, fmt.Errorf("%w: LIMITS list %q", ErrMalformedLine, list)
	}
	list = list[1 : len(list)-1]

	report := LimitsReport{
		Function: ParseFunction(name),
		RawName:  name,
	}
	if list != "" {
		for _, v := range strings.Split(list, ",") {
			v = strings.TrimSpace(v)
			if v != "" {
				report.Values = append(report.Values, upper(v))
			}
		}
	}
	return report, nil
}

// ParseRSSI decodes a PONG payload, which carries the gateway's WiFi
// signal strength in dBm.
func (m Message) ParseRSSI() (int, bool) {
	rssi, err := strconv.Atoi(strings.TrimSpace(m.Payload))
	if err != nil {
		return 0, false
	}
	return rssi, true
}
