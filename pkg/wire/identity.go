package wire

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// modelFamilyPattern matches models of the supported WMP family, such as
// MH-AC-WMP-1 or IS-IR-WMP-1. Replies from other device families share the
// discovery port and must be ignored.
var modelFamilyPattern = regexp.MustCompile(`^[A-Z0-9]+-[A-Z0-9]+-WMP-[0-9]+$`)

// IsSupportedModel reports whether the model string belongs to the WMP
// device family this client speaks to.
func IsSupportedModel(model string) bool {
	return modelFamilyPattern.MatchString(upper(strings.TrimSpace(model)))
}

// Identity is the decoded payload of an ID response:
//
//	ID:<model>,<mac>,<ip>,<proto>,<fw>,<rssi>,<name>,<flags>
type Identity struct {
	Model    string
	MAC      string
	IP       string
	Protocol string
	Firmware string
	RSSI     int
	Name     string
	Flags    string
}

// ParseIdentity decodes an ID payload.
func ParseIdentity(payload string) (Identity, error) {
	fields := strings.Split(payload, ",")
	if len(fields) < 6 {
		return Identity{}, fmt.Errorf("%w: ID payload %q", ErrMalformedLine, payload)
	}

	id := Identity{
		Model:    strings.TrimSpace(fields[0]),
		MAC:      NormalizeMAC(fields[1]),
		IP:       strings.TrimSpace(fields[2]),
		Protocol: upper(strings.TrimSpace(fields[3])),
		Firmware: strings.TrimSpace(fields[4]),
	}
	id.RSSI, _ = strconv.Atoi(strings.TrimSpace(fields[5]))
	if len(fields) > 6 {
		id.Name = strings.TrimSpace(fields[6])
	}
	if len(fields) > 7 {
		id.Flags = strings.TrimSpace(fields[7])
	}
	return id, nil
}

// DiscoveryRecord is one decoded UDP discovery reply:
//
//	DISCOVER:<model>,<mac>,<ip>,<proto>,<fw>,<rssi>,<name>,<flags>,<count>
//
// It is transient: records are consumed immediately by the connection
// manager or the provisioning collaborator and never stored.
type DiscoveryRecord struct {
	Model     string
	MAC       string
	IP        string
	Protocol  string
	Firmware  string
	RSSI      int
	Name      string
	Flags     string
	UnitCount int
}

// Compatible reports whether the record is a gateway this client can
// control: supported model family and ASCII protocol tag.
func (r DiscoveryRecord) Compatible() bool {
	return r.Protocol == ProtocolTag && IsSupportedModel(r.Model)
}

// ParseDiscoveryReply decodes one discovery datagram. The datagram must
// be a DISCOVER line; any other content is a foreign reply.
func ParseDiscoveryReply(datagram string) (DiscoveryRecord, error) {
	msg, err := Parse(datagram)
	if err != nil {
		return DiscoveryRecord{}, err
	}
	if msg.Type != TypeDiscover {
		return DiscoveryRecord{}, fmt.Errorf("%w: not a DISCOVER reply: %q", ErrMalformedLine, datagram)
	}

	fields := msg.Fields()
	if len(fields) < 4 {
		return DiscoveryRecord{}, fmt.Errorf("%w: DISCOVER payload %q", ErrMalformedLine, msg.Payload)
	}

	rec := DiscoveryRecord{
		Model:    strings.TrimSpace(fields[0]),
		MAC:      NormalizeMAC(fields[1]),
		IP:       strings.TrimSpace(fields[2]),
		Protocol: upper(strings.TrimSpace(fields[3])),
	}
	if len(fields) > 4 {
		rec.Firmware = strings.TrimSpace(fields[4])
	}
	if len(fields) > 5 {
		rec.RSSI, _ = strconv.Atoi(strings.TrimSpace(fields[5]))
	}
	if len(fields) > 6 {
		rec.Name = strings.TrimSpace(fields[6])
	}
	if len(fields) > 7 {
		rec.Flags = strings.TrimSpace(fields[7])
	}
	if len(fields) > 8 {
		rec.UnitCount, _ = strconv.Atoi(strings.TrimSpace(fields[8]))
	}
	return rec, nil
}

// NormalizeMAC canonicalizes a hardware identifier: uppercase hex with
// separators stripped, so "cc:3f:1d:01:63:d5" and "CC3F1D0163D5" compare
// equal.
func NormalizeMAC(mac string) string {
	var b strings.Builder
	for _, c := range strings.TrimSpace(mac) {
		switch {
		case c >= '0' && c <= '9', c >= 'A' && c <= 'F':
			b.WriteRune(c)
		case c >= 'a' && c <= 'f':
			b.WriteRune(c - 'a' + 'A')
		case c == ':' || c == '-' || c == '.':
			// separator, skip
		default:
			// Not hex: keep verbatim so foreign identifiers stay distinct.
			b.WriteRune(c)
		}
	}
	return b.String()
}
