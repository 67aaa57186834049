package log

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Trace files are streams of self-delimiting CBOR records, one per
// Event, using integer struct keys. A traced session produces two
// records per protocol line plus state changes, so the encoding is
// tuned for record size and deterministic output, not readability.
var (
	traceEnc cbor.EncMode
	traceDec cbor.DecMode
)

func init() {
	var err error
	traceEnc, err = cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("trace encoder mode: %v", err))
	}

	// The decoder is looser than the encoder: a trace file written by
	// an older build should still read back.
	traceDec, err = cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("trace decoder mode: %v", err))
	}
}

// EncodeEvent serializes one event to a standalone CBOR record.
func EncodeEvent(event Event) ([]byte, error) {
	return traceEnc.Marshal(event)
}

// DecodeEvent parses a record produced by EncodeEvent.
func DecodeEvent(data []byte) (Event, error) {
	var event Event
	if err := traceDec.Unmarshal(data, &event); err != nil {
		return Event{}, err
	}
	return event, nil
}
