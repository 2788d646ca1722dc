// Package codec encodes persisted store snapshots as CBOR.
//
// Encoding uses Core Deterministic Encoding (RFC 8949 §4.2) so the same
// snapshot always produces identical bytes, which lets the store skip
// writes when nothing changed.
package codec

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	// core.Date implements encoding.TextMarshaler; encode it as a text
	// string instead of an opaque struct.
	encOptions.TextMarshaler = cbor.TextMarshalerTextString
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType:  reflect.TypeOf(map[string]any(nil)),
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v to deterministic CBOR.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v. Unknown fields are ignored so older
// binaries can read newer snapshots.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}
