package connection

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"

	"github.com/rickgao/pricewatch/internal/transport"
)

// Codec selects the wire form for structured sends.
type Codec string

const (
	CodecJSON Codec = "json" // Text frames
	CodecCBOR Codec = "cbor" // Binary frames
)

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort: cbor.SortCanonical,
		Time: cbor.TimeRFC3339Nano,
	}
	cborEnc, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR encoder mode: %v", err))
	}

	// Decode maps with string keys so values look like decoded JSON.
	decOpts := cbor.DecOptions{
		DupMapKey:      cbor.DupMapKeyQuiet,
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}
	cborDec, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR decoder mode: %v", err))
	}
}

// encodePayload converts an application value to a wire payload.
// Strings go out as text and byte slices as binary; anything else is
// serialized with codec.
func encodePayload(codec Codec, v any) (transport.Payload, error) {
	switch x := v.(type) {
	case transport.Payload:
		return x, nil
	case string:
		return transport.Text(x), nil
	case json.RawMessage:
		return transport.Payload{Kind: transport.KindText, Data: x}, nil
	case []byte:
		return transport.Binary(x), nil
	}

	switch codec {
	case CodecCBOR:
		data, err := cborEnc.Marshal(v)
		if err != nil {
			return transport.Payload{}, fmt.Errorf("encode cbor: %w", err)
		}
		return transport.Binary(data), nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return transport.Payload{}, fmt.Errorf("encode json: %w", err)
		}
		return transport.Payload{Kind: transport.KindText, Data: data}, nil
	}
}

// decodePayload parses text as JSON and binary as CBOR. On failure it
// returns the raw string or bytes and false.
func decodePayload(p transport.Payload) (any, bool) {
	var v any
	if p.Kind == transport.KindBinary {
		if err := cborDec.Unmarshal(p.Data, &v); err != nil {
			return p.Data, false
		}
		return v, true
	}

	if err := json.Unmarshal(p.Data, &v); err != nil {
		return string(p.Data), false
	}
	return v, true
}
