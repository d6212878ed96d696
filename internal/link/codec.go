package link

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("link: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// Config values decode into map[string]any rather than the
		// map[any]any default for untyped targets.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("link: CBOR decoder initialization failed: " + err.Error())
	}
}

func encodeEnvelope(env envelope) ([]byte, error) {
	raw, err := encMode.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode %s envelope: %w", env.Kind, err)
	}

	return raw, nil
}

func decodeEnvelope(raw []byte) (envelope, error) {
	var env envelope
	if err := decMode.Unmarshal(raw, &env); err != nil {
		return envelope{}, fmt.Errorf("decode envelope: %w", err)
	}

	return env, nil
}
