// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import "github.com/fxamacker/cbor/v2"

// encMode is the CBOR encoder configured with Core Deterministic
// Encoding (RFC 8949 §4.2).
var encMode cbor.EncMode

// decMode accepts standard CBOR. Unknown fields are ignored so older
// binaries can read records written by newer ones.
var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// A class has at most 65535 methods. Anything larger is a
		// damaged record and must not drive an allocation.
		MaxArrayElements: 1 << 17,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v to CBOR using Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}
