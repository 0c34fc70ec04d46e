package docstore

import (
	"fmt"

	"github.com/ugorji/go/codec"
)

// cborHandle is the shared CBOR configuration. Canonical encoding keeps
// the stored bytes stable for identical documents.
var cborHandle = func() *codec.CborHandle {
	h := new(codec.CborHandle)
	h.Canonical = true
	return h
}()

// MarshalDocument encodes a document as CBOR.
func MarshalDocument(v interface{}) ([]byte, error) {
	var buf []byte
	if err := codec.NewEncoderBytes(&buf, cborHandle).Encode(v); err != nil {
		return nil, fmt.Errorf("cbor encode failed: %w", err)
	}
	return buf, nil
}

// UnmarshalDocument decodes a CBOR document.
func UnmarshalDocument(data []byte, v interface{}) error {
	if err := codec.NewDecoderBytes(data, cborHandle).Decode(v); err != nil {
		return fmt.Errorf("cbor decode failed: %w", err)
	}
	return nil
}
