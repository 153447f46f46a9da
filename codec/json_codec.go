package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// JSONCodec is the default codec. Envelopes and values are plain encoding/json documents, so
// a frame can be inspected with any JSON tool; []byte fields of the envelope appear as base64.
type JSONCodec struct{}

func (c *JSONCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Decode reads exactly one document from data. Anything after it is an error, a payload is
// never a stream. Numbers landing in an interface keep their literal as json.Number.
func (c *JSONCodec) Decode(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return fmt.Errorf("trailing data after JSON document")
	}
	return nil
}

func (c *JSONCodec) Type() CodecType {
	return CodecTypeJSON
}
