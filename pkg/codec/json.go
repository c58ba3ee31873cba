package codec

import (
	"bytes"
	"encoding/json"
)

// JSONCodec is a codec that uses JSON for marshaling and unmarshaling.
type JSONCodec[T any, U any] struct {
	// UseNumber decodes numbers into json.Number instead of float64.
	UseNumber bool
}

// Decode unmarshals data into a value of type T.
func (c *JSONCodec[T, U]) Decode(data []byte) (T, error) {
	var v T
	if !c.UseNumber {
		err := json.Unmarshal(data, &v)
		return v, err
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return v, err
	}
	if dec.More() {
		return v, &json.SyntaxError{Offset: dec.InputOffset()}
	}
	return v, nil
}

// Encode marshals v to JSON.
func (c *JSONCodec[T, U]) Encode(v U) ([]byte, error) {
	return json.Marshal(v)
}

// ContentType returns "application/json".
func (c *JSONCodec[T, U]) ContentType() string {
	return "application/json"
}

// NewJSONCodec creates a new JSONCodec instance for the specified types.
// T represents the request type and U represents the response type.
func NewJSONCodec[T any, U any]() *JSONCodec[T, U] {
	return &JSONCodec[T, U]{}
}
