package codec

import (
	"reflect"

	"google.golang.org/protobuf/proto"
)

// ProtoCodec is a codec that uses Protocol Buffers for marshaling and unmarshaling.
// T and U must be pointer types implementing proto.Message.
type ProtoCodec[T proto.Message, U proto.Message] struct{}

// Decode unmarshals data into a freshly allocated T.
func (c *ProtoCodec[T, U]) Decode(data []byte) (T, error) {
	var zero T
	msg := reflect.New(reflect.TypeOf(zero).Elem()).Interface().(T)
	if err := proto.Unmarshal(data, msg); err != nil {
		return zero, err
	}
	return msg, nil
}

// Encode marshals v using the binary wire format.
func (c *ProtoCodec[T, U]) Encode(v U) ([]byte, error) {
	return proto.Marshal(v)
}

// ContentType returns "application/x-protobuf".
func (c *ProtoCodec[T, U]) ContentType() string {
	return "application/x-protobuf"
}

// NewProtoCodec creates a new ProtoCodec instance for the specified types.
func NewProtoCodec[T proto.Message, U proto.Message]() *ProtoCodec[T, U] {
	return &ProtoCodec[T, U]{}
}
