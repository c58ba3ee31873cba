// Package codec provides encoding and decoding of request and response bodies.
// Codecs work on raw bytes so the same codec can decode a body that was already
// buffered by an interceptor and encode a response frame.
package codec

// Decoder turns raw body bytes into a value of type T.
type Decoder[T any] interface {
	Decode(data []byte) (T, error)
}

// Encoder turns a value of type U into raw body bytes.
type Encoder[U any] interface {
	Encode(v U) ([]byte, error)

	// ContentType is the media type of the encoded bytes.
	ContentType() string
}

// Codec decodes requests of type T and encodes responses of type U.
type Codec[T any, U any] interface {
	Decoder[T]
	Encoder[U]
}
