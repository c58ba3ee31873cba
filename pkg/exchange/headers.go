package exchange

import (
	"bytes"
	"net/http"
	"sort"
	"strings"
)

// Header is a single raw header pair as it travels through the protocol.
type Header struct {
	Key   []byte
	Value []byte
}

// Headers is an ordered list of raw header pairs.
// Unlike http.Header it preserves the order in which pairs were added and allows
// repeated keys with different casing.
type Headers []Header

// Get returns the value of the first header whose key matches name, ignoring
// ASCII case. It returns an empty string if no such header exists.
func (h Headers) Get(name string) string {
	for _, hdr := range h {
		if equalFold(hdr.Key, name) {
			return string(hdr.Value)
		}
	}
	return ""
}

// Values returns all values for name, ignoring ASCII case, in header order.
func (h Headers) Values(name string) []string {
	var out []string
	for _, hdr := range h {
		if equalFold(hdr.Key, name) {
			out = append(out, string(hdr.Value))
		}
	}
	return out
}

// Set replaces the value of the first header whose key is byte-for-byte equal
// to key. If there is no such header, a new pair is appended.
// The match is case-sensitive and the position of an existing pair is kept.
func (h *Headers) Set(key, value string) {
	k := []byte(key)
	for i := range *h {
		if bytes.Equal((*h)[i].Key, k) {
			(*h)[i].Value = []byte(value)
			return
		}
	}
	*h = append(*h, Header{Key: k, Value: []byte(value)})
}

// Add appends a new pair without looking for existing ones.
func (h *Headers) Add(key, value string) {
	*h = append(*h, Header{Key: []byte(key), Value: []byte(value)})
}

// Del removes every pair whose key matches name, ignoring ASCII case.
func (h *Headers) Del(name string) {
	out := (*h)[:0]
	for _, hdr := range *h {
		if !equalFold(hdr.Key, name) {
			out = append(out, hdr)
		}
	}
	*h = out
}

// Clone returns a deep copy of the headers.
func (h Headers) Clone() Headers {
	if h == nil {
		return nil
	}
	out := make(Headers, len(h))
	for i, hdr := range h {
		out[i] = Header{
			Key:   append([]byte(nil), hdr.Key...),
			Value: append([]byte(nil), hdr.Value...),
		}
	}
	return out
}

// FromHTTP converts an http.Header into ordered raw headers.
// Keys are lower-cased and emitted in sorted order, since http.Header does not
// keep the order of arrival.
func FromHTTP(header http.Header) Headers {
	keys := make([]string, 0, len(header))
	for k := range header {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(Headers, 0, len(header))
	for _, k := range keys {
		lower := strings.ToLower(k)
		for _, v := range header[k] {
			out = append(out, Header{Key: []byte(lower), Value: []byte(v)})
		}
	}
	return out
}

// ToHTTP converts the raw headers into an http.Header.
func (h Headers) ToHTTP() http.Header {
	out := make(http.Header, len(h))
	for _, hdr := range h {
		out.Add(string(hdr.Key), string(hdr.Value))
	}
	return out
}

func equalFold(key []byte, name string) bool {
	return len(key) == len(name) && strings.EqualFold(string(key), name)
}
