package http

import (
	"bytes"
	"io"
	"net/textproto"
)

// Header maps canonical header names to every value received, in order.
type Header map[string][]string

// Add appends value to the values of key.
func (h Header) Add(key, value string) {
	key = textproto.CanonicalMIMEHeaderKey(key)
	h[key] = append(h[key], value)
}

// Get returns the first value of key, or "".
func (h Header) Get(key string) string {
	if v := h[textproto.CanonicalMIMEHeaderKey(key)]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// Values returns all values of key.
func (h Header) Values(key string) []string {
	return h[textproto.CanonicalMIMEHeaderKey(key)]
}

// Has reports whether key was present in the response.
func (h Header) Has(key string) bool {
	_, ok := h[textproto.CanonicalMIMEHeaderKey(key)]
	return ok
}

// Response is a fully read HTTP response. The socket it came from is
// already closed.
type Response struct {
	StatusCode int
	Proto      string
	Header     Header
	body       []byte
}

// NewResponse builds a response from parts; used by tests and fakes.
func NewResponse(code int, header Header, body []byte) *Response {
	if header == nil {
		header = Header{}
	}
	return &Response{StatusCode: code, Proto: "HTTP/1.1", Header: header, body: body}
}

// Body returns a fresh reader over the response payload.
func (r *Response) Body() io.Reader { return bytes.NewReader(r.body) }

// Bytes returns the response payload.
func (r *Response) Bytes() []byte { return r.body }

// ContentLength returns the number of payload bytes read.
func (r *Response) ContentLength() int64 { return int64(len(r.body)) }

// Location returns the redirect target, if any.
func (r *Response) Location() (string, bool) {
	v := r.Header.Get(HeaderLocation)
	return v, r.Header.Has(HeaderLocation)
}
