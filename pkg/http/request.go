package http

import (
	"net/url"
	"strconv"
	"strings"
)

// Method is an HTTP request method supported by the client.
type Method string

// Supported request methods.
const (
	MethodGet  Method = "GET"
	MethodPost Method = "POST"
	MethodPut  Method = "PUT"
)

// Computed header names; callers cannot override them.
const (
	HeaderHost          = "Host"
	HeaderAccept        = "Accept"
	HeaderUserAgent     = "User-Agent"
	HeaderContentType   = "Content-Type"
	HeaderContentLength = "Content-Length"
	HeaderCookie        = "Cookie"
	HeaderLocation      = "Location"
	HeaderSetCookie     = "Set-Cookie"

	formContentType = "application/x-www-form-urlencoded"
)

// Fields is an insertion-ordered string map. Setting an existing key
// replaces its value in place.
type Fields struct {
	keys   []string
	values map[string]string
}

// Set stores value under key.
func (f *Fields) Set(key, value string) {
	if f.values == nil {
		f.values = make(map[string]string)
	}
	if _, ok := f.values[key]; !ok {
		f.keys = append(f.keys, key)
	}
	f.values[key] = value
}

// Get returns the value stored under key.
func (f *Fields) Get(key string) (string, bool) {
	v, ok := f.values[key]
	return v, ok
}

// Len returns the number of entries.
func (f *Fields) Len() int { return len(f.keys) }

// Each calls fn for every entry in insertion order.
func (f *Fields) Each(fn func(key, value string)) {
	for _, k := range f.keys {
		fn(k, f.values[k])
	}
}

// Request is a single outbound HTTP request.
type Request struct {
	URL    *url.URL
	Method Method
	Header Fields
	Form   Fields
}

// NewRequest parses rawURL and returns a request for method.
func NewRequest(method Method, rawURL string) (*Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	return &Request{URL: u, Method: method}, nil
}

// SetHeader adds or replaces a request header.
func (r *Request) SetHeader(key, value string) { r.Header.Set(key, value) }

// SetFormField adds or replaces a form field; any field makes the request
// carry an urlencoded body.
func (r *Request) SetFormField(key, value string) { r.Form.Set(key, value) }

// Body renders the application/x-www-form-urlencoded body, keeping field order.
func (r *Request) Body() string {
	var b strings.Builder
	i := 0
	r.Form.Each(func(k, v string) {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(v))
		i++
	})
	return b.String()
}

// encode renders the request line, headers and body as wire bytes.
func (r *Request) encode(userAgent string) []byte {
	target := r.URL.RequestURI()
	if target == "" {
		target = "/"
	}
	method := r.Method
	if method == "" {
		method = MethodGet
	}
	body := r.Body()

	var b strings.Builder
	b.WriteString(string(method))
	b.WriteByte(' ')
	b.WriteString(target)
	b.WriteString(" HTTP/1.1\r\n")

	r.Header.Each(func(k, v string) {
		if isComputed(k) {
			return
		}
		writeHeader(&b, k, v)
	})
	writeHeader(&b, HeaderHost, r.URL.Host)
	writeHeader(&b, HeaderAccept, "*/*")
	writeHeader(&b, HeaderUserAgent, userAgent)
	if body != "" {
		writeHeader(&b, HeaderContentType, formContentType)
	}
	writeHeader(&b, HeaderContentLength, strconv.Itoa(len(body)))
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}

func writeHeader(b *strings.Builder, k, v string) {
	b.WriteString(k)
	b.WriteString(": ")
	b.WriteString(v)
	b.WriteString("\r\n")
}

func isComputed(name string) bool {
	switch strings.ToLower(name) {
	case "host", "accept", "user-agent", "content-type", "content-length":
		return true
	}
	return false
}
