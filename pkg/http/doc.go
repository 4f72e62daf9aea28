// Package http implements a minimal HTTP/1.1 client directly on sockets.
//
// This package handles:
//   - One connection per request (plain TCP or crypto/tls), no pooling
//   - Ordered request headers and urlencoded form bodies
//   - Status line and header parsing, with repeated headers kept as lists
//   - Content-Length delimited bodies (no chunked encoding)
//
// # Usage
//
//	req, _ := http.NewRequest(http.MethodGet, "https://example.com/login")
//	req.SetHeader(http.HeaderCookie, jar.Header())
//
//	resp, err := http.NewClient(http.DefaultOptions()).Send(ctx, req)
//	// resp.StatusCode, resp.Header.Values("Set-Cookie"), resp.Body()
package http
