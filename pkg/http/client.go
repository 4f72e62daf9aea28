package http

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-version"

	"github.com/glorpus-work/srtm1dl/internal/logger"
	"github.com/glorpus-work/srtm1dl/pkg/errors"
)

const (
	// DefaultConnectTimeout bounds the TCP (and TLS) connect phase.
	DefaultConnectTimeout = 10 * time.Second
	// DefaultUserAgent is sent with every request.
	DefaultUserAgent = "srtm1dl/1.0"
	// DefaultMaxBodySize is the largest Content-Length accepted.
	DefaultMaxBodySize int64 = 1 << 30
	// initialBodyBuffer caps the up-front allocation for a body.
	initialBodyBuffer = 64 << 10
)

// supportedProto accepts any HTTP/1.x status line.
var supportedProto = mustConstraint(">= 1.0, < 2.0")

func mustConstraint(c string) version.Constraints {
	cs, err := version.NewConstraint(c)
	if err != nil {
		panic(err)
	}
	return cs
}

// Options configures the HTTP client.
type Options struct {
	// ConnectTimeout for establishing the connection.
	// Default: 10s
	ConnectTimeout time.Duration

	// UserAgent header value.
	// Default: srtm1dl/1.0
	UserAgent string

	// TLSConfig is cloned for https requests; ServerName is filled in
	// from the URL when empty.
	TLSConfig *tls.Config

	// MaxBodySize rejects responses announcing a larger Content-Length.
	// Default: 1 GiB
	MaxBodySize int64
}

// DefaultOptions returns options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		ConnectTimeout: DefaultConnectTimeout,
		UserAgent:      DefaultUserAgent,
		MaxBodySize:    DefaultMaxBodySize,
	}
}

// Client speaks HTTP/1.1 directly over a socket. It keeps no state between
// calls and is safe for concurrent use.
type Client struct {
	opts Options
}

// NewClient creates a new HTTP client with the given options.
func NewClient(opts Options) *Client {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = DefaultMaxBodySize
	}
	return &Client{opts: opts}
}

// Send implements Sender. Failures are logged and returned wrapping one of
// errors.ErrProtocol or errors.ErrConnection.
func (c *Client) Send(ctx context.Context, req *Request) (*Response, error) {
	resp, err := c.send(ctx, req)
	if err != nil {
		target := ""
		if req != nil && req.URL != nil {
			target = req.URL.String()
		}
		logger.Error("http request failed", logger.Fields{"url": target, "error": err.Error()})
		return nil, err
	}
	return resp, nil
}

func (c *Client) send(ctx context.Context, req *Request) (*Response, error) {
	if req == nil || req.URL == nil {
		return nil, errors.Protocolf("request has no URL")
	}

	conn, err := c.dial(ctx, req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Close() }()

	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	logger.Debug("sending request", logger.Fields{"method": string(req.Method), "url": req.URL.String()})
	if _, err := conn.Write(req.encode(c.opts.UserAgent)); err != nil {
		return nil, errors.Connection(err, req.URL.Host)
	}

	resp, err := readResponse(bufio.NewReader(conn), c.opts.MaxBodySize)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, errors.Connection(ctxErr, req.URL.Host)
		}
		return nil, err
	}
	logger.Debug("received response", logger.Fields{"url": req.URL.String(), "status": resp.StatusCode, "bytes": len(resp.body)})
	return resp, nil
}

func (c *Client) dial(ctx context.Context, req *Request) (net.Conn, error) {
	var tlsCfg *tls.Config
	port := "80"
	switch strings.ToLower(req.URL.Scheme) {
	case "http":
	case "https":
		port = "443"
		if c.opts.TLSConfig != nil {
			tlsCfg = c.opts.TLSConfig.Clone()
		} else {
			tlsCfg = &tls.Config{}
		}
		if tlsCfg.ServerName == "" {
			tlsCfg.ServerName = req.URL.Hostname()
		}
	default:
		return nil, errors.Protocolf("scheme %q is not http or https", req.URL.Scheme)
	}
	if p := req.URL.Port(); p != "" {
		port = p
	}
	addr := net.JoinHostPort(req.URL.Hostname(), port)

	dialCtx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	defer cancel()

	netDialer := &net.Dialer{Timeout: c.opts.ConnectTimeout}
	var (
		conn net.Conn
		err  error
	)
	if tlsCfg != nil {
		conn, err = (&tls.Dialer{NetDialer: netDialer, Config: tlsCfg}).DialContext(dialCtx, "tcp", addr)
	} else {
		conn, err = netDialer.DialContext(dialCtx, "tcp", addr)
	}
	if err != nil {
		return nil, errors.Connection(err, addr)
	}
	return conn, nil
}

// readResponse parses a status line, headers and a Content-Length body of
// at most maxBody bytes.
func readResponse(br *bufio.Reader, maxBody int64) (*Response, error) {
	line, err := readLine(br)
	if err != nil {
		if err == io.EOF {
			return nil, errors.Protocolf("connection closed before status line")
		}
		return nil, errors.Connection(err, "read status line")
	}
	proto, code, err := parseStatusLine(line)
	if err != nil {
		return nil, err
	}

	header := Header{}
	for {
		line, err := readLine(br)
		if err != nil {
			if err == io.EOF {
				return nil, errors.Protocolf("connection closed inside headers")
			}
			return nil, errors.Connection(err, "read headers")
		}
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, ": ")
		if !ok {
			return nil, errors.Protocolf("malformed header line %q", line)
		}
		header.Add(name, value)
	}

	var body []byte
	if cl := header.Get(HeaderContentLength); cl != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(cl), 10, 64)
		if err != nil || n < 0 {
			return nil, errors.Protocolf("invalid Content-Length %q", cl)
		}
		if n > maxBody {
			return nil, errors.Protocolf("Content-Length %d exceeds limit of %d bytes", n, maxBody)
		}
		var buf bytes.Buffer
		buf.Grow(int(min(n, initialBodyBuffer)))
		if _, err := io.CopyN(&buf, br, n); err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, errors.Connection(err, "read body")
		}
		body = buf.Bytes()
	}

	return &Response{StatusCode: code, Proto: proto, Header: header, body: body}, nil
}

// parseStatusLine splits "HTTP/1.1 200 OK" on its first two spaces.
func parseStatusLine(line string) (string, int, error) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		return "", 0, errors.Protocolf("malformed status line %q", line)
	}
	if err := checkProto(parts[0]); err != nil {
		return "", 0, err
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil || len(parts[1]) != 3 {
		return "", 0, errors.Protocolf("malformed status code in %q", line)
	}
	return parts[0], code, nil
}

func checkProto(proto string) error {
	raw, ok := strings.CutPrefix(proto, "HTTP/")
	if !ok {
		return errors.Protocolf("unknown protocol %q", proto)
	}
	v, err := version.NewVersion(raw)
	if err != nil {
		return errors.Protocolf("unknown protocol version %q", proto)
	}
	if !supportedProto.Check(v) {
		return errors.Protocolf("unsupported protocol version %q", proto)
	}
	return nil
}

func readLine(br *bufio.Reader) (string, error) {
	line, err := br.ReadString('\n')
	if err != nil {
		if err == io.EOF && line != "" {
			return strings.TrimRight(line, "\r\n"), nil
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
