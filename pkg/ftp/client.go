package ftp

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/glorpus-work/srtm1dl/internal/logger"
	"github.com/glorpus-work/srtm1dl/pkg/errors"
)

const (
	// DefaultPort is the FTP control port.
	DefaultPort = 21
	// DefaultConnectTimeout bounds each control and data connect.
	DefaultConnectTimeout = 10 * time.Second

	anonymous = "anonymous"
)

// Reply codes checked during a retrieval.
const (
	CodeServiceReady  = "220"
	CodeNeedPassword  = "331"
	CodeLoggedIn      = "230"
	CodeFileActionOK  = "250"
	CodeEnteringPasv  = "227"
	replyCodeLength   = 3
	dataReadChunkSize = 2048
)

var pasvPattern = regexp.MustCompile(`\(([^)]+)\)`)

// Session holds everything needed for one RETR, derived from an ftp:// URL.
type Session struct {
	User     string
	Password string
	Host     string
	Port     int
	Dir      string
	File     string
}

// ParseURL splits an ftp URL into a Session. The path is split at its last
// slash into directory and file name.
func ParseURL(raw string) (*Session, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrProtocol, "invalid ftp url %q", raw)
	}
	if !strings.EqualFold(u.Scheme, "ftp") {
		return nil, errors.Protocolf("%q is not an ftp url", raw)
	}
	if u.Hostname() == "" {
		return nil, errors.Protocolf("ftp url %q has no host", raw)
	}

	s := &Session{User: anonymous, Password: anonymous, Host: u.Hostname(), Port: DefaultPort}
	if u.User != nil {
		s.User = u.User.Username()
		if p, ok := u.User.Password(); ok {
			s.Password = p
		}
	}
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, errors.Protocolf("invalid port in %q", raw)
		}
		s.Port = port
	}

	idx := strings.LastIndex(u.Path, "/")
	s.File = u.Path[idx+1:]
	if idx > 0 {
		s.Dir = u.Path[:idx]
	} else {
		s.Dir = "/"
	}
	if s.File == "" {
		return nil, errors.Protocolf("ftp url %q names no file", raw)
	}
	return s, nil
}

// Addr returns the control connection address.
func (s *Session) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// ParsePASV extracts the data port from a 227 reply payload such as
// "Entering Passive Mode (192,0,32,8,39,237)".
func ParsePASV(reply string) (string, int, error) {
	m := pasvPattern.FindStringSubmatch(reply)
	if m == nil {
		return "", 0, errors.Protocolf("cannot find address in PASV reply %q", reply)
	}
	parts := strings.Split(m[1], ",")
	if len(parts) != 6 {
		return "", 0, errors.Protocolf("PASV reply %q does not have six fields", reply)
	}
	nums := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 || n > 255 {
			return "", 0, errors.Protocolf("bad field %q in PASV reply", p)
		}
		nums[i] = n
	}
	host := fmt.Sprintf("%d.%d.%d.%d", nums[0], nums[1], nums[2], nums[3])
	return host, nums[4]*256 + nums[5], nil
}

// Options configures the FTP client.
type Options struct {
	// ConnectTimeout for the control and data connections.
	// Default: 10s
	ConnectTimeout time.Duration
}

// Client retrieves single files over FTP in passive mode. It is stateless.
type Client struct {
	opts Options
}

// NewClient creates a new FTP client with the given options.
func NewClient(opts Options) *Client {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	return &Client{opts: opts}
}

// Fetch downloads the file named by rawURL and returns its full contents.
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	s, err := ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	data, err := c.Retrieve(ctx, s)
	if err != nil {
		logger.Error("ftp retrieval failed", logger.Fields{"host": s.Host, "file": s.File, "error": err.Error()})
		return nil, err
	}
	return data, nil
}

// Retrieve runs USER, PASS, CWD, PASV and RETR for s and drains the data
// connection until EOF.
func (c *Client) Retrieve(ctx context.Context, s *Session) ([]byte, error) {
	ctrl, err := c.dial(ctx, s.Addr())
	if err != nil {
		return nil, err
	}
	defer func() { _ = ctrl.Close() }()
	stop := context.AfterFunc(ctx, func() { _ = ctrl.Close() })
	defer stop()

	cc := &controlConn{conn: ctrl, r: bufio.NewReader(ctrl)}

	if _, err := cc.expect(CodeServiceReady); err != nil {
		return nil, err
	}
	steps := []struct {
		cmd  string
		code string
	}{
		{"USER " + s.User, CodeNeedPassword},
		{"PASS " + s.Password, CodeLoggedIn},
		{"CWD " + s.Dir, CodeFileActionOK},
	}
	for _, st := range steps {
		if err := cc.send(st.cmd); err != nil {
			return nil, err
		}
		if _, err := cc.expect(st.code); err != nil {
			return nil, err
		}
	}

	if err := cc.send("PASV"); err != nil {
		return nil, err
	}
	pasv, err := cc.expect(CodeEnteringPasv)
	if err != nil {
		return nil, err
	}
	_, dataPort, err := ParsePASV(pasv)
	if err != nil {
		return nil, err
	}

	if err := cc.send("RETR " + s.File); err != nil {
		return nil, err
	}

	dataAddr := net.JoinHostPort(s.Host, strconv.Itoa(dataPort))
	data, err := c.dial(ctx, dataAddr)
	if err != nil {
		return nil, err
	}
	defer func() { _ = data.Close() }()
	stopData := context.AfterFunc(ctx, func() { _ = data.Close() })
	defer stopData()

	var buf bytes.Buffer
	buf.Grow(dataReadChunkSize)
	if _, err := buf.ReadFrom(data); err != nil {
		return nil, errors.Connection(err, dataAddr)
	}
	logger.Debug("ftp retrieval complete", logger.Fields{"file": s.File, "bytes": buf.Len()})
	return buf.Bytes(), nil
}

func (c *Client) dial(ctx context.Context, addr string) (net.Conn, error) {
	d := &net.Dialer{Timeout: c.opts.ConnectTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Connection(err, addr)
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}
	return conn, nil
}

type controlConn struct {
	conn net.Conn
	r    *bufio.Reader
}

func (cc *controlConn) send(cmd string) error {
	logger.Debug("ftp sent", logger.Fields{"command": redact(cmd)})
	if _, err := cc.conn.Write([]byte(cmd + "\r\n")); err != nil {
		return errors.Connection(err, "ftp control")
	}
	return nil
}

// expect reads one (possibly multi-line) reply and checks its code.
func (cc *controlConn) expect(code string) (string, error) {
	got, text, err := cc.readReply()
	if err != nil {
		return "", err
	}
	logger.Debug("ftp received", logger.Fields{"code": got, "text": text})
	if got != code {
		return "", errors.Protocolf("unexpected status code: %s (wanted %s)", got, code)
	}
	return text, nil
}

func (cc *controlConn) readReply() (string, string, error) {
	line, err := cc.readLine()
	if err != nil {
		return "", "", err
	}
	if len(line) < replyCodeLength {
		return "", "", errors.Protocolf("short ftp reply %q", line)
	}
	code := line[:replyCodeLength]
	if !isReplyCode(code) {
		return "", "", errors.Protocolf("malformed ftp reply %q", line)
	}
	if len(line) > replyCodeLength && line[replyCodeLength] != ' ' && line[replyCodeLength] != '-' {
		return "", "", errors.Protocolf("malformed ftp reply %q", line)
	}
	if len(line) > replyCodeLength && line[replyCodeLength] == '-' {
		var text strings.Builder
		text.WriteString(line[replyCodeLength+1:])
		for {
			next, err := cc.readLine()
			if err != nil {
				return "", "", err
			}
			if strings.HasPrefix(next, code+" ") || next == code {
				text.WriteByte('\n')
				text.WriteString(strings.TrimPrefix(next, code+" "))
				return code, text.String(), nil
			}
			text.WriteByte('\n')
			text.WriteString(next)
		}
	}
	return code, strings.TrimSpace(line[replyCodeLength:]), nil
}

func isReplyCode(code string) bool {
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

func (cc *controlConn) readLine() (string, error) {
	line, err := cc.r.ReadString('\n')
	if err != nil {
		return "", errors.Connection(err, "ftp control")
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func redact(cmd string) string {
	if strings.HasPrefix(cmd, "PASS ") {
		return "PASS ****"
	}
	return cmd
}
