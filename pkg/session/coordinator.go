package session

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/glorpus-work/srtm1dl/internal/logger"
	"github.com/glorpus-work/srtm1dl/pkg/errors"
	"github.com/glorpus-work/srtm1dl/pkg/http"
	"github.com/glorpus-work/srtm1dl/pkg/metrics"
)

// DefaultLoginURL is the archive's login form.
const DefaultLoginURL = "https://earthexplorer.usgs.gov/login"

const loginFlight = "login"

// Credentials are posted to the login form.
type Credentials struct {
	Username string
	Password string
}

// Coordinator owns the shared cookie session. Downloads hold a Permit while
// they talk to the archive; a login takes the session exclusively, so it
// waits for outstanding permits and blocks new ones until it finishes.
type Coordinator struct {
	sender   http.Sender
	loginURL string
	creds    Credentials
	metrics  *metrics.Metrics

	jar        *Jar
	rw         sync.RWMutex
	flight     singleflight.Group
	generation atomic.Uint64
}

// NewCoordinator creates a coordinator that logs in at loginURL through sender.
// m may be nil.
func NewCoordinator(sender http.Sender, loginURL string, creds Credentials, m *metrics.Metrics) *Coordinator {
	if loginURL == "" {
		loginURL = DefaultLoginURL
	}
	return &Coordinator{
		sender:   sender,
		loginURL: loginURL,
		creds:    creds,
		metrics:  m,
		jar:      NewJar(),
	}
}

// Permit is a shared hold on the session.
type Permit struct {
	c          *Coordinator
	generation uint64
	once       sync.Once
}

// Release gives the permit back. Calling it more than once is a no-op.
func (p *Permit) Release() {
	p.once.Do(p.c.rw.RUnlock)
}

// Generation is the number of completed logins when the permit was taken.
func (p *Permit) Generation() uint64 {
	return p.generation
}

// Acquire blocks while a login is running and returns a shared permit.
func (c *Coordinator) Acquire() *Permit {
	c.rw.RLock()
	return &Permit{c: c, generation: c.generation.Load()}
}

// CurrentCookies returns the Cookie header value for the current session.
func (c *Coordinator) CurrentCookies() string {
	return c.jar.Header()
}

// Generation returns the number of completed logins.
func (c *Coordinator) Generation() uint64 {
	return c.generation.Load()
}

// EnsureLoggedIn performs a login, or waits for the one already in flight.
// The caller must not hold a Permit.
func (c *Coordinator) EnsureLoggedIn(ctx context.Context) error {
	return c.login(ctx, 0, true)
}

// Refresh logs in again unless some login completed after seen, which is
// the generation of the permit that observed the expired session.
// The caller must release that permit first.
func (c *Coordinator) Refresh(ctx context.Context, seen uint64) error {
	if c.generation.Load() != seen {
		logger.Debug("session already refreshed", logger.Fields{"seen": seen})
		return nil
	}
	return c.login(ctx, seen, false)
}

func (c *Coordinator) login(ctx context.Context, seen uint64, always bool) error {
	_, err, shared := c.flight.Do(loginFlight, func() (interface{}, error) {
		c.rw.Lock()
		defer c.rw.Unlock()
		// A flight that started after another one finished sees the newer
		// generation here.
		if !always && c.generation.Load() != seen {
			return nil, nil
		}
		defer c.generation.Add(1)
		return nil, c.runHandshake(ctx)
	})
	if shared {
		logger.Debug("joined in-flight login")
	}
	return err
}

func (c *Coordinator) runHandshake(ctx context.Context) error {
	logger.Info("logging in", logger.Fields{"url": c.loginURL, "user": c.creds.Username})
	err := c.handshake(ctx)
	c.metrics.Login(err)
	if err != nil {
		logger.Error("login failed", logger.Fields{"url": c.loginURL, "error": err.Error()})
		return err
	}
	logger.Success("logged in", logger.Fields{"cookies": c.jar.Len()})
	return nil
}

// handshake fetches the login page for its cookies, then posts the form.
func (c *Coordinator) handshake(ctx context.Context) error {
	page, err := http.NewRequest(http.MethodGet, c.loginURL)
	if err != nil {
		return errors.Auth(err, "parse login url")
	}
	resp, err := c.sender.Send(ctx, page)
	if err != nil {
		return errors.Auth(err, "fetch login page")
	}
	c.jar.Merge(resp.Header.Values(http.HeaderSetCookie))

	form, err := http.NewRequest(http.MethodPost, c.loginURL)
	if err != nil {
		return errors.Auth(err, "parse login url")
	}
	if cookies := c.jar.Header(); cookies != "" {
		form.SetHeader(http.HeaderCookie, cookies)
	}
	form.SetFormField("username", c.creds.Username)
	form.SetFormField("password", c.creds.Password)
	form.SetFormField("rememberMe", "1")
	form.SetFormField("submit", "")

	resp, err = c.sender.Send(ctx, form)
	if err != nil {
		return errors.Auth(err, "post login form")
	}
	c.jar.Merge(resp.Header.Values(http.HeaderSetCookie))
	return nil
}
