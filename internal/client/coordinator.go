// Package client implements the calling-side half of the credential
// lifecycle: a http.Client wrapper that renews the token pair on 401,
// collapsing concurrent renewals into a single refresh call.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrSessionExpired means the refresh credential is no longer accepted
// and a full re-login is required. Once returned, every subsequent call
// fails the same way until SetCredentials is called again.
var ErrSessionExpired = errors.New("client: session expired")

const defaultRotateTimeout = 10 * time.Second

// Coordinator owns one credential pair and replays 401-rejected requests
// after renewing it. Any number of goroutines may call Do concurrently;
// a burst of 401s produces exactly one refresh round-trip.
type Coordinator struct {
	base string
	hc   *http.Client

	mu      sync.Mutex
	access  string
	refresh string
	expired bool

	sf            singleflight.Group
	rotateTimeout time.Duration
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithHTTPClient swaps the underlying transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Coordinator) {
		if hc != nil {
			c.hc = hc
		}
	}
}

// WithRotateTimeout bounds the refresh round-trip.
func WithRotateTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.rotateTimeout = d
		}
	}
}

// New builds a Coordinator talking to the API at baseURL.
func New(baseURL string, opts ...Option) *Coordinator {
	c := &Coordinator{
		base:          baseURL,
		hc:            &http.Client{Timeout: 30 * time.Second},
		rotateTimeout: defaultRotateTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetCredentials installs a fresh token pair, clearing any prior
// session-expired state.
func (c *Coordinator) SetCredentials(accessToken, refreshToken string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.access = accessToken
	c.refresh = refreshToken
	c.expired = false
}

func (c *Coordinator) snapshot() (access, refresh string, expired bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.access, c.refresh, c.expired
}

// Do sends the request with the current access credential and, on a 401,
// renews the pair and replays the request exactly once. Requests with a
// body must set GetBody so the replay can rewind it (http.NewRequest
// does this for common body types).
func (c *Coordinator) Do(req *http.Request) (*http.Response, error) {
	if req.Body != nil && req.GetBody == nil {
		return nil, errors.New("client: request body is not replayable, set GetBody")
	}

	access, _, expired := c.snapshot()
	if expired {
		return nil, ErrSessionExpired
	}

	resp, err := c.send(req, access)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	// The access credential was rejected; renew and replay once.
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	access, err = c.renew(req.Context(), access)
	if err != nil {
		return nil, err
	}
	return c.send(req, access)
}

// renew collapses concurrent renewals: the first caller performs the
// refresh round-trip, everyone else waits for its outcome. staleAccess
// is the credential that just got rejected; if another goroutine already
// renewed past it the current pair is reused without a network call.
func (c *Coordinator) renew(ctx context.Context, staleAccess string) (string, error) {
	v, err, _ := c.sf.Do("rotate", func() (any, error) {
		access, refresh, expired := c.snapshot()
		if expired {
			return nil, ErrSessionExpired
		}
		if access != "" && access != staleAccess {
			// Already renewed by a concurrent caller.
			return access, nil
		}
		pair, err := c.rotate(ctx, refresh)
		if err != nil {
			// Renewal failure is terminal for the session. Latch so
			// every in-flight and future caller sees the same outcome.
			c.mu.Lock()
			c.access, c.refresh = "", ""
			c.expired = true
			c.mu.Unlock()
			return nil, ErrSessionExpired
		}
		c.SetCredentials(pair.AccessToken, pair.RefreshToken)
		return pair.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

type tokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func (c *Coordinator) rotate(ctx context.Context, refreshToken string) (*tokenPair, error) {
	if refreshToken == "" {
		return nil, errors.New("no refresh token")
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.rotateTimeout)
	defer cancel()

	body, _ := json.Marshal(map[string]string{"refresh_token": refreshToken})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/v1/auth/refresh", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("refresh rejected: status %d", resp.StatusCode)
	}

	var pair tokenPair
	if err := json.NewDecoder(resp.Body).Decode(&pair); err != nil {
		return nil, err
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		return nil, errors.New("refresh response missing tokens")
	}
	return &pair, nil
}

// send clones the request (rewinding the body via GetBody) and attaches
// the bearer credential.
func (c *Coordinator) send(req *http.Request, access string) (*http.Response, error) {
	out := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		out.Body = body
	}
	if access != "" {
		out.Header.Set("Authorization", "Bearer "+access)
	}
	return c.hc.Do(out)
}
