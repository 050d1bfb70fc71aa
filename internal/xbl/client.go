// Package xbl polls the Xbox Live presence service for one user.
//
// Token acquisition is out of scope: the Authorization header value
// ("XBL3.0 x=<uhs>;<token>") comes from config or from a token file that an
// external tool keeps fresh. The file is re-read on every request.
package xbl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"tools.zach/dev/presencewatch/internal/presence"
)

// ///////////////////////////////////////////////
// Errors
// ///////////////////////////////////////////////

// ErrorKind classifies a [PollError].
type ErrorKind string

const (
	// KindNetwork covers transport failures and timeouts.
	KindNetwork ErrorKind = "network"
	// KindAuth covers missing or rejected credentials.
	KindAuth ErrorKind = "auth"
	// KindStatus covers unexpected HTTP status codes.
	KindStatus ErrorKind = "status"
	// KindDecode covers malformed response bodies.
	KindDecode ErrorKind = "decode"
)

// PollError is returned for every failed request. Its message starts with
// the kind so that notifications can tell auth failures apart.
type PollError struct {
	Kind ErrorKind
	// Status is the HTTP status code, when a response was received.
	Status int
	Err    error
}

func (e *PollError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: HTTP %d: %v", e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *PollError) Unwrap() error { return e.Err }

// ///////////////////////////////////////////////
// Client
// ///////////////////////////////////////////////

// Config configures a [Client].
type Config struct {
	// PresenceURL contains a {xuid} placeholder.
	PresenceURL string
	// ProfileURL contains a {gamertag} placeholder.
	ProfileURL string
	// Gamertag is used to resolve the XUID when XUID is empty.
	Gamertag string
	XUID     string
	// Authorization is a literal header value. TokenFile takes precedence
	// when set.
	Authorization string
	TokenFile     string
	Timeout       time.Duration
	RetryMax      int
}

// Client fetches presence for one user. It implements the monitor's poller.
type Client struct {
	cfg  Config
	http *retryablehttp.Client
	xuid string
}

// New returns a client for cfg. Call [Client.ResolveXUID] before polling
// when cfg.XUID is empty.
func New(cfg Config) *Client {
	hc := retryablehttp.NewClient()
	hc.RetryMax = cfg.RetryMax
	hc.RetryWaitMin = time.Second
	hc.RetryWaitMax = 5 * time.Second
	hc.HTTPClient.Timeout = cfg.Timeout
	hc.Logger = nil // suppress retryablehttp's default logging
	hc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return &Client{cfg: cfg, http: hc, xuid: cfg.XUID}
}

// XUID returns the resolved user ID.
func (c *Client) XUID() string { return c.xuid }

// ResolveXUID looks up the XUID for the configured gamertag unless one is
// already known.
func (c *Client) ResolveXUID(ctx context.Context) (string, error) {
	if c.xuid != "" {
		return c.xuid, nil
	}
	if c.cfg.Gamertag == "" {
		return "", errors.New("neither xuid nor gamertag configured")
	}

	u := strings.ReplaceAll(c.cfg.ProfileURL, "{gamertag}", url.PathEscape(c.cfg.Gamertag))
	var resp profileResponse
	if err := c.get(ctx, u, "2", &resp); err != nil {
		return "", fmt.Errorf("resolving xuid for %q: %w", c.cfg.Gamertag, err)
	}
	if len(resp.ProfileUsers) == 0 || resp.ProfileUsers[0].ID == "" {
		return "", fmt.Errorf("resolving xuid for %q: %w", c.cfg.Gamertag,
			&PollError{Kind: KindDecode, Err: errors.New("profile response has no users")})
	}
	c.xuid = resp.ProfileUsers[0].ID
	slog.Info("resolved xuid", "gamertag", c.cfg.Gamertag, "xuid", c.xuid)
	return c.xuid, nil
}

// Poll fetches the current presence. Errors are always *PollError.
func (c *Client) Poll(ctx context.Context) (presence.RawSnapshot, error) {
	if c.xuid == "" {
		return presence.RawSnapshot{}, &PollError{Kind: KindAuth, Err: errors.New("xuid not resolved")}
	}
	u := strings.ReplaceAll(c.cfg.PresenceURL, "{xuid}", url.PathEscape(c.xuid))

	var resp presenceResponse
	if err := c.get(ctx, u, "3", &resp); err != nil {
		return presence.RawSnapshot{}, err
	}
	snap := resp.snapshot()
	slog.Debug("presence polled", "state", snap.State, "title", snap.Title,
		"last_seen", resp.LastSeen.TitleName)
	return snap, nil
}

// authorization returns the header value, reading the token file if set.
func (c *Client) authorization() (string, error) {
	if c.cfg.TokenFile != "" {
		data, err := os.ReadFile(c.cfg.TokenFile)
		if err != nil {
			return "", fmt.Errorf("reading token file: %w", err)
		}
		if tok := strings.TrimSpace(string(data)); tok != "" {
			return tok, nil
		}
		return "", fmt.Errorf("token file %s is empty", c.cfg.TokenFile)
	}
	if c.cfg.Authorization == "" {
		return "", errors.New("no authorization configured")
	}
	return c.cfg.Authorization, nil
}

// get performs one GET and decodes the JSON body into out.
func (c *Client) get(ctx context.Context, u, contract string, out any) error {
	auth, err := c.authorization()
	if err != nil {
		return &PollError{Kind: KindAuth, Err: err}
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return &PollError{Kind: KindNetwork, Err: err}
	}
	req.Header.Set("Authorization", auth)
	req.Header.Set("x-xbl-contract-version", contract)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", "en-US")

	resp, err := c.http.Do(req)
	if err != nil {
		return &PollError{Kind: KindNetwork, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &PollError{Kind: KindNetwork, Status: resp.StatusCode, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &PollError{Kind: KindAuth, Status: resp.StatusCode, Err: errors.New("authorization rejected")}
	case resp.StatusCode != http.StatusOK:
		return &PollError{Kind: KindStatus, Status: resp.StatusCode, Err: fmt.Errorf("unexpected response %q", snippet(body))}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &PollError{Kind: KindDecode, Status: resp.StatusCode, Err: err}
	}
	return nil
}

// snippet returns the start of body for error messages.
func snippet(body []byte) string {
	const limit = 120
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
