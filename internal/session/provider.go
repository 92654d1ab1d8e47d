// Package session obtains and refreshes the household session used by every
// other component: the OESP token for HTTP API calls and the broker token for
// the MQTT connection.
package session

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

	"ziggonext/internal/clock"
	"ziggonext/internal/metrics"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrAuthenticationFailed is returned for rejected credentials. It is never retried.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrConnectionFailed is returned for network failures, unexpected API answers
	// and API calls that still fail after the retry cap
	ErrConnectionFailed = errors.New("connection failed")
)

const (
	// MaxAPIAttempts caps how often an API call is retried after a token refresh
	MaxAPIAttempts = 10

	// brokerTokenLeeway forces a refetch of the broker token shortly before it expires
	brokerTokenLeeway = time.Minute
)

// Session is the household session. It is replaced wholesale on refresh.
type Session struct {
	HouseholdID string
	Token       string
	LocationID  string
}

// Provider performs the session login and authenticated API calls
type Provider struct {
	baseURL  string
	username string
	password string
	http     *http.Client
	logger   *zap.Logger
	clock    clock.Clock

	mu           sync.RWMutex
	session      *Session
	brokerToken  string
	brokerExpiry time.Time

	refreshGroup singleflight.Group
}

// NewProvider creates a session provider against the OESP API root
func NewProvider(baseURL, username, password string, logger *zap.Logger) *Provider {
	return &Provider{
		baseURL:  baseURL,
		username: username,
		password: password,
		http:     &http.Client{Timeout: 30 * time.Second},
		logger:   logger.Named("session"),
		clock:    clock.NewRealClock(),
	}
}

// WithClock replaces the provider's clock (used in tests)
func (p *Provider) WithClock(c clock.Clock) *Provider {
	p.clock = c
	return p
}

// WithHTTPClient replaces the HTTP client
func (p *Provider) WithHTTPClient(c *http.Client) *Provider {
	p.http = c
	return p
}

type sessionRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Customer struct {
		HouseholdID string `json:"householdId"`
		LocationID  string `json:"locationId"`
	} `json:"customer"`
	OESPToken string `json:"oespToken"`
}

type apiError struct {
	Code string `json:"code"`
}

// GetSession logs in with the configured credentials and stores the new session
func (p *Provider) GetSession(ctx context.Context) (Session, error) {
	body, err := json.Marshal(sessionRequest{Username: p.username, Password: p.password})
	if err != nil {
		return Session{}, fmt.Errorf("failed to encode session request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/session", bytes.NewReader(body))
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Session{}, fmt.Errorf("%w: failed to read session response: %v", ErrConnectionFailed, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errs []apiError
		if json.Unmarshal(data, &errs) == nil && len(errs) > 0 && errs[0].Code == "invalidCredentials" {
			return Session{}, ErrAuthenticationFailed
		}
		p.logger.Debug("Session request rejected",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", data))
		return Session{}, fmt.Errorf("%w: session request returned %d", ErrConnectionFailed, resp.StatusCode)
	}

	var sr sessionResponse
	if err := json.Unmarshal(data, &sr); err != nil {
		return Session{}, fmt.Errorf("%w: invalid session response: %v", ErrConnectionFailed, err)
	}
	if sr.Customer.HouseholdID == "" || sr.OESPToken == "" {
		return Session{}, fmt.Errorf("%w: session response without household or token", ErrConnectionFailed)
	}

	s := &Session{
		HouseholdID: sr.Customer.HouseholdID,
		Token:       sr.OESPToken,
		LocationID:  sr.Customer.LocationID,
	}

	p.mu.Lock()
	p.session = s
	p.mu.Unlock()

	metrics.SessionRefreshes.Inc()
	p.logger.Info("Session obtained", zap.String("household_id", s.HouseholdID))
	return *s, nil
}

// Current returns the stored session, if any
func (p *Provider) Current() (Session, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.session == nil {
		return Session{}, false
	}
	return *p.session, true
}

// Refresh re-authenticates. Concurrent callers share a single login request.
func (p *Provider) Refresh(ctx context.Context) (Session, error) {
	v, err, _ := p.refreshGroup.Do("session", func() (interface{}, error) {
		return p.GetSession(ctx)
	})
	if err != nil {
		return Session{}, err
	}
	return v.(Session), nil
}

func (p *Provider) ensureSession(ctx context.Context) (Session, error) {
	if s, ok := p.Current(); ok {
		return s, nil
	}
	return p.Refresh(ctx)
}

// Get performs an authenticated GET and decodes the JSON answer into out.
// A 403 answer refreshes the session and retries; after MaxAPIAttempts the call
// fails with ErrConnectionFailed.
func (p *Provider) Get(ctx context.Context, url string, out interface{}) error {
	s, err := p.ensureSession(ctx)
	if err != nil {
		return err
	}

	for attempt := 1; attempt <= MaxAPIAttempts; attempt++ {
		status, err := p.get(ctx, url, s, out)
		if err != nil {
			return err
		}
		switch status {
		case http.StatusOK:
			return nil
		case http.StatusForbidden:
			if attempt == MaxAPIAttempts {
				break
			}
			p.logger.Warn("API call returned 403, refreshing session",
				zap.String("url", url),
				zap.Int("attempt", attempt))
			if s, err = p.Refresh(ctx); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: API call returned %d", ErrConnectionFailed, status)
		}
	}

	return fmt.Errorf("%w: API call failed after %d attempts", ErrConnectionFailed, MaxAPIAttempts)
}

func (p *Provider) get(ctx context.Context, url string, s Session, out interface{}) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	req.Header.Set("X-OESP-Token", s.Token)
	req.Header.Set("X-OESP-Username", p.username)

	resp, err := p.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return 0, fmt.Errorf("%w: failed to decode API response: %v", ErrConnectionFailed, err)
		}
	}
	return resp.StatusCode, nil
}

// BrokerCredentials returns the MQTT username (household id) and password (broker
// token). With refresh set, the session and the token are fetched anew.
func (p *Provider) BrokerCredentials(ctx context.Context, refresh bool) (string, string, error) {
	if refresh {
		if _, err := p.Refresh(ctx); err != nil {
			return "", "", err
		}
		p.mu.Lock()
		p.brokerToken = ""
		p.mu.Unlock()
	}

	s, err := p.ensureSession(ctx)
	if err != nil {
		return "", "", err
	}

	p.mu.RLock()
	token, expiry := p.brokerToken, p.brokerExpiry
	p.mu.RUnlock()
	if token != "" && (expiry.IsZero() || p.clock.Until(expiry) > brokerTokenLeeway) {
		return s.HouseholdID, token, nil
	}

	var result struct {
		Token string `json:"token"`
	}
	if err := p.Get(ctx, p.baseURL+"/tokens/jwt", &result); err != nil {
		return "", "", fmt.Errorf("failed to fetch broker token: %w", err)
	}
	if result.Token == "" {
		return "", "", fmt.Errorf("%w: empty broker token", ErrConnectionFailed)
	}

	expiry = tokenExpiry(result.Token)
	p.mu.Lock()
	p.brokerToken = result.Token
	p.brokerExpiry = expiry
	p.mu.Unlock()

	p.logger.Debug("Fetched broker token", zap.Time("expires", expiry))

	// The session may have been refreshed while fetching the token
	if current, ok := p.Current(); ok {
		s = current
	}
	return s.HouseholdID, result.Token, nil
}

// tokenExpiry reads the exp claim without verifying the signature. A token that
// cannot be parsed yields the zero time (unknown expiry).
func tokenExpiry(token string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
