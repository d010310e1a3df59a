// Package auth validates opaque session tokens and resolves them to sessions.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"fleetrelay/internal/config"
	"fleetrelay/internal/model"
)

// ErrInvalidToken is returned for missing, malformed, or expired tokens.
// Validation failures are never retried by the relay.
var ErrInvalidToken = errors.New("invalid session token")

// Authenticator resolves a session token to a Session, or fails.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (model.Session, error)
}

// FromConfig selects an Authenticator implementation by mode.
func FromConfig(cfg config.Config) (Authenticator, error) {
	switch strings.ToLower(cfg.AuthMode) {
	case "url":
		if cfg.AuthURL == "" {
			return nil, errors.New("auth mode url requires AUTH_URL")
		}
		return NewHTTPAuthenticator(cfg.AuthURL), nil
	case "hmac":
		if cfg.HMACSecret == "" {
			return nil, errors.New("auth mode hmac requires AUTH_HMAC_SECRET")
		}
		return NewHMACAuthenticator([]byte(cfg.HMACSecret)), nil
	case "static", "":
		return NewStaticAuthenticator(nil), nil
	default:
		return nil, fmt.Errorf("unsupported auth mode: %s", cfg.AuthMode)
	}
}

// ChannelForOrg names the broadcast channel for an organization.
func ChannelForOrg(orgID string) string { return "org:" + orgID }

// HTTPAuthenticator validates tokens with a single call to an external
// identity service. One POST per token, no retries.
type HTTPAuthenticator struct {
	URL  string
	http *http.Client
}

func NewHTTPAuthenticator(url string) *HTTPAuthenticator {
	return &HTTPAuthenticator{URL: url, http: &http.Client{Timeout: 5 * time.Second}}
}

func (a *HTTPAuthenticator) Authenticate(ctx context.Context, token string) (model.Session, error) {
	if strings.TrimSpace(token) == "" {
		return model.Session{}, ErrInvalidToken
	}
	body, _ := json.Marshal(map[string]string{"sessionToken": token})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.URL, bytes.NewReader(body))
	if err != nil {
		return model.Session{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.http.Do(req)
	if err != nil {
		return model.Session{}, fmt.Errorf("identity service: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return model.Session{}, ErrInvalidToken
	}
	if resp.StatusCode != http.StatusOK {
		return model.Session{}, fmt.Errorf("identity service: status %d", resp.StatusCode)
	}
	var out struct {
		UserID  string `json:"userId"`
		OrgID   string `json:"orgId"`
		Channel string `json:"channel"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return model.Session{}, fmt.Errorf("identity service: %w", err)
	}
	if out.UserID == "" || out.OrgID == "" {
		return model.Session{}, ErrInvalidToken
	}
	if out.Channel == "" {
		out.Channel = ChannelForOrg(out.OrgID)
	}
	return model.Session{UserID: out.UserID, OrgID: out.OrgID, Channel: out.Channel, IssuedAt: time.Now().UTC()}, nil
}

// StaticAuthenticator resolves tokens from a fixed table; unknown tokens of
// the form org:user are accepted as a dev shorthand.
type StaticAuthenticator struct {
	mu       sync.RWMutex
	sessions map[string]model.Session
}

func NewStaticAuthenticator(seed map[string]model.Session) *StaticAuthenticator {
	if seed == nil {
		seed = map[string]model.Session{}
	}
	return &StaticAuthenticator{sessions: seed}
}

// Add registers a token for later validation.
func (a *StaticAuthenticator) Add(token string, s model.Session) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sessions[token] = s
}

func (a *StaticAuthenticator) Authenticate(_ context.Context, token string) (model.Session, error) {
	a.mu.RLock()
	s, ok := a.sessions[token]
	a.mu.RUnlock()
	if ok {
		if s.Channel == "" {
			s.Channel = ChannelForOrg(s.OrgID)
		}
		if s.IssuedAt.IsZero() {
			s.IssuedAt = time.Now().UTC()
		}
		return s, nil
	}
	// dev shorthand: org:user
	parts := strings.Split(token, ":")
	if len(parts) == 2 && parts[0] != "" && parts[1] != "" {
		return model.Session{
			UserID:   parts[1],
			OrgID:    parts[0],
			Channel:  ChannelForOrg(parts[0]),
			IssuedAt: time.Now().UTC(),
		}, nil
	}
	return model.Session{}, ErrInvalidToken
}
