package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"fleetrelay/internal/model"
)

// HMACAuthenticator validates HS256-signed session tokens locally. Used when
// the identity service shares a signing secret with the relay instead of
// exposing a validation endpoint.
type HMACAuthenticator struct {
	Secret []byte
}

func NewHMACAuthenticator(secret []byte) *HMACAuthenticator {
	return &HMACAuthenticator{Secret: secret}
}

func (a *HMACAuthenticator) Authenticate(_ context.Context, token string) (model.Session, error) {
	segs := strings.Split(token, ".")
	if len(segs) != 3 {
		return model.Session{}, ErrInvalidToken
	}
	headerJSON, err := b64urlDecode(segs[0])
	if err != nil {
		return model.Session{}, ErrInvalidToken
	}
	payloadJSON, err := b64urlDecode(segs[1])
	if err != nil {
		return model.Session{}, ErrInvalidToken
	}
	sig, err := b64urlDecode(segs[2])
	if err != nil {
		return model.Session{}, ErrInvalidToken
	}
	var hdr map[string]any
	if err := json.Unmarshal(headerJSON, &hdr); err != nil {
		return model.Session{}, ErrInvalidToken
	}
	if alg, _ := hdr["alg"].(string); alg != "HS256" {
		return model.Session{}, ErrInvalidToken
	}
	mac := hmac.New(sha256.New, a.Secret)
	mac.Write([]byte(segs[0] + "." + segs[1]))
	if !hmac.Equal(mac.Sum(nil), sig) {
		return model.Session{}, ErrInvalidToken
	}
	var claims map[string]any
	if err := json.Unmarshal(payloadJSON, &claims); err != nil {
		return model.Session{}, ErrInvalidToken
	}
	if exp, ok := claims["exp"].(float64); ok && time.Now().Unix() >= int64(exp) {
		return model.Session{}, ErrInvalidToken
	}
	user, _ := claims["sub"].(string)
	org, _ := claims["org"].(string)
	channel, _ := claims["channel"].(string)
	if user == "" || org == "" {
		return model.Session{}, ErrInvalidToken
	}
	if channel == "" {
		channel = ChannelForOrg(org)
	}
	return model.Session{UserID: user, OrgID: org, Channel: channel, IssuedAt: time.Now().UTC()}, nil
}

func b64urlDecode(s string) ([]byte, error) { return base64.RawURLEncoding.DecodeString(s) }
