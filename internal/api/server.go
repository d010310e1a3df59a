// Package api implements the HTTP surface of the relay: the websocket
// endpoint, the location ingest/read endpoint, and operational handlers.
package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"fleetrelay/internal/audit"
	"fleetrelay/internal/auth"
	"fleetrelay/internal/config"
	"fleetrelay/internal/relay"
	"fleetrelay/internal/store"
)

type Server struct {
	Cfg      config.Config
	Store    store.Store
	Auth     auth.Authenticator
	Registry *relay.Registry
	Source   relay.EventSource
	Audit    *audit.Logger
}

// NewServer wires the relay from configuration. With no DATABASE_URL the
// in-memory store is used; with no REDIS_URL the in-process change source.
func NewServer() (*Server, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	return NewServerWithConfig(cfg)
}

func NewServerWithConfig(cfg config.Config) (*Server, error) {
	var s store.Store
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		s = store.NewMemory()
	} else {
		sp, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		s = sp
	}
	authn, err := auth.FromConfig(cfg)
	if err != nil {
		return nil, err
	}
	log := audit.NewFromEnv()
	var src relay.EventSource
	if cfg.RedisURL != "" {
		rs, err := relay.NewRedisSource(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		src = rs
	} else {
		src = relay.NewChanSource()
	}
	return &Server{
		Cfg:      cfg,
		Store:    s,
		Auth:     authn,
		Registry: relay.NewRegistry(log),
		Source:   src,
		Audit:    log,
	}, nil
}

// NewBridge builds the change-event bridge over the configured source.
func (s *Server) NewBridge() *relay.Bridge {
	return relay.NewBridge(s.Source, s.Registry, s.Audit)
}

// NewRelayConn builds the per-connection state machine with its own inbound
// rate limiter.
func (s *Server) NewRelayConn(ws *websocket.Conn) *relay.Conn {
	limiter := rate.NewLimiter(rate.Limit(s.Cfg.RateRPS), s.Cfg.RateBurst)
	return relay.NewConn(ws, s.Registry, s.Auth, s.Audit, limiter)
}

// bearerToken extracts the session token from the Authorization header.
func bearerToken(r *http.Request) string {
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return strings.TrimSpace(authz[len("Bearer "):])
	}
	return ""
}
