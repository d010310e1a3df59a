package api

import "net/http"

// applyCORS stamps cross-origin headers on every ingest response. The
// dashboard and driver apps are served from other origins, so the endpoint
// is open by default (ALLOW_ORIGINS narrows it).
func (s *Server) applyCORS(w http.ResponseWriter) {
	origins := s.Cfg.AllowOrigins
	if origins == "" {
		origins = "*"
	}
	w.Header().Set("Access-Control-Allow-Origin", origins)
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
}
