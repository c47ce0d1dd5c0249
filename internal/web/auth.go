package web

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// authorizeRequest checks the optional access token. Token may arrive as
// a query parameter (websocket clients cannot always set headers) or a
// bearer header.
func (s *Server) authorizeRequest(r *http.Request) bool {
	if s.cfg.Token == "" {
		return true
	}

	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" && secureEqual(token, s.cfg.Token) {
		return true
	}

	const bearerPrefix = "Bearer "
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(header, bearerPrefix) {
		token := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
		if token != "" && secureEqual(token, s.cfg.Token) {
			return true
		}
	}
	return false
}

func secureEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
