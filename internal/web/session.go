package web

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

const sessionCookieName = "ytdl_session"

// sessionSigner issues and checks the "<id>.<mac>" session cookie that gates
// the live update socket.
type sessionSigner struct {
	key []byte
}

func newSessionSigner(secret string) *sessionSigner {
	return &sessionSigner{key: []byte(secret)}
}

func (s *sessionSigner) sign(id string) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(id))
	return id + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func (s *sessionSigner) verify(value string) bool {
	id, sig, ok := strings.Cut(value, ".")
	if !ok || id == "" || sig == "" {
		return false
	}
	return hmac.Equal([]byte(s.sign(id)), []byte(value))
}

// ensure sets a fresh cookie unless the request already carries a valid one.
func (s *sessionSigner) ensure(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(sessionCookieName); err == nil && s.verify(c.Value) {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    s.sign(uuid.NewString()),
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
}

func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(sessionCookieName)
		if err != nil || !s.sessions.verify(c.Value) {
			writeJSONError(w, http.StatusUnauthorized, "session required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
