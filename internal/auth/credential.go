package auth

import (
	"net/http"
	"strings"
)

// CookieName is the cookie the HTTP application stores the session token in.
const CookieName = "token"

// CredentialFromRequest extracts the session token from the cookie, then the
// Authorization bearer header, then the token query parameter.
func CredentialFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(CookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if header := r.Header.Get("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return r.URL.Query().Get("token")
}
