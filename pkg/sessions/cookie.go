package sessions

import (
	"net/http"
	"time"
)

// CookieName is the fixed name of the session cookie.
const CookieName = "lms_session"

// CookieSetter writes the session cookie. It is always HttpOnly and
// SameSite=Strict; Secure is set in production.
type CookieSetter struct {
	Path   string
	Secure bool
}

func NewCookieSetter(secure bool) *CookieSetter {
	return &CookieSetter{Path: "/", Secure: secure}
}

func (c *CookieSetter) Set(w http.ResponseWriter, sess *Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    sess.ID,
		Path:     c.Path,
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (c *CookieSetter) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     c.Path,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// FromRequest returns the session id carried by the request, if any.
func FromRequest(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}
