package auth

import (
	"net/http"
	"time"
)

// DefaultSessionCookieName matches the cookie the frontend already expects
const DefaultSessionCookieName = "token"

// CookieConfig holds cookie configuration settings
type CookieConfig struct {
	Name     string
	Domain   string // Empty string = current host only
	Secure   bool   // HTTPS only
	SameSite string // "strict", "lax", or "none"
}

func (c CookieConfig) name() string {
	if c.Name == "" {
		return DefaultSessionCookieName
	}
	return c.Name
}

// SetSessionCookie stores the session token in an http-only cookie
func SetSessionCookie(w http.ResponseWriter, token string, ttl time.Duration, config CookieConfig) {
	maxAge := int(ttl.Seconds())
	cookie := &http.Cookie{
		Name:     config.name(),
		Value:    token,
		Path:     "/",
		Domain:   config.Domain,
		Expires:  time.Now().Add(ttl),
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: parseSameSite(config.SameSite),
	}
	http.SetCookie(w, cookie)
}

// ClearSessionCookie expires the session cookie on the client
func ClearSessionCookie(w http.ResponseWriter, config CookieConfig) {
	cookie := &http.Cookie{
		Name:     config.name(),
		Value:    "",
		Path:     "/",
		Domain:   config.Domain,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: parseSameSite(config.SameSite),
	}
	http.SetCookie(w, cookie)
}

// GetSessionCookie retrieves the session token from the request
func GetSessionCookie(r *http.Request, config CookieConfig) (string, error) {
	cookie, err := r.Cookie(config.name())
	if err != nil {
		return "", err
	}
	return cookie.Value, nil
}

// parseSameSite converts string to http.SameSite constant
func parseSameSite(sameSite string) http.SameSite {
	switch sameSite {
	case "strict":
		return http.SameSiteStrictMode
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteDefaultMode
	}
}
