// Package cookie provides the storefront cookie helpers. The device cookie
// identifies a browser across visits and keys its guest cart and addresses.
package cookie

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Config holds cookie configuration.
type Config struct {
	// Domain scopes cookies. Empty leaves the host-only default.
	Domain string

	// Secure determines whether cookies require HTTPS.
	// Should be true in production, false in development.
	Secure bool
}

// NewConfig creates a new cookie configuration.
func NewConfig(domain string, secure bool) *Config {
	return &Config{
		Domain: domain,
		Secure: secure,
	}
}

// DeviceMaxAge is how long a device cookie lives. Each visit refreshes it.
const DeviceMaxAge = 365 * 24 * time.Hour

// SetDevice writes the device cookie.
func (c *Config) SetDevice(w http.ResponseWriter, deviceID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     DeviceCookieName,
		Value:    deviceID,
		Domain:   c.Domain,
		Path:     "/",
		MaxAge:   int(DeviceMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSession removes a cookie by setting MaxAge to -1.
func (c *Config) ClearSession(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Domain:   c.Domain,
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
	})
}

// Get retrieves a cookie value from the request.
// Returns empty string if cookie not found.
func Get(r *http.Request, name string) string {
	cookie, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// DeviceID returns the device id carried by the request, or "" when the
// cookie is missing or not a device id this server issued.
func DeviceID(r *http.Request) string {
	value := Get(r, DeviceCookieName)
	if _, err := uuid.Parse(value); err != nil {
		return ""
	}
	return value
}

// GenerateDeviceID returns a new random device id.
func GenerateDeviceID() string {
	return uuid.NewString()
}

// Cookie names used throughout the application.
const (
	// SessionCookieName carries the account session token issued by the
	// account service, for clients that do not send an Authorization header.
	SessionCookieName = "decks_session"

	// DeviceCookieName identifies the browser.
	DeviceCookieName = "decks_device"
)
