package middleware

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/decks/internal/cookie"
	"github.com/dukerupert/decks/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type contextKey string

// ErrInvalidToken is returned for account tokens that fail verification.
var ErrInvalidToken = errors.New("invalid account token")

// AccountClaims is what the storefront needs from an account session token.
type AccountClaims struct {
	UserID uuid.UUID
	Email  string
}

// TokenVerifier verifies account session tokens issued by the account service.
type TokenVerifier interface {
	Verify(raw string) (*AccountClaims, error)
}

// JWTVerifier verifies HMAC-signed JWTs. The subject is the account id.
type JWTVerifier struct {
	secret []byte
	issuer string
}

func NewJWTVerifier(secret, issuer string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret), issuer: issuer}
}

func (v *JWTVerifier) Verify(raw string) (*AccountClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithLeeway(30 * time.Second),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodHS384.Alg(), jwt.SigningMethodHS512.Alg()}),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	sub, err := claims.GetSubject()
	if err != nil {
		return nil, ErrInvalidToken
	}
	userID, err := uuid.Parse(sub)
	if err != nil || userID == uuid.Nil {
		return nil, ErrInvalidToken
	}

	email, _ := claims["email"].(string)
	return &AccountClaims{UserID: userID, Email: email}, nil
}

// WithIdentity attaches the shopper identity to every request. Browsers
// without a device cookie are issued one. An account token, from the
// Authorization header or the session cookie, signs the shopper in; a token
// that fails verification is rejected rather than downgraded to anonymous,
// and the session cookie carrying it is cleared.
// A nil verifier treats every shopper as anonymous.
func WithIdentity(cookies *cookie.Config, verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			deviceID := cookie.DeviceID(r)
			if deviceID == "" {
				deviceID = cookie.GenerateDeviceID()
			}
			cookies.SetDevice(w, deviceID)

			identity := domain.Identity{DeviceID: deviceID}

			if raw := accountToken(r); raw != "" && verifier != nil {
				claims, err := verifier.Verify(raw)
				if err != nil {
					cookies.ClearSession(w, cookie.SessionCookieName)
					w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
					respondUnauthorized(w, r)
					return
				}
				identity.UserID = claims.UserID
				identity.Email = claims.Email
			}

			ctx := domain.NewContextWithIdentity(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAccount rejects anonymous shoppers with 401.
func RequireAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := domain.IdentityFromContext(r.Context())
		if !ok || !identity.Authenticated() {
			respondUnauthorized(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdminToken guards fulfilment endpoints with a shared bearer token.
// An empty token disables the endpoints.
func RequireAdminToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				respondNotFound(w, r)
				return
			}
			raw := bearerToken(r)
			if raw == "" || subtle.ConstantTimeCompare([]byte(raw), []byte(token)) != 1 {
				respondForbidden(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetIdentity returns the identity set by WithIdentity, or the zero identity.
func GetIdentity(r *http.Request) domain.Identity {
	identity, _ := domain.IdentityFromContext(r.Context())
	return identity
}

func accountToken(r *http.Request) string {
	if raw := bearerToken(r); raw != "" {
		return raw
	}
	return cookie.Get(r, cookie.SessionCookieName)
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
}
