package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dukerupert/decks/internal/cookie"
	"github.com/dukerupert/decks/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims jwt.MapClaims, secret string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func validClaims(userID uuid.UUID) jwt.MapClaims {
	return jwt.MapClaims{
		"sub":   userID.String(),
		"iss":   "accounts",
		"email": "ada@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
}

// mockVerifier is a TokenVerifier with a replaceable verify function.
type mockVerifier struct {
	verifyFunc func(raw string) (*AccountClaims, error)
}

func (m *mockVerifier) Verify(raw string) (*AccountClaims, error) {
	if m.verifyFunc != nil {
		return m.verifyFunc(raw)
	}
	return nil, ErrInvalidToken
}

func TestJWTVerifier(t *testing.T) {
	userID := uuid.New()
	verifier := NewJWTVerifier(testSecret, "accounts")

	expired := validClaims(userID)
	expired["exp"] = time.Now().Add(-time.Hour).Unix()

	otherIssuer := validClaims(userID)
	otherIssuer["iss"] = "someone-else"

	badSubject := validClaims(userID)
	badSubject["sub"] = "not-a-uuid"

	noExpiry := validClaims(userID)
	delete(noExpiry, "exp")

	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{name: "valid", token: signToken(t, validClaims(userID), testSecret)},
		{name: "wrong secret", token: signToken(t, validClaims(userID), "other"), wantErr: true},
		{name: "expired", token: signToken(t, expired, testSecret), wantErr: true},
		{name: "other issuer", token: signToken(t, otherIssuer, testSecret), wantErr: true},
		{name: "subject is not an account id", token: signToken(t, badSubject, testSecret), wantErr: true},
		{name: "missing expiry", token: signToken(t, noExpiry, testSecret), wantErr: true},
		{name: "garbage", token: "not.a.jwt", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := verifier.Verify(tt.token)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidToken)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, userID, claims.UserID)
			assert.Equal(t, "ada@example.com", claims.Email)
		})
	}
}

func TestWithIdentity(t *testing.T) {
	userID := uuid.New()
	deviceID := cookie.GenerateDeviceID()
	cookies := cookie.NewConfig("", false)

	verifier := &mockVerifier{verifyFunc: func(raw string) (*AccountClaims, error) {
		if raw == "good" {
			return &AccountClaims{UserID: userID, Email: "ada@example.com"}, nil
		}
		return nil, ErrInvalidToken
	}}

	tests := []struct {
		name       string
		setup      func(r *http.Request)
		verifier   TokenVerifier
		wantStatus int
		check      func(t *testing.T, id domain.Identity)
	}{
		{
			name:       "new browser gets a device id",
			setup:      func(r *http.Request) {},
			verifier:   verifier,
			wantStatus: http.StatusOK,
			check: func(t *testing.T, id domain.Identity) {
				assert.NotEmpty(t, id.DeviceID)
				assert.False(t, id.Authenticated())
			},
		},
		{
			name: "returning browser keeps its device id",
			setup: func(r *http.Request) {
				r.AddCookie(&http.Cookie{Name: cookie.DeviceCookieName, Value: deviceID})
			},
			verifier:   verifier,
			wantStatus: http.StatusOK,
			check: func(t *testing.T, id domain.Identity) {
				assert.Equal(t, deviceID, id.DeviceID)
			},
		},
		{
			name: "bearer token signs in",
			setup: func(r *http.Request) {
				r.AddCookie(&http.Cookie{Name: cookie.DeviceCookieName, Value: deviceID})
				r.Header.Set("Authorization", "Bearer good")
			},
			verifier:   verifier,
			wantStatus: http.StatusOK,
			check: func(t *testing.T, id domain.Identity) {
				assert.Equal(t, userID, id.UserID)
				assert.Equal(t, "ada@example.com", id.Email)
				assert.Equal(t, deviceID, id.DeviceID)
			},
		},
		{
			name: "session cookie signs in",
			setup: func(r *http.Request) {
				r.AddCookie(&http.Cookie{Name: cookie.SessionCookieName, Value: "good"})
			},
			verifier:   verifier,
			wantStatus: http.StatusOK,
			check: func(t *testing.T, id domain.Identity) {
				assert.Equal(t, userID, id.UserID)
			},
		},
		{
			name: "invalid token is rejected",
			setup: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer bad")
			},
			verifier:   verifier,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "no verifier means anonymous",
			setup: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer good")
			},
			verifier:   nil,
			wantStatus: http.StatusOK,
			check: func(t *testing.T, id domain.Identity) {
				assert.False(t, id.Authenticated())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got domain.Identity
			handler := WithIdentity(cookies, tt.verifier)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = GetIdentity(r)
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/cart", nil)
			tt.setup(req)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			require.Equal(t, tt.wantStatus, w.Code)
			if tt.check != nil {
				tt.check(t, got)
			}
		})
	}
}

func TestWithIdentity_InvalidTokenResponse(t *testing.T) {
	handler := WithIdentity(cookie.NewConfig("", false), &mockVerifier{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/cart", nil)
	req.Header.Set("Authorization", "Bearer expired")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Header().Get("WWW-Authenticate"), "invalid_token")

	var cleared bool
	for _, c := range w.Result().Cookies() {
		if c.Name == cookie.SessionCookieName {
			cleared = c.MaxAge < 0
		}
	}
	assert.True(t, cleared, "stale session cookie is cleared")

	var body map[string]map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, domain.EUNAUTHORIZED, body["error"]["code"])
}

func TestRequireAccount(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

	tests := []struct {
		name     string
		identity *domain.Identity
		want     int
	}{
		{name: "no identity", identity: nil, want: http.StatusUnauthorized},
		{name: "anonymous", identity: &domain.Identity{DeviceID: "d"}, want: http.StatusUnauthorized},
		{name: "signed in", identity: &domain.Identity{DeviceID: "d", UserID: uuid.New()}, want: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/addresses/x/promote", nil)
			if tt.identity != nil {
				req = req.WithContext(domain.NewContextWithIdentity(req.Context(), *tt.identity))
			}
			w := httptest.NewRecorder()
			RequireAccount(ok).ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestRequireAdminToken(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

	tests := []struct {
		name   string
		token  string
		header string
		want   int
	}{
		{name: "disabled", token: "", header: "Bearer anything", want: http.StatusNotFound},
		{name: "missing header", token: "s3cret", header: "", want: http.StatusForbidden},
		{name: "wrong token", token: "s3cret", header: "Bearer nope", want: http.StatusForbidden},
		{name: "right token", token: "s3cret", header: "Bearer s3cret", want: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/admin/orders/1/status", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			RequireAdminToken(tt.token)(ok).ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}
