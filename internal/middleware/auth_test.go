package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VighneshDev1411/ai-automation-assistant-sub000/pkg/logger"
)

const testSecret = "test-signing-secret"

func signToken(t *testing.T, secret string, method jwt.SigningMethod, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub":    "user-1",
		"org_id": "org-1",
		"email":  "user@example.com",
		"roles":  []string{"admin"},
		"exp":    time.Now().Add(time.Hour).Unix(),
	}
}

func authedRequest(token string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/workflows", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func decodeErrorCode(t *testing.T, body []byte) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(body, &envelope))
	return envelope.Error.Code
}

// TestJWTAuth tests token validation and principal propagation.
func TestJWTAuth(t *testing.T) {
	mw := JWTAuth(testSecret, logger.NewNop())

	t.Run("valid token reaches the handler with a principal", func(t *testing.T) {
		var principal *Principal
		var orgFromCtx string
		handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal = PrincipalFromContext(r.Context())
			orgFromCtx = logger.OrganizationIDFromContext(r.Context())
			w.WriteHeader(http.StatusOK)
		}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, authedRequest(signToken(t, testSecret, jwt.SigningMethodHS256, validClaims())))

		require.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, principal)
		assert.Equal(t, "user-1", principal.UserID)
		assert.Equal(t, "org-1", principal.OrganizationID)
		assert.Equal(t, "user@example.com", principal.Email)
		assert.True(t, principal.HasRole("admin"))
		assert.False(t, principal.HasRole("owner"))
		assert.Equal(t, "org-1", orgFromCtx)
	})

	t.Run("missing header", func(t *testing.T) {
		handler := mw(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			t.Fatal("handler must not run")
		}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, authedRequest(""))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "UNAUTHORIZED", decodeErrorCode(t, rec.Body.Bytes()))
	})

	t.Run("non-bearer header", func(t *testing.T) {
		handler := mw(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			t.Fatal("handler must not run")
		}))

		req := httptest.NewRequest(http.MethodGet, "/api/v1/workflows", nil)
		req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong signature", func(t *testing.T) {
		handler := mw(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			t.Fatal("handler must not run")
		}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, authedRequest(signToken(t, "other-secret", jwt.SigningMethodHS256, validClaims())))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("expired token", func(t *testing.T) {
		handler := mw(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			t.Fatal("handler must not run")
		}))

		claims := validClaims()
		claims["exp"] = time.Now().Add(-time.Minute).Unix()
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, authedRequest(signToken(t, testSecret, jwt.SigningMethodHS256, claims)))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("unexpected signing algorithm", func(t *testing.T) {
		handler := mw(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			t.Fatal("handler must not run")
		}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, authedRequest(signToken(t, testSecret, jwt.SigningMethodHS384, validClaims())))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("token without an organization claim", func(t *testing.T) {
		handler := mw(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			t.Fatal("handler must not run")
		}))

		claims := validClaims()
		delete(claims, "org_id")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, authedRequest(signToken(t, testSecret, jwt.SigningMethodHS256, claims)))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "UNAUTHORIZED", decodeErrorCode(t, rec.Body.Bytes()))
	})
}
