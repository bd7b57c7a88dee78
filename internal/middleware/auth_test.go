package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-at-least-32-characters!!"

func whoAmI(c *fiber.Ctx) error {
	uid, ok := CurrentUserID(c)
	if !ok {
		return c.SendString("anonymous")
	}
	return c.SendString(strconv.FormatUint(uint64(uid), 10))
}

func TestIssueAndParseToken(t *testing.T) {
	token, err := IssueToken(testSecret, 42, time.Hour)
	require.NoError(t, err)

	userID, err := ParseToken(testSecret, token)
	require.NoError(t, err)
	assert.Equal(t, uint(42), userID)

	_, err = ParseToken("another-secret-that-is-long-enough!!", token)
	assert.Error(t, err)
}

func TestParseToken_Rejects(t *testing.T) {
	expired, err := IssueToken(testSecret, 1, -time.Minute)
	require.NoError(t, err)

	wrongIssuer, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject: "1",
		Issuer:  "somebody-else",
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	badSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject: "abc",
		Issuer:  TokenIssuer,
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"expired", expired},
		{"wrong issuer", wrongIssuer},
		{"non-numeric subject", badSubject},
		{"garbage", "not-a-token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseToken(testSecret, tt.token)
			assert.Error(t, err)
		})
	}
}

func TestAuthRequired(t *testing.T) {
	app := fiber.New()
	app.Get("/me", AuthRequired(testSecret), whoAmI)

	valid, err := IssueToken(testSecret, 7, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name           string
		header         string
		query          string
		expectedStatus int
	}{
		{"missing header", "", "", http.StatusUnauthorized},
		{"malformed header", "Token " + valid, "", http.StatusUnauthorized},
		{"invalid token", "Bearer nope", "", http.StatusUnauthorized},
		{"valid bearer", "Bearer " + valid, "", http.StatusOK},
		{"valid query token", "", "?token=" + valid, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)
		})
	}
}

func TestOptionalAuth(t *testing.T) {
	app := fiber.New()
	app.Get("/who", OptionalAuth(testSecret), whoAmI)

	valid, err := IssueToken(testSecret, 9, time.Hour)
	require.NoError(t, err)

	for header, expected := range map[string]string{
		"":                "anonymous",
		"Bearer garbage":  "anonymous",
		"Bearer " + valid: "9",
	} {
		req := httptest.NewRequest(http.MethodGet, "/who", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		body := make([]byte, 32)
		n, _ := resp.Body.Read(body)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, expected, string(body[:n]))
	}
}

func TestAuthRequired_StoresUserInContext(t *testing.T) {
	app := fiber.New()
	app.Get("/ctx", AuthRequired(testSecret), func(c *fiber.Ctx) error {
		uid, ok := UserIDFromContext(c.UserContext())
		if !ok {
			return c.SendStatus(http.StatusInternalServerError)
		}
		return c.SendString(strconv.FormatUint(uint64(uid), 10))
	})

	token, err := IssueToken(testSecret, 5, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/ctx", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	body := make([]byte, 8)
	n, _ := resp.Body.Read(body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "5", string(body[:n]))
}
