package jwt

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comfycollab/internal/app/user"
)

const testSecret = "test-secret"

func TestGenerateAndParseRoundTrip(t *testing.T) {
	id := user.Identity{ID: "42", Username: "ana", DisplayName: "Ana", Color: "#ff8800", Role: user.RoleAdmin}

	token, err := GenerateToken(NewPayload(id), testSecret, time.Minute)
	require.NoError(t, err)

	payload, err := ParseToken(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, id, payload.Identity())
	assert.Equal(t, TokenIssuer, payload.Issuer)
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	token, err := GenerateToken(NewPayload(user.Identity{ID: "1", Username: "a"}), testSecret, time.Minute)
	require.NoError(t, err)

	_, err = ParseToken(token, "other")
	assert.Error(t, err)
}

func TestParseTokenRejectsExpired(t *testing.T) {
	token, err := GenerateToken(NewPayload(user.Identity{ID: "1", Username: "a"}), testSecret, -time.Minute)
	require.NoError(t, err)

	_, err = ParseToken(token, testSecret)
	assert.Error(t, err)
}

func TestRequireIdentity(t *testing.T) {
	token, err := GenerateToken(NewPayload(user.Identity{ID: "1", Username: "a"}), testSecret, time.Minute)
	require.NoError(t, err)

	var seen *Payload
	h := IdentityExtractorMiddleware(testSecret)(RequireIdentity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetPayloadFromContext(r)
	})))

	anon := httptest.NewRecorder()
	h.ServeHTTP(anon, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, anon.Code)
	assert.Nil(t, seen)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	authed := httptest.NewRecorder()
	h.ServeHTTP(authed, r)
	assert.Equal(t, http.StatusOK, authed.Code)
	require.NotNil(t, seen)
	assert.Equal(t, "1", seen.ID)
}
