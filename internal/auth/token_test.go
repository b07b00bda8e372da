package auth

import (
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signTestToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	require.NoError(t, err)
	return token
}

func TestActorFromJWT(t *testing.T) {
	token := signTestToken(t, jwt.MapClaims{
		"sub":   "user-1",
		"roles": []string{"STUDENT", "ORGANIZER"},
	})

	actor, err := ActorFromJWT(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", actor.ID)
	assert.Equal(t, RoleOrganizer, actor.Role)
}

func TestActorFromJWTDefaultsToStudent(t *testing.T) {
	token := signTestToken(t, jwt.MapClaims{"sub": "user-1"})

	actor, err := ActorFromJWT(token)
	require.NoError(t, err)
	assert.Equal(t, RoleStudent, actor.Role)
}

func TestActorFromJWTMissingSubject(t *testing.T) {
	token := signTestToken(t, jwt.MapClaims{"roles": []string{"STUDENT"}})

	_, err := ActorFromJWT(token)
	assert.Error(t, err)
}

func TestActorFromRequestPrefersContext(t *testing.T) {
	r := httptest.NewRequest("POST", "/checkin/scan", nil)
	r.Header.Set("Authorization", "Bearer "+signTestToken(t, jwt.MapClaims{"sub": "from-token"}))
	r = r.WithContext(WithActor(r.Context(), Actor{ID: "from-context", Role: RoleOrganizer}))

	actor := ActorFromRequest(r)
	assert.Equal(t, "from-context", actor.ID)
}

func TestActorFromRequestBearerFallback(t *testing.T) {
	r := httptest.NewRequest("POST", "/checkin/scan", nil)
	r.Header.Set("Authorization", "Bearer "+signTestToken(t, jwt.MapClaims{
		"sub":   "scanner-1",
		"roles": []string{"ORGANIZER"},
	}))

	actor := ActorFromRequest(r)
	assert.Equal(t, "scanner-1", actor.ID)
	assert.Equal(t, RoleOrganizer, actor.Role)
}

func TestActorFromRequestNoCredentials(t *testing.T) {
	actor := ActorFromRequest(httptest.NewRequest("POST", "/checkin/scan", nil))
	assert.Empty(t, actor.ID)
}
