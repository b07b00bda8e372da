package api_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"

	"campus-events/internal/auth"
	"campus-events/internal/logger"
	"campus-events/internal/models"
	"campus-events/internal/qrtoken"
	"campus-events/internal/registration"
	"campus-events/internal/registration/api"
	"campus-events/internal/registration/db"
	"campus-events/internal/utils"
)

func testLogger() *logger.Logger {
	return logger.NewLogger()
}

// newTestServer wires a real service over sqlite, with the auth middleware
// replaced by a fixed actor.
func newTestServer(t *testing.T, actor auth.Actor) (*httptest.Server, *db.DB) {
	t.Helper()

	sqldb, err := sql.Open("sqlite", "file::memory:?cache=shared")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { bunDB.Close() })

	for _, model := range []interface{}{(*models.Event)(nil), (*models.Registration)(nil)} {
		_, err = bunDB.NewCreateTable().Model(model).Exec(context.Background())
		require.NoError(t, err)
	}

	store := &db.DB{Bun: bunDB}
	codec, err := qrtoken.New("handler-test-secret")
	require.NoError(t, err)
	service := registration.NewService(store, codec, nil, nil, nil, 48*time.Hour)
	handler := api.NewHandler(service, testLogger())

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(auth.WithActor(req.Context(), actor)))
		})
	})
	handler.Routes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, store
}

func seedEvent(t *testing.T, store *db.DB, capacity int, creatorID string) *models.Event {
	t.Helper()
	now := time.Now()
	ev := &models.Event{
		ID:          uuid.NewString(),
		Name:        "Career Fair",
		Capacity:    capacity,
		CheckInMode: models.StudentsScan,
		Status:      models.EventUpcoming,
		StartDate:   now.Add(24 * time.Hour),
		EndDate:     now.Add(30 * time.Hour),
		CreatorID:   creatorID,
		CreatedAt:   now,
	}
	require.NoError(t, store.CreateEvent(context.Background(), ev))
	return ev
}

func decodeEnvelope(t *testing.T, resp *http.Response) utils.APIResponse {
	t.Helper()
	defer resp.Body.Close()
	var envelope utils.APIResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return envelope
}

func TestRegisterEndpoint(t *testing.T) {
	srv, store := newTestServer(t, auth.Actor{ID: "student-1", Role: auth.RoleStudent})
	ev := seedEvent(t, store, 2, "organizer-1")

	resp, err := http.Post(srv.URL+"/events/"+ev.ID+"/registrations", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	envelope := decodeEnvelope(t, resp)
	assert.True(t, envelope.Success)

	// Same user, same event: conflict, not an upsert.
	resp, err = http.Post(srv.URL+"/events/"+ev.ID+"/registrations", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	envelope = decodeEnvelope(t, resp)
	assert.False(t, envelope.Success)
	assert.Equal(t, "CONFLICT", envelope.ErrorKind)
}

func TestRegisterEndpointUnknownEvent(t *testing.T) {
	srv, _ := newTestServer(t, auth.Actor{ID: "student-1", Role: auth.RoleStudent})

	resp, err := http.Post(srv.URL+"/events/no-such-event/registrations", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestScanEndpointRejectsGarbage(t *testing.T) {
	srv, _ := newTestServer(t, auth.Actor{ID: "organizer-1", Role: auth.RoleOrganizer})

	resp, err := http.Post(srv.URL+"/checkin/scan", "application/json",
		strings.NewReader(`{"payload":"not a signed payload"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	envelope := decodeEnvelope(t, resp)
	assert.Equal(t, "VALIDATION", envelope.ErrorKind)
}

// Scanner clients authenticate with a bearer token instead of going through
// the OIDC middleware chain.
func TestScanEndpointAcceptsBearerToken(t *testing.T) {
	srv, store := newTestServer(t, auth.Actor{})
	ev := seedEvent(t, store, 5, "organizer-1")

	reg := &models.Registration{
		ID:        uuid.NewString(),
		UserID:    "student-1",
		EventID:   ev.ID,
		CreatedAt: time.Now(),
	}
	require.NoError(t, store.AdmitRegistration(context.Background(), reg, nil))

	codec, err := qrtoken.New("handler-test-secret")
	require.NoError(t, err)
	token, err := codec.Mint(qrtoken.Claims{
		RegistrationID: reg.ID,
		EventID:        ev.ID,
		UserID:         reg.UserID,
		Timestamp:      time.Now().UnixMilli(),
	})
	require.NoError(t, err)

	bearer, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "organizer-1",
		"roles": []string{"ORGANIZER"},
	}).SignedString([]byte("test-key"))
	require.NoError(t, err)

	body, err := json.Marshal(map[string]string{"payload": token.Payload})
	require.NoError(t, err)

	req, err := http.NewRequest("POST", srv.URL+"/checkin/scan", strings.NewReader(string(body)))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	stored, err := store.GetRegistration(context.Background(), reg.ID)
	require.NoError(t, err)
	assert.True(t, stored.CheckedIn)

	// Without any credential the scan is refused.
	resp, err = http.Post(srv.URL+"/checkin/scan", "application/json",
		strings.NewReader(string(body)))
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()
}

func TestParticipantsCSVEndpoint(t *testing.T) {
	organizer := auth.Actor{ID: "organizer-1", Role: auth.RoleOrganizer}
	srv, store := newTestServer(t, organizer)
	ev := seedEvent(t, store, 5, organizer.ID)

	reg := &models.Registration{
		ID:        uuid.NewString(),
		UserID:    "student-1",
		EventID:   ev.ID,
		CreatedAt: time.Now(),
	}
	require.NoError(t, store.AdmitRegistration(context.Background(), reg, nil))

	resp, err := http.Get(srv.URL + "/events/" + ev.ID + "/participants.csv")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))

	buf := new(strings.Builder)
	_, err = io.Copy(buf, resp.Body)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "registration_id,user_id,status,checked_in,checked_in_at,registered_at", lines[0])
	assert.Contains(t, lines[1], reg.ID)
	assert.Contains(t, lines[1], "REGISTERED")
}

func TestParticipantsCSVForbiddenForStudents(t *testing.T) {
	srv, store := newTestServer(t, auth.Actor{ID: "student-1", Role: auth.RoleStudent})
	ev := seedEvent(t, store, 5, "organizer-1")

	resp, err := http.Get(srv.URL + "/events/" + ev.ID + "/participants.csv")
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()
}
