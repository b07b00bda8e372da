package registration_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"campus-events/internal/apperr"
	"campus-events/internal/auth"
	"campus-events/internal/kafka"
	"campus-events/internal/models"
	"campus-events/internal/qrtoken"
	"campus-events/internal/registration"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	args := m.Called(eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Event), args.Error(1)
}

func (m *MockStore) GetRegistration(ctx context.Context, id string) (*models.Registration, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Registration), args.Error(1)
}

func (m *MockStore) GetRegistrationByUserAndEvent(ctx context.Context, userID, eventID string) (*models.Registration, error) {
	args := m.Called(userID, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Registration), args.Error(1)
}

func (m *MockStore) AdmitRegistration(ctx context.Context, reg *models.Registration, mint func(*models.Registration) (string, error)) error {
	args := m.Called(reg, mint)
	if err := args.Error(0); err != nil {
		return err
	}
	// Mirror the real store: admit as REGISTERED and run the mint in place.
	reg.Status = models.Registered
	if mint != nil {
		qr, err := mint(reg)
		if err != nil {
			return err
		}
		reg.QRCode = qr
	}
	return nil
}

func (m *MockStore) CancelAndPromote(ctx context.Context, reg *models.Registration) (*models.Registration, error) {
	args := m.Called(reg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Registration), args.Error(1)
}

func (m *MockStore) SetCheckIn(ctx context.Context, reg *models.Registration) error {
	args := m.Called(reg)
	return args.Error(0)
}

func (m *MockStore) UpdateQRCode(ctx context.Context, registrationID, qrCode string) error {
	args := m.Called(registrationID, qrCode)
	return args.Error(0)
}

func (m *MockStore) ListByEvent(ctx context.Context, eventID string) ([]models.Registration, error) {
	args := m.Called(eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Registration), args.Error(1)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishCheckIn(event kafka.CheckInEvent) error {
	args := m.Called(event)
	return args.Error(0)
}

func (m *MockPublisher) PublishRegistrationCreated(registrationID, eventID, userID, status string) error {
	args := m.Called(registrationID, eventID, userID, status)
	return args.Error(0)
}

func (m *MockPublisher) PublishRegistrationCancelled(registrationID, eventID, userID string) error {
	args := m.Called(registrationID, eventID, userID)
	return args.Error(0)
}

func (m *MockPublisher) PublishRegistrationPromoted(registrationID, eventID, userID string) error {
	args := m.Called(registrationID, eventID, userID)
	return args.Error(0)
}

func newCodec(t *testing.T) *qrtoken.Codec {
	t.Helper()
	codec, err := qrtoken.New("service-test-secret")
	require.NoError(t, err)
	return codec
}

func newService(store *MockStore, pub *MockPublisher) *registration.Service {
	svc := registration.NewService(store, nil, nil, nil, nil, 48*time.Hour)
	if pub != nil {
		svc.Publisher = pub
	}
	return svc
}

func upcomingEvent(mode models.CheckInMode, isPaid bool) *models.Event {
	now := time.Now()
	return &models.Event{
		ID:          "ev-1",
		Name:        "Career Fair",
		Capacity:    100,
		IsPaid:      isPaid,
		CheckInMode: mode,
		Status:      models.EventUpcoming,
		StartDate:   now.Add(24 * time.Hour),
		EndDate:     now.Add(30 * time.Hour),
		CreatorID:   "creator-1",
	}
}

func TestRegisterEventNotFound(t *testing.T) {
	store := new(MockStore)
	store.On("GetEvent", "missing").Return(nil, sql.ErrNoRows)

	_, err := newService(store, nil).Register(context.Background(), "missing", "user-1")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestRegisterCancelledEvent(t *testing.T) {
	ev := upcomingEvent(models.StudentsScan, false)
	ev.Status = models.EventCancelled

	store := new(MockStore)
	store.On("GetEvent", ev.ID).Return(ev, nil)

	_, err := newService(store, nil).Register(context.Background(), ev.ID, "user-1")
	assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "cancelled")
}

func TestRegisterEndedEvent(t *testing.T) {
	ev := upcomingEvent(models.StudentsScan, false)
	ev.EndDate = time.Now().Add(-time.Hour)

	store := new(MockStore)
	store.On("GetEvent", ev.ID).Return(ev, nil)

	_, err := newService(store, nil).Register(context.Background(), ev.ID, "user-1")
	assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "ended")
}

func TestRegisterDuplicateConflicts(t *testing.T) {
	ev := upcomingEvent(models.StudentsScan, false)

	store := new(MockStore)
	store.On("GetEvent", ev.ID).Return(ev, nil)
	store.On("GetRegistrationByUserAndEvent", "user-1", ev.ID).
		Return(&models.Registration{ID: "reg-1", UserID: "user-1", EventID: ev.ID}, nil)

	_, err := newService(store, nil).Register(context.Background(), ev.ID, "user-1")
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "already registered")
}

func TestRegisterStudentsScanSkipsQR(t *testing.T) {
	ev := upcomingEvent(models.StudentsScan, false)

	store := new(MockStore)
	store.On("GetEvent", ev.ID).Return(ev, nil)
	store.On("GetRegistrationByUserAndEvent", "user-1", ev.ID).Return(nil, sql.ErrNoRows)
	store.On("AdmitRegistration", mock.AnythingOfType("*models.Registration"), mock.Anything).Return(nil)

	svc := newService(store, nil)
	svc.Codec = newCodec(t)

	resp, err := svc.Register(context.Background(), ev.ID, "user-1")
	require.NoError(t, err)
	assert.Empty(t, resp.Registration.QRCode)

	// The mint callback must be nil for a students-scan event.
	store.AssertCalled(t, "AdmitRegistration", mock.AnythingOfType("*models.Registration"),
		mock.MatchedBy(func(mint func(*models.Registration) (string, error)) bool {
			return mint == nil
		}))
}

func TestRegisterExternalFreeEventMintsQR(t *testing.T) {
	ev := upcomingEvent(models.OrganizerScans, false)
	ev.IsExternalEvent = true

	store := new(MockStore)
	store.On("GetEvent", ev.ID).Return(ev, nil)
	store.On("GetRegistrationByUserAndEvent", "user-1", ev.ID).Return(nil, sql.ErrNoRows)
	store.On("AdmitRegistration", mock.AnythingOfType("*models.Registration"), mock.Anything).Return(nil)

	svc := newService(store, nil)
	svc.Codec = newCodec(t)

	resp, err := svc.Register(context.Background(), ev.ID, "user-1")
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Registration.QRCode)
	assert.Contains(t, resp.Registration.QRCode, "data:image/png;base64,")
	assert.Equal(t, ev.ID, resp.Event.ID)
}

func TestRegisterPaidEventTicketCarriesQR(t *testing.T) {
	ev := upcomingEvent(models.OrganizerScans, true)

	store := new(MockStore)
	store.On("GetEvent", ev.ID).Return(ev, nil)
	store.On("GetRegistrationByUserAndEvent", "user-1", ev.ID).Return(nil, sql.ErrNoRows)
	store.On("AdmitRegistration", mock.AnythingOfType("*models.Registration"), mock.Anything).Return(nil)

	svc := newService(store, nil)
	svc.Codec = newCodec(t)

	resp, err := svc.Register(context.Background(), ev.ID, "user-1")
	require.NoError(t, err)
	assert.Empty(t, resp.Registration.QRCode)
}

func TestCancelForbiddenForOtherUsers(t *testing.T) {
	reg := &models.Registration{ID: "reg-1", UserID: "user-1", EventID: "ev-1", Status: models.Registered}

	store := new(MockStore)
	store.On("GetRegistration", "reg-1").Return(reg, nil)

	err := newService(store, nil).Cancel(context.Background(), "reg-1", auth.Actor{ID: "user-2", Role: auth.RoleAdmin})
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}

func TestCancelAfterStart(t *testing.T) {
	ev := upcomingEvent(models.StudentsScan, false)
	ev.StartDate = time.Now().Add(-time.Hour)
	reg := &models.Registration{ID: "reg-1", UserID: "user-1", EventID: ev.ID, Status: models.Registered}

	store := new(MockStore)
	store.On("GetRegistration", "reg-1").Return(reg, nil)
	store.On("GetEvent", ev.ID).Return(ev, nil)

	err := newService(store, nil).Cancel(context.Background(), "reg-1", auth.Actor{ID: "user-1"})
	assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "started")
}

func TestCancelPublishesPromotion(t *testing.T) {
	ev := upcomingEvent(models.StudentsScan, false)
	reg := &models.Registration{ID: "reg-1", UserID: "user-1", EventID: ev.ID, Status: models.Registered}
	promoted := &models.Registration{ID: "reg-2", UserID: "user-2", EventID: ev.ID, Status: models.Registered}

	store := new(MockStore)
	store.On("GetRegistration", "reg-1").Return(reg, nil)
	store.On("GetEvent", ev.ID).Return(ev, nil)
	store.On("CancelAndPromote", reg).Return(promoted, nil)

	pub := new(MockPublisher)
	pub.On("PublishRegistrationCancelled", "reg-1", ev.ID, "user-1").Return(nil)
	pub.On("PublishRegistrationPromoted", "reg-2", ev.ID, "user-2").Return(nil)

	err := newService(store, pub).Cancel(context.Background(), "reg-1", auth.Actor{ID: "user-1"})
	require.NoError(t, err)
	pub.AssertExpectations(t)
}

func TestCheckInFlow(t *testing.T) {
	ev := upcomingEvent(models.OrganizerScans, false)
	reg := &models.Registration{ID: "reg-1", UserID: "user-1", EventID: ev.ID, Status: models.Registered}

	store := new(MockStore)
	store.On("GetRegistration", "reg-1").Return(reg, nil)
	store.On("GetEvent", ev.ID).Return(ev, nil)
	store.On("SetCheckIn", reg).Return(nil)

	pub := new(MockPublisher)
	pub.On("PublishCheckIn", mock.MatchedBy(func(e kafka.CheckInEvent) bool {
		return e.RegistrationID == "reg-1" && e.UserID == "user-1"
	})).Return(nil)

	svc := newService(store, pub)
	actor := auth.Actor{ID: ev.CreatorID, Role: auth.RoleStudent}

	resp, err := svc.CheckIn(context.Background(), "reg-1", actor)
	require.NoError(t, err)
	assert.True(t, resp.Registration.CheckedIn)
	require.NotNil(t, resp.Registration.CheckedInAt)

	// Second check-in is rejected.
	_, err = svc.CheckIn(context.Background(), "reg-1", actor)
	assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "already checked in")

	// Undo, then check in again succeeds.
	_, err = svc.UndoCheckIn(context.Background(), "reg-1", actor)
	require.NoError(t, err)
	_, err = svc.CheckIn(context.Background(), "reg-1", actor)
	require.NoError(t, err)
}

func TestCheckInForbidden(t *testing.T) {
	ev := upcomingEvent(models.OrganizerScans, false)
	reg := &models.Registration{ID: "reg-1", UserID: "user-1", EventID: ev.ID, Status: models.Registered}

	store := new(MockStore)
	store.On("GetRegistration", "reg-1").Return(reg, nil)
	store.On("GetEvent", ev.ID).Return(ev, nil)

	_, err := newService(store, nil).CheckIn(context.Background(), "reg-1", auth.Actor{ID: "random", Role: auth.RoleStudent})
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}

func TestCheckInWaitlistedRejected(t *testing.T) {
	ev := upcomingEvent(models.OrganizerScans, false)
	reg := &models.Registration{ID: "reg-1", UserID: "user-1", EventID: ev.ID, Status: models.Waitlist}

	store := new(MockStore)
	store.On("GetRegistration", "reg-1").Return(reg, nil)
	store.On("GetEvent", ev.ID).Return(ev, nil)

	_, err := newService(store, nil).CheckIn(context.Background(), "reg-1", auth.Actor{ID: ev.CreatorID})
	assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))
}

func TestUndoCheckInNotCheckedIn(t *testing.T) {
	ev := upcomingEvent(models.OrganizerScans, false)
	reg := &models.Registration{ID: "reg-1", UserID: "user-1", EventID: ev.ID, Status: models.Registered}

	store := new(MockStore)
	store.On("GetRegistration", "reg-1").Return(reg, nil)
	store.On("GetEvent", ev.ID).Return(ev, nil)

	_, err := newService(store, nil).UndoCheckIn(context.Background(), "reg-1", auth.Actor{ID: ev.CreatorID})
	assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))
}

func TestCheckInSurvivesPublishFailure(t *testing.T) {
	ev := upcomingEvent(models.OrganizerScans, false)
	reg := &models.Registration{ID: "reg-1", UserID: "user-1", EventID: ev.ID, Status: models.Registered}

	store := new(MockStore)
	store.On("GetRegistration", "reg-1").Return(reg, nil)
	store.On("GetEvent", ev.ID).Return(ev, nil)
	store.On("SetCheckIn", reg).Return(nil)

	pub := new(MockPublisher)
	pub.On("PublishCheckIn", mock.Anything).Return(assert.AnError)

	resp, err := newService(store, pub).CheckIn(context.Background(), "reg-1", auth.Actor{ID: ev.CreatorID})
	require.NoError(t, err)
	assert.True(t, resp.Registration.CheckedIn)
}

func TestCheckInByQR(t *testing.T) {
	ev := upcomingEvent(models.OrganizerScans, false)
	ev.IsExternalEvent = true
	reg := &models.Registration{ID: "reg-1", UserID: "user-1", EventID: ev.ID, Status: models.Registered}

	store := new(MockStore)
	store.On("GetRegistration", "reg-1").Return(reg, nil)
	store.On("GetEvent", ev.ID).Return(ev, nil)
	store.On("SetCheckIn", reg).Return(nil)

	codec := newCodec(t)
	svc := newService(store, nil)
	svc.Codec = codec

	token, err := codec.Mint(qrtoken.Claims{
		RegistrationID: "reg-1",
		EventID:        ev.ID,
		UserID:         "user-1",
		Timestamp:      time.Now().UnixMilli(),
	})
	require.NoError(t, err)

	resp, err := svc.CheckInByQR(context.Background(), token.Payload, auth.Actor{ID: ev.CreatorID})
	require.NoError(t, err)
	assert.True(t, resp.Registration.CheckedIn)
}

func TestCheckInByQRBadSignature(t *testing.T) {
	codec := newCodec(t)
	other, err := qrtoken.New("some-other-secret")
	require.NoError(t, err)

	token, err := other.Mint(qrtoken.Claims{
		RegistrationID: "reg-1",
		EventID:        "ev-1",
		UserID:         "user-1",
		Timestamp:      time.Now().UnixMilli(),
	})
	require.NoError(t, err)

	svc := newService(new(MockStore), nil)
	svc.Codec = codec

	_, err = svc.CheckInByQR(context.Background(), token.Payload, auth.Actor{ID: "creator-1"})
	assert.ErrorIs(t, err, qrtoken.ErrBadSignature)
}

func TestCheckInByQRExpired(t *testing.T) {
	codec := newCodec(t)
	svc := newService(new(MockStore), nil)
	svc.Codec = codec
	svc.QRMaxAge = time.Hour

	token, err := codec.Mint(qrtoken.Claims{
		RegistrationID: "reg-1",
		EventID:        "ev-1",
		UserID:         "user-1",
		Timestamp:      time.Now().Add(-2 * time.Hour).UnixMilli(),
	})
	require.NoError(t, err)

	_, err = svc.CheckInByQR(context.Background(), token.Payload, auth.Actor{ID: "creator-1"})
	assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "expired")
}

func TestRemintQR(t *testing.T) {
	ev := upcomingEvent(models.OrganizerScans, false)
	ev.IsExternalEvent = true
	reg := &models.Registration{ID: "reg-1", UserID: "user-1", EventID: ev.ID, Status: models.Registered}

	store := new(MockStore)
	store.On("GetRegistration", "reg-1").Return(reg, nil)
	store.On("GetEvent", ev.ID).Return(ev, nil)
	store.On("UpdateQRCode", "reg-1", mock.AnythingOfType("string")).Return(nil)

	svc := newService(store, nil)
	svc.Codec = newCodec(t)

	got, err := svc.RemintQR(context.Background(), "reg-1", auth.Actor{ID: ev.CreatorID})
	require.NoError(t, err)
	assert.NotEmpty(t, got.QRCode)

	// Idempotent: a second remint returns the stored code without a write.
	got2, err := svc.RemintQR(context.Background(), "reg-1", auth.Actor{ID: ev.CreatorID})
	require.NoError(t, err)
	assert.Equal(t, got.QRCode, got2.QRCode)
	store.AssertNumberOfCalls(t, "UpdateQRCode", 1)
}
