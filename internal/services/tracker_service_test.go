package services

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/benmeehan/trailsafe/internal/mocks"
	"github.com/benmeehan/trailsafe/internal/models"
	"github.com/benmeehan/trailsafe/internal/session"
	"github.com/benmeehan/trailsafe/internal/store"
)

type recordingSink struct {
	mu       sync.Mutex
	attached []string
}

func (r *recordingSink) Attach(s *session.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attached = append(r.attached, s.Device().ID)
	return nil
}

func signedIn(userID string) *mocks.MockUserInfo {
	u := new(mocks.MockUserInfo)
	u.On("LoadUserInfo").Return(nil)
	u.On("GetUserID").Return(userID)
	return u
}

func TestTrackerOpensConfiguredAndStoredDevices(t *testing.T) {
	st := new(mocks.MockDeviceStore)
	st.On("Save", mock.Anything, mock.MatchedBy(func(r models.DeviceRecord) bool {
		return r.UserID == "uid" && r.Descriptor.ID == "cfg"
	})).Return(models.DeviceRecord{}, nil).Once()
	stored := wsDevice("stored")
	st.On("List", mock.Anything, "uid").Return([]models.DeviceRecord{
		{UserID: "uid", Descriptor: wsDevice("cfg")},
		{UserID: "uid", Descriptor: stored, Label: "Asha's tracker"},
	}, nil).Once()

	opener := newSubsOpener()
	manager := session.NewManager(opener, testOptions(), testLogger)
	sink := &recordingSink{}
	tracker := NewTrackerService([]models.DeviceDescriptor{wsDevice("cfg")}, signedIn("uid"), st, manager, []SessionSink{sink}, testLogger)

	require.NoError(t, tracker.Start())
	assert.EqualError(t, tracker.Start(), "tracker service is already running")

	assert.Equal(t, 2, manager.Count())
	assert.ElementsMatch(t, []string{"cfg", "stored"}, sink.attached)
	s, ok := manager.Get("stored")
	require.True(t, ok)
	assert.Equal(t, "Asha's tracker", s.Device().Name)
	st.AssertExpectations(t)

	require.NoError(t, tracker.Stop())
	assert.Equal(t, models.StateClosed, s.State())
	assert.Zero(t, manager.Count())
	assert.EqualError(t, tracker.Stop(), "tracker service is not running")
}

func TestTrackerWithoutUserTracksConfiguredOnly(t *testing.T) {
	st := new(mocks.MockDeviceStore)
	st.On("Save", mock.Anything, mock.Anything).Return(models.DeviceRecord{}, store.ErrMissingUser)

	manager := session.NewManager(newSubsOpener(), testOptions(), testLogger)
	tracker := NewTrackerService([]models.DeviceDescriptor{wsDevice("a"), wsDevice("a"), wsDevice("b")}, signedIn(""), st, manager, nil, testLogger)

	require.NoError(t, tracker.Start())
	assert.Equal(t, 2, manager.Count())
	st.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
	require.NoError(t, tracker.Stop())
}

func TestTrackerStartErrors(t *testing.T) {
	u := new(mocks.MockUserInfo)
	u.On("LoadUserInfo").Return(errors.New("corrupt"))
	manager := session.NewManager(newSubsOpener(), testOptions(), testLogger)
	tracker := NewTrackerService(nil, u, new(mocks.MockDeviceStore), manager, nil, testLogger)
	assert.ErrorContains(t, tracker.Start(), "corrupt")

	st := new(mocks.MockDeviceStore)
	st.On("List", mock.Anything, "uid").Return(nil, errors.New("disk full"))
	tracker = NewTrackerService(nil, signedIn("uid"), st, manager, nil, testLogger)
	assert.ErrorContains(t, tracker.Start(), "disk full")
}

func TestTrackerFailsWhenNoSessionOpens(t *testing.T) {
	st := new(mocks.MockDeviceStore)
	st.On("List", mock.Anything, "uid").Return([]models.DeviceRecord{
		{UserID: "uid", Descriptor: models.DeviceDescriptor{ID: "bad", Transport: "carrier-pigeon"}},
	}, nil)

	manager := session.NewManager(newSubsOpener(), testOptions(), testLogger)
	tracker := NewTrackerService(nil, signedIn("uid"), st, manager, nil, testLogger)
	assert.Error(t, tracker.Start())
	assert.Zero(t, manager.Count())
}

func TestLogSinkDrainsUntilClose(t *testing.T) {
	opener := newSubsOpener()
	s, err := session.New(wsDevice("dev1"), opener, testOptions(), testLogger)
	require.NoError(t, err)

	require.NoError(t, NewLogSink(testLogger).Attach(s))
	require.NoError(t, s.Start())
	opener.sub(t, "dev1").send("GPS: 1.0, 2.0")
	require.Eventually(t, func() bool { return s.Snapshot().Accepted == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, s.Close())
	<-s.Done()
}
