package organizer_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventhub/eventhub-go/internal/domain"
	"github.com/eventhub/eventhub-go/internal/repository"
	"github.com/eventhub/eventhub-go/internal/service/organizer"
)

type orgStore struct {
	events    map[int64]*domain.Event
	regs      map[int64]*domain.Registration
	confirmed map[int64]int
	nextID    int64
}

func newOrgStore() *orgStore {
	return &orgStore{
		events:    make(map[int64]*domain.Event),
		regs:      make(map[int64]*domain.Registration),
		confirmed: make(map[int64]int),
	}
}

func (s *orgStore) Get(_ context.Context, id int64) (*domain.Event, error) {
	e, ok := s.events[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *orgStore) Create(_ context.Context, e *domain.Event) (int64, error) {
	s.nextID++
	cp := *e
	cp.ID = s.nextID
	cp.AvailableSeats = cp.MaxParticipants
	cp.IsActive = true
	cp.Status = domain.EventActive
	s.events[cp.ID] = &cp
	return cp.ID, nil
}

func (s *orgStore) Resize(_ context.Context, id int64, newMax int) (*domain.Event, error) {
	e, ok := s.events[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	e.MaxParticipants = newMax
	e.AvailableSeats = newMax - s.confirmed[id]
	if e.AvailableSeats < 0 {
		e.AvailableSeats = 0
	}
	cp := *e
	return &cp, nil
}

func (s *orgStore) Delete(_ context.Context, id int64) error {
	if _, ok := s.events[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.events, id)
	return nil
}

func (s *orgStore) FindByID(_ context.Context, id int64) (*domain.Registration, error) {
	r, ok := s.regs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *orgStore) MarkAttended(_ context.Context, id int64) (*domain.Registration, error) {
	r, ok := s.regs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	r.Attended = true
	if r.AttendanceTime == nil {
		now := time.Now()
		r.AttendanceTime = &now
	}
	cp := *r
	return &cp, nil
}

type drainRecorder struct {
	eventIDs []int64
	result   []domain.Registration
}

func (d *drainRecorder) Drain(_ context.Context, eventID int64) ([]domain.Registration, error) {
	d.eventIDs = append(d.eventIDs, eventID)
	return d.result, nil
}

type eventEffects struct {
	changed []int64
	deleted []int64
}

func (e *eventEffects) EventChanged(eventID int64) { e.changed = append(e.changed, eventID) }
func (e *eventEffects) EventDeleted(eventID int64) { e.deleted = append(e.deleted, eventID) }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func validInput() organizer.CreateEventInput {
	return organizer.CreateEventInput{
		OrganizerID:          7,
		Title:                "workshop",
		EventDate:            time.Now().Add(72 * time.Hour),
		RegistrationDeadline: time.Now().Add(48 * time.Hour),
		MaxParticipants:      20,
	}
}

func newService(store *orgStore, drain *drainRecorder, fx *eventEffects) *organizer.Service {
	return organizer.New(store, store, drain, fx, testLogger())
}

func TestCreateEvent(t *testing.T) {
	store := newOrgStore()
	svc := newService(store, &drainRecorder{}, &eventEffects{})

	e, err := svc.CreateEvent(context.Background(), validInput())
	require.NoError(t, err)

	assert.Equal(t, "workshop", e.Title)
	assert.Equal(t, 20, e.MaxParticipants)
	assert.Equal(t, 20, e.AvailableSeats)
	assert.Equal(t, domain.EventActive, e.Status)
	assert.True(t, e.IsActive)
}

func TestCreateEventValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(in *organizer.CreateEventInput)
		want   error
	}{
		{"empty title", func(in *organizer.CreateEventInput) { in.Title = "  " }, organizer.ErrInvalidTitle},
		{"zero capacity", func(in *organizer.CreateEventInput) { in.MaxParticipants = 0 }, organizer.ErrInvalidCapacity},
		{"negative capacity", func(in *organizer.CreateEventInput) { in.MaxParticipants = -5 }, organizer.ErrInvalidCapacity},
		{"deadline after event", func(in *organizer.CreateEventInput) {
			in.RegistrationDeadline = in.EventDate.Add(time.Hour)
		}, organizer.ErrInvalidSchedule},
		{"paid without price", func(in *organizer.CreateEventInput) { in.IsPaid = true }, organizer.ErrInvalidPrice},
	}

	svc := newService(newOrgStore(), &drainRecorder{}, &eventEffects{})
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validInput()
			tc.mutate(&in)
			_, err := svc.CreateEvent(context.Background(), in)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestResizeCapacityGrowDrainsWaitlist(t *testing.T) {
	store := newOrgStore()
	drain := &drainRecorder{result: []domain.Registration{{ID: 5}}}
	fx := &eventEffects{}
	svc := newService(store, drain, fx)

	created, err := svc.CreateEvent(context.Background(), validInput())
	require.NoError(t, err)

	e, err := svc.ResizeCapacity(context.Background(), 7, created.ID, 30)
	require.NoError(t, err)
	assert.Equal(t, 30, e.MaxParticipants)
	assert.Equal(t, []int64{created.ID}, drain.eventIDs)
	assert.Equal(t, []int64{created.ID}, fx.changed)
}

func TestResizeCapacityShrinkBelowConfirmed(t *testing.T) {
	store := newOrgStore()
	drain := &drainRecorder{}
	svc := newService(store, drain, &eventEffects{})

	created, err := svc.CreateEvent(context.Background(), validInput())
	require.NoError(t, err)

	// 15 confirmed seats taken; shrink capacity under that.
	store.confirmed[created.ID] = 15
	store.events[created.ID].AvailableSeats = 5

	e, err := svc.ResizeCapacity(context.Background(), 7, created.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, 10, e.MaxParticipants)
	assert.Equal(t, 0, e.AvailableSeats)
	// Nobody gets cancelled and nothing is promoted into a full pool.
	assert.Empty(t, drain.eventIDs)
}

func TestResizeCapacityNotOwner(t *testing.T) {
	store := newOrgStore()
	svc := newService(store, &drainRecorder{}, &eventEffects{})

	created, err := svc.CreateEvent(context.Background(), validInput())
	require.NoError(t, err)

	_, err = svc.ResizeCapacity(context.Background(), 99, created.ID, 30)
	assert.ErrorIs(t, err, organizer.ErrNotOwner)
}

func TestResizeCapacityInvalid(t *testing.T) {
	svc := newService(newOrgStore(), &drainRecorder{}, &eventEffects{})

	_, err := svc.ResizeCapacity(context.Background(), 7, 1, 0)
	assert.ErrorIs(t, err, organizer.ErrInvalidCapacity)
}

func TestDeleteEvent(t *testing.T) {
	store := newOrgStore()
	fx := &eventEffects{}
	svc := newService(store, &drainRecorder{}, fx)

	created, err := svc.CreateEvent(context.Background(), validInput())
	require.NoError(t, err)

	require.NoError(t, svc.DeleteEvent(context.Background(), 7, created.ID))
	assert.NotContains(t, store.events, created.ID)
	assert.Equal(t, []int64{created.ID}, fx.deleted)

	err = svc.DeleteEvent(context.Background(), 7, created.ID)
	assert.ErrorIs(t, err, organizer.ErrEventNotFound)
}

func TestDeleteEventNotOwner(t *testing.T) {
	store := newOrgStore()
	svc := newService(store, &drainRecorder{}, &eventEffects{})

	created, err := svc.CreateEvent(context.Background(), validInput())
	require.NoError(t, err)

	err = svc.DeleteEvent(context.Background(), 99, created.ID)
	assert.ErrorIs(t, err, organizer.ErrNotOwner)
	assert.Contains(t, store.events, created.ID)
}

func TestMarkAttendance(t *testing.T) {
	store := newOrgStore()
	svc := newService(store, &drainRecorder{}, &eventEffects{})

	created, err := svc.CreateEvent(context.Background(), validInput())
	require.NoError(t, err)
	store.regs[1] = &domain.Registration{
		ID: 1, UserID: 10, EventID: created.ID,
		Status: domain.RegistrationConfirmed,
	}

	reg, err := svc.MarkAttendance(context.Background(), 7, 1)
	require.NoError(t, err)
	assert.True(t, reg.Attended)
	require.NotNil(t, reg.AttendanceTime)
	firstTime := *reg.AttendanceTime

	// Second scan keeps the original check-in time.
	again, err := svc.MarkAttendance(context.Background(), 7, 1)
	require.NoError(t, err)
	assert.Equal(t, firstTime, *again.AttendanceTime)
}

func TestMarkAttendanceNotOwner(t *testing.T) {
	store := newOrgStore()
	svc := newService(store, &drainRecorder{}, &eventEffects{})

	created, err := svc.CreateEvent(context.Background(), validInput())
	require.NoError(t, err)
	store.regs[1] = &domain.Registration{ID: 1, UserID: 10, EventID: created.ID}

	_, err = svc.MarkAttendance(context.Background(), 99, 1)
	assert.ErrorIs(t, err, organizer.ErrNotOwner)
	assert.False(t, store.regs[1].Attended)
}

func TestMarkAttendanceMissingRegistration(t *testing.T) {
	svc := newService(newOrgStore(), &drainRecorder{}, &eventEffects{})

	_, err := svc.MarkAttendance(context.Background(), 7, 42)
	assert.ErrorIs(t, err, organizer.ErrRegistrationNotFound)
}
