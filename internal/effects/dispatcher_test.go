package effects

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventhub/eventhub-go/internal/domain"
	"github.com/eventhub/eventhub-go/internal/repository"
)

type sideEffectSink struct {
	mu sync.Mutex

	notifications []string
	recipients    []int64
	notifyErrFor  int64

	tickets map[int64]string

	projected   []int64
	mirrorDrops []int64
	published   []int64
	cacheDrops  []int64

	snap    *domain.EventSnapshot
	regs    []domain.Registration
	regsErr error
}

func (s *sideEffectSink) Notify(_ context.Context, eventType string, recipientID int64, _ map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.notifyErrFor != 0 && recipientID == s.notifyErrFor {
		return errors.New("smtp timeout")
	}
	s.notifications = append(s.notifications, eventType)
	s.recipients = append(s.recipients, recipientID)
	return nil
}

func (s *sideEffectSink) AttachTicket(_ context.Context, registrationID int64, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tickets == nil {
		s.tickets = make(map[int64]string)
	}
	s.tickets[registrationID] = ref
	return nil
}

func (s *sideEffectSink) Project(_ context.Context, eventID int64, _ domain.EventSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projected = append(s.projected, eventID)
	return nil
}

func (s *sideEffectSink) Invalidate(_ context.Context, eventID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mirrorDrops = append(s.mirrorDrops, eventID)
	return nil
}

func (s *sideEffectSink) PublishEventChanged(_ context.Context, eventID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published = append(s.published, eventID)
	return nil
}

func (s *sideEffectSink) Snapshot(_ context.Context, eventID int64) (*domain.EventSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap == nil {
		return nil, repository.ErrNotFound
	}
	cp := *s.snap
	return &cp, nil
}

func (s *sideEffectSink) ListActiveByEvent(_ context.Context, _ int64) ([]domain.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.regs, s.regsErr
}

func (s *sideEffectSink) InvalidateEvent(_ context.Context, eventID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cacheDrops = append(s.cacheDrops, eventID)
	return nil
}

func newTestDispatcher(sink *sideEffectSink) *Dispatcher {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewDispatcher(
		sink, RefTicketGenerator{}, sink, sink, sink, sink, sink, sink, logger)
}

func sampleReg() domain.Registration {
	return domain.Registration{
		ID:      3,
		UserID:  10,
		EventID: 1,
		Status:  domain.RegistrationConfirmed,
	}
}

func TestRegistrationConfirmedFanOut(t *testing.T) {
	sink := &sideEffectSink{snap: &domain.EventSnapshot{EventID: 1, UpdatedAt: time.Now()}}
	d := newTestDispatcher(sink)

	d.RegistrationConfirmed(sampleReg())
	d.Wait()

	assert.Equal(t, "EVENTHUB-REG-3-EVENT-1-USER-10", sink.tickets[3])
	assert.Equal(t, []string{TypeRegistrationConfirmed}, sink.notifications)
	assert.Equal(t, []int64{10}, sink.recipients)
	assert.Equal(t, []int64{1}, sink.cacheDrops)
	assert.Equal(t, []int64{1}, sink.projected)
	assert.Equal(t, []int64{1}, sink.published)
}

func TestWaitlistedNotifiesWithoutProjection(t *testing.T) {
	sink := &sideEffectSink{snap: &domain.EventSnapshot{EventID: 1}}
	d := newTestDispatcher(sink)

	reg := sampleReg()
	reg.Status = domain.RegistrationWaitlist
	d.Waitlisted(reg)
	d.Wait()

	assert.Equal(t, []string{TypeWaitlisted}, sink.notifications)
	assert.Empty(t, sink.tickets)
	assert.Empty(t, sink.projected)
	assert.Empty(t, sink.published)
}

func TestRegistrationCancelledFanOut(t *testing.T) {
	sink := &sideEffectSink{snap: &domain.EventSnapshot{EventID: 1}}
	d := newTestDispatcher(sink)

	d.RegistrationCancelled(10, 1)
	d.Wait()

	assert.Equal(t, []string{TypeRegistrationCancelled}, sink.notifications)
	assert.Equal(t, []int64{1}, sink.projected)
	assert.Empty(t, sink.tickets)
}

func TestWaitlistPromotedAttachesTicket(t *testing.T) {
	sink := &sideEffectSink{snap: &domain.EventSnapshot{EventID: 1}}
	d := newTestDispatcher(sink)

	d.WaitlistPromoted(sampleReg())
	d.Wait()

	assert.Equal(t, "EVENTHUB-REG-3-EVENT-1-USER-10", sink.tickets[3])
	assert.Equal(t, []string{TypeWaitlistPromoted}, sink.notifications)
	assert.Equal(t, []int64{1}, sink.projected)
}

func TestStatusChangedBlastsAllRegistrants(t *testing.T) {
	sink := &sideEffectSink{
		snap: &domain.EventSnapshot{EventID: 1},
		regs: []domain.Registration{
			{ID: 1, UserID: 10, EventID: 1, Status: domain.RegistrationConfirmed},
			{ID: 2, UserID: 11, EventID: 1, Status: domain.RegistrationConfirmed},
			{ID: 3, UserID: 12, EventID: 1, Status: domain.RegistrationWaitlist},
		},
	}
	d := newTestDispatcher(sink)

	d.StatusChanged(1, domain.EventCancelled, "venue flooded")
	d.Wait()

	assert.Equal(t, []int64{10, 11, 12}, sink.recipients)
	for _, typ := range sink.notifications {
		assert.Equal(t, TypeEventStatusChanged, typ)
	}
	assert.Equal(t, []int64{1}, sink.projected)
}

func TestStatusChangedBlastSurvivesRecipientFailure(t *testing.T) {
	sink := &sideEffectSink{
		snap:         &domain.EventSnapshot{EventID: 1},
		notifyErrFor: 11,
		regs: []domain.Registration{
			{ID: 1, UserID: 10, EventID: 1},
			{ID: 2, UserID: 11, EventID: 1},
			{ID: 3, UserID: 12, EventID: 1},
		},
	}
	d := newTestDispatcher(sink)

	d.StatusChanged(1, domain.EventPostponed, "")
	d.Wait()

	// 11 failed; 10 and 12 still got theirs.
	assert.Equal(t, []int64{10, 12}, sink.recipients)
}

func TestEventDeletedDropsDerivedViews(t *testing.T) {
	sink := &sideEffectSink{snap: &domain.EventSnapshot{EventID: 1}}
	d := newTestDispatcher(sink)

	d.EventDeleted(1)
	d.Wait()

	assert.Equal(t, []int64{1}, sink.cacheDrops)
	assert.Equal(t, []int64{1}, sink.mirrorDrops)
	assert.Equal(t, []int64{1}, sink.published)
	assert.Empty(t, sink.projected)
}

func TestProjectionSkippedWhenSnapshotGone(t *testing.T) {
	sink := &sideEffectSink{} // no snapshot available
	d := newTestDispatcher(sink)

	d.RegistrationCancelled(10, 1)
	d.Wait()

	assert.Empty(t, sink.projected)
	assert.Empty(t, sink.published)
	// Notification still goes out.
	require.Len(t, sink.notifications, 1)
}

func TestTicketGeneratorRejectsIncompleteRow(t *testing.T) {
	_, err := RefTicketGenerator{}.Generate(context.Background(), domain.Registration{})
	assert.Error(t, err)
}
