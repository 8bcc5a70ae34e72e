package waitlist_test

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
	"github.com/eventhub/eventhub-go/internal/service/waitlist"
)

// queueLedger keeps a FIFO of waitlisted rows and a free seat counter,
// mimicking the transactional promote of the Postgres ledger.
type queueLedger struct {
	mu      sync.Mutex
	seats   int
	queue   []domain.Registration
	missing bool
	fail    error
}

func (l *queueLedger) PromoteOldest(_ context.Context, eventID int64) (*domain.Registration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.missing {
		return nil, repository.ErrNotFound
	}
	if l.fail != nil {
		return nil, l.fail
	}
	if l.seats <= 0 || len(l.queue) == 0 {
		return nil, repository.ErrNothingToPromote
	}

	l.seats--
	reg := l.queue[0]
	l.queue = l.queue[1:]
	reg.Status = domain.RegistrationConfirmed
	return &reg, nil
}

type promotedRecorder struct {
	mu   sync.Mutex
	regs []domain.Registration
}

func (r *promotedRecorder) WaitlistPromoted(reg domain.Registration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.regs = append(r.regs, reg)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waiting(id, userID int64, offset time.Duration) domain.Registration {
	return domain.Registration{
		ID:        id,
		UserID:    userID,
		EventID:   1,
		Status:    domain.RegistrationWaitlist,
		CreatedAt: time.Now().Add(offset),
	}
}

func TestPromoteTakesOldestFirst(t *testing.T) {
	ledger := &queueLedger{
		seats: 3,
		queue: []domain.Registration{
			waiting(1, 10, 0),
			waiting(2, 11, time.Second),
			waiting(3, 12, 2*time.Second),
		},
	}
	fx := &promotedRecorder{}
	svc := waitlist.New(ledger, fx, testLogger())

	ctx := context.Background()
	for _, wantUser := range []int64{10, 11, 12} {
		reg, err := svc.Promote(ctx, 1)
		require.NoError(t, err)
		require.NotNil(t, reg)
		assert.Equal(t, wantUser, reg.UserID)
		assert.Equal(t, domain.RegistrationConfirmed, reg.Status)
	}

	assert.Len(t, fx.regs, 3)
	assert.Equal(t, int64(10), fx.regs[0].UserID)
}

func TestPromoteNothingWaiting(t *testing.T) {
	svc := waitlist.New(&queueLedger{seats: 2}, &promotedRecorder{}, testLogger())

	reg, err := svc.Promote(context.Background(), 1)
	assert.NoError(t, err)
	assert.Nil(t, reg)
}

func TestPromoteNoFreeSeat(t *testing.T) {
	ledger := &queueLedger{seats: 0, queue: []domain.Registration{waiting(1, 10, 0)}}
	fx := &promotedRecorder{}
	svc := waitlist.New(ledger, fx, testLogger())

	reg, err := svc.Promote(context.Background(), 1)
	assert.NoError(t, err)
	assert.Nil(t, reg)
	assert.Empty(t, fx.regs)
	assert.Len(t, ledger.queue, 1)
}

func TestPromoteEventMissing(t *testing.T) {
	svc := waitlist.New(&queueLedger{missing: true}, &promotedRecorder{}, testLogger())

	_, err := svc.Promote(context.Background(), 1)
	assert.ErrorIs(t, err, waitlist.ErrEventNotFound)
}

func TestPromotePropagatesStoreError(t *testing.T) {
	boom := errors.New("connection reset")
	svc := waitlist.New(&queueLedger{fail: boom}, &promotedRecorder{}, testLogger())

	_, err := svc.Promote(context.Background(), 1)
	assert.ErrorIs(t, err, boom)
}

func TestDrainPromotesUntilSeatsRunOut(t *testing.T) {
	ledger := &queueLedger{
		seats: 2,
		queue: []domain.Registration{
			waiting(1, 10, 0),
			waiting(2, 11, time.Second),
			waiting(3, 12, 2*time.Second),
		},
	}
	fx := &promotedRecorder{}
	svc := waitlist.New(ledger, fx, testLogger())

	promoted, err := svc.Drain(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, promoted, 2)
	assert.Equal(t, int64(10), promoted[0].UserID)
	assert.Equal(t, int64(11), promoted[1].UserID)

	// Third stays queued: no seat left.
	assert.Len(t, ledger.queue, 1)
	assert.Len(t, fx.regs, 2)
}

func TestConcurrentPromotionsBoundedByFreeSeats(t *testing.T) {
	ledger := &queueLedger{
		seats: 2,
		queue: []domain.Registration{
			waiting(1, 10, 0),
			waiting(2, 11, time.Second),
			waiting(3, 12, 2*time.Second),
			waiting(4, 13, 3*time.Second),
		},
	}
	fx := &promotedRecorder{}
	svc := waitlist.New(ledger, fx, testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Promote(context.Background(), 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// Two free seats, so exactly two promotions no matter how many racers.
	assert.Len(t, fx.regs, 2)
	assert.Len(t, ledger.queue, 2)
	assert.Equal(t, 0, ledger.seats)
}

func TestDrainEmptyQueue(t *testing.T) {
	svc := waitlist.New(&queueLedger{seats: 5}, &promotedRecorder{}, testLogger())

	promoted, err := svc.Drain(context.Background(), 1)
	assert.NoError(t, err)
	assert.Empty(t, promoted)
}
