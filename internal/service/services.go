package service

import (
	"log/slog"

	"github.com/eventhub/eventhub-go/internal/effects"
	postgres "github.com/eventhub/eventhub-go/internal/repository/postgres"
	redisrepo "github.com/eventhub/eventhub-go/internal/repository/redis"
	"github.com/eventhub/eventhub-go/internal/service/allocator"
	"github.com/eventhub/eventhub-go/internal/service/organizer"
	"github.com/eventhub/eventhub-go/internal/service/query"
	"github.com/eventhub/eventhub-go/internal/service/status"
	"github.com/eventhub/eventhub-go/internal/service/waitlist"
)

type Services struct {
	Allocator *allocator.Service
	Waitlist  *waitlist.Service
	Status    *status.Service
	Query     *query.Service
	Organizer *organizer.Service

	// Effects is exposed so shutdown can wait for in-flight side effects.
	Effects *effects.Dispatcher
}

func NewServices(
	store *postgres.Store,
	cache *redisrepo.Cache,
	mirror *redisrepo.Mirror,
	pubsub *redisrepo.EventsPubSub,
	logger *slog.Logger,
) *Services {
	events := store.Events()
	regs := store.Registrations()

	dispatcher := effects.NewDispatcher(
		effects.NewLogNotifier(logger),
		effects.RefTicketGenerator{},
		regs,
		mirror,
		pubsub,
		events,
		regs,
		cache,
		logger,
	)

	wl := waitlist.New(regs, dispatcher, logger)

	return &Services{
		Allocator: allocator.New(events, regs, wl, dispatcher, logger),
		Waitlist:  wl,
		Status:    status.New(events, events, dispatcher, logger),
		Query:     query.New(events, mirror, cache, logger),
		Organizer: organizer.New(events, regs, wl, dispatcher, logger),
		Effects:   dispatcher,
	}
}
