package httpgin

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/eventhub/eventhub-go/internal/domain"
	redisrepo "github.com/eventhub/eventhub-go/internal/repository/redis"
	"github.com/eventhub/eventhub-go/internal/service"
	"github.com/eventhub/eventhub-go/internal/service/allocator"
	"github.com/eventhub/eventhub-go/internal/service/organizer"
	"github.com/eventhub/eventhub-go/internal/service/query"
	"github.com/eventhub/eventhub-go/internal/service/status"
	"github.com/eventhub/eventhub-go/internal/service/waitlist"
)

func NewRouter(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
	limiter *redisrepo.SlidingWindowLimiter,
	logger *slog.Logger,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery(), LoggingMiddleware(logger), RequestIDMiddleware(), CORS())
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	// Swagger UI
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// health
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Public API
	r.GET("/events", handleListEvents(svcs))
	r.GET("/events/:id", handleGetEvent(svcs))
	r.GET("/events/:id/status", handleGetEventStatus(svcs))

	r.POST("/events/:id/register",
		RateLimitMiddleware(limiter, logger), handleRegister(svcs, idem))
	r.POST("/registrations/:id/cancel", handleCancelRegistration(svcs))

	// Organizer API
	// TODO: replace the X-User-ID header with real auth middleware
	r.POST("/events", handleCreateEvent(svcs))
	r.PATCH("/events/:id/status", handleChangeStatus(svcs))
	r.PATCH("/events/:id/capacity", handleResizeCapacity(svcs))
	r.DELETE("/events/:id", handleDeleteEvent(svcs))
	r.POST("/registrations/:id/attendance", handleMarkAttendance(svcs))

	// Operational API
	r.POST("/events/:id/promote", handlePromote(svcs))
	r.POST("/events/:id/mirror/repair", handleRepairMirror(svcs))

	return r
}

// --- Handlers with Swagger annotations ---

// @Summary  List events
// @Param    limit  query  int  false  "page size"
// @Param    offset query  int  false  "offset"
// @Success  200  {array}  domain.Event
// @Router   /events [get]
func handleListEvents(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := parseIntDefault(c.Query("limit"), 20)
		offset := parseIntDefault(c.Query("offset"), 0)

		events, err := svcs.Query.ListEvents(c.Request.Context(), limit, offset)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, events, "public, max-age=15", true)
	}
}

// @Summary  Get event
// @Param    id  path  int  true  "Event ID"
// @Success  200  {object}  domain.Event
// @Failure  404  {object}  ErrorResponse
// @Router   /events/{id} [get]
func handleGetEvent(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		e, err := svcs.Query.GetEvent(c.Request.Context(), eventID)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, e, "public, max-age=30", true)
	}
}

// @Summary  Get live seat snapshot (polling endpoint)
// @Param    id  path  int  true  "Event ID"
// @Success  200  {object}  domain.EventSnapshot
// @Failure  404  {object}  ErrorResponse
// @Router   /events/{id}/status [get]
func handleGetEventStatus(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		snap, err := svcs.Query.EventStatus(c.Request.Context(), eventID)
		if err != nil {
			respondErr(c, err)
			return
		}
		// Short cache window; clients poll this endpoint.
		writeJSONWithCache(c, http.StatusOK, snap, "public, max-age=2", true)
	}
}

// @Summary  Register for an event (idempotent)
// @Param    id  path  int  true  "Event ID"
// @Header   201 {string} Idempotency-Key "echo"
// @Success  201 {object} domain.Registration "confirmed or waitlisted"
// @Failure  404 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse "closed / duplicate / full"
// @Failure  429 {object} ErrorResponse "rate limited"
// @Router   /events/{id}/register [post]
func handleRegister(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		userID, ok := actorID(c)
		if !ok {
			return
		}

		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		var idemStorageKey string
		if idem != nil && idemKey != "" {
			idemStorageKey = redisrepo.KeyIdemRegister(eventID, idemKey)

			if payload, ok, _ := idem.GetResult(c.Request.Context(), idemStorageKey); ok {
				c.Header("Idempotency-Key", idemKey)
				c.Data(http.StatusCreated, "application/json; charset=utf-8", []byte(payload))
				return
			}

			locked, err := idem.AcquireLock(c.Request.Context(), idemStorageKey, 60*time.Second)
			if err != nil {
				respondErr(c, err)
				return
			}
			if !locked {
				if payload, ok, _ := idem.GetResult(c.Request.Context(), idemStorageKey); ok {
					c.Header("Idempotency-Key", idemKey)
					c.Data(http.StatusCreated, "application/json; charset=utf-8", []byte(payload))
					return
				}
				c.Header("Retry-After", "1")
				c.JSON(http.StatusConflict, ErrorResponse{Error: "idempotency key in progress"})
				return
			}
		}

		reg, err := svcs.Allocator.Register(c.Request.Context(), userID, eventID)
		if err != nil {
			if idemStorageKey != "" && idem != nil {
				_ = idem.Release(c.Request.Context(), idemStorageKey)
			}
			respondErr(c, err)
			return
		}

		if idemStorageKey != "" && idem != nil {
			b, _ := json.Marshal(reg)
			_ = idem.SaveResult(c.Request.Context(), idemStorageKey, string(b))
			c.Header("Idempotency-Key", idemKey)
		}

		c.JSON(http.StatusCreated, reg)
	}
}

// @Summary  Cancel own registration
// @Param    id  path  int  true  "Registration ID"
// @Success  204
// @Failure  404 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse "attended / already cancelled"
// @Router   /registrations/{id}/cancel [post]
func handleCancelRegistration(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		regID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		userID, ok := actorID(c)
		if !ok {
			return
		}

		if err := svcs.Allocator.Cancel(c.Request.Context(), userID, regID); err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// @Summary  Create event
// @Param    req body  CreateEventRequest true "payload"
// @Success  201 {object} domain.Event
// @Failure  400 {object} ErrorResponse
// @Router   /events [post]
func handleCreateEvent(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		organizerID, ok := callerID(c)
		if !ok {
			return
		}
		var req CreateEventRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		eventDate, err := parseRFC3339(req.EventDate)
		if err != nil {
			badRequest(c, "invalid event_date (RFC3339)")
			return
		}
		deadline, err := parseRFC3339(req.RegistrationDeadline)
		if err != nil {
			badRequest(c, "invalid registration_deadline (RFC3339)")
			return
		}

		event, err := svcs.Organizer.CreateEvent(c.Request.Context(), organizer.CreateEventInput{
			OrganizerID:          organizerID,
			Title:                req.Title,
			Description:          req.Description,
			EventDate:            eventDate,
			RegistrationDeadline: deadline,
			MaxParticipants:      req.MaxParticipants,
			IsPaid:               req.IsPaid,
			PriceCents:           req.PriceCents,
			AllowWaitlist:        req.AllowWaitlist,
		})
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, event)
	}
}

// @Summary  Change event lifecycle status
// @Param    id   path  int  true  "Event ID"
// @Param    req  body  ChangeStatusRequest true "payload"
// @Success  200 {object} domain.Event
// @Failure  400 {object} ErrorResponse
// @Failure  403 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse "transition not allowed"
// @Router   /events/{id}/status [patch]
func handleChangeStatus(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		organizerID, ok := callerID(c)
		if !ok {
			return
		}
		var req ChangeStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		var postponedTo *time.Time
		if req.PostponedTo != "" {
			t, err := parseRFC3339(req.PostponedTo)
			if err != nil {
				badRequest(c, "invalid postponed_to (RFC3339)")
				return
			}
			postponedTo = &t
		}

		event, err := svcs.Status.ChangeStatus(
			c.Request.Context(),
			organizerID,
			eventID,
			domain.EventStatus(req.Status),
			req.Reason,
			postponedTo,
		)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, event)
	}
}

// @Summary  Resize event capacity
// @Param    id   path  int  true  "Event ID"
// @Param    req  body  ResizeCapacityRequest true "payload"
// @Success  200 {object} domain.Event
// @Failure  400 {object} ErrorResponse
// @Failure  403 {object} ErrorResponse
// @Router   /events/{id}/capacity [patch]
func handleResizeCapacity(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		organizerID, ok := callerID(c)
		if !ok {
			return
		}
		var req ResizeCapacityRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		event, err := svcs.Organizer.ResizeCapacity(
			c.Request.Context(), organizerID, eventID, req.MaxParticipants)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, event)
	}
}

// @Summary  Delete event
// @Param    id  path  int  true  "Event ID"
// @Success  204
// @Failure  403 {object} ErrorResponse
// @Failure  404 {object} ErrorResponse
// @Router   /events/{id} [delete]
func handleDeleteEvent(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		organizerID, ok := callerID(c)
		if !ok {
			return
		}

		if err := svcs.Organizer.DeleteEvent(c.Request.Context(), organizerID, eventID); err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// @Summary  Mark attendance
// @Param    id  path  int  true  "Registration ID"
// @Success  200 {object} domain.Registration
// @Failure  403 {object} ErrorResponse
// @Failure  404 {object} ErrorResponse
// @Router   /registrations/{id}/attendance [post]
func handleMarkAttendance(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		regID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		organizerID, ok := callerID(c)
		if !ok {
			return
		}

		reg, err := svcs.Organizer.MarkAttendance(c.Request.Context(), organizerID, regID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, reg)
	}
}

// @Summary  Promote oldest waitlisted registration
// @Param    id  path  int  true  "Event ID"
// @Success  200 {object} domain.Registration
// @Success  204 "nothing to promote"
// @Failure  404 {object} ErrorResponse
// @Router   /events/{id}/promote [post]
func handlePromote(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}

		reg, err := svcs.Waitlist.Promote(c.Request.Context(), eventID)
		if err != nil {
			respondErr(c, err)
			return
		}
		if reg == nil {
			c.Status(http.StatusNoContent)
			return
		}
		c.JSON(http.StatusOK, reg)
	}
}

// @Summary  Re-project the event snapshot into the mirror
// @Param    id  path  int  true  "Event ID"
// @Success  200 {object} domain.EventSnapshot
// @Failure  404 {object} ErrorResponse
// @Router   /events/{id}/mirror/repair [post]
func handleRepairMirror(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}

		snap, err := svcs.Query.RepairMirror(c.Request.Context(), eventID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, snap)
	}
}

// --- Helpers ---

func parseInt64Param(c *gin.Context, name string) (int64, bool) {
	s := c.Param(name)
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return v, true
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

// callerID reads the caller identity from the X-User-ID header. Stands in
// for auth middleware; the services only see the numeric ID.
func callerID(c *gin.Context) (int64, bool) {
	s := strings.TrimSpace(c.GetHeader("X-User-ID"))
	if s == "" {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "missing X-User-ID"})
		return 0, false
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v <= 0 {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid X-User-ID"})
		return 0, false
	}
	return v, true
}

// actorID resolves the acting user for register/cancel: the X-User-ID
// header when present, otherwise a {"user_id": n} request body.
func actorID(c *gin.Context) (int64, bool) {
	if strings.TrimSpace(c.GetHeader("X-User-ID")) != "" {
		return callerID(c)
	}

	var ref UserRef
	if err := c.ShouldBindJSON(&ref); err != nil || ref.UserID <= 0 {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "missing user identity"})
		return 0, false
	}
	return ref.UserID, true
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	switch {
	// allocator service
	case errors.Is(err, allocator.ErrEventNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "event not found"})
	case errors.Is(err, allocator.ErrRegistrationNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "registration not found"})
	case errors.Is(err, allocator.ErrRegistrationClosed):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "registration closed"})
	case errors.Is(err, allocator.ErrAlreadyRegistered):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "already registered"})
	case errors.Is(err, allocator.ErrEventFull):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "event full"})
	case errors.Is(err, allocator.ErrCannotCancelAttended):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "cannot cancel attended registration"})
	case errors.Is(err, allocator.ErrAlreadyCancelled):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "registration already cancelled"})
	// waitlist service
	case errors.Is(err, waitlist.ErrEventNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "event not found"})
	// status service
	case errors.Is(err, status.ErrEventNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "event not found"})
	case errors.Is(err, status.ErrNotOwner):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "not the event organizer"})
	case errors.Is(err, status.ErrInvalidStatus):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid status"})
	case errors.Is(err, status.ErrInvalidTransition):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "status transition not allowed"})
	case errors.Is(err, status.ErrPostponedDateRequired):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "postponed status requires postponed_to"})
	case errors.Is(err, status.ErrPostponedDatePast):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "postponed_to must be in the future"})
	// query service
	case errors.Is(err, query.ErrEventNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "event not found"})
	// organizer service
	case errors.Is(err, organizer.ErrEventNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "event not found"})
	case errors.Is(err, organizer.ErrRegistrationNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "registration not found"})
	case errors.Is(err, organizer.ErrNotOwner):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "not the event organizer"})
	case errors.Is(err, organizer.ErrInvalidCapacity):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "capacity must be positive"})
	case errors.Is(err, organizer.ErrInvalidSchedule):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "registration deadline must precede the event date"})
	case errors.Is(err, organizer.ErrInvalidTitle):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "title must not be empty"})
	case errors.Is(err, organizer.ErrInvalidPrice):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "paid event needs a positive price"})
	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}
