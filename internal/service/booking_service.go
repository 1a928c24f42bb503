package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"chatbook/internal/domain"
	"chatbook/internal/events"
	"chatbook/internal/metrics"
	"chatbook/internal/models"
	"chatbook/internal/notify"
	"chatbook/internal/schedule"

	"github.com/rs/zerolog"
)

const (
	TaskUpsert       = "upsert"
	TaskUpdateStatus = "update_status"
)

// Dependencies groups the collaborators of BookingService. Drafts, EventBus
// and SheetsWorker are optional.
type Dependencies struct {
	Tenants      domain.TenantProvider
	Repo         domain.BookingRepository
	Oracle       domain.CapacityOracle
	Suggester    domain.SlotSuggester
	Notifier     domain.Notifier
	Drafts       domain.DraftManager
	EventBus     domain.EventPublisher
	SheetsWorker domain.SyncWorker
}

// BookingService runs create, update and cancel against the ledger and the
// external calendar.
type BookingService struct {
	tenants      domain.TenantProvider
	repo         domain.BookingRepository
	oracle       domain.CapacityOracle
	suggester    domain.SlotSuggester
	notifier     domain.Notifier
	drafts       domain.DraftManager
	eventBus     domain.EventPublisher
	sheetsWorker domain.SyncWorker
	now          func() time.Time
	logger       *zerolog.Logger
}

var _ domain.BookingService = (*BookingService)(nil)

func NewBookingService(deps Dependencies, logger *zerolog.Logger) *BookingService {
	return &BookingService{
		tenants:      deps.Tenants,
		repo:         deps.Repo,
		oracle:       deps.Oracle,
		suggester:    deps.Suggester,
		notifier:     deps.Notifier,
		drafts:       deps.Drafts,
		eventBus:     deps.EventBus,
		sheetsWorker: deps.SheetsWorker,
		now:          time.Now,
		logger:       logger,
	}
}

// SetClock replaces the clock used for temporal checks.
func (s *BookingService) SetClock(now func() time.Time) {
	s.now = now
}

func (s *BookingService) Create(ctx context.Context, req models.CreateRequest) (*models.BookingResult, error) {
	res, err := s.create(ctx, req)
	return s.finish(models.ActionCreated, req.BotID, res, err)
}

func (s *BookingService) Update(ctx context.Context, req models.UpdateRequest) (*models.BookingResult, error) {
	res, err := s.update(ctx, req)
	return s.finish(models.ActionUpdated, req.BotID, res, err)
}

func (s *BookingService) Cancel(ctx context.Context, req models.CancelRequest) (*models.BookingResult, error) {
	res, err := s.cancel(ctx, req)
	return s.finish(models.ActionCancelled, req.BotID, res, err)
}

func (s *BookingService) create(ctx context.Context, req models.CreateRequest) (*models.BookingResult, error) {
	tenant, err := s.tenants.Get(ctx, req.BotID)
	if err != nil {
		return nil, err
	}
	policy := &tenant.Policy

	name := strings.TrimSpace(req.Name)
	email := normalizeEmail(req.Email)
	phone := strings.TrimSpace(req.Phone)
	switch {
	case policy.NameRequired() && name == "":
		return nil, missingField("name")
	case email == "":
		return nil, missingField("email")
	case policy.RequirePhone && phone == "":
		return nil, missingField("phone")
	case strings.TrimSpace(req.DateTime) == "":
		return nil, missingField("date and time")
	}
	if rej := validateEmail(email); rej != nil {
		return nil, rej
	}
	if rej := validateCustomFields(policy, req.CustomFields); rej != nil {
		return nil, rej
	}

	svc, rej := resolveService(tenant, req.Service)
	if rej != nil {
		return nil, rej
	}

	start, rej := parseDateTime(req.DateTime, policy.Loc())
	if rej != nil {
		return nil, rej
	}
	now := s.now()
	if rej := s.checkSlot(ctx, tenant, svc, start, now, "", ""); rej != nil {
		return nil, rej
	}
	end := start.Add(svc.Duration())

	booking := &models.Booking{
		BotID:         tenant.ID,
		CustomerName:  name,
		CustomerEmail: email,
		CustomerPhone: phone,
		ServiceKey:    svc.Key,
		ServiceName:   svc.Name,
		CalendarID:    svc.CalendarID,
		Start:         start.UTC(),
		End:           end.UTC(),
		Timezone:      policy.Loc().String(),
		Status:        models.StatusActive,
		CustomFields:  req.CustomFields,
	}

	event, err := s.oracle.CreateEvent(ctx, svc.CalendarID, eventInput(booking, tenant))
	if err != nil {
		return nil, calendarError(err)
	}
	booking.EventID = event.ID
	booking.EventLink = event.HTMLLink

	persisted := true
	if err := s.repo.CreateBooking(ctx, booking); err != nil {
		persisted = false
		s.logger.Error().Err(err).
			Str("bot_id", tenant.ID).
			Str("event_id", event.ID).
			Str("calendar_id", svc.CalendarID).
			Msg("booking not persisted after calendar event was created")
	}

	s.publishEvent(events.EventBookingCreated, booking, persisted, "")
	if persisted {
		s.enqueueSync(ctx, booking, TaskUpsert)
	}
	s.clearDraft(ctx, tenant.ID, req.ConversationID)

	link := s.calendarLink(booking, tenant)
	result := successResult(models.ActionCreated, booking, link)
	if policy.SendConfirmation {
		s.notify(ctx, result, notify.KindConfirmation, booking, tenant, link, "")
	}
	return result, nil
}

func (s *BookingService) update(ctx context.Context, req models.UpdateRequest) (*models.BookingResult, error) {
	tenant, err := s.tenants.Get(ctx, req.BotID)
	if err != nil {
		return nil, err
	}
	policy := &tenant.Policy

	email := normalizeEmail(req.Email)
	if rej := validateEmail(email); rej != nil {
		return nil, rej
	}
	if strings.TrimSpace(req.OriginalDateTime) == "" {
		return nil, missingField("original date and time")
	}
	if strings.TrimSpace(req.NewDateTime) == "" && strings.TrimSpace(req.Service) == "" {
		return nil, missingField("new date and time or service")
	}
	original, rej := parseDateTime(req.OriginalDateTime, policy.Loc())
	if rej != nil {
		return nil, rej
	}

	booking, err := s.lookup(ctx, tenant.ID, email, original)
	if err != nil {
		return nil, err
	}

	svc, ok := tenant.Service(booking.ServiceKey)
	if strings.TrimSpace(req.Service) != "" {
		var rej *domain.RejectionError
		if svc, rej = resolveService(tenant, req.Service); rej != nil {
			return nil, rej
		}
	} else if !ok {
		return nil, domain.Reject(domain.ErrConfiguration, domain.ReasonServiceNotFound,
			fmt.Sprintf("service %q is no longer offered", booking.ServiceName))
	}
	if svc.CalendarID != booking.CalendarID {
		return nil, domain.Reject(domain.ErrValidation, domain.ReasonCalendarChange,
			"this service is booked on a different calendar; cancel the booking and book again")
	}

	start := booking.Start
	if strings.TrimSpace(req.NewDateTime) != "" {
		var rej *domain.RejectionError
		if start, rej = parseDateTime(req.NewDateTime, policy.Loc()); rej != nil {
			return nil, rej
		}
	}
	now := s.now()
	if rej := s.checkSlot(ctx, tenant, svc, start, now, booking.ID, booking.EventID); rej != nil {
		return nil, rej
	}

	updated := *booking
	updated.ServiceKey = svc.Key
	updated.ServiceName = svc.Name
	updated.Start = start.UTC()
	updated.End = start.Add(svc.Duration()).UTC()

	event, err := s.moveEvent(ctx, &updated, tenant)
	if err != nil {
		return nil, calendarError(err)
	}
	updated.EventID = event.ID
	if event.HTMLLink != "" {
		updated.EventLink = event.HTMLLink
	}

	persisted := true
	if err := s.repo.RescheduleBookingWithVersion(ctx, &updated); err != nil {
		persisted = false
		s.logger.Error().Err(err).
			Str("bot_id", tenant.ID).
			Str("booking_id", updated.ID).
			Str("event_id", updated.EventID).
			Msg("booking not updated after calendar event was moved")
	}

	s.publishEvent(events.EventBookingUpdated, &updated, persisted, "")
	if persisted {
		s.enqueueSync(ctx, &updated, TaskUpsert)
	}
	s.clearDraft(ctx, tenant.ID, req.ConversationID)

	link := s.calendarLink(&updated, tenant)
	result := successResult(models.ActionUpdated, &updated, link)
	if policy.SendConfirmation {
		s.notify(ctx, result, notify.KindConfirmation, &updated, tenant, link, "")
	}
	return result, nil
}

func (s *BookingService) cancel(ctx context.Context, req models.CancelRequest) (*models.BookingResult, error) {
	tenant, err := s.tenants.Get(ctx, req.BotID)
	if err != nil {
		return nil, err
	}
	policy := &tenant.Policy

	email := normalizeEmail(req.Email)
	if rej := validateEmail(email); rej != nil {
		return nil, rej
	}
	around, rej := parseDateTime(req.DateTime, policy.Loc())
	if rej != nil {
		return nil, rej
	}

	booking, err := s.lookup(ctx, tenant.ID, email, around)
	if err != nil {
		return nil, err
	}

	if booking.EventID != "" {
		if err := s.oracle.DeleteEvent(ctx, booking.CalendarID, booking.EventID); err != nil {
			return nil, calendarError(err)
		}
	}

	if err := s.repo.CancelBookingWithVersion(ctx, booking.ID, booking.Version); err != nil {
		s.logger.Error().Err(err).
			Str("bot_id", tenant.ID).
			Str("booking_id", booking.ID).
			Str("event_id", booking.EventID).
			Msg("booking not cancelled after calendar event was deleted")
		rej := domain.Reject(domain.ErrStorage, domain.ReasonStorageError, "the booking could not be cancelled, please try again")
		rej.Err = err
		return nil, rej
	}
	booking.Status = models.StatusCancelled
	booking.Version++

	reason := strings.TrimSpace(req.Reason)
	s.publishEvent(events.EventBookingCancelled, booking, true, reason)
	s.enqueueSync(ctx, booking, TaskUpdateStatus)
	s.clearDraft(ctx, tenant.ID, req.ConversationID)

	result := successResult(models.ActionCancelled, booking, "")
	if policy.SendConfirmation {
		s.notify(ctx, result, notify.KindCancellation, booking, tenant, "", reason)
	}
	return result, nil
}

// checkSlot runs the temporal gate, then the internal ledger, then the
// external calendar. Policy rejections carry suggestions.
func (s *BookingService) checkSlot(ctx context.Context, tenant *models.Tenant, svc *models.ServiceDefinition, start, now time.Time, excludeBookingID, excludeEventID string) error {
	policy := &tenant.Policy
	if reason := schedule.Violation(start, now, policy, svc); reason != "" {
		return s.policyRejection(ctx, tenant, svc, start, now, reason, excludeBookingID, excludeEventID)
	}
	end := start.Add(svc.Duration())

	count, err := s.repo.CountOverlapping(ctx, tenant.ID, svc.CalendarID, start, end, excludeBookingID)
	if err != nil {
		rej := domain.Reject(domain.ErrStorage, domain.ReasonStorageError, "availability could not be checked, please try again")
		rej.Err = err
		return rej
	}
	if count >= svc.MaxConcurrent() {
		return s.policyRejection(ctx, tenant, svc, start, now, domain.ReasonAtCapacity, excludeBookingID, excludeEventID)
	}

	free, err := s.oracle.HasCapacity(ctx, svc.CalendarID, start, end, svc.MaxConcurrent(), excludeEventID)
	if err != nil {
		s.logger.Warn().Err(err).
			Str("bot_id", tenant.ID).
			Str("calendar_id", svc.CalendarID).
			Msg("external capacity check failed, continuing")
		return nil
	}
	if !free {
		return s.policyRejection(ctx, tenant, svc, start, now, domain.ReasonCalendarFull, excludeBookingID, excludeEventID)
	}
	return nil
}

func (s *BookingService) policyRejection(ctx context.Context, tenant *models.Tenant, svc *models.ServiceDefinition, start, now time.Time, reason, excludeBookingID, excludeEventID string) *domain.RejectionError {
	rej := domain.Reject(domain.ErrPolicy, reason, temporalMessage(reason, &tenant.Policy))
	if s.suggester != nil {
		rej.SuggestedSlots = s.suggester.Suggest(ctx, domain.SuggestRequest{
			BotID:            tenant.ID,
			RequestedStart:   start,
			Now:              now,
			Policy:           tenant.Policy,
			Service:          *svc,
			ExcludeBookingID: excludeBookingID,
			ExcludeEventID:   excludeEventID,
		})
	}
	return rej
}

func (s *BookingService) lookup(ctx context.Context, botID, email string, around time.Time) (*models.Booking, error) {
	booking, err := s.repo.FindActiveByEmailNear(ctx, botID, email, around, models.LookupToleranceMinutes*time.Minute)
	if err != nil {
		if errors.Is(err, domain.ErrBookingNotFound) {
			return nil, domain.Reject(domain.ErrValidation, domain.ReasonBookingNotFound,
				"no active booking was found for this email near that time")
		}
		rej := domain.Reject(domain.ErrStorage, domain.ReasonStorageError, "the booking could not be looked up, please try again")
		rej.Err = err
		return nil, rej
	}
	return booking, nil
}

// moveEvent patches the existing event, recreating it when the booking has
// none or the calendar no longer knows it.
func (s *BookingService) moveEvent(ctx context.Context, b *models.Booking, tenant *models.Tenant) (*models.CalendarEvent, error) {
	input := eventInput(b, tenant)
	if b.EventID != "" {
		event, err := s.oracle.UpdateEvent(ctx, b.CalendarID, b.EventID, input)
		if err == nil {
			return event, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		s.logger.Warn().Str("event_id", b.EventID).Msg("calendar event missing, recreating")
	}
	return s.oracle.CreateEvent(ctx, b.CalendarID, input)
}

func (s *BookingService) calendarLink(b *models.Booking, tenant *models.Tenant) string {
	if b.EventLink != "" {
		return b.EventLink
	}
	input := eventInput(b, tenant)
	return notify.AddToCalendarURL(input.Summary, input.Description, b.Start, b.End)
}

func (s *BookingService) notify(ctx context.Context, result *models.BookingResult, kind string, b *models.Booking, tenant *models.Tenant, link, reason string) {
	if s.notifier == nil {
		return
	}
	tmpl := tenant.Policy.Templates.Confirmation
	if kind == notify.KindCancellation {
		tmpl = tenant.Policy.Templates.Cancellation
	}
	subject, text, html := notify.Compose(kind, tmpl, notify.NewTemplateContext(b, tenant.Brand, link, reason))

	outcome := s.notifier.Send(ctx, kind, b.CustomerEmail, subject, text, html, notify.ICSAttachment(b, tenant.Brand))
	sent := outcome.Sent
	result.ConfirmationEmailSent = &sent
	result.ConfirmationEmailError = outcome.Reason
}

func (s *BookingService) clearDraft(ctx context.Context, botID, conversationID string) {
	if s.drafts == nil || conversationID == "" {
		return
	}
	if err := s.drafts.ClearDraft(ctx, botID, conversationID); err != nil {
		s.logger.Warn().Err(err).Str("bot_id", botID).Str("conversation_id", conversationID).Msg("clear draft error")
	}
}

func (s *BookingService) publishEvent(eventType string, booking *models.Booking, persisted bool, reason string) {
	if s.eventBus == nil {
		return
	}

	payload := events.BookingEventPayload{
		BookingID:     booking.ID,
		BotID:         booking.BotID,
		ServiceKey:    booking.ServiceKey,
		ServiceName:   booking.ServiceName,
		CalendarID:    booking.CalendarID,
		CustomerEmail: booking.CustomerEmail,
		Start:         booking.Start,
		End:           booking.End,
		Timezone:      booking.Timezone,
		Status:        booking.Status,
		EventID:       booking.EventID,
		Persisted:     persisted,
		Reason:        reason,
	}

	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Str("booking_id", booking.ID).Msg("publish event error")
	}
}

func (s *BookingService) enqueueSync(ctx context.Context, booking *models.Booking, taskType string) {
	if s.sheetsWorker == nil {
		return
	}

	var status string
	if taskType == TaskUpdateStatus {
		status = booking.Status
	}

	if err := s.sheetsWorker.EnqueueTask(ctx, taskType, booking.ID, booking, status); err != nil {
		s.logger.Error().Err(err).Str("booking_id", booking.ID).Str("task", taskType).Msg("sheets enqueue error")
	}
}

// finish turns a rejection into the caller-facing result and records metrics.
func (s *BookingService) finish(action, botID string, res *models.BookingResult, err error) (*models.BookingResult, error) {
	if err == nil {
		metrics.IncBookingOperation(action, "success")
		s.logger.Info().
			Str("bot_id", botID).
			Str("action", action).
			Str("booking_id", res.BookingID).
			Msg("booking operation completed")
		return res, nil
	}

	rej, ok := domain.AsRejection(err)
	if !ok {
		rej = domain.Reject(domain.ErrStorage, domain.ReasonStorageError, "the request could not be completed")
		rej.Err = err
	}
	metrics.IncBookingOperation(action, "rejected")
	metrics.IncRejection(rej.Reason)

	ev := s.logger.Info()
	if !rej.Soft() && !errors.Is(rej, domain.ErrValidation) {
		ev = s.logger.Warn().Err(err)
	}
	ev.Str("bot_id", botID).Str("action", action).Str("reason", rej.Reason).Msg("booking operation rejected")

	return &models.BookingResult{
		Success:           false,
		Action:            action,
		ErrorMessage:      rej.Message,
		Reason:            rej.Reason,
		SuggestedSlots:    rej.SuggestedSlots,
		SuggestedServices: rej.SuggestedServices,
	}, rej
}

func eventInput(b *models.Booking, tenant *models.Tenant) models.CalendarEventInput {
	summary := b.ServiceName
	if tenant.Brand.Name != "" {
		summary = b.ServiceName + " - " + tenant.Brand.Name
	}
	var desc strings.Builder
	fmt.Fprintf(&desc, "Customer: %s\nEmail: %s", b.CustomerName, b.CustomerEmail)
	if b.CustomerPhone != "" {
		fmt.Fprintf(&desc, "\nPhone: %s", b.CustomerPhone)
	}
	return models.CalendarEventInput{
		Summary:     summary,
		Description: desc.String(),
		Start:       b.Start,
		End:         b.End,
		Timezone:    b.Timezone,
	}
}

func calendarError(err error) *domain.RejectionError {
	rej := domain.Reject(domain.ErrProvider, domain.ReasonCalendarError, "the calendar could not be updated, please try again later")
	rej.Err = err
	return rej
}

func successResult(action string, b *models.Booking, link string) *models.BookingResult {
	loc := b.Location()
	return &models.BookingResult{
		Success:          true,
		Action:           action,
		BookingID:        b.ID,
		Service:          b.ServiceName,
		Start:            b.Start.In(loc).Format(time.RFC3339),
		End:              b.End.In(loc).Format(time.RFC3339),
		AddToCalendarURL: link,
	}
}
