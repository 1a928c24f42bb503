package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"chatbook/internal/domain"
	"chatbook/internal/export"
	"chatbook/internal/matcher"
	"chatbook/internal/models"
	"chatbook/internal/notify"

	"github.com/go-chi/chi/v5"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// maxExportDays bounds a single export request.
const maxExportDays = 366

func (s *HTTPServer) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req models.CreateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.BotID = chi.URLParam(r, "botID")

	res, err := s.bookings.Create(r.Context(), req)
	writeResult(w, http.StatusCreated, res, err)
}

func (s *HTTPServer) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.BotID = chi.URLParam(r, "botID")

	res, err := s.bookings.Update(r.Context(), req)
	writeResult(w, http.StatusOK, res, err)
}

func (s *HTTPServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req models.CancelRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.BotID = chi.URLParam(r, "botID")

	res, err := s.bookings.Cancel(r.Context(), req)
	writeResult(w, http.StatusOK, res, err)
}

func (s *HTTPServer) handleICS(w http.ResponseWriter, r *http.Request) {
	tenant, ok := s.tenant(w, r)
	if !ok {
		return
	}

	booking, err := s.ledger.GetBooking(r.Context(), tenant.ID, chi.URLParam(r, "bookingID"))
	if err != nil {
		if errors.Is(err, domain.ErrBookingNotFound) {
			writeError(w, http.StatusNotFound, domain.ReasonBookingNotFound, "booking not found")
			return
		}
		s.logger.Error().Err(err).Str("request_id", requestID(r.Context())).Msg("load booking for ics")
		writeError(w, http.StatusInternalServerError, domain.ReasonStorageError, "the request could not be completed")
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "booking-"+booking.ID+".ics"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(notify.BuildICS(booking, tenant.Brand))
}

type serviceView struct {
	Key             string   `json:"key"`
	Name            string   `json:"name"`
	Aliases         []string `json:"aliases,omitempty"`
	DurationMinutes int      `json:"durationMinutes"`
}

type servicesResponse struct {
	Query       string        `json:"query,omitempty"`
	Match       *serviceView  `json:"match,omitempty"`
	Reason      string        `json:"reason,omitempty"`
	Suggestions []string      `json:"suggestions,omitempty"`
	Services    []serviceView `json:"services"`
}

// handleServices lists the tenant's services and, with ?q=, previews how the
// matcher resolves free text.
func (s *HTTPServer) handleServices(w http.ResponseWriter, r *http.Request) {
	tenant, ok := s.tenant(w, r)
	if !ok {
		return
	}

	resp := servicesResponse{Services: make([]serviceView, 0, len(tenant.Services))}
	for i := range tenant.Services {
		resp.Services = append(resp.Services, toServiceView(&tenant.Services[i]))
	}

	if q := strings.TrimSpace(r.URL.Query().Get("q")); q != "" {
		res := matcher.Resolve(q, tenant.Services)
		resp.Query = q
		resp.Reason = res.Reason
		resp.Suggestions = res.Suggestions
		if res.Service != nil {
			v := toServiceView(res.Service)
			resp.Match = &v
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func toServiceView(svc *models.ServiceDefinition) serviceView {
	return serviceView{Key: svc.Key, Name: svc.Name, Aliases: svc.Aliases, DurationMinutes: svc.DurationMinutes}
}

// handleExport streams bookings between from and to (inclusive dates in the
// tenant timezone) as an xlsx workbook.
func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	tenant, ok := s.tenant(w, r)
	if !ok {
		return
	}
	loc := tenant.Policy.Loc()

	from, err := time.ParseInLocation("2006-01-02", r.URL.Query().Get("from"), loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, domain.ReasonInvalidDatetime, "from is required; expected YYYY-MM-DD")
		return
	}
	to := from
	if raw := r.URL.Query().Get("to"); raw != "" {
		to, err = time.ParseInLocation("2006-01-02", raw, loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, domain.ReasonInvalidDatetime, "invalid to; expected YYYY-MM-DD")
			return
		}
	}
	if to.Before(from) || to.Sub(from) > maxExportDays*24*time.Hour {
		writeError(w, http.StatusBadRequest, domain.ReasonInvalidDatetime,
			fmt.Sprintf("to must be on or after from and within %d days", maxExportDays))
		return
	}

	bookings, err := s.ledger.GetBookingsByDateRange(r.Context(), tenant.ID, from, to.AddDate(0, 0, 1))
	if err != nil {
		s.logger.Error().Err(err).Str("request_id", requestID(r.Context())).Msg("load bookings for export")
		writeError(w, http.StatusInternalServerError, domain.ReasonStorageError, "the request could not be completed")
		return
	}

	buf, err := export.BookingsWorkbook(bookings, loc)
	if err != nil {
		s.logger.Error().Err(err).Str("request_id", requestID(r.Context())).Msg("build export workbook")
		writeError(w, http.StatusInternalServerError, "export_error", "the export could not be built")
		return
	}

	name := fmt.Sprintf("%s_%s_to_%s.xlsx", tenant.ID, from.Format("2006-01-02"), to.Format("2006-01-02"))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

type draftRequest struct {
	Intent string            `json:"intent"`
	Fields map[string]string `json:"fields"`
}

func (s *HTTPServer) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.tenant(w, r); !ok {
		return
	}
	draft, err := s.drafts.GetDraft(r.Context(), chi.URLParam(r, "botID"), chi.URLParam(r, "conversationID"))
	if err != nil {
		s.draftError(w, r, err)
		return
	}
	if draft == nil {
		writeError(w, http.StatusNotFound, "draft_not_found", "no draft for this conversation")
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

func (s *HTTPServer) handleSaveDraft(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.tenant(w, r); !ok {
		return
	}
	var req draftRequest
	if !decodeBody(w, r, &req) {
		return
	}
	draft, err := s.drafts.SaveDraft(r.Context(), chi.URLParam(r, "botID"), chi.URLParam(r, "conversationID"), req.Intent, req.Fields)
	if err != nil {
		s.draftError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

func (s *HTTPServer) handleClearDraft(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.tenant(w, r); !ok {
		return
	}
	if err := s.drafts.ClearDraft(r.Context(), chi.URLParam(r, "botID"), chi.URLParam(r, "conversationID")); err != nil {
		s.draftError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) draftError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error().Err(err).Str("request_id", requestID(r.Context())).Msg("draft store")
	writeError(w, http.StatusServiceUnavailable, domain.ReasonStorageError, "draft store unavailable")
}

// tenant loads the bot from the URL, answering the request itself on failure.
func (s *HTTPServer) tenant(w http.ResponseWriter, r *http.Request) (*models.Tenant, bool) {
	t, err := s.tenants.Get(r.Context(), chi.URLParam(r, "botID"))
	if err != nil {
		rej, ok := domain.AsRejection(err)
		if !ok {
			writeError(w, http.StatusInternalServerError, domain.ReasonStorageError, err.Error())
			return nil, false
		}
		writeError(w, statusFor(rej), rej.Reason, rej.Message)
		return nil, false
	}
	return t, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid JSON body")
		return false
	}
	return true
}

// writeResult maps a booking outcome to an HTTP status. The body is the
// result either way.
func writeResult(w http.ResponseWriter, okStatus int, res *models.BookingResult, err error) {
	if err == nil {
		writeJSON(w, okStatus, res)
		return
	}

	rej, ok := domain.AsRejection(err)
	if !ok {
		rej = domain.Reject(domain.ErrStorage, domain.ReasonStorageError, "the request could not be completed")
	}
	if res == nil {
		res = &models.BookingResult{
			Success:           false,
			ErrorMessage:      rej.Message,
			Reason:            rej.Reason,
			SuggestedSlots:    rej.SuggestedSlots,
			SuggestedServices: rej.SuggestedServices,
		}
	}
	writeJSON(w, statusFor(rej), res)
}

func statusFor(rej *domain.RejectionError) int {
	switch {
	case errors.Is(rej.Kind, domain.ErrPolicy):
		return http.StatusConflict
	case errors.Is(rej.Kind, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(rej.Kind, domain.ErrConfiguration):
		switch rej.Reason {
		case domain.ReasonBookingDisabled:
			return http.StatusForbidden
		case domain.ReasonInvalidConfig:
			return http.StatusInternalServerError
		}
		return http.StatusNotFound
	case errors.Is(rej.Kind, domain.ErrProvider), errors.Is(rej.Kind, domain.ErrNotification):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
