package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"chatbook/internal/config"
	"chatbook/internal/domain"
	"chatbook/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// BookingReader is the read side of the ledger used by the download endpoints.
type BookingReader interface {
	GetBooking(ctx context.Context, botID, id string) (*models.Booking, error)
	GetBookingsByDateRange(ctx context.Context, botID string, from, to time.Time) ([]*models.Booking, error)
}

// Dependencies wires the API to the booking core.
type Dependencies struct {
	Bookings domain.BookingService
	Tenants  domain.TenantProvider
	Ledger   BookingReader
	Drafts   domain.DraftManager
}

// HTTPServer exposes the booking operations to chat front-ends.
type HTTPServer struct {
	cfg      *config.APIConfig
	bookings domain.BookingService
	tenants  domain.TenantProvider
	ledger   BookingReader
	drafts   domain.DraftManager
	auth     *HTTPAuth
	server   *http.Server
	logger   *zerolog.Logger
}

func NewHTTPServer(cfg *config.APIConfig, deps Dependencies, logger *zerolog.Logger) *HTTPServer {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "http").Logger()

	srv := &HTTPServer{
		cfg:      cfg,
		bookings: deps.Bookings,
		tenants:  deps.Tenants,
		ledger:   deps.Ledger,
		drafts:   deps.Drafts,
		auth:     NewHTTPAuth(cfg),
		logger:   &l,
	}

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	return srv
}

func (s *HTTPServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware, loggingMiddleware(s.logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1/bots/{botID}", func(r chi.Router) {
		r.Use(s.auth.Authenticate, s.auth.BotAccess, s.botRateLimit)

		r.With(s.auth.Require(permWriteBookings)).Post("/bookings", s.handleCreate)
		r.With(s.auth.Require(permWriteBookings)).Post("/bookings/reschedule", s.handleUpdate)
		r.With(s.auth.Require(permWriteBookings)).Post("/bookings/cancel", s.handleCancel)
		r.With(s.auth.Require(permReadBookings)).Get("/bookings/export", s.handleExport)
		r.With(s.auth.Require(permReadBookings)).Get("/bookings/{bookingID}.ics", s.handleICS)
		r.With(s.auth.Require(permReadServices)).Get("/services", s.handleServices)

		r.With(s.auth.Require(permDrafts)).Get("/drafts/{conversationID}", s.handleGetDraft)
		r.With(s.auth.Require(permDrafts)).Put("/drafts/{conversationID}", s.handleSaveDraft)
		r.With(s.auth.Require(permDrafts)).Delete("/drafts/{conversationID}", s.handleClearDraft)
	})

	return r
}

// Handler exposes the router, mainly for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError answers in the booking result shape so clients parse one body.
func writeError(w http.ResponseWriter, statusCode int, reason, message string) {
	writeJSON(w, statusCode, models.BookingResult{Success: false, Reason: reason, ErrorMessage: message})
}
