package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"chatbook/internal/models"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

func setupMockServer(ctx context.Context) (*http.ServeMux, *httptest.Server, *SheetsService) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	srv, _ := sheets.NewService(ctx, option.WithEndpoint(server.URL), option.WithoutAuthentication())
	return mux, server, NewSheetsServiceFromAPI(srv, "journal_tid", nil)
}

func sampleBooking() *models.Booking {
	start := time.Date(2025, 3, 10, 18, 0, 0, 0, time.UTC)
	return &models.Booking{
		ID:            "b-123",
		BotID:         "salon",
		ServiceName:   "Hair Cut",
		Start:         start,
		End:           start.Add(time.Hour),
		Timezone:      "America/New_York",
		CustomerName:  "Ada",
		CustomerEmail: "ada@example.com",
		Status:        models.StatusActive,
		EventID:       "evt-1",
		CreatedAt:     start.Add(-48 * time.Hour),
		UpdatedAt:     start.Add(-24 * time.Hour),
	}
}

func TestBookingRowValues(t *testing.T) {
	values := bookingRowValues(sampleBooking())

	if len(values) != 13 {
		t.Fatalf("Expected 13 values, got %d", len(values))
	}
	// 18:00 UTC is 14:00 in New York after the DST switch
	if values[3] != "2025-03-10 14:00" || values[4] != "2025-03-10 15:00" {
		t.Errorf("Unexpected local times: %v %v", values[3], values[4])
	}
	if values[9] != models.StatusActive {
		t.Errorf("Expected status in column J, got %v", values[9])
	}
	if values[12] != "2025-03-09 18:00:00" {
		t.Errorf("Unexpected updated at: %v", values[12])
	}
}

func TestCacheOperations(t *testing.T) {
	s := NewSheetsServiceFromAPI(nil, "x", nil)

	s.setCachedRow("b-100", 5)
	row, ok := s.getCachedRow("b-100")
	if !ok || row != 5 {
		t.Errorf("Expected row 5, got %d (ok=%v)", row, ok)
	}

	s.ClearCache()
	if _, ok := s.getCachedRow("b-100"); ok {
		t.Errorf("Expected cache to be cleared")
	}
}

func TestRowFromRange(t *testing.T) {
	if row, ok := rowFromRange("Bookings!A10:M10"); !ok || row != 10 {
		t.Errorf("Expected row 10, got %d (ok=%v)", row, ok)
	}
	if _, ok := rowFromRange("garbage"); ok {
		t.Error("Expected no row for garbage range")
	}
}

func TestServiceAccountEmail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.json")
	if err := os.WriteFile(path, []byte(`{"client_email":"bot@project.iam.gserviceaccount.com"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	email, err := ServiceAccountEmail(path)
	if err != nil {
		t.Fatalf("ServiceAccountEmail failed: %v", err)
	}
	if email != "bot@project.iam.gserviceaccount.com" {
		t.Errorf("Unexpected email %q", email)
	}
}

func TestSheetsService_TestConnection(t *testing.T) {
	ctx := context.Background()
	mux, server, s := setupMockServer(ctx)
	defer server.Close()
	mux.HandleFunc("/v4/spreadsheets/journal_tid/values/Bookings!A1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{Values: [][]interface{}{{"ID"}}})
	})
	if err := s.TestConnection(ctx); err != nil {
		t.Errorf("TestConnection failed: %v", err)
	}
}

func TestSheetsService_WarmUpCache(t *testing.T) {
	ctx := context.Background()
	mux, server, s := setupMockServer(ctx)
	defer server.Close()
	mux.HandleFunc("/v4/spreadsheets/journal_tid/values/Bookings!A:A", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{
			Values: [][]interface{}{{"ID"}, {"b-123"}, {}, {"b-456"}},
		})
	})
	if err := s.WarmUpCache(ctx); err != nil {
		t.Errorf("WarmUpCache failed: %v", err)
	}
	if row, ok := s.getCachedRow("b-123"); !ok || row != 2 {
		t.Errorf("Expected row 2 for b-123, got %d", row)
	}
	if row, ok := s.getCachedRow("b-456"); !ok || row != 4 {
		t.Errorf("Expected row 4 for b-456, got %d", row)
	}
	if _, ok := s.getCachedRow("ID"); ok {
		t.Error("Header must not be cached")
	}
}

func TestSheetsService_UpsertBooking_Append(t *testing.T) {
	ctx := context.Background()
	mux, server, s := setupMockServer(ctx)
	defer server.Close()
	mux.HandleFunc("/v4/spreadsheets/journal_tid/values/Bookings!A:A", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{Values: [][]interface{}{{"ID"}}})
	})
	mux.HandleFunc("/v4/spreadsheets/journal_tid/values/Bookings!A:A:append", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.AppendValuesResponse{
			Updates: &sheets.UpdateValuesResponse{UpdatedRange: "Bookings!A10:M10"},
		})
	})
	if err := s.UpsertBooking(ctx, sampleBooking()); err != nil {
		t.Errorf("UpsertBooking failed: %v", err)
	}
	if row, _ := s.getCachedRow("b-123"); row != 10 {
		t.Errorf("Expected cached row 10, got %d", row)
	}
}

func TestSheetsService_UpsertBooking_Update(t *testing.T) {
	ctx := context.Background()
	mux, server, s := setupMockServer(ctx)
	defer server.Close()
	s.setCachedRow("b-123", 2)

	called := false
	mux.HandleFunc("/v4/spreadsheets/journal_tid/values/Bookings!A2:M2", func(w http.ResponseWriter, r *http.Request) {
		called = true
		_ = json.NewEncoder(w).Encode(sheets.UpdateValuesResponse{})
	})
	if err := s.UpsertBooking(ctx, sampleBooking()); err != nil {
		t.Errorf("UpsertBooking failed: %v", err)
	}
	if !called {
		t.Error("Expected row update call")
	}
}

func TestSheetsService_UpdateBookingStatus(t *testing.T) {
	ctx := context.Background()
	mux, server, s := setupMockServer(ctx)
	defer server.Close()
	s.setCachedRow("b-123", 2)

	var status []interface{}
	mux.HandleFunc("/v4/spreadsheets/journal_tid/values/Bookings!J2:J2", func(w http.ResponseWriter, r *http.Request) {
		var body sheets.ValueRange
		_ = json.NewDecoder(r.Body).Decode(&body)
		if len(body.Values) == 1 {
			status = body.Values[0]
		}
		_ = json.NewEncoder(w).Encode(sheets.UpdateValuesResponse{})
	})
	mux.HandleFunc("/v4/spreadsheets/journal_tid/values/Bookings!M2:M2", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.UpdateValuesResponse{})
	})
	if err := s.UpdateBookingStatus(ctx, "b-123", models.StatusCancelled); err != nil {
		t.Errorf("UpdateBookingStatus failed: %v", err)
	}
	if len(status) != 1 || status[0] != models.StatusCancelled {
		t.Errorf("Unexpected status payload: %v", status)
	}
}

func TestSheetsService_FindBookingRow(t *testing.T) {
	ctx := context.Background()
	mux, server, s := setupMockServer(ctx)
	defer server.Close()
	mux.HandleFunc("/v4/spreadsheets/journal_tid/values/Bookings!A:A", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{
			Values: [][]interface{}{{"ID"}, {"b-999"}},
		})
	})

	row, err := s.FindBookingRow(ctx, "b-999")
	if err != nil {
		t.Errorf("FindBookingRow failed: %v", err)
	}
	if row != 2 {
		t.Errorf("Expected row 2, got %d", row)
	}

	if _, err := s.FindBookingRow(ctx, "missing"); err != errRowNotFound {
		t.Errorf("Expected errRowNotFound, got %v", err)
	}
	if _, err := s.FindBookingRow(ctx, ""); err == nil {
		t.Error("Expected error for empty id")
	}
}
