package http

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"solarshare/internal/eventing"
	"solarshare/internal/eventlog"
	"solarshare/internal/eventlog/memory"
	"solarshare/internal/ledger/application"
	ledger "solarshare/internal/ledger/domain"
)

type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time { return c.now }

func newTestBackend(t *testing.T) (*application.Service, *eventlog.Indexer) {
	t.Helper()
	clock := &fixedClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store, err := memory.NewStore(eventlog.DefaultSegmentSize, clock)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	svc, err := application.NewService(3, clock, store, eventing.NewInMemoryBus(), log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	indexer, err := eventlog.NewIndexer(store)
	if err != nil {
		t.Fatalf("new indexer: %v", err)
	}

	ctx := context.Background()
	for _, reg := range []struct{ identity, name, role string }{
		{"plant", "Rooftop Plant", "producer"},
		{"alice", "Alice", "consumer"},
		{"bob", "Bob", "consumer"},
	} {
		if err := svc.Register(ctx, reg.identity, reg.name, reg.role); err != nil {
			t.Fatalf("register %s: %v", reg.identity, err)
		}
	}
	for _, report := range []struct {
		identity string
		amount   int64
	}{
		{"alice", 10 * ledger.UnitScale},
		{"bob", 30 * ledger.UnitScale},
		{"plant", 20 * ledger.UnitScale},
	} {
		if err := svc.Report(ctx, report.identity, report.amount); err != nil {
			t.Fatalf("report %s: %v", report.identity, err)
		}
	}
	return svc, indexer
}

func TestRegistryHandler(t *testing.T) {
	svc, _ := newTestBackend(t)
	handler, err := NewRegistryHandler(svc)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/registry", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var views []participantView
	if err := json.Unmarshal(resp.Body.Bytes(), &views); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(views) != 3 {
		t.Fatalf("expected 3 participants, got %d", len(views))
	}
	if views[0].Identity != "plant" || views[0].Role != "producer" {
		t.Fatalf("expected the producer first, got %+v", views[0])
	}
	if views[1].CumulativeTotalKWh != "10" {
		t.Fatalf("expected alice total 10 kWh, got %s", views[1].CumulativeTotalKWh)
	}
	// P=20, alice demand 10 of 40 consumed: floor(20*10/40) = 5 kWh.
	if views[1].CumulativeSharedKWh != "5" {
		t.Fatalf("expected alice shared 5 kWh, got %s", views[1].CumulativeSharedKWh)
	}
}

func TestParticipantHandler(t *testing.T) {
	svc, _ := newTestBackend(t)
	handler, _ := NewParticipantHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/participants/bob", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var view participantView
	if err := json.Unmarshal(resp.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.Identity != "bob" || view.CumulativeTotalKWh != "30" {
		t.Fatalf("unexpected view %+v", view)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/participants/nobody", nil)
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestPhaseHandler(t *testing.T) {
	svc, _ := newTestBackend(t)
	handler, _ := NewPhaseHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/phase", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var status application.Status
	if err := json.Unmarshal(resp.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.Phase != ledger.PhaseActive || status.Round != 1 {
		t.Fatalf("unexpected status %+v", status)
	}
}

func eventRegistry() *eventing.Registry {
	registry := eventing.NewRegistry()
	registry.Register(ledger.ActivationCompleted{})
	registry.Register(ledger.ProducerReported{})
	registry.Register(ledger.ConsumerReported{})
	registry.Register(ledger.AllocationComputed{})
	registry.Register(ledger.RoundCompleted{})
	return registry
}

func TestEventsHandler(t *testing.T) {
	_, indexer := newTestBackend(t)
	handler, _ := NewEventsHandler(indexer, eventRegistry())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events?count=3", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var events []eventlog.Event
	if err := json.Unmarshal(resp.Body.Bytes(), &events); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[len(events)-1].Type != "ledger.RoundCompleted" {
		t.Fatalf("expected RoundCompleted last, got %s", events[len(events)-1].Type)
	}
}

func TestEventsHandlerFiltersByType(t *testing.T) {
	_, indexer := newTestBackend(t)
	handler, _ := NewEventsHandler(indexer, eventRegistry())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events?type=ledger.AllocationComputed", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	var events []eventlog.Event
	if err := json.Unmarshal(resp.Body.Bytes(), &events); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 allocation events, got %d", len(events))
	}
}

func TestEventsHandlerRejectsBadCount(t *testing.T) {
	_, indexer := newTestBackend(t)
	handler, _ := NewEventsHandler(indexer, eventRegistry())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events?count=zero", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestEventsHandlerRejectsUnknownType(t *testing.T) {
	_, indexer := newTestBackend(t)
	handler, _ := NewEventsHandler(indexer, eventRegistry())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events?type=ledger.Nope", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestExportHandlerCSV(t *testing.T) {
	svc, indexer := newTestBackend(t)
	handler, _ := NewExportHandler(svc, indexer)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/exports/events.csv", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if ct := resp.Header().Get("Content-Type"); ct != "text/csv" {
		t.Fatalf("expected text/csv, got %s", ct)
	}
	if !strings.Contains(resp.Body.String(), "ledger.RoundCompleted") {
		t.Fatal("expected round completion row in csv")
	}
}

func TestExportHandlerPDFAndXLSX(t *testing.T) {
	svc, indexer := newTestBackend(t)
	handler, _ := NewExportHandler(svc, indexer)

	for _, tc := range []struct{ path, contentType string }{
		{"/api/v1/exports/report.pdf", "application/pdf"},
		{"/api/v1/exports/report.xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"},
	} {
		req := httptest.NewRequest(http.MethodGet, tc.path, nil)
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		if resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", tc.path, resp.Code)
		}
		if ct := resp.Header().Get("Content-Type"); ct != tc.contentType {
			t.Fatalf("%s: expected %s, got %s", tc.path, tc.contentType, ct)
		}
		if resp.Body.Len() == 0 {
			t.Fatalf("%s: expected non-empty body", tc.path)
		}
	}
}
