package http

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"solarshare/internal/eventing"
	"solarshare/internal/eventlog"
	"solarshare/internal/ledger/application"
	ledger "solarshare/internal/ledger/domain"
	"solarshare/internal/ledger/interfaces"
	"solarshare/internal/metering"
	"solarshare/internal/observability/metrics"
)

const (
	defaultEventCount = 50
	maxEventCount     = 1000
)

type participantView struct {
	Identity            string `json:"identity"`
	Name                string `json:"name"`
	Role                string `json:"role"`
	ReportedThisRound   bool   `json:"reported_this_round"`
	CumulativeTotalKWh  string `json:"cumulative_total_kwh"`
	CumulativeSharedKWh string `json:"cumulative_shared_kwh"`
}

func viewOf(p ledger.Participant) participantView {
	return participantView{
		Identity:            p.Identity,
		Name:                p.Name,
		Role:                string(p.Role),
		ReportedThisRound:   p.Reported,
		CumulativeTotalKWh:  metering.FormatAmount(p.CumulativeTotal),
		CumulativeSharedKWh: metering.FormatAmount(p.CumulativeSharedUsage),
	}
}

// RegistryHandler serves GET /api/v1/registry.
type RegistryHandler struct {
	service *application.Service
}

// NewRegistryHandler constructs a handler.
func NewRegistryHandler(service *application.Service) (*RegistryHandler, error) {
	if service == nil {
		return nil, errors.New("api: nil service")
	}
	return &RegistryHandler{service: service}, nil
}

func (h *RegistryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	registry := h.service.Registry()
	views := make([]participantView, 0, len(registry))
	for _, p := range registry {
		views = append(views, viewOf(p))
	}
	writeJSON(w, views)
}

// ParticipantHandler serves GET /api/v1/participants/{identity}.
type ParticipantHandler struct {
	service *application.Service
}

// NewParticipantHandler constructs a handler.
func NewParticipantHandler(service *application.Service) (*ParticipantHandler, error) {
	if service == nil {
		return nil, errors.New("api: nil service")
	}
	return &ParticipantHandler{service: service}, nil
}

func (h *ParticipantHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	identity := strings.TrimPrefix(r.URL.Path, "/api/v1/participants/")
	if identity == "" || strings.Contains(identity, "/") {
		http.Error(w, "participant identity required", http.StatusBadRequest)
		return
	}
	p, ok := h.service.Participant(identity)
	if !ok {
		http.Error(w, "unknown participant", http.StatusNotFound)
		return
	}
	writeJSON(w, viewOf(p))
}

// PhaseHandler serves GET /api/v1/phase.
type PhaseHandler struct {
	service *application.Service
}

// NewPhaseHandler constructs a handler.
func NewPhaseHandler(service *application.Service) (*PhaseHandler, error) {
	if service == nil {
		return nil, errors.New("api: nil service")
	}
	return &PhaseHandler{service: service}, nil
}

func (h *PhaseHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, h.service.StatusSnapshot())
}

// EventsHandler serves GET /api/v1/events?count=&type=. A nil registry
// disables event type validation.
type EventsHandler struct {
	indexer  *eventlog.Indexer
	registry *eventing.Registry
}

// NewEventsHandler constructs a handler.
func NewEventsHandler(indexer *eventlog.Indexer, registry *eventing.Registry) (*EventsHandler, error) {
	if indexer == nil {
		return nil, errors.New("api: nil indexer")
	}
	return &EventsHandler{indexer: indexer, registry: registry}, nil
}

func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	count := defaultEventCount
	if value := r.URL.Query().Get("count"); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			http.Error(w, "count must be a positive integer", http.StatusBadRequest)
			return
		}
		count = parsed
	}
	if count > maxEventCount {
		count = maxEventCount
	}
	eventType := r.URL.Query().Get("type")
	if eventType != "" && h.registry != nil && !h.registry.Known(eventType) {
		http.Error(w, "unknown event type", http.StatusBadRequest)
		return
	}

	events, err := h.indexer.MostRecent(r.Context(), count, eventType)
	if err != nil {
		metrics.IncIndexerQuery(metrics.ResultError)
		http.Error(w, "event query failed", http.StatusInternalServerError)
		return
	}
	metrics.IncIndexerQuery(metrics.ResultSuccess)
	if events == nil {
		events = []eventlog.Event{}
	}
	writeJSON(w, events)
}

// ExportHandler serves GET /api/v1/exports/{events.csv,report.pdf,report.xlsx}.
type ExportHandler struct {
	service *application.Service
	indexer *eventlog.Indexer
}

// NewExportHandler constructs a handler.
func NewExportHandler(service *application.Service, indexer *eventlog.Indexer) (*ExportHandler, error) {
	if service == nil || indexer == nil {
		return nil, errors.New("api: nil service or indexer")
	}
	return &ExportHandler{service: service, indexer: indexer}, nil
}

func (h *ExportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	switch strings.TrimPrefix(r.URL.Path, "/api/v1/exports/") {
	case "events.csv":
		h.exportEventsCSV(w, r)
	case "report.pdf":
		h.exportReport(w, r, "pdf")
	case "report.xlsx":
		h.exportReport(w, r, "xlsx")
	default:
		http.NotFound(w, r)
	}
}

func (h *ExportHandler) exportEventsCSV(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	events, err := h.indexer.MostRecent(r.Context(), maxEventCount, r.URL.Query().Get("type"))
	if err != nil {
		metrics.ObserveExport("csv", metrics.ResultError, time.Since(started))
		http.Error(w, "event query failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="events.csv"`)
	writer := csv.NewWriter(w)
	_ = writer.Write([]string{"seq", "type", "at", "payload"})
	for _, event := range events {
		_ = writer.Write([]string{
			strconv.FormatInt(event.Seq, 10),
			event.Type,
			event.At.Format(time.RFC3339),
			string(event.Payload),
		})
	}
	writer.Flush()
	metrics.ObserveExport("csv", metrics.ResultSuccess, time.Since(started))
}

func (h *ExportHandler) exportReport(w http.ResponseWriter, r *http.Request, format string) {
	started := time.Now()
	status := h.service.StatusSnapshot()
	registry := h.service.Registry()

	var data []byte
	var err error
	var contentType, filename string
	switch format {
	case "pdf":
		data, err = interfaces.BuildCommunityReportPDF(status, registry)
		contentType = "application/pdf"
		filename = "report.pdf"
	case "xlsx":
		data, err = interfaces.BuildCommunityReportXLSX(status, registry)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		filename = "report.xlsx"
	}
	if err != nil {
		metrics.ObserveExport(format, metrics.ResultError, time.Since(started))
		http.Error(w, "export failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	_, _ = w.Write(data)
	metrics.ObserveExport(format, metrics.ResultSuccess, time.Since(started))
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
