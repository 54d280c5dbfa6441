package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"watchpost/internal/model"
	"watchpost/internal/report"
	"watchpost/internal/store"
)

// HTTPAPI exposes findings, finished reports, and health endpoints for the
// watchpost service.
type HTTPAPI struct {
	hostStore *store.MemoryStore
	flowStore *store.MemoryStore

	mu         sync.RWMutex
	hostReport *report.HostReport
	flowReport *report.FlowReport
}

// NewHTTPAPI creates a new HTTP API instance.
func NewHTTPAPI(hostStore, flowStore *store.MemoryStore) *HTTPAPI {
	return &HTTPAPI{
		hostStore: hostStore,
		flowStore: flowStore,
	}
}

// Router builds the route table.
func (api *HTTPAPI) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", api.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", api.handleReady).Methods(http.MethodGet)
	r.HandleFunc("/findings", api.handleFindings).Methods(http.MethodGet)
	r.HandleFunc("/report/host", api.handleHostReport).Methods(http.MethodGet)
	r.HandleFunc("/report/flow", api.handleFlowReport).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return r
}

// SetHostReport stores the finished host report for serving.
func (api *HTTPAPI) SetHostReport(rep *report.HostReport) {
	api.mu.Lock()
	defer api.mu.Unlock()
	api.hostReport = rep
}

// SetFlowReport stores the finished flow report for serving.
func (api *HTTPAPI) SetFlowReport(rep *report.FlowReport) {
	api.mu.Lock()
	defer api.mu.Unlock()
	api.flowReport = rep
}

func (api *HTTPAPI) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (api *HTTPAPI) handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready"))
}

// handleFindings serves accumulated findings. Query parameters:
// pipeline=host|flow (default both), min_severity=LOW|MEDIUM|HIGH|CRITICAL.
func (api *HTTPAPI) handleFindings(w http.ResponseWriter, r *http.Request) {
	pipeline := r.URL.Query().Get("pipeline")

	min := model.SeverityLow
	if raw := r.URL.Query().Get("min_severity"); raw != "" {
		min = model.Severity(strings.ToUpper(raw))
		if !min.Valid() {
			http.Error(w, "invalid min_severity", http.StatusBadRequest)
			return
		}
	}

	var findings []*model.Finding
	switch pipeline {
	case "host":
		findings = api.hostStore.BySeverity(min)
	case "flow":
		findings = api.flowStore.BySeverity(min)
	case "":
		findings = append(api.hostStore.BySeverity(min), api.flowStore.BySeverity(min)...)
	default:
		http.Error(w, "invalid pipeline", http.StatusBadRequest)
		return
	}
	if findings == nil {
		findings = []*model.Finding{}
	}

	writeJSON(w, map[string]interface{}{
		"findings": findings,
		"count":    len(findings),
	})
}

func (api *HTTPAPI) handleHostReport(w http.ResponseWriter, r *http.Request) {
	api.mu.RLock()
	rep := api.hostReport
	api.mu.RUnlock()

	if rep == nil {
		http.Error(w, "host report not yet available", http.StatusNotFound)
		return
	}
	writeJSON(w, rep)
}

func (api *HTTPAPI) handleFlowReport(w http.ResponseWriter, r *http.Request) {
	api.mu.RLock()
	rep := api.flowReport
	api.mu.RUnlock()

	if rep == nil {
		http.Error(w, "flow report not yet available", http.StatusNotFound)
		return
	}
	writeJSON(w, rep)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
