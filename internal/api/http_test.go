package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watchpost/internal/aggregate"
	"watchpost/internal/model"
	"watchpost/internal/report"
	"watchpost/internal/store"
)

func newTestAPI(t *testing.T) (*HTTPAPI, *store.MemoryStore, *store.MemoryStore) {
	t.Helper()
	hostStore := store.NewMemoryStore(100, 1000)
	flowStore := store.NewMemoryStore(100, 1000)
	return NewHTTPAPI(hostStore, flowStore), hostStore, flowStore
}

func doRequest(t *testing.T, api *HTTPAPI, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	api.Router().ServeHTTP(rr, req)
	return rr
}

func addFinding(t *testing.T, s *store.MemoryStore, typ model.FindingType, sev model.Severity, msg string) {
	t.Helper()
	require.True(t, s.Add(&model.Finding{
		ID:        "id-" + msg,
		Type:      typ,
		Severity:  sev,
		Message:   msg,
		Timestamp: time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC),
	}))
}

func TestHealthEndpoints(t *testing.T) {
	api, _, _ := newTestAPI(t)

	rr := doRequest(t, api, "/healthz")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())

	rr = doRequest(t, api, "/readyz")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestFindingsEmpty(t *testing.T) {
	api, _, _ := newTestAPI(t)

	rr := doRequest(t, api, "/findings")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var body struct {
		Findings []model.Finding `json:"findings"`
		Count    int             `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, 0, body.Count)
	assert.NotNil(t, body.Findings)
}

func TestFindingsByPipeline(t *testing.T) {
	api, hostStore, flowStore := newTestAPI(t)
	addFinding(t, hostStore, model.FindingCPU, model.SeverityHigh, "cpu hot")
	addFinding(t, flowStore, model.FindingPlaintext, model.SeverityHigh, "http seen")

	tests := []struct {
		path  string
		count int
	}{
		{"/findings", 2},
		{"/findings?pipeline=host", 1},
		{"/findings?pipeline=flow", 1},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rr := doRequest(t, api, tt.path)
			require.Equal(t, http.StatusOK, rr.Code)

			var body struct {
				Count int `json:"count"`
			}
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.Equal(t, tt.count, body.Count)
		})
	}
}

func TestFindingsMinSeverity(t *testing.T) {
	api, hostStore, _ := newTestAPI(t)
	addFinding(t, hostStore, model.FindingDisk, model.SeverityMedium, "disk filling")
	addFinding(t, hostStore, model.FindingCPU, model.SeverityHigh, "cpu hot")

	rr := doRequest(t, api, "/findings?pipeline=host&min_severity=high")
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Findings []model.Finding `json:"findings"`
		Count    int             `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, 1, body.Count)
	assert.Equal(t, model.FindingCPU, body.Findings[0].Type)
}

func TestFindingsBadParams(t *testing.T) {
	api, _, _ := newTestAPI(t)

	rr := doRequest(t, api, "/findings?min_severity=terrible")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doRequest(t, api, "/findings?pipeline=container")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestReportEndpoints(t *testing.T) {
	api, _, _ := newTestAPI(t)

	// Reports 404 until their session finishes.
	assert.Equal(t, http.StatusNotFound, doRequest(t, api, "/report/host").Code)
	assert.Equal(t, http.StatusNotFound, doRequest(t, api, "/report/flow").Code)

	start := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	api.SetHostReport(report.BuildHost(report.HostMeta{
		Start:    start,
		End:      start.Add(time.Minute),
		Interval: time.Second,
	}, nil, nil, nil))
	api.SetFlowReport(report.BuildFlow(report.FlowMeta{
		Start:     start,
		End:       start.Add(time.Minute),
		Interface: "eth0",
	}, &aggregate.FlowSnapshot{}, nil))

	rr := doRequest(t, api, "/report/host")
	require.Equal(t, http.StatusOK, rr.Code)

	var hostRep report.HostReport
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &hostRep))
	assert.Equal(t, 60.0, hostRep.Duration)

	rr = doRequest(t, api, "/report/flow")
	require.Equal(t, http.StatusOK, rr.Code)

	var flowRep report.FlowReport
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &flowRep))
	assert.Equal(t, "eth0", flowRep.Interface)
}

func TestMetricsEndpoint(t *testing.T) {
	api, _, _ := newTestAPI(t)
	rr := doRequest(t, api, "/metrics")
	assert.Equal(t, http.StatusOK, rr.Code)
}
