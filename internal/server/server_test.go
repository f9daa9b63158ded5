package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/royengg/homeworkai/internal/analysis"
	"github.com/royengg/homeworkai/internal/db"
)

// mockService serves canned records. lookups replays a sequence of statuses
// for the event stream.
type mockService struct {
	mu        sync.Mutex
	records   map[uuid.UUID]*db.AnalysisResult
	submitErr error
	lookups   []string
	submitted []uuid.UUID
}

func newMockService() *mockService {
	return &mockService{records: make(map[uuid.UUID]*db.AnalysisResult)}
}

func (m *mockService) Submit(_ context.Context, uploadID uuid.UUID) (*analysis.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.submitErr != nil {
		return nil, m.submitErr
	}
	m.submitted = append(m.submitted, uploadID)
	return &analysis.Submission{AnalysisID: uuid.New(), JobID: uuid.New()}, nil
}

func (m *mockService) Get(ctx context.Context, uploadID, analysisID uuid.UUID) (*db.AnalysisResult, error) {
	r, err := m.Lookup(ctx, analysisID)
	if err != nil {
		return nil, err
	}
	if r.UploadID != uploadID {
		return nil, fmt.Errorf("%w: %s", analysis.ErrAnalysisNotFound, analysisID)
	}
	return r, nil
}

func (m *mockService) Lookup(_ context.Context, analysisID uuid.UUID) (*db.AnalysisResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[analysisID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", analysis.ErrAnalysisNotFound, analysisID)
	}
	if len(m.lookups) > 0 {
		r.Status = m.lookups[0]
		r.UpdatedAt = r.UpdatedAt.Add(time.Second)
		m.lookups = m.lookups[1:]
	}
	cp := *r
	return &cp, nil
}

type mockPinger struct {
	err error
}

func (p mockPinger) Ping(context.Context) error { return p.err }

func newTestServer(service Service, health Pinger) http.Handler {
	s := New(Config{
		CORSOrigins:  []string{"http://localhost:5173"},
		PollInterval: time.Millisecond,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, service, health)
	return s.Handler()
}

func TestHealthEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		pingErr    error
		wantStatus int
		wantBody   string
	}{
		{"healthy", nil, http.StatusOK, "ok"},
		{"database down", errors.New("connection refused"), http.StatusServiceUnavailable, "unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(newMockService(), mockPinger{err: tt.pingErr})

			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.wantStatus, w.Code)
			var resp map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantBody, resp["status"])
		})
	}
}

func TestSubmitEndpoint(t *testing.T) {
	svc := newMockService()
	h := newTestServer(svc, nil)
	uploadID := uuid.New()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/uploads/"+uploadID.String()+"/analyses", nil))

	require.Equal(t, http.StatusAccepted, w.Code)
	var resp SubmitResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "queued", resp.Status)
	assert.NotEmpty(t, resp.AnalysisID)
	assert.NotEmpty(t, resp.JobID)
	assert.Equal(t, []uuid.UUID{uploadID}, svc.submitted)
}

func TestSubmitEndpoint_Errors(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		submitErr  error
		wantStatus int
		wantError  string
	}{
		{"bad upload id", "/uploads/nope/analyses", nil, http.StatusBadRequest, "upload_id"},
		{"unknown upload", "/uploads/" + uuid.NewString() + "/analyses", analysis.ErrUploadNotFound, http.StatusNotFound, "upload not found"},
		{"not parsed yet", "/uploads/" + uuid.NewString() + "/analyses", analysis.ErrParseTextMissing, http.StatusUnprocessableEntity, "parse text missing"},
		{"store failure", "/uploads/" + uuid.NewString() + "/analyses", errors.New("pool closed"), http.StatusInternalServerError, "internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newMockService()
			svc.submitErr = tt.submitErr
			h := newTestServer(svc, nil)

			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, tt.path, nil))

			assert.Equal(t, tt.wantStatus, w.Code)
			var resp map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Contains(t, resp["error"], tt.wantError)
		})
	}
}

func TestGetAnalysisEndpoint(t *testing.T) {
	svc := newMockService()
	uploadID := uuid.New()
	record := &db.AnalysisResult{
		ID:       uuid.New(),
		UploadID: uploadID,
		Status:   db.AnalysisStatusRunning,
		Output:   json.RawMessage(`{"document_id":"d","type":"homework","questions":[]}`),
	}
	svc.records[record.ID] = record
	h := newTestServer(svc, nil)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/uploads/"+uploadID.String()+"/analyses/"+record.ID.String(), nil))
	require.Equal(t, http.StatusOK, w.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "running", got["status"])
	assert.Equal(t, "homework", got["output"].(map[string]any)["type"])

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/uploads/"+uuid.NewString()+"/analyses/"+record.ID.String(), nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

type sseEvent struct {
	name string
	data map[string]any
}

func readEvents(t *testing.T, body string) []sseEvent {
	t.Helper()
	var events []sseEvent
	var current sseEvent
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			current.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &current.data))
		case line == "" && current.name != "":
			events = append(events, current)
			current = sseEvent{}
		}
	}
	return events
}

func TestEventsEndpoint_StreamsUntilTerminal(t *testing.T) {
	svc := newMockService()
	record := &db.AnalysisResult{ID: uuid.New(), UploadID: uuid.New(), Status: db.AnalysisStatusQueued}
	svc.records[record.ID] = record
	svc.lookups = []string{"queued", "running", "running", "completed"}
	h := newTestServer(svc, nil)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/analyses/"+record.ID.String()+"/events", nil))

	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	events := readEvents(t, w.Body.String())
	require.Len(t, events, 4)
	assert.Equal(t, "status", events[0].name)
	assert.Equal(t, "queued", events[0].data["status"])
	assert.Equal(t, "running", events[1].data["status"])
	assert.Equal(t, "running", events[2].data["status"])
	assert.Equal(t, "complete", events[3].name)
	assert.Equal(t, "completed", events[3].data["status"])
}

func TestEventsEndpoint_UnknownAnalysis(t *testing.T) {
	h := newTestServer(newMockService(), nil)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/analyses/"+uuid.NewString()+"/events", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCORS(t *testing.T) {
	h := newTestServer(newMockService(), nil)

	req := httptest.NewRequest(http.MethodOptions, "/health", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
