package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/royengg/homeworkai/internal/db"
)

// SubmitResponse is returned when an analysis is queued
type SubmitResponse struct {
	AnalysisID string `json:"analysis_id"`
	JobID      string `json:"job_id"`
	Status     string `json:"status"`
}

// StatusEvent is one update of an analysis event stream
type StatusEvent struct {
	AnalysisID string    `json:"analysis_id"`
	Status     string    `json:"status"`
	Error      *string   `json:"error,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// keepAliveEvery is the number of unchanged polls between keep-alive comments
const keepAliveEvery = 15

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, &ErrValidation{Field: name, Message: "must be a UUID"}
	}
	return id, nil
}

// handleSubmit creates a queued analysis for an upload
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	uploadID, err := pathUUID(r, "upload_id")
	if err != nil {
		s.handleError(w, err)
		return
	}

	sub, err := s.service.Submit(r.Context(), uploadID)
	if err != nil {
		s.handleError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusAccepted, SubmitResponse{
		AnalysisID: sub.AnalysisID.String(),
		JobID:      sub.JobID.String(),
		Status:     db.AnalysisStatusQueued,
	})
}

// handleGetAnalysis returns an analysis record with its output
func (s *Server) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	uploadID, err := pathUUID(r, "upload_id")
	if err != nil {
		s.handleError(w, err)
		return
	}
	analysisID, err := pathUUID(r, "analysis_id")
	if err != nil {
		s.handleError(w, err)
		return
	}

	record, err := s.service.Get(r.Context(), uploadID, analysisID)
	if err != nil {
		s.handleError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, record)
}

// handleEvents streams status changes of an analysis until it finishes
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	analysisID, err := pathUUID(r, "analysis_id")
	if err != nil {
		s.handleError(w, err)
		return
	}

	// the first lookup decides the response status
	record, err := s.service.Lookup(r.Context(), analysisID)
	if err != nil {
		s.handleError(w, err)
		return
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := sse.Retry(s.pollInterval); err != nil {
		return
	}

	var last *StatusEvent
	idle := 0
	for {
		event := StatusEvent{
			AnalysisID: record.ID.String(),
			Status:     record.Status,
			Error:      record.Error,
			UpdatedAt:  record.UpdatedAt,
		}
		if db.IsTerminalStatus(record.Status) {
			sse.WriteComplete(event)
			return
		}
		if last == nil || last.Status != event.Status || !last.UpdatedAt.Equal(event.UpdatedAt) {
			if err := sse.WriteEvent("status", event); err != nil {
				return
			}
			last = &event
			idle = 0
		} else {
			idle++
			if idle%keepAliveEvery == 0 {
				if err := sse.Ping(); err != nil {
					return
				}
			}
		}

		select {
		case <-r.Context().Done():
			return
		case <-time.After(s.pollInterval):
		}

		record, err = s.service.Lookup(r.Context(), analysisID)
		if err != nil {
			if r.Context().Err() == nil {
				s.logger.Error("failed to poll analysis", "analysis_id", analysisID, "error", err)
				sse.WriteError("failed to read analysis status")
			}
			return
		}
	}
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health.Ping(r.Context()); err != nil {
			s.logger.Warn("health check failed", "error", err)
			s.jsonResponse(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}
