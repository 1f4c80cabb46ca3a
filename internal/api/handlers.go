package api

import (
	"context"
	"net/http"
	"time"

	"github.com/cohortlab/cohortd/internal/cohort"
	"github.com/cohortlab/cohortd/internal/log"
)

type matrixKind int

const (
	matrixRetention matrixKind = iota
	matrixCounts
	matrixMonetary
)

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadyz reports ready once an analysis is available to serve, either
// from a completed refresh or a restored snapshot.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.refresher.Analysis(); !ok {
		writeError(w, r, http.StatusServiceUnavailable, "no analysis available yet")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	a, ok := s.refresher.Analysis()
	if !ok {
		writeNotFound(w, r, "no analysis available")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleMatrix(kind matrixKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, ok := s.refresher.Analysis()
		if !ok {
			writeNotFound(w, r, "no analysis available")
			return
		}
		var m *cohort.Matrix
		switch kind {
		case matrixRetention:
			m = a.Retention
		case matrixCounts:
			m = a.Counts
		case matrixMonetary:
			m = a.Monetary
		}
		writeJSON(w, http.StatusOK, m)
	}
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	rep, ok := s.refresher.Insights()
	if !ok {
		writeNotFound(w, r, "no insights available")
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"uptimeSeconds": int64(time.Since(s.startedAt).Seconds()),
		"refreshing":    s.refresher.Running(),
	}
	if last, ok := s.refresher.Last(); ok {
		resp["lastRefresh"] = last
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleRefresh starts a refresh in the background and answers with the job
// ID so the client can correlate logs and later status reads.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	// Detach from the request context: the refresh outlives the request.
	ctx := log.ContextWithRequestID(context.Background(), log.RequestIDFromContext(r.Context()))

	jobID, err := s.refresher.Launch(ctx)
	if err != nil {
		writeError(w, r, http.StatusConflict, "refresh already in progress")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "accepted",
		"jobId":  jobID,
	})
}
