package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/couchcryptid/urban-risk-service/internal/domain"
	"github.com/couchcryptid/urban-risk-service/internal/export"
	"github.com/couchcryptid/urban-risk-service/internal/pipeline"
	"github.com/couchcryptid/urban-risk-service/internal/source"
)

// Response status values for errors.
const (
	statusNotReady          = "not_ready"
	statusEmptyBatch        = "empty_batch"
	statusRefreshInProgress = "refresh_in_progress"
	statusNotFound          = "not_found"
	statusSourceError       = "source_error"
	statusInternalError     = "internal_error"
)

type recordsResponse struct {
	Dataset     string                `json:"dataset"`
	GeneratedAt time.Time             `json:"generated_at"`
	Status      domain.ViewStatus     `json:"status"`
	Labels      []string              `json:"labels"`
	Records     []domain.ScoredRecord `json:"records"`
	Summary     *domain.Summary       `json:"summary"`
}

type mapResponse struct {
	Status domain.ViewStatus `json:"status"`
	Points []domain.MapPoint `json:"points"`
}

type categoriesResponse struct {
	Dataset    string   `json:"dataset"`
	Categories []string `json:"categories"`
}

type historyResponse struct {
	ID     string                `json:"id"`
	Points []source.HistoryPoint `json:"points"`
}

type refreshResponse struct {
	Status      string    `json:"status"`
	Records     int       `json:"records"`
	Dropped     int       `json:"dropped"`
	GeneratedAt time.Time `json:"generated_at"`
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	view, snap, err := s.view(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := recordsResponse{
		Dataset:     snap.Dataset,
		GeneratedAt: snap.GeneratedAt,
		Status:      view.Status,
		Labels:      snap.Labels,
		Records:     view.Records,
	}
	if summary, ok := domain.Summarize(view.Records, snap.Schema, snap.Labels); ok {
		resp.Summary = &summary
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	view, _, err := s.view(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapResponse{Status: view.Status, Points: domain.MapPoints(view.Records)})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	view, snap, err := s.view(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-risk.csv"`, snap.Dataset))
	if err := export.WriteCSV(w, snap.Schema, view.Records); err != nil {
		s.logger.Error("write csv export failed", "error", err)
	}
}

func (s *Server) handleCategories(w http.ResponseWriter, _ *http.Request) {
	snap, err := s.svc.Current()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, categoriesResponse{Dataset: snap.Dataset, Categories: snap.Categories()})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	points, err := s.svc.History(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{ID: id, Points: points})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	snap, err := s.svc.Refresh(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, refreshResponse{
		Status:      "refreshed",
		Records:     len(snap.Records),
		Dropped:     snap.Dropped,
		GeneratedAt: snap.GeneratedAt,
	})
}

// view resolves the category selection from the query string and filters the
// current snapshot. Categories may repeat (?category=a&category=b) or be
// comma-separated; all=true selects every category in the snapshot.
func (s *Server) view(r *http.Request) (domain.View, *domain.Snapshot, error) {
	q := r.URL.Query()
	if q.Get("all") == "true" {
		snap, err := s.svc.Current()
		if err != nil {
			return domain.View{}, nil, err
		}
		return s.svc.View(domain.NewSelection(snap.Categories()...))
	}

	var categories []string
	for _, v := range q["category"] {
		for _, c := range strings.Split(v, ",") {
			categories = append(categories, strings.TrimSpace(c))
		}
	}
	return s.svc.View(domain.NewSelection(categories...))
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status, code := http.StatusInternalServerError, statusInternalError
	switch {
	case errors.Is(err, pipeline.ErrNotReady):
		status, code = http.StatusServiceUnavailable, statusNotReady
	case errors.Is(err, domain.ErrEmptyBatch):
		status, code = http.StatusServiceUnavailable, statusEmptyBatch
	case errors.Is(err, pipeline.ErrRefreshInProgress):
		status, code = http.StatusConflict, statusRefreshInProgress
	case errors.Is(err, pipeline.ErrRecordNotFound):
		status, code = http.StatusNotFound, statusNotFound
	case errors.Is(err, domain.ErrDataSource):
		status, code = http.StatusBadGateway, statusSourceError
	}
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		s.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"status": code, "error": err.Error()})
}
