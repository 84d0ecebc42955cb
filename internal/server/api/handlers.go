package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"

	"github.com/finvista/acusync/internal/common"
	"github.com/finvista/acusync/internal/engine"
	"github.com/finvista/acusync/internal/models"
	"github.com/finvista/acusync/internal/server/auth"
)

// waitPollInterval is the initial interval for the synchronous-result wait
// inside the sync budget.
const waitPollInterval = 200 * time.Millisecond

type syncRequest struct {
	Kind            string `json:"kind" validate:"required,oneof=payment invoice voided-payment"`
	StartDate       string `json:"startDate" validate:"required"`
	EndDate         string `json:"endDate" validate:"required"`
	ForceNewSession bool   `json:"forceNewSession"`
	SkipAttachments bool   `json:"skipAttachments"`
}

type windowRequest struct {
	Kind      string `json:"kind" validate:"required,oneof=payment invoice voided-payment"`
	StartDate string `json:"startDate" validate:"required"`
	EndDate   string `json:"endDate" validate:"required"`
}

type verifyRequest struct {
	windowRequest
	Fix bool `json:"fix"`
}

type tokenRequest struct {
	User     string `json:"user" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type progressResponse struct {
	Created            int `json:"created"`
	Updated            int `json:"updated"`
	ApplicationsSynced int `json:"applicationsSynced"`
	FilesSynced        int `json:"filesSynced"`
	RecordsProcessed   int `json:"recordsProcessed"`
}

type jobResponse struct {
	JobID        string           `json:"jobId"`
	Kind         models.Kind      `json:"kind"`
	Status       models.JobStatus `json:"status"`
	WindowStart  time.Time        `json:"windowStart"`
	WindowEnd    time.Time        `json:"windowEnd"`
	Progress     progressResponse `json:"progress"`
	CurrentItem  string           `json:"currentItem,omitempty"`
	Total        int              `json:"total"`
	Errors       []string         `json:"errors,omitempty"`
	ErrorMessage string           `json:"errorMessage,omitempty"`
	CreatedAt    time.Time        `json:"createdAt"`
	FinishedAt   *time.Time       `json:"finishedAt,omitempty"`
}

type asyncResponse struct {
	Async bool   `json:"async"`
	JobID string `json:"jobId"`
}

func jobToResponse(j *models.SyncJob) jobResponse {
	return jobResponse{
		JobID:       j.ID,
		Kind:        j.Kind,
		Status:      j.Status,
		WindowStart: j.WindowStart,
		WindowEnd:   j.WindowEnd,
		Progress: progressResponse{
			Created:            j.Progress.Created,
			Updated:            j.Progress.Updated,
			ApplicationsSynced: j.Progress.ApplicationsSynced,
			FilesSynced:        j.Progress.FilesSynced,
			RecordsProcessed:   j.Progress.RecordsProcessed,
		},
		CurrentItem:  j.CurrentItem,
		Total:        j.Total,
		Errors:       j.Errors,
		ErrorMessage: j.ErrorMessage,
		CreatedAt:    j.CreatedAt,
		FinishedAt:   j.FinishedAt,
	}
}

func (s *Server) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("decoding request body: %w", err)
	}
	return s.validate.Struct(dst)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error(context.Background(), "encoding response failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, common.ErrJobNotFound), errors.Is(err, common.ErrorNotFound),
		errors.Is(err, common.ErrRecordNotFound):
		status = http.StatusNotFound
	case errors.Is(err, common.ErrUnauthorized), errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrAuthenticationFailed):
		status = http.StatusUnauthorized
	case errors.Is(err, common.ErrLoginLimitReached):
		status = http.StatusServiceUnavailable
	case errors.Is(err, common.ErrTransientRemote):
		status = http.StatusBadGateway
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) badRequest(w http.ResponseWriter, err error) {
	s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
}

// parseWindow accepts plain dates ("2025-03-01") or RFC 3339 timestamps. A
// date-only end bound is widened to the end of that day so the window is
// inclusive.
func parseWindow(startDate, endDate string) (time.Time, time.Time, error) {
	start, _, err := parseDate(startDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("startDate: %w", err)
	}
	end, endDay, err := parseDate(endDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("endDate: %w", err)
	}
	if endDay {
		end = end.Add(24*time.Hour - time.Second)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, errors.New("endDate is before startDate")
	}
	return start, end, nil
}

func parseDate(v string) (t time.Time, dayOnly bool, err error) {
	if t, err = time.Parse("2006-01-02", v); err == nil {
		return t, true, nil
	}
	if t, err = time.Parse(time.RFC3339, v); err == nil {
		return t, false, nil
	}
	return time.Time{}, false, fmt.Errorf("invalid date %q (want YYYY-MM-DD or RFC 3339)", v)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := s.decode(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	if req.User != s.cfg.APIUser || req.Password != s.cfg.APIPassword {
		s.writeError(w, r, common.ErrAuthenticationFailed)
		return
	}

	token, err := auth.GenerateToken(req.User, []byte(s.cfg.SecretKey), s.cfg.TokenValidityDuration)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"token":     token,
		"expiresIn": int(s.cfg.TokenValidityDuration.Seconds()),
	})
}

// handleSync submits a window sync. The handler waits inside the processing
// budget for a synchronous result; past the budget the job keeps running and
// the caller gets the job id to poll.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := s.decode(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	start, end, err := parseWindow(req.StartDate, req.EndDate)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	kind := models.Kind(req.Kind)

	job, attached, err := s.tracker.Submit(r.Context(), kind, start, end)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if !attached {
		runReq := engine.SyncRequest{
			Kind:            kind,
			Start:           start,
			End:             end,
			ForceNewSession: req.ForceNewSession,
			SkipAttachments: req.SkipAttachments,
		}
		// The run outlives this request; only job expiry bounds it.
		go func() {
			if err := s.engine.Run(context.Background(), job.ID, runReq); err != nil {
				s.logger.Error(context.Background(), "sync run failed", "job_id", job.ID, "error", err)
			}
		}()
	}

	waitCtx, cancel := context.WithTimeout(r.Context(), s.cfg.SyncBudget)
	defer cancel()

	final, err := s.tracker.WaitForCompletion(waitCtx, job.ID, waitPollInterval)
	if err == nil && final != nil && final.Status.Terminal() {
		s.writeJSON(w, http.StatusOK, jobToResponse(final))
		return
	}
	s.writeJSON(w, http.StatusAccepted, asyncResponse{Async: true, JobID: job.ID})
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.tracker.Poll(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, jobToResponse(job))
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if err := s.tracker.Cancel(r.Context(), jobID); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"jobId": jobID, "status": "cancel requested"})
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	var req windowRequest
	if err := s.decode(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	start, end, err := parseWindow(req.StartDate, req.EndDate)
	if err != nil {
		s.badRequest(w, err)
		return
	}

	cmp, err := s.reconciler.Compare(r.Context(), models.Kind(req.Kind), start, end)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, cmp)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := s.decode(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	start, end, err := parseWindow(req.StartDate, req.EndDate)
	if err != nil {
		s.badRequest(w, err)
		return
	}

	report, err := s.verifier.Verify(r.Context(), models.Kind(req.Kind), start, end, req.Fix)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}
