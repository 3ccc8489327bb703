package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/skills-audit/constants"
	"github.com/joseph-ayodele/skills-audit/internal/async"
	"github.com/joseph-ayodele/skills-audit/internal/common"
	"github.com/joseph-ayodele/skills-audit/internal/core/aggregate"
	"github.com/joseph-ayodele/skills-audit/internal/entity"
)

const maxBodyBytes = 1 << 20

// Handler exposes the job queue over HTTP: submit, poll, cancel and artifact download.
type Handler struct {
	queue          async.Queue
	artifactDir    string
	defaultMinimum int
	logger         *slog.Logger
	mux            *http.ServeMux
}

func NewHandler(queue async.Queue, artifactDir string, defaultMinimum int, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if defaultMinimum < 0 {
		defaultMinimum = aggregate.DefaultMinimum
	}
	h := &Handler{
		queue:          queue,
		artifactDir:    artifactDir,
		defaultMinimum: defaultMinimum,
		logger:         logger,
		mux:            http.NewServeMux(),
	}
	h.mux.HandleFunc("POST /audits", h.submit)
	h.mux.HandleFunc("GET /audits/{id}", h.status)
	h.mux.HandleFunc("DELETE /audits/{id}", h.cancel)
	h.mux.HandleFunc("GET /artifacts/{name}", h.download)
	h.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	h.mux.ServeHTTP(rec, r)
	h.logger.Debug("http.request",
		"method", r.Method,
		"path", r.URL.Path,
		"status", rec.status,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
}

type submitRequest struct {
	Username          string         `json:"username"`
	Password          string         `json:"password"`
	MinimumValues     map[string]int `json:"minimum_values"`
	SelectedLanguages []string       `json:"selected_languages"`
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var (
		req submitRequest
		err error
	)
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		req, err = decodeJSON(r.Body)
	} else {
		req, err = decodeForm(r)
	}
	if err != nil {
		h.logger.Warn("http.submit.invalid", "error", err)
		writeError(w, http.StatusBadRequest, common.ErrorCode(err), err.Error())
		return
	}

	id, err := h.queue.Submit(r.Context(), async.Request{
		Credentials: entity.Credentials{Username: req.Username, Password: req.Password},
		Thresholds: aggregate.Thresholds{
			Default:     h.defaultMinimum,
			PerLanguage: req.MinimumValues,
		},
		Languages: req.SelectedLanguages,
	})
	if err != nil {
		h.logger.Error("http.submit.failed", "error", err)
		writeError(w, statusFor(err), common.ErrorCode(err), err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": id.String()})
}

func decodeJSON(body io.Reader) (submitRequest, error) {
	var req submitRequest
	raw, err := io.ReadAll(body)
	if err != nil {
		return req, common.NewAppError(common.CodeInvalidInput, "request body could not be read", errors.Join(common.ErrInvalidInput, err))
	}
	if err := common.ValidateAuditRequest(raw); err != nil {
		return req, err
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return req, common.NewAppError(common.CodeInvalidInput, "request body is not valid JSON", errors.Join(common.ErrInvalidInput, err))
	}
	return req, nil
}

// decodeForm reads a urlencoded or multipart submission. minimum_values is a JSON object and
// selected_languages either a JSON array or repeated fields.
func decodeForm(r *http.Request) (submitRequest, error) {
	var req submitRequest
	if err := r.ParseMultipartForm(maxBodyBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return req, common.NewAppError(common.CodeInvalidInput, "form could not be parsed", errors.Join(common.ErrInvalidInput, err))
	}
	req.Username = strings.TrimSpace(r.FormValue("username"))
	req.Password = r.FormValue("password")

	v := common.NewValidator().
		Field("username", req.Username, common.Required, common.MaxLength(256)).
		Field("password", req.Password, common.Required, common.MaxLength(256))

	if raw := strings.TrimSpace(r.FormValue("minimum_values")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.MinimumValues); err != nil {
			return req, common.NewAppError(common.CodeInvalidInput, "minimum_values must be a JSON object of integers", errors.Join(common.ErrInvalidInput, err))
		}
		for lang, n := range req.MinimumValues {
			v.Field("minimum_values["+lang+"]", n, common.NonNegative)
		}
	}

	langs := r.Form["selected_languages"]
	if len(langs) == 1 && strings.HasPrefix(strings.TrimSpace(langs[0]), "[") {
		if err := json.Unmarshal([]byte(langs[0]), &req.SelectedLanguages); err != nil {
			return req, common.NewAppError(common.CodeInvalidInput, "selected_languages must be a JSON array of strings", errors.Join(common.ErrInvalidInput, err))
		}
	} else {
		for _, l := range langs {
			if l = strings.TrimSpace(l); l != "" {
				req.SelectedLanguages = append(req.SelectedLanguages, l)
			}
		}
	}
	return req, v.Err()
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	id, ok := parseJobID(w, r)
	if !ok {
		return
	}
	job, err := h.queue.Status(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), common.ErrorCode(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, statusView(job))
}

// statusView shapes a snapshot for pollers: live jobs expose progress, succeeded jobs their
// result and failed ones the failure code.
func statusView(job entity.Job) map[string]any {
	switch job.Status {
	case constants.JobStatusSucceeded:
		return map[string]any{"state": job.Status, "result": job.Result}
	case constants.JobStatusFailed:
		return map[string]any{"state": job.Status, "log_message": job.ErrorMessage, "error_code": job.ErrorCode}
	default:
		return map[string]any{"state": job.Status, "progress": job.Progress, "log_message": job.Message}
	}
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := parseJobID(w, r)
	if !ok {
		return
	}
	if err := h.queue.Cancel(id); err != nil {
		writeError(w, statusFor(err), common.ErrorCode(err), err.Error())
		return
	}
	h.logger.Info("http.cancel.accepted", "job_id", id)
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": id.String()})
}

func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !safeArtifactName(name) {
		h.logger.Warn("http.download.rejected", "name", name)
		writeError(w, http.StatusBadRequest, common.CodeInvalidInput, "invalid artifact name")
		return
	}

	f, err := os.Open(filepath.Join(h.artifactDir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeError(w, http.StatusNotFound, common.CodeNotFound, "artifact not found")
			return
		}
		h.logger.Error("http.download.failed", "name", name, "error", err)
		writeError(w, http.StatusInternalServerError, common.CodeInternal, "artifact could not be read")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		writeError(w, http.StatusNotFound, common.CodeNotFound, "artifact not found")
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	if strings.HasSuffix(name, ".xlsx") {
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	}
	http.ServeContent(w, r, name, info.ModTime(), f)
}

func safeArtifactName(name string) bool {
	if name == "" || name == "." {
		return false
	}
	return !strings.Contains(name, "..") &&
		!strings.HasPrefix(name, "/") &&
		!strings.ContainsAny(name, `/\`)
}

func parseJobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, common.CodeInvalidInput, "job id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrConflict):
		return http.StatusConflict
	case common.ErrorCode(err) == common.CodeInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]string{"error_code": code, "message": msg})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
