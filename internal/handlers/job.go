package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/stanstork/catalog-importer/internal/models"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const uploadField = "file"

type ImportSubmitter interface {
	Submit(ctx context.Context, jobID string, r io.Reader) (models.Job, error)
}

type JobProgress interface {
	Get(ctx context.Context, id string) (models.Job, error)
	Stream(ctx context.Context, id string) iter.Seq2[models.Job, error]
}

type JobHandler struct {
	imports        ImportSubmitter
	progress       JobProgress
	originPatterns []string
	logger         zerolog.Logger
}

func NewJobHandler(imports ImportSubmitter, progress JobProgress, originPatterns []string, logger zerolog.Logger) *JobHandler {
	return &JobHandler{
		imports:        imports,
		progress:       progress,
		originPatterns: originPatterns,
		logger:         logger.With().Str("handler", "job").Logger(),
	}
}

// Upload streams the multipart "file" field into a new import job.
func (h *JobHandler) Upload(w http.ResponseWriter, r *http.Request) {
	mr, err := r.MultipartReader()
	if err != nil {
		http.Error(w, "Expected multipart/form-data with a file field", http.StatusBadRequest)
		return
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			http.Error(w, "Invalid multipart body", http.StatusBadRequest)
			return
		}
		if part.FormName() != uploadField {
			part.Close()
			continue
		}

		job, err := h.imports.Submit(r.Context(), "", part)
		part.Close()
		if errors.Is(err, models.ErrJobExists) {
			http.Error(w, "Job already exists", http.StatusConflict)
			return
		}
		if err != nil {
			h.logger.Error().Err(err).Str("filename", part.FileName()).Msg("failed to submit import")
			http.Error(w, "Failed to create import job", http.StatusInternalServerError)
			return
		}
		h.logger.Info().Str("job_id", job.ID).Str("filename", part.FileName()).Msg("upload accepted")
		writeJSON(w, http.StatusOK, job)
		return
	}

	http.Error(w, "Missing file field", http.StatusBadRequest)
}

func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(mux.Vars(r)["jobID"])
	job, err := h.progress.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrJobNotFound) {
			http.Error(w, "Job not found", http.StatusNotFound)
			return
		}
		h.logger.Error().Err(err).Str("job_id", id).Msg("failed to get job")
		http.Error(w, "Failed to get job", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// Events streams job snapshots as server-sent events until the job is terminal
// or the client goes away.
func (h *JobHandler) Events(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(mux.Vars(r)["jobID"])
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for job, err := range h.progress.Stream(r.Context(), id) {
		if err != nil {
			h.logger.Error().Err(err).Str("job_id", id).Msg("job event stream failed")
			return
		}
		data, err := json.Marshal(job)
		if err != nil {
			h.logger.Error().Err(err).Str("job_id", id).Msg("failed to encode job")
			return
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return
		}
		flusher.Flush()
	}
}

// Socket sends one JSON text message per job snapshot over a websocket.
func (h *JobHandler) Socket(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(mux.Vars(r)["jobID"])
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		h.logger.Warn().Err(err).Str("job_id", id).Msg("websocket upgrade failed")
		return
	}
	defer conn.CloseNow()

	// Client messages are ignored; the read side only detects disconnects.
	ctx := conn.CloseRead(r.Context())

	for job, err := range h.progress.Stream(ctx, id) {
		if err != nil {
			h.logger.Error().Err(err).Str("job_id", id).Msg("job websocket stream failed")
			conn.Close(websocket.StatusInternalError, "stream failed")
			return
		}
		if err := wsjson.Write(ctx, conn, job); err != nil {
			return
		}
	}
	conn.Close(websocket.StatusNormalClosure, "")
}
