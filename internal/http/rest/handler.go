// Package rest is the thin HTTP surface over the queue: it resolves
// URLs, turns them into enqueue requests and exposes queue state. No
// queue logic lives here.
package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/mediafetch/mediafetch/internal/logctx"
	"github.com/mediafetch/mediafetch/internal/platform"
	"github.com/mediafetch/mediafetch/internal/queue"
	"github.com/mediafetch/mediafetch/internal/storage"
	"github.com/mediafetch/mediafetch/internal/thumbs"
)

// Handler wires queue operations to HTTP routes.
type Handler struct {
	orch     *queue.Orchestrator
	repo     storage.DownloadReadRepository
	resolver *platform.Resolver
	cache    *thumbs.Cache
}

func NewHandler(orch *queue.Orchestrator, repo storage.DownloadReadRepository, resolver *platform.Resolver, cache *thumbs.Cache) *Handler {
	return &Handler{orch: orch, repo: repo, resolver: resolver, cache: cache}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/resolve", h.resolve)
	r.Get("/queue", h.queueSnapshot)
	r.Post("/downloads", h.enqueue)
	r.Get("/downloads", h.listByStatus)
	r.Post("/downloads/{id}/pause", h.pause)
	r.Post("/downloads/{id}/resume", h.resume)
	r.Post("/downloads/{id}/retry", h.retry)
	r.Delete("/downloads/{id}", h.remove)
	r.Get("/downloads/{id}/thumbnail", h.thumbnail)

	return r
}

type resolveRequest struct {
	URL      string `json:"url"`
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")

		return
	}

	if platform.IsPlaylistURL(req.URL) {
		entries, err := h.resolver.ResolvePlaylist(r.Context(), req.URL, req.Page, req.PageSize)
		if err != nil {
			writeResolveError(w, r, err)

			return
		}

		writeJSON(w, http.StatusOK, map[string]any{"playlist": true, "entries": entries})

		return
	}

	meta, err := h.resolver.Resolve(r.Context(), req.URL)
	if err != nil {
		writeResolveError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"playlist": false, "entries": []*platform.Metadata{meta}})
}

type enqueueRequest struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	URL            string `json:"url"`
	MediaKind      string `json:"media_kind"`
	FormatSelector string `json:"format_selector"`
	FormatExt      string `json:"format_ext"`
	Platform       string `json:"platform"`
}

func (h *Handler) enqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")

		return
	}

	id := req.ID
	if id == "" {
		if mediaID, ok := platform.ExtractMediaID(req.URL); ok {
			id = mediaID
		} else {
			id = uuid.New().String()
		}
	}

	kind := storage.MediaVideo
	if req.MediaKind == string(storage.MediaAudio) {
		kind = storage.MediaAudio
	}

	ext := req.FormatExt
	if ext == "" {
		if kind == storage.MediaAudio {
			ext = "mp3"
		} else {
			ext = "mp4"
		}
	}

	platformTag := req.Platform
	if platformTag == "" {
		platformTag = string(platform.Classify(req.URL))
	}

	title := req.Title
	if title == "" {
		title = id
	}

	rec := &storage.DownloadRecord{
		ID:             id,
		Title:          title,
		SourceURL:      req.URL,
		Platform:       platformTag,
		MediaKind:      kind,
		FormatSelector: req.FormatSelector,
		FormatExt:      ext,
	}

	if err := h.orch.Enqueue(r.Context(), rec); err != nil {
		logctx.LoggerFromContext(r.Context()).Error("enqueue failed", "download_id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to enqueue download")

		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"id": id})
}

func (h *Handler) queueSnapshot(w http.ResponseWriter, r *http.Request) {
	snap := h.orch.Snapshot()

	resp := map[string]any{
		"queued": toViews(snap.Queued),
		"failed": toViews(snap.Failed),
	}

	if snap.Active != nil {
		active := toView(snap.Active)
		active.Percent = snap.ActivePercent
		active.ETASeconds = snap.ActiveETA
		resp["active"] = active
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) listByStatus(w http.ResponseWriter, r *http.Request) {
	status := storage.Status(r.URL.Query().Get("status"))
	if status == "" {
		status = storage.StatusCompleted
	}

	records, err := h.repo.ListByStatus(status)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list downloads")

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"downloads": toViews(records)})
}

func (h *Handler) pause(w http.ResponseWriter, r *http.Request) {
	h.queueOp(w, r, h.orch.Pause)
}

func (h *Handler) resume(w http.ResponseWriter, r *http.Request) {
	h.queueOp(w, r, h.orch.Resume)
}

func (h *Handler) retry(w http.ResponseWriter, r *http.Request) {
	h.queueOp(w, r, h.orch.RetryFailed)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	h.queueOp(w, r, h.orch.Remove)
}

func (h *Handler) queueOp(w http.ResponseWriter, r *http.Request, op func(id string) error) {
	id := chi.URLParam(r, "id")

	err := op(id)

	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"id": id})
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "download not found")
	case errors.Is(err, queue.ErrNotActive), errors.Is(err, queue.ErrWrongStatus):
		writeError(w, http.StatusConflict, err.Error())
	default:
		logctx.LoggerFromContext(r.Context()).Error("queue operation failed", "download_id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "queue operation failed")
	}
}

func (h *Handler) thumbnail(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	path, ok := h.cache.Get(id)
	if !ok {
		// older entries can be keyed by filename stem instead of id
		rec, err := h.repo.GetByID(id)
		if err != nil {
			writeError(w, http.StatusNotFound, "no thumbnail cached")

			return
		}

		if path, ok = h.cache.Get(thumbs.Key(rec.ID, rec.FilePath)); !ok {
			writeError(w, http.StatusNotFound, "no thumbnail cached")

			return
		}
	}

	http.ServeFile(w, r, path)
}

// downloadView is the wire shape of one record.
type downloadView struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	URL          string  `json:"url"`
	Platform     string  `json:"platform"`
	MediaKind    string  `json:"media_kind"`
	Status       string  `json:"status"`
	Percent      float64 `json:"percent"`
	ETASeconds   int64   `json:"eta_seconds"`
	FilePath     string  `json:"file_path,omitempty"`
	FileSize     string  `json:"file_size,omitempty"`
	CreatedAt    string  `json:"created_at"`
	CompletedAt  string  `json:"completed_at,omitempty"`
	ErrorMessage string  `json:"error_message,omitempty"`
}

func toView(rec *storage.DownloadRecord) *downloadView {
	v := &downloadView{
		ID:           rec.ID,
		Title:        rec.Title,
		URL:          rec.SourceURL,
		Platform:     rec.Platform,
		MediaKind:    string(rec.MediaKind),
		Status:       string(rec.Status),
		Percent:      rec.ProgressPercent,
		ETASeconds:   rec.ETASeconds,
		FilePath:     rec.FilePath,
		CreatedAt:    rec.CreatedAt.Format("Jan 02, 2006 15:04"),
		ErrorMessage: rec.ErrorMessage,
	}

	if rec.CompletedAt != nil {
		v.CompletedAt = rec.CompletedAt.Format("Jan 02, 2006 15:04")
	}

	if rec.FilePath != "" {
		if info, err := os.Stat(rec.FilePath); err == nil {
			v.FileSize = humanize.Bytes(uint64(info.Size()))
		}
	}

	return v
}

func toViews(records []*storage.DownloadRecord) []*downloadView {
	views := make([]*downloadView, 0, len(records))
	for _, rec := range records {
		views = append(views, toView(rec))
	}

	return views
}

func writeResolveError(w http.ResponseWriter, r *http.Request, err error) {
	logctx.LoggerFromContext(r.Context()).Warn("metadata resolve failed", "err", err)

	var metaErr *platform.MetadataError
	if errors.As(err, &metaErr) {
		writeError(w, http.StatusBadGateway, metaErr.Reason)

		return
	}

	writeError(w, http.StatusBadGateway, "metadata lookup failed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	// the status line is already committed, nothing useful to do on error
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
