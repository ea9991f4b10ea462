package files

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/upvault/upvault/pkg/httpx"
	"github.com/upvault/upvault/pkg/logger"
	"github.com/upvault/upvault/pkg/upload"
)

// multipartOverhead is extra body budget for multipart boundaries and the
// tags form field on top of the file size limit.
const multipartOverhead = 1 << 20

// Handler exposes the file API over HTTP.
type Handler struct {
	store         Store
	log           *slog.Logger
	maxUploadSize int64
}

// NewHandler creates a Handler backed by the given store.
func NewHandler(store Store, log *slog.Logger, maxUploadSize int64) *Handler {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Handler{
		store:         store,
		log:           log,
		maxUploadSize: maxUploadSize,
	}
}

// upload handles POST /. Expects multipart/form-data with a "file" part and
// an optional "tags" part holding a JSON object.
func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize+multipartOverhead)

	src, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			httpx.Error(w, httpx.ErrRequestEntityTooLarge)
			return
		}
		httpx.Error(w, fmt.Errorf("missing file part: %w", httpx.ErrBadRequest))
		return
	}
	defer func() { _ = src.Close() }()

	content, err := io.ReadAll(src)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			httpx.Error(w, httpx.ErrRequestEntityTooLarge)
			return
		}
		h.log.ErrorContext(r.Context(), "failed to read upload", logger.Error(err))
		httpx.Error(w, httpx.ErrInternalServerError)
		return
	}

	if err := upload.ValidateSize(int64(len(content)), h.maxUploadSize); err != nil {
		h.respondError(w, r, err)
		return
	}

	var tags map[string]string
	if raw := r.FormValue("tags"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &tags); err != nil {
			httpx.Error(w, fmt.Errorf("tags must be a JSON object: %w", httpx.ErrBadRequest))
			return
		}
	}

	info, err := h.store.Save(r.Context(), SaveInput{
		Filename: header.Filename,
		Content:  content,
		Tags:     tags,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.log.InfoContext(r.Context(), "file uploaded",
		logger.FileID(info.ID),
		logger.Filename(info.Filename),
		logger.Size(info.Size),
	)
	httpx.JSON(w, http.StatusCreated, info)
}

// list handles GET /?limit=&cursor=.
func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	params := ListParams{Cursor: r.URL.Query().Get("cursor")}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.ParseInt(raw, 10, 32)
		if err != nil || limit < 0 {
			httpx.Error(w, fmt.Errorf("limit must be a non-negative integer: %w", httpx.ErrBadRequest))
			return
		}
		params.Limit = int32(limit)
	}

	page, err := h.store.List(r.Context(), params)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	meta := map[string]any{"count": len(page.Files)}
	if page.NextCursor != "" {
		meta["next_cursor"] = page.NextCursor
	}
	httpx.JSONWithMeta(w, http.StatusOK, page.Files, meta)
}

// get handles GET /{id}.
func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	info, err := h.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, info)
}

// download handles GET /{id}/download. The blob store redirects to a
// presigned URL; the document store streams inline content.
func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	dl, err := h.store.Download(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	if dl.URL != "" {
		http.Redirect(w, r, dl.URL, http.StatusTemporaryRedirect)
		return
	}

	w.Header().Set("Content-Type", dl.Info.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", dl.Info.Filename))
	w.Header().Set("Content-Length", strconv.FormatInt(int64(len(dl.Content)), 10))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(dl.Content)
}

// updateTagsRequest is the PATCH /{id}/tags body.
type updateTagsRequest struct {
	Tags map[string]string `json:"tags"`
}

// updateTags handles PATCH /{id}/tags, replacing the full tag set.
func (h *Handler) updateTags(w http.ResponseWriter, r *http.Request) {
	var req updateTagsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Error(w, fmt.Errorf("invalid request body: %w", httpx.ErrBadRequest))
		return
	}

	info, err := h.store.UpdateTags(r.Context(), chi.URLParam(r, "id"), req.Tags)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.log.InfoContext(r.Context(), "file tags updated", logger.FileID(info.ID))
	httpx.JSON(w, http.StatusOK, info)
}

// delete handles DELETE /{id}.
func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.store.Delete(r.Context(), id); err != nil {
		h.respondError(w, r, err)
		return
	}

	h.log.InfoContext(r.Context(), "file deleted", logger.FileID(id))
	w.WriteHeader(http.StatusNoContent)
}

// respondError maps domain errors to HTTP responses. Unknown errors are
// logged and surface as a bare 500.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Error(w, httpx.ErrNotFound)
	case errors.Is(err, ErrAlreadyExists):
		httpx.Error(w, httpx.ErrConflict)
	case errors.Is(err, ErrInvalidCursor):
		httpx.Error(w, fmt.Errorf("invalid cursor: %w", httpx.ErrBadRequest))
	case errors.Is(err, ErrInvalidTags):
		httpx.Error(w, fmt.Errorf("%s: %w", err.Error(), httpx.ErrUnprocessableEntity))
	case errors.Is(err, upload.ErrEmptyFile):
		httpx.Error(w, fmt.Errorf("file is empty: %w", httpx.ErrBadRequest))
	case errors.Is(err, ErrContentTooLarge), errors.Is(err, upload.ErrFileTooLarge):
		httpx.Error(w, httpx.ErrRequestEntityTooLarge)
	case errors.Is(err, ErrStoreUnavailable):
		h.log.WarnContext(r.Context(), "storage backend unavailable", logger.Error(err))
		httpx.Error(w, httpx.ErrServiceUnavailable)
	default:
		h.log.ErrorContext(r.Context(), "request failed", logger.Error(err))
		httpx.Error(w, httpx.ErrInternalServerError)
	}
}
