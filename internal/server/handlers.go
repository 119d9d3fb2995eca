package server

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/filing-validator/internal/pipeline"
	"github.com/jonathan/filing-validator/internal/storage"
	"github.com/jonathan/filing-validator/internal/types"
)

const (
	defaultRunLimit = 50
	maxRunLimit     = 500
	maxRequestBytes = 1 << 20
)

// UploadResponse is returned after a successful upload
type UploadResponse struct {
	Message string `json:"message"`
	URL     string `json:"url"`
}

// blobURLer is implemented by stores with a public blob address
type blobURLer interface {
	URL(container, name string) string
}

func (s *Server) decodeRequest(w http.ResponseWriter, r *http.Request) (types.Request, bool) {
	var req types.Request
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return req, false
	}
	return req, true
}

// handleValidate runs the pipeline and returns its summary
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}

	result, err := s.runner.Run(r.Context(), req)
	if err != nil {
		s.logger.Error("server: validation run failed", zap.Error(err))
		s.errorResponse(w, HTTPStatus(err), clientMessage(err))
		return
	}
	s.jsonResponse(w, http.StatusOK, result)
}

// handleValidateStream runs the pipeline and streams step progress via SSE,
// ending with a complete or error event.
func (s *Server) handleValidateStream(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}
	if len(req.Blobs) == 0 {
		s.errorResponse(w, http.StatusBadRequest, "No blobs provided.")
		return
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	ctx := pipeline.WithProgress(r.Context(), func(event pipeline.ProgressEvent) {
		if err := sse.WriteEvent(EventStep, event); err != nil {
			s.logger.Debug("server: dropped progress event", zap.Error(err))
		}
	})

	result, err := s.runner.Run(ctx, req)
	if err != nil {
		s.logger.Error("server: streamed validation run failed", zap.Error(err))
		_ = sse.WriteError(clientMessage(err))
		return
	}
	if err := sse.WriteComplete(result); err != nil {
		s.logger.Warn("server: failed to write completion event", zap.Error(err))
	}
}

// handleListBlobs lists a container's blobs
func (s *Server) handleListBlobs(w http.ResponseWriter, r *http.Request) {
	container := r.URL.Query().Get("container")
	if container == "" {
		err := &ErrValidation{Field: "container", Message: "query parameter is required"}
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}

	blobs, err := s.store.List(r.Context(), container)
	if err != nil {
		s.logger.Warn("server: list failed", zap.String("container", container), zap.Error(err))
		s.errorResponse(w, HTTPStatus(err), "List failed: "+err.Error())
		return
	}
	if blobs == nil {
		blobs = []storage.BlobInfo{}
	}
	s.jsonResponse(w, http.StatusOK, blobs)
}

// handleDownloadBlob returns a blob as an attachment
func (s *Server) handleDownloadBlob(w http.ResponseWriter, r *http.Request) {
	container, name := r.PathValue("container"), r.PathValue("name")
	if err := storage.ValidateName(container, name); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	data, err := s.store.Get(r.Context(), container, name)
	if err != nil {
		s.logger.Warn("server: download failed", zap.String("container", container), zap.String("blob", name), zap.Error(err))
		s.errorResponse(w, HTTPStatus(err), "Download failed: "+err.Error())
		return
	}

	contentType := mime.TypeByExtension(path.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": path.Base(name)}))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.logger.Debug("server: download write interrupted", zap.Error(err))
	}
}

// handleUploadBlob stores the multipart "file" part in "containerName"
func (s *Server) handleUploadBlob(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.errorResponse(w, http.StatusRequestEntityTooLarge, "Upload too large")
			return
		}
		s.errorResponse(w, http.StatusBadRequest, "Invalid multipart body: "+err.Error())
		return
	}

	container := r.FormValue("containerName")
	file, header, err := r.FormFile("file")
	if err == nil {
		defer file.Close()
	}
	if container == "" || err != nil || header.Filename == "" {
		s.errorResponse(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	name := header.Filename
	if err := storage.ValidateName(container, name); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Failed to read upload: "+err.Error())
		return
	}
	if len(data) == 0 {
		s.errorResponse(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	if err := s.store.Put(r.Context(), container, name, data); err != nil {
		s.logger.Error("server: upload failed", zap.String("container", container), zap.String("blob", name), zap.Error(err))
		s.errorResponse(w, http.StatusInternalServerError, "Upload failed: "+err.Error())
		return
	}
	s.logger.Info("server: blob uploaded", zap.String("container", container), zap.String("blob", name), zap.Int("bytes", len(data)))

	s.jsonResponse(w, http.StatusOK, UploadResponse{Message: "Upload successful", URL: s.blobURL(container, name)})
}

func (s *Server) blobURL(container, name string) string {
	if u, ok := s.store.(blobURLer); ok {
		return u.URL(container, name)
	}
	return "/api/blobs/" + url.PathEscape(container) + "/" + (&url.URL{Path: name}).EscapedPath()
}

// handleListRuns returns the most recent runs
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.errorResponse(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = min(n, maxRunLimit)
	}

	runs, err := s.history.ListRuns(r.Context(), limit)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Database error: "+err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, runs)
}

func (s *Server) parseRunID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid run ID format")
		return uuid.Nil, false
	}
	return id, true
}

// handleGetRun returns one run record
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id, ok := s.parseRunID(w, r)
	if !ok {
		return
	}
	run, err := s.history.GetRun(r.Context(), id)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Database error: "+err.Error())
		return
	}
	if run == nil {
		s.errorResponse(w, http.StatusNotFound, "Run not found")
		return
	}
	s.jsonResponse(w, http.StatusOK, run)
}

// handleListRunSteps returns the recorded steps of a run
func (s *Server) handleListRunSteps(w http.ResponseWriter, r *http.Request) {
	id, ok := s.parseRunID(w, r)
	if !ok {
		return
	}
	run, err := s.history.GetRun(r.Context(), id)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Database error: "+err.Error())
		return
	}
	if run == nil {
		s.errorResponse(w, http.StatusNotFound, "Run not found")
		return
	}
	runSteps, err := s.history.ListRunSteps(r.Context(), id)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Database error: "+err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"run_id": id, "steps": runSteps})
}
