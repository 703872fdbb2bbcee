package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/teamalpha/aichef/internal/camera"
	"github.com/teamalpha/aichef/internal/confirm"
	"github.com/teamalpha/aichef/internal/ingredient"
	"github.com/teamalpha/aichef/internal/scan"
)

// maxFrameSize bounds an uploaded frame (high-resolution phone photos)
const maxFrameSize = int64(50 << 20)

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// writeJSON encodes v with the given status
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeError writes a JSON error body
func writeError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, map[string]string{"error": message})
}

// handleListIngredients returns the ingredient list in insertion order
func (s *Server) handleListIngredients(w http.ResponseWriter, r *http.Request) {
	entries := s.deps.Ledger.Snapshot()
	if entries == nil {
		entries = []ingredient.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// pathLabel parses the {label} path value, writing a 400 when it is malformed
func pathLabel(w http.ResponseWriter, r *http.Request) (ingredient.Label, bool) {
	label, err := ingredient.ParseLabel(r.PathValue("label"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return "", false
	}
	return label, true
}

// handleDeleteIngredient removes an ingredient from the list
func (s *Server) handleDeleteIngredient(w http.ResponseWriter, r *http.Request) {
	label, ok := pathLabel(w, r)
	if !ok {
		return
	}
	if !s.deps.Ledger.Remove(label) {
		writeError(w, "Ingredient not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleCheckIngredient ticks an ingredient off the list or un-ticks it
func (s *Server) handleCheckIngredient(w http.ResponseWriter, r *http.Request) {
	label, ok := pathLabel(w, r)
	if !ok {
		return
	}

	var req struct {
		Checked bool `json:"checked"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if !s.deps.Ledger.SetChecked(label, req.Checked) {
		writeError(w, "Ingredient not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSearch resolves a typed ingredient name
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := s.deps.Pipeline.Search(r.Context(), req.Query)
	switch {
	case errors.Is(err, ingredient.ErrMalformedQuery):
		writeError(w, ingredient.MalformedQueryMessage, http.StatusBadRequest)
		return
	case errors.Is(err, scan.ErrClosed):
		writeError(w, "Scanner is shutting down", http.StatusServiceUnavailable)
		return
	case err != nil:
		slog.Error("Error searching ingredient", "query", req.Query, "error", err)
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleListConfirmations returns the outstanding confirmation requests
func (s *Server) handleListConfirmations(w http.ResponseWriter, r *http.Request) {
	pending := []confirm.Request{}
	if s.deps.Queue != nil {
		pending = s.deps.Queue.Pending()
	}
	writeJSON(w, http.StatusOK, pending)
}

// handleResolve answers a confirmation request
func (s *Server) handleResolve(decision confirm.Decision) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if s.deps.Queue == nil {
			writeError(w, "Confirmation not found", http.StatusNotFound)
			return
		}
		if err := s.deps.Queue.Resolve(id, decision); err != nil {
			if errors.Is(err, confirm.ErrUnknownRequest) {
				writeError(w, "Confirmation not found", http.StatusNotFound)
				return
			}
			slog.Error("Error resolving confirmation", "id", id, "error", err)
			writeError(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		slog.Info("Confirmation resolved", "id", id, "decision", decision.String())
		w.WriteHeader(http.StatusNoContent)
	}
}

type scanStatus struct {
	ScanState     string        `json:"scan_state"`
	PipelineState string        `json:"pipeline_state"`
	Stats         scan.Stats    `json:"stats"`
	CameraRunning bool          `json:"camera_running"`
	Camera        *camera.Stats `json:"camera,omitempty"`
}

func (s *Server) scanStatus() scanStatus {
	status := scanStatus{
		ScanState:     s.deps.Pipeline.ScanState().String(),
		PipelineState: s.deps.Pipeline.State().String(),
		Stats:         s.deps.Pipeline.Stats(),
	}
	if s.deps.Source != nil {
		stats := s.deps.Source.Stats()
		status.Camera = &stats
		status.CameraRunning = s.deps.Source.Running()
	}
	return status
}

// handleScanStatus reports the scan and pipeline state
func (s *Server) handleScanStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.scanStatus())
}

// handleSetScanState pauses or resumes scanning
func (s *Server) handleSetScanState(state camera.ScanState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.deps.Pipeline.SetScanState(state)
		writeJSON(w, http.StatusOK, s.scanStatus())
	}
}

// handleToggleScan flips between scanning and paused
func (s *Server) handleToggleScan(w http.ResponseWriter, r *http.Request) {
	s.deps.Pipeline.ToggleScanState()
	writeJSON(w, http.StatusOK, s.scanStatus())
}

// handleUploadFrame decodes an uploaded image and pushes it through the camera device
func (s *Server) handleUploadFrame(w http.ResponseWriter, r *http.Request) {
	if s.deps.Device == nil {
		writeError(w, "Camera does not accept uploaded frames", http.StatusServiceUnavailable)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxFrameSize)
	if err := r.ParseMultipartForm(maxFrameSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		errorMsg := "Error parsing form"
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			errorMsg = "File is too large. Maximum size is 50MB."
		}
		writeError(w, errorMsg, http.StatusBadRequest)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, "No file provided", http.StatusBadRequest)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeError(w, "Error reading file. Please try again.", http.StatusInternalServerError)
		return
	}

	contentType := strings.ToLower(strings.TrimSpace(header.Header.Get("Content-Type")))
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = camera.ContentTypeForPath(header.Filename)
	}

	if err := s.deps.Device.PushImage(data, contentType); err != nil {
		if errors.Is(err, camera.ErrDeviceClosed) {
			writeError(w, "Camera is not running", http.StatusServiceUnavailable)
			return
		}
		slog.Warn("Rejected uploaded frame", "filename", header.Filename, "error", err)
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}
