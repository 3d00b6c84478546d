package intake

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/zombor/cv-intake/internal/auth"
	"github.com/zombor/cv-intake/internal/extract"
	"github.com/zombor/cv-intake/internal/remote"
	"github.com/zombor/cv-intake/internal/upload"
)

const (
	maxFormSize = int64(50 << 20) // 50MB
	xlsxType    = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func jsonError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, map[string]string{"error": message})
}

// errorStatus maps service errors to HTTP status codes
func errorStatus(err error) int {
	var containerErr *upload.ContainerError
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, upload.ErrNoItems),
		errors.Is(err, ErrInvalidPhone),
		errors.Is(err, extract.ErrUnknownField),
		errors.Is(err, auth.ErrInvalidRefreshToken),
		errors.Is(err, remote.ErrInvalidContainer):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrMissingCredential):
		return http.StatusServiceUnavailable
	case errors.Is(err, auth.ErrRefreshRejected), errors.As(err, &containerErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// decodeRequest reads a JSON body into v and validates it
func (s *Server) decodeRequest(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	if err := s.validate.Struct(v); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}
	return nil
}

func parseFilter(r *http.Request) (Filter, error) {
	filter := Filter(r.URL.Query().Get("status"))
	switch filter {
	case FilterAll, FilterComplete, FilterReview:
		return filter, nil
	}
	return "", fmt.Errorf("unknown status filter %q", filter)
}

// handleListDocuments returns stored documents, optionally filtered by completeness
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	documents, err := s.service.ListDocuments(filter)
	if err != nil {
		slog.Error("Error listing documents", "error", err)
		jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, documents)
}

// handleUploadDocuments stores every "file" part of a multipart form
func (s *Server) handleUploadDocuments(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormSize)
	if err := r.ParseMultipartForm(maxFormSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		msg := "Error parsing form"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			msg = "Upload is too large. Maximum size is 50MB."
		}
		jsonError(w, msg, http.StatusBadRequest)
		return
	}

	headers := r.MultipartForm.File["file"]
	if len(headers) == 0 {
		jsonError(w, "No file provided", http.StatusBadRequest)
		return
	}

	documents := make([]*Document, 0, len(headers))
	for _, header := range headers {
		f, err := header.Open()
		if err != nil {
			slog.Error("Error opening uploaded file", "filename", header.Filename, "error", err)
			jsonError(w, "Error reading file", http.StatusBadRequest)
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			slog.Error("Error reading file data", "filename", header.Filename, "error", err)
			jsonError(w, "Error reading file", http.StatusInternalServerError)
			return
		}

		contentType := strings.ToLower(strings.TrimSpace(header.Header.Get("Content-Type")))
		document, err := s.service.ProcessDocument(r.Context(), header.Filename, data, contentType)
		if err != nil {
			slog.Error("Error processing document", "filename", header.Filename, "error", err)
			jsonError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		documents = append(documents, document)
	}

	writeJSON(w, http.StatusCreated, documents)
}

// handleGetDocument returns a single document
func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	document, err := s.service.GetDocument(r.PathValue("id"))
	if err != nil {
		jsonError(w, "Document not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, document)
}

// handleGetDocumentFile returns the original file of a document
func (s *Server) handleGetDocumentFile(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.GetDocumentFile(r.PathValue("id"))
	if err != nil {
		jsonError(w, "File not found", http.StatusNotFound)
		return
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleUpdateDocument applies manual review edits
func (s *Server) handleUpdateDocument(w http.ResponseWriter, r *http.Request) {
	var update DocumentUpdate
	if err := s.decodeRequest(r, &update); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	document, err := s.service.UpdateDocument(r.PathValue("id"), update)
	if err != nil {
		slog.Error("Error updating document", "id", r.PathValue("id"), "error", err)
		jsonError(w, err.Error(), errorStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, document)
}

// handleReextractField runs extraction for one field again
func (s *Server) handleReextractField(w http.ResponseWriter, r *http.Request) {
	field := extract.Field(r.PathValue("field"))
	document, err := s.service.ReextractField(r.Context(), r.PathValue("id"), field)
	if err != nil {
		slog.Error("Error re-extracting field", "id", r.PathValue("id"), "field", field, "error", err)
		jsonError(w, err.Error(), errorStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, document)
}

// handleDeleteDocument deletes a document and its file
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteDocument(r.PathValue("id")); err != nil {
		slog.Error("Error deleting document", "id", r.PathValue("id"), "error", err)
		jsonError(w, "Error deleting document", errorStatus(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type batchRequest struct {
	DocumentIDs []string `json:"document_ids" validate:"required,min=1,dive,required"`
	SessionID   string   `json:"session_id"`
}

type uploadsRequest struct {
	Files []UploadFile `json:"files" validate:"required,min=1,dive"`
}

type batchResponse struct {
	SessionID     string           `json:"session_id,omitempty"`
	FileLinks     []string         `json:"file_links"`
	FolderLink    string           `json:"folder_link"`
	Status        upload.Status    `json:"status"`
	FailedIndices []int            `json:"failed_indices"`
	Records       []extract.Record `json:"records,omitempty"`
	Error         string           `json:"error,omitempty"`
}

// writeBatch reports a batch outcome. A partially failed batch is still a
// 200; fatal errors map through errorStatus.
func writeBatch(w http.ResponseWriter, result *upload.Result, records []extract.Record, err error) {
	resp := batchResponse{
		FileLinks:     []string{},
		FailedIndices: []int{},
		Status:        upload.StatusFatal,
		Records:       records,
	}
	if result != nil {
		if result.Session != nil {
			resp.SessionID = result.Session.ID
		}
		if result.FileLinks != nil {
			resp.FileLinks = result.FileLinks
		}
		if failed := result.FailedIndices(); failed != nil {
			resp.FailedIndices = failed
		}
		resp.FolderLink = result.ContainerLink
		resp.Status = result.Status
	}

	code := http.StatusOK
	if err != nil {
		resp.Error = err.Error()
		var batchErr *upload.BatchError
		if !errors.As(err, &batchErr) {
			code = errorStatus(err)
		}
	}
	writeJSON(w, code, resp)
}

// handleCreateBatch uploads stored documents
func (s *Server) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := s.decodeRequest(r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := s.service.UploadStored(r.Context(), req.DocumentIDs, req.SessionID)
	if err != nil {
		slog.Error("Batch upload finished with errors", "error", err)
	}
	writeBatch(w, result, nil, err)
}

// handleUploads extracts and uploads base64 encoded documents in one call
func (s *Server) handleUploads(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormSize)
	var req uploadsRequest
	if err := s.decodeRequest(r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, records, err := s.service.UploadFiles(r.Context(), req.Files)
	if err != nil {
		slog.Error("Upload finished with errors", "error", err)
	}
	writeBatch(w, result, records, err)
}

// handleListBatches returns all batch sessions
func (s *Server) handleListBatches(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.service.ListSessions()
	if err != nil {
		slog.Error("Error listing batches", "error", err)
		jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

// handleGetBatch returns one batch session
func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	session, err := s.service.GetSession(r.PathValue("id"))
	if err != nil {
		jsonError(w, "Batch not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// handleDeleteContainer removes a remote container
func (s *Server) handleDeleteContainer(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteContainer(r.Context(), r.PathValue("id")); err != nil {
		slog.Error("Error deleting container", "id", r.PathValue("id"), "error", err)
		jsonError(w, err.Error(), errorStatus(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type refreshTokenRequest struct {
	Token string `json:"token" validate:"required"`
}

// handleRotateRefreshToken stores a new refresh token
func (s *Server) handleRotateRefreshToken(w http.ResponseWriter, r *http.Request) {
	var req refreshTokenRequest
	if err := s.decodeRequest(r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.service.RotateRefreshToken(r.Context(), strings.TrimSpace(req.Token)); err != nil {
		slog.Error("Error rotating refresh token", "error", err)
		jsonError(w, err.Error(), errorStatus(err))
		return
	}

	status, err := s.service.CredentialStatus(r.Context())
	if err != nil {
		slog.Error("Error reading credential status", "error", err)
		jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleCredentialStatus reports on the refresh token
func (s *Server) handleCredentialStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.service.CredentialStatus(r.Context())
	if err != nil {
		slog.Error("Error reading credential status", "error", err)
		jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleExport downloads the documents as a spreadsheet
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	data, err := s.service.ExportXLSX(filter)
	if err != nil {
		slog.Error("Error exporting documents", "error", err)
		jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", xlsxType)
	w.Header().Set("Content-Disposition", `attachment; filename="candidates.xlsx"`)
	w.Write(data)
}
