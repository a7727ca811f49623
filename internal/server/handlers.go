package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/zombor/receiptify/internal/imaging"
	"github.com/zombor/receiptify/internal/pipeline"
)

const (
	healthMessage    = "Receiptify OCR + Gemini API with QR support is running!"
	noFileMessage    = "No receipt file uploaded"
	tooLargeMessage  = "File is too large. Please compress or resize your image."
	emptyFileMessage = "Uploaded receipt file is empty"
	noTextMessage    = "No text detected in receipt"
	upstreamMessage  = "Upstream service unavailable"
)

// formFields are the multipart fields accepted for the upload, in order of preference
var formFields = []string{"receipt", "file"}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// writeJSONError writes an {"error": message} body with CORS headers set
func writeJSONError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// handleHealth reports that the service is up
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(healthMessage))
}

// handleProcessReceipt runs the pipeline on an uploaded receipt image
func (s *Server) handleProcessReceipt(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadSize+(1<<20))
	if err := r.ParseMultipartForm(s.maxUploadSize); err != nil {
		var maxBytesErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxBytesErr):
			writeJSONError(w, tooLargeMessage, http.StatusBadRequest)
		case errors.Is(err, http.ErrNotMultipart), errors.Is(err, http.ErrMissingBoundary):
			writeJSONError(w, noFileMessage, http.StatusBadRequest)
		default:
			slog.Error("Error parsing multipart form", "error", err)
			writeJSONError(w, "Error parsing form", http.StatusBadRequest)
		}
		return
	}

	f, header, err := formFile(r)
	if err != nil {
		writeJSONError(w, noFileMessage, http.StatusBadRequest)
		return
	}
	defer f.Close()

	if header.Size > s.maxUploadSize {
		writeJSONError(w, tooLargeMessage, http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeJSONError(w, "Error reading file. Please try again.", http.StatusInternalServerError)
		return
	}

	contentType := imaging.DetectContentType(data, uploadContentType(header))

	rec, err := s.processor.Process(r.Context(), data, contentType)
	if err != nil {
		var transportErr *pipeline.TransportError
		switch {
		case errors.Is(err, pipeline.ErrEmptyImage):
			writeJSONError(w, emptyFileMessage, http.StatusBadRequest)
		case errors.Is(err, pipeline.ErrNoTextDetected):
			writeJSONError(w, noTextMessage, http.StatusBadRequest)
		case errors.As(err, &transportErr):
			slog.Error("Upstream failure processing receipt", "filename", header.Filename, "stage", transportErr.Stage, "error", err)
			writeJSONError(w, upstreamMessage, http.StatusBadGateway)
		default:
			slog.Error("Error processing receipt", "filename", header.Filename, "error", err)
			writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(rec); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// formFile returns the first upload found among formFields
func formFile(r *http.Request) (multipart.File, *multipart.FileHeader, error) {
	var lastErr error
	for _, field := range formFields {
		f, header, err := r.FormFile(field)
		if err == nil {
			return f, header, nil
		}
		lastErr = err
	}
	return nil, nil, lastErr
}

// uploadContentType uses the part's declared type, falling back to the file extension
func uploadContentType(header *multipart.FileHeader) string {
	if contentType := header.Header.Get("Content-Type"); contentType != "" {
		return contentType
	}
	switch strings.ToLower(filepath.Ext(header.Filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		return "application/octet-stream"
	}
}
