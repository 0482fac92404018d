package receipt

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/zombor/receipt-extractor/internal/extraction"
)

// multipartOverhead is allowed on top of the image limit for form framing
const multipartOverhead = 1 << 20

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// writeError writes a JSON error response with CORS headers set
func writeError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeDraftError maps a draft lookup error to a response
func writeDraftError(w http.ResponseWriter, err error) {
	if isNotFound(err) {
		writeError(w, "Draft not found", http.StatusNotFound)
		return
	}
	slog.Error("Error loading draft", "error", err)
	writeError(w, "Internal server error", http.StatusInternalServerError)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleScanReceipt extracts a receipt upload into a pending draft
func (s *Server) handleScanReceipt(w http.ResponseWriter, r *http.Request) {
	cfg := s.service.ExtractionConfig()
	invalidMsg := extraction.UserMessage(extraction.ErrInvalidImage, cfg)

	r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxImageBytes+multipartOverhead)
	if err := r.ParseMultipartForm(cfg.MaxImageBytes + multipartOverhead); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, invalidMsg, http.StatusBadRequest)
			return
		}
		writeError(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		errorMsg := "No file provided"
		if errors.Is(err, http.ErrMissingFile) {
			errorMsg = "No file was selected. Please choose a file to upload."
		}
		writeError(w, errorMsg, http.StatusBadRequest)
		return
	}
	defer f.Close()

	if header.Size > cfg.MaxImageBytes {
		writeError(w, invalidMsg, http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeError(w, "Error reading file. Please try again.", http.StatusInternalServerError)
		return
	}

	draft, err := s.service.ScanReceipt(r.Context(), header.Filename, data, uploadContentType(header.Header.Get("Content-Type"), header.Filename))
	if err != nil {
		switch {
		case errors.Is(err, extraction.ErrInvalidImage):
			writeError(w, extraction.UserMessage(err, cfg), http.StatusBadRequest)
		case errors.Is(err, extraction.ErrRecognitionUnavailable):
			w.Header().Set("Retry-After", "5")
			writeError(w, extraction.UserMessage(err, cfg), http.StatusServiceUnavailable)
		default:
			slog.Error("Error scanning receipt", "filename", header.Filename, "error", err)
			writeError(w, extraction.UserMessage(err, cfg), http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusCreated, draft)
}

// uploadContentType falls back to the file extension when the client
// sends no content type. The engine sniffs the bytes either way.
func uploadContentType(declared, filename string) string {
	if declared = strings.ToLower(strings.TrimSpace(declared)); declared != "" {
		return declared
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
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

// handleListDrafts returns drafts, optionally filtered by ?status=
func (s *Server) handleListDrafts(w http.ResponseWriter, r *http.Request) {
	status := Status(r.URL.Query().Get("status"))
	if status != "" && status != StatusPending && status != StatusConfirmed {
		writeError(w, fmt.Sprintf("Unknown status %q", status), http.StatusBadRequest)
		return
	}

	drafts, err := s.service.ListDrafts(status)
	if err != nil {
		slog.Error("Error listing drafts", "error", err)
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, drafts)
}

// handleGetDraft returns a single draft
func (s *Server) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	draft, err := s.service.GetDraft(r.PathValue("id"))
	if err != nil {
		writeDraftError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

// handleGetDraftImage returns the uploaded image of a draft
func (s *Server) handleGetDraftImage(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.GetDraftImage(r.PathValue("id"))
	if err != nil {
		if isNotFound(err) {
			writeDraftError(w, err)
			return
		}
		slog.Error("Error loading draft image", "error", err)
		writeError(w, "Image not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Write(data)
}

// handlePrefillDraft returns the editable expense suggested by a draft
func (s *Server) handlePrefillDraft(w http.ResponseWriter, r *http.Request) {
	expense, err := s.service.PrefillDraft(r.PathValue("id"))
	if err != nil {
		writeDraftError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, expense)
}

// handleConfirmDraft stores the corrected expense of a draft
func (s *Server) handleConfirmDraft(w http.ResponseWriter, r *http.Request) {
	var expense Expense
	if err := json.NewDecoder(r.Body).Decode(&expense); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	draft, err := s.service.ConfirmDraft(r.PathValue("id"), expense)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidExpense):
			writeError(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, ErrDraftConfirmed):
			writeError(w, "Draft is already confirmed", http.StatusConflict)
		default:
			writeDraftError(w, err)
		}
		return
	}

	writeJSON(w, http.StatusOK, draft)
}

// handleDeleteDraft deletes a draft
func (s *Server) handleDeleteDraft(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteDraft(r.PathValue("id")); err != nil {
		if isNotFound(err) {
			writeDraftError(w, err)
			return
		}
		slog.Error("Error deleting draft", "error", err)
		writeError(w, "Error deleting draft", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleExportExpenses downloads confirmed expenses as CSV (default) or XLSX
func (s *Server) handleExportExpenses(w http.ResponseWriter, r *http.Request) {
	drafts, err := s.service.ListExpenses()
	if err != nil {
		slog.Error("Error listing expenses", "error", err)
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	switch format := r.URL.Query().Get("format"); format {
	case "", "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="expenses.csv"`)
		if err := WriteExpensesCSV(w, drafts); err != nil {
			slog.Error("Error writing csv export", "error", err)
		}
	case "xlsx":
		data, err := ExpensesXLSX(drafts)
		if err != nil {
			slog.Error("Error building xlsx export", "error", err)
			writeError(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="expenses.xlsx"`)
		w.Write(data)
	default:
		writeError(w, fmt.Sprintf("Unknown export format %q", format), http.StatusBadRequest)
	}
}
