package httpadapter

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/kirillkom/grading-assistant/internal/core/domain"
	"github.com/kirillkom/grading-assistant/internal/core/ports"
)

func (rt *Router) listBatches(w http.ResponseWriter, r *http.Request) {
	batches, err := rt.uploads.Batches(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"batches": batches})
}

// submitUpload accepts a multipart form with fields batch, name, email and file.
func (rt *Router) submitUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, rt.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(rt.opts.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
				"error":      "upload exceeds size limit",
				"request_id": requestIDFromContext(r.Context()),
			})
			return
		}
		writeBadRequest(w, r, "multipart form is required")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeBadRequest(w, r, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeBadRequest(w, r, "read uploaded file: "+err.Error())
		return
	}

	event, err := rt.uploads.Submit(r.Context(), ports.UploadRequest{
		Batch:        strings.TrimSpace(r.FormValue("batch")),
		StudentName:  strings.TrimSpace(r.FormValue("name")),
		StudentEmail: strings.TrimSpace(r.FormValue("email")),
		FileName:     header.Filename,
		Data:         data,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordUpload(domain.Ext(event.FileName))
	}
	writeJSON(w, http.StatusAccepted, event)
}

// downloadBlob serves a stored file by id. Share links point here.
func (rt *Router) downloadBlob(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if strings.TrimSpace(id) == "" {
		writeBadRequest(w, r, "query parameter 'id' is required")
		return
	}
	name, err := rt.blobs.FileName(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	data, err := rt.blobs.ReadBytes(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	contentType := "application/octet-stream"
	if format, err := domain.FormatFromFileName(name); err == nil {
		contentType = format.MimeType()
	} else if domain.Ext(name) == "xlsx" {
		contentType = domain.MimeXLSX
	} else if domain.Ext(name) == "json" {
		contentType = domain.MimeJSON
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", "attachment; filename*=UTF-8''"+url.PathEscape(name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
