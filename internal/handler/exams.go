package handler

import (
	"io"
	"log/slog"
	"net/http"
)

// handleUploadExam imports an exam from a multipart "exam_file" upload.
// Re-uploading an unchanged file under the same name is a no-op.
func (h *Handler) handleUploadExam(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		respondError(w, r, errBadRequest)
		return
	}

	file, header, err := r.FormFile("exam_file")
	if err != nil {
		respondError(w, r, errBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, r, err)
		return
	}

	res, err := h.importer.Import(r.Context(), header.Filename, data)
	if err != nil {
		respondError(w, r, err)
		return
	}

	status := http.StatusCreated
	if res.Skipped {
		status = http.StatusOK
	}
	slog.Info("uploaded exam", "filename", header.Filename, "exam_id", res.ExamID, "skipped", res.Skipped)
	respondJSON(w, status, envelope{Data: res})
}
