package web

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/vbonduro/screensolve/internal/capture"
)

const maxCaptureSize = 50 * 1024 * 1024 // 50 MB

func (s *Server) handleUploadCapture(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxCaptureSize); err != nil {
		http.Error(w, "failed to parse form", http.StatusBadRequest)
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		http.Error(w, "image file required", http.StatusBadRequest)
		return
	}
	defer closeWithLog(file, "upload file", s.logger)

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "failed to read file", http.StatusInternalServerError)
		s.logger.Error("read upload failed", "error", err)
		return
	}

	n, err := s.deps.Buffer.Ingest(data, s.deps.Normalize)
	if err != nil {
		s.deps.Publisher.Status(fmt.Sprintf("Screenshot error: %v", err))
		if errors.Is(err, capture.ErrUnsupportedImage) {
			http.Error(w, "unsupported image format", http.StatusBadRequest)
			return
		}
		http.Error(w, "failed to decode image", http.StatusBadRequest)
		s.logger.Warn("normalize upload failed", "error", err)
		return
	}

	s.logger.Info("screenshot captured", "source", "upload", "count", n)
	s.deps.Publisher.Status(capture.CapturedStatus(n))
	writeJSON(w, http.StatusOK, map[string]int{"captures": n}, s.logger)
}

func (s *Server) handleResetCaptures(w http.ResponseWriter, r *http.Request) {
	n := s.deps.Buffer.Reset()
	s.deps.Publisher.Status(capture.ResetStatus(n))
	writeJSON(w, http.StatusOK, map[string]int{"cleared": n}, s.logger)
}
