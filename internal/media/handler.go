package media

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const maxUploadSizeBytes = 100 << 20

type Uploader interface {
	UploadImage(ctx context.Context, source string) (string, error)
	UploadVideo(ctx context.Context, source string) (string, error)
}

type UploadHandler struct {
	uploader Uploader
}

func NewUploadHandler(uploader Uploader) *UploadHandler {
	return &UploadHandler{uploader: uploader}
}

// Upload accepts one multipart file ("file") and stores it as an image or a
// video depending on its content type.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.uploader == nil {
		writeError(w, http.StatusInternalServerError, "uploader is not configured")
		return
	}

	if err := r.ParseMultipartForm(maxUploadSizeBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadSizeBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read file")
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "file is empty")
		return
	}
	if len(data) > maxUploadSizeBytes {
		writeError(w, http.StatusBadRequest, "file is too large")
		return
	}

	contentType := strings.TrimSpace(header.Header.Get("Content-Type"))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	contentType = strings.ToLower(contentType)

	source := fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(data))

	var secureURL string
	switch {
	case strings.HasPrefix(contentType, "image/"):
		secureURL, err = h.uploader.UploadImage(r.Context(), source)
	case strings.HasPrefix(contentType, "video/"):
		secureURL, err = h.uploader.UploadVideo(r.Context(), source)
	default:
		writeError(w, http.StatusBadRequest, "file must be an image or a video")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadGateway, "failed to upload file")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"secure_url": secureURL})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
