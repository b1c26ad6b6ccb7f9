package user

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"

	"vidtube/internal/auth"
)

var usernameRegex = regexp.MustCompile(`^[a-z0-9_.-]{3,32}$`)

const (
	maxJSONBodyBytes   = 1 << 20
	maxUploadSizeBytes = 10 << 20
	minPasswordLength  = 8
	maxPasswordLength  = 200
)

// Store is the persistence surface the handler needs; *Repository satisfies it.
type Store interface {
	Exists(ctx context.Context, username, email string) (bool, error)
	Create(ctx context.Context, input NewUser) (Profile, error)
	PasswordHashByID(ctx context.Context, id string) (string, error)
	UpdatePassword(ctx context.Context, id, plainPassword string) error
	UpdateAccount(ctx context.Context, id, fullname, email string) (Profile, error)
	UpdateAvatar(ctx context.Context, id, url string) (Profile, error)
	UpdateCoverImage(ctx context.Context, id, url string) (Profile, error)
	ChannelProfile(ctx context.Context, username, viewerID string) (Channel, error)
	WatchHistory(ctx context.Context, userID string, limit int) ([]WatchEntry, error)
}

type ImageUploader interface {
	UploadImage(ctx context.Context, imageSource string) (string, error)
}

type Handler struct {
	store    Store
	uploader ImageUploader
	verifier *auth.Verifier
}

func NewHandler(store Store, uploader ImageUploader, verifier *auth.Verifier) *Handler {
	return &Handler{store: store, uploader: uploader, verifier: verifier}
}

// Register creates an identity from a multipart form: fullname, email,
// username, password, a required avatar file and an optional cover image.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(2 * maxUploadSizeBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	fullname := strings.TrimSpace(r.FormValue("fullname"))
	email := strings.TrimSpace(strings.ToLower(r.FormValue("email")))
	username := strings.TrimSpace(strings.ToLower(r.FormValue("username")))
	password := strings.TrimSpace(r.FormValue("password"))

	if fullname == "" || email == "" || username == "" || password == "" {
		writeError(w, http.StatusBadRequest, "all fields are required")
		return
	}
	if !usernameRegex.MatchString(username) {
		writeError(w, http.StatusBadRequest, "username format is invalid")
		return
	}
	if _, err := mail.ParseAddress(email); err != nil {
		writeError(w, http.StatusBadRequest, "email format is invalid")
		return
	}
	if len(password) < minPasswordLength || len(password) > maxPasswordLength {
		writeError(w, http.StatusBadRequest, "password format is invalid")
		return
	}

	exists, err := h.store.Exists(r.Context(), username, email)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to register user")
		return
	}
	if exists {
		writeError(w, http.StatusConflict, "user with email or username already exists")
		return
	}

	avatarURL, err := h.uploadFormImage(r, "avatar")
	if err != nil {
		writeError(w, http.StatusBadRequest, "avatar file is required")
		return
	}

	// Cover image is optional; a failed optional upload is not a registration error.
	coverImageURL, _ := h.uploadFormImage(r, "coverImage")

	profile, err := h.store.Create(r.Context(), NewUser{
		Username:      username,
		Email:         email,
		FullName:      fullname,
		Password:      password,
		AvatarURL:     avatarURL,
		CoverImageURL: coverImageURL,
	})
	if err != nil {
		if errors.Is(err, ErrDuplicate) {
			writeError(w, http.StatusConflict, "user with email or username already exists")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to register user")
		return
	}

	writeJSON(w, http.StatusCreated, profile)
}

func (h *Handler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.IdentityFrom(r.Context())
	if !ok {
		auth.WriteAuthError(w, auth.ErrTokenMissing)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.IdentityFrom(r.Context())
	if !ok {
		auth.WriteAuthError(w, auth.ErrTokenMissing)
		return
	}

	var body changePasswordRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	oldPassword := strings.TrimSpace(body.OldPassword)
	newPassword := strings.TrimSpace(body.NewPassword)
	if len(newPassword) < minPasswordLength || len(newPassword) > maxPasswordLength {
		writeError(w, http.StatusBadRequest, "new password format is invalid")
		return
	}

	hash, err := h.store.PasswordHashByID(r.Context(), user.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			auth.WriteAuthError(w, auth.ErrAccountNotFound)
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to change password")
		return
	}

	if err := auth.CheckPassword(hash, oldPassword); err != nil {
		writeError(w, http.StatusBadRequest, "invalid old password")
		return
	}

	if err := h.store.UpdatePassword(r.Context(), user.ID, newPassword); err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to change password")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "password changed"})
}

type updateAccountRequest struct {
	FullName string `json:"fullname"`
	Email    string `json:"email"`
}

func (h *Handler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.IdentityFrom(r.Context())
	if !ok {
		auth.WriteAuthError(w, auth.ErrTokenMissing)
		return
	}

	var body updateAccountRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	fullname := strings.TrimSpace(body.FullName)
	email := strings.TrimSpace(strings.ToLower(body.Email))
	if fullname == "" && email == "" {
		writeError(w, http.StatusBadRequest, "fullname or email is required")
		return
	}
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			writeError(w, http.StatusBadRequest, "email format is invalid")
			return
		}
	}

	profile, err := h.store.UpdateAccount(r.Context(), user.ID, fullname, email)
	if err != nil {
		h.writeStoreError(w, err, "failed to update account")
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

func (h *Handler) UpdateAvatar(w http.ResponseWriter, r *http.Request) {
	h.updateImage(w, r, "avatar", h.store.UpdateAvatar)
}

func (h *Handler) UpdateCoverImage(w http.ResponseWriter, r *http.Request) {
	h.updateImage(w, r, "coverImage", h.store.UpdateCoverImage)
}

func (h *Handler) updateImage(w http.ResponseWriter, r *http.Request, field string, update func(context.Context, string, string) (Profile, error)) {
	user, ok := auth.IdentityFrom(r.Context())
	if !ok {
		auth.WriteAuthError(w, auth.ErrTokenMissing)
		return
	}

	if err := r.ParseMultipartForm(maxUploadSizeBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	url, err := h.uploadFormImage(r, field)
	if err != nil {
		writeError(w, http.StatusBadRequest, field+" file is required")
		return
	}

	profile, err := update(r.Context(), user.ID, url)
	if err != nil {
		h.writeStoreError(w, err, "failed to update "+field)
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

// ChannelProfile is public; when the request carries a valid access token the
// response reports whether that viewer subscribes to the channel.
func (h *Handler) ChannelProfile(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(strings.ToLower(r.PathValue("username")))
	if username == "" {
		writeError(w, http.StatusBadRequest, "username is required")
		return
	}

	var viewerID string
	if viewer, err := h.verifier.VerifyRequest(r); err == nil {
		viewerID = viewer.ID
	}

	channel, err := h.store.ChannelProfile(r.Context(), username, viewerID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "channel does not exist")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to fetch channel")
		return
	}

	writeJSON(w, http.StatusOK, channel)
}

func (h *Handler) WatchHistory(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.IdentityFrom(r.Context())
	if !ok {
		auth.WriteAuthError(w, auth.ErrTokenMissing)
		return
	}

	entries, err := h.store.WatchHistory(r.Context(), user.ID, 100)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to fetch watch history")
		return
	}

	writeJSON(w, http.StatusOK, entries)
}

// uploadFormImage reads one image file from the multipart form and delegates
// storage to the uploader, returning the hosted URL.
func (h *Handler) uploadFormImage(r *http.Request, field string) (string, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return "", fmt.Errorf("form file %q: %w", field, err)
	}
	defer file.Close()

	source, err := encodeImage(file, header)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	return h.uploader.UploadImage(ctx, source)
}

func encodeImage(file multipart.File, header *multipart.FileHeader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(file, maxUploadSizeBytes+1))
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("upload is empty")
	}
	if len(data) > maxUploadSizeBytes {
		return "", fmt.Errorf("upload exceeds %d bytes", maxUploadSizeBytes)
	}

	contentType := strings.TrimSpace(header.Header.Get("Content-Type"))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(strings.ToLower(contentType), "image/") {
		return "", fmt.Errorf("upload must be an image")
	}

	return fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(data)), nil
}

func (h *Handler) writeStoreError(w http.ResponseWriter, err error, message string) {
	if errors.Is(err, ErrNotFound) {
		auth.WriteAuthError(w, auth.ErrAccountNotFound)
		return
	}
	if errors.Is(err, ErrDuplicate) {
		writeError(w, http.StatusConflict, "email already in use")
		return
	}
	sentry.CaptureException(err)
	writeError(w, http.StatusInternalServerError, message)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, target any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}

	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
