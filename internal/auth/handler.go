package auth

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

const maxJSONBodyBytes = 1 << 20

type Handler struct {
	service *Service
	codec   *Codec
}

func NewHandler(service *Service, codec *Codec) *Handler {
	return &Handler{service: service, codec: codec}
}

type loginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type loginResponse struct {
	User User `json:"user"`
	TokenPair
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	var body loginRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	identifier := strings.TrimSpace(body.Username)
	if identifier == "" {
		identifier = strings.TrimSpace(body.Email)
	}
	if identifier == "" || strings.TrimSpace(body.Password) == "" {
		writeError(w, http.StatusBadRequest, "username or email and password are required")
		return
	}

	user, pair, err := h.service.Login(r.Context(), identifier, body.Password)
	if err != nil {
		WriteAuthError(w, err)
		return
	}

	h.setTokenCookies(w, pair)
	writeJSON(w, http.StatusOK, loginResponse{User: user, TokenPair: pair})
}

// Refresh accepts the refresh token from the cookie or, failing that, from the
// request body.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	var body refreshRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	_ = decoder.Decode(&body)

	presented := RefreshTokenFromRequest(r, body.RefreshToken)
	if presented == "" {
		WriteAuthError(w, ErrTokenMissing)
		return
	}

	pair, err := h.service.Rotate(r.Context(), presented)
	if err != nil {
		WriteAuthError(w, err)
		return
	}

	h.setTokenCookies(w, pair)
	writeJSON(w, http.StatusOK, pair)
}

// Logout requires a verified access token (enforced by the middleware) and
// revokes the caller's session.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	user, ok := IdentityFrom(r.Context())
	if !ok {
		WriteAuthError(w, ErrTokenMissing)
		return
	}

	if err := h.service.Revoke(r.Context(), user.ID); err != nil {
		WriteAuthError(w, err)
		return
	}

	h.clearTokenCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) setTokenCookies(w http.ResponseWriter, pair TokenPair) {
	http.SetCookie(w, tokenCookie(AccessCookieName, pair.AccessToken, h.codec.TTL(ClassAccess)))
	http.SetCookie(w, tokenCookie(RefreshCookieName, pair.RefreshToken, h.codec.TTL(ClassRefresh)))
}

func (h *Handler) clearTokenCookies(w http.ResponseWriter) {
	http.SetCookie(w, tokenCookie(AccessCookieName, "", -time.Second))
	http.SetCookie(w, tokenCookie(RefreshCookieName, "", -time.Second))
}

func tokenCookie(name, value string, ttl time.Duration) *http.Cookie {
	cookie := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	}
	if ttl > 0 {
		cookie.MaxAge = int(ttl.Seconds())
	} else {
		cookie.MaxAge = -1
	}
	return cookie
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
