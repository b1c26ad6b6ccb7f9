package auth

import "time"

// Identity is the full user record as stored, including the credential fields.
// It never leaves the auth package in this form; outward-facing code gets the
// Public view.
type Identity struct {
	ID               string
	Username         string
	Email            string
	FullName         string
	AvatarURL        string
	CoverImageURL    string
	PasswordHash     string
	RefreshToken     *string
	RefreshExpiresAt *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// User is the sanitized identity view: no password hash, no stored refresh value.
type User struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	FullName      string    `json:"fullname"`
	AvatarURL     string    `json:"avatar_url"`
	CoverImageURL string    `json:"cover_image_url,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (i Identity) Public() User {
	return User{
		ID:            i.ID,
		Username:      i.Username,
		Email:         i.Email,
		FullName:      i.FullName,
		AvatarURL:     i.AvatarURL,
		CoverImageURL: i.CoverImageURL,
		CreatedAt:     i.CreatedAt,
		UpdatedAt:     i.UpdatedAt,
	}
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}
