package user

import (
	"errors"
	"time"
)

var (
	ErrNotFound  = errors.New("user not found")
	ErrDuplicate = errors.New("username or email already taken")
)

// Profile is the outward-facing user record; it never carries the password
// hash or the stored refresh credential.
type Profile struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	FullName      string    `json:"fullname"`
	AvatarURL     string    `json:"avatar_url"`
	CoverImageURL string    `json:"cover_image_url,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type NewUser struct {
	Username      string
	Email         string
	FullName      string
	Password      string
	AvatarURL     string
	CoverImageURL string
}

// Channel is a profile enriched with subscription aggregates relative to the
// viewer.
type Channel struct {
	Profile
	SubscriberCount   int64 `json:"subscribers_count"`
	SubscribedToCount int64 `json:"channels_subscribed_to_count"`
	IsSubscribed      bool  `json:"is_subscribed"`
}

type VideoOwner struct {
	Username  string `json:"username"`
	FullName  string `json:"fullname"`
	AvatarURL string `json:"avatar_url"`
}

type WatchEntry struct {
	VideoID      string     `json:"video_id"`
	Title        string     `json:"title"`
	ThumbnailURL string     `json:"thumbnail_url"`
	Duration     int64      `json:"duration_seconds"`
	WatchedAt    time.Time  `json:"watched_at"`
	Owner        VideoOwner `json:"owner"`
}
