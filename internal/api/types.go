package api

import (
	"time"

	"ighub/pkg/instagram"
	"ighub/pkg/store"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type loginResponse struct {
	Success  bool               `json:"success"`
	Message  string             `json:"message"`
	UserInfo *instagram.Profile `json:"user_info,omitempty"`
}

type sessionInfo struct {
	Username  string    `json:"username"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type sessionsResponse struct {
	Sessions []sessionInfo `json:"sessions"`
}

type userInfoResponse struct {
	Success  bool               `json:"success"`
	Message  string             `json:"message"`
	UserInfo *instagram.Profile `json:"user_info,omitempty"`
}

type mediaResponse struct {
	Success bool              `json:"success"`
	Count   int               `json:"count"`
	Medias  []instagram.Media `json:"medias"`
}

type followersResponse struct {
	Success        bool   `json:"success"`
	Username       string `json:"username"`
	FollowerCount  int    `json:"followers_count"`
	FollowingCount int    `json:"following_count"`
	MediaCount     int    `json:"media_count"`
}

type sendMessageRequest struct {
	Text       string   `json:"text"`
	Recipients []string `json:"recipients"`
}

type eventsResponse struct {
	Events []*store.EventRecord `json:"events"`
	Total  int                  `json:"total"`
}

type healthResponse struct {
	Message        string   `json:"message"`
	ActiveSessions int      `json:"active_sessions"`
	Usernames      []string `json:"usernames"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
